package tokens

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	json "github.com/goccy/go-json"
	"github.com/mselser95/mempool-engine/pkg/cache"
	"github.com/mselser95/mempool-engine/pkg/types"
	"github.com/prometheus/client_golang/prometheus"
)

// SafetyProvider supplies token-safety reports.
type SafetyProvider interface {
	Report(ctx context.Context, token common.Address) (*types.TokenSafetyReport, error)
}

// SafetyClient fetches token-safety reports from an HTTP JSON API:
// GET {baseURL}/v1/tokens/{address}/safety
type SafetyClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewSafetyClient creates a new safety client.
func NewSafetyClient(baseURL string, timeout time.Duration) *SafetyClient {
	return &SafetyClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Report fetches the safety report for a token.
func (c *SafetyClient) Report(ctx context.Context, token common.Address) (*types.TokenSafetyReport, error) {
	timer := prometheus.NewTimer(SafetyFetchDuration)
	defer timer.ObserveDuration()

	url := fmt.Sprintf("%s/v1/tokens/%s/safety", c.baseURL, token.Hex())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		SafetyFetchErrorsTotal.Inc()
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		SafetyFetchErrorsTotal.Inc()
		return nil, fmt.Errorf("fetch safety report: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		SafetyFetchErrorsTotal.Inc()
		return nil, fmt.Errorf("safety API error: status %d", resp.StatusCode)
	}

	var report types.TokenSafetyReport
	err = json.NewDecoder(resp.Body).Decode(&report)
	if err != nil {
		SafetyFetchErrorsTotal.Inc()
		return nil, fmt.Errorf("decode safety report: %w", err)
	}

	report.Token = token
	if report.CheckedAt.IsZero() {
		report.CheckedAt = time.Now()
	}

	return &report, nil
}

// CachedSafetyClient wraps a SafetyProvider with a TTL cache.
type CachedSafetyClient struct {
	provider SafetyProvider
	cache    cache.Cache
	ttl      time.Duration
}

// NewCachedSafetyClient creates a new cached safety client.
func NewCachedSafetyClient(provider SafetyProvider, c cache.Cache, ttl time.Duration) *CachedSafetyClient {
	return &CachedSafetyClient{
		provider: provider,
		cache:    c,
		ttl:      ttl,
	}
}

// Report returns a cached report when present, otherwise fetches and caches it.
// Failures are never cached.
func (c *CachedSafetyClient) Report(ctx context.Context, token common.Address) (*types.TokenSafetyReport, error) {
	key := "safety:" + token.Hex()

	if c.cache != nil {
		if report, ok := cache.Lookup[*types.TokenSafetyReport](c.cache, key); ok {
			SafetyCacheHitsTotal.Inc()
			return report, nil
		}
		SafetyCacheMissesTotal.Inc()
	}

	report, err := c.provider.Report(ctx, token)
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		c.cache.Set(key, report, c.ttl)
	}

	return report, nil
}

// Invalidate drops a cached report.
func (c *CachedSafetyClient) Invalidate(token common.Address) {
	if c.cache != nil {
		c.cache.Delete("safety:" + token.Hex())
	}
}
