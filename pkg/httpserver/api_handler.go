package httpserver

import (
	"net/http"
	"strconv"

	json "github.com/goccy/go-json"
	"github.com/mselser95/mempool-engine/internal/execution"
	"github.com/mselser95/mempool-engine/pkg/events"
	"github.com/mselser95/mempool-engine/pkg/types"
	"go.uber.org/zap"
)

const (
	defaultEventLimit = 100
	maxBodyBytes      = 1 << 16
)

// FeeSource quotes fees per urgency tier.
type FeeSource interface {
	Quote(urgency types.Urgency) types.FeeQuote
}

// PositionSource lists live and archived positions.
type PositionSource interface {
	Positions() []*types.Position
	Archived() []*types.Position
}

// EventSource returns recently published events.
type EventSource interface {
	Recent(n int) []events.Event
}

// KillSwitch is the operator stop for submissions.
type KillSwitch interface {
	Engage(reason string)
	Reset()
	Status() execution.KillSwitchStatus
}

// APIHandler serves the engine's read-only views and the kill switch.
type APIHandler struct {
	fees       FeeSource
	positions  PositionSource
	events     EventSource
	killSwitch KillSwitch
	logger     *zap.Logger
}

// FeesResponse holds one quote per urgency tier.
type FeesResponse struct {
	Normal    types.FeeQuote `json:"normal"`
	Priority  types.FeeQuote `json:"priority"`
	Emergency types.FeeQuote `json:"emergency"`
}

// PositionsResponse lists open and archived positions.
type PositionsResponse struct {
	Open     []*types.Position `json:"open"`
	Archived []*types.Position `json:"archived"`
}

// KillSwitchRequest engages or resets the kill switch.
type KillSwitchRequest struct {
	Engage bool   `json:"engage"`
	Reason string `json:"reason"`
}

// ErrorResponse represents an HTTP error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HandleFees handles GET /api/fees.
func (h *APIHandler) HandleFees(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, FeesResponse{
		Normal:    h.fees.Quote(types.UrgencyNormal),
		Priority:  h.fees.Quote(types.UrgencyPriority),
		Emergency: h.fees.Quote(types.UrgencyEmergency),
	})
}

// HandlePositions handles GET /api/positions.
func (h *APIHandler) HandlePositions(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, PositionsResponse{
		Open:     h.positions.Positions(),
		Archived: h.positions.Archived(),
	})
}

// HandleEvents handles GET /api/events?limit=<n>.
func (h *APIHandler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	limit := defaultEventLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			h.writeError(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	h.writeJSON(w, http.StatusOK, h.events.Recent(limit))
}

// HandleKillSwitchStatus handles GET /api/kill-switch.
func (h *APIHandler) HandleKillSwitchStatus(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, h.killSwitch.Status())
}

// HandleKillSwitch handles POST /api/kill-switch.
func (h *APIHandler) HandleKillSwitch(w http.ResponseWriter, r *http.Request) {
	var req KillSwitchRequest
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req)
	if err != nil {
		h.writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if req.Engage {
		if req.Reason == "" {
			h.writeError(w, "reason is required to engage", http.StatusBadRequest)
			return
		}
		h.killSwitch.Engage(req.Reason)
	} else {
		h.killSwitch.Reset()
	}

	h.logger.Info("kill-switch-request",
		zap.Bool("engage", req.Engage),
		zap.String("reason", req.Reason),
		zap.String("remote-addr", r.RemoteAddr))

	h.writeJSON(w, http.StatusOK, h.killSwitch.Status())
}

func (h *APIHandler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		h.logger.Error("failed-to-encode-response", zap.Error(err))
	}
}

// writeError writes a JSON error response.
func (h *APIHandler) writeError(w http.ResponseWriter, message string, statusCode int) {
	h.writeJSON(w, statusCode, ErrorResponse{Error: message})
}
