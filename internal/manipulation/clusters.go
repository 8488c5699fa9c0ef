package manipulation

import (
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	json "github.com/goccy/go-json"
)

// ClusterSource groups wallets believed to be controlled by one actor.
type ClusterSource interface {
	ClusterOf(wallet common.Address) string
}

// SingletonClusters treats every wallet as its own cluster.
type SingletonClusters struct{}

// ClusterOf returns the wallet's own address.
func (SingletonClusters) ClusterOf(wallet common.Address) string {
	return wallet.Hex()
}

// StaticClusters is a fixed wallet -> cluster mapping. Unknown wallets are singletons.
type StaticClusters struct {
	byWallet map[common.Address]string
}

// NewStaticClusters builds a mapping from cluster name to member wallets.
func NewStaticClusters(clusters map[string][]common.Address) *StaticClusters {
	byWallet := make(map[common.Address]string)
	for name, wallets := range clusters {
		for _, w := range wallets {
			byWallet[w] = name
		}
	}
	return &StaticClusters{byWallet: byWallet}
}

// LoadStaticClusters reads a JSON object of cluster name to wallet list.
//
//	{"sybil-1": ["0xabc...", "0xdef..."]}
func LoadStaticClusters(path string) (*StaticClusters, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read cluster file: %w", err)
	}

	var parsed map[string][]string
	err = json.Unmarshal(raw, &parsed)
	if err != nil {
		return nil, fmt.Errorf("decode cluster file: %w", err)
	}

	clusters := make(map[string][]common.Address, len(parsed))
	for name, wallets := range parsed {
		for _, w := range wallets {
			w = strings.TrimSpace(w)
			if !common.IsHexAddress(w) {
				return nil, fmt.Errorf("cluster %q: invalid wallet %q", name, w)
			}
			clusters[name] = append(clusters[name], common.HexToAddress(w))
		}
	}
	return NewStaticClusters(clusters), nil
}

// ClusterOf returns the configured cluster, or the wallet itself.
func (s *StaticClusters) ClusterOf(wallet common.Address) string {
	if name, ok := s.byWallet[wallet]; ok {
		return name
	}
	return wallet.Hex()
}
