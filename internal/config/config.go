// Package config loads the trading engine's tunables the same way the
// node's existing configuration did: sensible defaults, optionally
// overlaid by a .env file and then by actual environment variables
// (ENV > .env file > defaults).
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// DisseminationPolicy selects how a node samples peers to broadcast a tick
// to (spec.md §6).
type DisseminationPolicy string

const (
	DisseminationNeighbours DisseminationPolicy = "NEIGHBOURS"
	DisseminationRandom     DisseminationPolicy = "RANDOM"
)

// SyncPolicy selects whether a matchmaker runs periodic order book sync at all.
type SyncPolicy string

const (
	SyncNone       SyncPolicy = "NONE"
	SyncNeighbours SyncPolicy = "NEIGHBOURS"
)

// Matching groups MatchCache/matching-engine tunables.
type Matching struct {
	// MatchWindow is how long to coalesce incoming matches before
	// dispatching proposals. Zero means dispatch immediately.
	MatchWindow time.Duration
	// MatchSendInterval is the random upper bound on a retried match
	// message's delay, to avoid bursting.
	MatchSendInterval time.Duration
	// MatchProcessBatchSize caps outgoing proposals per MatchCache wake.
	MatchProcessBatchSize int
	// FirstMatchesOwnOrders re-runs matching of the node's own orders
	// against the book before matching a newly-arrived tick.
	FirstMatchesOwnOrders bool
	// SingleTrade enables the one-outstanding-trade-per-counterparty
	// clearing policy.
	SingleTrade bool
}

// Sync groups order book synchronization tunables.
type Sync struct {
	NumOrderSync int
	SyncInterval time.Duration
	SyncPolicy   SyncPolicy
}

// Dissemination groups tick broadcast tunables.
type Dissemination struct {
	Policy DisseminationPolicy
	Fanout int
}

// Network groups libp2p listen/bootstrap settings.
type Network struct {
	ListenAddr string
	Bootstrap  []string
}

// Config is the trading node's full runtime configuration.
type Config struct {
	Matching      Matching
	Sync          Sync
	Dissemination Dissemination
	Network       Network

	StorePath string
	LogPath   string
	LogLevel  string
}

// Default returns the configuration spec.md's defaults describe.
func Default() Config {
	return Config{
		Matching: Matching{
			MatchWindow:            0,
			MatchSendInterval:      time.Second,
			MatchProcessBatchSize: 20,
			FirstMatchesOwnOrders:  false,
			SingleTrade:            false,
		},
		Sync: Sync{
			NumOrderSync: 10,
			SyncInterval: 30 * time.Second,
			SyncPolicy:   SyncNeighbours,
		},
		Dissemination: Dissemination{
			Policy: DisseminationNeighbours,
			Fanout: 5,
		},
		Network: Network{
			ListenAddr: "/ip4/0.0.0.0/tcp/0",
		},
		StorePath: "anydex-data",
		LogLevel:  "info",
	}
}

// LoadFromEnv loads configuration with priority ENV > .env file > defaults,
// matching the node's existing config-loading convention.
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	if v := os.Getenv("ANYDEX_MATCH_WINDOW_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			cfg.Matching.MatchWindow = time.Duration(ms) * time.Millisecond
		}
	}
	if v := os.Getenv("ANYDEX_MATCH_SEND_INTERVAL_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			cfg.Matching.MatchSendInterval = time.Duration(ms) * time.Millisecond
		}
	}
	if v := os.Getenv("ANYDEX_MATCH_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Matching.MatchProcessBatchSize = n
		}
	}
	if v := os.Getenv("ANYDEX_FIRST_MATCHES_OWN_ORDERS"); v != "" {
		cfg.Matching.FirstMatchesOwnOrders = v == "true"
	}
	if v := os.Getenv("ANYDEX_SINGLE_TRADE"); v != "" {
		cfg.Matching.SingleTrade = v == "true"
	}

	if v := os.Getenv("ANYDEX_NUM_ORDER_SYNC"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Sync.NumOrderSync = n
		}
	}
	if v := os.Getenv("ANYDEX_SYNC_INTERVAL_SEC"); v != "" {
		if s, err := strconv.Atoi(v); err == nil {
			cfg.Sync.SyncInterval = time.Duration(s) * time.Second
		}
	}
	if v := os.Getenv("ANYDEX_SYNC_POLICY"); v != "" {
		cfg.Sync.SyncPolicy = SyncPolicy(v)
	}

	if v := os.Getenv("ANYDEX_DISSEMINATION_POLICY"); v != "" {
		cfg.Dissemination.Policy = DisseminationPolicy(v)
	}
	if v := os.Getenv("ANYDEX_FANOUT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Dissemination.Fanout = n
		}
	}

	if v := os.Getenv("ANYDEX_LISTEN_ADDR"); v != "" {
		cfg.Network.ListenAddr = v
	}
	if v := os.Getenv("ANYDEX_STORE_PATH"); v != "" {
		cfg.StorePath = v
	}
	if v := os.Getenv("ANYDEX_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}

	return cfg
}
