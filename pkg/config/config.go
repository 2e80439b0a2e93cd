// Package config aggregates runtime settings for every pipeline component,
// one small struct per concern, composed into a single PipelineConfig.
package config

import (
	"io"
	"time"

	"github.com/rs/zerolog"
)

// Network defines the target Solana cluster.
type Network string

const (
	NetworkMainnet Network = "mainnet"
	NetworkTestnet Network = "testnet"
	NetworkDevnet  Network = "devnet"
	NetworkCustom  Network = "custom"
)

// DefaultRPCURL returns the standard RPC endpoint for a known network.
func DefaultRPCURL(network Network) string {
	switch network {
	case NetworkMainnet:
		return "https://api.mainnet-beta.solana.com"
	case NetworkTestnet:
		return "https://api.testnet.solana.com"
	case NetworkDevnet:
		return "https://api.devnet.solana.com"
	default:
		return ""
	}
}

// RetryConfig controls RPC retry behavior.
type RetryConfig struct {
	Enabled        bool
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Jitter         bool
}

// RateLimitConfig throttles outbound RPC or HTTP calls.
type RateLimitConfig struct {
	RPS   float64
	Burst int
}

// RPCConfig aggregates runtime settings for read-only Solana RPC usage (the
// C8 RPC recovery adapter).
type RPCConfig struct {
	Network    Network
	RPCURL     string
	Commitment string
	Timeout    time.Duration
	Retry      RetryConfig
	RateLimit  RateLimitConfig
	Logger     zerolog.Logger
}

// DefaultRPCConfig yields production-safe defaults (mainnet, confirmed commitment).
func DefaultRPCConfig() RPCConfig {
	return RPCConfig{
		Network:    NetworkMainnet,
		RPCURL:     DefaultRPCURL(NetworkMainnet),
		Commitment: "confirmed",
		Timeout:    20 * time.Second,
		Retry: RetryConfig{
			Enabled:        true,
			MaxAttempts:    3,
			InitialBackoff: 150 * time.Millisecond,
			MaxBackoff:     2 * time.Second,
			Jitter:         true,
		},
		RateLimit: RateLimitConfig{
			RPS:   8,
			Burst: 16,
		},
		Logger: zerolog.New(io.Discard),
	}
}

// ResolveRPCURL returns RPCURL if set, otherwise falls back to network defaults.
func (c RPCConfig) ResolveRPCURL() string {
	if c.RPCURL != "" {
		return c.RPCURL
	}
	return DefaultRPCURL(c.Network)
}

// StreamConfig controls the C3 subscription manager's reconnect behavior.
type StreamConfig struct {
	Endpoint              string
	Token                 string
	Commitment            string
	ReconnectBaseDelay     time.Duration
	ReconnectMaxDelay      time.Duration
	MaxReconnectsPerMinute int
	MaxConsecutiveFailures int
}

// DefaultStreamConfig matches §6's recognised reconnect options.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		Commitment:             "confirmed",
		ReconnectBaseDelay:     time.Second,
		ReconnectMaxDelay:      60 * time.Second,
		MaxReconnectsPerMinute: 30,
		MaxConsecutiveFailures: 30,
	}
}

// BatchConfig controls the C6 batching persistence layer.
type BatchConfig struct {
	BatchSize       int
	BatchInterval   time.Duration
	MaxRequeueDepth int
}

// DefaultBatchConfig matches §6's batch_size/batch_interval_ms defaults.
func DefaultBatchConfig() BatchConfig {
	return BatchConfig{
		BatchSize:       100,
		BatchInterval:   time.Second,
		MaxRequeueDepth: 10,
	}
}

// PriceConfig controls the C1 price engine's curve constants and thresholds.
type PriceConfig struct {
	BCStartSOL            float64
	BCTargetSOL           float64
	ProgressFormula        ProgressFormula
	TokenDecimals          uint8
	FullyDilutedSupply     uint64
	MarketCapThresholdUSD  float64
	DivergenceWarnFraction float64
}

// ProgressFormula selects between the two progress-curve conventions the
// source mixes (spec §9 open question); both are valid, exposed as config.
type ProgressFormula string

const (
	// ProgressLinearSOL is progress = (solInCurve-start)/(target-start)*100.
	ProgressLinearSOL ProgressFormula = "linear_sol"
	// ProgressLamportRatio is progress = lamports/1e9/84*100.
	ProgressLamportRatio ProgressFormula = "lamport_ratio"
)

// DefaultPriceConfig matches §6/§8's worked defaults.
func DefaultPriceConfig() PriceConfig {
	return PriceConfig{
		BCStartSOL:             30,
		BCTargetSOL:            85,
		ProgressFormula:        ProgressLinearSOL,
		TokenDecimals:          6,
		FullyDilutedSupply:     1_000_000_000,
		MarketCapThresholdUSD:  8_888,
		DivergenceWarnFraction: 0.01,
	}
}

// MarketCapTiers are the recovery-priority tiers from §4.7.
type MarketCapTiers struct {
	Critical float64
	High     float64
	Medium   float64
	Low      float64
}

// DefaultMarketCapTiers matches §4.7's defaults.
func DefaultMarketCapTiers() MarketCapTiers {
	return MarketCapTiers{Critical: 50_000, High: 20_000, Medium: 10_000, Low: 5_000}
}

// RecoveryConfig controls the C7 stale detector and recovery queue.
type RecoveryConfig struct {
	StaleThreshold             time.Duration
	CriticalStaleThreshold     time.Duration
	MarketCapTiers             MarketCapTiers
	ScanInterval               time.Duration
	BatchSize                  int
	MaxConcurrentRecoveries    int
	MaxRetries                 int
	EnableStartupRecovery      bool
	StartupRecoveryThreshold   time.Duration
	StartupRecoveryMinMarketCap float64
}

// DefaultRecoveryConfig matches §4.7's enumerated defaults.
func DefaultRecoveryConfig() RecoveryConfig {
	return RecoveryConfig{
		StaleThreshold:              30 * time.Minute,
		CriticalStaleThreshold:      60 * time.Minute,
		MarketCapTiers:              DefaultMarketCapTiers(),
		ScanInterval:                5 * time.Minute,
		BatchSize:                   100,
		MaxConcurrentRecoveries:     3,
		MaxRetries:                  3,
		EnableStartupRecovery:       true,
		StartupRecoveryThreshold:    5 * time.Minute,
		StartupRecoveryMinMarketCap: 1_000,
	}
}

// AggregatorConfig controls the C8 aggregator adapter's sliding-window rate
// limit and HTTP behavior.
type AggregatorConfig struct {
	BaseURL             string
	APIKey              string
	RateLimitWindow     time.Duration
	MaxRequestsInWindow int
	RequestTimeout      time.Duration
	CacheTTL            time.Duration
}

// DefaultAggregatorConfig matches §6's rate_limit_window_ms/max_requests_per_window defaults.
func DefaultAggregatorConfig() AggregatorConfig {
	return AggregatorConfig{
		RateLimitWindow:     60 * time.Second,
		MaxRequestsInWindow: 50,
		RequestTimeout:      5 * time.Second,
		CacheTTL:            60 * time.Second,
	}
}

// PersistenceConfig controls the outbound relational store connection.
type PersistenceConfig struct {
	DatabaseURL string
}

// MonitorConfig controls the C9 performance monitor's thresholds.
type MonitorConfig struct {
	SnapshotInterval   time.Duration
	AggregationInterval time.Duration
	ParseLatencyMs     float64
	StreamLagSeconds   float64
	MissedTxRateFrac   float64
	MemoryBytes        uint64
	CPUPercent         float64
	QueueDepth         int
}

// DefaultMonitorConfig matches §4.9's thresholds.
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		SnapshotInterval:    5 * time.Second,
		AggregationInterval: time.Minute,
		ParseLatencyMs:      50,
		StreamLagSeconds:    1,
		MissedTxRateFrac:    0.01,
		MemoryBytes:         1 << 30,
		CPUPercent:          80,
		QueueDepth:          1000,
	}
}

// PipelineConfig composes every component's configuration, mirroring the
// §6 recognised-options table.
type PipelineConfig struct {
	RPC         RPCConfig
	Stream      StreamConfig
	Batch       BatchConfig
	Price       PriceConfig
	Recovery    RecoveryConfig
	Aggregator  AggregatorConfig
	Persistence PersistenceConfig
	Monitor     MonitorConfig
	Logger      zerolog.Logger
}

// DefaultPipelineConfig composes every component's defaults.
func DefaultPipelineConfig() PipelineConfig {
	logger := zerolog.New(io.Discard)
	rpc := DefaultRPCConfig()
	rpc.Logger = logger
	return PipelineConfig{
		RPC:        rpc,
		Stream:     DefaultStreamConfig(),
		Batch:      DefaultBatchConfig(),
		Price:      DefaultPriceConfig(),
		Recovery:   DefaultRecoveryConfig(),
		Aggregator: DefaultAggregatorConfig(),
		Monitor:    DefaultMonitorConfig(),
		Logger:     logger,
	}
}
