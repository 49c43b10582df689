// Package config loads keeper configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all process configuration read from the environment.
type Config struct {
	Network string

	ExecutionEndpoints   []string
	ConsensusEndpoints   []string
	L2ExecutionEndpoints []string
	IpfsFetchEndpoints   []string
	GraphAPIURL          string

	PrivateKey string

	MaxFeePerGasGwei        int64
	PriorityFeeNumBlocks    int
	PriorityFeePercentile   int
	AttemptsWithDefaultGas  int
	MinEffectivePriorityFee int64

	ExecutionTransactionTimeout time.Duration
	IpfsClientTimeout           time.Duration
	IpfsClientRetryTimeout      time.Duration
	OracleTimeout               time.Duration
	GraphAPITimeout             time.Duration
	GraphAPIRetryTimeout        time.Duration
	DefaultRetryTime            time.Duration

	SkipDistributorRewards bool
	SkipOsethPriceUpdate   bool
	SkipForceExits         bool
	SkipLTVUpdate          bool

	PriceUpdateInterval   time.Duration
	PriceMaxWaitingTime   time.Duration
	ForceExitsInterval    time.Duration
	LTVUpdateInterval     time.Duration
	LTVPercentDelta       float64

	MetricsHost string
	MetricsPort int

	SentryDSN string
}

// Load reads configuration from the process environment, applying the same
// defaults shape as the teacher's env-var loaders.
func Load() (*Config, error) {
	cfg := &Config{
		Network: getEnv("NETWORK", "mainnet"),

		ExecutionEndpoints:   splitCSV(getEnv("EXECUTION_ENDPOINTS", "")),
		ConsensusEndpoints:   splitCSV(getEnv("CONSENSUS_ENDPOINTS", "")),
		L2ExecutionEndpoints: splitCSV(getEnv("L2_EXECUTION_ENDPOINTS", "")),
		IpfsFetchEndpoints:   splitCSV(getEnv("IPFS_FETCH_ENDPOINTS", "")),
		GraphAPIURL:          getEnv("GRAPH_API_URL", ""),

		PrivateKey: getEnv("PRIVATE_KEY", ""),

		MaxFeePerGasGwei:        getEnvAsInt64("MAX_FEE_PER_GAS_GWEI", 100),
		PriorityFeeNumBlocks:    getEnvAsInt("PRIORITY_FEE_NUM_BLOCKS", 10),
		PriorityFeePercentile:   getEnvAsInt("PRIORITY_FEE_PERCENTILE", 80),
		AttemptsWithDefaultGas:  getEnvAsInt("ATTEMPTS_WITH_DEFAULT_GAS", 3),
		MinEffectivePriorityFee: getEnvAsInt64("MIN_EFFECTIVE_PRIORITY_FEE_PER_GAS", 1),

		ExecutionTransactionTimeout: getEnvAsDuration("EXECUTION_TRANSACTION_TIMEOUT", 5*time.Minute),
		IpfsClientTimeout:           getEnvAsDuration("IPFS_CLIENT_TIMEOUT", 10*time.Second),
		IpfsClientRetryTimeout:      getEnvAsDuration("IPFS_CLIENT_RETRY_TIMEOUT", 60*time.Second),
		OracleTimeout:               getEnvAsDuration("ORACLE_TIMEOUT", 10*time.Second),
		GraphAPITimeout:             getEnvAsDuration("GRAPH_API_TIMEOUT", 10*time.Second),
		GraphAPIRetryTimeout:        getEnvAsDuration("GRAPH_API_RETRY_TIMEOUT", 60*time.Second),
		DefaultRetryTime:            getEnvAsDuration("DEFAULT_RETRY_TIME", 5*time.Second),

		SkipDistributorRewards: getEnvAsBool("SKIP_DISTRIBUTOR_REWARDS", false),
		SkipOsethPriceUpdate:   getEnvAsBool("SKIP_OSETH_PRICE_UPDATE", false),
		SkipForceExits:         getEnvAsBool("SKIP_FORCE_EXITS", false),
		SkipLTVUpdate:          getEnvAsBool("SKIP_LTV_UPDATE", false),

		PriceUpdateInterval: getEnvAsDuration("PRICE_UPDATE_INTERVAL", 12*time.Hour),
		PriceMaxWaitingTime: getEnvAsDuration("PRICE_MAX_WAITING_TIME", 6*time.Hour),
		ForceExitsInterval:  getEnvAsDuration("FORCE_EXITS_UPDATE_INTERVAL", 1*time.Hour),
		LTVUpdateInterval:   getEnvAsDuration("LTV_UPDATE_INTERVAL", 1*time.Hour),
		LTVPercentDelta:     getEnvAsFloat("LTV_PERCENT_DELTA", 0.01),

		MetricsHost: getEnv("METRICS_HOST", "0.0.0.0"),
		MetricsPort: getEnvAsInt("METRICS_PORT", 9100),

		SentryDSN: getEnv("SENTRY_DSN", ""),
	}

	return cfg, nil
}

// Validate checks invariants the scheduler and startup checks rely on.
func (c *Config) Validate() error {
	if len(c.ExecutionEndpoints) == 0 {
		return fmt.Errorf("EXECUTION_ENDPOINTS is required")
	}
	if len(c.ConsensusEndpoints) == 0 {
		return fmt.Errorf("CONSENSUS_ENDPOINTS is required")
	}
	if c.PrivateKey == "" {
		return fmt.Errorf("PRIVATE_KEY is required")
	}
	if c.PriceMaxWaitingTime >= c.PriceUpdateInterval {
		return fmt.Errorf("PRICE_MAX_WAITING_TIME must be less than PRICE_UPDATE_INTERVAL")
	}
	if c.AttemptsWithDefaultGas < 1 {
		return fmt.Errorf("ATTEMPTS_WITH_DEFAULT_GAS must be at least 1")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value, err := strconv.ParseInt(getEnv(key, ""), 10, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value, err := strconv.ParseFloat(getEnv(key, ""), 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := strings.ToLower(strings.TrimSpace(getEnv(key, "")))
	if valueStr == "" {
		return defaultValue
	}
	switch valueStr {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return defaultValue
	}
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if seconds, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(seconds) * time.Second
	}
	if d, err := time.ParseDuration(valueStr); err == nil {
		return d
	}
	return defaultValue
}

func splitCSV(value string) []string {
	if value == "" {
		return []string{}
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
