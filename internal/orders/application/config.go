package application

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// PollConfig controls the per-order polling loop.
type PollConfig struct {
	InitialDelay  time.Duration `yaml:"initial_delay"`
	ShortInterval time.Duration `yaml:"short_interval"`
	ShortAttempts int           `yaml:"short_attempts"`
	LongInterval  time.Duration `yaml:"long_interval"`
	MaxAttempts   int           `yaml:"max_attempts"`
}

// FeeEstimate is the conservative fee model used before the provider has
// quoted exact fees.
type FeeEstimate struct {
	SenderFeePercent   decimal.Decimal `yaml:"sender_fee_percent"`
	TransactionFeeFlat decimal.Decimal `yaml:"transaction_fee_flat"`
}

// Config defines reconciliation configuration.
type Config struct {
	Poll            PollConfig    `yaml:"poll"`
	FallbackWindow  time.Duration `yaml:"fallback_window"`
	Fees            FeeEstimate   `yaml:"fees"`
	BalanceFailOpen bool          `yaml:"balance_fail_open"`
}

// LoadConfig loads config from yaml or env.
func LoadConfig() (Config, error) {
	cfg := Config{
		Poll: PollConfig{
			InitialDelay:  getenvDuration("POLL_INITIAL_DELAY", 10*time.Second),
			ShortInterval: getenvDuration("POLL_SHORT_INTERVAL", 5*time.Second),
			ShortAttempts: getenvIntDefault("POLL_SHORT_ATTEMPTS", 12),
			LongInterval:  getenvDuration("POLL_LONG_INTERVAL", 30*time.Second),
			MaxAttempts:   getenvIntDefault("POLL_MAX_ATTEMPTS", 40),
		},
		FallbackWindow:  getenvDuration("FALLBACK_WINDOW", 90*time.Second),
		BalanceFailOpen: getenvBoolDefault("BALANCE_FAIL_OPEN", true),
		Fees: FeeEstimate{
			SenderFeePercent:   getenvDecimalDefault("FEE_SENDER_PERCENT", decimal.RequireFromString("0.5")),
			TransactionFeeFlat: getenvDecimalDefault("FEE_TRANSACTION_FLAT", decimal.RequireFromString("0.05")),
		},
	}

	if path := os.Getenv("RECONCILE_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks bounds.
func (c Config) Validate() error {
	if c.Poll.ShortInterval <= 0 || c.Poll.LongInterval <= 0 {
		return errors.New("reconcile config: poll intervals must be positive")
	}
	if c.Poll.MaxAttempts <= 0 {
		return errors.New("reconcile config: max attempts must be positive")
	}
	if c.Poll.ShortAttempts < 0 || c.Poll.ShortAttempts > c.Poll.MaxAttempts {
		return errors.New("reconcile config: short attempts out of range")
	}
	if c.FallbackWindow <= 0 {
		return errors.New("reconcile config: fallback window must be positive")
	}
	if c.Fees.SenderFeePercent.IsNegative() || c.Fees.TransactionFeeFlat.IsNegative() {
		return errors.New("reconcile config: negative fee estimate")
	}
	return nil
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvBoolDefault(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDecimalDefault(key string, fallback decimal.Decimal) decimal.Decimal {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := decimal.NewFromString(value)
	if err != nil {
		return fallback
	}
	return parsed
}
