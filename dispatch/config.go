package dispatch

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/quartzledger/quartz/fees"
	"github.com/quartzledger/quartz/record"
	"github.com/quartzledger/quartz/throttle"
)

// Config bundles the operator-tunable settings of the dispatch pipeline.
type Config struct {
	Records         record.Config     `yaml:"records"`
	Throttles       *throttle.Config  `yaml:"throttles"`
	FeeSchedule     *fees.Schedule    `yaml:"feeSchedule"`
	ExchangeRate    fees.ExchangeRate `yaml:"exchangeRate"`
	RecordCacheSize int               `yaml:"recordCacheSize"`
}

func DefaultConfig() *Config {
	return &Config{
		Records:         record.Config{MaxPrecedingRecords: 3, MaxChildRecords: 50},
		Throttles:       throttle.DefaultConfig(),
		FeeSchedule:     fees.DefaultSchedule(),
		ExchangeRate:    fees.DefaultExchangeRate(),
		RecordCacheSize: 25_000,
	}
}

// LoadConfig reads a YAML config file, filling unset sections with defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("decoding config file %s: %w", path, err)
	}
	if err := cfg.IsValid(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) IsValid() error {
	if c.Records.MaxPrecedingRecords < 0 || c.Records.MaxChildRecords < 0 {
		return fmt.Errorf("record limits must not be negative")
	}
	if c.Throttles != nil {
		if err := c.Throttles.IsValid(); err != nil {
			return err
		}
	}
	if c.RecordCacheSize <= 0 {
		return fmt.Errorf("record cache size must be positive")
	}
	if c.ExchangeRate.CoinEquiv == 0 || c.ExchangeRate.CentEquiv == 0 {
		return fmt.Errorf("exchange rate components must be positive")
	}
	return nil
}
