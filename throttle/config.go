package throttle

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/quartzledger/quartz/types"
)

type (
	// BucketDefinition declares one named token bucket and the transaction
	// kinds it meters.
	BucketDefinition struct {
		Name         string   `yaml:"name"`
		OpsPerSec    uint64   `yaml:"opsPerSec"`
		BurstSeconds uint64   `yaml:"burstSeconds"`
		Kinds        []string `yaml:"kinds"`
	}

	GasDefinition struct {
		GasPerSec    uint64 `yaml:"gasPerSec"`
		BurstSeconds uint64 `yaml:"burstSeconds"`
	}

	FrontendDefinition struct {
		CreationsPerSec uint64 `yaml:"creationsPerSec"`
		BurstSeconds    uint64 `yaml:"burstSeconds"`
	}

	// Config is the throttle definition set, loadable from YAML.
	Config struct {
		Buckets  []BucketDefinition `yaml:"buckets"`
		Gas      GasDefinition      `yaml:"gas"`
		Frontend FrontendDefinition `yaml:"frontend"`
	}
)

var kindsByName = map[string]types.TransactionKind{
	"CRYPTO_TRANSFER":   types.KindCryptoTransfer,
	"CRYPTO_CREATE":     types.KindCryptoCreate,
	"CRYPTO_UPDATE":     types.KindCryptoUpdate,
	"TOKEN_ASSOCIATE":   types.KindTokenAssociate,
	"TOKEN_TRANSFER":    types.KindTokenTransfer,
	"CONTRACT_CALL":     types.KindContractCall,
	"CONTRACT_CREATE":   types.KindContractCreate,
	"ETHEREUM_TX":       types.KindEthereumTx,
	"SCHEDULE_CREATE":   types.KindScheduleCreate,
	"SCHEDULE_SIGN":     types.KindScheduleSign,
	"NODE_STAKE_UPDATE": types.KindNodeStakeUpdate,
	"FILE_UPDATE":       types.KindFileUpdate,
	"FREEZE":            types.KindFreeze,
}

func ParseConfig(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("decoding throttle config: %w", err)
	}
	if err := cfg.IsValid(); err != nil {
		return nil, fmt.Errorf("invalid throttle config: %w", err)
	}
	return cfg, nil
}

func (c *Config) IsValid() error {
	seen := map[string]struct{}{}
	for _, b := range c.Buckets {
		if b.Name == "" {
			return fmt.Errorf("bucket name must be assigned")
		}
		if _, ok := seen[b.Name]; ok {
			return fmt.Errorf("duplicate bucket name %q", b.Name)
		}
		seen[b.Name] = struct{}{}
		if b.OpsPerSec == 0 {
			return fmt.Errorf("bucket %q: opsPerSec must be greater than zero", b.Name)
		}
		for _, k := range b.Kinds {
			if _, ok := kindsByName[k]; !ok {
				return fmt.Errorf("bucket %q: unknown transaction kind %q", b.Name, k)
			}
		}
	}
	if c.Gas.GasPerSec == 0 {
		return fmt.Errorf("gas throttle gasPerSec must be greater than zero")
	}
	return nil
}

// DefaultConfig returns the throttle definitions used when no configuration
// file is provided.
func DefaultConfig() *Config {
	return &Config{
		Buckets: []BucketDefinition{
			{
				Name:         "crypto",
				OpsPerSec:    10_000,
				BurstSeconds: 1,
				Kinds:        []string{"CRYPTO_TRANSFER", "CRYPTO_CREATE", "CRYPTO_UPDATE"},
			},
			{
				Name:         "tokens",
				OpsPerSec:    3_000,
				BurstSeconds: 1,
				Kinds:        []string{"TOKEN_ASSOCIATE", "TOKEN_TRANSFER"},
			},
			{
				Name:         "contracts",
				OpsPerSec:    350,
				BurstSeconds: 1,
				Kinds:        []string{"CONTRACT_CALL", "CONTRACT_CREATE", "ETHEREUM_TX"},
			},
			{
				Name:         "misc",
				OpsPerSec:    100,
				BurstSeconds: 1,
				Kinds:        []string{"SCHEDULE_CREATE", "SCHEDULE_SIGN", "FILE_UPDATE", "FREEZE", "NODE_STAKE_UPDATE"},
			},
		},
		Gas:      GasDefinition{GasPerSec: 15_000_000, BurstSeconds: 1},
		Frontend: FrontendDefinition{CreationsPerSec: 2, BurstSeconds: 1},
	}
}
