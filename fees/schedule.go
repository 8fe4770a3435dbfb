package fees

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/quartzledger/quartz/types"
)

type (
	// Price is the base price of one transaction kind, split into the
	// node/network/service components, denominated in microcent.
	Price struct {
		Node    uint64 `yaml:"node"`
		Network uint64 `yaml:"network"`
		Service uint64 `yaml:"service"`
	}

	// Schedule holds the fee schedule: base prices per kind plus the unit
	// prices of the resource-usage profile (payload bytes, signatures).
	Schedule struct {
		Prices       map[string]Price `yaml:"prices"`
		DefaultPrice Price            `yaml:"defaultPrice"`
		BytePrice    uint64           `yaml:"bytePrice"`
		SigPrice     uint64           `yaml:"sigPrice"`
	}

	// ExchangeRate converts microcent prices into the ledger's native unit.
	ExchangeRate struct {
		CoinEquiv uint64 `yaml:"coinEquiv"`
		CentEquiv uint64 `yaml:"centEquiv"`
	}
)

func ParseSchedule(data []byte) (*Schedule, error) {
	s := &Schedule{}
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("decoding fee schedule: %w", err)
	}
	return s, nil
}

func (s *Schedule) priceFor(kind types.TransactionKind) Price {
	if p, ok := s.Prices[kind.String()]; ok {
		return p
	}
	return s.DefaultPrice
}

// ToCoin converts a microcent amount using floor division. The rounding
// mode is part of the consensus contract and must not change.
func (r ExchangeRate) ToCoin(microcent uint64) uint64 {
	if r.CentEquiv == 0 {
		return microcent
	}
	return microcent * r.CoinEquiv / r.CentEquiv
}

// DefaultSchedule returns the fee schedule used when no configuration file
// is provided.
func DefaultSchedule() *Schedule {
	return &Schedule{
		Prices: map[string]Price{
			types.KindCryptoTransfer.String():  {Node: 10, Network: 80, Service: 10},
			types.KindCryptoCreate.String():    {Node: 50, Network: 400, Service: 50},
			types.KindTokenAssociate.String():  {Node: 50, Network: 400, Service: 50},
			types.KindContractCall.String():    {Node: 100, Network: 700, Service: 200},
			types.KindContractCreate.String():  {Node: 100, Network: 700, Service: 200},
			types.KindEthereumTx.String():      {Node: 100, Network: 700, Service: 200},
			types.KindScheduleCreate.String():  {Node: 50, Network: 400, Service: 550},
			types.KindNodeStakeUpdate.String(): {Node: 0, Network: 0, Service: 0},
		},
		DefaultPrice: Price{Node: 10, Network: 80, Service: 10},
		BytePrice:    1,
		SigPrice:     5,
	}
}

func DefaultExchangeRate() ExchangeRate {
	return ExchangeRate{CoinEquiv: 30, CentEquiv: 1}
}
