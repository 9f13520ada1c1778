package treasury

import "math/big"

// Config is the treasury's admin-tunable parameter set. The three split
// percentages always sum to 100; every setter enforces it.
type Config struct {
	DefaultMerchantSubsidyWei *big.Int
	TreasurySweatFeePct       uint32
	BurnRatePct               uint32
	MerchantSweatPct          uint32
	PegBandBps                uint32
	TradeFractionBps          uint32
}

// DefaultConfig returns the launch configuration: 0.01 ETH subsidy, a
// 50/30/20 burn/merchant/fee split, a 5% peg band and 10% of reserve per
// stabilization trade.
func DefaultConfig() Config {
	return Config{
		DefaultMerchantSubsidyWei: new(big.Int).Exp(big.NewInt(10), big.NewInt(16), nil),
		TreasurySweatFeePct:       20,
		BurnRatePct:               50,
		MerchantSweatPct:          30,
		PegBandBps:                500,
		TradeFractionBps:          1000,
	}
}

// Clone returns a deep copy of the configuration.
func (c Config) Clone() Config {
	clone := c
	if c.DefaultMerchantSubsidyWei != nil {
		clone.DefaultMerchantSubsidyWei = new(big.Int).Set(c.DefaultMerchantSubsidyWei)
	}
	return clone
}

func (c Config) splitSumsTo100() bool {
	return c.TreasurySweatFeePct+c.BurnRatePct+c.MerchantSweatPct == 100
}

type storedConfig struct {
	DefaultMerchantSubsidyWei *big.Int
	TreasurySweatFeePct       uint32
	BurnRatePct               uint32
	MerchantSweatPct          uint32
	PegBandBps                uint32
	TradeFractionBps          uint32
}
