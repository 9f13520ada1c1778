package marketplace

import (
	"math/big"
)

// Dataset is a priced, purchasable snapshot description backed by an
// aggregate range. Immutable after creation except IsActive and
// PurchaseCount; never deleted.
type Dataset struct {
	ID                     uint64
	Title                  string
	UserCount              uint64
	StartTimestamp         uint64
	EndTimestamp           uint64
	Price                  *big.Int
	IsActive               bool
	CreatedAt              uint64
	AverageDailySteps      uint64
	AverageSleepMinutes    uint64
	AverageExerciseMinutes uint64
	MinAge                 uint32
	MaxAge                 uint32
	Region                 string
	DataLocation           string
	PurchaseCount          uint64
}

// Clone returns a deep copy so callers cannot mutate the stored price.
func (d *Dataset) Clone() *Dataset {
	if d == nil {
		return nil
	}
	clone := *d
	if d.Price != nil {
		clone.Price = new(big.Int).Set(d.Price)
	}
	return &clone
}

// Preview summarises what an aggregated dataset over a period would contain,
// without creating any state.
type Preview struct {
	AverageDailySteps      uint64
	AverageSleepMinutes    uint64
	AverageExerciseMinutes uint64
	TotalEntries           uint64
	UniqueDays             uint64
	EstimatedUserCount     uint64
	Price                  *big.Int
}

// Pricing holds the admin-tunable dataset price curve, denominated in native
// currency wei.
type Pricing struct {
	BasePrice           *big.Int
	PricePer1000Entries *big.Int
}

// DefaultPricing returns the launch curve: 0.01 ETH base plus 0.001 ETH per
// thousand aggregated entries.
func DefaultPricing() Pricing {
	return Pricing{
		BasePrice:           new(big.Int).Exp(big.NewInt(10), big.NewInt(16), nil),
		PricePer1000Entries: new(big.Int).Exp(big.NewInt(10), big.NewInt(15), nil),
	}
}

type storedDataset struct {
	ID                     uint64
	Title                  string
	UserCount              uint64
	StartTimestamp         uint64
	EndTimestamp           uint64
	Price                  *big.Int
	IsActive               bool
	CreatedAt              uint64
	AverageDailySteps      uint64
	AverageSleepMinutes    uint64
	AverageExerciseMinutes uint64
	MinAge                 uint32
	MaxAge                 uint32
	Region                 string
	DataLocation           string
	PurchaseCount          uint64
}

type storedPricing struct {
	BasePrice           *big.Int
	PricePer1000Entries *big.Int
}

type storedPurchase struct {
	Timestamp uint64
}
