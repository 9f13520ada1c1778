package rewards

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

const (
	// Cooldown is the minimum interval between accepted submissions per user.
	Cooldown = 3600 // seconds

	// SecondsPerDay converts unix timestamps into aggregate day indices.
	SecondsPerDay = 86400

	// StepsPerUnit and ExerciseMinutesPerUnit are the floor-division
	// thresholds of the reward formula.
	StepsPerUnit           = 1000
	ExerciseMinutesPerUnit = 30

	// GoodSleepMinutes is the sleep credit recorded into the day bucket for
	// a report flagging good sleep (eight hours).
	GoodSleepMinutes = 480
)

// DailyAggregate is the accumulated bucket for one day index. Buckets only
// ever accumulate for the current day; past days are immutable.
type DailyAggregate struct {
	Day                  uint64
	TotalSteps           uint64
	TotalSleepMinutes    uint64
	TotalExerciseMinutes uint64
	EntryCount           uint64
}

// RangeAggregate sums daily buckets across a closed [StartDay, EndDay]
// interval. UniqueDays counts the days in range that hold at least one entry.
type RangeAggregate struct {
	StartDay             uint64
	EndDay               uint64
	TotalSteps           uint64
	TotalSleepMinutes    uint64
	TotalExerciseMinutes uint64
	TotalEntries         uint64
	UniqueDays           uint64
}

// Averages derives the per-entry averages for the range. Zero entries
// yields zero averages rather than a division error.
func (a RangeAggregate) Averages() AverageMetrics {
	metrics := AverageMetrics{TotalEntries: a.TotalEntries, UniqueDays: a.UniqueDays}
	if a.TotalEntries == 0 {
		return metrics
	}
	metrics.AverageSteps = a.TotalSteps / a.TotalEntries
	metrics.AverageSleepMinutes = a.TotalSleepMinutes / a.TotalEntries
	metrics.AverageExerciseMinutes = a.TotalExerciseMinutes / a.TotalEntries
	return metrics
}

// AverageMetrics reports per-entry averages for a range.
type AverageMetrics struct {
	AverageSteps           uint64
	AverageSleepMinutes    uint64
	AverageExerciseMinutes uint64
	TotalEntries           uint64
	UniqueDays             uint64
}

// Params holds the admin-tunable reward configuration.
type Params struct {
	StepsRate     *big.Int
	SleepRate     *big.Int
	ExerciseRate  *big.Int
	TrustedOracle common.Address
}

// DefaultParams returns the launch reward rates: 1 SWEAT per 1000 steps,
// 5 SWEAT flat for good sleep, 10 SWEAT per 30 exercise minutes.
func DefaultParams(oracle common.Address) Params {
	unit := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	return Params{
		StepsRate:     new(big.Int).Set(unit),
		SleepRate:     new(big.Int).Mul(big.NewInt(5), unit),
		ExerciseRate:  new(big.Int).Mul(big.NewInt(10), unit),
		TrustedOracle: oracle,
	}
}

// Clone returns a deep copy so callers cannot mutate shared rate pointers.
func (p Params) Clone() Params {
	clone := Params{TrustedOracle: p.TrustedOracle}
	if p.StepsRate != nil {
		clone.StepsRate = new(big.Int).Set(p.StepsRate)
	}
	if p.SleepRate != nil {
		clone.SleepRate = new(big.Int).Set(p.SleepRate)
	}
	if p.ExerciseRate != nil {
		clone.ExerciseRate = new(big.Int).Set(p.ExerciseRate)
	}
	return clone
}

type storedParams struct {
	StepsRate     *big.Int
	SleepRate     *big.Int
	ExerciseRate  *big.Int
	TrustedOracle common.Address
}

type storedAggregate struct {
	TotalSteps           uint64
	TotalSleepMinutes    uint64
	TotalExerciseMinutes uint64
	EntryCount           uint64
}
