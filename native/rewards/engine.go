package rewards

import (
	"encoding/binary"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/renaultluk/sweat-coin/core/events"
	"github.com/renaultluk/sweat-coin/native/ledger"
	"github.com/renaultluk/sweat-coin/observability"
	"github.com/renaultluk/sweat-coin/storage"
)

var (
	paramsKey        = []byte("rewards/params")
	lastRewardPrefix = []byte("rewards/last/")
	dayBucketPrefix  = []byte("rewards/day/")
)

// Token is the slice of ledger functionality the reward engine needs.
type Token interface {
	Mint(caller, to common.Address, amount *big.Int) error
	HasRole(account common.Address, role ledger.Role) bool
}

// Engine accepts health activity reports, mints SWEAT rewards, and maintains
// the day-bucketed aggregate that backs dataset pricing.
type Engine struct {
	mu      sync.RWMutex
	addr    common.Address
	token   Token
	store   storage.Database
	emitter events.Emitter
	metrics *observability.RewardMetrics
	clock   func() time.Time
}

// NewEngine wires the engine. addr is the engine's own account, which must
// hold the minter role on the ledger. The trusted oracle defaults from params
// on first start and persists across restarts thereafter.
func NewEngine(addr common.Address, token Token, store storage.Database, emitter events.Emitter, oracle common.Address) (*Engine, error) {
	if token == nil || store == nil {
		return nil, fmt.Errorf("rewards: token and storage required")
	}
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	e := &Engine{
		addr:    addr,
		token:   token,
		store:   store,
		emitter: emitter,
		metrics: observability.Rewards(),
		clock:   time.Now,
	}
	if _, err := e.loadParams(); err != nil {
		if err != storage.ErrNotFound {
			return nil, err
		}
		if err := e.putParams(DefaultParams(oracle)); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// SetClock overrides the engine's time source. Tests only.
func (e *Engine) SetClock(clock func() time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.clock = clock
}

// SubmitHealthData records an oracle-verified activity report for user.
func (e *Engine) SubmitHealthData(caller, user common.Address, steps uint64, goodSleep bool, exerciseMinutes uint64) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	params, err := e.loadParams()
	if err != nil {
		return nil, err
	}
	if caller != params.TrustedOracle && !e.token.HasRole(caller, ledger.RoleOracle) {
		e.metrics.Record("unauthorized")
		return nil, ErrUnauthorized
	}
	return e.submit(params, user, steps, goodSleep, exerciseMinutes)
}

// SubmitSelfReportedData records a report the user vouches for themselves.
// Same computation, no oracle trust attached.
func (e *Engine) SubmitSelfReportedData(user common.Address, steps uint64, goodSleep bool, exerciseMinutes uint64) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	params, err := e.loadParams()
	if err != nil {
		return nil, err
	}
	return e.submit(params, user, steps, goodSleep, exerciseMinutes)
}

func (e *Engine) submit(params Params, user common.Address, steps uint64, goodSleep bool, exerciseMinutes uint64) (*big.Int, error) {
	now := e.clock().Unix()
	last, ok, err := e.lastRewardTimestamp(user)
	if err != nil {
		return nil, err
	}
	if ok && now-last < Cooldown {
		e.metrics.Record("cooldown")
		return nil, ErrCooldownNotElapsed
	}

	reward := computeReward(params, steps, goodSleep, exerciseMinutes)
	if reward.Sign() > 0 {
		if err := e.token.Mint(e.addr, user, reward); err != nil {
			e.metrics.Record("mint_failed")
			return nil, fmt.Errorf("rewards: mint: %w", err)
		}
		e.emitter.Emit(newRewardIssuedEvent(user, reward))
	}

	// Sub-threshold data still aggregates; only a cooldown rejection skips
	// the bucket.
	day := uint64(now) / SecondsPerDay
	bucket, err := e.loadBucket(day)
	if err != nil {
		return nil, err
	}
	bucket.TotalSteps += steps
	if goodSleep {
		bucket.TotalSleepMinutes += GoodSleepMinutes
	}
	bucket.TotalExerciseMinutes += exerciseMinutes
	bucket.EntryCount++
	if err := e.putBucket(day, bucket); err != nil {
		return nil, err
	}
	e.emitter.Emit(newAggregateUpdatedEvent(day, bucket))

	if err := e.putLastRewardTimestamp(user, now); err != nil {
		return nil, err
	}
	e.metrics.Record("accepted")
	return reward, nil
}

func computeReward(params Params, steps uint64, goodSleep bool, exerciseMinutes uint64) *big.Int {
	reward := new(big.Int)
	if steps >= StepsPerUnit {
		units := new(big.Int).SetUint64(steps / StepsPerUnit)
		reward.Add(reward, units.Mul(units, params.StepsRate))
	}
	if goodSleep {
		reward.Add(reward, params.SleepRate)
	}
	if exerciseMinutes >= ExerciseMinutesPerUnit {
		units := new(big.Int).SetUint64(exerciseMinutes / ExerciseMinutesPerUnit)
		reward.Add(reward, units.Mul(units, params.ExerciseRate))
	}
	return reward
}

// UpdateOracle replaces the trusted oracle address. Admin only.
func (e *Engine) UpdateOracle(caller, oracle common.Address) error {
	if oracle == (common.Address{}) {
		return ErrZeroAddress
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.token.HasRole(caller, ledger.RoleAdmin) {
		return ErrUnauthorized
	}
	params, err := e.loadParams()
	if err != nil {
		return err
	}
	params.TrustedOracle = oracle
	return e.putParams(params)
}

// UpdateRewardRates replaces the three reward rates. Admin only.
func (e *Engine) UpdateRewardRates(caller common.Address, stepsRate, sleepRate, exerciseRate *big.Int) error {
	if stepsRate == nil || sleepRate == nil || exerciseRate == nil ||
		stepsRate.Sign() < 0 || sleepRate.Sign() < 0 || exerciseRate.Sign() < 0 {
		return fmt.Errorf("rewards: rates must be non-negative")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.token.HasRole(caller, ledger.RoleAdmin) {
		return ErrUnauthorized
	}
	params, err := e.loadParams()
	if err != nil {
		return err
	}
	params.StepsRate = new(big.Int).Set(stepsRate)
	params.SleepRate = new(big.Int).Set(sleepRate)
	params.ExerciseRate = new(big.Int).Set(exerciseRate)
	return e.putParams(params)
}

// GetParams returns the current reward configuration.
func (e *Engine) GetParams() (Params, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	params, err := e.loadParams()
	if err != nil {
		return Params{}, err
	}
	return params.Clone(), nil
}

// CurrentDay returns the day index of the engine's clock.
func (e *Engine) CurrentDay() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return uint64(e.clock().Unix()) / SecondsPerDay
}

// Now returns the engine clock's current unix time.
func (e *Engine) Now() int64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.clock().Unix()
}

// GetDailyAggregate returns the bucket for a day index. The second return
// reports whether any entry exists for that day.
func (e *Engine) GetDailyAggregate(day uint64) (DailyAggregate, bool, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	bucket, err := e.loadBucket(day)
	if err != nil {
		return DailyAggregate{}, false, err
	}
	aggregate := DailyAggregate{
		Day:                  day,
		TotalSteps:           bucket.TotalSteps,
		TotalSleepMinutes:    bucket.TotalSleepMinutes,
		TotalExerciseMinutes: bucket.TotalExerciseMinutes,
		EntryCount:           bucket.EntryCount,
	}
	return aggregate, bucket.EntryCount > 0, nil
}

// GetAggregatedDataForRange sums buckets across the closed [startDay, endDay]
// interval.
func (e *Engine) GetAggregatedDataForRange(startDay, endDay uint64) (RangeAggregate, error) {
	if startDay > endDay {
		return RangeAggregate{}, ErrInvalidPeriod
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	rangeAgg := RangeAggregate{StartDay: startDay, EndDay: endDay}
	for day := startDay; day <= endDay; day++ {
		bucket, err := e.loadBucket(day)
		if err != nil {
			return RangeAggregate{}, err
		}
		if bucket.EntryCount == 0 {
			continue
		}
		rangeAgg.TotalSteps += bucket.TotalSteps
		rangeAgg.TotalSleepMinutes += bucket.TotalSleepMinutes
		rangeAgg.TotalExerciseMinutes += bucket.TotalExerciseMinutes
		rangeAgg.TotalEntries += bucket.EntryCount
		rangeAgg.UniqueDays++
	}
	return rangeAgg, nil
}

// GetAverageMetricsForRange divides the range totals by entry count,
// returning zeros for an empty range.
func (e *Engine) GetAverageMetricsForRange(startDay, endDay uint64) (AverageMetrics, error) {
	rangeAgg, err := e.GetAggregatedDataForRange(startDay, endDay)
	if err != nil {
		return AverageMetrics{}, err
	}
	return rangeAgg.Averages(), nil
}

func (e *Engine) loadParams() (Params, error) {
	raw, err := e.store.Get(paramsKey)
	if err != nil {
		return Params{}, err
	}
	var stored storedParams
	if err := rlp.DecodeBytes(raw, &stored); err != nil {
		return Params{}, fmt.Errorf("rewards: decode params: %w", err)
	}
	return Params{
		StepsRate:     stored.StepsRate,
		SleepRate:     stored.SleepRate,
		ExerciseRate:  stored.ExerciseRate,
		TrustedOracle: stored.TrustedOracle,
	}, nil
}

func (e *Engine) putParams(params Params) error {
	stored := storedParams{
		StepsRate:     params.StepsRate,
		SleepRate:     params.SleepRate,
		ExerciseRate:  params.ExerciseRate,
		TrustedOracle: params.TrustedOracle,
	}
	encoded, err := rlp.EncodeToBytes(stored)
	if err != nil {
		return err
	}
	return e.store.Put(paramsKey, encoded)
}

func (e *Engine) lastRewardTimestamp(user common.Address) (int64, bool, error) {
	raw, err := e.store.Get(lastRewardKey(user))
	if err != nil {
		if err == storage.ErrNotFound {
			return 0, false, nil
		}
		return 0, false, err
	}
	var ts uint64
	if err := rlp.DecodeBytes(raw, &ts); err != nil {
		return 0, false, fmt.Errorf("rewards: decode timestamp: %w", err)
	}
	return int64(ts), true, nil
}

func (e *Engine) putLastRewardTimestamp(user common.Address, now int64) error {
	encoded, err := rlp.EncodeToBytes(uint64(now))
	if err != nil {
		return err
	}
	return e.store.Put(lastRewardKey(user), encoded)
}

func (e *Engine) loadBucket(day uint64) (*storedAggregate, error) {
	raw, err := e.store.Get(dayKey(day))
	if err != nil {
		if err == storage.ErrNotFound {
			return &storedAggregate{}, nil
		}
		return nil, err
	}
	var bucket storedAggregate
	if err := rlp.DecodeBytes(raw, &bucket); err != nil {
		return nil, fmt.Errorf("rewards: decode day %d: %w", day, err)
	}
	return &bucket, nil
}

func (e *Engine) putBucket(day uint64, bucket *storedAggregate) error {
	encoded, err := rlp.EncodeToBytes(bucket)
	if err != nil {
		return err
	}
	return e.store.Put(dayKey(day), encoded)
}

func lastRewardKey(user common.Address) []byte {
	return append(append([]byte{}, lastRewardPrefix...), user.Bytes()...)
}

func dayKey(day uint64) []byte {
	key := make([]byte, len(dayBucketPrefix)+8)
	copy(key, dayBucketPrefix)
	binary.BigEndian.PutUint64(key[len(dayBucketPrefix):], day)
	return key
}
