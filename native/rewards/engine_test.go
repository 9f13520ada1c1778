package rewards

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/renaultluk/sweat-coin/core/types"
	"github.com/renaultluk/sweat-coin/native/ledger"
	"github.com/renaultluk/sweat-coin/storage"
)

type captureEmitter struct {
	events []*types.Event
}

func (c *captureEmitter) Emit(evt *types.Event) { c.events = append(c.events, evt) }

func addr(b byte) common.Address {
	var a common.Address
	a[19] = b
	return a
}

func sweat(units int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(units), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

type fixture struct {
	ledger  *ledger.Ledger
	engine  *Engine
	emitter *captureEmitter
	oracle  common.Address
	admin   common.Address
	now     time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := storage.NewMemDB()
	emitter := &captureEmitter{}
	l, err := ledger.New(store, emitter)
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	admin, oracle, engineAddr := addr(1), addr(2), addr(3)
	if err := l.Bootstrap(admin); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if err := l.GrantRole(admin, engineAddr, ledger.RoleMinter); err != nil {
		t.Fatalf("grant minter: %v", err)
	}
	engine, err := NewEngine(engineAddr, l, store, emitter, oracle)
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	f := &fixture{ledger: l, engine: engine, emitter: emitter, oracle: oracle, admin: admin, now: time.Unix(1_700_000_000, 0)}
	engine.SetClock(func() time.Time { return f.now })
	return f
}

func (f *fixture) advance(seconds int64) {
	f.now = f.now.Add(time.Duration(seconds) * time.Second)
}

func TestRewardScenarios(t *testing.T) {
	cases := []struct {
		name      string
		steps     uint64
		goodSleep bool
		exercise  uint64
		want      *big.Int
	}{
		{"steps only", 5000, false, 0, sweat(5)},
		{"sleep only", 0, true, 0, sweat(5)},
		{"exercise only", 0, false, 60, sweat(20)},
		{"all combined", 10000, true, 90, sweat(45)},
		{"steps below threshold", 500, false, 0, sweat(0)},
		{"exercise below threshold", 0, false, 20, sweat(0)},
		{"fractional steps floor", 5999, false, 0, sweat(5)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			user := addr(10)
			reward, err := f.engine.SubmitHealthData(f.oracle, user, tc.steps, tc.goodSleep, tc.exercise)
			if err != nil {
				t.Fatalf("submit: %v", err)
			}
			if reward.Cmp(tc.want) != 0 {
				t.Fatalf("reward = %s, want %s", reward, tc.want)
			}
			if got := f.ledger.BalanceOf(user); got.Cmp(tc.want) != 0 {
				t.Fatalf("balance = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestOracleGate(t *testing.T) {
	f := newFixture(t)
	user := addr(10)
	if _, err := f.engine.SubmitHealthData(user, user, 5000, false, 0); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	// An account holding the oracle role on the ledger may also submit.
	delegate := addr(11)
	if err := f.ledger.GrantRole(f.admin, delegate, ledger.RoleOracle); err != nil {
		t.Fatalf("grant oracle: %v", err)
	}
	if _, err := f.engine.SubmitHealthData(delegate, user, 5000, false, 0); err != nil {
		t.Fatalf("submit via role holder: %v", err)
	}
}

func TestSelfReportedBypassesOracleOnly(t *testing.T) {
	f := newFixture(t)
	user := addr(10)
	reward, err := f.engine.SubmitSelfReportedData(user, 5000, false, 0)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if reward.Cmp(sweat(5)) != 0 {
		t.Fatalf("reward = %s, want 5 SWEAT", reward)
	}
}

func TestCooldown(t *testing.T) {
	f := newFixture(t)
	user := addr(10)
	if _, err := f.engine.SubmitHealthData(f.oracle, user, 5000, false, 0); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	balance := f.ledger.BalanceOf(user)
	agg, _, err := f.engine.GetDailyAggregate(f.engine.CurrentDay())
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}

	f.advance(1)
	if _, err := f.engine.SubmitHealthData(f.oracle, user, 5000, false, 0); !errors.Is(err, ErrCooldownNotElapsed) {
		t.Fatalf("expected ErrCooldownNotElapsed, got %v", err)
	}
	// A rejected submission leaves balance and aggregate untouched.
	if got := f.ledger.BalanceOf(user); got.Cmp(balance) != 0 {
		t.Fatalf("balance changed on rejection: %s", got)
	}
	after, _, err := f.engine.GetDailyAggregate(f.engine.CurrentDay())
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if after != agg {
		t.Fatalf("aggregate changed on rejection: %+v vs %+v", after, agg)
	}

	f.advance(3600)
	if _, err := f.engine.SubmitHealthData(f.oracle, user, 5000, false, 0); err != nil {
		t.Fatalf("submit after cooldown: %v", err)
	}
	if got := f.ledger.BalanceOf(user); got.Cmp(sweat(10)) != 0 {
		t.Fatalf("balance = %s, want 10 SWEAT", got)
	}
}

func TestZeroRewardStillAggregates(t *testing.T) {
	f := newFixture(t)
	user := addr(10)
	reward, err := f.engine.SubmitHealthData(f.oracle, user, 500, false, 20)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if reward.Sign() != 0 {
		t.Fatalf("reward = %s, want 0", reward)
	}
	agg, exists, err := f.engine.GetDailyAggregate(f.engine.CurrentDay())
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if !exists || agg.EntryCount != 1 || agg.TotalSteps != 500 || agg.TotalExerciseMinutes != 20 {
		t.Fatalf("unexpected aggregate %+v exists=%v", agg, exists)
	}
	// Zero-reward acceptance still starts the cooldown.
	f.advance(1)
	if _, err := f.engine.SubmitHealthData(f.oracle, user, 500, false, 0); !errors.Is(err, ErrCooldownNotElapsed) {
		t.Fatalf("expected ErrCooldownNotElapsed, got %v", err)
	}
}

func TestRangeAggregation(t *testing.T) {
	f := newFixture(t)
	startDay := f.engine.CurrentDay()
	// Day 0: two users. Day 2: one user. Day 1 stays empty.
	if _, err := f.engine.SubmitHealthData(f.oracle, addr(10), 4000, true, 30); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := f.engine.SubmitHealthData(f.oracle, addr(11), 2000, false, 0); err != nil {
		t.Fatalf("submit: %v", err)
	}
	f.advance(2 * SecondsPerDay)
	if _, err := f.engine.SubmitHealthData(f.oracle, addr(10), 6000, true, 60); err != nil {
		t.Fatalf("submit day 2: %v", err)
	}

	rangeAgg, err := f.engine.GetAggregatedDataForRange(startDay, startDay+2)
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	if rangeAgg.TotalSteps != 12000 || rangeAgg.TotalEntries != 3 || rangeAgg.UniqueDays != 2 {
		t.Fatalf("unexpected range %+v", rangeAgg)
	}
	if rangeAgg.TotalSleepMinutes != 2*GoodSleepMinutes || rangeAgg.TotalExerciseMinutes != 90 {
		t.Fatalf("unexpected sleep/exercise in %+v", rangeAgg)
	}

	averages, err := f.engine.GetAverageMetricsForRange(startDay, startDay+2)
	if err != nil {
		t.Fatalf("averages: %v", err)
	}
	if averages.AverageSteps != 4000 || averages.AverageExerciseMinutes != 30 {
		t.Fatalf("unexpected averages %+v", averages)
	}

	if _, err := f.engine.GetAggregatedDataForRange(startDay+2, startDay); !errors.Is(err, ErrInvalidPeriod) {
		t.Fatalf("expected ErrInvalidPeriod, got %v", err)
	}

	empty, err := f.engine.GetAverageMetricsForRange(startDay+10, startDay+20)
	if err != nil {
		t.Fatalf("empty averages: %v", err)
	}
	if empty.AverageSteps != 0 || empty.TotalEntries != 0 {
		t.Fatalf("expected zero averages, got %+v", empty)
	}
}

func TestAdminParamUpdates(t *testing.T) {
	f := newFixture(t)
	outsider := addr(9)
	if err := f.engine.UpdateOracle(outsider, addr(8)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := f.engine.UpdateOracle(f.admin, common.Address{}); !errors.Is(err, ErrZeroAddress) {
		t.Fatalf("expected ErrZeroAddress, got %v", err)
	}
	newOracle := addr(8)
	if err := f.engine.UpdateOracle(f.admin, newOracle); err != nil {
		t.Fatalf("update oracle: %v", err)
	}
	if _, err := f.engine.SubmitHealthData(f.oracle, addr(10), 5000, false, 0); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("old oracle should be rejected, got %v", err)
	}
	if _, err := f.engine.SubmitHealthData(newOracle, addr(10), 5000, false, 0); err != nil {
		t.Fatalf("new oracle rejected: %v", err)
	}

	if err := f.engine.UpdateRewardRates(f.admin, sweat(2), sweat(10), sweat(15)); err != nil {
		t.Fatalf("update rates: %v", err)
	}
	f.advance(3601)
	reward, err := f.engine.SubmitHealthData(newOracle, addr(10), 1000, true, 30)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	want := sweat(2 + 10 + 15)
	if reward.Cmp(want) != 0 {
		t.Fatalf("reward = %s, want %s", reward, want)
	}
}

func TestRewardEventPayload(t *testing.T) {
	f := newFixture(t)
	f.emitter.events = nil
	if _, err := f.engine.SubmitHealthData(f.oracle, addr(10), 5000, true, 60); err != nil {
		t.Fatalf("submit: %v", err)
	}
	var issued, aggregated *types.Event
	for _, evt := range f.emitter.events {
		switch evt.Type {
		case EventTypeRewardIssued:
			issued = evt
		case EventTypeAggregateUpdated:
			aggregated = evt
		}
	}
	if issued == nil || aggregated == nil {
		t.Fatalf("missing events, got %d", len(f.emitter.events))
	}
	if issued.Attributes["amount"] != sweat(30).String() || issued.Attributes["reason"] != "Daily health activities" {
		t.Fatalf("unexpected reward event %+v", issued.Attributes)
	}
	if aggregated.Attributes["entryCount"] != "1" || aggregated.Attributes["totalSteps"] != "5000" {
		t.Fatalf("unexpected aggregate event %+v", aggregated.Attributes)
	}
}
