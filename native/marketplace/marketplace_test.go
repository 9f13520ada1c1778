package marketplace

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/renaultluk/sweat-coin/native/ledger"
	"github.com/renaultluk/sweat-coin/native/rewards"
	"github.com/renaultluk/sweat-coin/storage"
)

type fakeSink struct {
	received *big.Int
}

func (s *fakeSink) DepositNative(amount *big.Int) {
	if s.received == nil {
		s.received = big.NewInt(0)
	}
	s.received.Add(s.received, amount)
}

func addr(b byte) common.Address {
	var a common.Address
	a[19] = b
	return a
}

type fixture struct {
	market *Marketplace
	engine *rewards.Engine
	ledger *ledger.Ledger
	sink   *fakeSink
	admin  common.Address
	oracle common.Address
	now    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := storage.NewMemDB()
	l, err := ledger.New(store, nil)
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	admin, oracle, engineAddr := addr(1), addr(2), addr(3)
	if err := l.Bootstrap(admin); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if err := l.GrantRole(admin, engineAddr, ledger.RoleMinter); err != nil {
		t.Fatalf("grant: %v", err)
	}
	engine, err := rewards.NewEngine(engineAddr, l, store, nil, oracle)
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	f := &fixture{engine: engine, ledger: l, sink: &fakeSink{}, admin: admin, oracle: oracle, now: time.Unix(1_700_000_000, 0)}
	engine.SetClock(func() time.Time { return f.now })
	market, err := New(l, engine, f.sink, store, nil)
	if err != nil {
		t.Fatalf("marketplace: %v", err)
	}
	f.market = market
	return f
}

// seedEntries submits n accepted reports on the engine's current day, one
// user each so the cooldown never interferes.
func (f *fixture) seedEntries(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		user := common.BytesToAddress([]byte{0xA0, byte(i >> 8), byte(i)})
		if _, err := f.engine.SubmitHealthData(f.oracle, user, 2000, true, 30); err != nil {
			t.Fatalf("seed %d: %v", i, err)
		}
	}
}

func TestCalculatePriceCurve(t *testing.T) {
	f := newFixture(t)
	base := DefaultPricing().BasePrice
	per1000 := DefaultPricing().PricePer1000Entries

	price, err := f.market.CalculatePrice(0)
	if err != nil {
		t.Fatalf("price: %v", err)
	}
	if price.Cmp(base) != 0 {
		t.Fatalf("price(0) = %s, want base %s", price, base)
	}

	price, err = f.market.CalculatePrice(2500)
	if err != nil {
		t.Fatalf("price: %v", err)
	}
	want := new(big.Int).Add(base, new(big.Int).Mul(big.NewInt(2), per1000))
	if price.Cmp(want) != 0 {
		t.Fatalf("price(2500) = %s, want %s (floor division)", price, want)
	}
}

func TestCalculatePriceForPeriodDeterministic(t *testing.T) {
	f := newFixture(t)
	f.seedEntries(t, 3)
	start := uint64(f.now.Unix()) - rewards.SecondsPerDay
	end := uint64(f.now.Unix())

	first, err := f.market.CalculatePriceForPeriod(start, end)
	if err != nil {
		t.Fatalf("price: %v", err)
	}
	second, err := f.market.CalculatePriceForPeriod(start, end)
	if err != nil {
		t.Fatalf("price again: %v", err)
	}
	if first.Cmp(second) != 0 {
		t.Fatalf("price not deterministic: %s vs %s", first, second)
	}
	if _, err := f.market.CalculatePriceForPeriod(end, start); !errors.Is(err, ErrInvalidPeriod) {
		t.Fatalf("expected ErrInvalidPeriod, got %v", err)
	}
}

func TestPurchaseDatasetFlow(t *testing.T) {
	f := newFixture(t)
	price := big.NewInt(5_000_000)
	id, err := f.market.CreateDataset(f.admin, "EU cohort", 120, 1000, 2000, price, 18, 65, "EU", "ipfs://cohort")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if id != 1 {
		t.Fatalf("first dataset id = %d, want 1", id)
	}

	buyer := addr(7)
	if err := f.market.PurchaseDataset(buyer, id, big.NewInt(1)); !errors.Is(err, ErrIncorrectPayment) {
		t.Fatalf("expected ErrIncorrectPayment, got %v", err)
	}
	if err := f.market.PurchaseDataset(buyer, 99, price); !errors.Is(err, ErrDatasetNotFound) {
		t.Fatalf("expected ErrDatasetNotFound, got %v", err)
	}
	if err := f.market.PurchaseDataset(buyer, id, price); err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if f.sink.received == nil || f.sink.received.Cmp(price) != 0 {
		t.Fatalf("treasury received %s, want %s", f.sink.received, price)
	}

	// Second purchase of the same pair always fails, payment untouched.
	if err := f.market.PurchaseDataset(buyer, id, price); !errors.Is(err, ErrAlreadyPurchased) {
		t.Fatalf("expected ErrAlreadyPurchased, got %v", err)
	}
	if f.sink.received.Cmp(price) != 0 {
		t.Fatalf("treasury balance changed on rejected purchase: %s", f.sink.received)
	}

	dataset, err := f.market.GetDataset(id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if dataset.PurchaseCount != 1 {
		t.Fatalf("purchaseCount = %d, want 1", dataset.PurchaseCount)
	}
	ok, err := f.market.HasPurchasedDataset(buyer, id)
	if err != nil || !ok {
		t.Fatalf("hasPurchased: %v ok=%v", err, ok)
	}
	purchased, err := f.market.GetPurchasedDatasets(buyer)
	if err != nil || len(purchased) != 1 || purchased[0] != id {
		t.Fatalf("purchased list = %v, err %v", purchased, err)
	}
}

func TestPurchaseInactiveDataset(t *testing.T) {
	f := newFixture(t)
	price := big.NewInt(100)
	id, err := f.market.CreateDataset(f.admin, "ds", 1, 0, 1, price, 0, 0, "", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := f.market.SetDatasetActive(f.admin, id, false); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if err := f.market.PurchaseDataset(addr(7), id, price); !errors.Is(err, ErrDatasetInactive) {
		t.Fatalf("expected ErrDatasetInactive, got %v", err)
	}
	ids, err := f.market.GetActiveDatasetIDs()
	if err != nil {
		t.Fatalf("active ids: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("active ids = %v, want empty", ids)
	}
}

func TestPurchaseWithAggregation(t *testing.T) {
	f := newFixture(t)
	f.seedEntries(t, 4)
	start := uint64(f.now.Unix()) - rewards.SecondsPerDay
	end := uint64(f.now.Unix())

	price, err := f.market.CalculatePriceForPeriod(start, end)
	if err != nil {
		t.Fatalf("price: %v", err)
	}
	buyer := addr(7)

	// Caller-supplied payment must match the authoritative price.
	wrong := new(big.Int).Add(price, big.NewInt(1))
	if _, err := f.market.PurchaseDatasetWithAggregation(buyer, "week", start, end, wrong, 18, 65, "EU", "s3://bucket"); !errors.Is(err, ErrIncorrectPayment) {
		t.Fatalf("expected ErrIncorrectPayment, got %v", err)
	}

	id, err := f.market.PurchaseDatasetWithAggregation(buyer, "week", start, end, price, 18, 65, "EU", "s3://bucket")
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}
	dataset, err := f.market.GetDataset(id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !dataset.IsActive || dataset.PurchaseCount != 1 {
		t.Fatalf("unexpected dataset state %+v", dataset)
	}
	if dataset.AverageDailySteps != 2000 || dataset.AverageSleepMinutes != rewards.GoodSleepMinutes || dataset.AverageExerciseMinutes != 30 {
		t.Fatalf("averages not populated: %+v", dataset)
	}
	if dataset.UserCount != 4 {
		t.Fatalf("userCount = %d, want 4", dataset.UserCount)
	}
	ok, err := f.market.HasPurchasedDataset(buyer, id)
	if err != nil || !ok {
		t.Fatalf("purchase not recorded: %v ok=%v", err, ok)
	}
	if f.sink.received.Cmp(price) != 0 {
		t.Fatalf("treasury received %s, want %s", f.sink.received, price)
	}

	// Future windows are rejected.
	future := uint64(f.now.Unix()) + rewards.SecondsPerDay
	if _, err := f.market.PurchaseDatasetWithAggregation(buyer, "future", start, future, price, 0, 0, "", ""); !errors.Is(err, ErrInvalidPeriod) {
		t.Fatalf("expected ErrInvalidPeriod, got %v", err)
	}
}

// shiftingAggregates returns a different aggregate on every range read,
// standing in for reports landing while a purchase is in flight.
type shiftingAggregates struct {
	reads    int
	avgReads int
	now      int64
}

func (s *shiftingAggregates) GetAggregatedDataForRange(startDay, endDay uint64) (rewards.RangeAggregate, error) {
	s.reads++
	return rewards.RangeAggregate{
		StartDay:     startDay,
		EndDay:       endDay,
		TotalSteps:   uint64(s.reads) * 1000,
		TotalEntries: 1,
		UniqueDays:   1,
	}, nil
}

func (s *shiftingAggregates) GetAverageMetricsForRange(startDay, endDay uint64) (rewards.AverageMetrics, error) {
	s.avgReads++
	agg, _ := s.GetAggregatedDataForRange(startDay, endDay)
	return agg.Averages(), nil
}

func (s *shiftingAggregates) Now() int64 { return s.now }

func TestPurchaseAggregationSnapshotConsistent(t *testing.T) {
	f := newFixture(t)
	source := &shiftingAggregates{now: f.now.Unix()}
	market, err := New(f.ledger, source, f.sink, storage.NewMemDB(), nil)
	if err != nil {
		t.Fatalf("marketplace: %v", err)
	}
	start := uint64(f.now.Unix()) - rewards.SecondsPerDay
	end := uint64(f.now.Unix())

	// Entry count is constant across reads, so the quoted price stays valid
	// even though the averages keep moving.
	price, err := market.CalculatePriceForPeriod(start, end)
	if err != nil {
		t.Fatalf("price: %v", err)
	}
	id, err := market.PurchaseDatasetWithAggregation(addr(7), "window", start, end, price, 0, 0, "", "")
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}
	dataset, err := market.GetDataset(id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	// The stored averages must come from the same read that priced the
	// purchase: read 1 quoted, read 2 settled.
	if dataset.AverageDailySteps != 2000 {
		t.Fatalf("averageDailySteps = %d, want 2000", dataset.AverageDailySteps)
	}
	if source.avgReads != 0 {
		t.Fatalf("purchase took %d extra average reads, want 0", source.avgReads)
	}
	if source.reads != 2 {
		t.Fatalf("range reads = %d, want 2", source.reads)
	}
}

func TestCreateDatasetAdminOnly(t *testing.T) {
	f := newFixture(t)
	if _, err := f.market.CreateDataset(addr(9), "ds", 1, 0, 1, big.NewInt(1), 0, 0, "", ""); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestUpdatePricing(t *testing.T) {
	f := newFixture(t)
	if err := f.market.UpdatePricing(addr(9), big.NewInt(1), big.NewInt(1)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := f.market.UpdatePricing(f.admin, nil, big.NewInt(1)); !errors.Is(err, ErrInvalidConfiguration) {
		t.Fatalf("expected ErrInvalidConfiguration, got %v", err)
	}
	if err := f.market.UpdatePricing(f.admin, big.NewInt(500), big.NewInt(10)); err != nil {
		t.Fatalf("update: %v", err)
	}
	price, err := f.market.CalculatePrice(3000)
	if err != nil {
		t.Fatalf("price: %v", err)
	}
	if price.Cmp(big.NewInt(530)) != 0 {
		t.Fatalf("price = %s, want 530", price)
	}
}
