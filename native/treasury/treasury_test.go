package treasury

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/renaultluk/sweat-coin/core/types"
	"github.com/renaultluk/sweat-coin/native/ledger"
	"github.com/renaultluk/sweat-coin/storage"
)

type captureEmitter struct {
	events []*types.Event
}

func (c *captureEmitter) Emit(evt *types.Event) { c.events = append(c.events, evt) }

func (c *captureEmitter) last() *types.Event {
	if len(c.events) == 0 {
		return nil
	}
	return c.events[len(c.events)-1]
}

type fakeVenue struct {
	boughtNative *big.Int
	soldSweat    *big.Int
	sweatOut     *big.Int
	nativeOut    *big.Int
	err          error
}

func (v *fakeVenue) SwapNativeForSweat(_ context.Context, amount *big.Int) (*big.Int, error) {
	if v.err != nil {
		return nil, v.err
	}
	v.boughtNative = new(big.Int).Set(amount)
	return v.sweatOut, nil
}

func (v *fakeVenue) SwapSweatForNative(_ context.Context, amount *big.Int) (*big.Int, error) {
	if v.err != nil {
		return nil, v.err
	}
	v.soldSweat = new(big.Int).Set(amount)
	return v.nativeOut, nil
}

type failingOracle struct{}

func (failingOracle) QuoteUSD() (PriceQuote, error) { return PriceQuote{}, ErrOracleUnavailable }

func addr(b byte) common.Address {
	var a common.Address
	a[19] = b
	return a
}

type fixture struct {
	treasury *Treasury
	ledger   *ledger.Ledger
	oracle   *StaticOracle
	venue    *fakeVenue
	emitter  *captureEmitter
	admin    common.Address
	gateway  common.Address
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := storage.NewMemDB()
	emitter := &captureEmitter{}
	l, err := ledger.New(store, nil)
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	admin, treasuryAddr, gateway := addr(1), addr(2), addr(3)
	if err := l.Bootstrap(admin); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	oracle := NewStaticOracle(big.NewRat(1, 1))
	venue := &fakeVenue{sweatOut: big.NewInt(1), nativeOut: big.NewInt(1)}
	tr, err := New(treasuryAddr, l, store, oracle, venue, emitter)
	if err != nil {
		t.Fatalf("treasury: %v", err)
	}
	if err := tr.SetMerchantGateway(admin, gateway); err != nil {
		t.Fatalf("set gateway: %v", err)
	}
	return &fixture{treasury: tr, ledger: l, oracle: oracle, venue: venue, emitter: emitter, admin: admin, gateway: gateway}
}

func TestConfigSplitInvariant(t *testing.T) {
	f := newFixture(t)
	// Default is 50/30/20; bumping one leg alone breaks the sum.
	if err := f.treasury.UpdateBurnRatePercentage(f.admin, 60); !errors.Is(err, ErrInvalidConfiguration) {
		t.Fatalf("expected ErrInvalidConfiguration, got %v", err)
	}
	if err := f.treasury.UpdateSplit(f.admin, 60, 25, 15); err != nil {
		t.Fatalf("update split: %v", err)
	}
	cfg, err := f.treasury.GetConfig()
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	if cfg.BurnRatePct != 60 || cfg.MerchantSweatPct != 25 || cfg.TreasurySweatFeePct != 15 {
		t.Fatalf("unexpected config %+v", cfg)
	}
	// From 60/25/15, lowering burn to 60-5 while others fixed is invalid.
	if err := f.treasury.UpdateSplit(f.admin, 50, 25, 15); !errors.Is(err, ErrInvalidConfiguration) {
		t.Fatalf("expected ErrInvalidConfiguration, got %v", err)
	}
	if err := f.treasury.UpdateSplit(addr(9), 60, 25, 15); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestWithdrawEth(t *testing.T) {
	f := newFixture(t)
	f.treasury.DepositNative(big.NewInt(1000))
	if err := f.treasury.WithdrawETH(addr(9), addr(8), big.NewInt(10)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := f.treasury.WithdrawETH(f.admin, addr(8), big.NewInt(2000)); !errors.Is(err, ErrInsufficientReserve) {
		t.Fatalf("expected ErrInsufficientReserve, got %v", err)
	}
	if err := f.treasury.WithdrawETH(f.admin, addr(8), big.NewInt(400)); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if got := f.treasury.NativeReserve(); got.Cmp(big.NewInt(600)) != 0 {
		t.Fatalf("reserve = %s, want 600", got)
	}
}

func TestPaySubsidy(t *testing.T) {
	f := newFixture(t)
	subsidy := big.NewInt(500)
	if err := f.treasury.UpdateDefaultMerchantSubsidyEth(f.admin, subsidy); err != nil {
		t.Fatalf("set subsidy: %v", err)
	}

	// Gateway gate.
	if _, err := f.treasury.PaySubsidy(addr(9), addr(8)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}

	// Low reserve is a recorded skip, not an error.
	f.treasury.DepositNative(big.NewInt(100))
	paid, err := f.treasury.PaySubsidy(f.gateway, addr(8))
	if err != nil {
		t.Fatalf("subsidy with low reserve must not error: %v", err)
	}
	if paid.Sign() != 0 {
		t.Fatalf("paid = %s, want 0", paid)
	}
	if evt := f.emitter.last(); evt == nil || evt.Type != EventTypeSubsidySkipped || evt.Attributes["reason"] != "insufficient_reserve" {
		t.Fatalf("expected skip event, got %+v", evt)
	}
	if got := f.treasury.NativeReserve(); got.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("reserve changed on skip: %s", got)
	}

	f.treasury.DepositNative(big.NewInt(900))
	paid, err = f.treasury.PaySubsidy(f.gateway, addr(8))
	if err != nil {
		t.Fatalf("subsidy: %v", err)
	}
	if paid.Cmp(subsidy) != 0 {
		t.Fatalf("paid = %s, want %s", paid, subsidy)
	}
	if got := f.treasury.NativeReserve(); got.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("reserve = %s, want 500", got)
	}
	if evt := f.emitter.last(); evt.Type != EventTypeSubsidyPaid || evt.Attributes["receipt"] == "" {
		t.Fatalf("expected paid event with receipt, got %+v", evt)
	}
}

func TestCheckPriceStability(t *testing.T) {
	f := newFixture(t)
	needed, quote, err := f.treasury.CheckPriceStability()
	if err != nil || needed {
		t.Fatalf("at peg: needed=%v err=%v", needed, err)
	}
	if quote.Rate.Cmp(big.NewRat(1, 1)) != 0 {
		t.Fatalf("quote rate = %s", quote.Rate)
	}

	// 4% deviation sits inside the default 5% band.
	f.oracle.SetRate(big.NewRat(104, 100))
	if needed, _, _ = f.treasury.CheckPriceStability(); needed {
		t.Fatal("4% deviation should not need stabilization")
	}
	f.oracle.SetRate(big.NewRat(94, 100))
	if needed, _, _ = f.treasury.CheckPriceStability(); !needed {
		t.Fatal("6% deviation should need stabilization")
	}
	f.oracle.SetRate(big.NewRat(110, 100))
	if needed, _, _ = f.treasury.CheckPriceStability(); !needed {
		t.Fatal("10% deviation should need stabilization")
	}
}

func TestStabilizeNoOpWhenStable(t *testing.T) {
	f := newFixture(t)
	f.treasury.DepositNative(big.NewInt(10_000))
	if err := f.treasury.StabilizePrice(context.Background()); err != nil {
		t.Fatalf("stabilize at peg: %v", err)
	}
	if f.venue.boughtNative != nil || f.venue.soldSweat != nil {
		t.Fatal("no trade expected at peg")
	}
	if got := f.treasury.NativeReserve(); got.Cmp(big.NewInt(10_000)) != 0 {
		t.Fatalf("reserve = %s, want untouched", got)
	}
}

func TestStabilizeBuysBelowPeg(t *testing.T) {
	f := newFixture(t)
	f.treasury.DepositNative(big.NewInt(10_000))
	f.oracle.SetRate(big.NewRat(90, 100))
	f.venue.sweatOut = big.NewInt(1111)

	if err := f.treasury.StabilizePrice(context.Background()); err != nil {
		t.Fatalf("stabilize: %v", err)
	}
	// Default trade fraction is 10% of the reserve.
	if f.venue.boughtNative == nil || f.venue.boughtNative.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("traded %s native, want 1000", f.venue.boughtNative)
	}
	if got := f.treasury.NativeReserve(); got.Cmp(big.NewInt(9000)) != 0 {
		t.Fatalf("reserve = %s, want 9000", got)
	}
	if evt := f.emitter.last(); evt.Type != EventTypeStabilizeExecuted || evt.Attributes["direction"] != "buy_sweat" {
		t.Fatalf("unexpected event %+v", evt)
	}
}

func TestStabilizeSellsAbovePeg(t *testing.T) {
	f := newFixture(t)
	// Give the treasury a SWEAT holding via a minter.
	if err := f.ledger.GrantRole(f.admin, f.admin, ledger.RoleMinter); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if err := f.ledger.Mint(f.admin, f.treasury.Address(), big.NewInt(50_000)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	f.oracle.SetRate(big.NewRat(110, 100))
	f.venue.nativeOut = big.NewInt(5500)

	if err := f.treasury.StabilizePrice(context.Background()); err != nil {
		t.Fatalf("stabilize: %v", err)
	}
	if f.venue.soldSweat == nil || f.venue.soldSweat.Cmp(big.NewInt(5000)) != 0 {
		t.Fatalf("sold %s sweat, want 5000", f.venue.soldSweat)
	}
	if got := f.treasury.NativeReserve(); got.Cmp(big.NewInt(5500)) != 0 {
		t.Fatalf("reserve = %s, want proceeds 5500", got)
	}
}

func TestStabilizeSurvivesOracleFailure(t *testing.T) {
	f := newFixture(t)
	f.treasury.DepositNative(big.NewInt(10_000))
	if err := f.treasury.UpdatePriceOracle(f.admin, failingOracle{}); err != nil {
		t.Fatalf("swap oracle: %v", err)
	}
	if err := f.treasury.StabilizePrice(context.Background()); !errors.Is(err, ErrOracleUnavailable) {
		t.Fatalf("expected ErrOracleUnavailable, got %v", err)
	}
	if got := f.treasury.NativeReserve(); got.Cmp(big.NewInt(10_000)) != 0 {
		t.Fatalf("reserve changed on oracle failure: %s", got)
	}
}

func TestStabilizeSurvivesVenueFailure(t *testing.T) {
	f := newFixture(t)
	f.treasury.DepositNative(big.NewInt(10_000))
	f.oracle.SetRate(big.NewRat(90, 100))
	f.venue.err = ErrVenueUnavailable

	if err := f.treasury.StabilizePrice(context.Background()); !errors.Is(err, ErrVenueUnavailable) {
		t.Fatalf("expected ErrVenueUnavailable, got %v", err)
	}
	if got := f.treasury.NativeReserve(); got.Cmp(big.NewInt(10_000)) != 0 {
		t.Fatalf("reserve changed on venue failure: %s", got)
	}
}
