package treasury

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/renaultluk/sweat-coin/core/events"
	"github.com/renaultluk/sweat-coin/native/ledger"
	"github.com/renaultluk/sweat-coin/observability"
	"github.com/renaultluk/sweat-coin/storage"
)

var (
	configKey        = []byte("treasury/config")
	nativeReserveKey = []byte("treasury/native")
)

// Token is the slice of ledger functionality the treasury needs.
type Token interface {
	BalanceOf(account common.Address) *big.Int
	HasRole(account common.Address, role ledger.Role) bool
}

// Treasury custodies native-currency and SWEAT reserves, defends the soft
// USD peg via an external swap venue, and disburses merchant subsidies.
type Treasury struct {
	mu      sync.RWMutex
	addr    common.Address
	token   Token
	store   storage.Database
	oracle  PriceOracle
	venue   SwapVenue
	gateway common.Address
	emitter events.Emitter
	metrics *observability.TreasuryMetrics
	tracer  trace.Tracer
	log     *slog.Logger
}

func New(addr common.Address, token Token, store storage.Database, oracle PriceOracle, venue SwapVenue, emitter events.Emitter) (*Treasury, error) {
	if token == nil || store == nil {
		return nil, fmt.Errorf("treasury: token and storage required")
	}
	if venue == nil {
		venue = UnavailableVenue{}
	}
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	t := &Treasury{
		addr:    addr,
		token:   token,
		store:   store,
		oracle:  oracle,
		venue:   venue,
		emitter: emitter,
		metrics: observability.Treasury(),
		tracer:  otel.Tracer("treasury"),
		log:     slog.Default().With("component", "treasury"),
	}
	if _, err := t.loadConfig(); err != nil {
		if err != storage.ErrNotFound {
			return nil, err
		}
		if err := t.putConfig(DefaultConfig()); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// Address returns the treasury's ledger account.
func (t *Treasury) Address() common.Address { return t.addr }

// GetConfig returns a copy of the current configuration.
func (t *Treasury) GetConfig() (Config, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	cfg, err := t.loadConfig()
	if err != nil {
		return Config{}, err
	}
	return cfg.Clone(), nil
}

// NativeReserve returns the current native-currency reserve in wei.
func (t *Treasury) NativeReserve() *big.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	reserve, err := t.loadReserve()
	if err != nil {
		return big.NewInt(0)
	}
	return reserve
}

// SweatReserve returns the treasury's own SWEAT holding on the ledger.
func (t *Treasury) SweatReserve() *big.Int {
	return t.token.BalanceOf(t.addr)
}

// DepositNative credits native currency into the reserve. Marketplace
// proceeds and top-ups arrive here.
func (t *Treasury) DepositNative(amount *big.Int) {
	if amount == nil || amount.Sign() <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	reserve, err := t.loadReserve()
	if err != nil {
		t.log.Error("load reserve", "err", err)
		return
	}
	if err := t.putReserve(new(big.Int).Add(reserve, amount)); err != nil {
		t.log.Error("store reserve", "err", err)
	}
}

// WithdrawETH sends native currency from the reserve to the recipient.
// Admin only.
func (t *Treasury) WithdrawETH(caller, recipient common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidConfiguration
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.token.HasRole(caller, ledger.RoleAdmin) {
		return ErrUnauthorized
	}
	reserve, err := t.loadReserve()
	if err != nil {
		return err
	}
	if reserve.Cmp(amount) < 0 {
		return ErrInsufficientReserve
	}
	if err := t.putReserve(new(big.Int).Sub(reserve, amount)); err != nil {
		return err
	}
	t.emitter.Emit(newWithdrawalEvent(recipient, amount))
	return nil
}

// PaySubsidy transfers the configured merchant subsidy in native currency.
// Only the merchant gateway may call it. A shortfall is not an error for the
// caller: the subsidy is best-effort and must never unwind the redemption
// that triggered it, so the skip is logged and reported via event instead.
func (t *Treasury) PaySubsidy(caller, merchant common.Address) (*big.Int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.gateway == (common.Address{}) || caller != t.gateway {
		t.metrics.Subsidies.WithLabelValues("unauthorized").Inc()
		return nil, ErrUnauthorized
	}
	cfg, err := t.loadConfig()
	if err != nil {
		return nil, err
	}
	subsidy := cfg.DefaultMerchantSubsidyWei
	if subsidy == nil || subsidy.Sign() <= 0 {
		t.metrics.Subsidies.WithLabelValues("disabled").Inc()
		t.emitter.Emit(newSubsidySkippedEvent(merchant, "subsidy_disabled"))
		return big.NewInt(0), nil
	}
	reserve, err := t.loadReserve()
	if err != nil {
		return nil, err
	}
	if reserve.Cmp(subsidy) < 0 {
		t.log.Warn("subsidy skipped, reserve too low",
			"merchant", merchant.Hex(), "reserve", reserve.String(), "subsidy", subsidy.String())
		t.metrics.Subsidies.WithLabelValues("insufficient_reserve").Inc()
		t.emitter.Emit(newSubsidySkippedEvent(merchant, "insufficient_reserve"))
		return big.NewInt(0), nil
	}
	if err := t.putReserve(new(big.Int).Sub(reserve, subsidy)); err != nil {
		return nil, err
	}
	receipt := uuid.NewString()
	t.metrics.Subsidies.WithLabelValues("paid").Inc()
	t.emitter.Emit(newSubsidyPaidEvent(merchant, subsidy, receipt))
	return new(big.Int).Set(subsidy), nil
}

// GetSweatPriceUSD delegates to the external price oracle.
func (t *Treasury) GetSweatPriceUSD() (PriceQuote, error) {
	t.mu.RLock()
	oracle := t.oracle
	t.mu.RUnlock()
	if oracle == nil {
		return PriceQuote{}, ErrOracleUnavailable
	}
	quote, err := oracle.QuoteUSD()
	if err != nil {
		return PriceQuote{}, err
	}
	return quote.Clone(), nil
}

// CheckPriceStability reports whether the observed price has left the
// configured band around the $1 peg, i.e. true means stabilization is needed.
func (t *Treasury) CheckPriceStability() (bool, PriceQuote, error) {
	quote, err := t.GetSweatPriceUSD()
	if err != nil {
		return false, PriceQuote{}, err
	}
	cfg, err := t.GetConfig()
	if err != nil {
		return false, PriceQuote{}, err
	}
	return !withinBand(quote.Rate, cfg.PegBandBps), quote, nil
}

func withinBand(rate *big.Rat, bandBps uint32) bool {
	deviation := new(big.Rat).Sub(rate, big.NewRat(1, 1))
	deviation.Abs(deviation)
	band := big.NewRat(int64(bandBps), 10_000)
	return deviation.Cmp(band) <= 0
}

// StabilizePrice runs one step of the peg control loop. It is idempotent:
// a stable price is a successful no-op. Oracle or venue failure is reported
// without touching reserve accounting.
func (t *Treasury) StabilizePrice(ctx context.Context) error {
	ctx, span := t.tracer.Start(ctx, "treasury.stabilize")
	defer span.End()

	quote, err := t.GetSweatPriceUSD()
	if err != nil {
		span.SetStatus(codes.Error, "oracle failure")
		span.RecordError(err)
		t.metrics.StabilizeRuns.WithLabelValues("oracle_error").Inc()
		t.emitter.Emit(newStabilizeSkippedEvent("oracle_error", ""))
		return err
	}
	span.SetAttributes(attribute.String("price", quote.Rate.FloatString(6)))

	cfg, err := t.GetConfig()
	if err != nil {
		return err
	}
	if withinBand(quote.Rate, cfg.PegBandBps) {
		t.metrics.StabilizeRuns.WithLabelValues("stable").Inc()
		t.emitter.Emit(newStabilizeSkippedEvent("stable", quote.Rate.FloatString(6)))
		return nil
	}

	if quote.Rate.Cmp(big.NewRat(1, 1)) < 0 {
		return t.buySupport(ctx, span, quote, cfg)
	}
	return t.sellPressure(ctx, span, quote, cfg)
}

// buySupport spends a fraction of the native reserve buying SWEAT to lift a
// below-peg price.
func (t *Treasury) buySupport(ctx context.Context, span trace.Span, quote PriceQuote, cfg Config) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	reserve, err := t.loadReserve()
	if err != nil {
		return err
	}
	amountNative := tradeSize(reserve, cfg.TradeFractionBps)
	if amountNative.Sign() <= 0 {
		t.metrics.StabilizeRuns.WithLabelValues("empty_reserve").Inc()
		t.emitter.Emit(newStabilizeSkippedEvent("empty_reserve", quote.Rate.FloatString(6)))
		return nil
	}
	received, err := t.venue.SwapNativeForSweat(ctx, amountNative)
	if err != nil {
		span.SetStatus(codes.Error, "venue failure")
		span.RecordError(err)
		t.metrics.StabilizeRuns.WithLabelValues("venue_error").Inc()
		t.emitter.Emit(newStabilizeSkippedEvent("venue_error", quote.Rate.FloatString(6)))
		return fmt.Errorf("treasury: buy support: %w", err)
	}
	if err := t.putReserve(new(big.Int).Sub(reserve, amountNative)); err != nil {
		return err
	}
	t.metrics.StabilizeRuns.WithLabelValues("bought").Inc()
	t.emitter.Emit(newStabilizeExecutedEvent("buy_sweat", amountNative, received, quote))
	return nil
}

// sellPressure sells a fraction of the SWEAT holding to push an above-peg
// price back down, crediting the native proceeds to the reserve.
func (t *Treasury) sellPressure(ctx context.Context, span trace.Span, quote PriceQuote, cfg Config) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	holding := t.token.BalanceOf(t.addr)
	amountSweat := tradeSize(holding, cfg.TradeFractionBps)
	if amountSweat.Sign() <= 0 {
		t.metrics.StabilizeRuns.WithLabelValues("empty_holding").Inc()
		t.emitter.Emit(newStabilizeSkippedEvent("empty_holding", quote.Rate.FloatString(6)))
		return nil
	}
	proceeds, err := t.venue.SwapSweatForNative(ctx, amountSweat)
	if err != nil {
		span.SetStatus(codes.Error, "venue failure")
		span.RecordError(err)
		t.metrics.StabilizeRuns.WithLabelValues("venue_error").Inc()
		t.emitter.Emit(newStabilizeSkippedEvent("venue_error", quote.Rate.FloatString(6)))
		return fmt.Errorf("treasury: sell pressure: %w", err)
	}
	reserve, err := t.loadReserve()
	if err != nil {
		return err
	}
	if err := t.putReserve(new(big.Int).Add(reserve, proceeds)); err != nil {
		return err
	}
	t.metrics.StabilizeRuns.WithLabelValues("sold").Inc()
	t.emitter.Emit(newStabilizeExecutedEvent("sell_sweat", amountSweat, proceeds, quote))
	return nil
}

func tradeSize(balance *big.Int, fractionBps uint32) *big.Int {
	if balance == nil || balance.Sign() <= 0 || fractionBps == 0 {
		return big.NewInt(0)
	}
	size := new(big.Int).Mul(balance, big.NewInt(int64(fractionBps)))
	return size.Div(size, big.NewInt(10_000))
}

// SetMerchantGateway registers the only account allowed to request
// subsidies. Admin only.
func (t *Treasury) SetMerchantGateway(caller, gateway common.Address) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.token.HasRole(caller, ledger.RoleAdmin) {
		return ErrUnauthorized
	}
	t.gateway = gateway
	return nil
}

// UpdatePriceOracle swaps the oracle handle. Admin only.
func (t *Treasury) UpdatePriceOracle(caller common.Address, oracle PriceOracle) error {
	if oracle == nil {
		return ErrInvalidConfiguration
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.token.HasRole(caller, ledger.RoleAdmin) {
		return ErrUnauthorized
	}
	t.oracle = oracle
	return nil
}

// UpdateSwapVenue swaps the venue handle. Admin only.
func (t *Treasury) UpdateSwapVenue(caller common.Address, venue SwapVenue) error {
	if venue == nil {
		return ErrInvalidConfiguration
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.token.HasRole(caller, ledger.RoleAdmin) {
		return ErrUnauthorized
	}
	t.venue = venue
	return nil
}

// UpdateDefaultMerchantSubsidyEth replaces the per-redemption subsidy.
// Admin only.
func (t *Treasury) UpdateDefaultMerchantSubsidyEth(caller common.Address, amountWei *big.Int) error {
	if amountWei == nil || amountWei.Sign() < 0 {
		return ErrInvalidConfiguration
	}
	return t.updateConfig(caller, func(cfg *Config) {
		cfg.DefaultMerchantSubsidyWei = new(big.Int).Set(amountWei)
	})
}

// UpdateTreasurySweatFeePercentage sets the treasury's cut of each
// redemption. The three split percentages must still sum to 100.
func (t *Treasury) UpdateTreasurySweatFeePercentage(caller common.Address, pct uint32) error {
	return t.updateConfig(caller, func(cfg *Config) { cfg.TreasurySweatFeePct = pct })
}

// UpdateBurnRatePercentage sets the burned share of each redemption.
func (t *Treasury) UpdateBurnRatePercentage(caller common.Address, pct uint32) error {
	return t.updateConfig(caller, func(cfg *Config) { cfg.BurnRatePct = pct })
}

// UpdateMerchantSweatPercentage sets the merchant's share of each
// redemption.
func (t *Treasury) UpdateMerchantSweatPercentage(caller common.Address, pct uint32) error {
	return t.updateConfig(caller, func(cfg *Config) { cfg.MerchantSweatPct = pct })
}

// UpdatePegBand sets the stability band around the $1 peg, in basis points.
func (t *Treasury) UpdatePegBand(caller common.Address, bandBps uint32) error {
	if bandBps == 0 || bandBps >= 10_000 {
		return ErrInvalidConfiguration
	}
	return t.updateConfig(caller, func(cfg *Config) { cfg.PegBandBps = bandBps })
}

// UpdateSplit sets all three redemption percentages in one step, for
// configurations unreachable through single-field updates.
func (t *Treasury) UpdateSplit(caller common.Address, burnPct, merchantPct, feePct uint32) error {
	return t.updateConfig(caller, func(cfg *Config) {
		cfg.BurnRatePct = burnPct
		cfg.MerchantSweatPct = merchantPct
		cfg.TreasurySweatFeePct = feePct
	})
}

func (t *Treasury) updateConfig(caller common.Address, mutate func(*Config)) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.token.HasRole(caller, ledger.RoleAdmin) {
		return ErrUnauthorized
	}
	cfg, err := t.loadConfig()
	if err != nil {
		return err
	}
	updated := cfg.Clone()
	mutate(&updated)
	if !updated.splitSumsTo100() {
		return ErrInvalidConfiguration
	}
	return t.putConfig(updated)
}

func (t *Treasury) loadConfig() (Config, error) {
	raw, err := t.store.Get(configKey)
	if err != nil {
		return Config{}, err
	}
	var stored storedConfig
	if err := rlp.DecodeBytes(raw, &stored); err != nil {
		return Config{}, fmt.Errorf("treasury: decode config: %w", err)
	}
	return Config(stored), nil
}

func (t *Treasury) putConfig(cfg Config) error {
	encoded, err := rlp.EncodeToBytes(storedConfig(cfg))
	if err != nil {
		return err
	}
	return t.store.Put(configKey, encoded)
}

func (t *Treasury) loadReserve() (*big.Int, error) {
	raw, err := t.store.Get(nativeReserveKey)
	if err != nil {
		if err == storage.ErrNotFound {
			return big.NewInt(0), nil
		}
		return nil, err
	}
	reserve := new(big.Int)
	if err := rlp.DecodeBytes(raw, reserve); err != nil {
		return nil, fmt.Errorf("treasury: decode reserve: %w", err)
	}
	return reserve, nil
}

func (t *Treasury) putReserve(reserve *big.Int) error {
	encoded, err := rlp.EncodeToBytes(reserve)
	if err != nil {
		return err
	}
	if err := t.store.Put(nativeReserveKey, encoded); err != nil {
		return err
	}
	t.metrics.SetNativeReserve(reserve)
	return nil
}
