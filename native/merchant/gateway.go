package merchant

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/renaultluk/sweat-coin/core/events"
	"github.com/renaultluk/sweat-coin/native/ledger"
	"github.com/renaultluk/sweat-coin/native/treasury"
	"github.com/renaultluk/sweat-coin/observability"
	"github.com/renaultluk/sweat-coin/storage"
)

var (
	couponPrefix   = []byte("merchant/coupon/")
	merchantPrefix = []byte("merchant/merchant/")
	nextIDKey      = []byte("merchant/nextid")

	unitWei = new(big.Int).Exp(big.NewInt(10), big.NewInt(ledger.TokenDecimals), nil)
)

// Token is the slice of ledger functionality the gateway needs. The gateway
// account must hold the burner role for redemption to work.
type Token interface {
	HasRole(account common.Address, role ledger.Role) bool
	BalanceOf(account common.Address) *big.Int
	Allowance(owner, spender common.Address) *big.Int
	TransferFrom(spender, owner, to common.Address, amount *big.Int) error
	Transfer(from, to common.Address, amount *big.Int) error
	BurnFrom(caller, from common.Address, amount *big.Int) error
}

// SubsidyProvider is the slice of the treasury the gateway needs: the split
// percentages and the best-effort subsidy payout.
type SubsidyProvider interface {
	GetConfig() (treasury.Config, error)
	PaySubsidy(caller, merchant common.Address) (*big.Int, error)
}

// Gateway registers merchants, issues coupons, and on redemption pulls the
// spent SWEAT from the user and splits it between burn, merchant payout, and
// treasury fee.
type Gateway struct {
	mu           sync.RWMutex
	addr         common.Address
	treasuryAddr common.Address
	token        Token
	subsidies    SubsidyProvider
	store        storage.Database
	emitter      events.Emitter
	metrics      *observability.MerchantMetrics
	log          *slog.Logger
	clock        func() time.Time
}

func New(addr, treasuryAddr common.Address, token Token, subsidies SubsidyProvider, store storage.Database, emitter events.Emitter) (*Gateway, error) {
	if token == nil || subsidies == nil || store == nil {
		return nil, fmt.Errorf("merchant: token, treasury and storage required")
	}
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	return &Gateway{
		addr:         addr,
		treasuryAddr: treasuryAddr,
		token:        token,
		subsidies:    subsidies,
		store:        store,
		emitter:      emitter,
		metrics:      observability.Merchant(),
		log:          slog.Default().With("component", "merchant"),
		clock:        time.Now,
	}, nil
}

// Address returns the gateway's ledger account.
func (g *Gateway) Address() common.Address { return g.addr }

// SetClock overrides the gateway's time source. Tests only.
func (g *Gateway) SetClock(clock func() time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.clock = clock
}

// RegisterMerchant records a redemption counterparty. Admin only.
func (g *Gateway) RegisterMerchant(caller common.Address, name string, wallet common.Address, defaultCouponValueUSD uint64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.token.HasRole(caller, ledger.RoleAdmin) {
		return ErrUnauthorized
	}
	m := &Merchant{
		Name:                  name,
		WalletAddress:         wallet,
		IsActive:              true,
		DefaultCouponValueUSD: defaultCouponValueUSD,
		TotalSweatReceived:    big.NewInt(0),
		TotalEthReceived:      big.NewInt(0),
	}
	if err := g.putMerchant(m); err != nil {
		return err
	}
	g.emitter.Emit(newMerchantRegisteredEvent(m))
	return nil
}

// CreateCoupon issues a coupon for a registered merchant. Callable by an
// admin or by the merchant itself.
func (g *Gateway) CreateCoupon(caller common.Address, description string, valueUSD uint64, merchantAddr common.Address) (uint64, error) {
	if valueUSD == 0 {
		return 0, ErrInvalidValue
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if caller != merchantAddr && !g.token.HasRole(caller, ledger.RoleAdmin) {
		return 0, ErrUnauthorized
	}
	if _, err := g.loadMerchant(merchantAddr); err != nil {
		return 0, err
	}
	coupon := &Coupon{
		Description:     description,
		ValueUSD:        valueUSD,
		MerchantAddress: merchantAddr,
		IsActive:        true,
		CreatedAt:       uint64(g.clock().Unix()),
	}
	if err := g.insertCoupon(coupon); err != nil {
		return 0, err
	}
	g.emitter.Emit(newCouponCreatedEvent(coupon))
	return coupon.ID, nil
}

// UpdateCoupon edits a coupon. Restricted to the coupon's merchant or an
// admin. A deactivated coupon is terminal and cannot be edited back to life.
func (g *Gateway) UpdateCoupon(caller common.Address, id uint64, description string, valueUSD uint64, isActive bool) error {
	if valueUSD == 0 {
		return ErrInvalidValue
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	coupon, err := g.loadCoupon(id)
	if err != nil {
		return err
	}
	if caller != coupon.MerchantAddress && !g.token.HasRole(caller, ledger.RoleAdmin) {
		return ErrUnauthorized
	}
	if coupon.Deactivated {
		return ErrCouponDeactivated
	}
	coupon.Description = description
	coupon.ValueUSD = valueUSD
	coupon.IsActive = isActive
	if err := g.putCoupon(coupon); err != nil {
		return err
	}
	g.emitter.Emit(newCouponUpdatedEvent(coupon))
	return nil
}

// DeactivateCoupon retires a coupon permanently. Idempotent.
func (g *Gateway) DeactivateCoupon(caller common.Address, id uint64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	coupon, err := g.loadCoupon(id)
	if err != nil {
		return err
	}
	if caller != coupon.MerchantAddress && !g.token.HasRole(caller, ledger.RoleAdmin) {
		return ErrUnauthorized
	}
	if coupon.Deactivated {
		return nil
	}
	coupon.Deactivated = true
	coupon.IsActive = false
	if err := g.putCoupon(coupon); err != nil {
		return err
	}
	g.emitter.Emit(newCouponDeactivatedEvent(id))
	return nil
}

// RedeemCoupon spends the coupon's value from the user's SWEAT balance. The
// user must have approved the gateway beforehand. The spent amount is split
// per the treasury configuration; rounding dust is assigned to the treasury
// fee so the three legs always sum to the amount spent. The subsidy request
// at the end is best-effort and never unwinds the split.
func (g *Gateway) RedeemCoupon(user common.Address, id uint64) (*Redemption, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	coupon, err := g.loadCoupon(id)
	if err != nil {
		g.metrics.Record("not_found")
		return nil, err
	}
	if !coupon.IsActive || coupon.Deactivated {
		g.metrics.Record("inactive")
		return nil, ErrCouponInactive
	}
	m, err := g.loadMerchant(coupon.MerchantAddress)
	if err != nil {
		return nil, err
	}

	amount := new(big.Int).Mul(new(big.Int).SetUint64(coupon.ValueUSD), unitWei)
	if g.token.Allowance(user, g.addr).Cmp(amount) < 0 {
		g.metrics.Record("insufficient_allowance")
		return nil, ErrInsufficientAllowance
	}
	if g.token.BalanceOf(user).Cmp(amount) < 0 {
		g.metrics.Record("insufficient_balance")
		return nil, ErrInsufficientBalance
	}

	cfg, err := g.subsidies.GetConfig()
	if err != nil {
		return nil, err
	}
	burned := shareOf(amount, cfg.BurnRatePct)
	merchantShare := shareOf(amount, cfg.MerchantSweatPct)
	fee := new(big.Int).Sub(amount, burned)
	fee.Sub(fee, merchantShare)

	if err := g.token.TransferFrom(g.addr, user, g.addr, amount); err != nil {
		return nil, fmt.Errorf("merchant: pull funds: %w", err)
	}
	if burned.Sign() > 0 {
		if err := g.token.BurnFrom(g.addr, g.addr, burned); err != nil {
			return nil, fmt.Errorf("merchant: burn: %w", err)
		}
	}
	if merchantShare.Sign() > 0 {
		if err := g.token.Transfer(g.addr, coupon.MerchantAddress, merchantShare); err != nil {
			return nil, fmt.Errorf("merchant: pay merchant: %w", err)
		}
	}
	if fee.Sign() > 0 {
		if err := g.token.Transfer(g.addr, g.treasuryAddr, fee); err != nil {
			return nil, fmt.Errorf("merchant: pay treasury: %w", err)
		}
	}

	redemption := &Redemption{
		CouponID:      coupon.ID,
		User:          user,
		Merchant:      coupon.MerchantAddress,
		AmountSpent:   amount,
		Burned:        burned,
		MerchantShare: merchantShare,
		TreasuryFee:   fee,
		SubsidyWei:    big.NewInt(0),
	}
	subsidy, err := g.subsidies.PaySubsidy(g.addr, coupon.MerchantAddress)
	if err != nil {
		g.log.Warn("subsidy request failed",
			"coupon", coupon.ID, "merchant", coupon.MerchantAddress.Hex(), "err", err)
	} else {
		redemption.SubsidyRequested = true
		redemption.SubsidyWei = subsidy
	}

	coupon.RedemptionCount++
	if err := g.putCoupon(coupon); err != nil {
		return nil, err
	}
	m.TotalSweatReceived.Add(m.TotalSweatReceived, merchantShare)
	m.TotalEthReceived.Add(m.TotalEthReceived, redemption.SubsidyWei)
	if err := g.putMerchant(m); err != nil {
		return nil, err
	}

	g.metrics.Record("redeemed")
	g.emitter.Emit(newCouponRedeemedEvent(user, redemption))
	return redemption, nil
}

// GetCoupon returns a copy of the coupon.
func (g *Gateway) GetCoupon(id uint64) (*Coupon, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	coupon, err := g.loadCoupon(id)
	if err != nil {
		return nil, err
	}
	return coupon.Clone(), nil
}

// GetAllActiveCouponIDs returns redeemable coupon ids in issuance order.
func (g *Gateway) GetAllActiveCouponIDs() ([]uint64, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	next, err := g.nextID()
	if err != nil {
		return nil, err
	}
	var ids []uint64
	for id := uint64(1); id < next; id++ {
		coupon, err := g.loadCoupon(id)
		if err != nil {
			return nil, err
		}
		if coupon.IsActive && !coupon.Deactivated {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// GetMerchant returns a copy of the merchant record.
func (g *Gateway) GetMerchant(wallet common.Address) (*Merchant, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	m, err := g.loadMerchant(wallet)
	if err != nil {
		return nil, err
	}
	return m.Clone(), nil
}

func shareOf(amount *big.Int, pct uint32) *big.Int {
	share := new(big.Int).Mul(amount, big.NewInt(int64(pct)))
	return share.Div(share, big.NewInt(100))
}

func (g *Gateway) insertCoupon(coupon *Coupon) error {
	next, err := g.nextID()
	if err != nil {
		return err
	}
	coupon.ID = next
	if err := g.putCoupon(coupon); err != nil {
		return err
	}
	encoded, err := rlp.EncodeToBytes(next + 1)
	if err != nil {
		return err
	}
	return g.store.Put(nextIDKey, encoded)
}

func (g *Gateway) loadCoupon(id uint64) (*Coupon, error) {
	raw, err := g.store.Get(couponKey(id))
	if err != nil {
		if err == storage.ErrNotFound {
			return nil, ErrCouponNotFound
		}
		return nil, err
	}
	var stored storedCoupon
	if err := rlp.DecodeBytes(raw, &stored); err != nil {
		return nil, fmt.Errorf("merchant: decode coupon %d: %w", id, err)
	}
	coupon := Coupon(stored)
	return &coupon, nil
}

func (g *Gateway) putCoupon(coupon *Coupon) error {
	encoded, err := rlp.EncodeToBytes(storedCoupon(*coupon))
	if err != nil {
		return err
	}
	return g.store.Put(couponKey(coupon.ID), encoded)
}

func (g *Gateway) loadMerchant(wallet common.Address) (*Merchant, error) {
	raw, err := g.store.Get(merchantKey(wallet))
	if err != nil {
		if err == storage.ErrNotFound {
			return nil, ErrMerchantNotFound
		}
		return nil, err
	}
	var stored storedMerchant
	if err := rlp.DecodeBytes(raw, &stored); err != nil {
		return nil, fmt.Errorf("merchant: decode merchant %s: %w", wallet.Hex(), err)
	}
	m := Merchant(stored)
	if m.TotalSweatReceived == nil {
		m.TotalSweatReceived = big.NewInt(0)
	}
	if m.TotalEthReceived == nil {
		m.TotalEthReceived = big.NewInt(0)
	}
	return &m, nil
}

func (g *Gateway) putMerchant(m *Merchant) error {
	encoded, err := rlp.EncodeToBytes(storedMerchant(*m))
	if err != nil {
		return err
	}
	return g.store.Put(merchantKey(m.WalletAddress), encoded)
}

func (g *Gateway) nextID() (uint64, error) {
	raw, err := g.store.Get(nextIDKey)
	if err != nil {
		if err == storage.ErrNotFound {
			return 1, nil
		}
		return 0, err
	}
	var next uint64
	if err := rlp.DecodeBytes(raw, &next); err != nil {
		return 0, fmt.Errorf("merchant: decode next id: %w", err)
	}
	return next, nil
}

func couponKey(id uint64) []byte {
	key := make([]byte, len(couponPrefix)+8)
	copy(key, couponPrefix)
	binary.BigEndian.PutUint64(key[len(couponPrefix):], id)
	return key
}

func merchantKey(wallet common.Address) []byte {
	return append(append([]byte{}, merchantPrefix...), wallet.Bytes()...)
}
