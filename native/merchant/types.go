package merchant

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Coupon is a merchant-issued, SWEAT-denominated redeemable value object.
// An active coupon can be paused and resumed; deactivation is terminal.
type Coupon struct {
	ID              uint64
	Description     string
	ValueUSD        uint64
	MerchantAddress common.Address
	IsActive        bool
	Deactivated     bool
	CreatedAt       uint64
	RedemptionCount uint64
}

// Clone returns a copy of the coupon.
func (c *Coupon) Clone() *Coupon {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

// Merchant is a redemption counterparty. The two accumulators only increase.
type Merchant struct {
	Name                  string
	WalletAddress         common.Address
	IsActive              bool
	DefaultCouponValueUSD uint64
	TotalSweatReceived    *big.Int
	TotalEthReceived      *big.Int
}

// Clone returns a deep copy so callers cannot mutate the accumulators.
func (m *Merchant) Clone() *Merchant {
	if m == nil {
		return nil
	}
	clone := *m
	if m.TotalSweatReceived != nil {
		clone.TotalSweatReceived = new(big.Int).Set(m.TotalSweatReceived)
	}
	if m.TotalEthReceived != nil {
		clone.TotalEthReceived = new(big.Int).Set(m.TotalEthReceived)
	}
	return &clone
}

// Redemption is the full breakdown of one completed coupon redemption.
// Burned + MerchantShare + TreasuryFee always equals AmountSpent.
type Redemption struct {
	CouponID         uint64
	User             common.Address
	Merchant         common.Address
	AmountSpent      *big.Int
	Burned           *big.Int
	MerchantShare    *big.Int
	TreasuryFee      *big.Int
	SubsidyWei       *big.Int
	SubsidyRequested bool
}

type storedCoupon struct {
	ID              uint64
	Description     string
	ValueUSD        uint64
	MerchantAddress common.Address
	IsActive        bool
	Deactivated     bool
	CreatedAt       uint64
	RedemptionCount uint64
}

type storedMerchant struct {
	Name                  string
	WalletAddress         common.Address
	IsActive              bool
	DefaultCouponValueUSD uint64
	TotalSweatReceived    *big.Int
	TotalEthReceived      *big.Int
}
