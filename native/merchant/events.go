package merchant

import (
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"github.com/renaultluk/sweat-coin/core/types"
)

const (
	EventTypeMerchantRegistered = "merchant.registered"
	EventTypeCouponCreated      = "merchant.coupon.created"
	EventTypeCouponUpdated      = "merchant.coupon.updated"
	EventTypeCouponDeactivated  = "merchant.coupon.deactivated"
	EventTypeCouponRedeemed     = "merchant.coupon.redeemed"
)

func newMerchantRegisteredEvent(m *Merchant) *types.Event {
	return &types.Event{Type: EventTypeMerchantRegistered, Attributes: map[string]string{
		"name":                  m.Name,
		"wallet":                m.WalletAddress.Hex(),
		"defaultCouponValueUSD": strconv.FormatUint(m.DefaultCouponValueUSD, 10),
	}}
}

func newCouponCreatedEvent(c *Coupon) *types.Event {
	return &types.Event{Type: EventTypeCouponCreated, Attributes: map[string]string{
		"id":          strconv.FormatUint(c.ID, 10),
		"description": c.Description,
		"valueUSD":    strconv.FormatUint(c.ValueUSD, 10),
		"merchant":    c.MerchantAddress.Hex(),
	}}
}

func newCouponUpdatedEvent(c *Coupon) *types.Event {
	return &types.Event{Type: EventTypeCouponUpdated, Attributes: map[string]string{
		"id":          strconv.FormatUint(c.ID, 10),
		"description": c.Description,
		"valueUSD":    strconv.FormatUint(c.ValueUSD, 10),
		"isActive":    strconv.FormatBool(c.IsActive),
	}}
}

func newCouponDeactivatedEvent(id uint64) *types.Event {
	return &types.Event{Type: EventTypeCouponDeactivated, Attributes: map[string]string{
		"id": strconv.FormatUint(id, 10),
	}}
}

func newCouponRedeemedEvent(user common.Address, r *Redemption) *types.Event {
	return &types.Event{Type: EventTypeCouponRedeemed, Attributes: map[string]string{
		"user":             user.Hex(),
		"couponId":         strconv.FormatUint(r.CouponID, 10),
		"merchant":         r.Merchant.Hex(),
		"amountSpent":      r.AmountSpent.String(),
		"burned":           r.Burned.String(),
		"merchantShare":    r.MerchantShare.String(),
		"treasuryFee":      r.TreasuryFee.String(),
		"subsidyRequested": strconv.FormatBool(r.SubsidyRequested),
		"subsidyWei":       r.SubsidyWei.String(),
	}}
}
