package merchant

import "errors"

var (
	ErrUnauthorized          = errors.New("merchant: unauthorized")
	ErrCouponNotFound        = errors.New("merchant: coupon not found")
	ErrCouponInactive        = errors.New("merchant: coupon inactive")
	ErrCouponDeactivated     = errors.New("merchant: coupon deactivated")
	ErrMerchantNotFound      = errors.New("merchant: merchant not registered")
	ErrInvalidValue          = errors.New("merchant: coupon value must be positive")
	ErrInsufficientAllowance = errors.New("merchant: insufficient allowance")
	ErrInsufficientBalance   = errors.New("merchant: insufficient balance")
)
