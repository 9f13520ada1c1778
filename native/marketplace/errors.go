package marketplace

import "errors"

var (
	ErrUnauthorized         = errors.New("marketplace: unauthorized")
	ErrDatasetNotFound      = errors.New("marketplace: dataset not found")
	ErrDatasetInactive      = errors.New("marketplace: dataset inactive")
	ErrAlreadyPurchased     = errors.New("marketplace: dataset already purchased")
	ErrIncorrectPayment     = errors.New("marketplace: payment does not match price")
	ErrInvalidPeriod        = errors.New("marketplace: invalid period")
	ErrInvalidConfiguration = errors.New("marketplace: invalid configuration")
)
