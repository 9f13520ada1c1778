package treasury

import "errors"

var (
	ErrUnauthorized         = errors.New("treasury: unauthorized")
	ErrInsufficientReserve  = errors.New("treasury: insufficient reserve")
	ErrInvalidConfiguration = errors.New("treasury: invalid configuration")
	ErrOracleUnavailable    = errors.New("treasury: price oracle unavailable")
	ErrVenueUnavailable     = errors.New("treasury: swap venue unavailable")
)
