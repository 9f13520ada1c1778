package rewards

import "errors"

var (
	ErrUnauthorized       = errors.New("rewards: unauthorized")
	ErrCooldownNotElapsed = errors.New("rewards: reward cooldown not met")
	ErrInvalidPeriod      = errors.New("rewards: invalid period")
	ErrZeroAddress        = errors.New("rewards: zero address")
)
