package ledger

import "errors"

var (
	ErrUnauthorized          = errors.New("ledger: unauthorized")
	ErrInvalidAmount         = errors.New("ledger: amount must be positive")
	ErrInsufficientBalance   = errors.New("ledger: insufficient balance")
	ErrInsufficientAllowance = errors.New("ledger: insufficient allowance")
	ErrUnknownRole           = errors.New("ledger: unknown role")
)
