package treasury

import (
	"context"
	"math/big"
)

// SwapVenue executes reserve trades against an external market. The venue is
// responsible for actually moving the SWEAT leg on the ledger; the treasury
// only adjusts its native reserve by the amounts the venue reports.
type SwapVenue interface {
	// SwapNativeForSweat spends amountNative wei and returns the SWEAT
	// delivered to the treasury's ledger account.
	SwapNativeForSweat(ctx context.Context, amountNative *big.Int) (*big.Int, error)
	// SwapSweatForNative spends amountSweat from the treasury's ledger
	// account and returns the native wei proceeds.
	SwapSweatForNative(ctx context.Context, amountSweat *big.Int) (*big.Int, error)
}

// UnavailableVenue rejects every trade. It is the default wiring until a
// real venue is configured.
type UnavailableVenue struct{}

func (UnavailableVenue) SwapNativeForSweat(context.Context, *big.Int) (*big.Int, error) {
	return nil, ErrVenueUnavailable
}

func (UnavailableVenue) SwapSweatForNative(context.Context, *big.Int) (*big.Int, error) {
	return nil, ErrVenueUnavailable
}
