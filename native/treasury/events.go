package treasury

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/renaultluk/sweat-coin/core/types"
)

const (
	EventTypeSubsidyPaid       = "treasury.subsidy.paid"
	EventTypeSubsidySkipped    = "treasury.subsidy.skipped"
	EventTypeStabilizeExecuted = "treasury.stabilize.executed"
	EventTypeStabilizeSkipped  = "treasury.stabilize.skipped"
	EventTypeWithdrawal        = "treasury.withdrawal"
)

func newSubsidyPaidEvent(merchant common.Address, amount *big.Int, receipt string) *types.Event {
	return &types.Event{Type: EventTypeSubsidyPaid, Attributes: map[string]string{
		"merchant": merchant.Hex(),
		"amount":   amount.String(),
		"receipt":  receipt,
	}}
}

func newSubsidySkippedEvent(merchant common.Address, reason string) *types.Event {
	return &types.Event{Type: EventTypeSubsidySkipped, Attributes: map[string]string{
		"merchant": merchant.Hex(),
		"reason":   reason,
	}}
}

func newStabilizeExecutedEvent(direction string, amountIn, amountOut *big.Int, quote PriceQuote) *types.Event {
	return &types.Event{Type: EventTypeStabilizeExecuted, Attributes: map[string]string{
		"direction": direction,
		"amountIn":  amountIn.String(),
		"amountOut": amountOut.String(),
		"price":     quote.Rate.FloatString(6),
		"quoteId":   quote.ID,
	}}
}

func newStabilizeSkippedEvent(reason, price string) *types.Event {
	attrs := map[string]string{"reason": reason}
	if price != "" {
		attrs["price"] = price
	}
	return &types.Event{Type: EventTypeStabilizeSkipped, Attributes: attrs}
}

func newWithdrawalEvent(recipient common.Address, amount *big.Int) *types.Event {
	return &types.Event{Type: EventTypeWithdrawal, Attributes: map[string]string{
		"recipient": recipient.Hex(),
		"amount":    amount.String(),
	}}
}
