package ledger

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/renaultluk/sweat-coin/core/types"
)

const (
	EventTypeMinted      = "ledger.minted"
	EventTypeBurned      = "ledger.burned"
	EventTypeTransferred = "ledger.transferred"
	EventTypeApproved    = "ledger.approved"
	EventTypeRoleGranted = "ledger.role.granted"
	EventTypeRoleRevoked = "ledger.role.revoked"
)

func amountString(amount *big.Int) string {
	if amount == nil {
		return "0"
	}
	return amount.String()
}

func newTransferEvent(eventType string, from, to common.Address, amount *big.Int) *types.Event {
	return &types.Event{Type: eventType, Attributes: map[string]string{
		"from":   from.Hex(),
		"to":     to.Hex(),
		"amount": amountString(amount),
	}}
}

func newRoleEvent(eventType string, caller, account common.Address, role Role) *types.Event {
	return &types.Event{Type: eventType, Attributes: map[string]string{
		"caller":  caller.Hex(),
		"account": account.Hex(),
		"role":    string(role),
	}}
}

func newApprovalEvent(owner, spender common.Address, amount *big.Int) *types.Event {
	return &types.Event{Type: EventTypeApproved, Attributes: map[string]string{
		"owner":   owner.Hex(),
		"spender": spender.Hex(),
		"amount":  amountString(amount),
	}}
}
