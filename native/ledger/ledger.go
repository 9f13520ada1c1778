package ledger

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/renaultluk/sweat-coin/core/events"
	"github.com/renaultluk/sweat-coin/observability"
	"github.com/renaultluk/sweat-coin/storage"
)

var (
	accountPrefix = []byte("ledger/account/")
	supplyKey     = []byte("ledger/supply")
)

// Ledger tracks SWEAT balances, allowances and role memberships. All
// mutations are role gated: minter grows supply, burner shrinks it, admin
// manages the role sets themselves.
type Ledger struct {
	mu      sync.RWMutex
	store   storage.Database
	emitter events.Emitter
	metrics *observability.LedgerMetrics
}

func New(store storage.Database, emitter events.Emitter) (*Ledger, error) {
	if store == nil {
		return nil, fmt.Errorf("ledger: storage required")
	}
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	return &Ledger{store: store, emitter: emitter, metrics: observability.Ledger()}, nil
}

// Bootstrap grants the admin role to the supplied address without a caller
// check. It exists for genesis wiring only and is idempotent.
func (l *Ledger) Bootstrap(admin common.Address) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	account, err := l.getAccount(admin)
	if err != nil {
		return err
	}
	if account.Roles[RoleAdmin] {
		return nil
	}
	account.Roles[RoleAdmin] = true
	if err := l.putAccount(admin, account); err != nil {
		return err
	}
	l.emitter.Emit(newRoleEvent(EventTypeRoleGranted, admin, admin, RoleAdmin))
	return nil
}

// HasRole reports whether the account holds the role.
func (l *Ledger) HasRole(account common.Address, role Role) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	record, err := l.getAccount(account)
	if err != nil {
		return false
	}
	return record.Roles[role]
}

// GrantRole adds the role to the account's role set. Admin only.
func (l *Ledger) GrantRole(caller, account common.Address, role Role) error {
	if !validRole(role) {
		return ErrUnknownRole
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.requireRole(caller, RoleAdmin); err != nil {
		return err
	}
	record, err := l.getAccount(account)
	if err != nil {
		return err
	}
	if record.Roles[role] {
		return nil
	}
	record.Roles[role] = true
	if err := l.putAccount(account, record); err != nil {
		return err
	}
	l.emitter.Emit(newRoleEvent(EventTypeRoleGranted, caller, account, role))
	return nil
}

// RevokeRole removes the role from the account's role set. Admin only.
func (l *Ledger) RevokeRole(caller, account common.Address, role Role) error {
	if !validRole(role) {
		return ErrUnknownRole
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.requireRole(caller, RoleAdmin); err != nil {
		return err
	}
	record, err := l.getAccount(account)
	if err != nil {
		return err
	}
	if !record.Roles[role] {
		return nil
	}
	delete(record.Roles, role)
	if err := l.putAccount(account, record); err != nil {
		return err
	}
	l.emitter.Emit(newRoleEvent(EventTypeRoleRevoked, caller, account, role))
	return nil
}

// Mint credits amount to the target account and grows total supply. Minter
// role required.
func (l *Ledger) Mint(caller, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.requireRole(caller, RoleMinter); err != nil {
		return err
	}
	account, err := l.getAccount(to)
	if err != nil {
		return err
	}
	account.Balance = new(big.Int).Add(account.Balance, amount)
	if err := l.putAccount(to, account); err != nil {
		return err
	}
	supply, err := l.totalSupply()
	if err != nil {
		return err
	}
	if err := l.putSupply(new(big.Int).Add(supply, amount)); err != nil {
		return err
	}
	l.metrics.Mints.Inc()
	l.emitter.Emit(newTransferEvent(EventTypeMinted, common.Address{}, to, amount))
	return nil
}

// BurnFrom debits amount from the target account and shrinks total supply.
// The caller must hold the burner role; burning another account's balance
// additionally consumes a spending allowance from that account. Burning the
// caller's own holding needs no allowance, which is how the merchant gateway
// disposes of funds it has already pulled.
func (l *Ledger) BurnFrom(caller, from common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.requireRole(caller, RoleBurner); err != nil {
		return err
	}
	account, err := l.getAccount(from)
	if err != nil {
		return err
	}
	if account.Balance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	if caller != from {
		allowance := account.Allowances[caller]
		if allowance == nil || allowance.Cmp(amount) < 0 {
			return ErrInsufficientAllowance
		}
		account.Allowances[caller] = new(big.Int).Sub(allowance, amount)
	}
	account.Balance = new(big.Int).Sub(account.Balance, amount)
	if err := l.putAccount(from, account); err != nil {
		return err
	}
	supply, err := l.totalSupply()
	if err != nil {
		return err
	}
	if err := l.putSupply(new(big.Int).Sub(supply, amount)); err != nil {
		return err
	}
	l.metrics.Burns.Inc()
	l.emitter.Emit(newTransferEvent(EventTypeBurned, from, common.Address{}, amount))
	return nil
}

// Transfer moves amount from the sender's balance to the recipient.
func (l *Ledger) Transfer(from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.move(from, to, amount); err != nil {
		return err
	}
	l.emitter.Emit(newTransferEvent(EventTypeTransferred, from, to, amount))
	return nil
}

// TransferFrom moves amount from owner to recipient, consuming the spender's
// allowance.
func (l *Ledger) TransferFrom(spender, owner, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	account, err := l.getAccount(owner)
	if err != nil {
		return err
	}
	allowance := account.Allowances[spender]
	if allowance == nil || allowance.Cmp(amount) < 0 {
		return ErrInsufficientAllowance
	}
	if account.Balance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	account.Allowances[spender] = new(big.Int).Sub(allowance, amount)
	if err := l.putAccount(owner, account); err != nil {
		return err
	}
	if err := l.credit(to, amount); err != nil {
		return err
	}
	l.emitter.Emit(newTransferEvent(EventTypeTransferred, owner, to, amount))
	return nil
}

// Approve overwrites the spender's allowance from the owner.
func (l *Ledger) Approve(owner, spender common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	account, err := l.getAccount(owner)
	if err != nil {
		return err
	}
	account.Allowances[spender] = new(big.Int).Set(amount)
	if err := l.putAccount(owner, account); err != nil {
		return err
	}
	l.emitter.Emit(newApprovalEvent(owner, spender, amount))
	return nil
}

// Allowance returns the spender's remaining allowance from the owner.
func (l *Ledger) Allowance(owner, spender common.Address) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	account, err := l.getAccount(owner)
	if err != nil {
		return big.NewInt(0)
	}
	allowance := account.Allowances[spender]
	if allowance == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(allowance)
}

// BalanceOf returns the account's current balance.
func (l *Ledger) BalanceOf(account common.Address) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	record, err := l.getAccount(account)
	if err != nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(record.Balance)
}

// TotalSupply returns the outstanding supply of the unit.
func (l *Ledger) TotalSupply() *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	supply, err := l.totalSupply()
	if err != nil {
		return big.NewInt(0)
	}
	return supply
}

func (l *Ledger) requireRole(caller common.Address, role Role) error {
	record, err := l.getAccount(caller)
	if err != nil {
		return err
	}
	if !record.Roles[role] {
		return ErrUnauthorized
	}
	return nil
}

func (l *Ledger) move(from, to common.Address, amount *big.Int) error {
	account, err := l.getAccount(from)
	if err != nil {
		return err
	}
	if account.Balance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	account.Balance = new(big.Int).Sub(account.Balance, amount)
	if err := l.putAccount(from, account); err != nil {
		return err
	}
	return l.credit(to, amount)
}

func (l *Ledger) credit(to common.Address, amount *big.Int) error {
	account, err := l.getAccount(to)
	if err != nil {
		return err
	}
	account.Balance = new(big.Int).Add(account.Balance, amount)
	return l.putAccount(to, account)
}

func (l *Ledger) getAccount(addr common.Address) (*Account, error) {
	raw, err := l.store.Get(accountKey(addr))
	if err != nil {
		if err == storage.ErrNotFound {
			return newAccount(), nil
		}
		return nil, err
	}
	var stored storedAccount
	if err := rlp.DecodeBytes(raw, &stored); err != nil {
		return nil, fmt.Errorf("ledger: decode account %s: %w", addr.Hex(), err)
	}
	return fromStoredAccount(&stored), nil
}

func (l *Ledger) putAccount(addr common.Address, account *Account) error {
	encoded, err := rlp.EncodeToBytes(toStoredAccount(account))
	if err != nil {
		return err
	}
	return l.store.Put(accountKey(addr), encoded)
}

func (l *Ledger) totalSupply() (*big.Int, error) {
	raw, err := l.store.Get(supplyKey)
	if err != nil {
		if err == storage.ErrNotFound {
			return big.NewInt(0), nil
		}
		return nil, err
	}
	supply := new(big.Int)
	if err := rlp.DecodeBytes(raw, supply); err != nil {
		return nil, fmt.Errorf("ledger: decode supply: %w", err)
	}
	return supply, nil
}

func (l *Ledger) putSupply(supply *big.Int) error {
	encoded, err := rlp.EncodeToBytes(supply)
	if err != nil {
		return err
	}
	if err := l.store.Put(supplyKey, encoded); err != nil {
		return err
	}
	l.metrics.SetSupply(supply)
	return nil
}

func accountKey(addr common.Address) []byte {
	return append(append([]byte{}, accountPrefix...), addr.Bytes()...)
}
