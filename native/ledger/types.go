package ledger

import (
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
)

// TokenName, TokenSymbol and TokenDecimals describe the single fungible unit
// tracked by the ledger.
const (
	TokenName     = "SweatCoin"
	TokenSymbol   = "SWEAT"
	TokenDecimals = 18
)

// Role is a capability granted to an account. Exactly the minter set may grow
// total supply and exactly the burner set may shrink it.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMinter Role = "minter"
	RoleBurner Role = "burner"
	RoleOracle Role = "oracle"
)

func validRole(role Role) bool {
	switch role {
	case RoleAdmin, RoleMinter, RoleBurner, RoleOracle:
		return true
	}
	return false
}

// ParseRole converts an external role name into a Role.
func ParseRole(name string) (Role, error) {
	role := Role(name)
	if !validRole(role) {
		return "", ErrUnknownRole
	}
	return role, nil
}

// Account is the in-memory view of a ledger account.
type Account struct {
	Balance    *big.Int
	Roles      map[Role]bool
	Allowances map[common.Address]*big.Int
}

func newAccount() *Account {
	return &Account{
		Balance:    big.NewInt(0),
		Roles:      make(map[Role]bool),
		Allowances: make(map[common.Address]*big.Int),
	}
}

// storedAccount mirrors Account for RLP persistence. Maps are flattened to
// sorted slices so encoding is deterministic.
type storedAccount struct {
	Balance    *big.Int
	Roles      []string
	Allowances []storedAllowance
}

type storedAllowance struct {
	Spender common.Address
	Amount  *big.Int
}

func toStoredAccount(account *Account) storedAccount {
	stored := storedAccount{Balance: account.Balance}
	if stored.Balance == nil {
		stored.Balance = big.NewInt(0)
	}
	for role := range account.Roles {
		stored.Roles = append(stored.Roles, string(role))
	}
	sort.Strings(stored.Roles)
	for spender, amount := range account.Allowances {
		if amount == nil || amount.Sign() <= 0 {
			continue
		}
		stored.Allowances = append(stored.Allowances, storedAllowance{Spender: spender, Amount: amount})
	}
	sort.Slice(stored.Allowances, func(i, j int) bool {
		return stored.Allowances[i].Spender.Hex() < stored.Allowances[j].Spender.Hex()
	})
	return stored
}

func fromStoredAccount(stored *storedAccount) *Account {
	account := newAccount()
	if stored.Balance != nil {
		account.Balance = new(big.Int).Set(stored.Balance)
	}
	for _, role := range stored.Roles {
		account.Roles[Role(role)] = true
	}
	for _, allowance := range stored.Allowances {
		if allowance.Amount == nil {
			continue
		}
		account.Allowances[allowance.Spender] = new(big.Int).Set(allowance.Amount)
	}
	return account
}
