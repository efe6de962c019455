package types

import "math/big"

// Account holds the balances tracked for a single address. The sale service
// only custodies two assets: the DGX sale token and the USDT payment asset.
// Balances are denominated in the smallest unit of each asset.
type Account struct {
	Nonce       uint64   `json:"nonce"`
	BalanceDGX  *big.Int `json:"balanceDGX"`
	BalanceUSDT *big.Int `json:"balanceUSDT"`
}

// NewAccount returns an account with zeroed, non-nil balances.
func NewAccount() *Account {
	return &Account{BalanceDGX: big.NewInt(0), BalanceUSDT: big.NewInt(0)}
}

// Normalize replaces nil balance pointers with zero values so callers can
// operate on the account without nil checks.
func (a *Account) Normalize() *Account {
	if a == nil {
		return NewAccount()
	}
	if a.BalanceDGX == nil {
		a.BalanceDGX = big.NewInt(0)
	}
	if a.BalanceUSDT == nil {
		a.BalanceUSDT = big.NewInt(0)
	}
	return a
}

// Clone returns a deep copy of the account.
func (a *Account) Clone() *Account {
	if a == nil {
		return NewAccount()
	}
	clone := &Account{
		Nonce:       a.Nonce,
		BalanceDGX:  big.NewInt(0),
		BalanceUSDT: big.NewInt(0),
	}
	if a.BalanceDGX != nil {
		clone.BalanceDGX = new(big.Int).Set(a.BalanceDGX)
	}
	if a.BalanceUSDT != nil {
		clone.BalanceUSDT = new(big.Int).Set(a.BalanceUSDT)
	}
	return clone
}
