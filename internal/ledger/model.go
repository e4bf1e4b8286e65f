// Package ledger provides the atomic account-mutation primitives: debit,
// credit, and transfer over row-locked account rows, each paired with an
// append-only transaction record.
package ledger

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ScopeGold is the single global currency scope. Regional scopes are
// "cc:<region>", one local currency per region.
const (
	ScopeGold         = "gold"
	regionScopePrefix = "cc:"
)

// MaxTransactionAmount bounds both a single mutation and the balance
// ceiling, preventing numeric overflow in the store.
var MaxTransactionAmount = decimal.RequireFromString("999999999999.99999999")

var (
	ErrInvalidAmount     = errors.New("amount must be positive and within the transaction cap")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrOverflow          = errors.New("balance would exceed maximum")
	ErrAccountNotFound   = errors.New("account not found")
	ErrSameAccount       = errors.New("cannot transfer between identical accounts")
)

// AccountID names an account by owner and currency scope.
type AccountID struct {
	Owner string `json:"owner"`
	Scope string `json:"scope"`
}

// RegionScope builds the scope string for a region's local currency.
func RegionScope(region string) string {
	return regionScopePrefix + region
}

// IsRegionScope reports whether a scope is a per-region local currency.
// Regional accounts are garbage-collected when their balance hits zero;
// the gold account is kept.
func IsRegionScope(scope string) bool {
	return strings.HasPrefix(scope, regionScopePrefix)
}

// Less defines the global lock-acquisition order for operations touching
// two accounts. Any pair of accounts is always locked in the same order
// regardless of which is the source, so reverse transfers cannot deadlock.
func (a AccountID) Less(b AccountID) bool {
	if a.Owner != b.Owner {
		return a.Owner < b.Owner
	}
	return a.Scope < b.Scope
}

// Receipt is returned from every successful mutation.
type Receipt struct {
	Account      AccountID       `json:"account"`
	Amount       decimal.Decimal `json:"amount"` // signed: negative for debits
	Reason       string          `json:"reason"`
	BalanceAfter decimal.Decimal `json:"balance_after"`
}

// Transaction is one row of the append-only log, for statement reads.
type Transaction struct {
	ID           int64           `json:"id"`
	Account      AccountID       `json:"account"`
	Amount       decimal.Decimal `json:"amount"`
	Reason       string          `json:"reason"`
	BalanceAfter decimal.Decimal `json:"balance_after"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Balance is one (scope, amount) pair in an owner's statement.
type Balance struct {
	Scope  string          `json:"scope"`
	Amount decimal.Decimal `json:"amount"`
}

func validateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() || amount.GreaterThan(MaxTransactionAmount) {
		return ErrInvalidAmount
	}
	return nil
}
