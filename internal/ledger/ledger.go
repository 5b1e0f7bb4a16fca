// Package ledger holds the page-quota accounting rules. The functions are pure:
// stores apply the returned balance inside the same transaction as the order
// write that caused it.
package ledger

import (
	"errors"

	"assignly/internal/model"
)

var (
	ErrInsufficientQuota = errors.New("insufficient page quota")
	ErrInvalidPages      = errors.New("page count must be positive")
	ErrAccountInactive   = errors.New("account is inactive")
)

// Balance is the mutable part of an account's ledger.
type Balance struct {
	PageQuota         int
	TotalOrdersPlaced int
	TotalPagesUsed    int
}

// BalanceOf extracts the ledger fields of a.
func BalanceOf(a model.Account) Balance {
	return Balance{
		PageQuota:         a.PageQuota,
		TotalOrdersPlaced: a.TotalOrdersPlaced,
		TotalPagesUsed:    a.TotalPagesUsed,
	}
}

// Apply copies b into a.
func (b Balance) Apply(a *model.Account) {
	a.PageQuota = b.PageQuota
	a.TotalOrdersPlaced = b.TotalOrdersPlaced
	a.TotalPagesUsed = b.TotalPagesUsed
}

// Debit charges pages for one new order.
func Debit(b Balance, pages int) (Balance, error) {
	if pages <= 0 {
		return b, ErrInvalidPages
	}
	if b.PageQuota < pages {
		return b, ErrInsufficientQuota
	}
	return Balance{
		PageQuota:         b.PageQuota - pages,
		TotalOrdersPlaced: b.TotalOrdersPlaced + 1,
		TotalPagesUsed:    b.TotalPagesUsed + pages,
	}, nil
}

// DebitAccount is Debit for a stored account. Inactive accounts cannot take
// on new orders.
func DebitAccount(a model.Account, pages int) (Balance, error) {
	if !a.IsActive {
		return BalanceOf(a), ErrAccountInactive
	}
	return Debit(BalanceOf(a), pages)
}

// CreditResult is the outcome of Credit.
type CreditResult struct {
	Balance Balance
	// Clamped is set when a usage counter would have gone negative and was
	// floored at zero. It signals bookkeeping drift and must be logged.
	Clamped bool
}

// Credit restores pages for one deleted order.
func Credit(b Balance, pages int) (CreditResult, error) {
	if pages <= 0 {
		return CreditResult{Balance: b}, ErrInvalidPages
	}
	orders, c1 := floorZero(b.TotalOrdersPlaced - 1)
	used, c2 := floorZero(b.TotalPagesUsed - pages)
	return CreditResult{
		Balance: Balance{
			PageQuota:         b.PageQuota + pages,
			TotalOrdersPlaced: orders,
			TotalPagesUsed:    used,
		},
		Clamped: c1 || c2,
	}, nil
}

func floorZero(v int) (int, bool) {
	if v < 0 {
		return 0, true
	}
	return v, false
}
