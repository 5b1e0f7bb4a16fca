package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"assignly/internal/model"
)

func TestDebit(t *testing.T) {
	tests := []struct {
		name    string
		in      Balance
		pages   int
		want    Balance
		wantErr error
	}{
		{
			name:  "charges quota and counters",
			in:    Balance{PageQuota: 40},
			pages: 5,
			want:  Balance{PageQuota: 35, TotalOrdersPlaced: 1, TotalPagesUsed: 5},
		},
		{
			name:  "exact quota reaches zero",
			in:    Balance{PageQuota: 5, TotalOrdersPlaced: 2, TotalPagesUsed: 35},
			pages: 5,
			want:  Balance{PageQuota: 0, TotalOrdersPlaced: 3, TotalPagesUsed: 40},
		},
		{
			name:    "insufficient quota",
			in:      Balance{PageQuota: 10},
			pages:   15,
			want:    Balance{PageQuota: 10},
			wantErr: ErrInsufficientQuota,
		},
		{
			name:    "zero pages",
			in:      Balance{PageQuota: 10},
			pages:   0,
			want:    Balance{PageQuota: 10},
			wantErr: ErrInvalidPages,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Debit(tt.in, tt.pages)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDebitNeverNegative(t *testing.T) {
	b := Balance{PageQuota: 23}
	for _, pages := range []int{4, 9, 1, 7, 3, 12, 2, 5} {
		next, err := Debit(b, pages)
		if err == nil {
			b = next
		}
		assert.GreaterOrEqual(t, b.PageQuota, 0)
	}
	assert.Equal(t, 0, b.PageQuota)
}

func TestCredit(t *testing.T) {
	t.Run("restores exactly", func(t *testing.T) {
		res, err := Credit(Balance{PageQuota: 35, TotalOrdersPlaced: 1, TotalPagesUsed: 5}, 5)
		require.NoError(t, err)
		assert.Equal(t, Balance{PageQuota: 40}, res.Balance)
		assert.False(t, res.Clamped)
	})

	t.Run("floors counters and reports clamp", func(t *testing.T) {
		res, err := Credit(Balance{PageQuota: 10, TotalOrdersPlaced: 0, TotalPagesUsed: 2}, 5)
		require.NoError(t, err)
		assert.Equal(t, Balance{PageQuota: 15}, res.Balance)
		assert.True(t, res.Clamped)
	})

	t.Run("rejects non-positive pages", func(t *testing.T) {
		_, err := Credit(Balance{}, 0)
		assert.ErrorIs(t, err, ErrInvalidPages)
	})
}

func TestDebitThenCreditRoundTrip(t *testing.T) {
	start := Balance{PageQuota: 40, TotalOrdersPlaced: 3, TotalPagesUsed: 12}
	debited, err := Debit(start, 7)
	require.NoError(t, err)
	credited, err := Credit(debited, 7)
	require.NoError(t, err)
	assert.Equal(t, start, credited.Balance)
}

func TestBalanceApply(t *testing.T) {
	a := model.Account{ID: "u1", PageQuota: 1}
	b := BalanceOf(a)
	b.PageQuota = 9
	b.TotalPagesUsed = 4
	b.Apply(&a)
	assert.Equal(t, 9, a.PageQuota)
	assert.Equal(t, 4, a.TotalPagesUsed)
	assert.Equal(t, "u1", a.ID)
}

func TestDebitAccount(t *testing.T) {
	active := model.Account{ID: "u1", PageQuota: 40, IsActive: true}
	b, err := DebitAccount(active, 5)
	require.NoError(t, err)
	assert.Equal(t, 35, b.PageQuota)

	inactive := model.Account{ID: "u2", PageQuota: 40}
	b, err = DebitAccount(inactive, 5)
	assert.ErrorIs(t, err, ErrAccountInactive)
	assert.Equal(t, 40, b.PageQuota)
	assert.Equal(t, 0, b.TotalOrdersPlaced)
}
