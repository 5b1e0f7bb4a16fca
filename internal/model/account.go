package model

import "time"

// Role distinguishes students from administrators.
type Role string

const (
	RoleStudent Role = "student"
	RoleAdmin   Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleStudent || r == RoleAdmin
}

// Account is a registered user and its page ledger.
// The ID is issued by the identity provider and used as the primary key.
type Account struct {
	ID                   string     `json:"id"`
	Email                string     `json:"email"`
	Name                 string     `json:"name,omitempty"`
	Role                 Role       `json:"role"`
	PageQuota            int        `json:"page_quota"`
	TotalOrdersPlaced    int        `json:"total_orders_placed"`
	TotalPagesUsed       int        `json:"total_pages_used"`
	IsActive             bool       `json:"is_active"`
	CreatedAt            time.Time  `json:"created_at"`
	QuotaLastReplenished *time.Time `json:"quota_last_replenished,omitempty"`
}

// IsAdmin reports whether the account holds the admin role.
func (a Account) IsAdmin() bool {
	return a.Role == RoleAdmin
}
