package model

import "time"

// OrderType distinguishes the kind of submission.
type OrderType string

const (
	OrderTypeAssignment OrderType = "assignment"
	OrderTypePractical  OrderType = "practical"
)

// FileRef describes one uploaded file. FileID is the authoritative storage
// reference recorded at upload time and is what cleanup deletes by.
type FileRef struct {
	Name   string `json:"name" validate:"required"`
	FileID string `json:"file_id" validate:"required"`
	URL    string `json:"url,omitempty"`
}

// Order is one assignment submission. PageCount is fixed at creation and equals
// the amount debited from the owning account.
type Order struct {
	ID               string     `json:"id"`
	AccountID        string     `json:"account_id"`
	AccountEmail     string     `json:"account_email"`
	Title            string     `json:"title"`
	OrderType        OrderType  `json:"order_type"`
	Files            []FileRef  `json:"files"`
	PageCount        int        `json:"page_count"`
	Status           Status     `json:"status"`
	ContainerID      string     `json:"container_id,omitempty"`
	Notes            string     `json:"notes,omitempty"`
	CompletedFileURL string     `json:"completed_file_url,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        *time.Time `json:"updated_at,omitempty"`
	StartedAt        *time.Time `json:"started_at,omitempty"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	TurnaroundHours  *float64   `json:"turnaround_hours,omitempty"`
}

// OrderKey addresses an order under its owning account.
type OrderKey struct {
	AccountID string
	OrderID   string
}

// Key returns the address of o.
func (o Order) Key() OrderKey {
	return OrderKey{AccountID: o.AccountID, OrderID: o.ID}
}

// ApplyStatus moves o to status at the given time, stamping the lifecycle
// timestamps that belong to the new status. It does not touch the ledger.
func (o *Order) ApplyStatus(to Status, at time.Time) error {
	if !CanTransition(o.Status, to) {
		return ErrInvalidTransition
	}
	if to == o.Status {
		return nil
	}
	o.Status = to
	o.UpdatedAt = &at
	if to.Rank() >= StatusInProgress.Rank() && o.StartedAt == nil {
		o.StartedAt = &at
	}
	if to == StatusCompleted {
		o.CompletedAt = &at
		hours := at.Sub(o.CreatedAt).Hours()
		o.TurnaroundHours = &hours
	}
	return nil
}
