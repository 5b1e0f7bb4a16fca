package firestore

import (
	"fmt"
	"time"

	"cloud.google.com/go/firestore"

	"assignly/internal/model"
)

// accountDoc is the stored shape of users/{id}.
type accountDoc struct {
	Email                string     `firestore:"email"`
	Name                 string     `firestore:"name,omitempty"`
	Role                 string     `firestore:"role"`
	PageQuota            int        `firestore:"pageQuota"`
	TotalOrdersPlaced    int        `firestore:"totalOrdersPlaced"`
	TotalPagesUsed       int        `firestore:"totalPagesUsed"`
	IsActive             bool       `firestore:"isActive"`
	CreatedAt            time.Time  `firestore:"createdAt"`
	QuotaLastReplenished *time.Time `firestore:"quotaLastReplenished,omitempty"`
}

type fileDoc struct {
	Name   string `firestore:"name"`
	FileID string `firestore:"fileId"`
	URL    string `firestore:"url,omitempty"`
}

// orderDoc is the stored shape of users/{id}/orders/{orderId}.
type orderDoc struct {
	UserID              string     `firestore:"userId"`
	UserEmail           string     `firestore:"userEmail"`
	Title               string     `firestore:"title"`
	OrderType           string     `firestore:"orderType"`
	OriginalFiles       []fileDoc  `firestore:"originalFiles"`
	PageCount           int        `firestore:"pageCount"`
	Status              string     `firestore:"status"`
	ContainerID         string     `firestore:"containerId,omitempty"`
	Notes               string     `firestore:"notes,omitempty"`
	CompletedFileURL    string     `firestore:"completedFileUrl,omitempty"`
	CreatedAt           time.Time  `firestore:"createdAt"`
	UpdatedAt           *time.Time `firestore:"updatedAt,omitempty"`
	StartedAt           *time.Time `firestore:"startedAt,omitempty"`
	CompletedAt         *time.Time `firestore:"completedAt,omitempty"`
	TurnaroundTimeHours *float64   `firestore:"turnaroundTimeHours,omitempty"`
}

func toAccountDoc(a *model.Account) accountDoc {
	return accountDoc{
		Email:                a.Email,
		Name:                 a.Name,
		Role:                 string(a.Role),
		PageQuota:            a.PageQuota,
		TotalOrdersPlaced:    a.TotalOrdersPlaced,
		TotalPagesUsed:       a.TotalPagesUsed,
		IsActive:             a.IsActive,
		CreatedAt:            a.CreatedAt,
		QuotaLastReplenished: a.QuotaLastReplenished,
	}
}

func decodeAccount(snap *firestore.DocumentSnapshot) (*model.Account, error) {
	var d accountDoc
	if err := snap.DataTo(&d); err != nil {
		return nil, fmt.Errorf("decode account %s: %w", snap.Ref.ID, err)
	}
	return &model.Account{
		ID:                   snap.Ref.ID,
		Email:                d.Email,
		Name:                 d.Name,
		Role:                 model.Role(d.Role),
		PageQuota:            d.PageQuota,
		TotalOrdersPlaced:    d.TotalOrdersPlaced,
		TotalPagesUsed:       d.TotalPagesUsed,
		IsActive:             d.IsActive,
		CreatedAt:            d.CreatedAt,
		QuotaLastReplenished: d.QuotaLastReplenished,
	}, nil
}

func toOrderDoc(o *model.Order) orderDoc {
	files := make([]fileDoc, 0, len(o.Files))
	for _, f := range o.Files {
		files = append(files, fileDoc{Name: f.Name, FileID: f.FileID, URL: f.URL})
	}
	return orderDoc{
		UserID:              o.AccountID,
		UserEmail:           o.AccountEmail,
		Title:               o.Title,
		OrderType:           string(o.OrderType),
		OriginalFiles:       files,
		PageCount:           o.PageCount,
		Status:              string(o.Status),
		ContainerID:         o.ContainerID,
		Notes:               o.Notes,
		CompletedFileURL:    o.CompletedFileURL,
		CreatedAt:           o.CreatedAt,
		UpdatedAt:           o.UpdatedAt,
		StartedAt:           o.StartedAt,
		CompletedAt:         o.CompletedAt,
		TurnaroundTimeHours: o.TurnaroundHours,
	}
}

func decodeOrder(snap *firestore.DocumentSnapshot) (*model.Order, error) {
	var d orderDoc
	if err := snap.DataTo(&d); err != nil {
		return nil, fmt.Errorf("decode order %s: %w", snap.Ref.ID, err)
	}
	st, err := model.ParseStatus(d.Status)
	if err != nil {
		return nil, fmt.Errorf("decode order %s: %w", snap.Ref.ID, err)
	}
	files := make([]model.FileRef, 0, len(d.OriginalFiles))
	for _, f := range d.OriginalFiles {
		files = append(files, model.FileRef{Name: f.Name, FileID: f.FileID, URL: f.URL})
	}
	accountID := d.UserID
	if parent := snap.Ref.Parent.Parent; parent != nil {
		accountID = parent.ID
	}
	return &model.Order{
		ID:               snap.Ref.ID,
		AccountID:        accountID,
		AccountEmail:     d.UserEmail,
		Title:            d.Title,
		OrderType:        model.OrderType(d.OrderType),
		Files:            files,
		PageCount:        d.PageCount,
		Status:           st,
		ContainerID:      d.ContainerID,
		Notes:            d.Notes,
		CompletedFileURL: d.CompletedFileURL,
		CreatedAt:        d.CreatedAt,
		UpdatedAt:        d.UpdatedAt,
		StartedAt:        d.StartedAt,
		CompletedAt:      d.CompletedAt,
		TurnaroundHours:  d.TurnaroundTimeHours,
	}, nil
}

func balanceUpdates(a *model.Account) []firestore.Update {
	return []firestore.Update{
		{Path: "pageQuota", Value: a.PageQuota},
		{Path: "totalOrdersPlaced", Value: a.TotalOrdersPlaced},
		{Path: "totalPagesUsed", Value: a.TotalPagesUsed},
	}
}
