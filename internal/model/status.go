package model

import (
	"errors"
	"fmt"
	"strings"
)

// Status is the lifecycle state of an order. Values are ordered; an order
// never moves to a status with a lower rank.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

// legacyWriting is the label older records use for StatusInProgress.
const legacyWriting = "writing"

var ErrInvalidTransition = errors.New("invalid status transition")

var statusRank = map[Status]int{
	StatusPending:    0,
	StatusInProgress: 1,
	StatusCompleted:  2,
}

// ParseStatus maps a stored or user supplied label to a Status.
func ParseStatus(s string) (Status, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	if v == legacyWriting {
		return StatusInProgress, nil
	}
	st := Status(v)
	if _, ok := statusRank[st]; !ok {
		return "", fmt.Errorf("unknown order status %q", s)
	}
	return st, nil
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := statusRank[s]
	return ok
}

// Rank returns the position of s in the lifecycle, or -1 if unknown.
func (s Status) Rank() int {
	r, ok := statusRank[s]
	if !ok {
		return -1
	}
	return r
}

// CanTransition reports whether an order may move from one status to another.
// Staying in the same status is allowed so that updates touching only notes pass.
func CanTransition(from, to Status) bool {
	if !from.Valid() || !to.Valid() {
		return false
	}
	return to.Rank() >= from.Rank()
}
