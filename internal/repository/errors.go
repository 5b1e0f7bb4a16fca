package repository

import (
	"errors"
	"fmt"

	"assignly/internal/ledger"
	"assignly/internal/model"
)

var (
	ErrAccountNotFound    = errors.New("account not found")
	ErrOrderNotFound      = errors.New("order not found")
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// StoreError wraps a backend failure. It matches ErrStorageUnavailable with
// errors.Is while keeping the driver error reachable through Unwrap.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, ErrStorageUnavailable, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func (e *StoreError) Is(target error) bool { return target == ErrStorageUnavailable }

// Unavailable wraps err as a StoreError unless it is nil or already a domain error.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StoreError
	if errors.As(err, &se) || isDomain(err) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}

func isDomain(err error) bool {
	for _, target := range []error{
		ErrAccountNotFound,
		ErrOrderNotFound,
		ledger.ErrInsufficientQuota,
		ledger.ErrInvalidPages,
		model.ErrInvalidTransition,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
