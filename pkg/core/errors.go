package core

import (
	"errors"
	"fmt"
)

// Common errors.
var (
	ErrReadOnly = errors.New("repository is in read-only mode")
	ErrNotFound = errors.New("entity not found")
	ErrClosed   = errors.New("repository is closed")
)

// PersistenceError reports that the underlying store could not be reached or
// returned corrupt data. It is always surfaced to the caller.
type PersistenceError struct {
	Op   string
	Kind Kind
	Key  string
	Err  error
}

func (e *PersistenceError) Error() string {
	if e.Key == "" && e.Kind == "" {
		return fmt.Sprintf("persistence: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("persistence: %s %s/%s: %v", e.Op, e.Kind, e.Key, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// NewPersistenceError wraps err unless it already is a *PersistenceError.
func NewPersistenceError(op string, kind Kind, key string, err error) error {
	if err == nil {
		return nil
	}
	var pe *PersistenceError
	if errors.As(err, &pe) {
		return err
	}
	return &PersistenceError{Op: op, Kind: kind, Key: key, Err: err}
}

// ContractViolation is the panic value raised when a caller breaks an API
// contract (nil argument, type mismatch, counter underflow, corrupt encoding).
// It must not be recovered as a business case.
type ContractViolation struct {
	Msg string
}

func (v *ContractViolation) Error() string { return "contract violation: " + v.Msg }

// Violation panics with a *ContractViolation.
func Violation(format string, args ...any) {
	panic(&ContractViolation{Msg: fmt.Sprintf(format, args...)})
}
