// Package apperr holds the error taxonomy shared by services and handlers.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("resource not found")
	// ErrForbidden indicates the actor lacks the capability for the operation.
	ErrForbidden = errors.New("forbidden")
	// ErrSystemRole is returned when a built-in role would be removed.
	ErrSystemRole = errors.New("system roles cannot be deleted")
)

// DuplicateNameError reports a role name collision.
type DuplicateNameError struct {
	Name string
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("role name %q already exists", e.Name)
}

// DuplicateKeyError reports a second permission row for an existing (role, page) pair.
type DuplicateKeyError struct {
	RoleID string
	Page   string
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("permission for page %q already exists on role %s", e.Page, e.RoleID)
}

// ValidationError is a rejection tied to a single input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// RangeViolationError reports a broken cross-field numeric invariant.
type RangeViolationError struct {
	Field   string
	Message string
}

func (e *RangeViolationError) Error() string {
	return e.Field + ": " + e.Message
}

// SeedingWarning describes a default permission row that could not be created.
// It is logged, never returned to callers of role creation unless strict seeding is on.
type SeedingWarning struct {
	Page string
	Err  error
}

func (w *SeedingWarning) Error() string {
	return fmt.Sprintf("seed default permission %q: %v", w.Page, w.Err)
}

func (w *SeedingWarning) Unwrap() error { return w.Err }

// StorageError wraps a persistence failure that aborted the enclosing transaction.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Storage wraps err as a StorageError unless it already carries a taxonomy type.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	if Classified(err) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// Classified reports whether err already belongs to the taxonomy.
func Classified(err error) bool {
	var (
		dupName  *DuplicateNameError
		dupKey   *DuplicateKeyError
		invalid  *ValidationError
		outRange *RangeViolationError
		storage  *StorageError
	)
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrForbidden), errors.Is(err, ErrSystemRole):
		return true
	case errors.As(err, &dupName), errors.As(err, &dupKey),
		errors.As(err, &invalid), errors.As(err, &outRange), errors.As(err, &storage):
		return true
	}
	return false
}

// FieldOf returns the field a rejection refers to, if any.
func FieldOf(err error) string {
	var invalid *ValidationError
	if errors.As(err, &invalid) {
		return invalid.Field
	}
	var outRange *RangeViolationError
	if errors.As(err, &outRange) {
		return outRange.Field
	}
	return ""
}
