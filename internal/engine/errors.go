package engine

import (
	"errors"
	"fmt"

	"annoline/internal/repo"
)

// Error kinds reported by Kind.
const (
	KindNotFound     = "not_found"
	KindValidation   = "validation"
	KindUnauthorized = "unauthorized"
	KindInternal     = "internal"
)

// NotFoundError reports a missing entity.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

func (NotFoundError) ErrorKind() string { return KindNotFound }

// ValidationError reports a request that breaks a domain rule.
type ValidationError struct {
	Msg string
}

func (e ValidationError) Error() string { return e.Msg }

func (ValidationError) ErrorKind() string { return KindValidation }

// UnauthorizedError reports an actor acting on something it does not own.
type UnauthorizedError struct {
	Msg string
}

func (e UnauthorizedError) Error() string { return e.Msg }

func (UnauthorizedError) ErrorKind() string { return KindUnauthorized }

// ErrConflict is returned when a data item changed between read and write.
// Engine operations retry it before giving up.
var ErrConflict = errors.New("data item modified concurrently")

type classified interface {
	ErrorKind() string
}

// Kind classifies err for the API boundary. Unclassified errors are internal.
func Kind(err error) string {
	var c classified
	if errors.As(err, &c) {
		return c.ErrorKind()
	}
	return KindInternal
}

func validationf(format string, args ...any) error {
	return ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// lookupErr turns repo.ErrNotFound into a NotFoundError for the entity.
func lookupErr(entity string, id any, err error) error {
	if errors.Is(err, repo.ErrNotFound) {
		return NotFoundError{Entity: entity, ID: fmt.Sprint(id)}
	}
	return fmt.Errorf("load %s %v: %w", entity, id, err)
}
