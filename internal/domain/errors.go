package domain

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Error kinds. Match them with errors.Is.
var (
	ErrNotFound          = errors.New("not found")
	ErrValidation        = errors.New("validation failed")
	ErrContractViolation = errors.New("oracle contract violation")
	ErrOracleUnavailable = errors.New("oracle unavailable")
	ErrEmptyKey          = errors.New("empty process id")
	ErrNotInBatch        = errors.New("vm not in batch")
)

// Error carries the operation and the offending id or field alongside one of
// the kinds above.
type Error struct {
	Op    string
	Kind  error
	ID    string
	Field string
	Msg   string
	Err   error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.ID != "" {
		fmt.Fprintf(&b, " %s", e.ID)
	}
	fmt.Fprintf(&b, ": %v", e.Kind)
	if e.Field != "" {
		fmt.Fprintf(&b, ": field %s", e.Field)
	}
	if e.Msg != "" {
		fmt.Fprintf(&b, ": %s", e.Msg)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Is reports whether target is this error's kind.
func (e *Error) Is(target error) bool {
	return e.Kind == target
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NotFound reports a missing VM or bot.
func NotFound(op, id string) error {
	return &Error{Op: op, Kind: ErrNotFound, ID: id}
}

// Invalid reports a failed precondition on one field.
func Invalid(op, field, msg string) error {
	return &Error{Op: op, Kind: ErrValidation, Field: field, Msg: msg}
}

// KindOf returns the kind of err, or nil if it carries none.
func KindOf(err error) error {
	for _, kind := range []error{
		ErrNotFound, ErrValidation, ErrContractViolation,
		ErrOracleUnavailable, ErrEmptyKey, ErrNotInBatch,
	} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
