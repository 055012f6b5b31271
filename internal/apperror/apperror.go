// Package apperror defines the error taxonomy the core returns at its
// public boundary, per spec.md §7. Internal, more detailed errors
// (eventdag.ErrBudgetExceeded, storage errors, backend apply errors) are
// wrapped into one of these kinds before crossing that boundary; they
// remain available via errors.Unwrap/errors.As for diagnostics.
package apperror

import (
	"fmt"

	"github.com/ankurah/ankurah/internal/eventdag"
)

// Kind is one member of the taxonomy.
type Kind int

const (
	NotFound Kind = iota
	InvalidQuery
	AccessDenied
	Timeout
	BudgetExceeded
	Rejected
	Failure
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "NotFound"
	case InvalidQuery:
		return "InvalidQuery"
	case AccessDenied:
		return "AccessDenied"
	case Timeout:
		return "Timeout"
	case BudgetExceeded:
		return "BudgetExceeded"
	case Rejected:
		return "Rejected"
	case Failure:
		return "Failure"
	default:
		return "Unknown"
	}
}

// Error is the taxonomy member returned at the core boundary. Subject
// identifies what the error is about (an entity id, a collection name, a
// peer id); it's free text because the taxonomy doesn't need it to be
// anything more.
type Error struct {
	Kind    Kind
	Subject string
	Cause   error
}

func (e *Error) Error() string {
	if e.Subject == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
	}
	if e.Cause == nil {
		return fmt.Sprintf("%s(%s)", e.Kind, e.Subject)
	}
	return fmt.Sprintf("%s(%s): %v", e.Kind, e.Subject, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

func New(kind Kind, subject string, cause error) *Error {
	return &Error{Kind: kind, Subject: subject, Cause: cause}
}

// FromBudgetExceeded wraps eventdag's lineage-specific budget error into the
// public taxonomy member, preserving both frontiers for diagnostics per
// spec.md §7.
func FromBudgetExceeded(subject string, err *eventdag.ErrBudgetExceeded) *Error {
	return &Error{Kind: BudgetExceeded, Subject: subject, Cause: err}
}

// Wrap classifies a lower-level error into the taxonomy, defaulting to
// Failure when nothing more specific applies. Callers that already know the
// right Kind should use New directly instead.
func Wrap(subject string, err error) *Error {
	if err == nil {
		return nil
	}
	if existing, ok := err.(*Error); ok {
		return existing
	}
	if be, ok := err.(*eventdag.ErrBudgetExceeded); ok {
		return FromBudgetExceeded(subject, be)
	}
	return New(Failure, subject, err)
}
