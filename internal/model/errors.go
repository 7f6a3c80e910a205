package model

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so callers can map it to a response
type Kind int

const (
	KindInternal Kind = iota
	KindInvalidInput
	KindUpstreamRateLimited
	KindUpstreamQuotaExhausted
	KindUpstreamUnavailable
	KindContractViolation
	KindPersistenceFailure
	KindModalityUnsupported
)

func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid input"
	case KindUpstreamRateLimited:
		return "upstream rate limited"
	case KindUpstreamQuotaExhausted:
		return "upstream quota exhausted"
	case KindUpstreamUnavailable:
		return "upstream unavailable"
	case KindContractViolation:
		return "contract violation"
	case KindPersistenceFailure:
		return "persistence failure"
	case KindModalityUnsupported:
		return "modality unsupported"
	default:
		return "internal error"
	}
}

// Error carries a Kind along with the failing operation
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// E wraps err with a kind
func E(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf builds a kinded error from a format string
func Errorf(kind Kind, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of the outermost *Error in err's chain
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
