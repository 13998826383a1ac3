package loader

import (
	"errors"
	"fmt"
)

// Error kind sentinels. Use errors.Is to test a returned error against them.
var (
	// ErrNotFound is returned when an identifier does not resolve to any resource.
	ErrNotFound = errors.New("resource not found")

	// ErrIO is returned for local access failures (filesystem).
	ErrIO = errors.New("resource io error")

	// ErrTransport is returned for network access failures.
	ErrTransport = errors.New("resource transport error")

	// ErrStalenessCheck is returned when a freshness check could not be performed.
	ErrStalenessCheck = errors.New("staleness check failed")
)

// Kind classifies loader errors.
type Kind string

const (
	KindNotFound       Kind = "not_found"
	KindIO             Kind = "io"
	KindTransport      Kind = "transport"
	KindStalenessCheck Kind = "staleness_check"
	KindUnknown        Kind = "unknown"
)

// Error carries the kind, operation and identifier of a failed loader call.
type Error struct {
	Kind Kind
	Op   string
	ID   ID
	Err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %q: %s: %v", e.Op, string(e.ID), e.Kind, e.Err)
	}
	return fmt.Sprintf("%s %q: %s", e.Op, string(e.ID), e.Kind)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for this error's kind.
func (e *Error) Is(target error) bool {
	return target == e.Kind.sentinel()
}

func (k Kind) sentinel() error {
	switch k {
	case KindNotFound:
		return ErrNotFound
	case KindIO:
		return ErrIO
	case KindTransport:
		return ErrTransport
	case KindStalenessCheck:
		return ErrStalenessCheck
	default:
		return nil
	}
}

// KindOf returns the kind of the outermost classified error in err's chain.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var le *Error
	if errors.As(err, &le) {
		return le.Kind
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrIO):
		return KindIO
	case errors.Is(err, ErrTransport):
		return KindTransport
	case errors.Is(err, ErrStalenessCheck):
		return KindStalenessCheck
	}
	return KindUnknown
}

func notFound(op string, id ID, err error) error {
	return &Error{Kind: KindNotFound, Op: op, ID: id, Err: err}
}

func ioError(op string, id ID, err error) error {
	return &Error{Kind: KindIO, Op: op, ID: id, Err: err}
}

func transportError(op string, id ID, err error) error {
	return &Error{Kind: KindTransport, Op: op, ID: id, Err: err}
}

func stalenessError(id ID, err error) error {
	return &Error{Kind: KindStalenessCheck, Op: "is_fresh", ID: id, Err: err}
}
