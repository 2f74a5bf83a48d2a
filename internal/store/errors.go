package store

import "errors"

// Kind classifies a store error the way the API layer maps it to an
// HTTP status code (see spec §7 error handling design).
type Kind string

const (
	KindNotFound  Kind = "not_found"
	KindConflict  Kind = "conflict"
	KindInvalid   Kind = "invalid"
	KindTransient Kind = "transient"
	KindFatal     Kind = "fatal"
)

// Error wraps an underlying error with a Kind so callers can branch on
// errors.As without string-matching driver errors.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Op + ": " + string(e.Kind)
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

func newErr(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// ErrNotFound reports whether err (or any error it wraps) is a NotFound store error.
func ErrNotFound(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindNotFound
}

// ErrConflict reports whether err (or any error it wraps) is a Conflict store error.
func ErrConflict(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindConflict
}
