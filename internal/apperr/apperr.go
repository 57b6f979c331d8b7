// Package apperr classifies failures crossing component boundaries so the
// HTTP layer and the binaries can react to them without string matching.
//
// Kinds:
//   - KindConfig: missing or malformed credentials and database identifiers.
//     Fatal at startup.
//   - KindTransport: a call to the workspace provider or the LLM failed.
//   - KindDataShape: a record could not be interpreted.
//   - KindNotFound: the upstream reported the record does not exist.
//   - KindValidation: the caller sent an unusable request.
package apperr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindConfig
	KindTransport
	KindDataShape
	KindNotFound
	KindValidation
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindTransport:
		return "transport"
	case KindDataShape:
		return "data_shape"
	case KindNotFound:
		return "not_found"
	case KindValidation:
		return "validation"
	default:
		return "unknown"
	}
}

// Error wraps an underlying error with its kind and the operation that failed.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s error", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func Config(op string, err error) error     { return newError(KindConfig, op, err) }
func Transport(op string, err error) error  { return newError(KindTransport, op, err) }
func DataShape(op string, err error) error  { return newError(KindDataShape, op, err) }
func NotFound(op string, err error) error   { return newError(KindNotFound, op, err) }
func Validation(op string, err error) error { return newError(KindValidation, op, err) }

// KindOf returns the kind of the outermost *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func IsConfig(err error) bool     { return KindOf(err) == KindConfig }
func IsTransport(err error) bool  { return KindOf(err) == KindTransport }
func IsNotFound(err error) bool   { return KindOf(err) == KindNotFound }
func IsValidation(err error) bool { return KindOf(err) == KindValidation }
