// Package fault defines the error kinds reported by the trace pipeline.
//
// Components translate low-level failures into a *Error carrying one of
// the kinds below, so callers can branch with Is instead of matching
// message text.
package fault

import (
	"errors"
	"fmt"
)

type Kind uint8

const (
	Other Kind = iota
	SourceUnreadable
	TruncatedInput
	CacheCorrupt
	EmptyInput
	DivideByZero
)

func (k Kind) String() string {
	switch k {
	case SourceUnreadable:
		return "cannot open source"
	case TruncatedInput:
		return "truncated input"
	case CacheCorrupt:
		return "cache corrupt"
	case EmptyInput:
		return "empty input"
	case DivideByZero:
		return "divide by zero"
	}
	return "error"
}

// Error names the file or parameter that caused a failure.
type Error struct {
	Kind    Kind
	Subject string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Subject == "" && e.Err == nil:
		return e.Kind.String()
	case e.Subject == "":
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.Err == nil:
		return fmt.Sprintf("%s: %s", e.Subject, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Subject, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func New(k Kind, subject string, err error) error {
	return &Error{Kind: k, Subject: subject, Err: err}
}

func Newf(k Kind, subject string, format string, args ...interface{}) error {
	return &Error{Kind: k, Subject: subject, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of the first *Error in err's chain, or Other.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return Other
}

func Is(err error, k Kind) bool {
	return err != nil && KindOf(err) == k
}
