package objdb

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrSchema              = errors.New("schema error")
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrNotFound            = errors.New("not found")
	ErrTransactionConflict = errors.New("transaction conflict")
	ErrEncoding            = errors.New("encoding error")
	ErrIO                  = errors.New("i/o error")
	ErrUniqueViolated      = errors.New("unique index violated")

	// ErrTxnFinished is reported when a committed or aborted transaction is
	// used again. It is an InvalidArgument error.
	ErrTxnFinished = errors.New("transaction already finished")
)

// Error is returned by every fallible operation of an Instance. Its Status
// places it into the closed error taxonomy; errors.Is matches it against the
// corresponding sentinel (ErrSchema, ErrNotFound etc).
type Error struct {
	Status     Status
	Collection string
	Msg        string
	Err        error
}

func newErr(status Status, coll string, err error, format string, args ...any) error {
	return &Error{status, coll, fmt.Sprintf(format, args...), err}
}

func schemaErrf(coll string, format string, args ...any) error {
	return newErr(StatusSchema, coll, nil, format, args...)
}

func argErrf(coll string, format string, args ...any) error {
	return newErr(StatusInvalidArgument, coll, nil, format, args...)
}

func ioErr(coll string, err error, msg string) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return &Error{StatusIO, coll, msg, err}
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	return target == e.Status.sentinel()
}

func (e *Error) Error() string {
	var buf strings.Builder
	buf.WriteString("objdb: ")
	if e.Collection != "" {
		buf.WriteString(e.Collection)
		buf.WriteString(": ")
	}
	if e.Msg != "" {
		buf.WriteString(e.Msg)
		if e.Err != nil {
			buf.WriteString(": ")
			buf.WriteString(e.Err.Error())
		}
	} else if e.Err != nil {
		buf.WriteString(e.Err.Error())
	} else {
		buf.WriteString(e.Status.sentinel().Error())
	}
	return buf.String()
}
