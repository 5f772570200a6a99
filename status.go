package objdb

import (
	"errors"
	"fmt"

	"github.com/andreyvit/objdb/codec"
)

// Status is the stable numeric code of an error kind, for callers that
// cannot inspect Go error values (e.g. across a foreign-call boundary).
// The numeric values are part of the public contract and never change.
type Status uint8

const (
	StatusOK Status = iota
	StatusSchema
	StatusInvalidArgument
	StatusNotFound
	StatusTransactionConflict
	StatusEncoding
	StatusIO
	StatusUniqueViolated
)

var statusNames = [...]string{
	StatusOK:                  "OK",
	StatusSchema:              "Schema",
	StatusInvalidArgument:     "InvalidArgument",
	StatusNotFound:            "NotFound",
	StatusTransactionConflict: "TransactionConflict",
	StatusEncoding:            "Encoding",
	StatusIO:                  "IO",
	StatusUniqueViolated:      "UniqueViolated",
}

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("Status(%d)", uint8(s))
}

func (s Status) sentinel() error {
	switch s {
	case StatusSchema:
		return ErrSchema
	case StatusInvalidArgument:
		return ErrInvalidArgument
	case StatusNotFound:
		return ErrNotFound
	case StatusTransactionConflict:
		return ErrTransactionConflict
	case StatusEncoding:
		return ErrEncoding
	case StatusIO:
		return ErrIO
	case StatusUniqueViolated:
		return ErrUniqueViolated
	default:
		return nil
	}
}

// StatusOf maps any error returned by this package to its Status. Errors
// that did not originate here are reported as StatusIO, since the only
// foreign errors that can surface come from the storage layer.
func StatusOf(err error) Status {
	if err == nil {
		return StatusOK
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Status
	}
	if errors.Is(err, codec.ErrCorrupted) || errors.Is(err, codec.ErrTooLarge) {
		return StatusEncoding
	}
	return StatusIO
}
