package codec

import (
	"errors"
	"fmt"
)

// ErrCorrupted is wrapped by every DataError produced while decoding.
var ErrCorrupted = errors.New("corrupted object")

// ErrTooLarge is reported by Builder when a value does not fit the format.
var ErrTooLarge = errors.New("value too large")

type DataError struct {
	Data []byte
	Off  int
	Err  error
	Msg  string
}

func dataErrf(data []byte, off int, err error, format string, args ...any) error {
	return &DataError{data, off, err, fmt.Sprintf(format, args...)}
}

func (e *DataError) Unwrap() error {
	return e.Err
}

func (e *DataError) Error() string {
	const prefixLen = 64
	const suffixLen = 32
	n := len(e.Data)
	if n <= prefixLen+suffixLen {
		if e.Err != nil {
			return fmt.Sprintf("%s at %d: %v: (%d) %x", e.Msg, e.Off, e.Err, n, e.Data)
		} else {
			return fmt.Sprintf("%s at %d: (%d) %x", e.Msg, e.Off, n, e.Data)
		}
	} else {
		p, s := e.Data[:prefixLen], e.Data[n-suffixLen:]
		if e.Err != nil {
			return fmt.Sprintf("%s at %d: %v: (%d) %x...%x", e.Msg, e.Off, e.Err, n, p, s)
		} else {
			return fmt.Sprintf("%s at %d: (%d) %x...%x", e.Msg, e.Off, n, p, s)
		}
	}
}
