package module

import (
	"errors"
	"fmt"
)

// ErrUnsupportedFormat is returned when the input matches no known
// tracker signature. It aborts the current file only.
var ErrUnsupportedFormat = errors.New("unsupported module format")

// ErrOutOfBounds is returned by Reader when a read would pass the end of
// the buffer. Parsers never let it escape raw: it is always wrapped into
// a *CorruptError before reaching the caller.
var ErrOutOfBounds = errors.New("read out of bounds")

// CorruptError reports a structural problem found while decoding a module,
// with the byte offset and the field being read when decoding failed.
type CorruptError struct {
	Offset int
	Field  string
	Err    error
}

func (e *CorruptError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("corrupt module: %s at offset %d: %v", e.Field, e.Offset, e.Err)
	}
	return fmt.Sprintf("corrupt module: %s at offset %d", e.Field, e.Offset)
}

func (e *CorruptError) Unwrap() error { return e.Err }

// corrupt wraps err (typically ErrOutOfBounds) with parse position context.
func corrupt(field string, offset int, err error) error {
	return &CorruptError{Offset: offset, Field: field, Err: err}
}
