package sink

import (
	"errors"
	"fmt"
)

// ErrUnsupportedFormat is wrapped when the destination extension has no writer.
var ErrUnsupportedFormat = errors.New("unsupported output format")

// PersistenceError reports a failed Save. In-memory records are untouched.
type PersistenceError struct {
	Path string
	Op   string
	Err  error
}

// Error implements the error interface.
func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s: %s: %v", e.Path, e.Op, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *PersistenceError) Unwrap() error {
	return e.Err
}
