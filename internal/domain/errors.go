package domain

import (
	"errors"
	"fmt"
)

var ErrInvariantViolation = errors.New("invariant violation")

// Invariant returns nil when ok holds. Otherwise it returns an error wrapping
// ErrInvariantViolation, or panics in builds tagged socksdebug.
func Invariant(ok bool, format string, args ...any) error {
	if ok {
		return nil
	}
	err := fmt.Errorf("%w: %s", ErrInvariantViolation, fmt.Sprintf(format, args...))
	if panicOnInvariant {
		panic(err)
	}
	return err
}
