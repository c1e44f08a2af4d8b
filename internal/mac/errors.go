package mac

import (
	"errors"
	"fmt"
)

var (
	ErrConfiguration = errors.New("mac: invalid configuration")
	ErrNotStarted    = errors.New("mac: scheduler not started")
)

// ConfigurationError reports a schedule the scheduler refuses to run.
// Slot is -1 when the problem is not tied to one slot.
type ConfigurationError struct {
	Slot   int
	Field  string
	Reason string
}

func (e ConfigurationError) Error() string {
	if e.Slot >= 0 {
		return fmt.Sprintf("mac: slot[%d] %s: %s", e.Slot, e.Field, e.Reason)
	}
	return fmt.Sprintf("mac: %s: %s", e.Field, e.Reason)
}

func (e ConfigurationError) Unwrap() error { return ErrConfiguration }

func configErr(slot int, field, format string, args ...any) error {
	return ConfigurationError{Slot: slot, Field: field, Reason: fmt.Sprintf(format, args...)}
}
