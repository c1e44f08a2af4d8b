package driver

import (
	"errors"
	"fmt"
)

var (
	ErrStartup     = errors.New("driver: startup failed")
	ErrRuntimeLink = errors.New("driver: link fault")
	ErrNotStarted  = errors.New("driver: not started")
	ErrBusy        = errors.New("driver: transmission already in flight")
	ErrUnknownKind = errors.New("driver: unknown driver kind")
	ErrInvalid     = errors.New("driver: invalid configuration")
)

// StartupError is returned when a transport cannot open its channel.
type StartupError struct {
	Kind Kind
	Err  error
}

func (e StartupError) Error() string {
	return fmt.Sprintf("driver: %s startup: %v", e.Kind, e.Err)
}

func (e StartupError) Unwrap() []error { return []error{ErrStartup, e.Err} }

// LinkError wraps a transient I/O fault observed while servicing the link.
func LinkError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrRuntimeLink, op, err)
}
