package launcher

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration matches any *ConfigurationError via errors.Is.
	ErrConfiguration = errors.New("configuration error")

	// ErrAlreadyLaunched is returned by Launch when the runtime has already
	// been started by this Launcher.
	ErrAlreadyLaunched = errors.New("launcher already started the runtime")

	// ErrNoRootComponent is returned when no component carries the boot marker.
	ErrNoRootComponent = errors.New("no boot component registered")

	// ErrDuplicateRoot is returned when more than one component carries the
	// boot marker.
	ErrDuplicateRoot = errors.New("more than one boot component registered")
)

// ConfigurationError reports a problem with the assembled process
// configuration. It is always fatal and always raised before the runtime
// opens a socket.
type ConfigurationError struct {
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	if e.Err == nil {
		return "configuration error: " + e.Reason
	}
	if e.Reason == "" {
		return "configuration error: " + e.Err.Error()
	}
	return fmt.Sprintf("configuration error: %s: %v", e.Reason, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrConfiguration) match every ConfigurationError.
func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// BindError reports that the runtime could not acquire the listen port.
// The launcher never retries and never falls back to another port.
type BindError struct {
	Port int
	Err  error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("binding port %d: %v", e.Port, e.Err)
}

func (e *BindError) Unwrap() error { return e.Err }
