// Package hubclient with the client facade for a maveo box: connection
// lifecycle, authentication, command submission, thing discovery and
// notification fan-out
package hubclient

import (
	"errors"
	"fmt"
)

// ErrNotConnected is returned when a command is sent before Connect
var ErrNotConnected = errors.New("Not connected to the hub")

// ErrAlreadyConnected is returned when Connect is called twice
var ErrAlreadyConnected = errors.New("Already connected to the hub")

// UnsupportedConfigurationError is returned by Connect when the hub is in a
// state this client cannot work with: it still requires its initial setup,
// or it offers no push-button authentication. Not retried; the operator has
// to reconfigure the hub.
type UnsupportedConfigurationError struct {
	Reason string
}

func (e *UnsupportedConfigurationError) Error() string {
	return fmt.Sprintf("Unsupported hub configuration: %s", e.Reason)
}
