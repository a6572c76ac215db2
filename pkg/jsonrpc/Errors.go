// Package jsonrpc with the line-delimited JSON-RPC messages, framing,
// transport and command channel used to talk to a maveo box.
package jsonrpc

import (
	"errors"
	"fmt"
)

// ErrConnectionBroken is returned when the hub closes the connection, seen
// as a zero-length read. The channel cannot be used afterwards; the caller
// owns reconnecting.
var ErrConnectionBroken = errors.New("Connection broken")

// TransportError is returned when neither the plain TCP attempt nor the
// unverified TLS retry produced a working connection.
type TransportError struct {
	Address  string
	PlainErr error
	TLSErr   error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("Unable to connect to %s: %s (plain), %s (tls)",
		e.Address, e.PlainErr, e.TLSErr)
}

// Unwrap returns the TLS attempt's error, the last cause in the fallback chain
func (e *TransportError) Unwrap() error {
	return e.TLSErr
}

// ProtocolError is returned on a malformed frame or an unexpected message
// structure. Fatal for the channel it occurred on.
type ProtocolError struct {
	Reason string
	Cause  error
}

func (e *ProtocolError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("Protocol error: %s", e.Reason)
	}
	return fmt.Sprintf("Protocol error: %s: %s", e.Reason, e.Cause)
}

func (e *ProtocolError) Unwrap() error {
	return e.Cause
}

// CommandError is returned when the hub answers a request with a status
// other than success. It carries the hub's error string and is recoverable
// at the call site.
type CommandError struct {
	Method  string
	Status  string
	Message string
}

func (e *CommandError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("Command %s failed with status %s", e.Method, e.Status)
	}
	return fmt.Sprintf("Command %s failed with status %s: %s", e.Method, e.Status, e.Message)
}

// IsUnauthorized tells whether the hub rejected the request's token
func (e *CommandError) IsUnauthorized() bool {
	return e.Status == StatusUnauthorized
}
