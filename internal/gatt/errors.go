package gatt

import (
	"fmt"
)

// FailureKind represents the specific kind of operation failure
type FailureKind string

const (
	AlreadyConnecting       FailureKind = "already_connecting"
	OperationInProgress     FailureKind = "operation_in_progress"
	MissingConfigDescriptor FailureKind = "missing_config_descriptor"
	DiscoveryStartFailed    FailureKind = "discovery_start_failed"
	TransportRejected       FailureKind = "transport_rejected"
	ConnectionLost          FailureKind = "connection_lost"
	UnknownConnectionState  FailureKind = "unknown_connection_state"
)

// OpError represents any operation-level problem raised by the facade or
// delivered through a failed waiter.
type OpError struct {
	Kind FailureKind
	Msg  string
}

// Error implements the error interface
func (e *OpError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

// Is allows errors.Is to compare OpError values by Kind
func (e *OpError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*OpError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Predefined sentinel errors for operation failures
var (
	ErrAlreadyConnecting       = &OpError{Kind: AlreadyConnecting}
	ErrOperationInProgress     = &OpError{Kind: OperationInProgress}
	ErrMissingConfigDescriptor = &OpError{Kind: MissingConfigDescriptor}
	ErrDiscoveryStartFailed    = &OpError{Kind: DiscoveryStartFailed}
	ErrTransportRejected       = &OpError{Kind: TransportRejected}
	ErrConnectionLost          = &OpError{Kind: ConnectionLost}
)

// opError builds an OpError of the given kind with a formatted message.
// The result still matches the kind's sentinel via errors.Is.
func opError(kind FailureKind, format string, args ...interface{}) *OpError {
	return &OpError{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// RemoteWriteError reports a write-result event that carried a non-success
// status from the remote peer.
type RemoteWriteError struct {
	Status Status
}

// Error implements the error interface
func (e *RemoteWriteError) Error() string {
	return fmt.Sprintf("remote write failed: status 0x%02x", int(e.Status))
}
