package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/srg/gattlink/internal/gatt"
)

// formatUserError maps internal failures to messages a CLI user can act on.
func formatUserError(err error) string {
	var remoteErr *gatt.RemoteWriteError
	switch {
	case errors.Is(err, gatt.ErrConnectionLost):
		return "connection lost; check the device is powered and in range"
	case errors.Is(err, gatt.ErrAlreadyConnecting):
		return "a connection attempt is already in progress"
	case errors.Is(err, gatt.ErrMissingConfigDescriptor):
		return "characteristic does not support notifications (no configuration descriptor)"
	case errors.Is(err, gatt.ErrTransportRejected):
		return "the BLE stack rejected the operation; check the UUID exists on the device"
	case errors.Is(err, gatt.ErrOperationInProgress):
		return "another operation on the same target is still in flight"
	case errors.Is(err, context.DeadlineExceeded):
		return "operation timed out"
	case errors.As(err, &remoteErr):
		return fmt.Sprintf("device rejected the write (status 0x%02x)", int(remoteErr.Status))
	default:
		return err.Error()
	}
}
