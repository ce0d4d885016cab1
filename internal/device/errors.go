package device

import (
	"errors"
	"fmt"
)

var (
	// ErrDeviceNotConnected is returned when no live connection exists for a device.
	ErrDeviceNotConnected = errors.New("device not connected")
	// ErrSendFailed is returned when a command could not be written to the device.
	ErrSendFailed = errors.New("failed to send command to device")
	// ErrTimeout is returned when no terminal response arrived in time.
	ErrTimeout = errors.New("device did not respond in time")
	// ErrDisconnected is returned when the device went away mid-operation.
	ErrDisconnected = errors.New("device disconnected mid-operation")
	// ErrShutdown is returned for operations still pending when the hub closes.
	ErrShutdown = errors.New("device hub shut down")
)

// DeviceError is a failure reported by the device itself.
type DeviceError struct {
	Kind    Kind
	Slot    int
	Status  Status
	Message string
}

func (e *DeviceError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("%s failed on device for ID %d", e.Kind, e.Slot)
}
