package device

import (
	"errors"
	"fmt"
)

// Errors shared by all back ends. Back ends wrap them so callers can use
// errors.Is regardless of the native error.
var (
	// ErrDeviceLost is returned when the device or queue handle is no
	// longer valid. It is fatal.
	ErrDeviceLost = errors.New("device: device lost")

	// ErrPresentFailed is returned when the surface is out of date (resize,
	// minimise). The caller recreates the surface and begins a new frame.
	ErrPresentFailed = errors.New("device: present failed")

	// ErrResourceCreation is returned when an allocation fails. It is
	// never retried.
	ErrResourceCreation = errors.New("device: resource creation failed")

	// ErrNoDeviceAvailable is returned when no registered back end could
	// be opened.
	ErrNoDeviceAvailable = errors.New("device: no back end available")
)

// BackendNotFoundError indicates a named back end is not registered.
type BackendNotFoundError struct {
	Name string
}

func (e *BackendNotFoundError) Error() string {
	return "device: back end not found: " + e.Name
}

// BackendUnavailableError indicates a back end is registered but cannot run
// on this system.
type BackendUnavailableError struct {
	Name string
}

func (e *BackendUnavailableError) Error() string {
	return "device: back end unavailable: " + e.Name
}

// ResourceError wraps an allocation failure with the resource kind.
func ResourceError(kind string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrResourceCreation, kind, err)
}
