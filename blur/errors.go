package blur

import (
	"errors"
	"fmt"
)

// ErrInvalidParameter is returned for malformed kernel parameters or grids.
var ErrInvalidParameter = errors.New("invalid parameter")

// errNoAccelerator reports that the host exposes no usable GPU adapter.
// It drives device selection and never reaches callers on its own.
var errNoAccelerator = errors.New("no parallel accelerator available")

// DeviceError is returned when the accelerated strategy fails to initialise,
// dispatch or synchronise. Err is the error reported by the device layer,
// unchanged.
type DeviceError struct {
	Device Device
	Op     string
	Err    error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Device, e.Op, e.Err)
}

func (e *DeviceError) Unwrap() error {
	return e.Err
}

func invalidParam(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidParameter, fmt.Sprintf(format, args...))
}
