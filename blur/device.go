package blur

import (
	"fmt"
	"strings"
)

// Device identifies where the accelerated strategy executed.
type Device int

const (
	GeneralPurpose Device = iota
	Accelerator
)

const (
	AcceleratorID     = "parallel-accelerator"
	GeneralPurposeID  = "general-purpose-cpu"
	unknownDeviceName = "unknown-device"
)

func (d Device) String() string {
	switch d {
	case Accelerator:
		return AcceleratorID
	case GeneralPurpose:
		return GeneralPurposeID
	default:
		return unknownDeviceName
	}
}

func (d Device) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Preference is the caller's request for the accelerated strategy's device.
type Preference int

const (
	// PreferAuto uses the accelerator when one is present, else the CPU.
	PreferAuto Preference = iota
	// PreferAccelerator fails with a DeviceError if no accelerator is present.
	PreferAccelerator
	// PreferGeneralPurpose never touches the accelerator.
	PreferGeneralPurpose
)

// ParsePreference accepts auto, gpu or cpu (and the device identifiers).
func ParsePreference(s string) (Preference, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return PreferAuto, nil
	case "gpu", "accelerator", AcceleratorID:
		return PreferAccelerator, nil
	case "cpu", GeneralPurposeID:
		return PreferGeneralPurpose, nil
	default:
		return PreferAuto, fmt.Errorf("%w: unknown device %q, choose from auto, gpu, cpu", ErrInvalidParameter, s)
	}
}

// executor is one concrete implementation of the accelerated strategy.
// run may return before the work is complete; synchronize blocks until it is.
type executor interface {
	prepare(g Grid, k Kernel) error
	run() error
	synchronize() error
	result() (Grid, error)
	release()
}

// selectDevice answers the capability query once for a call.
func selectDevice(pref Preference) (Device, error) {
	switch pref {
	case PreferGeneralPurpose:
		return GeneralPurpose, nil
	case PreferAccelerator:
		if !acceleratorPresent() {
			return Accelerator, &DeviceError{Device: Accelerator, Op: "detect", Err: errNoAccelerator}
		}
		return Accelerator, nil
	default:
		if acceleratorPresent() {
			return Accelerator, nil
		}
		return GeneralPurpose, nil
	}
}

func newExecutor(dev Device, opts Options) (executor, error) {
	switch dev {
	case Accelerator:
		return newAcceleratorExecutor(opts)
	default:
		return newCPUExecutor(opts.Workers), nil
	}
}
