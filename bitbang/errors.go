// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package bitbang

var (
	// ErrBusNotHigh is returned by Reset when the line did not return high
	// within 250µs. Usually a missing pull-up resistor or a shorted bus.
	ErrBusNotHigh error = shortedBusError("bitbang: bus not pulled high")
	// ErrUnexpectedResponse is returned by a search pass when no device
	// answered a search slot or when a previously recorded discrepancy is
	// gone. Devices were likely added or removed during the search.
	ErrUnexpectedResponse error = busError("bitbang: unexpected response from devices")
	// ErrCRCMismatch is returned when data read from the bus fails the CRC
	// check.
	ErrCRCMismatch error = busError("bitbang: CRC mismatch")
	// ErrNoDevice is returned by operations that require a presence pulse.
	ErrNoDevice error = noDevicesError("bitbang: no device present")

	// ErrFamilyCodeMismatch is not returned by this package. It is reserved
	// for device drivers layered on top of the bus.
	ErrFamilyCodeMismatch error = busError("bitbang: family code mismatch")
	// ErrTimeout is not returned by this package. It is reserved for device
	// drivers layered on top of the bus.
	ErrTimeout error = busError("bitbang: timeout")
)

// LineError wraps an error returned by the Line.
type LineError struct {
	Op  string // line operation that failed
	Err error
}

func (e *LineError) Error() string {
	return "bitbang: " + e.Op + ": " + e.Err.Error()
}

func (e *LineError) Unwrap() error {
	return e.Err
}

// busError implements error and onewire.BusError.
type busError string

func (e busError) Error() string  { return string(e) }
func (e busError) BusError() bool { return true }

// shortedBusError implements error and onewire.ShortedBusError.
type shortedBusError string

func (e shortedBusError) Error() string   { return string(e) }
func (e shortedBusError) IsShorted() bool { return true }
func (e shortedBusError) BusError() bool  { return true }

// noDevicesError implements error and onewire.NoDevicesError.
type noDevicesError string

func (e noDevicesError) Error() string   { return string(e) }
func (e noDevicesError) NoDevices() bool { return true }
func (e noDevicesError) BusError() bool  { return true }
