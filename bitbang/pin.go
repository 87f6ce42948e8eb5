// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package bitbang

import (
	"periph.io/x/conn/v3/gpio"
)

// PinLine uses a GPIO pin as a 1-Wire line.
//
// The pin emulates an open-drain output: it is switched to output low to
// drive the line and to input with pull-up to release it. An external pull-up
// resistor (typically 4.7kΩ) is still required; the internal one is too weak
// for more than a few centimetres of wire.
type PinLine struct {
	P gpio.PinIO
}

// NewPinLine returns a PinLine on p.
func NewPinLine(p gpio.PinIO) *PinLine {
	return &PinLine{P: p}
}

func (l *PinLine) String() string {
	return l.P.String()
}

// DriveLow implements Line.
func (l *PinLine) DriveLow() error {
	return l.P.Out(gpio.Low)
}

// Release implements Line.
func (l *PinLine) Release() error {
	return l.P.In(gpio.PullUp, gpio.NoEdge)
}

// IsHigh implements Line.
func (l *PinLine) IsHigh() (bool, error) {
	return l.P.Read() == gpio.High, nil
}

// IsLow implements Line.
func (l *PinLine) IsLow() (bool, error) {
	return l.P.Read() == gpio.Low, nil
}

// DriveHigh implements HighDriver.
func (l *PinLine) DriveHigh() error {
	return l.P.Out(gpio.High)
}

var _ Line = &PinLine{}
var _ HighDriver = &PinLine{}
