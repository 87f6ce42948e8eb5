// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package bitbang

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3"
	"periph.io/x/host/v3/cpu"
)

// Line is an open-drain digital line with a pull-up resistor.
type Line interface {
	// DriveLow actively pulls the line low.
	DriveLow() error
	// Release stops driving the line, letting the pull-up resistor or a
	// device set its level.
	Release() error
	IsHigh() (bool, error)
	IsLow() (bool, error)
}

// HighDriver is implemented by lines that can actively drive the line high.
//
// It is used to power parasitic devices through a strong pull-up after the
// last byte of a transaction.
type HighDriver interface {
	DriveHigh() error
}

// Delayer blocks for the requested number of microseconds.
//
// The wait must be close to exact; it must not return early.
type Delayer interface {
	DelayMicros(us uint16)
}

// DelayFunc adapts a function to the Delayer interface.
type DelayFunc func(us uint16)

// DelayMicros implements Delayer.
func (f DelayFunc) DelayMicros(us uint16) {
	f(us)
}

// SpinDelay is a Delayer that busy-waits with cpu.Nanospin.
var SpinDelay Delayer = DelayFunc(func(us uint16) {
	cpu.Nanospin(time.Duration(us) * time.Microsecond)
})

// Opts contains the bus timings. The values are rounded down to the
// microsecond.
type Opts struct {
	ResetLow       time.Duration // reset pulse low time, range 480µs..960µs
	PresenceDetect time.Duration // presence sample time after release, range 60µs..75µs
	Slot           time.Duration // read/write time slot, range 61µs..120µs
	ShortLow       time.Duration // low time of write-one and read slots, range 1µs..14µs
	Write0Low      time.Duration // write zero low time, range 60µs..119µs
	ReadSample     time.Duration // read sample time from slot start, range 2µs..15µs
}

// DefaultOpts is the standard speed timing recommended by Maxim.
var DefaultOpts = Opts{
	ResetLow:       480 * time.Microsecond,
	PresenceDetect: 70 * time.Microsecond,
	Slot:           70 * time.Microsecond,
	ShortLow:       6 * time.Microsecond,
	Write0Low:      60 * time.Microsecond,
	ReadSample:     15 * time.Microsecond,
}

// timings are the waits derived from Opts, in µs.
type timings struct {
	resetLow      uint16
	presence      uint16
	resetRecovery uint16
	shortLow      uint16
	write1Rest    uint16
	write0Low     uint16
	write0Rest    uint16
	readWait      uint16
	readRest      uint16
}

func (o *Opts) timings() (timings, error) {
	us := func(d time.Duration) int64 { return int64(d / time.Microsecond) }
	resetLow, presence, slot := us(o.ResetLow), us(o.PresenceDetect), us(o.Slot)
	shortLow, write0Low, readSample := us(o.ShortLow), us(o.Write0Low), us(o.ReadSample)
	if resetLow < 480 || resetLow > 960 {
		return timings{}, errors.New("bitbang: invalid ResetLow")
	}
	if presence < 60 || presence > 75 {
		return timings{}, errors.New("bitbang: invalid PresenceDetect")
	}
	if shortLow < 1 || shortLow >= 15 {
		return timings{}, errors.New("bitbang: invalid ShortLow")
	}
	if readSample <= shortLow || readSample > 15 {
		return timings{}, errors.New("bitbang: invalid ReadSample")
	}
	if write0Low < 60 || write0Low >= 120 {
		return timings{}, errors.New("bitbang: invalid Write0Low")
	}
	if slot <= write0Low || slot > 120 {
		return timings{}, errors.New("bitbang: invalid Slot")
	}
	return timings{
		resetLow:      uint16(resetLow),
		presence:      uint16(presence),
		resetRecovery: uint16(resetLow - presence),
		shortLow:      uint16(shortLow),
		write1Rest:    uint16(slot - shortLow),
		write0Low:     uint16(write0Low),
		write0Rest:    uint16(slot - write0Low),
		readWait:      uint16(readSample - shortLow),
		readRest:      uint16(slot - readSample),
	}, nil
}

// Idle line polling before a reset: 125 polls 2µs apart.
const (
	idlePolls        = 125
	idlePollInterval = 2
)

// New returns a Bus that drives l with the timings in opts and waits with d.
//
// opts may be nil to use DefaultOpts. The line is released so the bus idles
// high.
func New(l Line, d Delayer, opts *Opts) (*Bus, error) {
	if opts == nil {
		opts = &DefaultOpts
	}
	t, err := opts.timings()
	if err != nil {
		return nil, err
	}
	b := &Bus{line: l, delay: d, t: t}
	if err := b.release(); err != nil {
		return nil, err
	}
	return b, nil
}

// Bus is a 1-Wire bus master on a bit-banged line.
//
// Bus implements onewire.Bus.
type Bus struct {
	mu    sync.Mutex // held by search passes and the onewire.Bus methods
	line  Line
	delay Delayer
	t     timings
}

// Line returns the line owned by the bus.
func (b *Bus) Line() Line {
	return b.line
}

func (b *Bus) String() string {
	if s, ok := b.line.(fmt.Stringer); ok {
		return "bitbang{" + s.String() + "}"
	}
	return "bitbang"
}

// Halt implements conn.Resource.
//
// It releases the line.
func (b *Bus) Halt() error {
	return b.release()
}

// Reset sends a reset pulse and reports whether any device answered with a
// presence pulse.
//
// It first waits up to 250µs for the line to be idle high and returns
// ErrBusNotHigh, without touching the line, if it never is.
func (b *Bus) Reset() (bool, error) {
	if err := b.waitForHigh(); err != nil {
		return false, err
	}
	if err := b.driveLow(); err != nil {
		return false, err
	}
	b.delay.DelayMicros(b.t.resetLow)
	if err := b.release(); err != nil {
		return false, err
	}
	b.delay.DelayMicros(b.t.presence)
	present, err := b.isLow()
	if err != nil {
		return false, err
	}
	b.delay.DelayMicros(b.t.resetRecovery)
	return present, nil
}

// ReadBit runs a read time slot and returns the level sampled on the line.
func (b *Bus) ReadBit() (bool, error) {
	if err := b.driveLow(); err != nil {
		return false, err
	}
	b.delay.DelayMicros(b.t.shortLow)
	if err := b.release(); err != nil {
		return false, err
	}
	b.delay.DelayMicros(b.t.readWait)
	v, err := b.isHigh()
	if err != nil {
		return false, err
	}
	b.delay.DelayMicros(b.t.readRest)
	return v, nil
}

// WriteBit runs a write time slot for v.
func (b *Bus) WriteBit(v bool) error {
	low, rest := b.t.write0Low, b.t.write0Rest
	if v {
		low, rest = b.t.shortLow, b.t.write1Rest
	}
	if err := b.driveLow(); err != nil {
		return err
	}
	b.delay.DelayMicros(low)
	if err := b.release(); err != nil {
		return err
	}
	b.delay.DelayMicros(rest)
	return nil
}

// ReadByte reads 8 bits, least significant first.
func (b *Bus) ReadByte() (byte, error) {
	var v byte
	for range 8 {
		v >>= 1
		bit, err := b.ReadBit()
		if err != nil {
			return 0, err
		}
		if bit {
			v |= 0x80
		}
	}
	return v, nil
}

// WriteByte writes 8 bits, least significant first.
func (b *Bus) WriteByte(v byte) error {
	for range 8 {
		if err := b.WriteBit(v&1 == 1); err != nil {
			return err
		}
		v >>= 1
	}
	return nil
}

// ReadBytes fills p with bytes read from the bus.
func (b *Bus) ReadBytes(p []byte) error {
	for i := range p {
		v, err := b.ReadByte()
		if err != nil {
			return err
		}
		p[i] = v
	}
	return nil
}

// WriteBytes writes p to the bus.
func (b *Bus) WriteBytes(p []byte) error {
	for _, v := range p {
		if err := b.WriteByte(v); err != nil {
			return err
		}
	}
	return nil
}

//

func (b *Bus) waitForHigh() error {
	for range idlePolls {
		high, err := b.isHigh()
		if err != nil {
			return err
		}
		if high {
			return nil
		}
		b.delay.DelayMicros(idlePollInterval)
	}
	return ErrBusNotHigh
}

func (b *Bus) driveLow() error {
	if err := b.line.DriveLow(); err != nil {
		return &LineError{Op: "drive low", Err: err}
	}
	return nil
}

func (b *Bus) release() error {
	if err := b.line.Release(); err != nil {
		return &LineError{Op: "release", Err: err}
	}
	return nil
}

func (b *Bus) isHigh() (bool, error) {
	v, err := b.line.IsHigh()
	if err != nil {
		return false, &LineError{Op: "sense high", Err: err}
	}
	return v, nil
}

func (b *Bus) isLow() (bool, error) {
	v, err := b.line.IsLow()
	if err != nil {
		return false, &LineError{Op: "sense low", Err: err}
	}
	return v, nil
}

var _ conn.Resource = &Bus{}
