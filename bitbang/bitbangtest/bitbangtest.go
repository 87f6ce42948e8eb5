// Copyright 2017 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package bitbangtest simulates a 1-Wire bus with devices attached, on a
// virtual microsecond clock, for testing a bit-banged bus master.
//
// Bus implements both bitbang.Line and bitbang.Delayer. Devices decode the
// slots from the width of the low pulses, like real devices do: 480µs or more
// is a reset, less than 15µs is a one (or a read slot) and anything else is a
// zero.
package bitbangtest

import (
	"encoding/binary"
	"sync"

	"github.com/GermanBionicSystems/onewire/crc8"
	"periph.io/x/conn/v3/onewire"
)

// MakeAddress returns the address of a device of the given family with a 48
// bit serial number and a valid CRC.
func MakeAddress(family byte, serial uint64) onewire.Address {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], serial<<8|uint64(family))
	b[7] = crc8.Checksum(b[:7])
	return onewire.Address(binary.LittleEndian.Uint64(b[:]))
}

// Device is a simulated device.
type Device struct {
	Addr  onewire.Address
	Alarm bool // takes part in alarm searches
	// Replies maps a function command to the bytes sent back after it.
	Replies map[byte][]byte

	// Received is the function command bytes received while selected.
	Received []byte
}

// Bus is a simulated 1-Wire bus.
//
// The zero value is an empty bus with an idle line.
type Bus struct {
	sync.Mutex
	Devices  []*Device
	StuckLow bool  // no pull-up: the line never goes high
	Err      error // if set, returned by every line operation

	Now        uint64   // virtual time in µs
	Delays     []uint16 // every delay requested, in order
	DriveLows  int      // number of DriveLow calls
	Releases   int      // number of Release calls
	Resets     int      // reset pulses seen
	HighDrives int      // number of DriveHigh calls

	masterLow bool
	fell      uint64
	// the line is held low by devices within [devLowFrom, devLowUntil).
	devLowFrom  uint64
	devLowUntil uint64
	states      map[*Device]*devState
}

// New returns a Bus with a device at each address.
func New(addrs ...onewire.Address) *Bus {
	b := &Bus{}
	for _, a := range addrs {
		b.Devices = append(b.Devices, &Device{Addr: a})
	}
	return b
}

// Add connects a device. It takes part from the next reset on.
func (b *Bus) Add(d *Device) {
	b.Lock()
	defer b.Unlock()
	b.Devices = append(b.Devices, d)
}

// Remove disconnects the device at addr. It is gone immediately.
func (b *Bus) Remove(addr onewire.Address) {
	b.Lock()
	defer b.Unlock()
	for i, d := range b.Devices {
		if d.Addr == addr {
			delete(b.states, d)
			b.Devices = append(b.Devices[:i], b.Devices[i+1:]...)
			return
		}
	}
}

// Device returns the device at addr or nil.
func (b *Bus) Device(addr onewire.Address) *Device {
	b.Lock()
	defer b.Unlock()
	for _, d := range b.Devices {
		if d.Addr == addr {
			return d
		}
	}
	return nil
}

func (b *Bus) String() string {
	return "bitbangtest"
}

// DelayMicros implements bitbang.Delayer by advancing the virtual clock.
func (b *Bus) DelayMicros(us uint16) {
	b.Lock()
	defer b.Unlock()
	b.Now += uint64(us)
	b.Delays = append(b.Delays, us)
}

// DriveLow implements bitbang.Line.
func (b *Bus) DriveLow() error {
	b.Lock()
	defer b.Unlock()
	if b.Err != nil {
		return b.Err
	}
	b.DriveLows++
	if !b.masterLow {
		b.masterLow = true
		b.fell = b.Now
	}
	return nil
}

// Release implements bitbang.Line.
func (b *Bus) Release() error {
	b.Lock()
	defer b.Unlock()
	if b.Err != nil {
		return b.Err
	}
	b.Releases++
	if !b.masterLow {
		return nil
	}
	b.masterLow = false
	switch w := b.Now - b.fell; {
	case w >= resetLow:
		b.reset()
	default:
		if b.slot(w < oneLow) {
			b.devLowFrom = b.fell
			b.devLowUntil = b.fell + holdLow
		}
	}
	return nil
}

// DriveHigh implements bitbang.HighDriver.
func (b *Bus) DriveHigh() error {
	b.Lock()
	defer b.Unlock()
	if b.Err != nil {
		return b.Err
	}
	b.HighDrives++
	b.masterLow = false
	return nil
}

// IsHigh implements bitbang.Line.
func (b *Bus) IsHigh() (bool, error) {
	b.Lock()
	defer b.Unlock()
	if b.Err != nil {
		return false, b.Err
	}
	return b.high(), nil
}

// IsLow implements bitbang.Line.
func (b *Bus) IsLow() (bool, error) {
	b.Lock()
	defer b.Unlock()
	if b.Err != nil {
		return false, b.Err
	}
	return !b.high(), nil
}

//

const (
	resetLow      = 480 // minimum reset pulse
	oneLow        = 15  // maximum low time of a one or read slot
	holdLow       = 30  // a device sending a zero holds the line this long from the slot start
	presenceStart = 15  // presence pulse start after the end of the reset pulse
	presenceEnd   = 240 // presence pulse end after the end of the reset pulse
)

type phase int

const (
	inactive phase = iota // waiting for a reset
	romCommand
	search
	match
	readROM
	function
	reply
)

type devState struct {
	phase phase
	n     int // bits processed in the current phase
	sub   int // search: 0 sends the bit, 1 its complement, 2 receives the direction
	acc   uint64
	out   []byte
}

func (b *Bus) high() bool {
	if b.StuckLow || b.masterLow {
		return false
	}
	return b.Now < b.devLowFrom || b.Now >= b.devLowUntil
}

func (b *Bus) reset() {
	b.Resets++
	b.states = make(map[*Device]*devState, len(b.Devices))
	for _, d := range b.Devices {
		b.states[d] = &devState{phase: romCommand}
	}
	if len(b.Devices) != 0 {
		b.devLowFrom = b.Now + presenceStart
		b.devLowUntil = b.Now + presenceEnd
	}
}

// slot runs a time slot on every device. written is the bit the master
// sent; a read slot looks like a one. It returns true if a device pulled the
// line low.
func (b *Bus) slot(written bool) bool {
	low := false
	for _, d := range b.Devices {
		s := b.states[d]
		if s == nil {
			continue
		}
		if d.slot(s, written) {
			low = true
		}
	}
	return low
}

// slot advances the device state machine by one slot. It returns true when
// the device sends a zero.
func (d *Device) slot(s *devState, written bool) bool {
	addr := uint64(d.Addr)
	switch s.phase {
	case romCommand:
		if s.receive(written, 8) {
			d.romCommand(s, byte(s.acc))
		}
	case search:
		bit := addr>>uint(s.n)&1 == 1
		switch s.sub {
		case 0:
			s.sub = 1
			return !bit
		case 1:
			s.sub = 2
			return bit
		default:
			if written != bit {
				s.phase = inactive
				return false
			}
			s.sub = 0
			s.n++
			if s.n == 64 {
				s.enter(function)
			}
		}
	case match:
		if written != (addr>>uint(s.n)&1 == 1) {
			s.phase = inactive
			return false
		}
		s.n++
		if s.n == 64 {
			s.enter(function)
		}
	case readROM:
		bit := addr>>uint(s.n)&1 == 1
		s.n++
		if s.n == 64 {
			s.enter(function)
		}
		return !bit
	case function:
		if s.receive(written, 8) {
			cmd := byte(s.acc)
			d.Received = append(d.Received, cmd)
			s.enter(function)
			if r := d.Replies[cmd]; len(r) != 0 {
				s.enter(reply)
				s.out = r
			}
		}
	case reply:
		bit := s.out[s.n/8]>>uint(s.n%8)&1 == 1
		s.n++
		if s.n == 8*len(s.out) {
			s.enter(function)
		}
		return !bit
	}
	return false
}

func (d *Device) romCommand(s *devState, cmd byte) {
	switch cmd {
	case 0xF0:
		s.enter(search)
	case 0xEC:
		if d.Alarm {
			s.enter(search)
		} else {
			s.enter(inactive)
		}
	case 0x55:
		s.enter(match)
	case 0xCC:
		s.enter(function)
	case 0x33:
		s.enter(readROM)
	default:
		s.enter(inactive)
	}
}

// receive shifts in a bit, LSB first, and reports whether n bits were
// accumulated.
func (s *devState) receive(bit bool, n int) bool {
	if bit {
		s.acc |= 1 << uint(s.n)
	}
	s.n++
	return s.n == n
}

func (s *devState) enter(p phase) {
	*s = devState{phase: p}
}
