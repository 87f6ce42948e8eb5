// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package bitbang

import (
	"encoding/binary"

	"github.com/GermanBionicSystems/onewire/crc8"
	"periph.io/x/conn/v3/onewire"
)

// ROM commands.
const (
	ReadROM     = 0x33 // single device only: read its address
	MatchROM    = 0x55 // select the device whose address follows
	SkipROM     = 0xCC // select all devices
	AlarmSearch = 0xEC // search among devices in alarm state
	SearchROM   = 0xF0 // search among all devices
)

// MatchAddress selects the device at addr. All others ignore the bus until
// the next reset.
//
// It must follow a reset and be followed by a function command.
func (b *Bus) MatchAddress(addr onewire.Address) error {
	if err := b.WriteByte(MatchROM); err != nil {
		return err
	}
	a := addressBytes(addr)
	return b.WriteBytes(a[:])
}

// SkipAddress selects all devices on the bus at once.
//
// It must follow a reset and be followed by a function command.
func (b *Bus) SkipAddress() error {
	return b.WriteByte(SkipROM)
}

// SendCommand resets the bus, selects the device at addr, or every device if
// addr is nil, and writes cmd. Any data transfer the command requires
// follows.
//
// The presence pulse is not checked: cmd is written even on an empty bus.
func (b *Bus) SendCommand(cmd byte, addr *onewire.Address) error {
	if _, err := b.Reset(); err != nil {
		return err
	}
	if addr != nil {
		if err := b.MatchAddress(*addr); err != nil {
			return err
		}
	} else {
		if err := b.SkipAddress(); err != nil {
			return err
		}
	}
	return b.WriteByte(cmd)
}

// ReadAddress returns the address of the only device on the bus.
//
// With more than one device the answers collide and ErrCRCMismatch is
// returned in all likelihood.
func (b *Bus) ReadAddress() (onewire.Address, error) {
	present, err := b.Reset()
	if err != nil {
		return 0, err
	}
	if !present {
		return 0, ErrNoDevice
	}
	if err := b.WriteByte(ReadROM); err != nil {
		return 0, err
	}
	var rom [8]byte
	if err := b.ReadBytes(rom[:]); err != nil {
		return 0, err
	}
	if !crc8.Check(rom[:]) {
		return 0, ErrCRCMismatch
	}
	return onewire.Address(binary.LittleEndian.Uint64(rom[:])), nil
}
