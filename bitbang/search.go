// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package bitbang

import (
	"errors"
	"iter"

	"github.com/GermanBionicSystems/onewire/crc8"
	"periph.io/x/conn/v3/onewire"
)

// SearchState is the progress of a device search, returned by a search pass
// and passed to the next one to find the following device.
type SearchState struct {
	// address of the last device found.
	address uint64
	// bit i set: devices disagreed at bit i, the 0 branch was taken and the
	// 1 branch is still to be explored.
	discrepancies uint64
	// index, from the LSB, of the highest unexplored discrepancy.
	lastDiscrepancy uint8
}

// Address returns the address found by the pass that produced s.
func (s *SearchState) Address() onewire.Address {
	return onewire.Address(s.address)
}

// Exhausted reports whether no branch is left to explore, i.e. the pass
// that produced s found the last device.
func (s *SearchState) Exhausted() bool {
	return s.discrepancies == 0
}

// DeviceSearch runs one pass of the ROM search.
//
// Start with a nil prev, then pass the returned state to find the next
// device. A nil state with a nil error means there is no further device:
// either prev was exhausted or nobody answered the reset. When alarmOnly is
// true only devices in alarm state take part.
//
// Devices are found in the same order every time, by increasing address
// compared bit by bit from the LSB (the order of bits.Reverse64). There is
// no time limit between passes, but devices that are added, removed or that
// change alarm state in the meantime can make a pass return
// ErrUnexpectedResponse or go unnoticed.
//
// The bus is locked for the duration of the pass.
func (b *Bus) DeviceSearch(prev *SearchState, alarmOnly bool) (onewire.Address, *SearchState, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.deviceSearch(prev, alarmOnly)
}

func (b *Bus) deviceSearch(prev *SearchState, alarmOnly bool) (onewire.Address, *SearchState, error) {
	if prev != nil && prev.discrepancies == 0 {
		return 0, nil, nil
	}
	present, err := b.Reset()
	if err != nil {
		return 0, nil, err
	}
	if !present {
		return 0, nil, nil
	}
	cmd := byte(SearchROM)
	if alarmOnly {
		cmd = AlarmSearch
	}
	if err := b.WriteByte(cmd); err != nil {
		return 0, nil, err
	}

	var address, discrepancies uint64
	var last, start uint8
	if prev != nil {
		// Steer the devices down the path taken last time.
		for i := uint8(0); i < prev.lastDiscrepancy; i++ {
			if _, _, err := b.readPair(); err != nil {
				return 0, nil, err
			}
			mask := uint64(1) << i
			if prev.discrepancies&mask != 0 {
				last = i
			}
			if err := b.WriteBit(prev.address&mask != 0); err != nil {
				return 0, nil, err
			}
		}
		// The 0 branch was explored at the last discrepancy, take the 1
		// branch now.
		gotZero, gotOne, err := b.readPair()
		if err != nil {
			return 0, nil, err
		}
		if !gotZero || !gotOne {
			return 0, nil, ErrUnexpectedResponse
		}
		mask := uint64(1) << prev.lastDiscrepancy
		address = prev.address | mask
		discrepancies = prev.discrepancies &^ mask
		if err := b.WriteBit(true); err != nil {
			return 0, nil, err
		}
		start = prev.lastDiscrepancy + 1
	}

	for i := start; i < 64; i++ {
		gotZero, gotOne, err := b.readPair()
		if err != nil {
			return 0, nil, err
		}
		mask := uint64(1) << i
		var bit bool
		switch {
		case gotZero && gotOne:
			discrepancies |= mask
			last = i
		case gotZero:
		case gotOne:
			bit = true
		default:
			return 0, nil, ErrUnexpectedResponse
		}
		if bit {
			address |= mask
		} else {
			address &^= mask
		}
		if err := b.WriteBit(bit); err != nil {
			return 0, nil, err
		}
	}

	rom := addressBytes(onewire.Address(address))
	if !crc8.Check(rom[:]) {
		return 0, nil, ErrCRCMismatch
	}
	return onewire.Address(address), &SearchState{address: address, discrepancies: discrepancies, lastDiscrepancy: last}, nil
}

// readPair runs the two read slots of a search bit. Each device sends its
// address bit then its complement, so a low first slot means some device
// has a 0 there and a low second slot means some device has a 1.
func (b *Bus) readPair() (gotZero, gotOne bool, err error) {
	v, err := b.ReadBit()
	if err != nil {
		return false, false, err
	}
	c, err := b.ReadBit()
	if err != nil {
		return false, false, err
	}
	return !v, !c, nil
}

// ErrDone is returned by Enumeration.Next when there are no more devices.
var ErrDone = errors.New("bitbang: no more devices")

// Devices returns an Enumeration of the addresses of all the devices on the
// bus, or only those in alarm state if alarmOnly is true.
//
// There is no requirement to go through all devices at once; see
// DeviceSearch for what happens when the bus changes in the meantime.
func (b *Bus) Devices(alarmOnly bool) *Enumeration {
	return &Enumeration{search: b.DeviceSearch, alarmOnly: alarmOnly}
}

// Enumeration finds devices one search pass at a time.
//
// It ends at the first pass that finds nothing or fails. A failure is
// returned once; from then on Next returns ErrDone. A new Enumeration must be
// created to scan again.
type Enumeration struct {
	search    func(prev *SearchState, alarmOnly bool) (onewire.Address, *SearchState, error)
	alarmOnly bool
	state     *SearchState
	finished  bool
}

// Next returns the address of the next device, or ErrDone.
func (e *Enumeration) Next() (onewire.Address, error) {
	if e.finished {
		return 0, ErrDone
	}
	addr, state, err := e.search(e.state, e.alarmOnly)
	if err != nil || state == nil {
		e.state = nil
		e.finished = true
		if err == nil {
			err = ErrDone
		}
		return 0, err
	}
	e.state = state
	return addr, nil
}

// All returns an iterator over the remaining devices. A failed pass is
// yielded as a zero address with its error and ends the iteration.
func (e *Enumeration) All() iter.Seq2[onewire.Address, error] {
	return func(yield func(onewire.Address, error) bool) {
		for {
			addr, err := e.Next()
			if err == ErrDone {
				return
			}
			if !yield(addr, err) || err != nil {
				return
			}
		}
	}
}

// Search performs a full search cycle and returns the addresses of all the
// devices on the bus if alarmOnly is false and of all devices in alarm
// state if alarmOnly is true.
//
// If an error occurs during the search the already-discovered devices are
// returned with the error.
func (b *Bus) Search(alarmOnly bool) ([]onewire.Address, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var found []onewire.Address
	e := &Enumeration{search: b.deviceSearch, alarmOnly: alarmOnly}
	for {
		addr, err := e.Next()
		if err == ErrDone {
			return found, nil
		}
		if err != nil {
			return found, err
		}
		found = append(found, addr)
	}
}
