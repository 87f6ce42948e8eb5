// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package bitbang

import (
	"periph.io/x/conn/v3/onewire"
)

// Tx performs a bus transaction, sending and receiving bytes, and ending by
// pulling the bus high either weakly or strongly depending on the value of
// power.
//
// Unlike SendCommand, Tx requires a presence pulse and returns ErrNoDevice
// without writing anything if there is none.
//
// A strong pull-up is only applied if the Line implements HighDriver. It is
// typically required to power temperature conversion or EEPROM writes.
func (b *Bus) Tx(w, r []byte, power onewire.Pullup) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if present, err := b.Reset(); err != nil {
		return err
	} else if !present {
		return ErrNoDevice
	}
	if err := b.WriteBytes(w); err != nil {
		return err
	}
	if err := b.ReadBytes(r); err != nil {
		return err
	}
	if power == onewire.StrongPullup && len(w)+len(r) != 0 {
		if h, ok := b.line.(HighDriver); ok {
			if err := h.DriveHigh(); err != nil {
				return &LineError{Op: "drive high", Err: err}
			}
		}
	}
	return nil
}

// SearchTriplet performs a single bit search triplet: two read slots then a
// write slot for the chosen direction.
//
// When both branches are present direction is taken, otherwise the only
// branch present is. When no device answered a 1 is written.
//
// SearchTriplet should not be used directly, use Search instead. It lets
// onewire.Search drive this bus.
func (b *Bus) SearchTriplet(direction byte) (onewire.TripletResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	gotZero, gotOne, err := b.readPair()
	if err != nil {
		return onewire.TripletResult{}, err
	}
	tr := onewire.TripletResult{GotZero: gotZero, GotOne: gotOne, Taken: 1}
	switch {
	case gotZero && gotOne:
		if direction == 0 {
			tr.Taken = 0
		}
	case gotZero:
		tr.Taken = 0
	}
	if err := b.WriteBit(tr.Taken == 1); err != nil {
		return onewire.TripletResult{}, err
	}
	return tr, nil
}

var _ onewire.Bus = &Bus{}
