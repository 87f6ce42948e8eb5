// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package bitbang implements a 1-Wire bus master on a single open-drain
// digital line.
//
// All time slots are generated in software: the line is driven low, released
// to the pull-up resistor and sampled, with microsecond waits provided by a
// Delayer. The accuracy of these waits is what makes the bus work; hosts with
// significant scheduling jitter (a loaded Linux userland without a real-time
// scheduler, for example) are not supported and will produce spurious CRC or
// protocol errors.
//
// The timing primitives (Reset, ReadBit, WriteBit and the byte helpers) and
// the ROM helpers do not lock and need exclusive use of the Bus. A search pass
// and the methods implementing onewire.Bus lock for their whole duration, so
// the Bus can be handed to periph device drivers that share it while an
// Enumeration is in progress.
//
// # Search
//
// DeviceSearch runs one pass of the ROM search algorithm and returns the
// address found along with a SearchState to resume from. Devices wraps it in
// an Enumeration that yields every address on the bus.
//
// # Reference
//
// https://www.analog.com/en/resources/technical-articles/1wire-communication-through-software.html
//
// https://www.analog.com/en/resources/app-notes/1wire-search-algorithm.html
package bitbang
