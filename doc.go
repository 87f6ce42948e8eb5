// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package onewire is a container for 1-Wire bus masters driven directly
// from a digital line.
//
// See package bitbang for the bus master and package crc8 for the checksum
// used to validate device addresses and scratchpads.
package onewire
