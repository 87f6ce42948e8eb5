// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package bitbang

import (
	"encoding/binary"
	"fmt"

	"periph.io/x/conn/v3/onewire"
)

// Family returns the family code of a device address, its lowest byte.
func Family(a onewire.Address) byte {
	return byte(a)
}

// FormatAddress renders a as 16 upper case hex digits, most significant
// (CRC) byte first.
func FormatAddress(a onewire.Address) string {
	return fmt.Sprintf("%016X", uint64(a))
}

// addressBytes returns the address in bus order: family code first, CRC
// last.
func addressBytes(a onewire.Address) [8]byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(a))
	return b
}
