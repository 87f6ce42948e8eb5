// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package crc8 implements the 8-bit CRC used on the 1-Wire bus to protect
// ROM codes and scratchpad memory.
//
// The polynomial is x⁸+x⁵+x⁴+1 processed LSB first (reflected form 0x8C)
// with an initial value of 0. A useful property of this CRC is that running
// it over data followed by its own checksum byte always yields 0, so a
// received block can be validated without splitting off the CRC byte.
package crc8

import "hash"

// Size of a CRC-8 checksum in bytes.
const Size = 1

// Poly is the reflected Dallas/Maxim polynomial.
const Poly = 0x8C

// Hash8 is the common interface implemented by 8-bit hash functions.
type Hash8 interface {
	hash.Hash
	Sum8() uint8
}

// Checksum calculates the CRC-8 of data.
func Checksum(data []byte) byte {
	return Update(0, data)
}

// Update returns the result of adding the bytes in p to crc.
func Update(crc byte, p []byte) byte {
	for _, b := range p {
		for range 8 {
			mix := (crc ^ b) & 0x01
			crc >>= 1
			if mix != 0 {
				crc ^= Poly
			}
			b >>= 1
		}
	}
	return crc
}

// Check reports whether data, including its trailing CRC byte, passes the
// CRC check.
func Check(data []byte) bool {
	return Checksum(data) == 0
}

type digest struct {
	crc byte
}

// New creates a new Hash8 computing the 1-Wire CRC-8.
func New() Hash8 {
	return &digest{}
}

func (d *digest) Size() int { return Size }

func (d *digest) BlockSize() int { return 1 }

func (d *digest) Reset() { d.crc = 0 }

func (d *digest) Write(p []byte) (int, error) {
	d.crc = Update(d.crc, p)
	return len(p), nil
}

func (d *digest) Sum8() uint8 { return d.crc }

func (d *digest) Sum(in []byte) []byte {
	return append(in, d.crc)
}
