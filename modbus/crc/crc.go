// Copyright (c) 2014 Quoc-Viet Nguyen. All rights reserved.
// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package crc implements the CRC-16/MODBUS checksum that terminates every
// RTU frame.
package crc

const polynomial = 0xA001

// CRC accumulates the checksum register over pushed bytes.
// Value returns the register in its natural order (low byte goes on the
// wire first).
type CRC struct {
	crc uint16
}

// Reset sets the register to its initial value.
func (c *CRC) Reset() *CRC {
	c.crc = 0xFFFF
	return c
}

// PushBytes feeds bs into the register, least significant bit first.
func (c *CRC) PushBytes(bs []byte) *CRC {
	for _, b := range bs {
		c.crc ^= uint16(b)
		for i := 0; i < 8; i++ {
			if c.crc&1 != 0 {
				c.crc = (c.crc >> 1) ^ polynomial
			} else {
				c.crc >>= 1
			}
		}
	}
	return c
}

// Value returns the current register.
func (c *CRC) Value() uint16 {
	return c.crc
}

// Checksum computes the checksum of data with its two bytes swapped, which
// is the order the frame carries it in when written big-endian.
// Checksum(nil) is 0xFFFF.
func Checksum(data []byte) uint16 {
	var c CRC
	v := c.Reset().PushBytes(data).Value()
	return v<<8 | v>>8
}

// Append appends the checksum of frame to frame in wire order.
func Append(frame []byte) []byte {
	sum := Checksum(frame)
	return append(frame, byte(sum>>8), byte(sum))
}
