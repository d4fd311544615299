// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package register

import (
	"encoding/binary"
	"math"
	"strconv"
)

// Int16 decodes a big-endian signed 16 bit value.
func Int16(b []byte) int16 {
	return int16(binary.BigEndian.Uint16(b))
}

// Uint16 decodes a big-endian unsigned 16 bit value.
func Uint16(b []byte) uint16 {
	return binary.BigEndian.Uint16(b)
}

// Scaled returns a decoder dividing a signed 16 bit value by div, e.g.
// Scaled(10) for one-decimal temperatures.
func Scaled(div float64) func([]byte) float64 {
	return func(b []byte) float64 {
		return float64(Int16(b)) / div
	}
}

// ScaledEncoder is the inverse of Scaled.
func ScaledEncoder(mul float64) func(float64) int16 {
	return func(v float64) int16 {
		return int16(math.Round(v * mul))
	}
}

// EncodeUint16 places v into a write frame unchanged; values above
// math.MaxInt16 travel as their two's complement bit pattern.
func EncodeUint16(v uint16) int16 {
	return int16(v)
}

// EncodeInt places v into a write frame; callers bound v with a validator.
func EncodeInt(v int) int16 {
	return int16(v)
}

func ParseFloat(s string) (float64, error) {
	return strconv.ParseFloat(s, 64)
}

func ParseUint16(s string) (uint16, error) {
	v, err := strconv.ParseUint(s, 0, 16)
	return uint16(v), err
}

func ParseInt(s string) (int, error) {
	return strconv.Atoi(s)
}
