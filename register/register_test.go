// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package register

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func correction() *Descriptor[float64] {
	return &Descriptor[float64]{
		Label:   "temperatureCorrection",
		Addr:    0x0103,
		Size:    2,
		Decode:  Scaled(10),
		Encode:  ScaledEncoder(10),
		IsValid: OneDecimalWithin(10),
		Parse:   ParseFloat,
		Input:   Range{Min: -9.9, Max: 9.9, Step: 0.1},
	}
}

func TestScaledRoundTrip(t *testing.T) {
	d := correction()
	for _, v := range []float64{3.2, -3.2, 0, 9.9, -9.9, 0.1} {
		raw, err := d.EncodeTyped(v)
		require.NoError(t, err)

		b := []byte{byte(uint16(raw) >> 8), byte(raw)}
		assert.InDelta(t, v, d.Decode(b), 1e-9, "value %v", v)
	}

	raw, err := d.EncodeTyped(3.2)
	require.NoError(t, err)
	assert.Equal(t, int16(32), raw)
}

func TestDecode(t *testing.T) {
	assert.Equal(t, 20.0, Scaled(10)([]byte{0x00, 0xC8}))
	assert.Equal(t, -3.2, Scaled(10)([]byte{0xFF, 0xE0}))
	assert.Equal(t, uint16(0xD037), Uint16([]byte{0xD0, 0x37}))
	assert.Equal(t, int16(-1), Int16([]byte{0xFF, 0xFF}))
}

func TestOneDecimalWithin(t *testing.T) {
	valid := OneDecimalWithin(10)
	tests := []struct {
		v    float64
		want bool
	}{
		{0, true},
		{3.2, true},
		{-9.9, true},
		{9.99, false},
		{10, false},
		{-10, false},
		{1.25, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, valid(tt.v), "value %v", tt.v)
	}
}

func TestSlaveAddress(t *testing.T) {
	assert.False(t, SlaveAddress(0))
	assert.True(t, SlaveAddress(1))
	assert.True(t, SlaveAddress(247))
	assert.False(t, SlaveAddress(248))
}

func TestOneOf(t *testing.T) {
	baud := OneOf(9600, 14400, 19200)
	assert.True(t, baud(14400))
	assert.False(t, baud(4800))
}

func TestField(t *testing.T) {
	var f Field = correction()
	assert.True(t, f.Writable())
	assert.Equal(t, uint16(0x0103), f.Address())
	assert.Equal(t, "range", f.Constraint().Kind())

	raw, err := f.EncodeValue(1.5)
	require.NoError(t, err)
	assert.Equal(t, int16(15), raw)

	_, err = f.EncodeValue(12.0)
	assert.ErrorIs(t, err, ErrInvalidValue)

	_, err = f.EncodeValue(uint16(1))
	assert.ErrorIs(t, err, ErrValueType)

	v, err := f.ParseValue("-2.5")
	require.NoError(t, err)
	assert.Equal(t, -2.5, v)

	_, err = f.ParseValue("warm")
	assert.Error(t, err)
}

func TestField_ReadOnly(t *testing.T) {
	var f Field = &Descriptor[uint16]{Label: "heartbeat", Addr: 0xD037, Size: 2, Decode: Uint16}
	assert.False(t, f.Writable())
	assert.Nil(t, f.Constraint())

	_, err := f.EncodeValue(uint16(1))
	assert.ErrorIs(t, err, ErrReadOnly)
	assert.Equal(t, uint16(0xD037), f.DecodeValue([]byte{0xD0, 0x37}))
}
