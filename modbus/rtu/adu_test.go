// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"bytes"
	"errors"
	"testing"

	"github.com/ffutop/modbus-master/modbus"
)

func TestADU_EncodeDecode(t *testing.T) {
	adu := &ApplicationDataUnit{
		SlaveID: 0x01,
		Pdu:     modbus.ProtocolDataUnit{FunctionCode: 0x04, Data: []byte{0x00, 0x01, 0x00, 0x01}},
	}
	raw, err := adu.Encode()
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{0x01, 0x04, 0x00, 0x01, 0x00, 0x01, 0x60, 0x0A}
	if !bytes.Equal(raw, want) {
		t.Fatalf("Encode() = % X, want % X", raw, want)
	}

	got, err := Decode(raw)
	if err != nil {
		t.Fatal(err)
	}
	if got.SlaveID != adu.SlaveID || got.Pdu.FunctionCode != adu.Pdu.FunctionCode || !bytes.Equal(got.Pdu.Data, adu.Pdu.Data) {
		t.Errorf("Decode() = %+v, want %+v", got, adu)
	}
}

func TestADU_DecodeErrors(t *testing.T) {
	if _, err := Decode([]byte{0x01, 0x04, 0x00}); !errors.Is(err, ErrShortFrame) {
		t.Errorf("short frame: got %v", err)
	}
	if _, err := Decode([]byte{0x01, 0x04, 0x00, 0x01, 0x00, 0x01, 0x0A, 0x60}); !errors.Is(err, ErrCRCMismatch) {
		t.Errorf("swapped crc: got %v", err)
	}
}

func TestADU_EncodeTooLong(t *testing.T) {
	adu := &ApplicationDataUnit{Pdu: modbus.ProtocolDataUnit{FunctionCode: 0x10, Data: make([]byte, 253)}}
	if _, err := adu.Encode(); err == nil {
		t.Error("expected error for oversized frame")
	}
}
