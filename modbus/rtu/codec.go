// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ffutop/modbus-master/modbus"
	"github.com/ffutop/modbus-master/modbus/crc"
)

var (
	ErrInvalidSlaveID   = errors.New("modbus: invalid slave id")
	ErrShortFrame       = errors.New("modbus: short frame")
	ErrCRCMismatch      = errors.New("modbus: crc mismatch")
	ErrSlaveMismatch    = errors.New("modbus: slave id mismatch")
	ErrFunctionMismatch = errors.New("modbus: function code mismatch")
	ErrLengthMismatch   = errors.New("modbus: byte count mismatch")
	ErrEchoMismatch     = errors.New("modbus: write response does not echo request")
)

// EncodeReadRequest builds a read request frame:
//
//	Slave Address   : 1 byte
//	Function        : 1 byte
//	Register        : 2 bytes, big-endian
//	Quantity        : 2 bytes, big-endian
//	CRC             : 2 bytes
func EncodeReadRequest(slaveID, functionCode byte, address, quantity uint16) ([]byte, error) {
	if !modbus.IsValidSlaveID(int(slaveID)) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSlaveID, slaveID)
	}
	raw := make([]byte, 6, SingleRegisterFrameSize)
	raw[0] = slaveID
	raw[1] = functionCode
	binary.BigEndian.PutUint16(raw[2:], address)
	binary.BigEndian.PutUint16(raw[4:], quantity)
	return crc.Append(raw), nil
}

// ReadHoldingRegister builds a request for one holding register.
func ReadHoldingRegister(slaveID byte, address uint16) ([]byte, error) {
	return EncodeReadRequest(slaveID, modbus.FuncCodeReadHoldingRegisters, address, 1)
}

// ReadInputRegister builds a request for one input register.
func ReadInputRegister(slaveID byte, address uint16) ([]byte, error) {
	return EncodeReadRequest(slaveID, modbus.FuncCodeReadInputRegisters, address, 1)
}

// WriteSingleRegister builds a write request carrying value as a signed
// big-endian 16 bit integer.
func WriteSingleRegister(slaveID byte, address uint16, value int16) ([]byte, error) {
	if !modbus.IsValidSlaveID(int(slaveID)) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSlaveID, slaveID)
	}
	raw := make([]byte, 6, SingleRegisterFrameSize)
	raw[0] = slaveID
	raw[1] = modbus.FuncCodeWriteSingleRegister
	binary.BigEndian.PutUint16(raw[2:], address)
	binary.BigEndian.PutUint16(raw[4:], uint16(value))
	return crc.Append(raw), nil
}

// VerifyReadResponse checks that resp answers a read of byteCount bytes sent
// to slaveID with functionCode, and returns the register bytes.
//
// The checksum covers everything but the last two bytes, and the byte count
// at offset 2 must put the end of the payload exactly at the checksum. A
// frame from another slave fails with ErrSlaveMismatch even when its
// checksum is intact; on a shared line foreign responses are discarded so.
func VerifyReadResponse(resp []byte, slaveID, functionCode byte, byteCount int) ([]byte, error) {
	length := len(resp)
	if length < ExceptionSize {
		return nil, fmt.Errorf("%w: length '%v' does not meet minimum '%v'", ErrShortFrame, length, ExceptionSize)
	}

	crcPos := length - 2
	checksum := binary.BigEndian.Uint16(resp[crcPos:])
	if expected := crc.Checksum(resp[:crcPos]); checksum != expected {
		return nil, fmt.Errorf("%w: response crc '%04X' does not match expected '%04X'", ErrCRCMismatch, checksum, expected)
	}

	if resp[0] != slaveID {
		return nil, fmt.Errorf("%w: response slave id '%v' does not match request '%v'", ErrSlaveMismatch, resp[0], slaveID)
	}
	if resp[1] != functionCode {
		if resp[1] == functionCode|0x80 && length == ExceptionSize {
			return nil, fmt.Errorf("%w: %w", ErrFunctionMismatch, &modbus.ModbusError{FunctionCode: functionCode, ExceptionCode: resp[2]})
		}
		return nil, fmt.Errorf("%w: response function '%v' does not match request '%v'", ErrFunctionMismatch, resp[1], functionCode)
	}

	declared := int(resp[2])
	if declared != byteCount {
		return nil, fmt.Errorf("%w: response byte count '%v' does not match expected '%v'", ErrLengthMismatch, declared, byteCount)
	}
	if end := ReadPayloadOffset + declared; end != crcPos || 2+declared >= crcPos {
		return nil, fmt.Errorf("%w: byte count '%v' does not fit frame length '%v'", ErrLengthMismatch, declared, length)
	}

	return resp[ReadPayloadOffset : ReadPayloadOffset+declared], nil
}

// VerifyWriteResponse checks that resp is an exact echo of req.
func VerifyWriteResponse(req, resp []byte) error {
	if len(req) != len(resp) {
		return fmt.Errorf("%w: response length '%v' does not match request '%v'", ErrEchoMismatch, len(resp), len(req))
	}
	if !bytes.Equal(req, resp) {
		return fmt.Errorf("%w: % X != % X", ErrEchoMismatch, resp, req)
	}
	return nil
}
