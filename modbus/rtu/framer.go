// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"fmt"
	"io"

	"github.com/ffutop/modbus-master/modbus"
)

const (
	stateSlaveID = 1 << iota
	stateFunctionCode
	stateReadLength
	stateReadPayload
	stateCRC
)

type InvalidLengthError struct {
	Length byte
}

func (e *InvalidLengthError) Error() string {
	return fmt.Sprintf("invalid length received: %d", e.Length)
}

// UnsupportedFunctionError is returned by ReadFrame when a frame carries a
// function code whose response length cannot be determined.
type UnsupportedFunctionError struct {
	FunctionCode byte
}

func (e *UnsupportedFunctionError) Error() string {
	return fmt.Sprintf("functioncode not handled: 0x%02X", e.FunctionCode)
}

// CalculateRequestLength returns the expected total length of the Request RTU ADU based on the header.
func CalculateRequestLength(funcCode byte, header []byte) (int, error) {
	// Header should be at least 7 bytes to cover ByteCount for 0x0F/0x10.
	// [SlaveID, Func, Appd1, Appd2, Appd3, Appd4/ByteCount]

	switch funcCode {
	case modbus.FuncCodeReadCoils,
		modbus.FuncCodeReadDiscreteInputs,
		modbus.FuncCodeReadHoldingRegisters,
		modbus.FuncCodeReadInputRegisters,
		modbus.FuncCodeWriteSingleCoil,
		modbus.FuncCodeWriteSingleRegister:
		// Fixed 8 bytes: [SlaveID, Func, Addr(2), Val(2), CRC(2)]
		return SingleRegisterFrameSize, nil
	case modbus.FuncCodeWriteMultipleCoils,
		modbus.FuncCodeWriteMultipleRegisters:
		// Req: [SlaveID, Func, Addr(2), Quant(2), ByteCount(1), Data(N), CRC(2)]
		if len(header) < 7 {
			return 0, fmt.Errorf("need 7 bytes to determine length for 0x%02X, got %d", funcCode, len(header))
		}

		byteCount := int(header[6])
		return 7 + byteCount + 2, nil
	default:
		return 0, fmt.Errorf("unsupported function code: 0x%02X", funcCode)
	}
}

// ReadFrame reads one RTU response frame from r, byte by byte.
// The frame length is derived from the function code and, for reads, the
// byte count field, so the caller receives exactly one frame regardless of how
// the underlying stream chunks it. The frame is not validated: checksum and
// addressing are the caller's business.
func ReadFrame(r io.Reader) ([]byte, error) {
	if r == nil {
		return nil, fmt.Errorf("reader is nil")
	}

	buf := make([]byte, 1)
	data := make([]byte, MaxSize)

	state := stateSlaveID
	var toRead int
	var n, crcCount int

	for {
		if _, err := io.ReadFull(r, buf); err != nil {
			if err == io.ErrUnexpectedEOF {
				err = io.EOF
			}
			if n > 0 && err == io.EOF {
				return nil, io.ErrUnexpectedEOF
			}
			return nil, err
		}

		data[n] = buf[0]
		n++

		switch state {
		case stateSlaveID:
			state = stateFunctionCode
		case stateFunctionCode:
			functionCode := buf[0]
			if functionCode&0x80 != 0 {
				state = stateReadPayload
				toRead = 1
				continue
			}
			switch functionCode {
			case modbus.FuncCodeReadDiscreteInputs,
				modbus.FuncCodeReadCoils,
				modbus.FuncCodeReadHoldingRegisters,
				modbus.FuncCodeReadInputRegisters,
				modbus.FuncCodeReadWriteMultipleRegisters:

				state = stateReadLength
			case modbus.FuncCodeWriteSingleCoil,
				modbus.FuncCodeWriteSingleRegister,
				modbus.FuncCodeWriteMultipleRegisters,
				modbus.FuncCodeWriteMultipleCoils:

				state = stateReadPayload
				toRead = 4
			case modbus.FuncCodeMaskWriteRegister:
				state = stateReadPayload
				toRead = 6
			default:
				return nil, &UnsupportedFunctionError{FunctionCode: functionCode}
			}
		case stateReadLength:
			length := buf[0]
			if int(length) > MaxSize-5 || length == 0 {
				return nil, &InvalidLengthError{Length: length}
			}
			toRead = int(length)
			state = stateReadPayload
		case stateReadPayload:
			toRead--
			if toRead == 0 {
				state = stateCRC
			}
		case stateCRC:
			crcCount++
			if crcCount == 2 {
				frame := make([]byte, n)
				copy(frame, data[:n])
				return frame, nil
			}
		}
	}
}
