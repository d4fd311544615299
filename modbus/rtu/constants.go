// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

const (
	MinSize = 4
	MaxSize = 256

	ExceptionSize = 5

	// SingleRegisterFrameSize is the length of every read-one and
	// write-one request: slave, function, address(2), count/value(2), crc(2).
	SingleRegisterFrameSize = 8

	// ReadPayloadOffset is where the register bytes start in a read response,
	// after slave, function and byte count.
	ReadPayloadOffset = 3
)
