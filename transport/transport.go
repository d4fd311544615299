// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package transport

import (
	"context"

	"github.com/ffutop/modbus-master/modbus"
)

// Transport carries RTU frames between the master and a shared bus.
//
// Send and Receive each hold an exclusive handle on their direction for the
// duration of the call and release it on every return path. Cancelling ctx
// aborts the operation in flight. Receive delivers one whole frame per call
// and returns io.EOF once the stream has ended.
//
// A Transport does not serialize complete transactions: two callers
// interleaving Send/Receive pairs on one bus will read each other's
// responses. Queue transactions above the transport when devices share it.
type Transport interface {
	Send(ctx context.Context, frame []byte) error
	Receive(ctx context.Context) ([]byte, error)
}

// Connector is implemented by transports with an explicit connection
// lifecycle.
type Connector interface {
	Connect(ctx context.Context) error
	Close() error
}

// RequestHandler answers a request addressed to slaveID. Servers that
// simulate slave devices dispatch decoded requests to it.
type RequestHandler func(ctx context.Context, slaveID byte, pdu modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error)
