// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package local

import (
	"context"
	"encoding/hex"
	"io"
	"log/slog"
	"sync"

	"github.com/ffutop/modbus-master/internal/config"
	"github.com/ffutop/modbus-master/internal/simulator"
	"github.com/ffutop/modbus-master/modbus"
	rtupacket "github.com/ffutop/modbus-master/modbus/rtu"
)

// pending bounds the responses waiting to be received.
const pending = 16

// Client is a loopback transport.Transport: frames sent to it are answered
// by an in-process simulated slave, and the answers are handed back by
// Receive. Frames a real slave would ignore (bad checksum, other address,
// broadcast) produce no response.
type Client struct {
	slave *simulator.Slave

	writeMu sync.Mutex
	readMu  sync.Mutex

	responses chan []byte
	closeOnce sync.Once
	closed    chan struct{}
}

// NewClient builds the simulated slave described by cfg.
func NewClient(cfg config.LocalConfig) (*Client, error) {
	s, err := simulator.New(cfg)
	if err != nil {
		return nil, err
	}
	return NewClientWithSlave(s), nil
}

// NewClientWithSlave wraps an existing simulated slave.
func NewClientWithSlave(s *simulator.Slave) *Client {
	return &Client{
		slave:     s,
		responses: make(chan []byte, pending),
		closed:    make(chan struct{}),
	}
}

// Slave returns the simulated slave behind the transport.
func (c *Client) Slave() *simulator.Slave {
	return c.slave
}

// Send processes the frame locally and queues the response, if any.
func (c *Client) Send(ctx context.Context, frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-c.closed:
		return io.ErrClosedPipe
	default:
	}
	c.discardPending()

	adu, err := rtupacket.Decode(frame)
	if err != nil {
		slog.Debug("Simulated slave ignored frame", "frame", hex.EncodeToString(frame), "err", err)
		return nil
	}
	broadcast := adu.SlaveID == modbus.BroadcastSlaveID
	if !broadcast && !c.slave.Answers(adu.SlaveID) {
		return nil
	}

	req := modbus.ProtocolDataUnit{
		FunctionCode: adu.Pdu.FunctionCode,
		Data:         append([]byte(nil), adu.Pdu.Data...),
	}
	resp, err := c.slave.Handle(ctx, adu.SlaveID, req)
	if err != nil || broadcast {
		return nil
	}

	raw, err := (&rtupacket.ApplicationDataUnit{SlaveID: adu.SlaveID, Pdu: resp}).Encode()
	if err != nil {
		return err
	}
	select {
	case c.responses <- raw:
	default:
		slog.Warn("Simulated slave response dropped, nobody is receiving", "slaveID", adu.SlaveID)
	}
	return nil
}

// discardPending drops answers nobody received. A new request voids them.
func (c *Client) discardPending() {
	for {
		select {
		case raw := <-c.responses:
			slog.Debug("Discarding unreceived response", "frame", hex.EncodeToString(raw))
		default:
			return
		}
	}
}

// Receive returns the next queued response. It blocks until one is queued,
// ctx is cancelled or the client is closed (io.EOF).
func (c *Client) Receive(ctx context.Context) ([]byte, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	select {
	case raw := <-c.responses:
		return raw, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.closed:
		return nil, io.EOF
	}
}

// Connect is a no-op for the local slave.
func (c *Client) Connect(context.Context) error {
	return nil
}

// Close ends the stream and releases the slave's storage.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.slave.Close()
	})
	return err
}
