// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtuovertcp

import (
	"bufio"
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	rtupacket "github.com/ffutop/modbus-master/modbus/rtu"
)

const (
	dialTimeout = 10 * time.Second
)

// Client carries raw RTU frames over a TCP stream, as serial device servers
// in transparent mode expect. It implements transport.Transport.
type Client struct {
	Address     string
	DialTimeout time.Duration

	writeMu sync.Mutex
	readMu  sync.Mutex

	// mu guards the fields below. It is never held across I/O.
	mu   sync.Mutex
	conn net.Conn
	r    *bufio.Reader
	// awaiting is set between a Send and the Receive of its answer.
	awaiting bool
}

// NewClient allocates and initializes a TCP Client.
func NewClient(address string) *Client {
	return &Client{
		Address:     address,
		DialTimeout: dialTimeout,
	}
}

// Send writes one frame to the stream.
func (mb *Client) Send(ctx context.Context, frame []byte) error {
	mb.writeMu.Lock()
	defer mb.writeMu.Unlock()

	// An answer still due to an earlier request would be taken for ours.
	mb.mu.Lock()
	if mb.awaiting {
		slog.Debug("dropping connection with unreceived response", "addr", mb.Address)
		mb.close()
	}
	mb.mu.Unlock()

	conn, _, err := mb.acquire(ctx)
	if err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, func() { mb.abort(conn) })
	defer stop()

	slog.Debug("send to modbus slave", "addr", mb.Address, "request", hex.EncodeToString(frame))
	if _, err := conn.Write(frame); err != nil {
		mb.abort(conn) // Close connection on write failure to force reconnect next time
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("failed to write to connection: %w", err)
	}
	mb.mu.Lock()
	if mb.conn == conn {
		mb.awaiting = true
	}
	mb.mu.Unlock()
	return nil
}

// Receive reads the next whole frame from the stream.
func (mb *Client) Receive(ctx context.Context) ([]byte, error) {
	mb.readMu.Lock()
	defer mb.readMu.Unlock()

	conn, r, err := mb.acquire(ctx)
	if err != nil {
		return nil, err
	}
	stop := context.AfterFunc(ctx, func() { mb.abort(conn) })
	defer stop()

	// RTU-over-TCP is just RTU frames on a stream, so the RTU framer applies.
	data, err := rtupacket.ReadFrame(r)
	if err != nil {
		// A partial frame leaves the stream out of step; start over.
		mb.abort(conn)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}
	mb.mu.Lock()
	if mb.conn == conn {
		mb.awaiting = false
	}
	mb.mu.Unlock()
	slog.Debug("recv from modbus slave", "addr", mb.Address, "response", hex.EncodeToString(data))
	return data, nil
}

// Connect implements transport.Connector.
func (mb *Client) Connect(ctx context.Context) error {
	_, _, err := mb.acquire(ctx)
	return err
}

// Close implements transport.Connector.
func (mb *Client) Close() error {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	return mb.close()
}

// acquire dials if there is no active connection.
func (mb *Client) acquire(ctx context.Context) (net.Conn, *bufio.Reader, error) {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	if mb.conn == nil {
		dialer := net.Dialer{Timeout: mb.DialTimeout}
		conn, err := dialer.DialContext(ctx, "tcp", mb.Address)
		if err != nil {
			return nil, nil, fmt.Errorf("modbus: failed to connect to %s: %w", mb.Address, err)
		}
		mb.conn = conn
		mb.r = bufio.NewReaderSize(conn, rtupacket.MaxSize)
	}
	return mb.conn, mb.r, nil
}

// abort closes conn if it is still the active connection.
func (mb *Client) abort(conn net.Conn) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	if mb.conn == conn {
		mb.close()
	}
}

// close closes the connection and resets the state. Caller must hold the mutex.
func (mb *Client) close() error {
	var err error
	if mb.conn != nil {
		err = mb.conn.Close()
		mb.conn = nil
		mb.r = nil
	}
	mb.awaiting = false
	return err
}
