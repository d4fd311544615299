// Copyright (c) 2014 Quoc-Viet Nguyen. All rights reserved.
// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/grid-x/serial"
)

const (
	// Default timeout
	serialTimeout     = 5 * time.Second
	serialIdleTimeout = 60 * time.Second
)

// serialPort has configuration and I/O controller.
type serialPort struct {
	// Serial port configuration.
	serial.Config

	IdleTimeout time.Duration

	// open replaces serial.Open in tests.
	open func(*serial.Config) (io.ReadWriteCloser, error)

	// mu guards the fields below. It is never held across port I/O, so a
	// cancellation can close the port under a blocked Read or Write.
	mu sync.Mutex
	// port is platform-dependent data structure for serial port.
	port         io.ReadWriteCloser
	inUse        int
	lastActivity time.Time
	closeTimer   *time.Timer
}

func (modbus *serialPort) Connect(ctx context.Context) (err error) {
	_, err = modbus.acquire(ctx)
	if err == nil {
		modbus.release()
	}
	return
}

// acquire connects if needed and marks the port busy so the idle timer
// leaves it alone. Every successful acquire is paired with release.
func (modbus *serialPort) acquire(ctx context.Context) (io.ReadWriteCloser, error) {
	modbus.mu.Lock()
	defer modbus.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if modbus.port == nil {
		open := modbus.open
		if open == nil {
			open = openSerial
		}
		port, err := open(&modbus.Config)
		if err != nil {
			return nil, fmt.Errorf("could not open %s: %w", modbus.Config.Address, err)
		}
		modbus.port = port
	}
	modbus.inUse++
	return modbus.port, nil
}

func (modbus *serialPort) release() {
	modbus.mu.Lock()
	defer modbus.mu.Unlock()

	modbus.inUse--
	modbus.lastActivity = time.Now()
	modbus.startCloseTimer()
}

// abort closes port if it is still the current one. Blocked I/O on it
// returns with an error.
func (modbus *serialPort) abort(port io.ReadWriteCloser) {
	modbus.mu.Lock()
	defer modbus.mu.Unlock()

	if modbus.port == port {
		modbus.logDebug("modbus: closing serial port")
		modbus.close()
	}
}

func (modbus *serialPort) Close() (err error) {
	modbus.mu.Lock()
	defer modbus.mu.Unlock()

	return modbus.close()
}

// close closes the serial port if it is connected. Caller must hold the mutex.
func (modbus *serialPort) close() (err error) {
	if modbus.port != nil {
		err = modbus.port.Close()
		modbus.port = nil
	}
	return
}

func (modbus *serialPort) logDebug(msg string, args ...any) {
	slog.Debug(msg, append([]any{"device", modbus.Config.Address}, args...)...)
}

// startCloseTimer arms the idle timer. Caller must hold the mutex.
func (modbus *serialPort) startCloseTimer() {
	if modbus.IdleTimeout <= 0 {
		return
	}
	if modbus.closeTimer == nil {
		modbus.closeTimer = time.AfterFunc(modbus.IdleTimeout, modbus.closeIdle)
	} else {
		modbus.closeTimer.Reset(modbus.IdleTimeout)
	}
}

// closeIdle closes the connection if last activity is passed behind IdleTimeout.
func (modbus *serialPort) closeIdle() {
	modbus.mu.Lock()
	defer modbus.mu.Unlock()

	if modbus.IdleTimeout <= 0 || modbus.inUse > 0 {
		return
	}

	if idle := time.Since(modbus.lastActivity); idle >= modbus.IdleTimeout {
		modbus.logDebug("modbus: closing connection due to idle timeout", "idle", idle)
		modbus.close()
	}
}

func openSerial(cfg *serial.Config) (io.ReadWriteCloser, error) {
	return serial.Open(cfg)
}

// patientReader turns the port's read timeouts into waiting: a response is
// awaited until it arrives or ctx is cancelled.
type patientReader struct {
	ctx  context.Context
	port io.Reader
}

func (r *patientReader) Read(b []byte) (int, error) {
	for {
		if err := r.ctx.Err(); err != nil {
			return 0, err
		}
		n, err := r.port.Read(b)
		if errors.Is(err, serial.ErrTimeout) || (n == 0 && err == nil) {
			continue
		}
		return n, err
	}
}
