// Copyright (c) 2014 Quoc-Viet Nguyen. All rights reserved.
// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"context"
	"encoding/hex"
	"log/slog"
	"sync"
	"time"

	"github.com/ffutop/modbus-master/internal/config"
	rtupacket "github.com/ffutop/modbus-master/modbus/rtu"
)

// Client implements transport.Transport over a serial line (Modbus RTU master).
type Client struct {
	serialPort

	writeMu sync.Mutex
	readMu  sync.Mutex
}

// NewClient allocates and initializes a RTU Client.
func NewClient(cfg config.SerialConfig) *Client {
	client := &Client{}

	// Map internal config to serial.Config
	client.serialPort.Config.Address = cfg.Device
	client.serialPort.Config.BaudRate = cfg.BaudRate
	client.serialPort.Config.DataBits = cfg.DataBits
	client.serialPort.Config.StopBits = cfg.StopBits
	client.serialPort.Config.Parity = cfg.Parity
	client.serialPort.Config.Timeout = cfg.Timeout
	if client.serialPort.Config.Timeout <= 0 {
		client.serialPort.Config.Timeout = serialTimeout
	}
	if cfg.RS485 {
		client.serialPort.Config.RS485.Enabled = true
		client.serialPort.Config.RS485.DelayRtsBeforeSend = cfg.DelayRtsBeforeSend
		client.serialPort.Config.RS485.DelayRtsAfterSend = cfg.DelayRtsAfterSend
		client.serialPort.Config.RS485.RtsHighDuringSend = cfg.RtsHighDuringSend
		client.serialPort.Config.RS485.RtsHighAfterSend = cfg.RtsHighAfterSend
		client.serialPort.Config.RS485.RxDuringTx = cfg.RxDuringTx
	}

	client.IdleTimeout = serialIdleTimeout
	return client
}

// Send writes one frame to the line after the inter-frame silence has elapsed.
func (mb *Client) Send(ctx context.Context, frame []byte) error {
	mb.writeMu.Lock()
	defer mb.writeMu.Unlock()

	port, err := mb.acquire(ctx)
	if err != nil {
		return err
	}
	defer mb.release()

	stop := context.AfterFunc(ctx, func() { mb.abort(port) })
	defer stop()

	if err := mb.waitSilence(ctx, len(frame)); err != nil {
		return err
	}

	slog.Debug("send to modbus slave", "device", mb.Address, "request", hex.EncodeToString(frame))
	if _, err := port.Write(frame); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		mb.abort(port)
		return err
	}
	return nil
}

// Receive reads the next whole frame from the line.
func (mb *Client) Receive(ctx context.Context) ([]byte, error) {
	mb.readMu.Lock()
	defer mb.readMu.Unlock()

	port, err := mb.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer mb.release()

	stop := context.AfterFunc(ctx, func() { mb.abort(port) })
	defer stop()

	data, err := rtupacket.ReadFrame(&patientReader{ctx: ctx, port: port})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}
	slog.Debug("recv from modbus slave", "device", mb.Address, "response", hex.EncodeToString(data))
	return data, nil
}

// waitSilence holds off until the line has been quiet for 3.5 characters.
func (mb *Client) waitSilence(ctx context.Context, chars int) error {
	mb.mu.Lock()
	last := mb.lastActivity
	mb.mu.Unlock()

	wait := time.Until(last.Add(mb.calculateDelay(chars)))
	if wait <= 0 {
		return nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// calculateDelay calculates the needed delay to separate frames.
func (mb *Client) calculateDelay(chars int) time.Duration {
	var characterDelay, frameDelay int

	if mb.BaudRate <= 0 || mb.BaudRate > 19200 {
		characterDelay = 750
		frameDelay = 1750
	} else {
		characterDelay = 15000000 / mb.BaudRate
		frameDelay = 35000000 / mb.BaudRate
	}
	return time.Duration(characterDelay*chars+frameDelay) * time.Microsecond
}
