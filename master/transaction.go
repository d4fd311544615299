// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package master runs single-register transactions against slaves on a
// shared RTU line and exposes devices as named, typed registers.
package master

import (
	"context"
	"encoding/hex"
	"errors"
	"log/slog"

	rtupacket "github.com/ffutop/modbus-master/modbus/rtu"
	"github.com/ffutop/modbus-master/transport"
)

// ExecuteRead sends req and waits for the response to a read of byteCount
// bytes from slaveID. It returns the register bytes, or false when the
// context was cancelled, the transport failed or the response did not
// validate. Failures are logged and never retried.
func ExecuteRead(ctx context.Context, t transport.Transport, req []byte, slaveID, functionCode byte, byteCount int) ([]byte, bool) {
	resp, ok := exchange(ctx, t, req)
	if !ok {
		return nil, false
	}

	payload, err := rtupacket.VerifyReadResponse(resp, slaveID, functionCode, byteCount)
	if err != nil {
		logRejected(err, slaveID, resp)
		return nil, false
	}
	return payload, true
}

// ExecuteWrite sends req and reports whether the slave echoed it exactly.
func ExecuteWrite(ctx context.Context, t transport.Transport, req []byte) bool {
	resp, ok := exchange(ctx, t, req)
	if !ok {
		return false
	}

	if err := rtupacket.VerifyWriteResponse(req, resp); err != nil {
		logRejected(err, req[0], resp)
		return false
	}
	return true
}

// exchange performs one send and one receive. Cancellation is observed
// before each of them; the transport aborts whichever is in flight.
func exchange(ctx context.Context, t transport.Transport, req []byte) ([]byte, bool) {
	if err := ctx.Err(); err != nil {
		slog.Debug("modbus: transaction cancelled before send", "err", err)
		return nil, false
	}
	if len(req) < rtupacket.MinSize {
		slog.Warn("modbus: request too short", "request", hex.EncodeToString(req))
		return nil, false
	}
	if err := t.Send(ctx, req); err != nil {
		slog.Warn("modbus: send failed", "request", hex.EncodeToString(req), "err", err)
		return nil, false
	}

	if err := ctx.Err(); err != nil {
		slog.Debug("modbus: transaction cancelled before receive", "err", err)
		return nil, false
	}
	resp, err := t.Receive(ctx)
	if err != nil {
		slog.Warn("modbus: receive failed", "request", hex.EncodeToString(req), "err", err)
		return nil, false
	}
	if len(resp) == 0 {
		slog.Warn("modbus: empty response", "request", hex.EncodeToString(req))
		return nil, false
	}
	return resp, true
}

func logRejected(err error, slaveID byte, resp []byte) {
	// Another slave answering is routine on a shared line.
	level := slog.LevelWarn
	if errors.Is(err, rtupacket.ErrSlaveMismatch) {
		level = slog.LevelDebug
	}
	slog.Log(context.Background(), level, "modbus: response rejected", "slaveID", slaveID, "response", hex.EncodeToString(resp), "err", err)
}
