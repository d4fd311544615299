// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/ffutop/modbus-master/internal/config"
	"github.com/ffutop/modbus-master/modbus"
	rtupacket "github.com/ffutop/modbus-master/modbus/rtu"
	"github.com/ffutop/modbus-master/transport"
	"github.com/grid-x/serial"
)

// Server acts as one or more slaves on a serial line, answering requests
// from an external master. It backs the simulate command.
type Server struct {
	Config config.SerialConfig

	// Answers selects the slave IDs the server responds for. Nil answers
	// every individual address.
	Answers func(slaveID byte) bool

	open func(*serial.Config) (io.ReadWriteCloser, error)
}

// NewServer creates a new RTU Server.
func NewServer(cfg config.SerialConfig, answers func(byte) bool) *Server {
	return &Server{
		Config:  cfg,
		Answers: answers,
	}
}

// Start opens the port and serves requests until ctx is cancelled.
func (s *Server) Start(ctx context.Context, handler transport.RequestHandler) error {
	spConfig := &serial.Config{
		Address:  s.Config.Device,
		BaudRate: s.Config.BaudRate,
		DataBits: s.Config.DataBits,
		StopBits: s.Config.StopBits,
		Parity:   s.Config.Parity,
		Timeout:  s.Config.Timeout,
	}

	open := s.open
	if open == nil {
		open = openSerial
	}
	port, err := open(spConfig)
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", s.Config.Device, err)
	}
	defer port.Close()
	slog.Info("RTU simulator listening", "device", s.Config.Device)

	stop := context.AfterFunc(ctx, func() { port.Close() })
	defer stop()

	err = s.scanLoop(ctx, port, handler)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// scanLoop reads requests one at a time and answers each before reading
// the next, as a half-duplex line requires. Frames that fail to parse are
// dropped and the scanner resynchronises on the next byte.
func (s *Server) scanLoop(ctx context.Context, port io.ReadWriter, handler transport.RequestHandler) error {
	buf := make([]byte, rtupacket.MaxSize)

	for {
		if ctx.Err() != nil {
			return nil
		}

		n, err := port.Read(buf[:1])
		if err != nil {
			if errors.Is(err, serial.ErrTimeout) {
				continue
			}
			return err
		}
		if n == 0 {
			continue
		}

		// Seven bytes cover the byte count of the variable-length requests.
		const header = 7
		if _, err := io.ReadFull(port, buf[1:header]); err != nil {
			if fatal(err) {
				return err
			}
			continue
		}

		expectedLen, err := rtupacket.CalculateRequestLength(buf[1], buf[:header])
		if err != nil || expectedLen > len(buf) {
			slog.Debug("Dropping request", "frame", hex.EncodeToString(buf[:header]), "err", err)
			continue
		}
		if _, err := io.ReadFull(port, buf[header:expectedLen]); err != nil {
			if fatal(err) {
				return err
			}
			continue
		}

		adu, err := rtupacket.Decode(buf[:expectedLen])
		if err != nil {
			slog.Debug("Dropping request", "frame", hex.EncodeToString(buf[:expectedLen]), "err", err)
			continue
		}
		broadcast := adu.SlaveID == modbus.BroadcastSlaveID
		if !broadcast && s.Answers != nil && !s.Answers(adu.SlaveID) {
			continue
		}

		req := modbus.ProtocolDataUnit{
			FunctionCode: adu.Pdu.FunctionCode,
			Data:         append([]byte(nil), adu.Pdu.Data...),
		}
		resp, err := handler(ctx, adu.SlaveID, req)
		if err != nil {
			slog.Error("Simulated request failed", "slaveID", adu.SlaveID, "err", err)
			continue
		}
		if broadcast {
			continue
		}

		raw, err := (&rtupacket.ApplicationDataUnit{SlaveID: adu.SlaveID, Pdu: resp}).Encode()
		if err != nil {
			slog.Error("Failed to encode response", "slaveID", adu.SlaveID, "err", err)
			continue
		}
		if _, err := port.Write(raw); err != nil {
			return err
		}
	}
}

// fatal reports whether a read error ends the loop. Timeouts and short
// frames only discard the frame in progress.
func fatal(err error) bool {
	return !errors.Is(err, serial.ErrTimeout) && !errors.Is(err, io.ErrUnexpectedEOF)
}
