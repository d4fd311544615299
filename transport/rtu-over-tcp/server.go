// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtuovertcp

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"

	"github.com/ffutop/modbus-master/modbus"
	rtupacket "github.com/ffutop/modbus-master/modbus/rtu"
	"github.com/ffutop/modbus-master/transport"
)

// Server simulates slaves behind a serial device server: it accepts TCP
// connections and answers the RTU frames each one carries.
type Server struct {
	Address string

	// Answers selects the slave IDs the server responds for. Nil answers
	// every individual address.
	Answers func(slaveID byte) bool
}

// NewServer creates a new RTU over TCP Server.
func NewServer(address string, answers func(byte) bool) *Server {
	return &Server{
		Address: address,
		Answers: answers,
	}
}

// Start listens on Address and serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context, handler transport.RequestHandler) error {
	listener, err := net.Listen("tcp", s.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.Address, err)
	}
	return s.Serve(ctx, listener, handler)
}

// Serve accepts connections on listener until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, listener net.Listener, handler transport.RequestHandler) error {
	slog.Info("RTU over TCP simulator listening", "addr", listener.Addr())

	stop := context.AfterFunc(ctx, func() { listener.Close() })
	defer stop()
	defer listener.Close()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			slog.Error("Failed to accept connection", "err", err)
			continue
		}
		go s.handleConnection(ctx, conn, handler)
	}
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn, handler transport.RequestHandler) {
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()
	slog.Info("RTU over TCP client connected", "addr", conn.RemoteAddr())

	r := bufio.NewReaderSize(conn, rtupacket.MaxSize)
	buf := make([]byte, rtupacket.MaxSize)

	for {
		// Seven bytes cover the byte count of the variable-length requests.
		const header = 7
		if _, err := io.ReadFull(r, buf[:header]); err != nil {
			if err != io.EOF && ctx.Err() == nil {
				slog.Error("Connection read error", "addr", conn.RemoteAddr(), "err", err)
			}
			return
		}

		expectedLen, err := rtupacket.CalculateRequestLength(buf[1], buf[:header])
		if err != nil || expectedLen > len(buf) {
			// A stream has no silent intervals to resynchronise on.
			slog.Warn("Invalid RTU frame header, closing connection", "func", buf[1], "err", err)
			return
		}
		if _, err := io.ReadFull(r, buf[header:expectedLen]); err != nil {
			return
		}

		adu, err := rtupacket.Decode(buf[:expectedLen])
		if err != nil {
			slog.Warn("RTU frame decode failed", "err", err)
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
		respPdu, err := handler(ctx, adu.SlaveID, req)
		if err != nil {
			slog.Error("Handler failed", "err", err)
			respPdu = modbus.ProtocolDataUnit{
				FunctionCode: req.FunctionCode | 0x80,
				Data:         []byte{modbus.ExceptionCodeServerDeviceFailure},
			}
		}
		if broadcast {
			continue
		}

		respRaw, err := (&rtupacket.ApplicationDataUnit{SlaveID: adu.SlaveID, Pdu: respPdu}).Encode()
		if err != nil {
			slog.Error("Failed to encode response", "err", err)
			continue
		}
		if _, err := conn.Write(respRaw); err != nil {
			slog.Error("Failed to write response", "err", err)
			return
		}
	}
}
