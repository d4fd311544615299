// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package simulator answers register requests the way a field device would,
// from an in-memory (optionally persisted) register model.
package simulator

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/ffutop/modbus-master/internal/config"
	"github.com/ffutop/modbus-master/internal/simulator/model"
	"github.com/ffutop/modbus-master/internal/simulator/persistence"
	"github.com/ffutop/modbus-master/modbus"
)

const (
	maxReadQuantity  = 125
	maxWriteQuantity = 123
)

// ErrValueOutOfRange rejects seed values that fit neither int16 nor uint16.
var ErrValueOutOfRange = errors.New("register value out of range")

// Slave implements the slave side of the register functions on top of a
// DataModel. One Slave may answer for several slave IDs.
type Slave struct {
	model   *model.DataModel
	storage persistence.Storage
	ids     map[byte]bool
}

// NewSlave creates a Slave answering for ids. An empty ids answers every
// individual address.
func NewSlave(m *model.DataModel, storage persistence.Storage, ids []byte) *Slave {
	if storage == nil {
		storage = persistence.NewMemoryStorage()
	}
	s := &Slave{model: m, storage: storage, ids: make(map[byte]bool, len(ids))}
	for _, id := range ids {
		s.ids[id] = true
	}
	return s
}

// New builds a Slave from configuration: it opens the persistence layer,
// loads the model and applies the configured register values.
func New(cfg config.LocalConfig) (*Slave, error) {
	ids, err := ParseSlaveIDs(cfg.SlaveIDs)
	if err != nil {
		return nil, fmt.Errorf("invalid slave_ids: %w", err)
	}

	for _, r := range cfg.Registers {
		if r.Value < math.MinInt16 || r.Value > math.MaxUint16 {
			return nil, fmt.Errorf("%w: %d for %s register 0x%04X", ErrValueOutOfRange, r.Value, r.Table, r.Address)
		}
	}

	storage, err := persistence.New(cfg.Persistence.Type, cfg.Persistence.Path)
	if err != nil {
		return nil, err
	}
	slog.Info("Initializing simulated slave", "persistence", cfg.Persistence.Type, "path", cfg.Persistence.Path, "slaveIDs", cfg.SlaveIDs)

	m, err := storage.Load()
	if err != nil {
		slog.Error("Failed to load persistence data, falling back to memory", "err", err)
		storage = persistence.NewMemoryStorage()
		m, _ = storage.Load()
	}

	s := NewSlave(m, storage, ids)
	for _, r := range cfg.Registers {
		table, err := model.ParseTable(r.Table)
		if err != nil {
			s.Close()
			return nil, err
		}
		// Negative values are stored as their two's complement.
		if err := s.Set(table, r.Address, uint16(r.Value)); err != nil {
			s.Close()
			return nil, fmt.Errorf("seeding %s register 0x%04X: %w", table, r.Address, err)
		}
	}
	return s, nil
}

// Answers reports whether the slave responds to requests for slaveID.
// Broadcast requests are executed but never answered.
func (s *Slave) Answers(slaveID byte) bool {
	if !modbus.IsValidSlaveID(int(slaveID)) {
		return false
	}
	return len(s.ids) == 0 || s.ids[slaveID]
}

// Set stores a register value and persists it.
func (s *Slave) Set(table model.Table, address, value uint16) error {
	if err := s.model.Set(table, address, value); err != nil {
		return err
	}
	s.storage.OnWrite(table, address, 1)
	return nil
}

// Get returns a register value.
func (s *Slave) Get(table model.Table, address uint16) (uint16, error) {
	return s.model.Get(table, address)
}

// Close flushes and releases the storage.
func (s *Slave) Close() error {
	if err := s.storage.Save(s.model); err != nil {
		slog.Warn("Failed to save simulated registers", "err", err)
	}
	return s.storage.Close()
}

// Handle serves a decoded request. It has the transport.RequestHandler
// signature so a server can dispatch to it directly.
func (s *Slave) Handle(_ context.Context, slaveID byte, pdu modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error) {
	resp := s.Process(pdu)
	slog.Debug("Simulated slave answered", "slaveID", slaveID, "func", pdu.FunctionCode, "resp", resp.FunctionCode)
	return resp, nil
}

// Process executes the function code against the register model. Protocol
// errors become exception responses.
func (s *Slave) Process(req modbus.ProtocolDataUnit) modbus.ProtocolDataUnit {
	switch req.FunctionCode {
	case modbus.FuncCodeReadHoldingRegisters:
		return s.handleRead(req, model.TableHoldingRegisters)
	case modbus.FuncCodeReadInputRegisters:
		return s.handleRead(req, model.TableInputRegisters)
	case modbus.FuncCodeWriteSingleRegister:
		return s.handleWriteSingleRegister(req)
	case modbus.FuncCodeWriteMultipleRegisters:
		return s.handleWriteMultipleRegisters(req)
	default:
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalFunction)
	}
}

func (s *Slave) handleRead(req modbus.ProtocolDataUnit, table model.Table) modbus.ProtocolDataUnit {
	if len(req.Data) != 4 {
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue)
	}
	address := binary.BigEndian.Uint16(req.Data[0:2])
	quantity := binary.BigEndian.Uint16(req.Data[2:4])

	if quantity < 1 || quantity > maxReadQuantity {
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue)
	}

	data, err := s.model.Read(table, address, quantity)
	if err != nil {
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataAddress)
	}

	respData := make([]byte, 1+len(data))
	respData[0] = byte(len(data))
	copy(respData[1:], data)

	return modbus.ProtocolDataUnit{
		FunctionCode: req.FunctionCode,
		Data:         respData,
	}
}

func (s *Slave) handleWriteSingleRegister(req modbus.ProtocolDataUnit) modbus.ProtocolDataUnit {
	if len(req.Data) != 4 {
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue)
	}
	address := binary.BigEndian.Uint16(req.Data[0:2])

	if err := s.model.Write(model.TableHoldingRegisters, address, req.Data[2:4]); err != nil {
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataAddress)
	}
	s.storage.OnWrite(model.TableHoldingRegisters, address, 1)

	return req // Echo request
}

func (s *Slave) handleWriteMultipleRegisters(req modbus.ProtocolDataUnit) modbus.ProtocolDataUnit {
	if len(req.Data) < 7 {
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue)
	}
	address := binary.BigEndian.Uint16(req.Data[0:2])
	quantity := binary.BigEndian.Uint16(req.Data[2:4])
	byteCount := int(req.Data[4])

	if quantity < 1 || quantity > maxWriteQuantity ||
		byteCount != int(quantity)*2 || len(req.Data)-5 != byteCount {
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue)
	}

	if err := s.model.Write(model.TableHoldingRegisters, address, req.Data[5:]); err != nil {
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataAddress)
	}
	s.storage.OnWrite(model.TableHoldingRegisters, address, quantity)

	return modbus.ProtocolDataUnit{
		FunctionCode: req.FunctionCode,
		Data:         append([]byte(nil), req.Data[0:4]...),
	}
}

func exception(funcCode byte, code byte) modbus.ProtocolDataUnit {
	return modbus.ProtocolDataUnit{
		FunctionCode: funcCode | 0x80,
		Data:         []byte{code},
	}
}

// ParseSlaveIDs parses a string of slave IDs (e.g. "1,2,5-10") into a slice of bytes.
func ParseSlaveIDs(input string) ([]byte, error) {
	var ids []byte
	for _, part := range strings.Split(input, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		start, end := part, part
		if lo, hi, ok := strings.Cut(part, "-"); ok {
			start, end = lo, hi
		}
		first, err := parseSlaveID(start)
		if err != nil {
			return nil, err
		}
		last, err := parseSlaveID(end)
		if err != nil {
			return nil, err
		}
		if first > last {
			return nil, fmt.Errorf("start of range %d is greater than end %d", first, last)
		}
		for i := first; i <= last; i++ {
			ids = append(ids, byte(i))
		}
	}
	return ids, nil
}

func parseSlaveID(s string) (int, error) {
	id, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid id: %w", err)
	}
	if !modbus.IsValidSlaveID(id) {
		return 0, fmt.Errorf("id out of range: %d", id)
	}
	return id, nil
}
