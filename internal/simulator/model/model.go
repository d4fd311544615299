// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package model holds the register tables of a simulated slave.
package model

import (
	"encoding/binary"
	"fmt"
	"strings"
	"sync"
)

const (
	MaxAddress = 65535

	// TableSize is the byte size of one register table.
	TableSize = (MaxAddress + 1) * 2
)

// Table selects a register table.
type Table int

const (
	TableHoldingRegisters Table = iota
	TableInputRegisters
)

func (t Table) String() string {
	switch t {
	case TableHoldingRegisters:
		return "holding"
	case TableInputRegisters:
		return "input"
	default:
		return fmt.Sprintf("table(%d)", int(t))
	}
}

// ParseTable maps "holding" and "input" to their table.
func ParseTable(s string) (Table, error) {
	switch strings.ToLower(s) {
	case "holding":
		return TableHoldingRegisters, nil
	case "input":
		return TableInputRegisters, nil
	default:
		return 0, fmt.Errorf("unknown register table %q", s)
	}
}

// DataModel covers the full 16-bit address space of both register tables.
// Registers are kept as big-endian byte pairs, the order they travel in, so
// a table can be backed directly by a file or a memory mapping.
type DataModel struct {
	mu sync.RWMutex

	// 4x Holding Registers (Read/Write).
	HoldingRegisters []byte
	// 3x Input Registers (Read Only on the wire).
	InputRegisters []byte
}

// NewDataModel creates a new memory model initialized to zero.
func NewDataModel() *DataModel {
	return &DataModel{
		HoldingRegisters: make([]byte, TableSize),
		InputRegisters:   make([]byte, TableSize),
	}
}

func (m *DataModel) table(t Table) ([]byte, error) {
	switch t {
	case TableHoldingRegisters:
		return m.HoldingRegisters, nil
	case TableInputRegisters:
		return m.InputRegisters, nil
	default:
		return nil, fmt.Errorf("unknown register table %d", int(t))
	}
}

// Read returns quantity registers starting at address as big-endian bytes.
func (m *DataModel) Read(t Table, address, quantity uint16) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := validateRange(address, quantity); err != nil {
		return nil, err
	}
	tab, err := m.table(t)
	if err != nil {
		return nil, err
	}

	start := int(address) * 2
	result := make([]byte, int(quantity)*2)
	copy(result, tab[start:start+len(result)])
	return result, nil
}

// Write stores big-endian register data starting at address.
func (m *DataModel) Write(t Table, address uint16, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(data) == 0 || len(data)%2 != 0 {
		return fmt.Errorf("register data must be a non-empty even length, got %d", len(data))
	}
	if err := validateRange(address, uint16(len(data)/2)); err != nil {
		return err
	}
	tab, err := m.table(t)
	if err != nil {
		return err
	}

	copy(tab[int(address)*2:], data)
	return nil
}

// Set stores a single register value.
func (m *DataModel) Set(t Table, address, value uint16) error {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], value)
	return m.Write(t, address, b[:])
}

// Get returns a single register value.
func (m *DataModel) Get(t Table, address uint16) (uint16, error) {
	b, err := m.Read(t, address, 1)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

func validateRange(address, quantity uint16) error {
	if quantity == 0 {
		return fmt.Errorf("quantity must be greater than 0")
	}
	// address is 0-based.
	if int(address)+int(quantity) > MaxAddress+1 {
		return fmt.Errorf("address range out of bounds")
	}
	return nil
}
