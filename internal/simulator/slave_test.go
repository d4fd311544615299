// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package simulator

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ffutop/modbus-master/internal/config"
	"github.com/ffutop/modbus-master/internal/simulator/model"
	"github.com/ffutop/modbus-master/modbus"
)

func TestParseSlaveIDs(t *testing.T) {
	tests := []struct {
		input   string
		want    []byte
		wantErr bool
	}{
		{"1", []byte{1}, false},
		{"1,2,3", []byte{1, 2, 3}, false},
		{"1-3", []byte{1, 2, 3}, false},
		{"1, 5-7, 10", []byte{1, 5, 6, 7, 10}, false},
		{"", nil, false},
		{"1-", nil, true},
		{"a", nil, true},
		{"0", nil, true},
		{"248", nil, true},
		{"5-3", nil, true},
	}

	for _, tt := range tests {
		got, err := ParseSlaveIDs(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseSlaveIDs(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && !reflect.DeepEqual(got, tt.want) {
			t.Errorf("ParseSlaveIDs(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func newSlave(t *testing.T) *Slave {
	t.Helper()
	s, err := New(config.LocalConfig{
		SlaveIDs: "10",
		Registers: []config.RegisterValue{
			{Table: "input", Address: 0x0001, Value: 200},
			{Table: "holding", Address: 0x0103, Value: -32},
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSlave_Answers(t *testing.T) {
	s := newSlave(t)
	assert.True(t, s.Answers(10))
	assert.False(t, s.Answers(11))
	assert.False(t, s.Answers(modbus.BroadcastSlaveID))

	promiscuous := NewSlave(model.NewDataModel(), nil, nil)
	assert.True(t, promiscuous.Answers(247))
	assert.False(t, promiscuous.Answers(248))
}

func TestSlave_Process(t *testing.T) {
	s := newSlave(t)

	tests := []struct {
		name string
		req  modbus.ProtocolDataUnit
		want modbus.ProtocolDataUnit
	}{
		{
			name: "read input",
			req:  modbus.ProtocolDataUnit{FunctionCode: 0x04, Data: []byte{0x00, 0x01, 0x00, 0x01}},
			want: modbus.ProtocolDataUnit{FunctionCode: 0x04, Data: []byte{0x02, 0x00, 0xC8}},
		},
		{
			name: "read holding",
			req:  modbus.ProtocolDataUnit{FunctionCode: 0x03, Data: []byte{0x01, 0x03, 0x00, 0x01}},
			want: modbus.ProtocolDataUnit{FunctionCode: 0x03, Data: []byte{0x02, 0xFF, 0xE0}},
		},
		{
			name: "write single echoes",
			req:  modbus.ProtocolDataUnit{FunctionCode: 0x06, Data: []byte{0x01, 0x01, 0x00, 0x14}},
			want: modbus.ProtocolDataUnit{FunctionCode: 0x06, Data: []byte{0x01, 0x01, 0x00, 0x14}},
		},
		{
			name: "write multiple",
			req:  modbus.ProtocolDataUnit{FunctionCode: 0x10, Data: []byte{0x00, 0x10, 0x00, 0x01, 0x02, 0x12, 0x34}},
			want: modbus.ProtocolDataUnit{FunctionCode: 0x10, Data: []byte{0x00, 0x10, 0x00, 0x01}},
		},
		{
			name: "quantity zero",
			req:  modbus.ProtocolDataUnit{FunctionCode: 0x03, Data: []byte{0x00, 0x00, 0x00, 0x00}},
			want: modbus.ProtocolDataUnit{FunctionCode: 0x83, Data: []byte{modbus.ExceptionCodeIllegalDataValue}},
		},
		{
			name: "past end of table",
			req:  modbus.ProtocolDataUnit{FunctionCode: 0x04, Data: []byte{0xFF, 0xFF, 0x00, 0x02}},
			want: modbus.ProtocolDataUnit{FunctionCode: 0x84, Data: []byte{modbus.ExceptionCodeIllegalDataAddress}},
		},
		{
			name: "coils unsupported",
			req:  modbus.ProtocolDataUnit{FunctionCode: 0x01, Data: []byte{0x00, 0x00, 0x00, 0x01}},
			want: modbus.ProtocolDataUnit{FunctionCode: 0x81, Data: []byte{modbus.ExceptionCodeIllegalFunction}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.Process(tt.req))
		})
	}

	v, err := s.Get(model.TableHoldingRegisters, 0x0101)
	require.NoError(t, err)
	assert.Equal(t, uint16(20), v)
	v, err = s.Get(model.TableHoldingRegisters, 0x0010)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x1234), v)
}

func TestNew_InvalidConfig(t *testing.T) {
	_, err := New(config.LocalConfig{SlaveIDs: "300"})
	assert.Error(t, err)

	_, err = New(config.LocalConfig{Registers: []config.RegisterValue{{Table: "coil", Address: 1}}})
	assert.Error(t, err)

	_, err = New(config.LocalConfig{Persistence: config.PersistenceConfig{Type: "redis"}})
	assert.Error(t, err)
}

func TestNew_SeedValueRange(t *testing.T) {
	for _, v := range []int{70000, 65536, -32769} {
		_, err := New(config.LocalConfig{Registers: []config.RegisterValue{{Table: "holding", Address: 1, Value: v}}})
		assert.ErrorIs(t, err, ErrValueOutOfRange, "value %d", v)
	}

	s, err := New(config.LocalConfig{Registers: []config.RegisterValue{
		{Table: "holding", Address: 1, Value: 65535},
		{Table: "holding", Address: 2, Value: -32768},
		{Table: "input", Address: 3, Value: 40000},
	}})
	require.NoError(t, err)
	defer s.Close()

	for _, tt := range []struct {
		table   model.Table
		address uint16
		want    uint16
	}{
		{model.TableHoldingRegisters, 1, 0xFFFF},
		{model.TableHoldingRegisters, 2, 0x8000},
		{model.TableInputRegisters, 3, 40000},
	} {
		v, err := s.Get(tt.table, tt.address)
		require.NoError(t, err)
		assert.Equal(t, tt.want, v)
	}
}
