// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import (
	"os"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ffutop/modbus-master/internal/simulator/model"
)

func TestStorage_Reload(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		kind string
		path string
	}{
		{"file", filepath.Join(dir, "registers.bin")},
		{"mmap", filepath.Join(dir, "registers.mmap")},
		{"sql", filepath.Join(dir, "registers.db")},
	}
	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			s, err := New(tt.kind, tt.path)
			require.NoError(t, err)
			m, err := s.Load()
			require.NoError(t, err)

			require.NoError(t, m.Set(model.TableHoldingRegisters, 0x0101, 20))
			s.OnWrite(model.TableHoldingRegisters, 0x0101, 1)
			require.NoError(t, m.Set(model.TableInputRegisters, 0x0001, 0xFFE0))
			s.OnWrite(model.TableInputRegisters, 0x0001, 1)
			require.NoError(t, s.Save(m))
			require.NoError(t, s.Close())

			s, err = New(tt.kind, tt.path)
			require.NoError(t, err)
			defer s.Close()
			m, err = s.Load()
			require.NoError(t, err)

			v, err := m.Get(model.TableHoldingRegisters, 0x0101)
			require.NoError(t, err)
			assert.Equal(t, uint16(20), v)
			v, err = m.Get(model.TableInputRegisters, 0x0001)
			require.NoError(t, err)
			assert.Equal(t, uint16(0xFFE0), v)
		})
	}
}

func TestMemoryStorage(t *testing.T) {
	s, err := New("", "")
	require.NoError(t, err)
	m, err := s.Load()
	require.NoError(t, err)
	v, err := m.Get(model.TableHoldingRegisters, 0)
	require.NoError(t, err)
	assert.Zero(t, v)
	assert.NoError(t, s.Close())
}

func TestNew_Unsupported(t *testing.T) {
	_, err := New("redis", "")
	assert.Error(t, err)
}

func TestImage_ForeignFileReset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registers.bin")
	require.NoError(t, os.WriteFile(path, []byte("not a register image"), 0644))

	s := NewFileStorage(path)
	m, err := s.Load()
	require.NoError(t, err)
	v, err := m.Get(model.TableHoldingRegisters, 0)
	require.NoError(t, err)
	assert.Zero(t, v)

	require.NoError(t, m.Set(model.TableInputRegisters, 0xFFFF, 0x1234))
	s.OnWrite(model.TableInputRegisters, 0xFFFF, 1)
	require.NoError(t, s.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Len(t, raw, totalSize)
	assert.Equal(t, imageHeader(), raw[:headerSize])
	assert.Equal(t, []byte{0x12, 0x34}, raw[totalSize-2:])
}
