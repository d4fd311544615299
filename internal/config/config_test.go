// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
log:
  level: debug
buses:
  - name: line-1
    type: rtu
    serial:
      device: /dev/ttyUSB0
      parity: e
    devices:
      - name: greenhouse
        type: temperature-sensor
        address: 10
  - type: local
    local:
      slave_ids: "10,20-22"
      registers:
        - table: INPUT
          address: 1
          value: 215
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	require.Len(t, cfg.Buses, 2)

	line := cfg.Buses[0]
	assert.Equal(t, "/dev/ttyUSB0", line.Serial.Device)
	assert.Equal(t, "E", line.Serial.Parity)
	assert.Equal(t, 9600, line.Serial.BaudRate)
	assert.Equal(t, 8, line.Serial.DataBits)
	assert.Equal(t, 1, line.Serial.StopBits)
	assert.Equal(t, 500*time.Millisecond, line.Serial.Timeout)
	require.Len(t, line.Devices, 1)
	assert.Equal(t, DeviceConfig{Name: "greenhouse", Type: "temperature-sensor", Address: 10}, line.Devices[0])

	sim := cfg.Buses[1]
	assert.Equal(t, "bus-2", sim.Name)
	assert.Equal(t, "memory", sim.Local.Persistence.Type)
	assert.Equal(t, "10,20-22", sim.Local.SlaveIDs)
	assert.Equal(t, []RegisterValue{{Table: "input", Address: 1, Value: 215}}, sim.Local.Registers)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown type", "buses: [{name: a, type: ascii}]"},
		{"missing device", "buses: [{name: a, type: rtu}]"},
		{"missing address", "buses: [{name: a, type: rtu-over-tcp}]"},
		{"duplicate name", "buses: [{name: a, type: local}, {name: a, type: local}]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoadConfig_Missing(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
