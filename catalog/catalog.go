// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package catalog holds the register tables of the supported device types.
package catalog

import (
	"sort"

	"github.com/ffutop/modbus-master/master"
	"github.com/ffutop/modbus-master/transport"
)

// Constructor builds a device of one catalog type at slaveID on t.
type Constructor func(name string, t transport.Transport, slaveID int) (*master.Device, error)

// Supported maps a device type name to its constructor.
var Supported = map[string]Constructor{
	TemperatureSensorType: func(name string, t transport.Transport, slaveID int) (*master.Device, error) {
		s, err := NewTemperatureSensor(name, t, slaveID)
		if err != nil {
			return nil, err
		}
		return s.Device, nil
	},
	FanType: func(name string, t transport.Transport, slaveID int) (*master.Device, error) {
		f, err := NewFan(name, t, slaveID)
		if err != nil {
			return nil, err
		}
		return f.Device, nil
	},
}

// Types returns the supported type names, sorted.
func Types() []string {
	types := make([]string, 0, len(Supported))
	for name := range Supported {
		types = append(types, name)
	}
	sort.Strings(types)
	return types
}
