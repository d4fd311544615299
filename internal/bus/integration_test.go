// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package bus

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ffutop/modbus-master/catalog"
	"github.com/ffutop/modbus-master/internal/config"
	"github.com/ffutop/modbus-master/internal/simulator"
	"github.com/ffutop/modbus-master/internal/simulator/model"
	rtuovertcp "github.com/ffutop/modbus-master/transport/rtu-over-tcp"
)

// TestBusOverTCP runs the master against the simulator through a real TCP
// connection, the way a serial device server is reached in the field.
func TestBusOverTCP(t *testing.T) {
	slave, err := simulator.New(config.LocalConfig{
		SlaveIDs: "10,11",
		Registers: []config.RegisterValue{
			{Table: "input", Address: catalog.SensorTemperature, Value: 215},
			{Table: "input", Address: catalog.FanHeartbeat, Value: 1},
		},
	})
	require.NoError(t, err)
	defer slave.Close()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan struct{})
	go func() {
		defer close(served)
		rtuovertcp.NewServer("", slave.Answers).Serve(ctx, ln, slave.Handle)
	}()
	defer func() {
		cancel()
		<-served
	}()

	b, err := New(config.BusConfig{
		Name: "line-1",
		Type: "rtu-over-tcp",
		Tcp:  config.TcpConfig{Address: ln.Addr().String()},
		Devices: []config.DeviceConfig{
			{Name: "greenhouse", Type: catalog.TemperatureSensorType, Address: 10},
			{Name: "exhaust", Type: catalog.FanType, Address: 11},
			{Name: "absent", Type: catalog.FanType, Address: 12},
		},
	})
	require.NoError(t, err)
	defer b.Close()
	b.Start(ctx)

	v, ok := b.ReadInput(ctx, "greenhouse", "temperature")
	require.True(t, ok)
	assert.Equal(t, 21.5, v)

	assert.True(t, b.WriteHolding(ctx, "greenhouse", "temperatureCorrection", -0.5))
	raw, err := slave.Get(model.TableHoldingRegisters, catalog.SensorTemperatureCorrection)
	require.NoError(t, err)
	assert.Equal(t, uint16(0xFFFB), raw)

	v, ok = b.ReadInput(ctx, "exhaust", "heartbeat")
	require.True(t, ok)
	assert.Equal(t, uint16(1), v)

	// Nobody answers for slave 12; the bus gives up once the caller does.
	short, cancelShort := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancelShort()
	_, ok = b.ReadInput(short, "absent", "heartbeat")
	assert.False(t, ok)

	// The connection was dropped by the abort and is dialled again.
	v, ok = b.ReadInput(ctx, "greenhouse", "temperature")
	require.True(t, ok)
	assert.Equal(t, 21.5, v)
}
