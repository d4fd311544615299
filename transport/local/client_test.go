// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package local

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ffutop/modbus-master/internal/config"
	"github.com/ffutop/modbus-master/internal/simulator/model"
	"github.com/ffutop/modbus-master/modbus/crc"
	rtupacket "github.com/ffutop/modbus-master/modbus/rtu"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	c, err := NewClient(config.LocalConfig{
		SlaveIDs:  "10",
		Registers: []config.RegisterValue{{Table: "input", Address: 0x0001, Value: 200}},
	})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestClient_Read(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	req, err := rtupacket.ReadInputRegister(10, 0x0001)
	require.NoError(t, err)
	require.NoError(t, c.Send(ctx, req))

	resp, err := c.Receive(ctx)
	require.NoError(t, err)
	payload, err := rtupacket.VerifyReadResponse(resp, 10, 0x04, 2)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0xC8}, payload)
}

func TestClient_WriteEcho(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	req, err := rtupacket.WriteSingleRegister(10, 0x0101, 20)
	require.NoError(t, err)
	require.NoError(t, c.Send(ctx, req))

	resp, err := c.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, req, resp)

	v, err := c.Slave().Get(model.TableHoldingRegisters, 0x0101)
	require.NoError(t, err)
	assert.Equal(t, uint16(20), v)
}

func TestClient_Silent(t *testing.T) {
	c := newTestClient(t)

	other, err := rtupacket.ReadInputRegister(11, 0x0001)
	require.NoError(t, err)
	corrupt, err := rtupacket.ReadInputRegister(10, 0x0001)
	require.NoError(t, err)
	corrupt[len(corrupt)-1] ^= 0x01
	broadcast := crc.Append([]byte{0x00, 0x06, 0x01, 0x03, 0x00, 0x05})

	for _, frame := range [][]byte{other, corrupt, broadcast} {
		require.NoError(t, c.Send(context.Background(), frame))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = c.Receive(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// The broadcast write was still executed.
	v, err := c.Slave().Get(model.TableHoldingRegisters, 0x0103)
	require.NoError(t, err)
	assert.Equal(t, uint16(5), v)
}

func TestClient_Close(t *testing.T) {
	c := newTestClient(t)
	require.NoError(t, c.Close())

	_, err := c.Receive(context.Background())
	assert.ErrorIs(t, err, io.EOF)
	assert.Error(t, c.Send(context.Background(), []byte{0x0A}))
}

func TestClient_Cancelled(t *testing.T) {
	c := newTestClient(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	req, err := rtupacket.ReadInputRegister(10, 0x0001)
	require.NoError(t, err)
	assert.ErrorIs(t, c.Send(ctx, req), context.Canceled)
	_, err = c.Receive(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClient_UnreceivedResponseDiscarded(t *testing.T) {
	c, err := NewClient(config.LocalConfig{
		SlaveIDs: "10",
		Registers: []config.RegisterValue{
			{Table: "input", Address: 0x0001, Value: 215},
			{Table: "input", Address: 0x0002, Value: 550},
		},
	})
	require.NoError(t, err)
	defer c.Close()
	ctx := context.Background()

	// The temperature answer is never received.
	temperature, err := rtupacket.ReadInputRegister(10, 0x0001)
	require.NoError(t, err)
	require.NoError(t, c.Send(ctx, temperature))

	humidity, err := rtupacket.ReadInputRegister(10, 0x0002)
	require.NoError(t, err)
	require.NoError(t, c.Send(ctx, humidity))

	resp, err := c.Receive(ctx)
	require.NoError(t, err)
	payload, err := rtupacket.VerifyReadResponse(resp, 10, 0x04, 2)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x02, 0x26}, payload)

	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = c.Receive(short)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
