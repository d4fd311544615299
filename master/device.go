// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package master

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ffutop/modbus-master/modbus"
	rtupacket "github.com/ffutop/modbus-master/modbus/rtu"
	"github.com/ffutop/modbus-master/register"
	"github.com/ffutop/modbus-master/transport"
)

var (
	ErrNoTransport       = errors.New("master: transport is nil")
	ErrDuplicateRegister = errors.New("master: duplicate register name")
	ErrUnknownRegister   = errors.New("master: unknown register")
)

// Device is one slave on a line: its address, the transport it is reached
// through, and its input and holding registers by name.
//
// Each call is one independent transaction. Devices sharing a transport
// must not run transactions concurrently; queue them above the device.
type Device struct {
	name      string
	slaveID   byte
	transport transport.Transport

	inputs       map[string]register.Field
	holdings     map[string]register.Field
	inputNames   []string
	holdingNames []string
}

// NewDevice binds registers to slaveID on t. The register sets are fixed
// for the life of the device. The transport is borrowed, not closed by the
// device.
func NewDevice(name string, t transport.Transport, slaveID int, inputs, holdings []register.Field) (*Device, error) {
	if t == nil {
		return nil, ErrNoTransport
	}
	if !modbus.IsValidSlaveID(slaveID) {
		return nil, fmt.Errorf("%w: %d", rtupacket.ErrInvalidSlaveID, slaveID)
	}

	d := &Device{
		name:      name,
		slaveID:   byte(slaveID),
		transport: t,
		inputs:    make(map[string]register.Field, len(inputs)),
		holdings:  make(map[string]register.Field, len(holdings)),
	}
	for _, f := range inputs {
		if _, ok := d.inputs[f.Name()]; ok {
			return nil, fmt.Errorf("%w: input %s", ErrDuplicateRegister, f.Name())
		}
		d.inputs[f.Name()] = f
		d.inputNames = append(d.inputNames, f.Name())
	}
	for _, f := range holdings {
		if _, ok := d.holdings[f.Name()]; ok {
			return nil, fmt.Errorf("%w: holding %s", ErrDuplicateRegister, f.Name())
		}
		d.holdings[f.Name()] = f
		d.holdingNames = append(d.holdingNames, f.Name())
	}
	return d, nil
}

func (d *Device) Name() string                   { return d.name }
func (d *Device) SlaveID() byte                  { return d.slaveID }
func (d *Device) Transport() transport.Transport { return d.transport }

// InputNames lists the input registers in declaration order.
func (d *Device) InputNames() []string { return append([]string(nil), d.inputNames...) }

// HoldingNames lists the holding registers in declaration order.
func (d *Device) HoldingNames() []string { return append([]string(nil), d.holdingNames...) }

// Input returns the input register called name.
func (d *Device) Input(name string) (register.Field, error) {
	if f, ok := d.inputs[name]; ok {
		return f, nil
	}
	return nil, fmt.Errorf("%w: input %s on %s", ErrUnknownRegister, name, d.name)
}

// Holding returns the holding register called name.
func (d *Device) Holding(name string) (register.Field, error) {
	if f, ok := d.holdings[name]; ok {
		return f, nil
	}
	return nil, fmt.Errorf("%w: holding %s on %s", ErrUnknownRegister, name, d.name)
}

// ReadInput reads the input register called name.
func (d *Device) ReadInput(ctx context.Context, name string) (any, bool) {
	f, err := d.Input(name)
	if err != nil {
		slog.Warn("modbus: read skipped", "device", d.name, "err", err)
		return nil, false
	}
	return d.read(ctx, f, modbus.FuncCodeReadInputRegisters)
}

// ReadHolding reads the holding register called name.
func (d *Device) ReadHolding(ctx context.Context, name string) (any, bool) {
	f, err := d.Holding(name)
	if err != nil {
		slog.Warn("modbus: read skipped", "device", d.name, "err", err)
		return nil, false
	}
	return d.read(ctx, f, modbus.FuncCodeReadHoldingRegisters)
}

// WriteHolding writes v to the holding register called name. A value the
// register rejects is refused without any I/O.
func (d *Device) WriteHolding(ctx context.Context, name string, v any) bool {
	f, err := d.Holding(name)
	if err != nil {
		slog.Warn("modbus: write skipped", "device", d.name, "err", err)
		return false
	}
	raw, err := f.EncodeValue(v)
	if err != nil {
		slog.Warn("modbus: write rejected", "device", d.name, "register", name, "err", err)
		return false
	}
	return d.write(ctx, f.Address(), raw)
}

func (d *Device) read(ctx context.Context, f register.Field, functionCode byte) (any, bool) {
	b, ok := d.readRaw(ctx, f.Address(), f.Length(), functionCode)
	if !ok {
		return nil, false
	}
	return f.DecodeValue(b), true
}

func (d *Device) readRaw(ctx context.Context, address uint16, length int, functionCode byte) ([]byte, bool) {
	req, err := rtupacket.EncodeReadRequest(d.slaveID, functionCode, address, 1)
	if err != nil {
		slog.Warn("modbus: read request not built", "device", d.name, "err", err)
		return nil, false
	}
	return ExecuteRead(ctx, d.transport, req, d.slaveID, functionCode, length)
}

func (d *Device) write(ctx context.Context, address uint16, raw int16) bool {
	req, err := rtupacket.WriteSingleRegister(d.slaveID, address, raw)
	if err != nil {
		slog.Warn("modbus: write request not built", "device", d.name, "err", err)
		return false
	}
	return ExecuteWrite(ctx, d.transport, req)
}

// InputRegister is a typed handle on one input register of a device.
type InputRegister[T any] struct {
	device *Device
	desc   *register.Descriptor[T]
}

// BindInput adds typed access to an input register of d.
func BindInput[T any](d *Device, desc *register.Descriptor[T]) InputRegister[T] {
	return InputRegister[T]{device: d, desc: desc}
}

// Read returns the current value, or false if no valid response arrived.
func (r InputRegister[T]) Read(ctx context.Context) (T, bool) {
	return readTyped(ctx, r.device, r.desc, modbus.FuncCodeReadInputRegisters)
}

// HoldingRegister is a typed handle on one holding register of a device.
type HoldingRegister[T any] struct {
	device *Device
	desc   *register.Descriptor[T]
}

// BindHolding adds typed access to a holding register of d.
func BindHolding[T any](d *Device, desc *register.Descriptor[T]) HoldingRegister[T] {
	return HoldingRegister[T]{device: d, desc: desc}
}

// Read returns the current value, or false if no valid response arrived.
func (r HoldingRegister[T]) Read(ctx context.Context) (T, bool) {
	return readTyped(ctx, r.device, r.desc, modbus.FuncCodeReadHoldingRegisters)
}

// Write stores v. It returns false without any I/O when the register
// rejects v, and false when the slave does not echo the request.
func (r HoldingRegister[T]) Write(ctx context.Context, v T) bool {
	raw, err := r.desc.EncodeTyped(v)
	if err != nil {
		slog.Warn("modbus: write rejected", "device", r.device.name, "register", r.desc.Label, "err", err)
		return false
	}
	return r.device.write(ctx, r.desc.Addr, raw)
}

func readTyped[T any](ctx context.Context, d *Device, desc *register.Descriptor[T], functionCode byte) (T, bool) {
	var zero T
	b, ok := d.readRaw(ctx, desc.Addr, desc.Size, functionCode)
	if !ok {
		return zero, false
	}
	return desc.Decode(b), true
}
