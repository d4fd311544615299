// Copyright (c) 2025-2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package bus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ffutop/modbus-master/catalog"
	"github.com/ffutop/modbus-master/internal/config"
	"github.com/ffutop/modbus-master/master"
	"github.com/ffutop/modbus-master/modbus"
	"github.com/ffutop/modbus-master/transport"
	"github.com/ffutop/modbus-master/transport/local"
	"github.com/ffutop/modbus-master/transport/rtu"
	rtuovertcp "github.com/ffutop/modbus-master/transport/rtu-over-tcp"
)

var (
	ErrAddressOutOfRange = errors.New("bus: address out of range")
	ErrAddressTaken      = errors.New("bus: address already in use")
	ErrDuplicateDevice   = errors.New("bus: duplicate device name")
	ErrUnknownDeviceType = errors.New("bus: unknown device type")
	ErrUnknownDevice     = errors.New("bus: unknown device")
	ErrInvalidInterval   = errors.New("bus: poll interval must be positive")
)

// Bus is one shared line and the devices attached to it.
// It runs transactions one at a time on a single worker goroutine, so
// devices on the same line never read each other's responses.
type Bus struct {
	Name      string
	Transport transport.Transport

	mu      sync.RWMutex
	devices map[string]*master.Device
	bySlave map[byte]*master.Device
	order   []string

	jobs      chan *job
	closed    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

type job struct {
	ctx  context.Context
	id   uuid.UUID
	log  []any
	run  func(ctx context.Context)
	done chan struct{}
}

// NewTransport creates the transport a bus configuration names.
func NewTransport(cfg config.BusConfig) (transport.Transport, error) {
	switch cfg.Type {
	case "rtu":
		return rtu.NewClient(cfg.Serial), nil
	case "rtu-over-tcp":
		return rtuovertcp.NewClient(cfg.Tcp.Address), nil
	case "local":
		return local.NewClient(cfg.Local)
	default:
		return nil, fmt.Errorf("unknown bus type %q", cfg.Type)
	}
}

// New creates the bus described by cfg with its configured devices.
func New(cfg config.BusConfig) (*Bus, error) {
	t, err := NewTransport(cfg)
	if err != nil {
		return nil, fmt.Errorf("bus %s: %w", cfg.Name, err)
	}
	b := NewBus(cfg.Name, t)
	for _, d := range cfg.Devices {
		if _, err := b.AddDevice(d.Name, d.Type, d.Address); err != nil {
			b.Close()
			return nil, fmt.Errorf("bus %s: %w", cfg.Name, err)
		}
	}
	return b, nil
}

// NewBus wraps t and starts the worker.
func NewBus(name string, t transport.Transport) *Bus {
	b := &Bus{
		Name:      name,
		Transport: t,
		devices:   make(map[string]*master.Device),
		bySlave:   make(map[byte]*master.Device),
		jobs:      make(chan *job),
		closed:    make(chan struct{}),
	}
	b.wg.Add(1)
	go b.worker()
	return b
}

// AddDevice attaches a catalog device of type typ at address.
func (b *Bus) AddDevice(name, typ string, address int) (*master.Device, error) {
	if !modbus.IsValidSlaveID(address) {
		return nil, fmt.Errorf("%w: %d", ErrAddressOutOfRange, address)
	}
	newDevice, ok := catalog.Supported[typ]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDeviceType, typ)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.devices[name]; ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateDevice, name)
	}
	if other, ok := b.bySlave[byte(address)]; ok {
		return nil, fmt.Errorf("%w: %d by %s", ErrAddressTaken, address, other.Name())
	}

	d, err := newDevice(name, b.Transport, address)
	if err != nil {
		return nil, err
	}
	b.devices[name] = d
	b.bySlave[byte(address)] = d
	b.order = append(b.order, name)
	slog.Info("Device attached", "bus", b.Name, "device", name, "type", typ, "slaveID", address)
	return d, nil
}

// Device returns the device called name.
func (b *Bus) Device(name string) (*master.Device, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if d, ok := b.devices[name]; ok {
		return d, nil
	}
	return nil, fmt.Errorf("%w: %s on %s", ErrUnknownDevice, name, b.Name)
}

// Devices lists the attached devices in the order they were added.
func (b *Bus) Devices() []*master.Device {
	b.mu.RLock()
	defer b.mu.RUnlock()
	devices := make([]*master.Device, 0, len(b.order))
	for _, name := range b.order {
		devices = append(devices, b.devices[name])
	}
	return devices
}

// Start connects transports that have a connection lifecycle. A transport
// that cannot connect yet is retried on its first transaction.
func (b *Bus) Start(ctx context.Context) {
	if c, ok := b.Transport.(transport.Connector); ok {
		if err := c.Connect(ctx); err != nil {
			slog.Error("Failed to connect bus", "bus", b.Name, "err", err)
		}
	}
}

// Close stops the worker after the transaction in progress and closes the
// transport.
func (b *Bus) Close() error {
	var err error
	b.closeOnce.Do(func() {
		close(b.closed)
		b.wg.Wait()
		if c, ok := b.Transport.(transport.Connector); ok {
			err = c.Close()
		}
	})
	return err
}

// ReadInput reads an input register of a device on the bus.
func (b *Bus) ReadInput(ctx context.Context, device, name string) (v any, ok bool) {
	d, err := b.Device(device)
	if err != nil {
		slog.Warn("bus: read skipped", "err", err)
		return nil, false
	}
	b.do(ctx, "read-input", device, name, func(ctx context.Context) {
		v, ok = d.ReadInput(ctx, name)
	})
	return v, ok
}

// ReadHolding reads a holding register of a device on the bus.
func (b *Bus) ReadHolding(ctx context.Context, device, name string) (v any, ok bool) {
	d, err := b.Device(device)
	if err != nil {
		slog.Warn("bus: read skipped", "err", err)
		return nil, false
	}
	b.do(ctx, "read-holding", device, name, func(ctx context.Context) {
		v, ok = d.ReadHolding(ctx, name)
	})
	return v, ok
}

// WriteHolding writes a holding register of a device on the bus.
func (b *Bus) WriteHolding(ctx context.Context, device, name string, v any) (ok bool) {
	d, err := b.Device(device)
	if err != nil {
		slog.Warn("bus: write skipped", "err", err)
		return false
	}
	b.do(ctx, "write-holding", device, name, func(ctx context.Context) {
		ok = d.WriteHolding(ctx, name, v)
	})
	return ok
}

// Reading is one polled input register.
type Reading struct {
	Device   string
	Register string
	Value    any
	OK       bool
	Time     time.Time
}

// Poll reads every input register of every device each interval and hands
// the results to fn, until ctx is cancelled. Each register is its own
// transaction, so writes queued meanwhile run between them.
func (b *Bus) Poll(ctx context.Context, interval time.Duration, fn func(Reading)) error {
	if interval <= 0 {
		return fmt.Errorf("%w: %v", ErrInvalidInterval, interval)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		for _, d := range b.Devices() {
			for _, name := range d.InputNames() {
				if ctx.Err() != nil {
					return nil
				}
				v, ok := b.ReadInput(ctx, d.Name(), name)
				fn(Reading{Device: d.Name(), Register: name, Value: v, OK: ok, Time: time.Now()})
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// do queues fn and waits for it. A job the worker has accepted always runs
// to completion; fn sees ctx and gives up on its own.
func (b *Bus) do(ctx context.Context, op, device, name string, fn func(ctx context.Context)) {
	j := &job{
		ctx:  ctx,
		id:   uuid.New(),
		log:  []any{"bus", b.Name, "op", op, "device", device, "register", name},
		run:  fn,
		done: make(chan struct{}),
	}
	select {
	case b.jobs <- j:
	case <-ctx.Done():
		slog.Debug("bus: transaction not queued", append(j.log, "err", ctx.Err())...)
		return
	case <-b.closed:
		slog.Warn("bus: transaction after close", j.log...)
		return
	}
	<-j.done
}

func (b *Bus) worker() {
	defer b.wg.Done()
	for {
		select {
		case <-b.closed:
			return
		case j := <-b.jobs:
			start := time.Now()
			j.run(j.ctx)
			close(j.done)
			slog.Debug("bus: transaction", append(j.log, "request", j.id.String(), "elapsed", time.Since(start))...)
		}
	}
}
