// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial/enumerator"
	"gopkg.in/yaml.v3"

	"github.com/ffutop/modbus-master/catalog"
	"github.com/ffutop/modbus-master/internal/bus"
	"github.com/ffutop/modbus-master/internal/config"
	"github.com/ffutop/modbus-master/internal/simulator"
	"github.com/ffutop/modbus-master/register"
	"github.com/ffutop/modbus-master/transport"
	"github.com/ffutop/modbus-master/transport/local"
	"github.com/ffutop/modbus-master/transport/rtu"
	rtuovertcp "github.com/ffutop/modbus-master/transport/rtu-over-tcp"
)

func listPorts(w io.Writer) error {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return err
	}
	if len(ports) == 0 {
		fmt.Fprintln(w, "No serial ports found.")
		return nil
	}
	for _, port := range ports {
		if port.IsUSB {
			fmt.Fprintf(w, "%s\tUSB %s:%s %s %s\n", port.Name, port.VID, port.PID, port.Product, port.SerialNumber)
		} else {
			fmt.Fprintln(w, port.Name)
		}
	}
	return nil
}

type deviceDoc struct {
	Type     string        `yaml:"type"`
	Inputs   []registerDoc `yaml:"inputs"`
	Holdings []registerDoc `yaml:"holdings"`
}

type registerDoc struct {
	Name     string `yaml:"name"`
	Address  string `yaml:"address"`
	Writable bool   `yaml:"writable,omitempty"`
	Kind     string `yaml:"kind,omitempty"`
	Limits   any    `yaml:"limits,omitempty"`
}

// describe prints the catalog entries named in types, or all of them.
func describe(w io.Writer, types []string) error {
	if len(types) == 0 {
		types = catalog.Types()
	}

	// Devices need a line to be built on; nothing is sent.
	line, err := local.NewClient(config.LocalConfig{})
	if err != nil {
		return err
	}
	defer line.Close()

	docs := make([]deviceDoc, 0, len(types))
	for _, typ := range types {
		newDevice, ok := catalog.Supported[typ]
		if !ok {
			return fmt.Errorf("%w: %q (known: %s)", bus.ErrUnknownDeviceType, typ, strings.Join(catalog.Types(), ", "))
		}
		d, err := newDevice(typ, line, 1)
		if err != nil {
			return err
		}
		doc := deviceDoc{Type: typ}
		for _, name := range d.InputNames() {
			f, _ := d.Input(name)
			doc.Inputs = append(doc.Inputs, describeRegister(f))
		}
		for _, name := range d.HoldingNames() {
			f, _ := d.Holding(name)
			doc.Holdings = append(doc.Holdings, describeRegister(f))
		}
		docs = append(docs, doc)
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(docs); err != nil {
		return err
	}
	return enc.Close()
}

func describeRegister(f register.Field) registerDoc {
	doc := registerDoc{Name: f.Name(), Address: fmt.Sprintf("0x%04X", f.Address()), Writable: f.Writable()}
	if c := f.Constraint(); c != nil {
		doc.Kind = c.Kind()
		doc.Limits = c
	}
	return doc
}

func runRead(ctx context.Context, cfg *config.Config, busName string, holding bool, args []string) error {
	if len(args) != 2 {
		return errors.New("usage: read [--holding] <device> <register>")
	}
	buses, err := openBuses(ctx, cfg, busName)
	if err != nil {
		return err
	}
	defer closeBuses(buses)

	b, err := findDevice(buses, args[0])
	if err != nil {
		return err
	}
	var (
		v  any
		ok bool
	)
	if holding {
		v, ok = b.ReadHolding(ctx, args[0], args[1])
	} else {
		v, ok = b.ReadInput(ctx, args[0], args[1])
	}
	if !ok {
		return fmt.Errorf("no valid response from %s", args[0])
	}
	fmt.Printf("%s.%s = %v\n", args[0], args[1], v)
	return nil
}

func runWrite(ctx context.Context, cfg *config.Config, busName string, args []string) error {
	if len(args) != 3 {
		return errors.New("usage: write <device> <register> <value>")
	}
	buses, err := openBuses(ctx, cfg, busName)
	if err != nil {
		return err
	}
	defer closeBuses(buses)

	b, err := findDevice(buses, args[0])
	if err != nil {
		return err
	}
	d, err := b.Device(args[0])
	if err != nil {
		return err
	}
	f, err := d.Holding(args[1])
	if err != nil {
		return err
	}
	v, err := f.ParseValue(args[2])
	if err != nil {
		return err
	}
	if !b.WriteHolding(ctx, args[0], args[1], v) {
		return fmt.Errorf("write to %s.%s was not confirmed", args[0], args[1])
	}
	fmt.Printf("%s.%s := %v\n", args[0], args[1], v)
	return nil
}

// runPoll polls every bus concurrently until interrupted.
func runPoll(ctx context.Context, cfg *config.Config, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("%w: %v", bus.ErrInvalidInterval, interval)
	}
	buses, err := openBuses(ctx, cfg, "")
	if err != nil {
		return err
	}
	defer closeBuses(buses)

	var (
		wg  sync.WaitGroup
		out sync.Mutex
	)
	for _, b := range buses {
		wg.Add(1)
		go func(b *bus.Bus) {
			defer wg.Done()
			err := b.Poll(ctx, interval, func(r bus.Reading) {
				out.Lock()
				defer out.Unlock()
				if r.OK {
					fmt.Printf("%s\t%s\t%s.%s = %v\n", r.Time.Format(time.RFC3339), b.Name, r.Device, r.Register, r.Value)
				} else {
					fmt.Printf("%s\t%s\t%s.%s no response\n", r.Time.Format(time.RFC3339), b.Name, r.Device, r.Register)
				}
			})
			if err != nil {
				slog.Error("Polling stopped", "bus", b.Name, "err", err)
			}
		}(b)
	}
	wg.Wait()
	return nil
}

type server interface {
	Start(ctx context.Context, handler transport.RequestHandler) error
}

// runSimulate serves the local section of a serial or TCP bus on that bus's
// line, so a master elsewhere can talk to it.
func runSimulate(ctx context.Context, cfg *config.Config, busName string) error {
	var target *config.BusConfig
	for i := range cfg.Buses {
		bc := &cfg.Buses[i]
		if bc.Type == "local" || (busName != "" && bc.Name != busName) {
			continue
		}
		target = bc
		break
	}
	if target == nil {
		return errors.New("no serial or tcp bus to simulate on")
	}

	slave, err := simulator.New(target.Local)
	if err != nil {
		return err
	}
	defer slave.Close()

	var srv server
	switch target.Type {
	case "rtu":
		srv = rtu.NewServer(target.Serial, slave.Answers)
	case "rtu-over-tcp":
		srv = rtuovertcp.NewServer(target.Tcp.Address, slave.Answers)
	}
	slog.Info("Simulating slaves", "bus", target.Name, "type", target.Type, "slaveIDs", target.Local.SlaveIDs)
	return srv.Start(ctx, slave.Handle)
}
