// Copyright (c) 2025-2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/spf13/pflag"

	"github.com/ffutop/modbus-master/internal/bus"
	"github.com/ffutop/modbus-master/internal/config"
)

const usage = `Usage: modbus-master [flags] <command> [args]

Commands:
  ports                              list serial ports
  describe [type]                    print the register tables of the device catalog
  read [--holding] <device> <reg>    read one register
  write <device> <reg> <value>       write one holding register
  poll [--interval 1s]               read every input register periodically
  simulate [--bus name]              answer requests as the local slaves of a bus

Flags:
`

func main() {
	flags := pflag.NewFlagSet("modbus-master", pflag.ExitOnError)
	configFile := flags.StringP("config", "c", "", "Configuration file path.")
	logLevel := flags.StringP("log_level", "v", "", "Log verbosity level (debug, info, warn, error).")
	busName := flags.StringP("bus", "b", "", "Bus to use; defaults to the bus the device is configured on.")
	holding := flags.Bool("holding", false, "Read a holding register instead of an input register.")
	interval := flags.DurationP("interval", "i", time.Second, "Poll interval.")
	flags.SetInterspersed(true)
	flags.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flags.PrintDefaults()
	}
	flags.Parse(os.Args[1:])

	args := flags.Args()
	if len(args) == 0 {
		flags.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	switch cmd, args := args[0], args[1:]; cmd {
	case "ports":
		setupLogger(config.LogConfig{Level: *logLevel})
		err = listPorts(os.Stdout)
	case "describe":
		setupLogger(config.LogConfig{Level: *logLevel})
		err = describe(os.Stdout, args)
	case "read", "write", "poll", "simulate":
		var cfg *config.Config
		cfg, err = config.LoadConfig(*configFile)
		if err != nil {
			fmt.Printf("Failed to load configuration: %v\n", err)
			os.Exit(1)
		}
		if *logLevel != "" {
			cfg.Log.Level = *logLevel
		}
		setupLogger(cfg.Log)

		switch cmd {
		case "read":
			err = runRead(ctx, cfg, *busName, *holding, args)
		case "write":
			err = runWrite(ctx, cfg, *busName, args)
		case "poll":
			err = runPoll(ctx, cfg, *interval)
		case "simulate":
			err = runSimulate(ctx, cfg, *busName)
		}
	default:
		flags.Usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", args[0], err)
		os.Exit(1)
	}
}

// openBuses creates the configured buses. With only set, just that bus.
func openBuses(ctx context.Context, cfg *config.Config, only string) ([]*bus.Bus, error) {
	var buses []*bus.Bus
	for _, bc := range cfg.Buses {
		if only != "" && bc.Name != only {
			continue
		}
		b, err := bus.New(bc)
		if err != nil {
			closeBuses(buses)
			return nil, err
		}
		b.Start(ctx)
		buses = append(buses, b)
	}
	if len(buses) == 0 {
		if only != "" {
			return nil, fmt.Errorf("no bus named %q", only)
		}
		return nil, errors.New("no buses configured")
	}
	return buses, nil
}

func closeBuses(buses []*bus.Bus) {
	for _, b := range buses {
		if err := b.Close(); err != nil {
			slog.Warn("Failed to close bus", "bus", b.Name, "err", err)
		}
	}
}

// findDevice returns the bus carrying device.
func findDevice(buses []*bus.Bus, device string) (*bus.Bus, error) {
	for _, b := range buses {
		if _, err := b.Device(device); err == nil {
			return b, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", bus.ErrUnknownDevice, device)
}

func setupLogger(cfg config.LogConfig) {
	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}
	switch cfg.Level {
	case "debug":
		opts.Level = slog.LevelDebug
	case "warn":
		opts.Level = slog.LevelWarn
	case "error":
		opts.Level = slog.LevelError
	}

	var handler slog.Handler
	if cfg.File != "" && cfg.File != "-" {
		f, err := os.OpenFile(cfg.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			fmt.Printf("Failed to open log file, falling back to stderr: %v\n", err)
			handler = slog.NewTextHandler(os.Stderr, opts)
		} else {
			handler = slog.NewTextHandler(f, opts)
		}
	} else {
		// stdout carries command output.
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}
