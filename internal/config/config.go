// Copyright (c) 2025-2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config defines the global configuration structure
type Config struct {
	Buses []BusConfig `mapstructure:"buses"`
	Log   LogConfig   `mapstructure:"log"`
}

// LogConfig defines logging configuration
type LogConfig struct {
	Level string `mapstructure:"level"` // debug, info, warn, error
	File  string `mapstructure:"file"`  // Log file path
}

// BusConfig defines one shared bus and the devices attached to it
type BusConfig struct {
	Name    string         `mapstructure:"name"`
	Type    string         `mapstructure:"type"`   // "rtu", "rtu-over-tcp", "local"
	Serial  SerialConfig   `mapstructure:"serial"` // Used if Type is "rtu"
	Tcp     TcpConfig      `mapstructure:"tcp"`    // Used if Type is "rtu-over-tcp"
	Local   LocalConfig    `mapstructure:"local"`  // Used if Type is "local"
	Devices []DeviceConfig `mapstructure:"devices"`
}

// DeviceConfig names a catalog device at a slave address
type DeviceConfig struct {
	Name    string `mapstructure:"name"`
	Type    string `mapstructure:"type"` // catalog type, e.g. "temperature-sensor"
	Address int    `mapstructure:"address"`
}

// LocalConfig defines settings for the in-process simulated slave
type LocalConfig struct {
	SlaveIDs    string            `mapstructure:"slave_ids"` // "10", "10,11", "20-22"
	Persistence PersistenceConfig `mapstructure:"persistence"`
	Registers   []RegisterValue   `mapstructure:"registers"`
}

// RegisterValue seeds one register of the simulated slave
type RegisterValue struct {
	Table   string `mapstructure:"table"` // "input" or "holding"
	Address uint16 `mapstructure:"address"`
	Value   int    `mapstructure:"value"`
}

// PersistenceConfig defines data storage settings
type PersistenceConfig struct {
	Type string `mapstructure:"type"` // "memory", "file", "mmap", "sql"
	Path string `mapstructure:"path"` // File path for "file/mmap/sql" type
}

// TcpConfig defines TCP settings
type TcpConfig struct {
	Address string `mapstructure:"address"` // e.g. "192.168.1.100:4001"
}

// SerialConfig defines RTU settings
type SerialConfig struct {
	Device   string        `mapstructure:"device"`
	BaudRate int           `mapstructure:"baud_rate"`
	DataBits int           `mapstructure:"data_bits"`
	Parity   string        `mapstructure:"parity"`
	StopBits int           `mapstructure:"stop_bits"`
	Timeout  time.Duration `mapstructure:"timeout"` // Port read timeout, retried until cancelled

	// RS485 specific
	RS485              bool          `mapstructure:"rs485"`
	DelayRtsBeforeSend time.Duration `mapstructure:"delay_rts_before_send"`
	DelayRtsAfterSend  time.Duration `mapstructure:"delay_rts_after_send"`
	RtsHighDuringSend  bool          `mapstructure:"rts_high_during_send"`
	RtsHighAfterSend   bool          `mapstructure:"rts_high_after_send"`
	RxDuringTx         bool          `mapstructure:"rx_during_tx"`
}

// LoadConfig loads configuration from file
func LoadConfig(configFile string) (*Config, error) {
	v := viper.New()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/modbus-master/")
		v.AddConfigPath("$HOME/.modbus-master")
		v.AddConfigPath(".")
	}

	// Set defaults
	v.SetDefault("log.level", "info")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil, fmt.Errorf("failed to find config file: %w", err)
		}

		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate / Fixups
	names := make(map[string]bool, len(config.Buses))
	for i := range config.Buses {
		bus := &config.Buses[i]
		if bus.Name == "" {
			bus.Name = fmt.Sprintf("bus-%d", i+1)
		}
		if names[bus.Name] {
			return nil, fmt.Errorf("duplicate bus name %q", bus.Name)
		}
		names[bus.Name] = true

		switch bus.Type {
		case "rtu":
			if bus.Serial.Device == "" {
				return nil, fmt.Errorf("bus %s: serial.device is required", bus.Name)
			}
		case "rtu-over-tcp":
			if bus.Tcp.Address == "" {
				return nil, fmt.Errorf("bus %s: tcp.address is required", bus.Name)
			}
		case "local":
		default:
			return nil, fmt.Errorf("bus %s: unsupported type %q", bus.Name, bus.Type)
		}
		fixupSerial(&bus.Serial)
		// Serial and TCP buses carry a local section for the simulate command.
		fixupLocal(&bus.Local)
	}

	return &config, nil
}

func fixupSerial(s *SerialConfig) {
	s.Parity = strings.ToUpper(s.Parity)
	if s.Parity == "" {
		s.Parity = "N"
	}
	if s.BaudRate == 0 {
		s.BaudRate = 9600
	}
	if s.DataBits == 0 {
		s.DataBits = 8
	}
	if s.StopBits == 0 {
		s.StopBits = 1
	}
	if s.Timeout == 0 {
		s.Timeout = 500 * time.Millisecond
	}
}

func fixupLocal(l *LocalConfig) {
	if l.Persistence.Type == "" {
		l.Persistence.Type = "memory"
	}
	for i := range l.Registers {
		l.Registers[i].Table = strings.ToLower(l.Registers[i].Table)
	}
}
