// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package catalog

import (
	"strconv"

	"github.com/ffutop/modbus-master/master"
	"github.com/ffutop/modbus-master/register"
	"github.com/ffutop/modbus-master/transport"
)

const TemperatureSensorType = "temperature-sensor"

// Temperature sensor register addresses.
const (
	SensorTemperature uint16 = 0x0001
	SensorHumidity    uint16 = 0x0002

	SensorDeviceAddress         uint16 = 0x0101
	SensorBaudRate              uint16 = 0x0102
	SensorTemperatureCorrection uint16 = 0x0103
	SensorHumidityCorrection    uint16 = 0x0104
)

// SensorBaudRates are the line speeds the sensor can be switched to. The
// register holds the rate itself.
var SensorBaudRates = []int{9600, 14400, 19200}

// TemperatureSensor is a temperature and humidity sensor. Values are
// tenths on the wire; corrections are offsets added by the sensor.
type TemperatureSensor struct {
	*master.Device

	Temperature master.InputRegister[float64]
	Humidity    master.InputRegister[float64]

	Address               master.HoldingRegister[uint16]
	BaudRate              master.HoldingRegister[int]
	TemperatureCorrection master.HoldingRegister[float64]
	HumidityCorrection    master.HoldingRegister[float64]
}

// NewTemperatureSensor builds a sensor at slaveID. Every sensor gets its
// own descriptors.
func NewTemperatureSensor(name string, t transport.Transport, slaveID int) (*TemperatureSensor, error) {
	temperature := tenths("temperature", SensorTemperature)
	humidity := tenths("humidity", SensorHumidity)

	address := &register.Descriptor[uint16]{
		Label:   "address",
		Addr:    SensorDeviceAddress,
		Size:    2,
		Decode:  register.Uint16,
		Encode:  register.EncodeUint16,
		IsValid: register.SlaveAddress,
		Parse:   register.ParseUint16,
		Input:   register.Range{Min: 1, Max: 247, Step: 1},
	}
	baudRate := &register.Descriptor[int]{
		Label:   "baudRate",
		Addr:    SensorBaudRate,
		Size:    2,
		Decode:  func(b []byte) int { return int(register.Uint16(b)) },
		Encode:  register.EncodeInt,
		IsValid: register.OneOf(SensorBaudRates...),
		Parse:   register.ParseInt,
		Input:   baudRateOptions(),
	}
	temperatureCorrection := correction("temperatureCorrection", SensorTemperatureCorrection)
	humidityCorrection := correction("humidityCorrection", SensorHumidityCorrection)

	d, err := master.NewDevice(name, t, slaveID,
		[]register.Field{temperature, humidity},
		[]register.Field{address, baudRate, temperatureCorrection, humidityCorrection},
	)
	if err != nil {
		return nil, err
	}
	return &TemperatureSensor{
		Device:                d,
		Temperature:           master.BindInput(d, temperature),
		Humidity:              master.BindInput(d, humidity),
		Address:               master.BindHolding(d, address),
		BaudRate:              master.BindHolding(d, baudRate),
		TemperatureCorrection: master.BindHolding(d, temperatureCorrection),
		HumidityCorrection:    master.BindHolding(d, humidityCorrection),
	}, nil
}

func tenths(label string, addr uint16) *register.Descriptor[float64] {
	return &register.Descriptor[float64]{Label: label, Addr: addr, Size: 2, Decode: register.Scaled(10)}
}

// correction registers take one decimal strictly between -10 and 10.
func correction(label string, addr uint16) *register.Descriptor[float64] {
	return &register.Descriptor[float64]{
		Label:   label,
		Addr:    addr,
		Size:    2,
		Decode:  register.Scaled(10),
		Encode:  register.ScaledEncoder(10),
		IsValid: register.OneDecimalWithin(10),
		Parse:   register.ParseFloat,
		Input:   register.Range{Min: -9.9, Max: 9.9, Step: 0.1},
	}
}

func baudRateOptions() register.Options {
	var opts register.Options
	for _, rate := range SensorBaudRates {
		opts.Choices = append(opts.Choices, register.Option{Value: rate, Label: strconv.Itoa(rate) + " baud"})
	}
	return opts
}
