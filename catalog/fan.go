// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package catalog

import (
	"github.com/ffutop/modbus-master/master"
	"github.com/ffutop/modbus-master/register"
	"github.com/ffutop/modbus-master/transport"
)

const FanType = "fan"

// Fan input register addresses.
const (
	FanIdentification         uint16 = 0xD000
	FanMaxCountBytes          uint16 = 0xD001
	FanCurrentRpm             uint16 = 0xD010
	FanMotorStatus            uint16 = 0xD011
	FanWarning                uint16 = 0xD012
	FanDCLinkVoltage          uint16 = 0xD013
	FanDCLinkCurrent          uint16 = 0xD014
	FanMotorTemperature       uint16 = 0xD016
	FanElectronicsTemperature uint16 = 0xD017
	FanPhaseControlFactor     uint16 = 0xD019
	FanCurrentTargetValue     uint16 = 0xD01A
	FanCurrentSensorValue     uint16 = 0xD01B
	FanCurrentPowerAbsolute   uint16 = 0xD027
	FanHeartbeat              uint16 = 0xD037
)

// Fan holding register addresses.
const (
	FanDefaultTargetValue uint16 = 0xD001
	FanAddress            uint16 = 0xD100
	FanMaximumRpm         uint16 = 0xD119
	FanLineBaudRate       uint16 = 0xD149
	FanLineParity         uint16 = 0xD14A
)

// Fan is an EC fan drive. Registers whose address the vendor table lists
// for more than one quantity are left out.
type Fan struct {
	*master.Device

	Heartbeat        master.InputRegister[uint16]
	CurrentRpm       master.InputRegister[uint16]
	MotorTemperature master.InputRegister[int16]

	Address master.HoldingRegister[uint16]
}

// NewFan builds a fan at slaveID.
func NewFan(name string, t transport.Transport, slaveID int) (*Fan, error) {
	heartbeat := raw("heartbeat", FanHeartbeat)
	currentRpm := raw("currentRpm", FanCurrentRpm)
	motorTemperature := celsius("motorTemperature", FanMotorTemperature)

	address := &register.Descriptor[uint16]{
		Label:   "fanAddress",
		Addr:    FanAddress,
		Size:    2,
		Decode:  register.Uint16,
		Encode:  register.EncodeUint16,
		IsValid: register.SlaveAddress,
		Parse:   register.ParseUint16,
		Input:   register.Range{Min: 1, Max: 247, Step: 1},
	}

	inputs := []register.Field{
		heartbeat,
		raw("identification", FanIdentification),
		raw("maxCountBytes", FanMaxCountBytes),
		currentRpm,
		raw("motorStatus", FanMotorStatus),
		raw("warning", FanWarning),
		raw("dcLinkVoltage", FanDCLinkVoltage),
		raw("dcLinkCurrent", FanDCLinkCurrent),
		motorTemperature,
		celsius("electronicsTemperature", FanElectronicsTemperature),
		raw("phaseControlFactor", FanPhaseControlFactor),
		raw("currentTargetValue", FanCurrentTargetValue),
		raw("currentSensorValue", FanCurrentSensorValue),
		raw("currentPowerAbsolute", FanCurrentPowerAbsolute),
	}
	holdings := []register.Field{
		address,
		raw("defaultTargetValue", FanDefaultTargetValue),
		raw("maximumRpm", FanMaximumRpm),
		raw("baudRate", FanLineBaudRate),
		raw("parity", FanLineParity),
	}

	d, err := master.NewDevice(name, t, slaveID, inputs, holdings)
	if err != nil {
		return nil, err
	}
	return &Fan{
		Device:           d,
		Heartbeat:        master.BindInput(d, heartbeat),
		CurrentRpm:       master.BindInput(d, currentRpm),
		MotorTemperature: master.BindInput(d, motorTemperature),
		Address:          master.BindHolding(d, address),
	}, nil
}

// raw is a read-only register shown as its unsigned value.
func raw(label string, addr uint16) *register.Descriptor[uint16] {
	return &register.Descriptor[uint16]{Label: label, Addr: addr, Size: 2, Decode: register.Uint16}
}

func celsius(label string, addr uint16) *register.Descriptor[int16] {
	return &register.Descriptor[int16]{Label: label, Addr: addr, Size: 2, Decode: register.Int16}
}
