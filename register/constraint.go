// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package register

import (
	"math"

	"github.com/ffutop/modbus-master/modbus"
)

// Constraint is input metadata for presentation layers: either a numeric
// Range or a set of Options. The protocol engine never consults it.
type Constraint interface {
	Kind() string
}

// Range bounds numeric input.
type Range struct {
	Min  float64 `yaml:"min"`
	Max  float64 `yaml:"max"`
	Step float64 `yaml:"step"`
}

func (Range) Kind() string { return "range" }

// Option is one selectable value.
type Option struct {
	Value int    `yaml:"value"`
	Label string `yaml:"label"`
}

// Options restricts input to an enumerated set.
type Options struct {
	Choices []Option `yaml:"options"`
}

func (Options) Kind() string { return "options" }

// SlaveAddress accepts individual device addresses (1..247).
func SlaveAddress(v uint16) bool {
	return modbus.IsValidSlaveID(int(v))
}

// OneDecimalWithin returns a predicate accepting values with at most one
// decimal place strictly between -limit and limit.
func OneDecimalWithin(limit float64) func(float64) bool {
	return func(v float64) bool {
		if math.IsNaN(v) || v <= -limit || v >= limit {
			return false
		}
		scaled := v * 10
		return math.Abs(scaled-math.Round(scaled)) < 1e-9
	}
}

// OneOf returns a predicate accepting only the given values.
func OneOf[T comparable](values ...T) func(T) bool {
	return func(v T) bool {
		for _, allowed := range values {
			if v == allowed {
				return true
			}
		}
		return false
	}
}
