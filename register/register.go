// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package register describes device registers: where they live, how many
// bytes they carry and how those bytes map to domain values.
package register

import (
	"errors"
	"fmt"
)

var (
	ErrReadOnly     = errors.New("register: read-only")
	ErrInvalidValue = errors.New("register: invalid value")
	ErrValueType    = errors.New("register: unexpected value type")
)

// Field is the type-erased view of a Descriptor, so that registers of
// different value types can share one map.
type Field interface {
	Name() string
	Address() uint16
	Length() int
	Writable() bool
	Constraint() Constraint

	// DecodeValue interprets exactly Length() bytes.
	DecodeValue(b []byte) any
	// EncodeValue validates and encodes v for a write frame.
	EncodeValue(v any) (int16, error)
	// ParseValue converts user input into a value EncodeValue accepts.
	ParseValue(s string) (any, error)
}

// Descriptor describes one register holding a value of type T.
// Read-only registers leave Encode and IsValid nil.
type Descriptor[T any] struct {
	Label string
	Addr  uint16
	Size  int

	Decode  func(b []byte) T
	Encode  func(v T) int16
	IsValid func(v T) bool
	Parse   func(s string) (T, error)
	Input   Constraint
}

func (d *Descriptor[T]) Name() string           { return d.Label }
func (d *Descriptor[T]) Address() uint16        { return d.Addr }
func (d *Descriptor[T]) Length() int            { return d.Size }
func (d *Descriptor[T]) Writable() bool         { return d.Encode != nil }
func (d *Descriptor[T]) Constraint() Constraint { return d.Input }

func (d *Descriptor[T]) DecodeValue(b []byte) any {
	return d.Decode(b)
}

// Valid reports whether v may be written. Registers without a predicate
// accept every value.
func (d *Descriptor[T]) Valid(v T) bool {
	return d.IsValid == nil || d.IsValid(v)
}

// EncodeTyped validates v and encodes it.
func (d *Descriptor[T]) EncodeTyped(v T) (int16, error) {
	if d.Encode == nil {
		return 0, fmt.Errorf("%w: %s", ErrReadOnly, d.Label)
	}
	if !d.Valid(v) {
		return 0, fmt.Errorf("%w: %v for %s", ErrInvalidValue, v, d.Label)
	}
	return d.Encode(v), nil
}

func (d *Descriptor[T]) EncodeValue(v any) (int16, error) {
	typed, ok := v.(T)
	if !ok {
		return 0, fmt.Errorf("%w: %T for %s", ErrValueType, v, d.Label)
	}
	return d.EncodeTyped(typed)
}

func (d *Descriptor[T]) ParseValue(s string) (any, error) {
	if d.Parse == nil {
		return nil, fmt.Errorf("%w: %s", ErrReadOnly, d.Label)
	}
	v, err := d.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", d.Label, err)
	}
	return v, nil
}
