// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"log/slog"
	"os"

	"github.com/ffutop/modbus-master/internal/simulator/model"
)

// Register image layout shared by FileStorage and MmapStorage:
//
//	Header:           8 bytes (Offset 0) magic "MBRI", version, reserved
//	HoldingRegisters: 65536 * 2 bytes (Offset 8)
//	InputRegisters:   65536 * 2 bytes (Offset 131080)
//
// Registers are big-endian, so images are portable between hosts.
const (
	headerSize    = 8
	imageVersion  = 1
	offsetHolding = headerSize
	offsetInput   = offsetHolding + model.TableSize
	totalSize     = offsetInput + model.TableSize
)

var imageMagic = []byte("MBRI")

func imageHeader() []byte {
	h := make([]byte, headerSize)
	copy(h, imageMagic)
	binary.BigEndian.PutUint16(h[4:], imageVersion)
	return h
}

// openImage opens the image at path for reading and writing. A missing,
// truncated or foreign file is reset to an empty image of the current
// version.
func openImage(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open register image: %w", err)
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	header := make([]byte, headerSize)
	if fi.Size() == int64(totalSize) {
		if _, err := f.ReadAt(header, 0); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to read image header: %w", err)
		}
		if bytes.Equal(header, imageHeader()) {
			return f, nil
		}
	}

	if fi.Size() > 0 {
		slog.Warn("Register image has an unknown layout, starting empty", "path", path, "size", fi.Size())
	}
	if err := f.Truncate(0); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to reset register image: %w", err)
	}
	if err := f.Truncate(int64(totalSize)); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to resize register image: %w", err)
	}
	if _, err := f.WriteAt(imageHeader(), 0); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write image header: %w", err)
	}
	return f, nil
}

// tableOffset returns the image offset of address in table.
func tableOffset(table model.Table, address uint16) int {
	if table == model.TableInputRegisters {
		return offsetInput + int(address)*2
	}
	return offsetHolding + int(address)*2
}

// mapBytesToModel constructs a DataModel backed by the provided image.
func mapBytesToModel(data []byte) *model.DataModel {
	return &model.DataModel{
		HoldingRegisters: data[offsetHolding : offsetHolding+model.TableSize : offsetHolding+model.TableSize],
		InputRegisters:   data[offsetInput : offsetInput+model.TableSize : offsetInput+model.TableSize],
	}
}
