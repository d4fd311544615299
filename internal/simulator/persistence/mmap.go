// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/edsrzf/mmap-go"

	"github.com/ffutop/modbus-master/internal/simulator/model"
)

// MmapStorage serves the register tables straight out of a shared mapping
// of the image file. Other processes mapping the same file see register
// writes as they happen.
type MmapStorage struct {
	path string
	file *os.File
	data mmap.MMap
}

func NewMmapStorage(path string) *MmapStorage {
	return &MmapStorage{path: path}
}

// Load maps the image.
func (ms *MmapStorage) Load() (*model.DataModel, error) {
	f, err := openImage(ms.path)
	if err != nil {
		return nil, err
	}
	data, err := mmap.Map(f, mmap.RDWR, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to map register image: %w", err)
	}
	ms.file = f
	ms.data = data
	return mapBytesToModel(data), nil
}

// Save flushes the mapping to disk.
func (ms *MmapStorage) Save(*model.DataModel) error {
	if ms.data == nil {
		return errors.New("register image is not mapped")
	}
	return ms.data.Flush()
}

// OnWrite flushes the mapping. mmap-go flushes whole mappings only.
func (ms *MmapStorage) OnWrite(table model.Table, address, quantity uint16) {
	if ms.data == nil {
		return
	}
	if err := ms.data.Flush(); err != nil {
		slog.Error("Failed to flush register image", "table", table, "address", address, "quantity", quantity, "err", err)
	}
}

// Close unmaps the image and closes the file.
func (ms *MmapStorage) Close() error {
	var errs []error
	if ms.data != nil {
		errs = append(errs, ms.data.Unmap())
		ms.data = nil
	}
	if ms.file != nil {
		errs = append(errs, ms.file.Close())
		ms.file = nil
	}
	return errors.Join(errs...)
}
