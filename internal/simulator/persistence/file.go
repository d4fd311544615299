// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/ffutop/modbus-master/internal/simulator/model"
)

// FileStorage keeps the register image in a regular file and writes back
// only the touched byte range on every change.
type FileStorage struct {
	path string
	file *os.File
	data []byte
}

func NewFileStorage(path string) *FileStorage {
	return &FileStorage{path: path}
}

// Load reads the image into memory.
func (fs *FileStorage) Load() (*model.DataModel, error) {
	f, err := openImage(fs.path)
	if err != nil {
		return nil, err
	}
	data := make([]byte, totalSize)
	if _, err := f.ReadAt(data, 0); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to read register image: %w", err)
	}
	fs.file = f
	fs.data = data
	return mapBytesToModel(data), nil
}

// Save writes both tables and syncs them.
func (fs *FileStorage) Save(*model.DataModel) error {
	return fs.writeBack(offsetHolding, totalSize)
}

// OnWrite writes the changed registers through to disk.
func (fs *FileStorage) OnWrite(table model.Table, address, quantity uint16) {
	start := tableOffset(table, address)
	if err := fs.writeBack(start, start+int(quantity)*2); err != nil {
		slog.Error("Failed to write back registers", "table", table, "address", address, "quantity", quantity, "err", err)
	}
}

func (fs *FileStorage) writeBack(from, to int) error {
	if fs.data == nil || fs.file == nil {
		return nil
	}
	if _, err := fs.file.WriteAt(fs.data[from:to], int64(from)); err != nil {
		return fmt.Errorf("failed to write register image: %w", err)
	}
	return fs.file.Sync()
}

func (fs *FileStorage) Close() error {
	if fs.file == nil {
		return nil
	}
	err := fs.file.Close()
	fs.file = nil
	return err
}
