// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import (
	"fmt"

	"github.com/ffutop/modbus-master/internal/simulator/model"
)

// Storage defines the interface for persisting the simulated register tables.
type Storage interface {
	// Load loads the data model from storage.
	// If no data exists, it returns a zeroed model.
	Load() (*model.DataModel, error)

	// Save saves the current data model to storage.
	Save(model *model.DataModel) error

	// OnWrite is called after registers were modified so the storage can
	// persist them right away.
	OnWrite(table model.Table, address, quantity uint16)

	Close() error
}

// New returns the storage named by kind. path is a file path for "file"
// and "mmap" and a sqlite3 DSN for "sql".
func New(kind, path string) (Storage, error) {
	switch kind {
	case "", "memory":
		return NewMemoryStorage(), nil
	case "file":
		return NewFileStorage(path), nil
	case "mmap":
		return NewMmapStorage(path), nil
	case "sql":
		return NewSQLStorage("sqlite3", path), nil
	default:
		return nil, fmt.Errorf("unsupported persistence type %q", kind)
	}
}
