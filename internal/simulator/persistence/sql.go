// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import (
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/ffutop/modbus-master/internal/simulator/model"
)

const (
	schema = `
	CREATE TABLE IF NOT EXISTS registers (
		table_type INTEGER,
		address INTEGER,
		value INTEGER,
		PRIMARY KEY (table_type, address)
	);
	`
	upsert = "INSERT INTO registers (table_type, address, value) VALUES (?, ?, ?) ON CONFLICT(table_type, address) DO UPDATE SET value=excluded.value"
)

// SQLStorage keeps one row per non-default register. The driver must be
// registered by the binary (main imports github.com/mattn/go-sqlite3).
type SQLStorage struct {
	driver string
	dsn    string
	db     *sql.DB
	model  *model.DataModel
}

// NewSQLStorage creates a new SQLStorage.
func NewSQLStorage(driver, dsn string) *SQLStorage {
	return &SQLStorage{
		driver: driver,
		dsn:    dsn,
	}
}

// Load connects to the DB and replays the stored registers into a fresh model.
func (s *SQLStorage) Load() (*model.DataModel, error) {
	db, err := sql.Open(s.driver, s.dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}

	m := model.NewDataModel()
	rows, err := db.Query("SELECT table_type, address, value FROM registers")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to query registers: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var t, addr, val int
		if err := rows.Scan(&t, &addr, &val); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to scan register: %w", err)
		}
		if addr < 0 || addr > model.MaxAddress {
			continue
		}
		if err := m.Set(model.Table(t), uint16(addr), uint16(val)); err != nil {
			slog.Warn("Skipping stored register", "table", t, "address", addr, "err", err)
		}
	}
	if err := rows.Err(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to read registers: %w", err)
	}

	s.db = db
	s.model = m
	return m, nil
}

// Save is a no-op: OnWrite persists every change as it happens.
func (s *SQLStorage) Save(*model.DataModel) error {
	return nil
}

// OnWrite upserts the changed registers in one transaction.
func (s *SQLStorage) OnWrite(table model.Table, address, quantity uint16) {
	if s.db == nil || s.model == nil {
		return
	}

	values, err := s.model.Read(table, address, quantity)
	if err != nil {
		slog.Error("Failed to read registers for persistence", "table", table, "address", address, "err", err)
		return
	}

	tx, err := s.db.Begin()
	if err != nil {
		slog.Error("Failed to begin transaction", "err", err)
		return
	}
	for i := 0; i < int(quantity); i++ {
		val := uint16(values[2*i])<<8 | uint16(values[2*i+1])
		if _, err := tx.Exec(upsert, int(table), int(address)+i, int(val)); err != nil {
			tx.Rollback()
			slog.Error("Failed to persist register", "table", table, "address", int(address)+i, "err", err)
			return
		}
	}
	if err := tx.Commit(); err != nil {
		slog.Error("Failed to commit registers", "err", err)
	}
}

func (s *SQLStorage) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
