// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package state

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// SQLDialect names one of the three database/sql drivers SQLBackend
// supports.
type SQLDialect string

const (
	DialectSQLite   SQLDialect = "sqlite3"
	DialectMySQL    SQLDialect = "mysql"
	DialectPostgres SQLDialect = "postgres"
)

// SQLBackend stores state in a single fabric_state table over
// database/sql, across three dialects selected by Dialect. Each dialect
// needs its own placeholder style and upsert syntax, handled by
// placeholder and Set.
type SQLBackend struct {
	dialect SQLDialect
	dsn     string
	db      *sql.DB
}

// NewSQLBackend creates an unopened SQLBackend; call Open before use.
func NewSQLBackend(dialect SQLDialect, dsn string) *SQLBackend {
	return &SQLBackend{dialect: dialect, dsn: dsn}
}

func (b *SQLBackend) driverName() string { return string(b.dialect) }

func (b *SQLBackend) Open(ctx context.Context) error {
	db, err := sql.Open(b.driverName(), b.dsn)
	if err != nil {
		return fmt.Errorf("state: open %s: %w", b.dialect, err)
	}

	// SQLite only supports one writer at a time; a single connection
	// avoids "database is locked" under concurrent Manager shards.
	if b.dialect == DialectSQLite {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		db.SetMaxOpenConns(16)
	}
	db.SetConnMaxLifetime(time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return fmt.Errorf("state: ping %s: %w", b.dialect, err)
	}

	if b.dialect == DialectSQLite {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			slog.Warn("state: failed to enable WAL mode", "error", err)
		}
		if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=10000"); err != nil {
			slog.Warn("state: failed to set busy_timeout", "error", err)
		}
	}

	b.db = db
	return nil
}

func (b *SQLBackend) Close(_ context.Context) error {
	if b.db == nil {
		return nil
	}
	return b.db.Close()
}

func (b *SQLBackend) Migrate(ctx context.Context) error {
	var ddl string
	switch b.dialect {
	case DialectPostgres:
		ddl = `CREATE TABLE IF NOT EXISTS fabric_state (
			storage_key TEXT PRIMARY KEY,
			value       BYTEA NOT NULL,
			schema_version INTEGER NOT NULL DEFAULT 1
		)`
	default:
		ddl = `CREATE TABLE IF NOT EXISTS fabric_state (
			storage_key VARCHAR(512) PRIMARY KEY,
			value       BLOB NOT NULL,
			schema_version INTEGER NOT NULL DEFAULT 1
		)`
	}
	_, err := b.db.ExecContext(ctx, ddl)
	if err != nil {
		return fmt.Errorf("state: migrate: %w", err)
	}
	return nil
}

func (b *SQLBackend) MigrationVersion(ctx context.Context) (int, error) {
	row := b.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(schema_version), 1) FROM fabric_state")
	var version int
	if err := row.Scan(&version); err != nil {
		return 0, nil
	}
	return version, nil
}

// placeholder renders the n-th (1-indexed) bind placeholder for b's
// dialect: postgres uses $1, $2..., the others use ?.
func (b *SQLBackend) placeholder(n int) string {
	if b.dialect == DialectPostgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func (b *SQLBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	q := fmt.Sprintf("SELECT value FROM fabric_state WHERE storage_key = %s", b.placeholder(1))
	row := b.db.QueryRowContext(ctx, q, key)
	var value []byte
	if err := row.Scan(&value); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, err
	}
	return value, true, nil
}

func (b *SQLBackend) Set(ctx context.Context, key string, value []byte) error {
	var q string
	switch b.dialect {
	case DialectPostgres:
		q = "INSERT INTO fabric_state (storage_key, value) VALUES ($1, $2) " +
			"ON CONFLICT (storage_key) DO UPDATE SET value = EXCLUDED.value"
	case DialectMySQL:
		q = "INSERT INTO fabric_state (storage_key, value) VALUES (?, ?) " +
			"ON DUPLICATE KEY UPDATE value = VALUES(value)"
	default: // sqlite3
		q = "INSERT INTO fabric_state (storage_key, value) VALUES (?, ?) " +
			"ON CONFLICT (storage_key) DO UPDATE SET value = excluded.value"
	}
	_, err := b.db.ExecContext(ctx, q, key, value)
	return err
}

func (b *SQLBackend) Delete(ctx context.Context, key string) (bool, error) {
	q := fmt.Sprintf("DELETE FROM fabric_state WHERE storage_key = %s", b.placeholder(1))
	res, err := b.db.ExecContext(ctx, q, key)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (b *SQLBackend) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	q := fmt.Sprintf("SELECT storage_key FROM fabric_state WHERE storage_key LIKE %s", b.placeholder(1))
	rows, err := b.db.QueryContext(ctx, q, escapeLike(prefix)+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (b *SQLBackend) Clear(ctx context.Context, prefix string) (int, error) {
	q := fmt.Sprintf("DELETE FROM fabric_state WHERE storage_key LIKE %s", b.placeholder(1))
	res, err := b.db.ExecContext(ctx, q, escapeLike(prefix)+"%")
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (b *SQLBackend) BackendType() string { return "sql:" + string(b.dialect) }

func (b *SQLBackend) Characteristics() BackendCharacteristics {
	return BackendCharacteristics{
		Persistent:    true,
		Transactional: true,
		PrefixScan:    true,
		AtomicOps:     true,
	}
}

// escapeLike escapes SQL LIKE metacharacters in a prefix so a key
// containing "%" or "_" does not widen the scan.
func escapeLike(s string) string {
	r := strings.NewReplacer("\\", "\\\\", "%", "\\%", "_", "\\_")
	return r.Replace(s)
}
