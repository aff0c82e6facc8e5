/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/uptrace/bun"
)

var identToken = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// Provisioner makes sure the target database exists before any table is
// created. It talks to the server without selecting the target database.
type Provisioner struct {
	logger Logger
}

func NewProvisioner(logger Logger) *Provisioner {
	return &Provisioner{logger: orNop(logger)}
}

// EnsureDatabase creates the descriptor's database if it is missing. Running
// it against an existing database changes nothing. Every failure, including
// an unreachable server, is a *DatabaseCreationError.
func (p *Provisioner) EnsureDatabase(ctx context.Context, desc Descriptor) error {
	if desc.ConnectTimeout() > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, desc.ConnectTimeout())
		defer cancel()
	}

	var err error
	switch desc.Driver {
	case TypeMySQL:
		err = p.ensureMySQL(ctx, desc)
	case TypePostgres:
		err = p.ensurePostgres(ctx, desc)
	case TypeSQLite:
		err = p.ensureSQLite(ctx, desc)
	default:
		err = fmt.Errorf("unsupported database type: %s", desc.Driver)
	}
	if err != nil {
		return &DatabaseCreationError{Database: desc.Database, Err: err}
	}
	p.logger.Info("Database ensured", "database", desc.Database, "url", desc.String())
	return nil
}

func (p *Provisioner) openAdmin(desc Descriptor) (*bun.DB, error) {
	sqlDB, err := sql.Open(desc.DriverName(), desc.AdminDSN())
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	return bun.NewDB(sqlDB, newDialect(desc.Driver)), nil
}

func (p *Provisioner) ensureMySQL(ctx context.Context, desc Descriptor) error {
	if !identToken.MatchString(desc.Charset) {
		return fmt.Errorf("invalid charset %q", desc.Charset)
	}
	if !identToken.MatchString(desc.Collation) {
		return fmt.Errorf("invalid collation %q", desc.Collation)
	}
	db, err := p.openAdmin(desc)
	if err != nil {
		return err
	}
	defer db.Close()

	_, err = db.ExecContext(ctx, "CREATE DATABASE IF NOT EXISTS ? CHARACTER SET ? COLLATE ?",
		bun.Ident(desc.Database), bun.Safe(desc.Charset), bun.Safe(desc.Collation))
	return err
}

func (p *Provisioner) ensurePostgres(ctx context.Context, desc Descriptor) error {
	if !identToken.MatchString(desc.Charset) {
		return fmt.Errorf("invalid encoding %q", desc.Charset)
	}
	db, err := p.openAdmin(desc)
	if err != nil {
		return err
	}
	defer db.Close()

	var exists bool
	if err := db.NewRaw("SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = ?)", desc.Database).
		Scan(ctx, &exists); err != nil {
		return err
	}
	if exists {
		return nil
	}
	// CREATE DATABASE cannot run inside a transaction block.
	_, err = db.ExecContext(ctx, "CREATE DATABASE ? ENCODING ? TEMPLATE ?",
		bun.Ident(desc.Database), desc.Charset, bun.Ident(desc.Template))
	if err != nil && strings.Contains(strings.ToLower(err.Error()), "already exists") {
		return nil
	}
	return err
}

func (p *Provisioner) ensureSQLite(ctx context.Context, desc Descriptor) error {
	path := desc.sqlitePath()
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return err
			}
		}
	}
	db, err := p.openAdmin(desc)
	if err != nil {
		return err
	}
	defer db.Close()
	return db.PingContext(ctx)
}
