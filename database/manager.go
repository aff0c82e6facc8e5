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
	"sync"
	"sync/atomic"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/mysqldialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/extra/bundebug"
	"github.com/uptrace/bun/schema"
)

const sqliteDriverName = sqliteshim.ShimName

// Engine is the shared pooled handle for one descriptor. It is safe for
// concurrent use; sessions made from it are not.
type Engine struct {
	desc   Descriptor
	cfg    ConnectionConfig
	sqlDB  *sql.DB
	db     *bun.DB
	logger Logger

	closeOnce sync.Once
	closeErr  error
	closed    atomic.Bool
}

// NewEngine validates cfg and opens the pool. No connection is made here, so
// an unreachable server surfaces on first use.
func NewEngine(cfg ConnectionConfig, logger Logger) (*Engine, error) {
	desc, err := BuildDescriptor(cfg)
	if err != nil {
		return nil, err
	}
	logger = orNop(logger)

	sqlDB, err := sql.Open(desc.DriverName(), desc.DSN())
	if err != nil {
		return nil, fmt.Errorf("open %s pool: %w", desc.Driver, err)
	}
	db := bun.NewDB(sqlDB, newDialect(desc.Driver))

	e := &Engine{desc: desc, cfg: cfg, sqlDB: sqlDB, db: db, logger: logger}
	e.configureConnectionPool()
	e.addQueryHooks()

	logger.Debug("Database engine created", "url", desc.String())
	return e, nil
}

func newDialect(driver string) schema.Dialect {
	switch driver {
	case TypePostgres:
		return pgdialect.New()
	case TypeSQLite:
		return sqlitedialect.New()
	default:
		return mysqldialect.New()
	}
}

func (e *Engine) configureConnectionPool() {
	lifetime := e.cfg.ConnMaxLifetime
	if lifetime <= 0 {
		lifetime = DefaultPoolRecycle
	}
	if e.cfg.MaxIdleConns > 0 {
		e.sqlDB.SetMaxIdleConns(e.cfg.MaxIdleConns)
	}
	if e.cfg.MaxOpenConns > 0 {
		e.sqlDB.SetMaxOpenConns(e.cfg.MaxOpenConns)
	}
	e.sqlDB.SetConnMaxLifetime(lifetime)
	if e.cfg.ConnMaxIdleTime > 0 {
		e.sqlDB.SetConnMaxIdleTime(e.cfg.ConnMaxIdleTime)
	}
}

func (e *Engine) addQueryHooks() {
	if e.cfg.EnableQueryLog {
		e.db.AddQueryHook(bundebug.NewQueryHook(
			bundebug.WithVerbose(true),
			bundebug.FromEnv("BUNDEBUG"),
		))
	}
	if e.cfg.SlowQueryTime > 0 {
		e.db.AddQueryHook(&slowQueryHook{slowTime: e.cfg.SlowQueryTime, logger: e.logger})
	}
	e.db.AddQueryHook(&errorQueryHook{logger: e.logger})
}

func (e *Engine) DB() *bun.DB { return e.db }

func (e *Engine) Descriptor() Descriptor { return e.desc }

func (e *Engine) Logger() Logger { return e.logger }

// NewSession returns a session bound to the engine. No connection is taken
// from the pool until the session runs its first statement.
func (e *Engine) NewSession() *Session {
	return newSession(e.db, e.cfg.PrePing, e.logger)
}

// SessionFactory returns a SessionMaker bound to the engine.
func (e *Engine) SessionFactory() SessionMaker {
	return e.NewSession
}

// MaterializeSchema creates the registered tables through the engine.
func (e *Engine) MaterializeSchema(ctx context.Context, reg *SchemaRegistry) error {
	return MaterializeSchema(ctx, e.db, reg, e.logger)
}

// Probe takes one session, runs SELECT 1 and releases it.
func (e *Engine) Probe(ctx context.Context) error {
	sess := e.NewSession()
	defer func() { _ = sess.Close() }()

	idb, err := sess.DB(ctx)
	if err != nil {
		return &ConnectivityError{Err: err}
	}
	var one int
	if err := idb.NewRaw("SELECT 1").Scan(ctx, &one); err != nil {
		return &ConnectivityError{Err: err}
	}
	if one != 1 {
		return &ConnectivityError{Err: fmt.Errorf("SELECT 1 returned %d", one)}
	}
	return nil
}

func (e *Engine) Stats() DBStats {
	stats := e.sqlDB.Stats()
	return DBStats{
		MaxOpenConns:      stats.MaxOpenConnections,
		OpenConns:         stats.OpenConnections,
		InUse:             stats.InUse,
		Idle:              stats.Idle,
		WaitCount:         stats.WaitCount,
		WaitDuration:      stats.WaitDuration,
		MaxIdleClosed:     stats.MaxIdleClosed,
		MaxIdleTimeClosed: stats.MaxIdleTimeClosed,
		MaxLifetimeClosed: stats.MaxLifetimeClosed,
	}
}

// Closed reports whether Close has been called.
func (e *Engine) Closed() bool { return e.closed.Load() }

// Close releases the pool. Later calls return the first result.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		e.closed.Store(true)
		e.closeErr = e.db.Close()
		if e.closeErr != nil {
			e.logger.Error("Failed to close database connection", "error", e.closeErr)
		} else {
			e.logger.Debug("Database connection closed", "url", e.desc.String())
		}
	})
	return e.closeErr
}
