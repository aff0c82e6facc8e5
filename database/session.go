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
	"database/sql/driver"
	"errors"
	"fmt"

	"github.com/uptrace/bun"
)

const maxCheckoutRetries = 2

// SessionMaker yields a new, independent Session on every call.
type SessionMaker func() *Session

// Session is a unit of work bound to one pooled connection. The connection is
// checked out on first use; statements run inside a transaction that is begun
// lazily and persisted only by Commit. A Session must not be shared between
// goroutines.
type Session struct {
	db      *bun.DB
	prePing bool
	logger  Logger

	conn   *bun.Conn
	tx     *bun.Tx
	closed bool
}

func newSession(db *bun.DB, prePing bool, logger Logger) *Session {
	return &Session{db: db, prePing: prePing, logger: orNop(logger)}
}

// DB returns the transaction statements should run on, beginning it if needed.
func (s *Session) DB(ctx context.Context) (bun.IDB, error) {
	if s.closed {
		return nil, ErrSessionClosed
	}
	if s.tx != nil {
		return *s.tx, nil
	}
	if err := s.checkout(ctx); err != nil {
		return nil, err
	}
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	s.tx = &tx
	return tx, nil
}

func (s *Session) checkout(ctx context.Context) error {
	if s.conn != nil {
		return nil
	}
	var lastErr error
	for attempt := 0; attempt <= maxCheckoutRetries; attempt++ {
		conn, err := s.db.Conn(ctx)
		if err != nil {
			return fmt.Errorf("acquire connection: %w", err)
		}
		if !s.prePing {
			s.conn = &conn
			return nil
		}
		if err = conn.PingContext(ctx); err == nil {
			s.conn = &conn
			return nil
		}
		lastErr = err
		s.logger.Debug("Discarding stale pooled connection", "attempt", attempt+1, "error", err)
		_ = conn.Raw(func(any) error { return driver.ErrBadConn })
		_ = conn.Close()
		if ctx.Err() != nil {
			break
		}
	}
	return fmt.Errorf("acquire connection: %w", lastErr)
}

// Commit persists pending work. The session stays usable and the next
// statement begins a new transaction.
func (s *Session) Commit() error {
	if s.closed {
		return ErrSessionClosed
	}
	if s.tx == nil {
		return nil
	}
	tx := s.tx
	s.tx = nil
	return tx.Commit()
}

// Rollback discards pending work.
func (s *Session) Rollback() error {
	if s.closed {
		return ErrSessionClosed
	}
	if s.tx == nil {
		return nil
	}
	tx := s.tx
	s.tx = nil
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}
	return nil
}

// InTransaction reports whether uncommitted work may be pending.
func (s *Session) InTransaction() bool { return s.tx != nil }

// Closed reports whether Close has been called.
func (s *Session) Closed() bool { return s.closed }

// Close rolls back uncommitted work and returns the connection to the pool.
// Calling Close more than once is a no-op.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	var errs []error
	if err := s.Rollback(); err != nil {
		errs = append(errs, fmt.Errorf("rollback: %w", err))
	}
	if s.conn != nil {
		if err := s.conn.Close(); err != nil && !errors.Is(err, sql.ErrConnDone) {
			errs = append(errs, fmt.Errorf("release connection: %w", err))
		}
		s.conn = nil
	}
	s.closed = true
	return errors.Join(errs...)
}
