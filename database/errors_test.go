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
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
)

func TestIsSqlError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want SQLError
	}{
		{"no rows", fmt.Errorf("lookup: %w", sql.ErrNoRows), NoRowsErr},
		{"mysql duplicate", &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}, DuplicateKeyErr},
		{"mysql access denied", &mysql.MySQLError{Number: 1045, Message: "Access denied"}, AccessDeniedErr},
		{"mysql duplicate index", &mysql.MySQLError{Number: 1061}, ExistIndexErr},
		{"mysql unknown database", &mysql.MySQLError{Number: 1049}, UnknownDatabaseErr},
		{"dial refused", &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, UnreachableErr},
		{"bad conn", fmt.Errorf("ping: %w", driver.ErrBadConn), UnreachableErr},
		{"sqlite unique", errors.New("constraint failed: UNIQUE constraint failed: users.email (2067)"), DuplicateKeyErr},
		{"postgres unique", errors.New(`pq: duplicate key value violates unique constraint "users_email_key"`), DuplicateKeyErr},
		{"postgres auth", errors.New(`pq: password authentication failed for user "app"`), AccessDeniedErr},
		{"index exists", errors.New("index idx_users_email already exists"), ExistIndexErr},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ok, kind := IsSqlError(tc.err)
			assert.True(t, ok)
			assert.Equal(t, tc.want, kind, kind.String())
		})
	}

	ok, kind := IsSqlError(errors.New("something else"))
	assert.False(t, ok)
	assert.Equal(t, UnknownErr, kind)

	ok, _ = IsSqlError(nil)
	assert.False(t, ok)
}

func TestTypedErrorsMatchSentinels(t *testing.T) {
	cause := errors.New("boom")

	dbErr := fmt.Errorf("bootstrap: %w", &DatabaseCreationError{Database: "app", Err: cause})
	assert.ErrorIs(t, dbErr, ErrDatabaseCreation)
	assert.ErrorIs(t, dbErr, cause)
	assert.NotErrorIs(t, dbErr, ErrSchemaCreation)

	schemaErr := &SchemaCreationError{Table: "users", Err: cause}
	assert.ErrorIs(t, schemaErr, ErrSchemaCreation)
	assert.ErrorIs(t, schemaErr, cause)
	assert.Contains(t, schemaErr.Error(), `"users"`)

	connErr := &ConnectivityError{Err: cause}
	assert.ErrorIs(t, connErr, ErrConnectivity)
	assert.ErrorIs(t, connErr, cause)

	cfgErr := &ConnectionConfigError{Field: "port", Reason: "is required"}
	assert.ErrorIs(t, cfgErr, ErrConnectionConfig)
	assert.Equal(t, "invalid database connection configuration: port is required", cfgErr.Error())
}

func TestDiagnose(t *testing.T) {
	assert.Empty(t, Diagnose(nil))
	assert.Contains(t, Diagnose(&ConnectionConfigError{Field: "host", Reason: "is required"}), "DB_*")
	assert.Contains(t, Diagnose(&DatabaseCreationError{
		Database: "app",
		Err:      &net.OpError{Op: "dial", Err: errors.New("connection refused")},
	}), "not reachable")
	assert.Contains(t, Diagnose(&DatabaseCreationError{
		Database: "app",
		Err:      &mysql.MySQLError{Number: 1044},
	}), "privilege")
	assert.Contains(t, Diagnose(&SchemaCreationError{Table: "users", Err: errors.New("syntax")}), "table creation")
	assert.Contains(t, Diagnose(&ConnectivityError{Err: errors.New("x")}), "pool")
}
