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
	"strings"

	"github.com/go-sql-driver/mysql"
)

var (
	ErrConnectionConfig = errors.New("invalid database connection configuration")
	ErrDatabaseCreation = errors.New("database creation failed")
	ErrSchemaCreation   = errors.New("schema creation failed")
	ErrConnectivity     = errors.New("database connectivity check failed")
	ErrSessionClosed    = errors.New("session is closed")
	ErrDuplicateEntity  = errors.New("entity already registered")
)

// ConnectionConfigError reports a configuration value that prevents building a
// connection descriptor.
type ConnectionConfigError struct {
	Field  string
	Reason string
}

func (e *ConnectionConfigError) Error() string {
	return fmt.Sprintf("%s: %s %s", ErrConnectionConfig, e.Field, e.Reason)
}

func (e *ConnectionConfigError) Is(target error) bool { return target == ErrConnectionConfig }

// DatabaseCreationError wraps a failure to create or reach the target database.
type DatabaseCreationError struct {
	Database string
	Err      error
}

func (e *DatabaseCreationError) Error() string {
	return fmt.Sprintf("%s: database %q: %v", ErrDatabaseCreation, e.Database, e.Err)
}

func (e *DatabaseCreationError) Is(target error) bool { return target == ErrDatabaseCreation }

func (e *DatabaseCreationError) Unwrap() error { return e.Err }

// SchemaCreationError wraps a DDL failure for one registered entity.
type SchemaCreationError struct {
	Table string
	Err   error
}

func (e *SchemaCreationError) Error() string {
	return fmt.Sprintf("%s: table %q: %v", ErrSchemaCreation, e.Table, e.Err)
}

func (e *SchemaCreationError) Is(target error) bool { return target == ErrSchemaCreation }

func (e *SchemaCreationError) Unwrap() error { return e.Err }

// ConnectivityError reports that the pool could not serve a working session.
type ConnectivityError struct {
	Err error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("%s: %v", ErrConnectivity, e.Err)
}

func (e *ConnectivityError) Is(target error) bool { return target == ErrConnectivity }

func (e *ConnectivityError) Unwrap() error { return e.Err }

type SQLError int

const (
	UnknownErr SQLError = iota
	NoRowsErr
	NoIndexErr
	NoColumnErr
	ExistIndexErr
	ExistColumnErr
	NoTableErr
	ExistTableErr
	DuplicateKeyErr
	NotNullViolationErr
	ForeignKeyViolationErr
	CheckConstraintViolationErr
	DataTruncatedErr
	InvalidTypeCastErr
	AccessDeniedErr
	UnknownDatabaseErr
	UnreachableErr
)

func (e SQLError) String() string {
	switch e {
	case NoRowsErr:
		return "no rows"
	case NoIndexErr:
		return "index does not exist"
	case NoColumnErr:
		return "column does not exist"
	case ExistIndexErr:
		return "index already exists"
	case ExistColumnErr:
		return "column already exists"
	case NoTableErr:
		return "table does not exist"
	case ExistTableErr:
		return "table already exists"
	case DuplicateKeyErr:
		return "duplicate key"
	case NotNullViolationErr:
		return "not null violation"
	case ForeignKeyViolationErr:
		return "foreign key violation"
	case CheckConstraintViolationErr:
		return "check constraint violation"
	case DataTruncatedErr:
		return "data truncated"
	case InvalidTypeCastErr:
		return "invalid type cast"
	case AccessDeniedErr:
		return "access denied"
	case UnknownDatabaseErr:
		return "unknown database"
	case UnreachableErr:
		return "server unreachable"
	default:
		return "unknown"
	}
}

// IsSqlError classifies driver errors from MySQL, PostgreSQL and SQLite.
func IsSqlError(err error) (is bool, sqlErr SQLError) {
	if err == nil {
		return false, UnknownErr
	}
	if errors.Is(err, sql.ErrNoRows) {
		return true, NoRowsErr
	}
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		switch mysqlErr.Number {
		case 1044, 1045, 1227:
			return true, AccessDeniedErr
		case 1049:
			return true, UnknownDatabaseErr
		case 1050:
			return true, ExistTableErr
		case 1146:
			return true, NoTableErr
		case 1091:
			return true, NoIndexErr
		case 1054:
			return true, NoColumnErr
		case 1061:
			return true, ExistIndexErr
		case 1060:
			return true, ExistColumnErr
		case 1062:
			return true, DuplicateKeyErr
		case 1048:
			return true, NotNullViolationErr
		case 1216, 1217, 1451, 1452:
			return true, ForeignKeyViolationErr
		case 3819:
			return true, CheckConstraintViolationErr
		case 1265, 1406:
			return true, DataTruncatedErr
		default:
			return true, UnknownErr
		}
	}
	var netErr *net.OpError
	if errors.As(err, &netErr) || errors.Is(err, driver.ErrBadConn) || errors.Is(err, mysql.ErrInvalidConn) {
		return true, UnreachableErr
	}

	s := strings.ToLower(err.Error())
	switch {
	case strings.Contains(s, "connection refused") ||
		strings.Contains(s, "no such host") ||
		strings.Contains(s, "i/o timeout"):
		return true, UnreachableErr
	case strings.Contains(s, "sqlstate 28p01") ||
		strings.Contains(s, "sqlstate 42501") ||
		strings.Contains(s, "password authentication failed") ||
		strings.Contains(s, "permission denied"):
		return true, AccessDeniedErr
	case strings.Contains(s, "sqlstate 3d000"):
		return true, UnknownDatabaseErr
	case strings.Contains(s, "sqlstate 42703") ||
		strings.Contains(s, "undefined column") ||
		strings.Contains(s, "no such column"):
		return true, NoColumnErr
	case strings.Contains(s, "sqlstate 42704") ||
		strings.Contains(s, "no such index") ||
		(strings.Contains(s, "does not exist") && strings.Contains(s, "index")):
		return true, NoIndexErr
	case strings.Contains(s, "sqlstate 42p01") ||
		strings.Contains(s, "undefined table") ||
		strings.Contains(s, "no such table"):
		return true, NoTableErr
	case strings.Contains(s, "already exists") && strings.Contains(s, "index"):
		return true, ExistIndexErr
	case strings.Contains(s, "already exists") &&
		(strings.Contains(s, "table") || strings.Contains(s, "relation")):
		return true, ExistTableErr
	case strings.Contains(s, "duplicate key value") ||
		strings.Contains(s, "unique constraint failed") ||
		strings.Contains(s, "sqlstate 23505"):
		return true, DuplicateKeyErr
	case strings.Contains(s, "not-null constraint") ||
		strings.Contains(s, "sqlstate 23502") ||
		strings.Contains(s, "not null constraint failed"):
		return true, NotNullViolationErr
	case strings.Contains(s, "foreign key violation") ||
		strings.Contains(s, "foreign key constraint failed") ||
		strings.Contains(s, "sqlstate 23503"):
		return true, ForeignKeyViolationErr
	case strings.Contains(s, "check constraint") ||
		strings.Contains(s, "sqlstate 23514"):
		return true, CheckConstraintViolationErr
	case strings.Contains(s, "string data right truncation") ||
		strings.Contains(s, "sqlstate 22001") ||
		strings.Contains(s, "data truncated"):
		return true, DataTruncatedErr
	case strings.Contains(s, "datatype mismatch") ||
		strings.Contains(s, "sqlstate 42804"):
		return true, InvalidTypeCastErr
	}
	return false, UnknownErr
}

// IsDuplicateKey reports whether err is a unique constraint violation.
func IsDuplicateKey(err error) bool {
	ok, kind := IsSqlError(err)
	return ok && kind == DuplicateKeyErr
}

// Diagnose turns a bootstrap failure into a short operator hint naming the
// precondition that is most likely broken.
func Diagnose(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, ErrConnectionConfig) {
		return "check the DB_* settings in the environment or .env file"
	}
	_, kind := IsSqlError(err)
	switch kind {
	case UnreachableErr:
		return "the database server is not reachable, make sure it is running and DB_HOST/DB_PORT are correct"
	case AccessDeniedErr:
		return "the database user was rejected or lacks the privilege to create databases"
	case UnknownDatabaseErr:
		return "the target database does not exist, run initdb with a user allowed to create it"
	case ExistTableErr, ExistIndexErr:
		return "a conflicting object already exists in the target database"
	}
	switch {
	case errors.Is(err, ErrDatabaseCreation):
		return "the database could not be created, check server availability and user privileges"
	case errors.Is(err, ErrSchemaCreation):
		return "table creation failed, check for a conflicting existing schema"
	case errors.Is(err, ErrConnectivity):
		return "the connection pool could not serve a working session, check pool settings"
	}
	return "unexpected failure, see the error above"
}
