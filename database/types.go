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
	"time"
)

// Supported values of ConnectionConfig.Type.
const (
	TypeMySQL    = "mysql"
	TypePostgres = "postgres"
	TypeSQLite   = "sqlite"
)

// Defaults applied by DefaultConnectionConfig and when a field is left zero.
const (
	DefaultPoolRecycle    = 300 * time.Second
	DefaultConnectTimeout = 10 * time.Second
	DefaultCharset        = "utf8mb4"
	DefaultCollation      = "utf8mb4_unicode_ci"
)

// ConnectionConfig describes how to connect to a database and tune its pool.
type ConnectionConfig struct {
	Type            string        `json:"type" yaml:"type"` // mysql、postgres、sqlite
	Host            string        `json:"host" yaml:"host"`
	Port            int           `json:"port" yaml:"port"`
	Username        string        `json:"username" yaml:"username"`
	Password        string        `json:"-" yaml:"password"`
	DBName          string        `json:"dbname" yaml:"dbname"`
	SSLMode         string        `json:"sslmode" yaml:"sslmode"`
	Charset         string        `json:"charset" yaml:"charset"` // MySQL:utf8mb4  、Postgres:UTF8
	Collation       string        `json:"collation" yaml:"collation"`
	Template        string        `json:"template" yaml:"template"`
	MaxIdleConns    int           `json:"max_idle_conns" yaml:"max_idle_conns"`
	MaxOpenConns    int           `json:"max_open_conns" yaml:"max_open_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime" yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time" yaml:"conn_max_idle_time"`
	ConnectTimeout  time.Duration `json:"connect_timeout" yaml:"connect_timeout"`
	ReadTimeout     time.Duration `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout" yaml:"write_timeout"`
	PrePing         bool          `json:"pre_ping" yaml:"pre_ping"`
	EnableQueryLog  bool          `json:"enable_query_log" yaml:"enable_query_log"`
	SlowQueryTime   time.Duration `json:"slow_query_time" yaml:"slow_query_time"`
}

// DefaultConnectionConfig returns a MySQL connection config with the pool
// recycling connections after five minutes and pre-ping enabled.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		Type:            TypeMySQL,
		Host:            "localhost",
		Port:            3306,
		Charset:         DefaultCharset,
		Collation:       DefaultCollation,
		MaxIdleConns:    5,
		MaxOpenConns:    10,
		ConnMaxLifetime: DefaultPoolRecycle,
		ConnectTimeout:  DefaultConnectTimeout,
		ReadTimeout:     time.Second * 30,
		WriteTimeout:    time.Second * 30,
		PrePing:         true,
		EnableQueryLog:  false,
		SlowQueryTime:   time.Second * 2,
	}
}

// DefaultPort returns the conventional server port for a database type.
func DefaultPort(typ string) int {
	switch normalizeType(typ) {
	case TypePostgres:
		return 5432
	case TypeMySQL:
		return 3306
	default:
		return 0
	}
}

func normalizeType(typ string) string {
	switch typ {
	case "postgresql", "pg":
		return TypePostgres
	case "sqlite3":
		return TypeSQLite
	default:
		return typ
	}
}

// DBStats mirrors database/sql stats returned by the engine.
type DBStats struct {
	MaxOpenConns      int           `json:"max_open_conns"`
	OpenConns         int           `json:"open_conns"`
	InUse             int           `json:"in_use"`
	Idle              int           `json:"idle"`
	WaitCount         int64         `json:"wait_count"`
	WaitDuration      time.Duration `json:"wait_duration"`
	MaxIdleClosed     int64         `json:"max_idle_closed"`
	MaxIdleTimeClosed int64         `json:"max_idle_time_closed"`
	MaxLifetimeClosed int64         `json:"max_lifetime_closed"`
}
