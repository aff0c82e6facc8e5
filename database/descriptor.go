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
	"fmt"
	"math"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
)

// Descriptor is the immutable, fully resolved form of a ConnectionConfig.
type Descriptor struct {
	Driver    string
	Host      string
	Port      int
	Username  string
	Password  string
	Database  string
	SSLMode   string
	Charset   string
	Collation string
	Template  string

	connectTimeout time.Duration
	readTimeout    time.Duration
	writeTimeout   time.Duration
}

// BuildDescriptor validates cfg and derives its descriptor. The result depends
// only on cfg.
func BuildDescriptor(cfg ConnectionConfig) (Descriptor, error) {
	typ := normalizeType(strings.ToLower(strings.TrimSpace(cfg.Type)))
	if typ == "" {
		typ = TypeMySQL
	}
	d := Descriptor{
		Driver:         typ,
		Host:           strings.TrimSpace(cfg.Host),
		Port:           cfg.Port,
		Username:       cfg.Username,
		Password:       cfg.Password,
		Database:       strings.TrimSpace(cfg.DBName),
		SSLMode:        cfg.SSLMode,
		Charset:        cfg.Charset,
		Collation:      cfg.Collation,
		Template:       cfg.Template,
		connectTimeout: cfg.ConnectTimeout,
		readTimeout:    cfg.ReadTimeout,
		writeTimeout:   cfg.WriteTimeout,
	}
	if d.connectTimeout <= 0 {
		d.connectTimeout = DefaultConnectTimeout
	}

	switch typ {
	case TypeMySQL, TypePostgres:
		if d.Host == "" {
			return Descriptor{}, &ConnectionConfigError{Field: "host", Reason: "is required"}
		}
		if d.Port == 0 {
			return Descriptor{}, &ConnectionConfigError{Field: "port", Reason: "is required"}
		}
		if d.Port < 1 || d.Port > 65535 {
			return Descriptor{}, &ConnectionConfigError{Field: "port", Reason: fmt.Sprintf("%d is out of range 1..65535", d.Port)}
		}
		if d.Username == "" {
			return Descriptor{}, &ConnectionConfigError{Field: "username", Reason: "is required"}
		}
		if d.Password == "" {
			return Descriptor{}, &ConnectionConfigError{Field: "password", Reason: "is required"}
		}
		if d.Database == "" {
			return Descriptor{}, &ConnectionConfigError{Field: "dbname", Reason: "is required"}
		}
	case TypeSQLite:
		if d.Database == "" {
			return Descriptor{}, &ConnectionConfigError{Field: "dbname", Reason: "is required"}
		}
		d.Host, d.Port, d.Username, d.Password = "", 0, "", ""
	default:
		return Descriptor{}, &ConnectionConfigError{Field: "type", Reason: fmt.Sprintf("%q is not supported", cfg.Type)}
	}

	switch typ {
	case TypeMySQL:
		if d.Charset == "" {
			d.Charset = DefaultCharset
		}
		if d.Collation == "" {
			d.Collation = DefaultCollation
		}
	case TypePostgres:
		if d.SSLMode == "" {
			d.SSLMode = "disable"
		}
		if d.Charset == "" {
			d.Charset = "UTF8"
		}
		if d.Template == "" {
			d.Template = "template0"
		}
	}
	return d, nil
}

// URL renders "<driver>://<user>:<password>@<host>:<port>/<database>". For
// sqlite it is "sqlite:///<database>.db".
func (d Descriptor) URL() string {
	if d.Driver == TypeSQLite {
		return "sqlite:///" + d.sqlitePath()
	}
	return d.toURL().String()
}

// String is URL with the password redacted.
func (d Descriptor) String() string {
	if d.Driver == TypeSQLite {
		return d.URL()
	}
	return d.toURL().Redacted()
}

func (d Descriptor) toURL() *url.URL {
	return &url.URL{
		Scheme: d.Driver,
		User:   url.UserPassword(d.Username, d.Password),
		Host:   net.JoinHostPort(d.Host, strconv.Itoa(d.Port)),
		Path:   "/" + d.Database,
	}
}

// DriverName is the database/sql driver registered for the descriptor.
func (d Descriptor) DriverName() string {
	switch d.Driver {
	case TypeSQLite:
		return sqliteDriverName
	default:
		return d.Driver
	}
}

// DSN is the driver-native data source name used to open the pool.
func (d Descriptor) DSN() string {
	return d.dsn(d.Database)
}

// AdminDSN addresses the server without selecting a database. PostgreSQL
// connects to the maintenance database "postgres".
func (d Descriptor) AdminDSN() string {
	switch d.Driver {
	case TypeMySQL:
		return d.dsn("")
	case TypePostgres:
		return d.dsn("postgres")
	default:
		return d.DSN()
	}
}

func (d Descriptor) dsn(database string) string {
	switch d.Driver {
	case TypeMySQL:
		c := mysql.NewConfig()
		c.User = d.Username
		c.Passwd = d.Password
		c.Net = "tcp"
		c.Addr = net.JoinHostPort(d.Host, strconv.Itoa(d.Port))
		c.DBName = database
		c.ParseTime = true
		// The handshake collation also selects the connection charset.
		c.Collation = d.Collation
		c.Timeout = d.connectTimeout
		c.ReadTimeout = d.readTimeout
		c.WriteTimeout = d.writeTimeout
		return c.FormatDSN()
	case TypePostgres:
		q := url.Values{}
		q.Set("sslmode", d.SSLMode)
		q.Set("connect_timeout", strconv.Itoa(timeoutSeconds(d.connectTimeout)))
		u := url.URL{
			Scheme:   "postgres",
			User:     url.UserPassword(d.Username, d.Password),
			Host:     net.JoinHostPort(d.Host, strconv.Itoa(d.Port)),
			Path:     "/" + database,
			RawQuery: q.Encode(),
		}
		return u.String()
	default:
		return "file:" + d.sqlitePath() + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	}
}

func (d Descriptor) sqlitePath() string {
	if d.Database == ":memory:" || strings.HasSuffix(d.Database, ".db") {
		return d.Database
	}
	return d.Database + ".db"
}

// ConnectTimeout bounds dialing the server.
func (d Descriptor) ConnectTimeout() time.Duration {
	return d.connectTimeout
}

// timeoutSeconds rounds up to whole seconds. libpq treats 0 as no timeout.
func timeoutSeconds(d time.Duration) int {
	return int(math.Max(1, math.Ceil(d.Seconds())))
}
