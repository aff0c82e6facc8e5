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

package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-password/password"
	"github.com/spf13/viper"
	"github.com/tomoncle/loginsvc/database"
	"github.com/tomoncle/loginsvc/utils"
	"gopkg.in/yaml.v3"
)

const DefaultEnvFile = ".env"

// Settings is the process configuration. It is loaded once at startup and
// treated as read-only afterwards.
type Settings struct {
	App      AppSettings      `mapstructure:"app" yaml:"app"`
	Server   ServerSettings   `mapstructure:"server" yaml:"server"`
	CORS     CORSSettings     `mapstructure:"cors" yaml:"cors"`
	Database DatabaseSettings `mapstructure:"db" yaml:"db"`
	Auth     AuthSettings     `mapstructure:"auth" yaml:"auth"`
	Log      LogSettings      `mapstructure:"log" yaml:"log"`
}

type AppSettings struct {
	Name    string `mapstructure:"name" yaml:"name"`
	Version string `mapstructure:"version" yaml:"version"`
}

type ServerSettings struct {
	Host            string        `mapstructure:"host" yaml:"host"`
	Port            int           `mapstructure:"port" yaml:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// Addr is the listen address.
func (s ServerSettings) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type CORSSettings struct {
	AllowOrigins []string `mapstructure:"allow_origins" yaml:"allow_origins"`
}

type DatabaseSettings struct {
	Type         string `mapstructure:"type" yaml:"type"`
	Host         string `mapstructure:"host" yaml:"host"`
	Port         int    `mapstructure:"port" yaml:"port"`
	User         string `mapstructure:"user" yaml:"user"`
	Password     string `mapstructure:"password" yaml:"password"`
	Name         string `mapstructure:"name" yaml:"name"`
	Charset      string `mapstructure:"charset" yaml:"charset"`
	Collation    string `mapstructure:"collation" yaml:"collation"`
	SSLMode      string `mapstructure:"sslmode" yaml:"sslmode"`
	MaxOpenConns int    `mapstructure:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns" yaml:"max_idle_conns"`
	PoolRecycle  int    `mapstructure:"pool_recycle" yaml:"pool_recycle"` // seconds
	PoolPrePing  bool   `mapstructure:"pool_pre_ping" yaml:"pool_pre_ping"`
	Echo         bool   `mapstructure:"echo" yaml:"echo"`
	SlowQueryMS  int    `mapstructure:"slow_query_ms" yaml:"slow_query_ms"`
}

type AuthSettings struct {
	SecretKey                string `mapstructure:"secret_key" yaml:"secret_key"`
	AccessTokenExpireMinutes int    `mapstructure:"access_token_expire_minutes" yaml:"access_token_expire_minutes"`
	Issuer                   string `mapstructure:"issuer" yaml:"issuer"`

	// EphemeralSecret is set when no secret was configured and one was generated.
	EphemeralSecret bool `mapstructure:"-" yaml:"-"`
}

// AccessTokenTTL is the lifetime of issued access tokens.
func (a AuthSettings) AccessTokenTTL() time.Duration {
	return time.Duration(a.AccessTokenExpireMinutes) * time.Minute
}

type LogSettings struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	FileEnabled bool   `mapstructure:"file_enabled" yaml:"file_enabled"`
	FileDir     string `mapstructure:"file_dir" yaml:"file_dir"`
}

// LoadOptions selects the optional files read by Load.
type LoadOptions struct {
	// ConfigFile is a YAML file. Empty means none.
	ConfigFile string
	// EnvFile is a dotenv file. Empty means DefaultEnvFile, which may be
	// absent; an explicitly named file must exist.
	EnvFile string
}

// binding maps a settings key to its environment variable.
type binding struct {
	key string
	env string
	def interface{}
}

var bindings = []binding{
	{"app.name", "APP_NAME", "Login Management API"},
	{"app.version", "APP_VERSION", "1.0.0"},

	{"server.host", "SERVER_HOST", "0.0.0.0"},
	{"server.port", "SERVER_PORT", 8000},
	{"server.read_timeout", "SERVER_READ_TIMEOUT", "15s"},
	{"server.write_timeout", "SERVER_WRITE_TIMEOUT", "30s"},
	{"server.shutdown_timeout", "SERVER_SHUTDOWN_TIMEOUT", "10s"},

	{"cors.allow_origins", "CORS_ALLOW_ORIGINS", []string{"*"}},

	{"db.type", "DB_TYPE", database.TypeMySQL},
	{"db.host", "DB_HOST", "localhost"},
	{"db.port", "DB_PORT", nil},
	{"db.user", "DB_USER", "root"},
	{"db.password", "DB_PASSWORD", ""},
	{"db.name", "DB_NAME", "login_db"},
	{"db.charset", "DB_CHARSET", ""},
	{"db.collation", "DB_COLLATION", ""},
	{"db.sslmode", "DB_SSLMODE", ""},
	{"db.max_open_conns", "DB_MAX_OPEN_CONNS", 10},
	{"db.max_idle_conns", "DB_MAX_IDLE_CONNS", 5},
	{"db.pool_recycle", "DB_POOL_RECYCLE", int(database.DefaultPoolRecycle / time.Second)},
	{"db.pool_pre_ping", "DB_POOL_PRE_PING", true},
	{"db.echo", "DB_ECHO", false},
	{"db.slow_query_ms", "DB_SLOW_QUERY_MS", 2000},

	{"auth.secret_key", "SECRET_KEY", ""},
	{"auth.access_token_expire_minutes", "ACCESS_TOKEN_EXPIRE_MINUTES", 30},
	{"auth.issuer", "TOKEN_ISSUER", "loginsvc"},

	{"log.level", utils.EnvLogLevel, "info"},
	{"log.format", utils.EnvLogFormat, "text"},
	{"log.file_enabled", utils.EnvLogFileEnabled, false},
	{"log.file_dir", utils.EnvLogFileDir, "logs"},
}

// Load resolves settings from, in increasing precedence: defaults, the YAML
// config file, the dotenv file and the process environment.
func Load(opts LoadOptions) (*Settings, error) {
	if err := loadEnvFile(opts.EnvFile); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigType("yaml")
	for _, b := range bindings {
		if b.def != nil {
			v.SetDefault(b.key, b.def)
		}
		if err := v.BindEnv(b.key, b.env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", b.env, err)
		}
	}

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", opts.ConfigFile, err)
		}
	}

	if err := normalizePort(v); err != nil {
		return nil, err
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := s.normalize(); err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// normalizePort parses db.port up front so a non-numeric value is reported
// as a connection configuration error.
func normalizePort(v *viper.Viper) error {
	raw := strings.TrimSpace(v.GetString("db.port"))
	if raw == "" {
		return nil
	}
	port, err := strconv.Atoi(raw)
	if err != nil {
		return &database.ConnectionConfigError{Field: "port", Reason: fmt.Sprintf("%q is not a number", raw)}
	}
	v.Set("db.port", port)
	return nil
}

func loadEnvFile(path string) error {
	explicit := path != ""
	if !explicit {
		path = DefaultEnvFile
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return nil
		}
		return fmt.Errorf("env file %s: %w", path, err)
	}
	// Variables already present in the process environment win.
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

func (s *Settings) normalize() error {
	s.Database.Type = strings.ToLower(strings.TrimSpace(s.Database.Type))
	if s.Database.Port == 0 {
		s.Database.Port = database.DefaultPort(s.Database.Type)
	}
	s.Log.Format = strings.ToLower(strings.TrimSpace(s.Log.Format))

	origins := s.CORS.AllowOrigins[:0]
	for _, o := range s.CORS.AllowOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	s.CORS.AllowOrigins = origins

	if s.Auth.SecretKey == "" {
		secret, err := password.Generate(48, 10, 0, false, true)
		if err != nil {
			return fmt.Errorf("generate ephemeral secret key: %w", err)
		}
		s.Auth.SecretKey = secret
		s.Auth.EphemeralSecret = true
	}
	return nil
}

// Validate checks every setting. Database problems are reported as
// *database.ConnectionConfigError.
func (s *Settings) Validate() error {
	if _, err := database.BuildDescriptor(s.ConnectionConfig()); err != nil {
		return err
	}
	if s.Server.Port < 1 || s.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", s.Server.Port)
	}
	if s.Auth.AccessTokenExpireMinutes < 1 {
		return fmt.Errorf("ACCESS_TOKEN_EXPIRE_MINUTES must be positive, got %d", s.Auth.AccessTokenExpireMinutes)
	}
	if len(s.Auth.SecretKey) < 16 {
		return errors.New("SECRET_KEY must be at least 16 characters")
	}
	switch s.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format %q, want text or json", s.Log.Format)
	}
	return nil
}

// ConnectionConfig maps the DB_* settings onto the database package.
func (s *Settings) ConnectionConfig() database.ConnectionConfig {
	cfg := database.DefaultConnectionConfig()
	db := s.Database
	cfg.Type = db.Type
	cfg.Host = db.Host
	cfg.Port = db.Port
	cfg.Username = db.User
	cfg.Password = db.Password
	cfg.DBName = db.Name
	cfg.SSLMode = db.SSLMode
	cfg.Charset = db.Charset
	cfg.Collation = db.Collation
	cfg.MaxOpenConns = db.MaxOpenConns
	cfg.MaxIdleConns = db.MaxIdleConns
	cfg.ConnMaxLifetime = time.Duration(db.PoolRecycle) * time.Second
	cfg.PrePing = db.PoolPrePing
	cfg.EnableQueryLog = db.Echo
	cfg.SlowQueryTime = time.Duration(db.SlowQueryMS) * time.Millisecond
	return cfg
}

// Redacted renders the settings as YAML with secrets masked.
func (s *Settings) Redacted() (string, error) {
	cp := *s
	cp.CORS.AllowOrigins = append([]string(nil), s.CORS.AllowOrigins...)
	if cp.Database.Password != "" {
		cp.Database.Password = "******"
	}
	if cp.Auth.EphemeralSecret {
		cp.Auth.SecretKey = "<ephemeral>"
	} else if cp.Auth.SecretKey != "" {
		cp.Auth.SecretKey = "******"
	}
	b, err := yaml.Marshal(&cp)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
