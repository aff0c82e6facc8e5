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

package utils

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerIsRegistered(t *testing.T) {
	a := NewLogger("TEST-REG")
	b := NewLogger("TEST-REG")
	assert.Same(t, a, b)

	assert.True(t, SetLoggerLevel("TEST-REG", "debug"))
	assert.Equal(t, logrus.DebugLevel, a.GetLevel())
	assert.False(t, SetLoggerLevel("TEST-NOPE", "debug"))
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, logrus.WarnLevel, ParseLogLevel(" WARNING "))
	assert.Equal(t, logrus.TraceLevel, ParseLogLevel("trace"))
	assert.Equal(t, logrus.InfoLevel, ParseLogLevel("bogus"))
}

func TestJSONLogFormatterPromotesAccessFields(t *testing.T) {
	f := &JSONLogFormatter{LoggerName: "HTTP"}
	entry := &logrus.Entry{
		Time:    time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
		Level:   logrus.InfoLevel,
		Message: "HTTP request",
		Data: logrus.Fields{
			"req_method":   "GET",
			"req_uri":      "/health",
			"client_ip":    "10.0.0.1",
			"status_code":  200,
			"latency_time": "1ms",
			"error":        errors.New("boom"),
		},
	}
	b, err := f.Format(entry)
	require.NoError(t, err)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(b, &rec))
	assert.Equal(t, "2025-01-02 03:04:05.000", rec["time"])
	assert.Equal(t, "HTTP", rec["model"])
	assert.Equal(t, "GET", rec["method"])
	assert.Equal(t, "/health", rec["path"])
	assert.Equal(t, float64(200), rec["status_code"])
	assert.Equal(t, map[string]any{"error": "boom"}, rec["fields"])
}

func TestLog4jColorFormatter(t *testing.T) {
	f := &Log4jColorFormatter{LoggerName: "DATABASE", NameWidth: 10}
	b, err := f.Format(&logrus.Entry{
		Time:    time.Now(),
		Level:   logrus.WarnLevel,
		Message: "Slow query",
		Data:    logrus.Fields{"b": 2, "a": 1},
	})
	require.NoError(t, err)
	line := string(b)
	assert.Contains(t, line, " WARNING ")
	assert.Contains(t, line, "  DATABASE : Slow query a=1 b=2\n")
	assert.NotContains(t, line, ansiReset)
}

func TestConsoleOutputAndFileLog(t *testing.T) {
	var buf bytes.Buffer
	SetConsoleOutput(&buf)
	t.Cleanup(func() { SetConsoleOutput(os.Stdout) })

	dir := t.TempDir()
	ConfigureFileLog(true, FileLogOptions{Dir: dir, MaxSizeMB: 1, MaxBackups: 1, MaxAgeDays: 1})
	t.Cleanup(func() { ConfigureFileLog(false, FileLogOptions{}) })

	lg := NewLogger("TEST-FILE")
	lg.SetLevel(logrus.InfoLevel)
	lg.WithField("user_id", 7).Info("hello")

	assert.Contains(t, buf.String(), "hello")
	data, err := os.ReadFile(filepath.Join(dir, "test-file.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"user_id":7`)
}

func TestParseConsoleFormat(t *testing.T) {
	assert.Equal(t, "json", parseConsoleFormat(" JSON "))
	assert.Equal(t, "text", parseConsoleFormat("text"))
	assert.Equal(t, "text", parseConsoleFormat("yaml"))
}

func TestEnvDefaults(t *testing.T) {
	t.Setenv("LOGINSVC_TEST_BOOL", "nope")
	assert.True(t, EnvDefaultBool("LOGINSVC_TEST_BOOL", true))
	t.Setenv("LOGINSVC_TEST_BOOL", "false")
	assert.False(t, EnvDefaultBool("LOGINSVC_TEST_BOOL", true))
	assert.Equal(t, "x", EnvDefaultString("LOGINSVC_TEST_UNSET", "x"))
}
