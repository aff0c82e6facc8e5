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
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

type PathFormat int

type Logger = logrus.Logger

const (
	PathFormatShortRelative PathFormat = iota
	PathFormatFilenameOnly
	PathFormatFull
)

const defaultTimestampFormat = "2006-01-02 15:04:05.000"

// Environment keys read at startup. config binds the same names.
const (
	EnvLogLevel       = "LOG_LEVEL"
	EnvLogFormat      = "LOG_FORMAT"
	EnvLogFileEnabled = "LOG_FILE_ENABLED"
	EnvLogFileDir     = "LOG_FILE_DIR"
)

var logMu sync.RWMutex

var (
	loggerRegistry   = map[string]*logrus.Logger{}
	baseLevel        = ParseLogLevel(EnvDefaultString(EnvLogLevel, "info"))
	consoleLogFormat = parseConsoleFormat(EnvDefaultString(EnvLogFormat, "text"))
	consoleOutput    = io.Writer(os.Stdout)
	fileLog          = FileLogOptions{Dir: EnvDefaultString(EnvLogFileDir, "logs"), MaxSizeMB: 100, MaxBackups: 7, MaxAgeDays: 30}
	fileLogEnabled   = EnvDefaultBool(EnvLogFileEnabled, false)
)

// FileLogOptions controls the rolling file output attached to every named logger.
type FileLogOptions struct {
	Dir        string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// ConfigureFileLog enables rolling file output for loggers created afterwards.
func ConfigureFileLog(enabled bool, opts FileLogOptions) {
	logMu.Lock()
	defer logMu.Unlock()
	fileLogEnabled = enabled
	if opts.Dir != "" {
		fileLog.Dir = opts.Dir
	}
	if opts.MaxSizeMB > 0 {
		fileLog.MaxSizeMB = opts.MaxSizeMB
	}
	if opts.MaxBackups >= 0 {
		fileLog.MaxBackups = opts.MaxBackups
	}
	if opts.MaxAgeDays >= 0 {
		fileLog.MaxAgeDays = opts.MaxAgeDays
	}
	fileLog.Compress = opts.Compress
}

// ConfigureConsoleLogFormat switches the console formatter between "text" and "json".
func ConfigureConsoleLogFormat(format string) {
	logMu.Lock()
	defer logMu.Unlock()
	consoleLogFormat = parseConsoleFormat(format)
	for name, lg := range loggerRegistry {
		lg.SetFormatter(newConsoleFormatter(name))
	}
}

func parseConsoleFormat(format string) string {
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		return "json"
	}
	return "text"
}

// SetConsoleOutput redirects console output of all loggers, mostly useful in tests.
func SetConsoleOutput(w io.Writer) {
	logMu.Lock()
	defer logMu.Unlock()
	consoleOutput = w
	for _, lg := range loggerRegistry {
		lg.SetOutput(w)
	}
}

func ParseLogLevel(s string) logrus.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return logrus.TraceLevel
	case "debug":
		return logrus.DebugLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.InfoLevel
	}
}

// ConfigureLogLevel sets the level of every registered logger and of loggers created later.
func ConfigureLogLevel(levelStr string) {
	logMu.Lock()
	defer logMu.Unlock()
	baseLevel = ParseLogLevel(levelStr)
	for _, lg := range loggerRegistry {
		lg.SetLevel(baseLevel)
	}
}

// SetLoggerLevel changes the level of a single named logger.
func SetLoggerLevel(name string, levelStr string) bool {
	logMu.RLock()
	lg, ok := loggerRegistry[name]
	logMu.RUnlock()
	if !ok {
		return false
	}
	lg.SetLevel(ParseLogLevel(levelStr))
	return true
}

// NewLogger returns the named logger, creating and registering it on first use.
func NewLogger(name string) *logrus.Logger {
	logMu.Lock()
	defer logMu.Unlock()
	if lg, ok := loggerRegistry[name]; ok {
		return lg
	}

	l := logrus.New()
	l.SetOutput(consoleOutput)
	l.SetLevel(baseLevel)
	l.SetReportCaller(true)
	l.SetFormatter(newConsoleFormatter(name))
	if fileLogEnabled {
		l.AddHook(newRollingFileHook(name))
	}
	loggerRegistry[name] = l
	return l
}

func newConsoleFormatter(name string) logrus.Formatter {
	if consoleLogFormat == "json" {
		return &JSONLogFormatter{LoggerName: name, PathFmt: PathFormatShortRelative}
	}
	return &Log4jColorFormatter{
		LoggerName:  name,
		PathFmt:     PathFormatShortRelative,
		ColorOutput: true,
		NameWidth:   10,
	}
}

type rollingFileHook struct {
	writer    io.Writer
	formatter logrus.Formatter
}

func newRollingFileHook(name string) *rollingFileHook {
	return &rollingFileHook{
		writer: &lumberjack.Logger{
			Filename:   filepath.Join(fileLog.Dir, strings.ToLower(name)+".log"),
			MaxSize:    fileLog.MaxSizeMB,
			MaxBackups: fileLog.MaxBackups,
			MaxAge:     fileLog.MaxAgeDays,
			Compress:   fileLog.Compress,
			LocalTime:  true,
		},
		formatter: &JSONLogFormatter{LoggerName: name, PathFmt: PathFormatFull},
	}
}

func (h *rollingFileHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h *rollingFileHook) Fire(e *logrus.Entry) error {
	b, err := h.formatter.Format(e)
	if err != nil {
		return err
	}
	_, err = h.writer.Write(b)
	return err
}

// Log4jColorFormatter renders "time LEVEL pid - [main] name caller : message k=v".
type Log4jColorFormatter struct {
	LoggerName      string
	TimestampFormat string
	PathFmt         PathFormat
	ColorOutput     bool
	NameWidth       int
}

func (f *Log4jColorFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	tsFormat := f.TimestampFormat
	if tsFormat == "" {
		tsFormat = defaultTimestampFormat
	}
	wrap := func(s, code string) string {
		if !f.ColorOutput {
			return s
		}
		return code + s + ansiReset
	}

	var b strings.Builder
	b.WriteString(entry.Time.Format(tsFormat))
	b.WriteByte(' ')
	b.WriteString(wrap(fmt.Sprintf("%7s", strings.ToUpper(entry.Level.String())), levelColor(entry.Level)))
	b.WriteByte(' ')
	b.WriteString(wrap(fmt.Sprintf("%-6d", os.Getpid()), ansiMagenta))
	b.WriteString(" - [main] ")
	b.WriteString(wrap(fmt.Sprintf("%*s", f.NameWidth, limitRunes(f.LoggerName, f.NameWidth)), ansiCyan))
	if entry.Caller != nil {
		b.WriteByte(' ')
		b.WriteString(wrap(formatCaller(entry.Caller.File, entry.Caller.Line, f.PathFmt), ansiFaint))
	}
	b.WriteString(" : ")
	b.WriteString(entry.Message)
	for _, k := range sortedKeys(entry.Data) {
		fmt.Fprintf(&b, " %s=%v", k, entry.Data[k])
	}
	b.WriteByte('\n')
	return []byte(b.String()), nil
}

// JSONLogFormatter renders one JSON object per line. HTTP access fields are
// promoted to top-level keys; everything else goes under "fields".
type JSONLogFormatter struct {
	LoggerName      string
	TimestampFormat string
	PathFmt         PathFormat
}

type jsonLogRecord struct {
	Time        string                 `json:"time"`
	Level       string                 `json:"level"`
	Model       string                 `json:"model"`
	Caller      string                 `json:"caller,omitempty"`
	Message     string                 `json:"message"`
	ClientIP    string                 `json:"client_ip,omitempty"`
	Method      string                 `json:"method,omitempty"`
	Path        string                 `json:"path,omitempty"`
	StatusCode  int                    `json:"status_code,omitempty"`
	LatencyTime string                 `json:"latency_time,omitempty"`
	Fields      map[string]interface{} `json:"fields,omitempty"`
}

func (f *JSONLogFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	tsFormat := f.TimestampFormat
	if tsFormat == "" {
		tsFormat = defaultTimestampFormat
	}
	rec := jsonLogRecord{
		Time:    entry.Time.Format(tsFormat),
		Level:   entry.Level.String(),
		Model:   f.LoggerName,
		Message: entry.Message,
	}
	if entry.Caller != nil {
		rec.Caller = formatCaller(entry.Caller.File, entry.Caller.Line, f.PathFmt)
	}

	extra := make(map[string]interface{}, len(entry.Data))
	for k, v := range entry.Data {
		s, isString := v.(string)
		switch {
		case k == "req_uri" && isString:
			rec.Path = s
		case k == "req_method" && isString:
			rec.Method = s
		case k == "client_ip" && isString:
			rec.ClientIP = s
		case k == "latency_time" && isString:
			rec.LatencyTime = s
		case k == "status_code":
			if n, ok := v.(int); ok {
				rec.StatusCode = n
			} else {
				extra[k] = v
			}
		default:
			if err, ok := v.(error); ok {
				v = err.Error()
			}
			extra[k] = v
		}
	}
	if len(extra) > 0 {
		rec.Fields = extra
	}

	b, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

const (
	ansiReset   = "\x1b[0m"
	ansiFaint   = "\x1b[2m"
	ansiRed     = "\x1b[31m"
	ansiYellow  = "\x1b[33m"
	ansiGreen   = "\x1b[32m"
	ansiBlue    = "\x1b[34m"
	ansiMagenta = "\x1b[35m"
	ansiCyan    = "\x1b[36m"
)

func levelColor(level logrus.Level) string {
	switch level {
	case logrus.ErrorLevel, logrus.FatalLevel, logrus.PanicLevel:
		return ansiRed
	case logrus.WarnLevel:
		return ansiYellow
	case logrus.InfoLevel:
		return ansiGreen
	case logrus.DebugLevel:
		return ansiBlue
	default:
		return ansiMagenta
	}
}

func formatCaller(file string, line int, pf PathFormat) string {
	p := filepath.ToSlash(file)
	switch pf {
	case PathFormatFilenameOnly:
		p = filepath.Base(p)
	case PathFormatShortRelative:
		parts := strings.Split(p, "/")
		if len(parts) >= 2 {
			p = parts[len(parts)-2] + "/" + parts[len(parts)-1]
		}
	}
	return fmt.Sprintf("%s:%d", p, line)
}

func limitRunes(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	return string(r[:n])
}

func sortedKeys(data logrus.Fields) []string {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
