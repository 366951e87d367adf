// Copyright 2023 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package logger provides fuselog's structured logger: a thin wrapper
// around log/slog with a custom TRACE level below slog's Debug and an OFF
// level above its Error, a text or JSON wire format matching the severity
// naming used throughout fuselog's config and CLI, and optional rotation
// to a file via lumberjack.
package logger

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/fuselogfs/fuselog/cfg"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Custom severities, positioned around slog's built-in levels so TRACE is
// more verbose than Debug and OFF silences everything including Error.
const (
	LevelTrace slog.Level = -8
	LevelDebug            = slog.LevelDebug
	LevelInfo             = slog.LevelInfo
	LevelWarn             = slog.LevelWarn
	LevelError            = slog.LevelError
	LevelOff   slog.Level = 12
)

const timeFormat = "2006/01/02 15:04:05.000000"

// asyncLogBufferSize bounds how many pending log lines may queue for the
// rotating file writer before new lines are dropped.
const asyncLogBufferSize = 4096

var severityNames = map[slog.Level]string{
	LevelTrace: "TRACE",
	LevelDebug: "DEBUG",
	LevelInfo:  "INFO",
	LevelWarn:  "WARNING",
	LevelError: "ERROR",
}

func severityName(level slog.Level) string {
	if name, ok := severityNames[level]; ok {
		return name
	}
	return level.String()
}

// loggerFactory owns the writer and format defaultLogger was built from, so
// that SetLogFormat and Init can rebuild it in place.
type loggerFactory struct {
	mu sync.Mutex

	writer       io.Writer
	rotate       *lumberjack.Logger
	format       string
	programLevel *slog.LevelVar
}

func (f *loggerFactory) rebuild() {
	f.mu.Lock()
	defer f.mu.Unlock()
	defaultLogger = slog.New(f.createJsonOrTextHandler(f.writer, f.programLevel, ""))
}

func (f *loggerFactory) createJsonOrTextHandler(w io.Writer, programLevel *slog.LevelVar, prefix string) slog.Handler {
	return &recordHandler{
		writer: w,
		level:  programLevel,
		format: f.format,
		prefix: prefix,
	}
}

var (
	defaultProgramLevel = new(slog.LevelVar)
	defaultLoggerFactory = &loggerFactory{
		writer:       os.Stderr,
		format:       "text",
		programLevel: defaultProgramLevel,
	}
	defaultLogger = slog.New(defaultLoggerFactory.createJsonOrTextHandler(os.Stderr, defaultProgramLevel, ""))
)

// recordHandler is a slog.Handler producing fuselog's two wire formats.
// It ignores attrs/groups: every call site here logs a fully-formatted
// message string, not structured key-value pairs.
type recordHandler struct {
	writer io.Writer
	level  *slog.LevelVar
	format string
	prefix string
}

func (h *recordHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *recordHandler) Handle(_ context.Context, r slog.Record) error {
	message := h.prefix + r.Message
	severity := severityName(r.Level)

	var line string
	if h.format == "json" {
		line = fmt.Sprintf(
			`{"timestamp":{"seconds":%d,"nanos":%d},"severity":%q,"message":%q}`+"\n",
			r.Time.Unix(), r.Time.Nanosecond(), severity, message)
	} else {
		line = fmt.Sprintf("time=%q severity=%s message=%q\n", r.Time.Format(timeFormat), severity, message)
	}

	_, err := io.WriteString(h.writer, line)
	return err
}

func (h *recordHandler) WithAttrs(_ []slog.Attr) slog.Handler { return h }
func (h *recordHandler) WithGroup(_ string) slog.Handler      { return h }

// setLoggingLevel maps a cfg.LogSeverity string onto programLevel.
func setLoggingLevel(level string, programLevel *slog.LevelVar) {
	switch cfg.LogSeverity(level) {
	case cfg.TraceLogSeverity:
		programLevel.Set(LevelTrace)
	case cfg.DebugLogSeverity:
		programLevel.Set(LevelDebug)
	case cfg.WarningLogSeverity:
		programLevel.Set(LevelWarn)
	case cfg.ErrorLogSeverity:
		programLevel.Set(LevelError)
	case cfg.OffLogSeverity:
		programLevel.Set(LevelOff)
	default:
		programLevel.Set(LevelInfo)
	}
}

// SetLogFormat switches the default logger's wire format. An empty format
// is treated as "json".
func SetLogFormat(format string) {
	if format == "" {
		format = "json"
	}
	defaultLoggerFactory.mu.Lock()
	defaultLoggerFactory.format = format
	defaultLoggerFactory.mu.Unlock()
	defaultLoggerFactory.rebuild()
}

// Init configures the default logger from a fully resolved LoggingConfig.
// When config.FilePath is empty, output goes to stderr; otherwise it is
// routed through a lumberjack.Logger using the configured rotation policy.
func Init(config cfg.LoggingConfig) error {
	format := config.Format
	if format == "" {
		format = "text"
	}

	var writer io.Writer = os.Stderr
	var rotate *lumberjack.Logger
	if config.FilePath != "" {
		rotate = &lumberjack.Logger{
			Filename:   string(config.FilePath),
			MaxSize:    config.LogRotate.MaxFileSizeMb,
			MaxBackups: config.LogRotate.BackupFileCount,
			Compress:   config.LogRotate.Compress,
		}
		writer = NewAsyncLogger(rotate, asyncLogBufferSize)
	}

	defaultLoggerFactory.mu.Lock()
	defaultLoggerFactory.writer = writer
	defaultLoggerFactory.rotate = rotate
	defaultLoggerFactory.format = format
	defaultLoggerFactory.mu.Unlock()

	setLoggingLevel(string(config.Severity), defaultProgramLevel)
	defaultLoggerFactory.rebuild()
	return nil
}

// NewLegacyLogger adapts the default logger to the *log.Logger shape that
// github.com/jacobsa/fuse's MountConfig.ErrorLogger/DebugLogger expect.
func NewLegacyLogger(level slog.Level, prefix string) *log.Logger {
	return log.New(&legacyWriter{level: level}, prefix, 0)
}

type legacyWriter struct {
	level slog.Level
}

func (w *legacyWriter) Write(p []byte) (int, error) {
	defaultLogger.Log(context.Background(), w.level, strings.TrimRight(string(p), "\n"))
	return len(p), nil
}

func Tracef(format string, v ...any) {
	defaultLogger.Log(context.Background(), LevelTrace, fmt.Sprintf(format, v...))
}

func Debugf(format string, v ...any) {
	defaultLogger.Log(context.Background(), LevelDebug, fmt.Sprintf(format, v...))
}

func Infof(format string, v ...any) {
	defaultLogger.Log(context.Background(), LevelInfo, fmt.Sprintf(format, v...))
}

func Warnf(format string, v ...any) {
	defaultLogger.Log(context.Background(), LevelWarn, fmt.Sprintf(format, v...))
}

func Errorf(format string, v ...any) {
	defaultLogger.Log(context.Background(), LevelError, fmt.Sprintf(format, v...))
}
