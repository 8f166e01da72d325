// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package log implements the analyser's leveled diagnostic logging. Every
// line goes to a single diagnostic stream (stderr by default) prefixed with
// its severity, so fatal errors surface as one [ERROR] line. Debug output is
// suppressed unless the level is lowered, which is what the -d flag does.
package log

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// Level is the severity of a log line.
type Level int

// Level values, in increasing severity.
const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "[DEBUG]"
	case LevelInfo:
		return "[INFO]"
	case LevelWarn:
		return "[WARN]"
	default:
		return "[ERROR]"
	}
}

// Logger writes severity-prefixed lines to a diagnostic stream, dropping
// everything below its minimum level.
type Logger struct {
	mu  sync.Mutex
	out io.Writer
	min Level
}

// New returns a logger writing lines at or above min to out.
func New(out io.Writer, min Level) *Logger {
	return &Logger{out: out, min: min}
}

func (l *Logger) logf(lv Level, format string, args ...any) {
	if lv < l.min {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.out, "%s %s\n", lv, fmt.Sprintf(format, args...))
}

// Debugf logs a formatted debug line.
func (l *Logger) Debugf(format string, args ...any) { l.logf(LevelDebug, format, args...) }

// Infof logs a formatted info line.
func (l *Logger) Infof(format string, args ...any) { l.logf(LevelInfo, format, args...) }

// Warnf logs a formatted warning line.
func (l *Logger) Warnf(format string, args ...any) { l.logf(LevelWarn, format, args...) }

// Errorf logs a formatted error line.
func (l *Logger) Errorf(format string, args ...any) { l.logf(LevelError, format, args...) }

// std is the process-wide logger the package-level functions write to.
var std = New(os.Stderr, LevelInfo)

// SetLevel changes the minimum level of the process-wide logger.
func SetLevel(min Level) { std.min = min }

// SetOutput redirects the process-wide logger's diagnostic stream.
func SetOutput(out io.Writer) {
	std.mu.Lock()
	defer std.mu.Unlock()
	std.out = out
}

// Debugf logs a formatted debug line to the process-wide logger.
func Debugf(format string, args ...any) { std.Debugf(format, args...) }

// Infof logs a formatted info line to the process-wide logger.
func Infof(format string, args ...any) { std.Infof(format, args...) }

// Warnf logs a formatted warning line to the process-wide logger.
func Warnf(format string, args ...any) { std.Warnf(format, args...) }

// Errorf logs a formatted error line to the process-wide logger.
func Errorf(format string, args ...any) { std.Errorf(format, args...) }
