// Copyright (c) 2021 Canonical Ltd
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License version 3 as
// published by the Free Software Foundation.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package logger is esh's diagnostic logger. It is deliberately not used
// for the handful of user-visible, bit-exact notification formats the job
// table prints (those go straight to os.Stdout via fmt.Fprintf) — it is for
// everything else: fork/exec diagnostics, reaper bookkeeping, config load
// problems.
package logger

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// A Logger is a fairly minimal logging tool.
type Logger interface {
	// Noticef is for messages the user should see.
	Noticef(format string, v ...any)
	// Debugf is for messages the user should be able to find when debugging.
	Debugf(format string, v ...any)
}

type nullLogger struct{}

func (nullLogger) Noticef(format string, v ...any) {}
func (nullLogger) Debugf(format string, v ...any)  {}

// NullLogger is a logger that does nothing.
var NullLogger = nullLogger{}

var (
	logger     Logger = New(os.Stderr, "esh: ")
	loggerLock sync.Mutex
)

// Noticef notifies the user of something.
func Noticef(format string, v ...any) {
	loggerLock.Lock()
	defer loggerLock.Unlock()
	logger.Noticef(format, v...)
}

// Debugf records something in the debug log. Only printed when ESH_DEBUG=1.
func Debugf(format string, v ...any) {
	loggerLock.Lock()
	defer loggerLock.Unlock()
	logger.Debugf(format, v...)
}

// SetLogger sets the global logger, returning the previous one.
func SetLogger(l Logger) (old Logger) {
	loggerLock.Lock()
	defer loggerLock.Unlock()
	old = logger
	logger = l
	return old
}

type defaultLogger struct {
	w      io.Writer
	prefix string
}

func (l *defaultLogger) Debugf(format string, v ...any) {
	if os.Getenv("ESH_DEBUG") == "1" {
		l.Noticef("DEBUG "+format, v...)
	}
}

func (l *defaultLogger) Noticef(format string, v ...any) {
	buf := appendTimestamp(nil, time.Now())
	buf = append(buf, ' ')
	buf = append(buf, l.prefix...)
	buf = fmt.Appendf(buf, format, v...)
	if buf[len(buf)-1] != '\n' {
		buf = append(buf, '\n')
	}
	l.w.Write(buf)
}

// New creates a Logger using the given io.Writer and prefix (printed
// between the timestamp and the message).
func New(w io.Writer, prefix string) Logger {
	return &defaultLogger{w: w, prefix: prefix}
}

// appendTimestamp appends a UTC timestamp, millisecond precision, in format
// "YYYY-MM-DDTHH:mm:ss.sssZ".
func appendTimestamp(b []byte, t time.Time) []byte {
	utc := t.UTC()
	return fmt.Appendf(b, "%04d-%02d-%02dT%02d:%02d:%02d.%03dZ",
		utc.Year(), utc.Month(), utc.Day(),
		utc.Hour(), utc.Minute(), utc.Second(),
		utc.Nanosecond()/1_000_000)
}
