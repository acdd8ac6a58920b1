// Copyright (C) 2025 Josh Simonot
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
)

type Logger struct {
	prefix string
	logger *log.Logger
}

// Verbosity mirrors HPWH's hpwhVerbosity tiers: each level includes every
// message the levels below it would emit.
type Verbosity int32

const (
	Silent    Verbosity = iota // Info/Error only; no Debug/Emetic output
	Reluctant                  // same output as Silent
	Typical                    // + Debug
	Emetic                     // + Emetic (per-substep diagnostics)
)

var (
	baseLogger *log.Logger
	logFile    *os.File
	once       sync.Once
	verbosity  atomic.Int32
)

func init() {
	verbosity.Store(int32(Typical))
}

// Init initializes the base logger with stdout and a log file.
// Optionally enables debug if DEBUG env var is set.
func Init(logPath string) error {
	var err error
	once.Do(func() {
		logFile, err = os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return
		}

		mw := io.MultiWriter(os.Stdout, logFile)
		baseLogger = log.New(mw, "", log.LstdFlags)

		// enable debug from env at startup if wanted
		if os.Getenv("DEBUG") != "" {
			verbosity.Store(int32(Emetic))
		}
	})
	return err
}

// Close cleans up the log file (call on shutdown)
func Close() {
	if logFile != nil {
		logFile.Close()
	}
}

// SetVerbosity sets the process-wide logging verbosity.
func SetVerbosity(v Verbosity) {
	verbosity.Store(int32(v))
}

// GetVerbosity returns the process-wide logging verbosity.
func GetVerbosity() Verbosity {
	return Verbosity(verbosity.Load())
}

// EnableDebug is a coarse on/off convenience wrapper over the verbosity
// tiers (on -> Typical, off -> Reluctant), for call sites that only ever
// needed a boolean debug flag.
func EnableDebug(on bool) {
	if on {
		verbosity.Store(int32(Typical))
	} else {
		verbosity.Store(int32(Reluctant))
	}
}

// IsDebug reports whether verbosity is at Typical or above.
func IsDebug() bool {
	return GetVerbosity() >= Typical
}

func New(prefix string) *Logger {
	Init("default.log")
	return &Logger{
		prefix: prefix,
		logger: log.New(baseLogger.Writer(), "", log.LstdFlags),
	}
}

func (l *Logger) Info(fmtstr string, v ...any) {
	formatted := fmt.Sprintf(fmtstr, v...)
	l.logger.Printf("[%s] INFO: %v", l.prefix, formatted)
}

func (l *Logger) Error(fmtstr string, v ...any) {
	formatted := fmt.Sprintf(fmtstr, v...)
	_, file, line, ok := runtime.Caller(1)
	if ok {
		file = filepath.Base(file)
		l.logger.Printf("[%s] ERROR: (%s:%d) %s", l.prefix, file, line, formatted)
	} else {
		l.logger.Printf("[%s] ERROR: %v", l.prefix, formatted)
	}
}

func (l *Logger) Fatal(fmtstr string, v ...any) {
	formatted := fmt.Sprintf(fmtstr, v...)
	_, file, line, ok := runtime.Caller(1)
	if ok {
		file = filepath.Base(file)
		l.logger.Printf("[%s] FATAL: (%s:%d) %s", l.prefix, file, line, formatted)
	} else {
		l.logger.Printf("[%s] FATAL: %v", l.prefix, formatted)
	}
	panic(formatted)
}

func (l *Logger) Debug(fmtstr string, v ...any) {
	if GetVerbosity() < Typical {
		return
	}
	formatted := fmt.Sprintf(fmtstr, v...)
	l.logger.Printf("[%s] DEBUG: %v", l.prefix, formatted)
}

// Emetic logs at the most verbose tier, reserved for per-substep diagnostics
// (e.g. the heating-logic decision trace) that would otherwise flood a log
// at Typical verbosity.
func (l *Logger) Emetic(fmtstr string, v ...any) {
	if GetVerbosity() < Emetic {
		return
	}
	formatted := fmt.Sprintf(fmtstr, v...)
	l.logger.Printf("[%s] EMETIC: %v", l.prefix, formatted)
}
