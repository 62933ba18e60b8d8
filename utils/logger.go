package utils

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync/atomic"
	"time"
)

const (
	colorReset  = "\033[0m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorRed    = "\033[31m"
	colorCyan   = "\033[36m"
)

// Logger provides leveled logging throughout the application. Messages are
// printf formatted and conventionally start with a "[component]" tag.
type Logger struct {
	out *log.Logger
	err *log.Logger

	debugOn atomic.Bool
}

// NewLogger creates a new Logger writing to stdout/stderr.
func NewLogger() *Logger {
	return NewLoggerTo(os.Stdout, os.Stderr)
}

// NewDiscardLogger returns a Logger that drops everything. Used in tests.
func NewDiscardLogger() *Logger {
	return NewLoggerTo(io.Discard, io.Discard)
}

// NewLoggerTo creates a Logger writing info, warn and debug lines to out
// and errors to errOut.
func NewLoggerTo(out, errOut io.Writer) *Logger {
	return &Logger{
		out: log.New(out, "", 0),
		err: log.New(errOut, "", 0),
	}
}

// SetDebug toggles Debug output.
func (l *Logger) SetDebug(on bool) {
	l.debugOn.Store(on)
}

func (l *Logger) write(dst *log.Logger, color, level, format string, args []any) {
	msg := fmt.Sprintf(format, args...)
	dst.Printf("[%s] %s%-5s%s %s\n", time.Now().Format("2006-01-02 15:04:05"), color, level, colorReset, msg)
}

func (l *Logger) Info(format string, args ...any) {
	l.write(l.out, colorGreen, "INFO", format, args)
}

func (l *Logger) Warn(format string, args ...any) {
	l.write(l.out, colorYellow, "WARN", format, args)
}

func (l *Logger) Error(format string, args ...any) {
	l.write(l.err, colorRed, "ERROR", format, args)
}

func (l *Logger) Debug(format string, args ...any) {
	if !l.debugOn.Load() {
		return
	}
	l.write(l.out, colorCyan, "DEBUG", format, args)
}
