// Package logging provides the engine's leveled logger. It is nil-safe: a
// nil *Logger discards everything, so components can be handed a logger
// unconditionally without a separate "is logging enabled" branch.
package logging

import (
	"fmt"
	"io"
	"io/ioutil"
	"log"

	"github.com/fatih/color"
)

// Logger wraps the standard library logger with level gating and a
// sub-logger prefix chain. It is safe for concurrent use.
type Logger struct {
	prefix string
	debug  bool
	out    *log.Logger
}

// New creates a root logger writing to w. If debug is true, Debug* calls are
// emitted; otherwise they are no-ops.
func New(w io.Writer, debug bool) *Logger {
	return &Logger{
		out:   log.New(w, "", log.LstdFlags),
		debug: debug,
	}
}

// Sublogger derives a logger that prefixes every line with name, nested
// under this logger's own prefix.
func (l *Logger) Sublogger(name string) *Logger {
	if l == nil {
		return nil
	}
	prefix := name
	if l.prefix != "" {
		prefix = l.prefix + "." + name
	}
	return &Logger{prefix: prefix, debug: l.debug, out: l.out}
}

func (l *Logger) line(format string, v ...interface{}) string {
	s := fmt.Sprintf(format, v...)
	if l.prefix != "" {
		return fmt.Sprintf("[%s] %s", l.prefix, s)
	}
	return s
}

// Printf logs at the default level.
func (l *Logger) Printf(format string, v ...interface{}) {
	if l == nil {
		return
	}
	l.out.Print(l.line(format, v...))
}

// Println logs at the default level.
func (l *Logger) Println(v ...interface{}) {
	if l == nil {
		return
	}
	l.out.Print(l.line("%s", fmt.Sprintln(v...)))
}

// Debugf logs only if debugging is enabled.
func (l *Logger) Debugf(format string, v ...interface{}) {
	if l == nil || !l.debug {
		return
	}
	l.out.Print(l.line(format, v...))
}

// Warn logs err with a yellow "Warning:" prefix.
func (l *Logger) Warn(err error) {
	if l == nil {
		return
	}
	l.out.Print(l.line("%s", color.YellowString("Warning: %v", err)))
}

// Error logs err with a red "Error:" prefix.
func (l *Logger) Error(err error) {
	if l == nil {
		return
	}
	l.out.Print(l.line("%s", color.RedString("Error: %v", err)))
}

// Writer returns an io.Writer whose every line is forwarded to Println, for
// subsystems that want a plain io.Writer rather than printf calls.
func (l *Logger) Writer() io.Writer {
	if l == nil {
		return ioutil.Discard
	}
	return &lineWriter{callback: l.Println}
}

// lineWriter splits writes on newlines and forwards each line.
type lineWriter struct {
	callback func(...interface{})
	buffer   []byte
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.buffer = append(w.buffer, p...)
	processed := 0
	for {
		idx := indexByte(w.buffer[processed:], '\n')
		if idx < 0 {
			break
		}
		line := w.buffer[processed : processed+idx]
		w.callback(string(line))
		processed += idx + 1
	}
	if processed > 0 {
		w.buffer = append([]byte(nil), w.buffer[processed:]...)
	}
	return len(p), nil
}

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}
