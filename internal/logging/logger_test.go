package logging

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestLogger_DebugfGatedByDebugFlag(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, false)
	l.Debugf("should not appear")
	if buf.Len() != 0 {
		t.Errorf("expected no output with debug disabled, got %q", buf.String())
	}

	buf.Reset()
	l = New(&buf, true)
	l.Debugf("should appear")
	if !strings.Contains(buf.String(), "should appear") {
		t.Errorf("expected debug output, got %q", buf.String())
	}
}

func TestLogger_SubloggerPrefix(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, false).Sublogger("snapshot").Sublogger("walk")
	l.Printf("hello")
	if !strings.Contains(buf.String(), "[snapshot.walk] hello") {
		t.Errorf("expected nested prefix, got %q", buf.String())
	}
}

func TestLogger_NilIsSafe(t *testing.T) {
	var l *Logger
	l.Printf("x")
	l.Warn(errors.New("y"))
	l.Error(errors.New("z"))
	l.Debugf("w")
	if _, err := l.Writer().Write([]byte("line\n")); err != nil {
		t.Errorf("nil logger Writer should not error: %v", err)
	}
}

func TestLogger_Warn(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, false)
	l.Warn(errors.New("disk almost full"))
	if !strings.Contains(buf.String(), "disk almost full") {
		t.Errorf("expected the wrapped error text, got %q", buf.String())
	}
}
