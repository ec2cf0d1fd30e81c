package xlog

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestNilLoggerDiscards(t *testing.T) {
	var l Logger
	l.Info("nothing")
	l.Trace("nothing")
	if l.TraceEnabled() {
		t.Error("zero logger should not enable trace")
	}
}

func TestTraceLevel(t *testing.T) {
	var buf bytes.Buffer
	h := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: LevelTrace, ReplaceAttr: ReplaceLevel})
	l := New(slog.New(h))
	if !l.TraceEnabled() {
		t.Fatal("trace should be enabled")
	}
	l.Trace("tick", slog.Int("n", 1))
	if !strings.Contains(buf.String(), "level=TRACE") || !strings.Contains(buf.String(), "n=1") {
		t.Errorf("unexpected output %q", buf.String())
	}

	buf.Reset()
	l = New(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})))
	l.Trace("hidden")
	l.Debug("hidden")
	l.Info("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Errorf("level filtering failed: %q", buf.String())
	}
}
