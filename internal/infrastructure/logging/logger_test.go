package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func newJSONLogger(level Level) (*Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	return New(Config{Level: level, Format: FormatJSON, Output: buf}), buf
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("failed to parse JSON %q: %v", buf.String(), err)
	}
	return m
}

func TestNew_Formats(t *testing.T) {
	buf := &bytes.Buffer{}
	New(Config{Level: LevelInfo, Format: FormatText, Output: buf}).Info("hello")
	if !strings.Contains(buf.String(), "level=INFO") || !strings.Contains(buf.String(), "msg=hello") {
		t.Errorf("text output = %q", buf.String())
	}

	logger, jsonBuf := newJSONLogger(LevelInfo)
	logger.Info("hello")
	if m := decodeLine(t, jsonBuf); m["level"] != "INFO" || m["msg"] != "hello" {
		t.Errorf("json output = %v", m)
	}
}

func TestNew_TimeFormat(t *testing.T) {
	buf := &bytes.Buffer{}
	New(Config{Format: FormatJSON, Output: buf, TimeFormat: time.DateOnly}).Info("x")

	ts, _ := decodeLine(t, buf)["time"].(string)
	if _, err := time.Parse(time.DateOnly, ts); err != nil {
		t.Errorf("time %q not in DateOnly layout", ts)
	}
}

func TestLevels(t *testing.T) {
	tests := []struct {
		level   Level
		debug   bool
		warn    bool
		errorOn bool
	}{
		{LevelDebug, true, true, true},
		{LevelInfo, false, true, true},
		{LevelWarn, false, true, true},
		{LevelError, false, false, true},
		{"DEBUG", true, true, true},
		{"bogus", false, true, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.level), func(t *testing.T) {
			logger, buf := newJSONLogger(tt.level)
			check := func(name string, log func(string, ...any), want bool) {
				buf.Reset()
				log(name)
				if got := buf.Len() > 0; got != want {
					t.Errorf("%s logged = %v, want %v", name, got, want)
				}
			}
			check("debug", logger.Debug, tt.debug)
			check("warn", logger.Warn, tt.warn)
			check("error", logger.Error, tt.errorOn)
		})
	}
}

func TestSetLevel_SharedWithChildren(t *testing.T) {
	logger, buf := newJSONLogger(LevelInfo)
	child := logger.With("component", "engine")

	child.Debug("hidden")
	if buf.Len() != 0 {
		t.Fatal("debug should be filtered at info level")
	}

	logger.SetLevel(LevelDebug)
	child.Debug("shown")
	m := decodeLine(t, buf)
	if m["msg"] != "shown" || m["component"] != "engine" {
		t.Errorf("child output = %v", m)
	}
}

func TestContextFields(t *testing.T) {
	ctx := WithItemID(WithCycleID(WithQueue(context.Background(), "recordings"), "cycle-1"), "item-9")

	if f := FieldsFrom(ctx); f != (Fields{Queue: "recordings", CycleID: "cycle-1", ItemID: "item-9"}) {
		t.Errorf("FieldsFrom() = %+v", f)
	}
	if f := FieldsFrom(context.Background()); f != (Fields{}) {
		t.Errorf("FieldsFrom(empty) = %+v", f)
	}

	logger, buf := newJSONLogger(LevelInfo)
	logger.With("component", "engine").WithGroup("detail").InfoContext(ctx, "delivered", "bytes", 10)

	m := decodeLine(t, buf)
	detail, _ := m["detail"].(map[string]any)
	if detail["queue"] != "recordings" || detail["cycle_id"] != "cycle-1" || detail["item_id"] != "item-9" {
		t.Errorf("context fields missing: %v", m)
	}
	if m["component"] != "engine" || detail["bytes"] != float64(10) {
		t.Errorf("record = %v", m)
	}

	// Plain methods carry no context fields.
	buf.Reset()
	logger.Info("plain")
	if _, ok := decodeLine(t, buf)["queue"]; ok {
		t.Error("Info() without context should not add queue")
	}
}

func TestSyncLogHelpers(t *testing.T) {
	logger, buf := newJSONLogger(LevelDebug)
	ctx := WithQueue(context.Background(), "documents")

	tests := []struct {
		name  string
		log   func()
		level string
		attrs map[string]any
	}{
		{"cycle start", func() { LogCycleStart(ctx, logger, 5) }, "INFO",
			map[string]any{"msg": "sync cycle started", "total": float64(5)}},
		{"cycle complete", func() { LogCycleComplete(ctx, logger, 4, 1, 5, 2*time.Second) }, "INFO",
			map[string]any{"completed": float64(4), "duration_ms": float64(2000)}},
		{"cycle failed", func() { LogCycleFailed(ctx, logger, errors.New("aborted"), time.Second) }, "WARN",
			map[string]any{"error": "aborted"}},
		{"item delivered", func() { LogItemDelivered(ctx, logger, 30*time.Millisecond) }, "DEBUG",
			map[string]any{"latency_ms": float64(30)}},
		{"item failed", func() { LogItemFailed(ctx, logger, 2, "HTTP 503", 2*time.Second) }, "WARN",
			map[string]any{"retry_count": float64(2), "backoff_ms": float64(2000)}},
		{"item exhausted", func() { LogItemExhausted(ctx, logger, 3, "HTTP 500") }, "ERROR",
			map[string]any{"retry_count": float64(3), "error": "HTTP 500"}},
		{"listener panic", func() { LogListenerPanic(ctx, logger, "boom") }, "ERROR",
			map[string]any{"panic": "boom"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf.Reset()
			tt.log()
			m := decodeLine(t, buf)
			if m["level"] != tt.level {
				t.Errorf("level = %v, want %s", m["level"], tt.level)
			}
			if m["queue"] != "documents" {
				t.Errorf("queue = %v", m["queue"])
			}
			for k, want := range tt.attrs {
				if m[k] != want {
					t.Errorf("%s = %v, want %v", k, m[k], want)
				}
			}
		})
	}
}

func TestDefaultAndNop(t *testing.T) {
	if Default() != Default() {
		t.Error("Default() should return a shared logger")
	}
	// Must not panic and must not write anywhere visible.
	Nop().Error("discarded")
}
