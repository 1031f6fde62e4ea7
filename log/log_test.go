package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func bufferedLogger(buf *bytes.Buffer, level slog.Level) *Logger {
	return NewWithHandler(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: level}))
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("unmarshal %q: %v", buf.String(), err)
	}
	return entry
}

func TestModuleAddsAttribute(t *testing.T) {
	var buf bytes.Buffer
	child := bufferedLogger(&buf, slog.LevelDebug).Module("cache")
	child.Info("hello")

	entry := decodeLine(t, &buf)
	if entry["module"] != "cache" {
		t.Fatalf("module = %v, want %q", entry["module"], "cache")
	}
	if entry["msg"] != "hello" {
		t.Fatalf("msg = %v, want %q", entry["msg"], "hello")
	}
}

func TestModuleChainsWithWith(t *testing.T) {
	var buf bytes.Buffer
	child := bufferedLogger(&buf, slog.LevelDebug).Module("pool").With("chunk", 7)
	child.Info("allocated")

	entry := decodeLine(t, &buf)
	if entry["module"] != "pool" {
		t.Fatalf("module = %v, want %q", entry["module"], "pool")
	}
	if v, ok := entry["chunk"].(float64); !ok || v != 7 {
		t.Fatalf("chunk = %v, want 7", entry["chunk"])
	}
}

func TestLevelFiltering(t *testing.T) {
	cases := []struct {
		threshold slog.Level
		emit      func(l *Logger)
		wantLine  bool
	}{
		{slog.LevelInfo, func(l *Logger) { l.Debug("nope") }, false},
		{slog.LevelInfo, func(l *Logger) { l.Info("yes") }, true},
		{slog.LevelInfo, func(l *Logger) { l.Warn("yes") }, true},
		{slog.LevelInfo, func(l *Logger) { l.Error("yes") }, true},
		{slog.LevelWarn, func(l *Logger) { l.Info("nope") }, false},
		{slog.LevelWarn, func(l *Logger) { l.Warn("yes") }, true},
		{slog.LevelDebug, func(l *Logger) { l.Debug("yes") }, true},
	}

	for i, c := range cases {
		var buf bytes.Buffer
		c.emit(bufferedLogger(&buf, c.threshold))
		if got := buf.Len() > 0; got != c.wantLine {
			t.Errorf("case %d: wrote=%v, want %v (threshold=%v, buf=%s)", i, got, c.wantLine, c.threshold, buf.String())
		}
	}
}

func TestKeyValueArgsSurviveJSON(t *testing.T) {
	var buf bytes.Buffer
	bufferedLogger(&buf, slog.LevelInfo).Info("node committed", "height", 100, "root", "0xabc")

	entry := decodeLine(t, &buf)
	if v, ok := entry["height"].(float64); !ok || v != 100 {
		t.Fatalf("height = %v, want 100", entry["height"])
	}
	if entry["root"] != "0xabc" {
		t.Fatalf("root = %v, want %q", entry["root"], "0xabc")
	}
}

func TestDefaultLoggerIsUsableAndReplaceable(t *testing.T) {
	if Default() == nil {
		t.Fatal("Default() returned nil")
	}

	var buf bytes.Buffer
	l := bufferedLogger(&buf, slog.LevelInfo)
	SetDefault(l)
	defer SetDefault(New(slog.LevelInfo))

	Info("test info", "k", "v")
	if !strings.Contains(buf.String(), "test info") {
		t.Fatalf("output missing %q: %s", "test info", buf.String())
	}

	SetDefault(nil)
	if Default() != l {
		t.Fatal("SetDefault(nil) must be a no-op")
	}
}

func TestPackageLevelFunctionsDelegateToDefault(t *testing.T) {
	var buf bytes.Buffer
	SetDefault(bufferedLogger(&buf, slog.LevelDebug))
	defer SetDefault(New(slog.LevelInfo))

	Debug("d")
	Info("i")
	Warn("w")
	Error("e")

	out := buf.String()
	for _, msg := range []string{"d", "i", "w", "e"} {
		if !strings.Contains(out, msg) {
			t.Errorf("missing message %q in output", msg)
		}
	}
}
