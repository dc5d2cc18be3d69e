package log

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestNewWithWriterTextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, Config{Level: slog.LevelInfo})

	logger.Info("ingestion started", "documents", 12)

	out := buf.String()
	if !strings.Contains(out, "ingestion started") {
		t.Errorf("expected message in output, got %q", out)
	}
	if !strings.Contains(out, "documents=12") {
		t.Errorf("expected attribute in output, got %q", out)
	}
}

func TestNewWithWriterJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, Config{JSON: true})

	logger.Info("search complete", "results", 5)

	out := buf.String()
	if !strings.Contains(out, `"msg":"search complete"`) {
		t.Errorf("expected JSON message, got %q", out)
	}
	if !strings.Contains(out, `"results":5`) {
		t.Errorf("expected JSON attribute, got %q", out)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, Config{Level: slog.LevelWarn})

	logger.Debug("should be dropped")
	logger.Info("should be dropped too")
	logger.Warn("should appear")

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Errorf("below-level entries leaked: %q", out)
	}
	if !strings.Contains(out, "should appear") {
		t.Errorf("warn entry missing: %q", out)
	}
}

func TestNewNopDiscardsOutput(t *testing.T) {
	logger := NewNop()
	// Must not panic and must not write anywhere observable.
	logger.Error("discarded", "key", "value")
}
