package logging

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestComponent_Text(t *testing.T) {
	var buf bytes.Buffer
	logger := Component(New(slog.LevelDebug, "text", &buf), "coordinator")
	logger.Info("hello", "error", errors.New("boom"))

	output := buf.String()
	if !strings.Contains(output, "component=coordinator") {
		t.Errorf("expected component=coordinator in output, got: %s", output)
	}
	if !strings.Contains(output, "err=boom") {
		t.Errorf("expected error key renamed to err, got: %s", output)
	}
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	New(slog.LevelInfo, "json", &buf).Info("json check")

	if !strings.Contains(buf.String(), `"level":"INFO"`) {
		t.Errorf("expected JSON level field, got: %s", buf.String())
	}
}

func TestNew_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	New(slog.LevelWarn, "text", &buf).Info("quiet")

	if buf.Len() != 0 {
		t.Errorf("expected info to be filtered at warn level, got: %s", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	level, err := ParseLevel("debug")
	if err != nil || level != slog.LevelDebug {
		t.Errorf("ParseLevel(debug) = %v, %v", level, err)
	}
	if _, err := ParseLevel("chatty"); err == nil {
		t.Error("expected error for unknown level")
	}
}
