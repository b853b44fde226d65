package util

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewLoggerLevel(t *testing.T) {
	logger := NewLogger("debug", "json")
	if logger.GetLevel() != zerolog.DebugLevel {
		t.Fatalf("expected debug level, got %s", logger.GetLevel())
	}

	logger = NewLogger("invalid", "")
	if logger.GetLevel() != zerolog.InfoLevel {
		t.Fatalf("expected info fallback, got %s", logger.GetLevel())
	}
}

func TestNewLoggerFormats(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, "info", "json")
	logger.Info().Str("symbol", "BTCUSDT").Msg("tick")
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("json format should emit json: %v", err)
	}
	if entry["symbol"] != "BTCUSDT" {
		t.Fatalf("missing field: %v", entry)
	}

	buf.Reset()
	logger = NewLoggerTo(&buf, "info", "console")
	logger.Info().Str("symbol", "BTCUSDT").Msg("tick")
	if json.Valid(buf.Bytes()) || !strings.Contains(buf.String(), "tick") {
		t.Fatalf("console format should be human readable: %q", buf.String())
	}
}
