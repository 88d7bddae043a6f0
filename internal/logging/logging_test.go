package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(Config{Level: "debug", Output: &buf})
	pipelineLog := Component(logger, "pipeline")
	pipelineLog.Debug().Str("symbol", "SPY").Msg("fetched")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("expected json line, got %q: %v", buf.String(), err)
	}
	if line["component"] != "pipeline" || line["symbol"] != "SPY" || line["level"] != "debug" {
		t.Fatalf("unexpected fields: %v", line)
	}
	if line["service"] != "market-predictor" {
		t.Fatalf("expected service field, got %v", line)
	}
	if _, ok := line["time"]; !ok {
		t.Fatalf("expected timestamp, got %v", line)
	}
}

func TestNewLoggerLevelDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(Config{Level: "chatty", Output: &buf})
	if logger.GetLevel() != zerolog.InfoLevel {
		t.Fatalf("expected info level, got %s", logger.GetLevel())
	}
	logger.Debug().Msg("hidden")
	if buf.Len() != 0 {
		t.Fatalf("expected debug to be filtered, got %q", buf.String())
	}
}

func TestNewLoggerConsoleFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(Config{Format: "console", Output: &buf})
	logger.Info().Msg("run complete")
	if !strings.Contains(buf.String(), "run complete") {
		t.Fatalf("expected console output, got %q", buf.String())
	}
	if strings.HasPrefix(strings.TrimSpace(buf.String()), "{") {
		t.Fatalf("expected non-json console output, got %q", buf.String())
	}
}
