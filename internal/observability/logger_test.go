package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "info", false)
	logger.Info().Str("stage", "transcription").Msg("done")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Expected JSON output, got %q: %v", buf.String(), err)
	}
	if entry["stage"] != "transcription" {
		t.Errorf("Expected stage field, got %v", entry["stage"])
	}
}

func TestWithCorrelationID(t *testing.T) {
	var buf bytes.Buffer
	logger := WithCorrelationID(NewLogger(&buf, "info", false), "abc")
	logger.Info().Msg("hello")

	var entry map[string]any
	json.Unmarshal(buf.Bytes(), &entry)
	if entry["correlation_id"] != "abc" {
		t.Errorf("Expected correlation_id abc, got %v", entry["correlation_id"])
	}
}

func TestNewCorrelationID_Unique(t *testing.T) {
	if NewCorrelationID() == NewCorrelationID() {
		t.Error("Expected unique correlation ids")
	}
}

func TestFromContext(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "info", false).With().Str("request_id", "r1").Logger()
	ctx := IntoContext(context.Background(), logger)

	fromCtx := FromContext(ctx, zerolog.Nop())
	fromCtx.Info().Msg("x")
	if !bytes.Contains(buf.Bytes(), []byte(`"request_id":"r1"`)) {
		t.Errorf("Expected context logger to be used, got %q", buf.String())
	}

	fallback := FromContext(context.Background(), zerolog.Nop())
	fallback.Info().Msg("dropped")
}
