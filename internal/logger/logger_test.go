package logger

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNew(t *testing.T) {
	log := New()
	if log.GetLevel() == zerolog.Disabled {
		t.Error("Expected logger to be enabled")
	}
}

func TestNewWithOptions(t *testing.T) {
	tests := []struct {
		name      string
		opts      Options
		wantLevel zerolog.Level
	}{
		{name: "defaults to info", opts: Options{}, wantLevel: zerolog.InfoLevel},
		{name: "debug level", opts: Options{Level: "DEBUG"}, wantLevel: zerolog.DebugLevel},
		{name: "unknown level falls back", opts: Options{Level: "loud"}, wantLevel: zerolog.InfoLevel},
		{name: "json format", opts: Options{Level: "warn", Format: "json"}, wantLevel: zerolog.WarnLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			tt.opts.Out = buf
			log := NewWithOptions(tt.opts)
			if log.GetLevel() != tt.wantLevel {
				t.Errorf("level = %v, want %v", log.GetLevel(), tt.wantLevel)
			}
		})
	}
}

func TestNewWithOptions_JSONOutput(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewWithOptions(Options{Format: "json", Out: buf})

	log.Info().Str("tool", "get_stock_price").Msg("tool invoked")

	output := buf.String()
	if !strings.HasPrefix(output, "{") {
		t.Errorf("Expected JSON output, got: %s", output)
	}
	if !strings.Contains(output, `"tool":"get_stock_price"`) {
		t.Errorf("Expected tool field, got: %s", output)
	}
}

func TestNewWithWriter(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewWithWriter(buf)

	log.Info().Msg("test message")

	output := buf.String()
	if output == "" {
		t.Error("Expected log output, got empty string")
	}
	if !strings.Contains(output, "test message") {
		t.Errorf("Expected output to contain 'test message', got: %s", output)
	}
}

func TestFromContext(t *testing.T) {
	buf := &bytes.Buffer{}
	testLog := NewWithWriter(buf)
	ctx := WithContext(context.Background(), testLog)

	retrievedLog := FromContext(ctx)
	retrievedLog.Info().Msg("test")

	if buf.Len() == 0 {
		t.Error("Expected log output from retrieved logger")
	}
}

func TestFromContext_DefaultLogger(t *testing.T) {
	log := FromContext(context.Background())

	if log.GetLevel() == zerolog.Disabled {
		t.Error("Expected default logger to be enabled")
	}
}

func TestWithFields(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewWithWriter(buf)

	logWithFields := WithFields(log, map[string]interface{}{
		"job_id": "123",
		"source": "default_knowledge",
	})
	logWithFields.Info().Msg("test message")

	output := buf.String()
	if !strings.Contains(output, `"job_id":"123"`) {
		t.Errorf("Expected output to contain job_id field, got: %s", output)
	}
	if !strings.Contains(output, `"source":"default_knowledge"`) {
		t.Errorf("Expected output to contain source field, got: %s", output)
	}
}

func TestForTurn(t *testing.T) {
	buf := &bytes.Buffer{}
	log := ForTurn(NewWithWriter(buf), "a@x.com", "conv-1")
	log.Info().Msg("turn")

	output := buf.String()
	if !strings.Contains(output, `"tenant":"a@x.com"`) || !strings.Contains(output, `"conversation_id":"conv-1"`) {
		t.Errorf("Expected turn fields, got: %s", output)
	}
}
