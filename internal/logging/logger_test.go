package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	siteerrors "github.com/conneroisu/brokerage/internal/errors"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    LogLevel
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"", LevelInfo, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"verbose", LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSiteLogger_JSONFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&LoggerConfig{Level: LevelDebug, Format: "json", Output: &buf})

	logger.WithComponent("prefetch").With("chunk", "home").
		Warn(context.Background(), errors.New("boom"), "load failed", "attempt", 2)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "load failed", entry["msg"])
	assert.Equal(t, "WARN", entry["level"])
	assert.Equal(t, "prefetch", entry["component"])
	assert.Equal(t, "boom", entry["error"])
	assert.Equal(t, "home", entry["chunk"])
	assert.Equal(t, float64(2), entry["attempt"])
	assert.NotContains(t, entry, "error_code")
}

func TestSiteLogger_SiteErrorFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&LoggerConfig{Level: LevelInfo, Format: "json", Output: &buf})

	err := siteerrors.NewStorageError(siteerrors.ErrCodeStorageWrite, "writing form state", errors.New("disk full"))
	logger.Warn(context.Background(), err, "degraded to memory")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "storage", entry["error_type"])
	assert.Equal(t, siteerrors.ErrCodeStorageWrite, entry["error_code"])
}

func TestSiteLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&LoggerConfig{Level: LevelWarn, Output: &buf})

	logger.Debug(context.Background(), "hidden debug")
	logger.Info(context.Background(), "hidden info")
	logger.Error(context.Background(), nil, "visible error")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "visible error")
}

func TestNewNop(t *testing.T) {
	logger := NewNop()
	assert.NotPanics(t, func() {
		logger.Error(context.Background(), errors.New("x"), "discarded")
	})
}

func TestSanitizeForLog(t *testing.T) {
	assert.Equal(t, "[REDACTED]", SanitizeForLog("csrf_token=abc"))
	assert.Equal(t, "plain", SanitizeForLog("plain"))

	long := strings.Repeat("a", 300)
	assert.True(t, strings.HasSuffix(SanitizeForLog(long), "...[TRUNCATED]"))
}

func TestLogSecurityEvent(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&LoggerConfig{Level: LevelInfo, Format: "json", Output: &buf})

	LogSecurityEvent(context.Background(), logger, "csrf_mismatch", map[string]interface{}{
		"header": "token-value",
		"ip":     "10.0.0.1",
	})

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "security", entry["event_type"])
	assert.Equal(t, "csrf_mismatch", entry["event"])
	assert.Equal(t, "[REDACTED]", entry["header"])
	assert.Equal(t, "10.0.0.1", entry["ip"])
}
