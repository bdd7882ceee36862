package infrastructure

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"retailsales/internal/config"
)

func TestInitializeLogger(t *testing.T) {
	ResetLoggerForTesting()
	defer ResetLoggerForTesting()

	logFile := filepath.Join(t.TempDir(), "logs", "test.log")

	cfg := config.LoggingConfig{
		Level:    "info",
		Format:   "json",
		Output:   "file",
		FilePath: logFile,
	}

	logger, err := InitializeLogger(cfg)
	require.NoError(t, err)
	require.NotNil(t, logger)

	_, err = os.Stat(logFile)
	require.NoError(t, err, "log file should be created along with its directory")

	logger.Info("test message", "key", "value")
	require.NoError(t, CloseLogFile())

	content, err := os.ReadFile(logFile)
	require.NoError(t, err)

	var logEntry map[string]interface{}
	require.NoError(t, json.Unmarshal(content, &logEntry))
	assert.Equal(t, "test message", logEntry["msg"])
	assert.Equal(t, "value", logEntry["key"])
	assert.Equal(t, "INFO", logEntry["level"])
}

func TestInitializeLogger_OnlyOnce(t *testing.T) {
	ResetLoggerForTesting()
	defer ResetLoggerForTesting()

	dir := t.TempDir()
	first, err := InitializeLogger(config.LoggingConfig{Level: "info", Output: "file", FilePath: filepath.Join(dir, "a.log")})
	require.NoError(t, err)

	second, err := InitializeLogger(config.LoggingConfig{Level: "debug", Output: "file", FilePath: filepath.Join(dir, "b.log")})
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Same(t, first, GetLogger())
}

func TestTraceIDInjection(t *testing.T) {
	ResetLoggerForTesting()
	defer ResetLoggerForTesting()

	logFile := filepath.Join(t.TempDir(), "test.log")
	_, err := InitializeLogger(config.LoggingConfig{
		Level:    "debug",
		Format:   "json",
		Output:   "file",
		FilePath: logFile,
	})
	require.NoError(t, err)

	ctx := WithClientID(WithTraceID(context.Background(), "test-trace-123"), "tab-7")
	GetLogger().InfoContext(ctx, "test with trace")
	require.NoError(t, CloseLogFile())

	content, err := os.ReadFile(logFile)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(content)), "\n")
	var logEntry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[len(lines)-1]), &logEntry))
	assert.Equal(t, "test-trace-123", logEntry["trace_id"])
	assert.Equal(t, "tab-7", logEntry["ws_client"])
}

func TestLogLevels(t *testing.T) {
	tests := []struct {
		level    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"verbose", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseLogLevel(tt.level))
		})
	}
}

func TestNewLogger_TextFormat(t *testing.T) {
	ResetLoggerForTesting()
	defer ResetLoggerForTesting()

	logFile := filepath.Join(t.TempDir(), "text.log")
	logger, err := NewLogger(config.LoggingConfig{Level: "info", Format: "text", Output: "file", FilePath: logFile})
	require.NoError(t, err)

	logger.Info("plain", "series", "RetailTotal")
	require.NoError(t, CloseLogFile())

	content, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(content), "msg=plain")
	assert.Contains(t, string(content), "series=RetailTotal")
}

func TestContextHelpers(t *testing.T) {
	ctx := EnsureTraceID(context.Background())
	traceID := GetTraceID(ctx)
	assert.NotEmpty(t, traceID)

	assert.Equal(t, traceID, GetTraceID(EnsureTraceID(ctx)), "existing trace id must be kept")
	assert.Empty(t, GetTraceID(context.Background()))

	assert.Equal(t, "tab-7", GetClientID(WithClientID(ctx, "tab-7")))
	assert.Empty(t, GetClientID(ctx))
}

func TestWithComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewTraceHandler(slog.NewJSONHandler(&buf, nil)))

	WithComponent(logger, "census").InfoContext(WithTraceID(context.Background(), "run-1"), "fetched")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "census", entry["component"])
	assert.Equal(t, "run-1", entry["trace_id"])
}

func TestRedactKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain message", "plain message"},
		{"?key=abc123&time=from+2020", "?key=[REDACTED]&time=from+2020"},
		{
			`Get "https://api.census.gov/data/timeseries/eits/marts?get=cell_value&key=s3cr3t": dial tcp: timeout`,
			`Get "https://api.census.gov/data/timeseries/eits/marts?get=cell_value&key=[REDACTED]": dial tcp: timeout`,
		},
		{"monkey=1", "monkey=1"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, RedactKey(tt.in))
	}
}

func TestNewLogger_RedactsSecrets(t *testing.T) {
	ResetLoggerForTesting()
	defer ResetLoggerForTesting()

	logFile := filepath.Join(t.TempDir(), "redact.log")
	logger, err := NewLogger(config.LoggingConfig{Level: "info", Format: "json", Output: "file", FilePath: logFile})
	require.NoError(t, err)

	logger.Info("census api unreachable",
		slog.String("api_key", "s3cr3t"),
		slog.String("error", "Get \"http://127.0.0.1:1/marts?key=s3cr3t\": refused"))
	require.NoError(t, CloseLogFile())

	content, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.NotContains(t, string(content), "s3cr3t")
	assert.Contains(t, string(content), Redacted)
}
