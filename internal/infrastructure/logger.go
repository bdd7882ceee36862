package infrastructure

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/google/uuid"

	"retailsales/internal/config"
)

// Redacted replaces secret values in log output
const Redacted = "[REDACTED]"

var (
	appLogger     *slog.Logger
	appLoggerOnce sync.Once

	logFileMu sync.Mutex
	logFile   *os.File

	// keyParam matches the census key query parameter, including inside
	// *url.Error messages.
	keyParam = regexp.MustCompile(`([?&]key=)[^&\s"]*`)

	// secretAttrs never reach the log in clear text
	secretAttrs = map[string]bool{
		"api_key":    true,
		"census_key": true,
		"apikey":     true,
	}
)

type contextKey struct{ name string }

// Context keys
var (
	// TraceIDContextKey stores the request or run trace id
	TraceIDContextKey = &contextKey{"trace_id"}
	// ClientIDContextKey stores the notification socket the request reports to
	ClientIDContextKey = &contextKey{"ws_client"}
)

// InitializeLogger builds the process logger once and installs it as the
// slog default. Later calls return the first logger.
func InitializeLogger(cfg config.LoggingConfig) (*slog.Logger, error) {
	var err error
	appLoggerOnce.Do(func() {
		appLogger, err = NewLogger(cfg)
		if appLogger != nil {
			slog.SetDefault(appLogger)
		}
	})
	return appLogger, err
}

// GetLogger returns the process logger, or slog.Default before
// InitializeLogger has run.
func GetLogger() *slog.Logger {
	if appLogger == nil {
		return slog.Default()
	}
	return appLogger
}

// NewLogger builds a logger from cfg. It only touches package state when
// the output is a file, which CloseLogFile releases.
func NewLogger(cfg config.LoggingConfig) (*slog.Logger, error) {
	out, err := logOutput(cfg)
	if err != nil {
		return nil, err
	}

	opts := &slog.HandlerOptions{
		AddSource:   true,
		Level:       parseLogLevel(cfg.Level),
		ReplaceAttr: redactAttr,
	}

	var h slog.Handler = slog.NewJSONHandler(out, opts)
	if strings.EqualFold(cfg.Format, "text") {
		h = slog.NewTextHandler(out, opts)
	}
	return slog.New(NewTraceHandler(h)), nil
}

func logOutput(cfg config.LoggingConfig) (io.Writer, error) {
	mode := strings.ToLower(cfg.Output)
	if mode != "file" && mode != "both" {
		return os.Stdout, nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(cfg.FilePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", cfg.FilePath, err)
	}

	logFileMu.Lock()
	if logFile != nil {
		logFile.Close()
	}
	logFile = f
	logFileMu.Unlock()

	if mode == "both" {
		return io.MultiWriter(os.Stdout, f), nil
	}
	return f, nil
}

// CloseLogFile closes the log file opened by NewLogger, if any.
func CloseLogFile() error {
	logFileMu.Lock()
	defer logFileMu.Unlock()

	if logFile == nil {
		return nil
	}
	err := logFile.Close()
	logFile = nil
	return err
}

// ResetLoggerForTesting drops the process logger so tests can initialize
// it again.
func ResetLoggerForTesting() {
	_ = CloseLogFile()
	appLogger = nil
	appLoggerOnce = sync.Once{}
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// RedactKey masks the value of any key= query parameter in s.
func RedactKey(s string) string {
	if !strings.Contains(s, "key=") {
		return s
	}
	return keyParam.ReplaceAllString(s, "${1}"+Redacted)
}

func redactAttr(_ []string, a slog.Attr) slog.Attr {
	if secretAttrs[strings.ToLower(a.Key)] {
		return slog.String(a.Key, Redacted)
	}
	if a.Value.Kind() == slog.KindString {
		if s := a.Value.String(); strings.Contains(s, "key=") {
			return slog.String(a.Key, RedactKey(s))
		}
	}
	return a
}

// traceHandler stamps records with the trace id carried by the context
type traceHandler struct {
	slog.Handler
}

// NewTraceHandler wraps h so records logged with a traced context carry
// trace_id. Tests use it to capture output in a buffer.
func NewTraceHandler(h slog.Handler) slog.Handler {
	return &traceHandler{Handler: h}
}

func (h *traceHandler) Handle(ctx context.Context, r slog.Record) error {
	if id := GetTraceID(ctx); id != "" {
		r.AddAttrs(slog.String("trace_id", id))
	}
	if id := GetClientID(ctx); id != "" {
		r.AddAttrs(slog.String("ws_client", id))
	}
	return h.Handler.Handle(ctx, r)
}

func (h *traceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &traceHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h *traceHandler) WithGroup(name string) slog.Handler {
	return &traceHandler{Handler: h.Handler.WithGroup(name)}
}

// WithTraceID returns a context carrying id
func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, TraceIDContextKey, id)
}

// GetTraceID returns the trace id carried by ctx, or ""
func GetTraceID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(TraceIDContextKey).(string)
	return id
}

// WithClientID routes the status notifications raised under ctx to the
// websocket client id
func WithClientID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ClientIDContextKey, id)
}

// GetClientID returns the websocket client ctx reports to, or "" when
// notifications go to every client
func GetClientID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(ClientIDContextKey).(string)
	return id
}

// EnsureTraceID returns ctx unchanged when it already has a trace id and a
// child context with a fresh UUID otherwise. CLI runs use it so every log
// line and notification of one export shares an id.
func EnsureTraceID(ctx context.Context) context.Context {
	if GetTraceID(ctx) != "" {
		return ctx
	}
	return WithTraceID(ctx, uuid.NewString())
}

// WithComponent tags logger with the component that owns it
func WithComponent(logger *slog.Logger, component string) *slog.Logger {
	if logger == nil {
		logger = GetLogger()
	}
	return logger.With(slog.String("component", component))
}
