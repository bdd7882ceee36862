package census

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"retailsales/internal/config"
	apperrors "retailsales/internal/errors"
	"retailsales/internal/infrastructure"
	"retailsales/pkg/contracts/domain"
	"retailsales/pkg/contracts/events"
)

// Fields requested from the MARTS endpoint, in order
var Fields = []string{
	domain.FieldDataTypeCode,
	domain.FieldTimeSlotID,
	domain.FieldSeasonallyAdj,
	domain.FieldCategoryCode,
	domain.FieldCellValue,
	domain.FieldErrorData,
}

const maxErrorBody = 512

// Status messages sent to the notifier
const (
	MsgMissingKey      = "API key not provided. Data request may fail."
	MsgRequestStarted  = "Making the API request for MARTS..."
	MsgRequestComplete = "Data request complete."
)

// Query selects the year range of the MARTS time series
type Query struct {
	APIKey string
	From   int
	To     int
}

// Normalize fills a zero From with defaultFrom and a zero To with the current year
func (q Query) Normalize(defaultFrom int, now time.Time) Query {
	if q.From == 0 {
		q.From = defaultFrom
	}
	if q.To == 0 {
		q.To = now.Year()
	}
	q.APIKey = strings.TrimSpace(q.APIKey)
	return q
}

// Fetcher retrieves the raw MARTS table
type Fetcher interface {
	Fetch(ctx context.Context, q Query) (*domain.RawTable, error)
}

// Notifier receives human-readable progress messages
type Notifier interface {
	Notify(ctx context.Context, n events.Notification)
}

// NotifierFunc adapts a function to the Notifier interface
type NotifierFunc func(ctx context.Context, n events.Notification)

// Notify calls f(ctx, n)
func (f NotifierFunc) Notify(ctx context.Context, n events.Notification) {
	f(ctx, n)
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, events.Notification) {}

// StatusError reports a non-2xx answer from the Census API
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("census api returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("census api returned status %d: %s", e.StatusCode, e.Body)
}

// IsRetryable reports whether err is transient: a timeout, a throttling
// answer or a server-side failure. Fetch records the answer on its errors,
// where it surfaces as the "retryable" problem member.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == http.StatusTooManyRequests || statusErr.StatusCode >= 500
	}

	if errors.Is(err, context.DeadlineExceeded) || apperrors.IsType(err, apperrors.ErrTypeTimeout) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// Client calls the Census MARTS time-series endpoint
type Client struct {
	baseURL     string
	userAgent   string
	defaultFrom int
	httpClient  *http.Client
	limiter     *rate.Limiter
	notifier    Notifier
	logger      *slog.Logger
	now         func() time.Time
	meter       metric.Meter
	tracer      trace.Tracer

	requests metric.Int64Counter
	duration metric.Float64Histogram
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the default http client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithNotifier routes status messages to n
func WithNotifier(n Notifier) Option {
	return func(c *Client) {
		if n != nil {
			c.notifier = n
		}
	}
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithNow sets the clock used to default the end year
func WithNow(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// WithMeter records request metrics on m instead of the global meter
func WithMeter(m metric.Meter) Option {
	return func(c *Client) { c.meter = m }
}

// WithLimiter replaces the outbound rate limiter; nil disables limiting
func WithLimiter(l *rate.Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

// NewClient creates a Census client from configuration
func NewClient(cfg config.CensusConfig, opts ...Option) *Client {
	c := &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		userAgent:   cfg.UserAgent,
		defaultFrom: cfg.DefaultFromYear,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		notifier:    nopNotifier{},
		now:         time.Now,
	}
	if cfg.RateLimitRPS > 0 {
		burst := cfg.RateLimitBurst
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), burst)
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.logger == nil {
		c.logger = infrastructure.GetLogger()
	}
	c.logger = infrastructure.WithComponent(c.logger, "census_client")
	if c.meter == nil {
		c.meter = otel.Meter(infrastructure.MeterName)
	}
	c.tracer = otel.Tracer(infrastructure.MeterName + "/census")

	// instrument creation only fails on invalid names
	c.requests, _ = c.meter.Int64Counter("census_requests_total",
		metric.WithDescription("Census API requests by outcome"))
	c.duration, _ = c.meter.Float64Histogram("census_request_duration_seconds",
		metric.WithDescription("Census API request latency"),
		metric.WithUnit("s"))

	return c
}

// URL builds the request URL for q. The key parameter is omitted when blank.
func (c *Client) URL(q Query) string {
	var b strings.Builder
	b.WriteString(c.baseURL)
	b.WriteString("?get=")
	b.WriteString(strings.Join(Fields, ","))
	b.WriteString("&for=us:*")
	fmt.Fprintf(&b, "&time=from+%d+to+%d", q.From, q.To)
	if q.APIKey != "" {
		b.WriteString("&key=")
		b.WriteString(url.QueryEscape(q.APIKey))
	}
	return b.String()
}

// Fetch downloads the MARTS table for the query's year range
func (c *Client) Fetch(ctx context.Context, q Query) (raw *domain.RawTable, err error) {
	q = q.Normalize(c.defaultFrom, c.now())
	if q.To < q.From {
		return nil, apperrors.NewAppValidationError(fmt.Sprintf("end year %d precedes start year %d", q.To, q.From))
	}

	ctx, span := c.tracer.Start(ctx, "census.fetch", trace.WithAttributes(
		attribute.Int("census.from", q.From),
		attribute.Int("census.to", q.To),
		attribute.Bool("census.key_present", q.APIKey != ""),
	))
	start := time.Now()
	defer func() {
		outcome := "success"
		if err != nil {
			outcome = outcomeOf(err)
			infrastructure.RecordError(ctx, err)
			var appErr *apperrors.AppError
			if errors.As(err, &appErr) && appErr.Type != apperrors.ErrTypeValidation {
				appErr.WithContext("retryable", IsRetryable(err))
			}
		}
		attrs := metric.WithAttributes(attribute.String("outcome", outcome))
		c.requests.Add(ctx, 1, attrs)
		c.duration.Record(ctx, time.Since(start).Seconds(), attrs)
		span.End()
	}()

	if q.APIKey == "" {
		c.logger.WarnContext(ctx, "census api key not configured, request may be rejected")
		c.notify(ctx, events.LevelWarning, MsgMissingKey)
	}

	c.notify(ctx, events.LevelInfo, MsgRequestStarted)

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, c.transportError(ctx, err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL(q), nil)
	if err != nil {
		return nil, apperrors.NewConfigError("invalid census base url", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	c.logger.InfoContext(ctx, "requesting MARTS data",
		slog.Int("from", q.From),
		slog.Int("to", q.To),
		slog.Bool("key_present", q.APIKey != ""))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.transportError(ctx, err)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		statusErr := &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
		c.logger.ErrorContext(ctx, "census api request failed",
			slog.Int("status", resp.StatusCode),
			slog.String("body", statusErr.Body))
		return nil, apperrors.NewNetworkError("census api request failed", statusErr).
			WithContext("upstream_status", resp.StatusCode)
	}

	raw, err = decodeTable(resp.Body)
	if err != nil {
		c.logger.ErrorContext(ctx, "census response has unexpected shape", slog.String("error", err.Error()))
		return nil, apperrors.NewParsingError("census response has unexpected shape", err)
	}

	c.logger.InfoContext(ctx, "MARTS data received",
		slog.Int("rows", raw.Len()),
		slog.Int("columns", len(raw.Header)))
	c.notify(ctx, events.LevelSuccess, MsgRequestComplete)

	return raw, nil
}

// transportError classifies a failed round trip. The *url.Error wrapper is
// dropped so the request URL, and with it the api key, never reaches callers.
func (c *Client) transportError(ctx context.Context, err error) error {
	var netErr net.Error
	timeout := errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout())

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		err = fmt.Errorf("%s %s: %w", urlErr.Op, c.baseURL, urlErr.Err)
	}

	if timeout {
		c.logger.ErrorContext(ctx, "census api request timed out", slog.String("error", err.Error()))
		return apperrors.NewTimeoutError("census api request timed out", err)
	}
	c.logger.ErrorContext(ctx, "census api unreachable", slog.String("error", err.Error()))
	return apperrors.NewNetworkError("census api unreachable", err)
}

func (c *Client) notify(ctx context.Context, level events.Level, msg string) {
	c.notifier.Notify(ctx, events.Notification{
		Level:   level,
		Message: msg,
		Source:  "census",
		TraceID: infrastructure.GetTraceID(ctx),
		Time:    c.now(),
	})
}

// decodeTable parses the API's array-of-arrays body. The first row is the
// header; null cells become empty strings.
func decodeTable(r io.Reader) (*domain.RawTable, error) {
	var cells [][]*string
	if err := json.NewDecoder(r).Decode(&cells); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty response body")
		}
		return nil, fmt.Errorf("decode json: %w", err)
	}
	if len(cells) == 0 {
		return nil, errors.New("response is an empty array")
	}
	if len(cells) == 1 {
		return nil, errors.New("response has a header but no data rows")
	}

	header := flatten(cells[0])
	if len(header) == 0 {
		return nil, errors.New("response header is empty")
	}

	rows := make([][]string, 0, len(cells)-1)
	for i, row := range cells[1:] {
		if len(row) != len(header) {
			return nil, fmt.Errorf("row %d has %d cells, header has %d", i+1, len(row), len(header))
		}
		rows = append(rows, flatten(row))
	}

	return &domain.RawTable{Header: header, Rows: rows}, nil
}

func flatten(row []*string) []string {
	out := make([]string, len(row))
	for i, cell := range row {
		if cell != nil {
			out[i] = *cell
		}
	}
	return out
}

func outcomeOf(err error) string {
	var statusErr *StatusError
	switch {
	case errors.As(err, &statusErr):
		return "status_" + strconv.Itoa(statusErr.StatusCode)
	case apperrors.IsType(err, apperrors.ErrTypeTimeout):
		return "timeout"
	case apperrors.IsType(err, apperrors.ErrTypeParsing):
		return "bad_payload"
	case apperrors.IsType(err, apperrors.ErrTypeValidation):
		return "invalid_query"
	default:
		return "network_error"
	}
}
