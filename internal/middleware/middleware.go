package middleware

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"net"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	apierrors "retailsales/internal/errors"
	"retailsales/internal/infrastructure"
)

const maxRequestIDLen = 64

// RealIP rewrites RemoteAddr from X-Real-IP or X-Forwarded-For
var RealIP = middleware.RealIP

// RequestID tags every request with an id, reusing a sane incoming
// X-Request-ID. Install it first so every later middleware can log it.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(middleware.RequestIDHeader)
		if !validRequestID(id) {
			id = uuid.NewString()
		}
		w.Header().Set(middleware.RequestIDHeader, id)

		ctx := context.WithValue(r.Context(), middleware.RequestIDKey, id)

		traceID := id
		if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
			traceID = sc.TraceID().String()
		}
		ctx = infrastructure.WithTraceID(ctx, traceID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLen {
		return false
	}
	for _, c := range id {
		if c < '!' || c > '~' {
			return false
		}
	}
	return true
}

// ClientIDParam is the query parameter naming the page's notification socket
const ClientIDParam = "client"

// NotificationTarget scopes status notifications to the websocket client
// named by the client query parameter. Unusable ids are ignored.
func NotificationTarget(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := r.URL.Query().Get(ClientIDParam); validRequestID(id) {
			r = r.WithContext(infrastructure.WithClientID(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}

// GetRequestID returns the id assigned by RequestID, falling back to the
// trace id for contexts that never passed through it.
func GetRequestID(ctx context.Context) string {
	if id := middleware.GetReqID(ctx); id != "" {
		return id
	}
	return infrastructure.GetTraceID(ctx)
}

// StructuredLogger writes one line per finished request. Downloads are
// flagged so workbook traffic is easy to pick out.
func StructuredLogger(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			level := slog.LevelInfo
			if status >= 500 {
				level = slog.LevelError
			} else if status >= 400 {
				level = slog.LevelWarn
			}

			logger.LogAttrs(r.Context(), level, "request completed",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("query", redactQuery(r)),
				slog.Int("status", status),
				slog.Int("bytes", ww.BytesWritten()),
				slog.Bool("download", ww.Header().Get("Content-Disposition") != ""),
				slog.String("remote_addr", r.RemoteAddr),
				slog.Duration("duration", time.Since(start)))
		})
	}
}

// redactQuery hides the census key if a caller passed one in the URL
func redactQuery(r *http.Request) string {
	if r.URL.RawQuery == "" {
		return ""
	}
	return strings.TrimPrefix(infrastructure.RedactKey("?"+r.URL.RawQuery), "?")
}

func writeProblem(w http.ResponseWriter, r *http.Request, status int, typ, title, detail string) {
	apierrors.NewProblemDetails(status, typ, title, detail, r.URL.Path).
		WithExtension("trace_id", infrastructure.GetTraceID(r.Context())).
		Write(w)
}

// Recoverer turns a handler panic into a 500 problem response.
// http.ErrAbortHandler is re-raised so net/http can drop the connection.
func Recoverer(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rvr := recover()
				if rvr == nil {
					return
				}
				if rvr == http.ErrAbortHandler {
					panic(rvr)
				}
				logger.ErrorContext(r.Context(), "panic recovered",
					slog.Any("panic", rvr),
					slog.String("stack", string(debug.Stack())),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path))
				writeProblem(w, r, http.StatusInternalServerError, apierrors.TypeInternal,
					"Internal Server Error", "An unexpected error occurred")
			}()

			next.ServeHTTP(w, r)
		})
	}
}

const (
	limiterIdle       = 10 * time.Minute
	limiterSweepEvery = time.Minute
)

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter gives every client address its own token bucket so one
// noisy browser cannot burn the shared Census quota for everyone.
type RateLimiter struct {
	rps    rate.Limit
	burst  int
	logger *slog.Logger
	now    func() time.Time

	mu        sync.Mutex
	clients   map[string]*clientLimiter
	lastSweep time.Time
}

// NewRateLimiter allows rps requests per second per client, bursting to burst
func NewRateLimiter(rps float64, burst int, logger *slog.Logger) *RateLimiter {
	return &RateLimiter{
		rps:     rate.Limit(rps),
		burst:   burst,
		logger:  logger,
		now:     time.Now,
		clients: make(map[string]*clientLimiter),
	}
}

func (rl *RateLimiter) allow(client string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if now.Sub(rl.lastSweep) > limiterSweepEvery {
		for k, c := range rl.clients {
			if now.Sub(c.lastSeen) > limiterIdle {
				delete(rl.clients, k)
			}
		}
		rl.lastSweep = now
	}

	c, ok := rl.clients[client]
	if !ok {
		c = &clientLimiter{limiter: rate.NewLimiter(rl.rps, rl.burst)}
		rl.clients[client] = c
	}
	c.lastSeen = now
	return c.limiter.AllowN(now, 1)
}

// retryAfter is the whole number of seconds until one token refills
func (rl *RateLimiter) retryAfter() int {
	if rl.rps <= 0 || rl.rps == rate.Inf {
		return 1
	}
	return int(math.Floor(1/float64(rl.rps))) + 1
}

// Handler rejects over-limit requests with 429 and a Retry-After header
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client := GetRealIP(r)
		if host, _, err := net.SplitHostPort(client); err == nil {
			client = host
		}
		if rl.allow(client) {
			next.ServeHTTP(w, r)
			return
		}

		rl.logger.WarnContext(r.Context(), "rate limit exceeded",
			slog.String("client", client),
			slog.String("path", r.URL.Path))
		w.Header().Set("Retry-After", strconv.Itoa(rl.retryAfter()))
		writeProblem(w, r, http.StatusTooManyRequests, apierrors.TypeRateLimit,
			"Too Many Requests", "Rate limit exceeded")
	})
}

// Timeout bounds the request context. Handlers observe the deadline and the
// error handler turns context.DeadlineExceeded into a 504.
func Timeout(timeout time.Duration, logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()

			next.ServeHTTP(w, r.WithContext(ctx))

			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				logger.WarnContext(r.Context(), "request deadline exceeded",
					slog.String("path", r.URL.Path),
					slog.Duration("timeout", timeout))
			}
		})
	}
}

// CORSConfig holds CORS configuration. Empty lists fall back to what the
// retail endpoints need.
type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
	ExposedHeaders []string
	MaxAge         int
	Logger         *slog.Logger
}

func orDefault(v []string, def ...string) string {
	if len(v) == 0 {
		v = def
	}
	return strings.Join(v, ", ")
}

// CORS answers preflights with 204 and echoes allowed origins. An empty
// AllowedOrigins list allows any origin.
func CORS(cfg CORSConfig) func(next http.Handler) http.Handler {
	methods := orDefault(cfg.AllowedMethods, http.MethodGet, http.MethodOptions)
	headers := orDefault(cfg.AllowedHeaders, "Accept", "Content-Type", middleware.RequestIDHeader)
	exposed := orDefault(cfg.ExposedHeaders, "Content-Disposition", middleware.RequestIDHeader)
	maxAge := cfg.MaxAge
	if maxAge == 0 {
		maxAge = 300
	}

	originAllowed := func(origin string) bool {
		if len(cfg.AllowedOrigins) == 0 {
			return true
		}
		for _, o := range cfg.AllowedOrigins {
			if o == "*" || strings.EqualFold(o, origin) {
				return true
			}
		}
		return false
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			allowed := originAllowed(origin)

			h := w.Header()
			if allowed && origin != "" {
				h.Set("Access-Control-Allow-Origin", origin)
				h.Add("Vary", "Origin")
			}
			h.Set("Access-Control-Allow-Methods", methods)
			h.Set("Access-Control-Allow-Headers", headers)
			h.Set("Access-Control-Expose-Headers", exposed)
			h.Set("Access-Control-Max-Age", strconv.Itoa(maxAge))

			if r.Method != http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}
			if cfg.Logger != nil {
				cfg.Logger.DebugContext(r.Context(), "CORS preflight",
					slog.String("origin", origin),
					slog.Bool("allowed", allowed))
			}
			w.WriteHeader(http.StatusNoContent)
		})
	}
}

// securityHeaders are set on every page and API response. The page loads
// no third-party assets; it only talks back to this host over HTTP and
// the notification socket.
var securityHeaders = [][2]string{
	{"X-Content-Type-Options", "nosniff"},
	{"X-Frame-Options", "DENY"},
	{"Referrer-Policy", "same-origin"},
	{"Content-Security-Policy", "default-src 'self'; script-src 'self' 'unsafe-inline'; style-src 'self' 'unsafe-inline'; img-src 'self' data:; connect-src 'self' ws: wss:; frame-ancestors 'none'"},
}

// SecurityHeaders adds browser hardening headers, plus HSTS over TLS
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		for _, kv := range securityHeaders {
			h.Set(kv[0], kv[1])
		}
		if r.TLS != nil {
			h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		next.ServeHTTP(w, r)
	})
}

// GetRealIP returns the first X-Forwarded-For hop, then X-Real-IP, then
// RemoteAddr.
func GetRealIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	return r.RemoteAddr
}
