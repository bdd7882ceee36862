package services

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"retailsales/internal/census"
	"retailsales/internal/lookup"
	ws "retailsales/internal/websocket"
	"retailsales/pkg/contracts"
)

// CacheStatsSource reports fetch cache counters
type CacheStatsSource interface {
	Stats() census.CacheStats
}

// HubStatsSource reports websocket hub counters
type HubStatsSource interface {
	Stats() ws.HubStats
}

// HealthService provides health check functionality
type HealthService struct {
	version    string
	buildTime  string
	categories *lookup.Categories
	cache      CacheStatsSource
	hub        HubStatsSource
	startTime  time.Time
	logger     *slog.Logger
}

// HealthStatus represents the health status response
type HealthStatus struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version"`
	Runtime   map[string]interface{} `json:"runtime,omitempty"`
	Services  map[string]interface{} `json:"services,omitempty"`
}

// ServiceHealth represents individual service health
type ServiceHealth struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Uptime  string `json:"uptime,omitempty"`
}

// SystemStats represents process and pipeline statistics
type SystemStats struct {
	UptimeSeconds    float64           `json:"uptime_seconds"`
	Categories       int               `json:"categories"`
	Cache            census.CacheStats `json:"cache"`
	WebSocketClients int               `json:"websocket_clients"`
	MessagesSent     int64             `json:"messages_sent"`
	MessagesDropped  int64             `json:"messages_dropped"`
	GoVersion        string            `json:"go_version"`
	OS               string            `json:"os"`
	Arch             string            `json:"arch"`
}

// NewHealthService creates a new health service. cache and hub may be nil.
func NewHealthService(version, buildTime string, categories *lookup.Categories, cache CacheStatsSource, hub HubStatsSource, logger *slog.Logger) *HealthService {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("HealthService initialized",
		slog.String("version", version),
		slog.String("build_time", buildTime))

	return &HealthService{
		version:    version,
		buildTime:  buildTime,
		categories: categories,
		cache:      cache,
		hub:        hub,
		startTime:  time.Now(),
		logger:     logger,
	}
}

// HealthCheck returns the overall health status
func (hs *HealthService) HealthCheck(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now(),
		Version:   hs.version,
		Runtime: map[string]interface{}{
			"uptime":     time.Since(hs.startTime).String(),
			"go_version": runtime.Version(),
			"goroutines": runtime.NumGoroutine(),
		},
		Services: map[string]interface{}{
			"lookup":    hs.checkLookupHealth(),
			"cache":     hs.checkCacheHealth(),
			"websocket": hs.checkWebSocketHealth(),
		},
	}

	for _, service := range status.Services {
		if sh, ok := service.(ServiceHealth); ok && sh.Status != "ready" {
			status.Status = "degraded"
			break
		}
	}

	hs.logger.DebugContext(ctx, "health check completed",
		slog.String("status", status.Status),
		slog.Time("timestamp", status.Timestamp))

	return status
}

// ReadinessCheck reports whether the process can serve datasets
func (hs *HealthService) ReadinessCheck(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:    "ready",
		Timestamp: time.Now(),
		Version:   hs.version,
		Services: map[string]interface{}{
			"lookup": hs.checkLookupHealth(),
		},
	}

	if sh := status.Services["lookup"].(ServiceHealth); sh.Status != "ready" {
		status.Status = "not_ready"
	}

	return status
}

// LivenessCheck returns liveness status
func (hs *HealthService) LivenessCheck(ctx context.Context) HealthStatus {
	return HealthStatus{
		Status:    "alive",
		Timestamp: time.Now(),
		Version:   hs.version,
		Runtime: map[string]interface{}{
			"uptime":     time.Since(hs.startTime).Seconds(),
			"go_version": runtime.Version(),
			"goroutines": runtime.NumGoroutine(),
		},
	}
}

// Version returns version information
func (hs *HealthService) Version() map[string]interface{} {
	result := map[string]interface{}{
		"version":      hs.version,
		"revision":     contracts.Revision(),
		"api":          contracts.APIVersion,
		"workbook":     contracts.WorkbookLayout,
		"go_version":   runtime.Version(),
		"os":           runtime.GOOS,
		"arch":         runtime.GOARCH,
		"uptime":       time.Since(hs.startTime).Seconds(),
		"start_time":   hs.startTime.Format(time.RFC3339),
		"current_time": time.Now().Format(time.RFC3339),
	}
	if hs.buildTime != "" {
		result["build_time"] = hs.buildTime
	}
	return result
}

// Uptime returns how long the service has been running
func (hs *HealthService) Uptime() time.Duration {
	return time.Since(hs.startTime)
}

// SystemStats returns process and pipeline statistics
func (hs *HealthService) SystemStats(ctx context.Context) SystemStats {
	stats := SystemStats{
		UptimeSeconds: time.Since(hs.startTime).Seconds(),
		GoVersion:     runtime.Version(),
		OS:            runtime.GOOS,
		Arch:          runtime.GOARCH,
	}
	if hs.categories != nil {
		stats.Categories = hs.categories.Len()
	}
	if hs.cache != nil {
		stats.Cache = hs.cache.Stats()
	}
	if hs.hub != nil {
		hub := hs.hub.Stats()
		stats.WebSocketClients = hub.Clients
		stats.MessagesSent = hub.Sent
		stats.MessagesDropped = hub.Dropped
	}
	return stats
}

func (hs *HealthService) checkLookupHealth() ServiceHealth {
	if hs.categories == nil || hs.categories.Len() == 0 {
		return ServiceHealth{
			Status:  "not_ready",
			Message: "category lookup not loaded",
		}
	}
	return ServiceHealth{
		Status:  "ready",
		Message: fmt.Sprintf("%d categories loaded", hs.categories.Len()),
	}
}

func (hs *HealthService) checkCacheHealth() ServiceHealth {
	if hs.cache == nil {
		return ServiceHealth{Status: "ready", Message: "cache disabled"}
	}
	st := hs.cache.Stats()
	return ServiceHealth{
		Status:  "ready",
		Message: fmt.Sprintf("%d entries, %d hits, %d misses", st.Entries, st.Hits, st.Misses),
	}
}

// checkWebSocketHealth treats the hub as healthy while it exists
func (hs *HealthService) checkWebSocketHealth() ServiceHealth {
	if hs.hub == nil {
		return ServiceHealth{Status: "ready", Message: "websocket disabled"}
	}
	return ServiceHealth{
		Status:  "ready",
		Message: fmt.Sprintf("%d clients connected", hs.hub.Stats().Clients),
		Uptime:  time.Since(hs.startTime).String(),
	}
}

// GetDetailedHealth returns comprehensive health information
func (hs *HealthService) GetDetailedHealth(ctx context.Context) map[string]interface{} {
	return map[string]interface{}{
		"health":    hs.HealthCheck(ctx),
		"readiness": hs.ReadinessCheck(ctx),
		"liveness":  hs.LivenessCheck(ctx),
		"stats":     hs.SystemStats(ctx),
	}
}
