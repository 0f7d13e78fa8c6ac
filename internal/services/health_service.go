package services

import (
	"context"
	"log/slog"
	"runtime"
	"time"

	"nebcli/internal/session"
)

// HealthService provides health check functionality
type HealthService struct {
	version   string
	sessions  *session.Store
	startTime time.Time
	logger    *slog.Logger
}

// HealthStatus represents the health status response
type HealthStatus struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version"`
	Uptime    string                 `json:"uptime"`
	Sessions  int                    `json:"sessions"`
	Runtime   map[string]interface{} `json:"runtime,omitempty"`
}

// NewHealthService creates a new health service
func NewHealthService(version string, sessions *session.Store, logger *slog.Logger) *HealthService {
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthService{
		version:   version,
		sessions:  sessions,
		startTime: time.Now(),
		logger:    logger.With(slog.String("service", "health")),
	}
}

// Check returns the current health status
func (s *HealthService) Check(ctx context.Context) *HealthStatus {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	return &HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Version:   s.version,
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
		Sessions:  s.sessions.Count(),
		Runtime: map[string]interface{}{
			"go_version":   runtime.Version(),
			"goroutines":   runtime.NumGoroutine(),
			"alloc_bytes":  mem.Alloc,
			"num_gc":       mem.NumGC,
		},
	}
}

// VersionInfo returns build version details.
func (s *HealthService) VersionInfo() map[string]string {
	return map[string]string{
		"version":    s.version,
		"go_version": runtime.Version(),
	}
}

// Ready reports whether the service can accept traffic.
func (s *HealthService) Ready(ctx context.Context) bool {
	return true
}
