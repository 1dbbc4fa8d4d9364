package handlers

import (
	"context"
	"runtime"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/jmylchreest/camrelay/internal/stream"
)

// HealthConfig is the configuration slice surfaced by the health
// endpoint.
type HealthConfig struct {
	MaxStreams       int  `json:"-"`
	RecordingEnabled bool `json:"-"`
	TimeoutSeconds   int  `json:"timeout_seconds"`
	MaxBufferFrames  int  `json:"max_buffer_frames"`
	RetentionDays    int  `json:"retention_days"`
}

// HealthHandler handles the health check endpoint.
type HealthHandler struct {
	version   string
	startTime time.Time
	streams   *stream.Manager
	cfg       HealthConfig
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(version string, streams *stream.Manager, cfg HealthConfig) *HealthHandler {
	return &HealthHandler{
		version:   version,
		startTime: time.Now(),
		streams:   streams,
		cfg:       cfg,
	}
}

// SystemInfo carries host-level metrics.
type SystemInfo struct {
	CPUCores          int     `json:"cpu_cores"`
	Load1Min          float64 `json:"load_1min"`
	Load5Min          float64 `json:"load_5min"`
	Load15Min         float64 `json:"load_15min"`
	MemoryUsedPercent float64 `json:"memory_used_percent"`
	Goroutines        int     `json:"goroutines"`
}

// HealthResponse is the health endpoint body.
type HealthResponse struct {
	Status           string       `json:"status"`
	Version          string       `json:"version"`
	Timestamp        string       `json:"timestamp"`
	UptimeSeconds    float64      `json:"uptime_seconds"`
	ActiveStreams    int          `json:"active_streams"`
	MaxStreams       int          `json:"max_streams"`
	RecordingEnabled bool         `json:"recording_enabled"`
	Config           HealthConfig `json:"config"`
	System           SystemInfo   `json:"system"`
}

// HealthOutput is the output for the health check endpoint.
type HealthOutput struct {
	Body HealthResponse
}

// Register registers the health route with the API.
func (h *HealthHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getHealth",
		Method:      "GET",
		Path:        "/health",
		Summary:     "Health check",
		Description: "Returns service status, stream counts, and system metrics",
		Tags:        []string{"System"},
	}, h.GetHealth)
}

// GetHealth returns the health status of the service.
func (h *HealthHandler) GetHealth(ctx context.Context, _ *struct{}) (*HealthOutput, error) {
	now := time.Now()

	return &HealthOutput{
		Body: HealthResponse{
			Status:           "healthy",
			Version:          h.version,
			Timestamp:        now.UTC().Format(time.RFC3339),
			UptimeSeconds:    now.Sub(h.startTime).Seconds(),
			ActiveStreams:    h.streams.Count(),
			MaxStreams:       h.cfg.MaxStreams,
			RecordingEnabled: h.cfg.RecordingEnabled,
			Config:           h.cfg,
			System:           h.systemInfo(),
		},
	}, nil
}

func (h *HealthHandler) systemInfo() SystemInfo {
	info := SystemInfo{
		CPUCores:   runtime.NumCPU(),
		Goroutines: runtime.NumGoroutine(),
	}

	if loadAvg, err := load.Avg(); err == nil && loadAvg != nil {
		info.Load1Min = loadAvg.Load1
		info.Load5Min = loadAvg.Load5
		info.Load15Min = loadAvg.Load15
	}
	if vm, err := mem.VirtualMemory(); err == nil && vm != nil {
		info.MemoryUsedPercent = vm.UsedPercent
	}
	return info
}
