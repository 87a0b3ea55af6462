package health

import (
	"net/http"
	"runtime"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/eleven-am/voice-capture/internal/delivery"
	"github.com/eleven-am/voice-capture/internal/peripheral"
)

type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

type ComponentStatus struct {
	Status Status `json:"status"`
	Detail string `json:"detail,omitempty"`
}

type RuntimeStats struct {
	Goroutines         int    `json:"goroutines"`
	MemoryAllocMB      uint64 `json:"memory_alloc_mb"`
	MemoryTotalAllocMB uint64 `json:"memory_total_alloc_mb"`
	MemorySysMB        uint64 `json:"memory_sys_mb"`
	NumGC              uint32 `json:"num_gc"`
}

type CaptureStats struct {
	ActiveSource    string `json:"active_source"`
	FrameOverruns   uint64 `json:"frame_overruns"`
	PeripheralState string `json:"peripheral_state,omitempty"`
}

type DeliveryStats struct {
	State            string `json:"state"`
	QueueDepth       int    `json:"queue_depth"`
	PersistedBacklog int    `json:"persisted_backlog"`
}

type Stats struct {
	Capture  CaptureStats  `json:"capture"`
	Delivery DeliveryStats `json:"delivery"`
	Runtime  RuntimeStats  `json:"runtime"`
}

type HealthResponse struct {
	Status        Status                     `json:"status"`
	Timestamp     time.Time                  `json:"timestamp"`
	Version       string                     `json:"version"`
	UptimeSeconds int64                      `json:"uptime_seconds"`
	Stats         Stats                      `json:"stats"`
	Components    map[string]ComponentStatus `json:"components"`
}

// PipelineInfo is the slice of the pipeline the handler reads.
type PipelineInfo interface {
	ActiveSource() string
	Overruns() uint64
}

// EngineInfo is the slice of the delivery engine the handler reads.
type EngineInfo interface {
	State() delivery.State
	QueueDepth() int
	Backlog() int
}

// PeripheralInfo reports the wearable connection state. Nil when the agent
// runs microphone-only.
type PeripheralInfo interface {
	State() peripheral.ConnState
}

type Handler struct {
	pipe      PipelineInfo
	engine    EngineInfo
	perp      PeripheralInfo
	version   string
	startTime time.Time
}

func NewHandler(pipe PipelineInfo, engine EngineInfo, perp PeripheralInfo, version string) *Handler {
	return &Handler{
		pipe:      pipe,
		engine:    engine,
		perp:      perp,
		version:   version,
		startTime: time.Now(),
	}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Liveness)
	e.GET("/health/ready", h.Readiness)
}

func (h *Handler) Liveness(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

func (h *Handler) Readiness(c echo.Context) error {
	components := map[string]ComponentStatus{
		"capture":  h.checkCapture(),
		"delivery": h.checkDelivery(),
	}
	if h.perp != nil {
		components["peripheral"] = h.checkPeripheral()
	}

	overallStatus := h.computeOverallStatus(components)

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	stats := Stats{
		Capture: CaptureStats{
			ActiveSource:  h.pipe.ActiveSource(),
			FrameOverruns: h.pipe.Overruns(),
		},
		Delivery: DeliveryStats{
			State:            string(h.engine.State()),
			QueueDepth:       h.engine.QueueDepth(),
			PersistedBacklog: h.engine.Backlog(),
		},
		Runtime: RuntimeStats{
			Goroutines:         runtime.NumGoroutine(),
			MemoryAllocMB:      memStats.Alloc / 1024 / 1024,
			MemoryTotalAllocMB: memStats.TotalAlloc / 1024 / 1024,
			MemorySysMB:        memStats.Sys / 1024 / 1024,
			NumGC:              memStats.NumGC,
		},
	}
	if h.perp != nil {
		stats.Capture.PeripheralState = h.perp.State().String()
	}

	resp := HealthResponse{
		Status:        overallStatus,
		Timestamp:     time.Now().UTC(),
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Stats:         stats,
		Components:    components,
	}

	statusCode := http.StatusOK
	if overallStatus == StatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}
	return c.JSON(statusCode, resp)
}

// checkCapture is unhealthy only when no source at all is feeding the
// pipeline; running on the fallback microphone is merely degraded.
func (h *Handler) checkCapture() ComponentStatus {
	active := h.pipe.ActiveSource()
	switch {
	case active == "":
		return ComponentStatus{Status: StatusUnhealthy, Detail: "no capture source active"}
	case h.perp != nil && active != "" && h.perp.State() != peripheral.StateConnected:
		return ComponentStatus{Status: StatusDegraded, Detail: "running on fallback source: " + active}
	default:
		return ComponentStatus{Status: StatusHealthy, Detail: active}
	}
}

// checkDelivery treats offline as degraded: chunks buffer and persist, so
// nothing is lost while the sink is unreachable.
func (h *Handler) checkDelivery() ComponentStatus {
	if h.engine.State() == delivery.StateOffline {
		return ComponentStatus{Status: StatusDegraded, Detail: "sink unreachable, buffering"}
	}
	return ComponentStatus{Status: StatusHealthy}
}

func (h *Handler) checkPeripheral() ComponentStatus {
	switch h.perp.State() {
	case peripheral.StateConnected:
		return ComponentStatus{Status: StatusHealthy}
	case peripheral.StateConnecting:
		return ComponentStatus{Status: StatusDegraded, Detail: "connecting"}
	default:
		return ComponentStatus{Status: StatusDegraded, Detail: "disconnected"}
	}
}

func (h *Handler) computeOverallStatus(components map[string]ComponentStatus) Status {
	overall := StatusHealthy
	for _, cs := range components {
		switch cs.Status {
		case StatusUnhealthy:
			return StatusUnhealthy
		case StatusDegraded:
			overall = StatusDegraded
		}
	}
	return overall
}
