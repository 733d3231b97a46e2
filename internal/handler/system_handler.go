package handler

import (
	"context"
	"net/http"
	"runtime"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-assessment/internal/response"
)

const healthTimeout = 2 * time.Second

// HealthCheck checks one dependency.
type HealthCheck func(ctx context.Context) error

// QueueInspector reports the backlog of the worker queues.
type QueueInspector interface {
	QueueDepths(ctx context.Context) (map[string]int64, error)
}

// SystemHandler serves liveness and operational status.
type SystemHandler struct {
	checks    map[string]HealthCheck
	queues    QueueInspector
	startTime time.Time
	log       zerolog.Logger
}

// NewSystemHandler creates a new SystemHandler.
func NewSystemHandler(checks map[string]HealthCheck, queues QueueInspector, log zerolog.Logger) *SystemHandler {
	return &SystemHandler{
		checks:    checks,
		queues:    queues,
		startTime: time.Now(),
		log:       log.With().Str("component", "system_handler").Logger(),
	}
}

// Health godoc
// GET /health
// 200 when every dependency answers, 503 otherwise.
func (h *SystemHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := http.StatusOK
	results := make(map[string]string, len(h.checks))
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			h.log.Warn().Err(err).Str("check", name).Msg("Health check failed")
			results[name] = "down"
			status = http.StatusServiceUnavailable
			continue
		}
		results[name] = "up"
	}

	overall := "ok"
	if status != http.StatusOK {
		overall = "degraded"
	}
	response.Success(c, status, gin.H{"status": overall, "checks": results})
}

type systemStatus struct {
	Uptime     string           `json:"uptime"`
	Goroutines int              `json:"goroutines"`
	HeapAlloc  uint64           `json:"heap_alloc"`
	NumGC      uint32           `json:"num_gc"`
	GoVersion  string           `json:"go_version"`
	Queues     map[string]int64 `json:"queues"`
}

// Status godoc
// GET /api/v1/admin/system/status
// Returns runtime figures and worker queue backlogs.
func (h *SystemHandler) Status(c *gin.Context) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	st := systemStatus{
		Uptime:     time.Since(h.startTime).Round(time.Second).String(),
		Goroutines: runtime.NumGoroutine(),
		HeapAlloc:  mem.HeapAlloc,
		NumGC:      mem.NumGC,
		GoVersion:  runtime.Version(),
	}

	if h.queues != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
		defer cancel()
		depths, err := h.queues.QueueDepths(ctx)
		if err != nil {
			h.log.Warn().Err(err).Msg("Failed to read queue depths")
		}
		st.Queues = depths
	}

	response.Success(c, http.StatusOK, st)
}
