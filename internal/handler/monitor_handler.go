package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-assessment/internal/model"
	"github.com/stemsi/exstem-assessment/internal/response"
	"github.com/stemsi/exstem-assessment/internal/service"
)

const (
	refreshInterval   = 15 * time.Second
	keepAliveInterval = 30 * time.Second
	refreshTimeout    = 5 * time.Second // a slow query must not stall the SSE loop
)

// MonitorSnapshotter builds the live session table.
type MonitorSnapshotter interface {
	Snapshot(ctx context.Context) (*service.MonitorSnapshot, error)
}

// MonitorFeed streams raw monitor events. A nil sessionID subscribes to
// every session. The returned func releases the subscription.
type MonitorFeed interface {
	Subscribe(ctx context.Context, sessionID *uuid.UUID) (<-chan string, func())
}

// MonitorHandler streams live session activity to admins over SSE.
type MonitorHandler struct {
	monitor   MonitorSnapshotter
	feed      MonitorFeed
	log       zerolog.Logger
	refresh   time.Duration
	keepAlive time.Duration
}

// NewMonitorHandler creates a new MonitorHandler.
func NewMonitorHandler(monitor MonitorSnapshotter, feed MonitorFeed, log zerolog.Logger) *MonitorHandler {
	return &MonitorHandler{
		monitor:   monitor,
		feed:      feed,
		log:       log.With().Str("component", "monitor_handler").Logger(),
		refresh:   refreshInterval,
		keepAlive: keepAliveInterval,
	}
}

// MonitorSSE godoc
// GET /api/v1/admin/monitor?session_id=
// Sends a snapshot of live sessions, then forwards every published event.
// Snapshots are refreshed periodically while events keep flowing.
func (h *MonitorHandler) MonitorSSE(c *gin.Context) {
	var filter *uuid.UUID
	if raw := c.Query("session_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
			return
		}
		filter = &id
	}

	reqCtx := c.Request.Context()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")

	// Subscribe before the snapshot so nothing published in between is lost.
	events, unsubscribe := h.feed.Subscribe(reqCtx, filter)
	defer unsubscribe()

	h.sendSnapshot(c, reqCtx, "snapshot", filter)

	keepAliveTicker := time.NewTicker(h.keepAlive)
	defer keepAliveTicker.Stop()
	refreshTicker := time.NewTicker(h.refresh)
	defer refreshTicker.Stop()

	h.log.Info().Bool("filtered", filter != nil).Msg("Admin attached to live monitor SSE")

	// Refreshes are skipped until something happens.
	dirty := false
	for {
		select {
		case <-reqCtx.Done():
			h.log.Info().Msg("Admin disconnected from live monitor SSE")
			return

		case payload, ok := <-events:
			if !ok {
				return
			}
			// Forward the published JSON as is.
			_, _ = c.Writer.WriteString("data: " + payload + "\n\n")
			c.Writer.Flush()
			dirty = true

		case <-refreshTicker.C:
			if !dirty {
				continue
			}
			dirty = false
			h.sendSnapshot(c, reqCtx, "refresh", filter)

		case <-keepAliveTicker.C:
			_, _ = c.Writer.WriteString("data: {\"type\":\"ping\"}\n\n")
			c.Writer.Flush()
		}
	}
}

func (h *MonitorHandler) sendSnapshot(c *gin.Context, parent context.Context, kind string, filter *uuid.UUID) {
	ctx, cancel := context.WithTimeout(parent, refreshTimeout)
	defer cancel()

	snap, err := h.monitor.Snapshot(ctx)
	if err != nil {
		h.log.Warn().Err(err).Str("kind", kind).Msg("Failed to build monitor snapshot")
		return
	}

	sessions := snap.Sessions
	if filter != nil {
		sessions = make([]model.LiveSession, 0, 1)
		for _, s := range snap.Sessions {
			if s.SessionID == *filter {
				sessions = append(sessions, s)
			}
		}
	}

	payload, err := json.Marshal(gin.H{
		"type": kind,
		"data": gin.H{
			"stats": gin.H{
				"total_in_progress": len(snap.Sessions),
				"total_cheats":      snap.TotalCheats,
			},
			"sessions": sessions,
		},
	})
	if err != nil {
		h.log.Warn().Err(err).Str("kind", kind).Msg("Failed to encode monitor snapshot")
		return
	}

	_, _ = c.Writer.WriteString("data: " + string(payload) + "\n\n")
	c.Writer.Flush()
}
