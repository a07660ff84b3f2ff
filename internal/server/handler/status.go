package handler

import (
	"net/http"
	"time"

	"github.com/bahbah94/Orbex/internal/ingest"
)

// StatusHandler serves runtime status for dashboards and monitoring.
type StatusHandler struct {
	mode      string
	symbol    string
	startedAt time.Time

	// All probes may be nil; a server-mode process has no chain feed.
	collectorStats func() ingest.Stats
	chainConnected func() bool
	wsClients      func() int
}

// NewStatusHandler creates a StatusHandler. The probe funcs may be nil when
// the corresponding subsystem does not run in this process.
func NewStatusHandler(
	mode, symbol string,
	startedAt time.Time,
	collectorStats func() ingest.Stats,
	chainConnected func() bool,
	wsClients func() int,
) *StatusHandler {
	return &StatusHandler{
		mode:           mode,
		symbol:         symbol,
		startedAt:      startedAt,
		collectorStats: collectorStats,
		chainConnected: chainConnected,
		wsClients:      wsClients,
	}
}

// GetStatus responds with the process mode, uptime, and ingestion progress.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"status":         "ok",
		"mode":           h.mode,
		"symbol":         h.symbol,
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
	}

	if h.wsClients != nil {
		body["ws_clients"] = h.wsClients()
	}

	if h.collectorStats != nil {
		stats := h.collectorStats()
		chain := map[string]any{
			"last_block":     stats.LastBlock,
			"blocks_seen":    stats.BlocksSeen,
			"events_applied": stats.EventsApplied,
			"events_skipped": stats.EventsSkipped,
		}
		if !stats.LastEventAt.IsZero() {
			chain["last_event_at"] = stats.LastEventAt.UTC().Format(time.RFC3339)
		}
		if h.chainConnected != nil {
			chain["connected"] = h.chainConnected()
		}
		body["chain"] = chain
	}

	writeJSON(w, http.StatusOK, body)
}
