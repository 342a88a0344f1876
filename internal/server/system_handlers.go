package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/aggregator/internal/database"
)

// SystemHandlers serves the system monitoring endpoints.
type SystemHandlers struct {
	log          zerolog.Logger
	dataDir      string
	startupTime  time.Time
	aggregatorDB *database.DB
	cacheDB      *database.DB
}

// NewSystemHandlers creates the system handlers.
func NewSystemHandlers(log zerolog.Logger, dataDir string, aggregatorDB, cacheDB *database.DB) *SystemHandlers {
	return &SystemHandlers{
		log:          log.With().Str("component", "system_handlers").Logger(),
		dataDir:      dataDir,
		startupTime:  time.Now(),
		aggregatorDB: aggregatorDB,
		cacheDB:      cacheDB,
	}
}

// handleHealth is the bare liveness probe.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "healthy",
		"service": "aggregator",
	})
}

// HandleSystemHealth returns process and database health.
// GET /api/system/health
func (h *SystemHandlers) HandleSystemHealth(w http.ResponseWriter, r *http.Request) {
	cpuPercent, ramPercent := h.systemStats()

	dbStatus := "ok"
	if err := h.aggregatorDB.QuickCheck(r.Context()); err != nil {
		h.log.Error().Err(err).Msg("aggregator database health check failed")
		dbStatus = "error"
	}
	cacheStatus := "ok"
	if err := h.cacheDB.QuickCheck(r.Context()); err != nil {
		h.log.Warn().Err(err).Msg("cache database health check failed")
		cacheStatus = "error"
	}

	status := "healthy"
	if dbStatus != "ok" {
		status = "degraded"
	}

	h.writeJSON(w, map[string]interface{}{
		"status":         status,
		"uptime_seconds": int(time.Since(h.startupTime).Seconds()),
		"cpu_percent":    cpuPercent,
		"ram_percent":    ramPercent,
		"databases": map[string]string{
			"aggregator": dbStatus,
			"cache":      cacheStatus,
		},
	})
}

// HandleDatabaseStats returns size and page statistics for both databases.
// GET /api/system/database
func (h *SystemHandlers) HandleDatabaseStats(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"last_checked": time.Now().UTC().Format(time.RFC3339),
	}
	for _, db := range []*database.DB{h.aggregatorDB, h.cacheDB} {
		stats, err := db.GetStats()
		if err != nil {
			h.log.Error().Err(err).Str("database", db.Name()).Msg("failed to get database stats")
			response[db.Name()] = map[string]string{"error": "stats unavailable"}
			continue
		}
		response[db.Name()] = map[string]interface{}{
			"size_mb":     float64(stats.SizeBytes) / 1024 / 1024,
			"wal_size_mb": float64(stats.WALSizeBytes) / 1024 / 1024,
			"page_count":  stats.PageCount,
			"page_size":   stats.PageSize,
		}
	}
	h.writeJSON(w, response)
}

// systemStats reads CPU and RAM usage. A short sampling interval keeps the
// endpoint responsive.
func (h *SystemHandlers) systemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}
	return cpuAvg, memStat.UsedPercent
}

func (h *SystemHandlers) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("failed to encode JSON response")
	}
}
