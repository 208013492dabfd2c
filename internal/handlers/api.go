package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/vaibhavdavedev/datashelf/internal/common"
	"github.com/vaibhavdavedev/datashelf/internal/interfaces"
)

// APIHandler serves system endpoints: health and version.
type APIHandler struct {
	storage interfaces.StorageManager
	entries interfaces.EntryStore
	logger  arbor.ILogger
}

// NewAPIHandler creates the system handler. Either dependency may be nil
// on a process that doesn't carry it; its check is then skipped.
func NewAPIHandler(storage interfaces.StorageManager, entries interfaces.EntryStore) *APIHandler {
	return &APIHandler{
		storage: storage,
		entries: entries,
		logger:  common.GetLogger(),
	}
}

// VersionHandler returns version information
func (h *APIHandler) VersionHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"version":    common.GetVersion(),
		"build":      common.GetBuild(),
		"git_commit": common.GetGitCommit(),
	})
}

// HealthHandler reports overall status plus per-service detail. Responds
// 503 when any checked service is down.
func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	services := map[string]string{}
	healthy := true

	if h.storage != nil {
		if err := h.storage.Ping(ctx); err != nil {
			services["database"] = "down"
			healthy = false
			h.logger.Warn().Err(err).Msg("Health check: database unreachable")
		} else {
			services["database"] = "up"
		}
	}

	if h.entries != nil {
		if err := h.entries.Ping(ctx); err != nil {
			services["cache"] = "down"
			healthy = false
			h.logger.Warn().Err(err).Msg("Health check: cache store unreachable")
		} else {
			services["cache"] = "up"
		}
	}

	status := "ok"
	code := http.StatusOK
	if !healthy {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":   status,
		"services": services,
	})
}

// NotFoundHandler handles unmatched routes with the JSON error envelope.
func (h *APIHandler) NotFoundHandler(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "not_found", "the requested endpoint does not exist")
}
