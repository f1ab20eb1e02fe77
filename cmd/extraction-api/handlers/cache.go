package handlers

import (
	"net/http"

	"github.com/doculens/extraction-engine/internal/extraction"
	"github.com/doculens/extraction-engine/internal/observability"
)

// CacheHandler exposes result cache statistics.
type CacheHandler struct {
	logger *observability.Logger
	engine *extraction.Engine
}

// NewCacheHandler creates a cache handler.
func NewCacheHandler(logger *observability.Logger, engine *extraction.Engine) *CacheHandler {
	return &CacheHandler{logger: logger, engine: engine}
}

// Stats reports entry count, hit rate, and entry ages for the result cache.
func (h *CacheHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.engine.CacheStats(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}
