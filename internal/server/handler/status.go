package handler

import (
	"log/slog"
	"net/http"

	"github.com/cryptoaffil/dataplatform/internal/service"
)

// StatusHandler serves the ETL status feed and the per-table tracker view.
type StatusHandler struct {
	svc    *service.StatusService
	logger *slog.Logger
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(svc *service.StatusService, logger *slog.Logger) *StatusHandler {
	return &StatusHandler{
		svc:    svc,
		logger: logHandler(logger, "status"),
	}
}

// Feed returns one row per data source with its coarse health signal.
// GET /api/etl/status
func (h *StatusHandler) Feed(w http.ResponseWriter, r *http.Request) {
	rows, err := h.svc.Feed(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "status feed failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to build status feed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sources": rows})
}

// Tables returns the raw load-status tracker rows.
// GET /api/etl/tables
func (h *StatusHandler) Tables(w http.ResponseWriter, r *http.Request) {
	rows, err := h.svc.Tables(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "table list failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list tables")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tables": rows})
}
