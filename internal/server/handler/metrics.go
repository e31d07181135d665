package handler

import (
	"log/slog"
	"net/http"

	"github.com/cryptoaffil/dataplatform/internal/service"
)

// MetricsHandler serves gold aggregates and quality scores.
type MetricsHandler struct {
	svc    *service.MetricsService
	logger *slog.Logger
}

// NewMetricsHandler creates a MetricsHandler.
func NewMetricsHandler(svc *service.MetricsService, logger *slog.Logger) *MetricsHandler {
	return &MetricsHandler{
		svc:    svc,
		logger: logHandler(logger, "metrics"),
	}
}

// DailyMetrics returns per-affiliate daily aggregates.
// GET /api/metrics/affiliates?days=30
func (h *MetricsHandler) DailyMetrics(w http.ResponseWriter, r *http.Request) {
	days := parseDays(r, 30)

	rows, err := h.svc.DailyMetrics(r.Context(), days)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "daily metrics failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to read daily metrics")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"days": days, "metrics": rows})
}

// Quality returns per-(table, date) quality scores.
// GET /api/quality?days=7
func (h *MetricsHandler) Quality(w http.ResponseWriter, r *http.Request) {
	days := parseDays(r, 7)

	rows, err := h.svc.QualityMetrics(r.Context(), days)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "quality metrics failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to read quality metrics")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"days": days, "metrics": rows})
}
