package handlers

import (
	"net/http"

	"ontohub/internal/platform/monitoring"
)

// MetricsHandler serves the Prometheus registry.
type MetricsHandler struct {
	handler http.Handler
}

func NewMetricsHandler(metrics *monitoring.Metrics) *MetricsHandler {
	return &MetricsHandler{handler: metrics.Handler()}
}

func (h *MetricsHandler) Export(w http.ResponseWriter, r *http.Request) {
	h.handler.ServeHTTP(w, r)
}
