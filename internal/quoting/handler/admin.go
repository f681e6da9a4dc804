package handler

import (
	"marketplace_quotes_backend/internal/quoting/metrics"
	"marketplace_quotes_backend/internal/quoting/transport"
	"marketplace_quotes_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
)

// RunSweeps handles POST /api/v1/admin/sweeps
func (h *Handler) RunSweeps(c *gin.Context) {
	res, err := h.svc.Sweeper.RunOnce(c.Request.Context())
	if handleError(c, err) {
		return
	}
	httpkit.OK(c, transport.SweepResponse{Invites: res.Invites, Quotations: res.Quotations})
}

// ProviderMetrics handles GET /api/v1/admin/providers/:providerId/metrics
func (h *Handler) ProviderMetrics(c *gin.Context) {
	providerID, ok := pathID(c, "providerId")
	if !ok {
		return
	}
	var req transport.MetricsRequest
	if !h.bindQuery(c, &req) {
		return
	}

	m, err := h.svc.Metrics.Compute(c.Request.Context(), providerID, metrics.Mode(req.Mode))
	if handleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToMetricsResponse(m))
}
