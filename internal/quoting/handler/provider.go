package handler

import (
	"marketplace_quotes_backend/internal/quoting/domain"
	"marketplace_quotes_backend/internal/quoting/metrics"
	"marketplace_quotes_backend/internal/quoting/transport"
	"marketplace_quotes_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
)

// ListMyInvites handles GET /api/v1/provider/invites
func (h *Handler) ListMyInvites(c *gin.Context) {
	id := httpkit.MustGetIdentity(c)
	if id == nil {
		return
	}
	var req transport.ListInvitesRequest
	if !h.bindQuery(c, &req) {
		return
	}

	var status *domain.InviteStatus
	if req.Status != "" {
		s := domain.InviteStatus(req.Status)
		status = &s
	}
	invites, err := h.svc.Invites.ListProviderInvites(c.Request.Context(), id.UserID(), status)
	if handleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"items": transport.ToInviteResponses(invites)})
}

// MarkInviteViewed handles POST /api/v1/provider/invites/:inviteId/view
func (h *Handler) MarkInviteViewed(c *gin.Context) {
	inviteID, ok := pathID(c, "inviteId")
	if !ok {
		return
	}
	id := httpkit.MustGetIdentity(c)
	if id == nil {
		return
	}

	inv, err := h.svc.Invites.MarkViewed(c.Request.Context(), inviteID, id.UserID())
	if handleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToInviteResponse(inv))
}

// ListMyQuotations handles GET /api/v1/provider/quotations
func (h *Handler) ListMyQuotations(c *gin.Context) {
	id := httpkit.MustGetIdentity(c)
	if id == nil {
		return
	}
	var req transport.ListQuotationsRequest
	if !h.bindQuery(c, &req) {
		return
	}

	var status *domain.QuotationStatus
	if req.Status != "" {
		s := domain.QuotationStatus(req.Status)
		status = &s
	}
	quotes, err := h.svc.Quotes.ListProviderQuotations(c.Request.Context(), id.UserID(), status)
	if handleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"items": transport.ToQuotationResponses(quotes)})
}

// MyMetrics handles GET /api/v1/provider/metrics
func (h *Handler) MyMetrics(c *gin.Context) {
	id := httpkit.MustGetIdentity(c)
	if id == nil {
		return
	}
	m, err := h.svc.Metrics.Compute(c.Request.Context(), id.UserID(), metrics.ModeIncremental)
	if handleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToMetricsResponse(m))
}
