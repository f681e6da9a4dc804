package handler

import (
	"context"

	"marketplace_quotes_backend/internal/quoting/domain"
	"marketplace_quotes_backend/internal/quoting/service"
	"marketplace_quotes_backend/internal/quoting/transport"
	"marketplace_quotes_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// SubmitQuotation handles POST /api/v1/quotations
func (h *Handler) SubmitQuotation(c *gin.Context) {
	id := httpkit.MustGetIdentity(c)
	if id == nil {
		return
	}
	var req transport.SubmitQuotationRequest
	if !h.bindJSON(c, &req) {
		return
	}

	q, err := h.svc.Quotes.Submit(c.Request.Context(), service.SubmitInput{
		JobID:         req.JobID,
		ProviderID:    id.UserID(),
		ProviderEmail: req.ProviderEmail,
		InviteID:      req.InviteID,
		Details:       req.QuotationDetailsRequest.ToDomain(),
	})
	if handleError(c, err) {
		return
	}
	httpkit.Created(c, transport.ToQuotationResponse(q))
}

// GetQuotation handles GET /api/v1/quotations/:quoteId
func (h *Handler) GetQuotation(c *gin.Context) {
	quoteID, ok := pathID(c, "quoteId")
	if !ok {
		return
	}
	id := httpkit.MustGetIdentity(c)
	if id == nil {
		return
	}

	ctx := c.Request.Context()
	q, err := h.svc.Quotes.GetQuotation(ctx, quoteID)
	if handleError(c, err) {
		return
	}
	if !id.HasRole(httpkit.RoleAdmin) && !h.svc.Quotes.CanView(ctx, q, id.UserID()) {
		handleError(c, domain.NotFound("quotation", quoteID))
		return
	}
	httpkit.OK(c, transport.ToQuotationResponse(q))
}

// UpdateQuotation handles PATCH /api/v1/quotations/:quoteId
func (h *Handler) UpdateQuotation(c *gin.Context) {
	quoteID, ok := pathID(c, "quoteId")
	if !ok {
		return
	}
	id := httpkit.MustGetIdentity(c)
	if id == nil {
		return
	}
	var req transport.UpdateQuotationRequest
	if !h.bindJSON(c, &req) {
		return
	}

	q, err := h.svc.Quotes.Update(c.Request.Context(), quoteID, id.UserID(), req.QuotationDetailsRequest.ToDomain())
	if handleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToQuotationResponse(q))
}

// WithdrawQuotation handles POST /api/v1/quotations/:quoteId/withdraw
func (h *Handler) WithdrawQuotation(c *gin.Context) {
	h.decide(c, h.svc.Quotes.Withdraw)
}

// AcceptQuotation handles POST /api/v1/quotations/:quoteId/accept
func (h *Handler) AcceptQuotation(c *gin.Context) {
	h.decide(c, h.svc.Quotes.Accept)
}

// RejectQuotation handles POST /api/v1/quotations/:quoteId/reject
func (h *Handler) RejectQuotation(c *gin.Context) {
	h.decide(c, h.svc.Quotes.Reject)
}

type decision func(ctx context.Context, quoteID, actorID uuid.UUID) (domain.Quotation, error)

func (h *Handler) decide(c *gin.Context, fn decision) {
	quoteID, ok := pathID(c, "quoteId")
	if !ok {
		return
	}
	id := httpkit.MustGetIdentity(c)
	if id == nil {
		return
	}

	q, err := fn(c.Request.Context(), quoteID, id.UserID())
	if handleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToQuotationResponse(q))
}
