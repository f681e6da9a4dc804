package handler

import (
	"net/http"

	"marketplace_quotes_backend/internal/quoting/domain"
	"marketplace_quotes_backend/internal/quoting/eventlog"
	"marketplace_quotes_backend/internal/quoting/metrics"
	"marketplace_quotes_backend/internal/quoting/service"
	"marketplace_quotes_backend/internal/quoting/transport"
	"marketplace_quotes_backend/platform/apperr"
	"marketplace_quotes_backend/platform/httpkit"
	"marketplace_quotes_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
)

// Services bundles what the handlers call into.
type Services struct {
	Matcher  *service.Matcher
	Invites  *service.InvitationManager
	Quotes   *service.QuoteLifecycle
	Sweeper  *service.Sweeper
	Events   *eventlog.Log
	Archiver *eventlog.Archiver
	Metrics  *metrics.Aggregator
}

// Handler serves the quoting API.
type Handler struct {
	svc Services
	val *validator.Validator
}

// New creates a new quoting handler
func New(svc Services, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// RegisterJobRoutes mounts the customer facing job routes.
func (h *Handler) RegisterJobRoutes(rg *gin.RouterGroup) {
	customerOrAdmin := httpkit.RequireRole(httpkit.RoleCustomer, httpkit.RoleAdmin)
	rg.POST("/:jobId/criteria", customerOrAdmin, h.RegisterCriteria)
	rg.GET("/:jobId/criteria", customerOrAdmin, h.GetCriteria)
	rg.POST("/:jobId/match", customerOrAdmin, h.MatchJob)
	rg.GET("/:jobId/invites", customerOrAdmin, h.ListJobInvites)
	rg.GET("/:jobId/quotations", httpkit.RequireRole(httpkit.RoleCustomer), h.ListJobQuotations)
	rg.GET("/:jobId/events", httpkit.RequireRole(httpkit.RoleAdmin), h.ListJobEvents)
	rg.POST("/:jobId/events/export", httpkit.RequireRole(httpkit.RoleAdmin), h.ExportJobEvents)
}

// RegisterProviderRoutes mounts the provider's own views.
func (h *Handler) RegisterProviderRoutes(rg *gin.RouterGroup) {
	rg.Use(httpkit.RequireRole(httpkit.RoleProvider))
	rg.GET("/invites", h.ListMyInvites)
	rg.POST("/invites/:inviteId/view", h.MarkInviteViewed)
	rg.GET("/quotations", h.ListMyQuotations)
	rg.GET("/metrics", h.MyMetrics)
}

// RegisterQuotationRoutes mounts the quotation lifecycle routes.
func (h *Handler) RegisterQuotationRoutes(rg *gin.RouterGroup) {
	provider := httpkit.RequireRole(httpkit.RoleProvider)
	customer := httpkit.RequireRole(httpkit.RoleCustomer)
	rg.POST("", provider, h.SubmitQuotation)
	rg.GET("/:quoteId", h.GetQuotation)
	rg.PATCH("/:quoteId", provider, h.UpdateQuotation)
	rg.POST("/:quoteId/withdraw", provider, h.WithdrawQuotation)
	rg.POST("/:quoteId/accept", customer, h.AcceptQuotation)
	rg.POST("/:quoteId/reject", customer, h.RejectQuotation)
}

// RegisterAdminRoutes mounts operational routes. The group is admin-only.
func (h *Handler) RegisterAdminRoutes(rg *gin.RouterGroup) {
	rg.POST("/sweeps", h.RunSweeps)
	rg.GET("/providers/:providerId/metrics", h.ProviderMetrics)
}

func (h *Handler) bindJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, err.Error())
		return false
	}
	return h.validate(c, req)
}

func (h *Handler) bindQuery(c *gin.Context, req any) bool {
	if err := c.ShouldBindQuery(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, err.Error())
		return false
	}
	return h.validate(c, req)
}

func (h *Handler) validate(c *gin.Context, req any) bool {
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, validator.Describe(err))
		return false
	}
	return true
}

func pathID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, name+" must be a uuid")
		return uuid.Nil, false
	}
	return id, true
}

// handleError renders err, replacing domain entities in the details with
// their API representation.
func handleError(c *gin.Context, err error) bool {
	if err == nil {
		return false
	}
	if appErr, ok := apperr.As(err); ok && appErr.Details != nil {
		rendered := *appErr
		switch d := appErr.Details.(type) {
		case domain.Quotation:
			rendered.Details = gin.H{"current": transport.ToQuotationResponse(d)}
		case domain.JobQuotationInvite:
			rendered.Details = gin.H{"current": transport.ToInviteResponse(d)}
		}
		return httpkit.HandleError(c, &rendered)
	}
	return httpkit.HandleError(c, err)
}
