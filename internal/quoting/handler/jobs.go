package handler

import (
	"net/http"

	"marketplace_quotes_backend/internal/quoting/domain"
	"marketplace_quotes_backend/internal/quoting/transport"
	"marketplace_quotes_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RegisterCriteria handles POST /api/v1/jobs/:jobId/criteria
func (h *Handler) RegisterCriteria(c *gin.Context) {
	jobID, ok := pathID(c, "jobId")
	if !ok {
		return
	}
	id := httpkit.MustGetIdentity(c)
	if id == nil {
		return
	}

	var req transport.RegisterCriteriaRequest
	if !h.bindJSON(c, &req) {
		return
	}

	criteria := req.ToDomain(jobID)
	if !id.HasRole(httpkit.RoleAdmin) {
		criteria.CustomerID = id.UserID()
	}

	registered, err := h.svc.Matcher.RegisterCriteria(c.Request.Context(), criteria)
	if handleError(c, err) {
		return
	}
	httpkit.Created(c, transport.ToCriteriaResponse(registered))
}

// GetCriteria handles GET /api/v1/jobs/:jobId/criteria
func (h *Handler) GetCriteria(c *gin.Context) {
	jobID, ok := h.authorizeJob(c)
	if !ok {
		return
	}
	criteria, err := h.svc.Matcher.GetCriteria(c.Request.Context(), jobID)
	if handleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToCriteriaResponse(criteria))
}

// MatchJob handles POST /api/v1/jobs/:jobId/match
func (h *Handler) MatchJob(c *gin.Context) {
	jobID, ok := h.authorizeJob(c)
	if !ok {
		return
	}

	res, err := h.svc.Matcher.MatchJob(c.Request.Context(), jobID)
	if handleError(c, err) {
		return
	}
	httpkit.OK(c, transport.MatchResponse{
		JobID:          res.JobID,
		Invites:        transport.ToInviteResponses(res.Invites),
		Eligible:       res.Eligible,
		AlreadyInvited: res.AlreadyInvited,
		Degraded:       res.Degraded,
		RetryScheduled: res.RetryScheduled,
	})
}

// ListJobInvites handles GET /api/v1/jobs/:jobId/invites
func (h *Handler) ListJobInvites(c *gin.Context) {
	jobID, ok := h.authorizeJob(c)
	if !ok {
		return
	}
	invites, err := h.svc.Invites.ListJobInvites(c.Request.Context(), jobID)
	if handleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"items": transport.ToInviteResponses(invites)})
}

// ListJobQuotations handles GET /api/v1/jobs/:jobId/quotations
func (h *Handler) ListJobQuotations(c *gin.Context) {
	jobID, ok := pathID(c, "jobId")
	if !ok {
		return
	}
	id := httpkit.MustGetIdentity(c)
	if id == nil {
		return
	}

	quotes, err := h.svc.Quotes.ListJobQuotations(c.Request.Context(), jobID, id.UserID())
	if handleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"items": transport.ToQuotationResponses(quotes)})
}

// ListJobEvents handles GET /api/v1/jobs/:jobId/events
func (h *Handler) ListJobEvents(c *gin.Context) {
	jobID, ok := pathID(c, "jobId")
	if !ok {
		return
	}
	var req transport.ListEventsRequest
	if !h.bindQuery(c, &req) {
		return
	}

	filter := domain.EventFilter{JobID: &jobID, Since: req.Since, AfterSequence: req.AfterSequence, Limit: req.Limit}
	if req.ProviderID != "" {
		providerID := uuid.MustParse(req.ProviderID)
		filter.ProviderID = &providerID
	}
	for _, t := range req.Type {
		filter.Types = append(filter.Types, domain.EventType(t))
	}

	events, err := h.svc.Events.Query(c.Request.Context(), filter)
	if handleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"items": transport.ToEventResponses(events)})
}

// ExportJobEvents handles POST /api/v1/jobs/:jobId/events/export
func (h *Handler) ExportJobEvents(c *gin.Context) {
	jobID, ok := pathID(c, "jobId")
	if !ok {
		return
	}
	if h.svc.Archiver == nil {
		httpkit.Error(c, http.StatusServiceUnavailable, "event archive is not configured", nil)
		return
	}

	res, err := h.svc.Archiver.ExportJob(c.Request.Context(), jobID)
	if handleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ArchiveResponse{Bucket: res.Bucket, Key: res.Key, Events: res.Events})
}

// authorizeJob parses :jobId and, for non-admin callers, checks that the
// caller owns the job.
func (h *Handler) authorizeJob(c *gin.Context) (uuid.UUID, bool) {
	jobID, ok := pathID(c, "jobId")
	if !ok {
		return uuid.Nil, false
	}
	id := httpkit.MustGetIdentity(c)
	if id == nil {
		return uuid.Nil, false
	}
	if id.HasRole(httpkit.RoleAdmin) {
		return jobID, true
	}
	if handleError(c, h.svc.Quotes.AuthorizeJob(c.Request.Context(), jobID, id.UserID())) {
		return uuid.Nil, false
	}
	return jobID, true
}
