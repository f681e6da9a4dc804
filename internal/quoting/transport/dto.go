package transport

import (
	"time"

	"marketplace_quotes_backend/internal/quoting/domain"

	"github.com/google/uuid"
)

// ── Requests ──────────────────────────────────────────────────────────────────

// GeoPointRequest is a coordinate with an optional address.
type GeoPointRequest struct {
	Latitude  float64 `json:"latitude" validate:"min=-90,max=90"`
	Longitude float64 `json:"longitude" validate:"min=-180,max=180"`
	Address   string  `json:"address" validate:"max=500"`
}

// RegisterCriteriaRequest is the body of POST /jobs/:jobId/criteria.
type RegisterCriteriaRequest struct {
	CustomerID          *uuid.UUID      `json:"customerId"`
	MaxDistanceKm       float64         `json:"maxDistanceKm" validate:"gt=0"`
	RequiredCategory    string          `json:"requiredCategory" validate:"required,max=200"`
	MinProviderRating   *float64        `json:"minProviderRating" validate:"omitempty,min=0,max=5"`
	MaxProvidersInvited int             `json:"maxProvidersInvited" validate:"min=1,max=100"`
	InviteExpiresHours  int             `json:"inviteExpiresHours" validate:"min=1"`
	Anchor              GeoPointRequest `json:"anchor"`
	PreferredStart      *time.Time      `json:"preferredStart"`
	Deadline            *time.Time      `json:"deadline"`
	RequiresTools       bool            `json:"requiresTools"`
	EcoFriendlyOnly     bool            `json:"ecoFriendlyOnly"`
	EmergencyJob        bool            `json:"emergencyJob"`
}

// QuotationDetailsRequest carries the provider-editable terms.
type QuotationDetailsRequest struct {
	Price         int64      `json:"price" validate:"min=0"`
	EstimatedTime *string    `json:"estimatedTime" validate:"omitempty,max=200"`
	Message       *string    `json:"message" validate:"omitempty,max=5000"`
	ProposedStart *time.Time `json:"proposedStart"`
	IncludesTools bool       `json:"includesTools"`
	EcoFriendly   bool       `json:"ecoFriendly"`
	ValidUntil    *time.Time `json:"validUntil"`
	Warranty      *string    `json:"warranty" validate:"omitempty,max=1000"`
	MaterialsCost *int64     `json:"materialsCost" validate:"omitempty,min=0"`
	LaborCost     *int64     `json:"laborCost" validate:"omitempty,min=0"`
	CustomerNotes *string    `json:"customerNotes" validate:"omitempty,max=5000"`
}

// SubmitQuotationRequest is the body of POST /quotations.
type SubmitQuotationRequest struct {
	JobID         uuid.UUID  `json:"jobId" validate:"required"`
	InviteID      *uuid.UUID `json:"inviteId"`
	ProviderEmail string     `json:"providerEmail" validate:"omitempty,email,max=320"`
	QuotationDetailsRequest
}

// UpdateQuotationRequest is the body of PATCH /quotations/:quoteId.
type UpdateQuotationRequest struct {
	QuotationDetailsRequest
}

// ListInvitesRequest filters "my invites".
type ListInvitesRequest struct {
	Status string `form:"status" validate:"omitempty,invitestatus"`
}

// ListQuotationsRequest filters "my quotations".
type ListQuotationsRequest struct {
	Status string `form:"status" validate:"omitempty,quotestatus"`
}

// ListEventsRequest filters the admin event log query.
type ListEventsRequest struct {
	ProviderID    string     `form:"providerId" validate:"omitempty,uuid"`
	Type          []string   `form:"type" validate:"omitempty,dive,eventtype"`
	Since         *time.Time `form:"since" time_format:"2006-01-02T15:04:05Z07:00"`
	AfterSequence int64      `form:"afterSequence" validate:"min=0"`
	Limit         int        `form:"limit" validate:"min=0,max=1000"`
}

// MetricsRequest selects how provider metrics are computed.
type MetricsRequest struct {
	Mode string `form:"mode" validate:"omitempty,oneof=replay incremental"`
}

// ── Responses ─────────────────────────────────────────────────────────────────

type GeoPointResponse struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Address   string  `json:"address,omitempty"`
}

type CriteriaResponse struct {
	JobID               uuid.UUID        `json:"jobId"`
	CustomerID          *uuid.UUID       `json:"customerId,omitempty"`
	MaxDistanceKm       float64          `json:"maxDistanceKm"`
	RequiredCategory    string           `json:"requiredCategory"`
	MinProviderRating   *float64         `json:"minProviderRating,omitempty"`
	MaxProvidersInvited int              `json:"maxProvidersInvited"`
	InviteExpiresHours  int              `json:"inviteExpiresHours"`
	Anchor              GeoPointResponse `json:"anchor"`
	PreferredStart      *time.Time       `json:"preferredStart,omitempty"`
	Deadline            *time.Time       `json:"deadline,omitempty"`
	RequiresTools       bool             `json:"requiresTools"`
	EcoFriendlyOnly     bool             `json:"ecoFriendlyOnly"`
	EmergencyJob        bool             `json:"emergencyJob"`
	CreatedAt           time.Time        `json:"createdAt"`
}

type InviteResponse struct {
	ID            uuid.UUID  `json:"id"`
	JobID         uuid.UUID  `json:"jobId"`
	ProviderID    uuid.UUID  `json:"providerId"`
	ProviderEmail string     `json:"providerEmail,omitempty"`
	JobCategory   string     `json:"jobCategory"`
	DistanceKm    float64    `json:"distanceKm"`
	InvitedAt     time.Time  `json:"invitedAt"`
	ExpiresAt     time.Time  `json:"expiresAt"`
	Responded     bool       `json:"responded"`
	ResponseAt    *time.Time `json:"responseAt,omitempty"`
	ViewedAt      *time.Time `json:"viewedAt,omitempty"`
	QuotationID   *uuid.UUID `json:"quotationId,omitempty"`
	Status        string     `json:"status"`
}

type QuotationResponse struct {
	ID            uuid.UUID  `json:"id"`
	JobID         uuid.UUID  `json:"jobId"`
	ProviderID    uuid.UUID  `json:"providerId"`
	ProviderEmail string     `json:"providerEmail,omitempty"`
	InviteID      *uuid.UUID `json:"inviteId,omitempty"`
	Price         int64      `json:"price"`
	EstimatedTime *string    `json:"estimatedTime,omitempty"`
	Message       *string    `json:"message,omitempty"`
	ProposedStart *time.Time `json:"proposedStart,omitempty"`
	IncludesTools bool       `json:"includesTools"`
	EcoFriendly   bool       `json:"ecoFriendly"`
	ValidUntil    *time.Time `json:"validUntil,omitempty"`
	Warranty      *string    `json:"warranty,omitempty"`
	MaterialsCost *int64     `json:"materialsCost,omitempty"`
	LaborCost     *int64     `json:"laborCost,omitempty"`
	CustomerNotes *string    `json:"customerNotes,omitempty"`
	Status        string     `json:"status"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
	AcceptedAt    *time.Time `json:"acceptedAt,omitempty"`
	RejectedAt    *time.Time `json:"rejectedAt,omitempty"`
	CancelledAt   *time.Time `json:"cancelledAt,omitempty"`
	ExpiredAt     *time.Time `json:"expiredAt,omitempty"`
}

type EventResponse struct {
	ID         uuid.UUID      `json:"id"`
	Sequence   int64          `json:"sequence"`
	EventType  string         `json:"eventType"`
	QuoteID    *uuid.UUID     `json:"quoteId,omitempty"`
	InviteID   *uuid.UUID     `json:"inviteId,omitempty"`
	JobID      uuid.UUID      `json:"jobId"`
	ProviderID uuid.UUID      `json:"providerId"`
	CustomerID *uuid.UUID     `json:"customerId,omitempty"`
	Payload    map[string]any `json:"payload"`
	Processed  bool           `json:"processed"`
	CreatedAt  time.Time      `json:"createdAt"`
}

type MetricsResponse struct {
	ProviderID               uuid.UUID  `json:"providerId"`
	TotalInvites             int        `json:"totalInvites"`
	TotalResponses           int        `json:"totalResponses"`
	IgnoredInvites           int        `json:"ignoredInvites"`
	TotalQuotes              int        `json:"totalQuotes"`
	AcceptedQuotes           int        `json:"acceptedQuotes"`
	RejectedQuotes           int        `json:"rejectedQuotes"`
	WithdrawnQuotes          int        `json:"withdrawnQuotes"`
	ExpiredQuotes            int        `json:"expiredQuotes"`
	AveragePrice             float64    `json:"averagePrice"`
	AverageResponseTimeHours float64    `json:"averageResponseTimeHours"`
	ResponseRate             float64    `json:"responseRate"`
	SuccessRate              float64    `json:"successRate"`
	AverageDistanceKm        float64    `json:"averageDistanceKm"`
	MaxDistanceKm            float64    `json:"maxDistanceKm"`
	LastInviteAt             *time.Time `json:"lastInviteAt,omitempty"`
	LastQuoteAt              *time.Time `json:"lastQuoteAt,omitempty"`
	LastSequence             int64      `json:"lastSequence"`
	UpdatedAt                *time.Time `json:"updatedAt,omitempty"`
}

type MatchResponse struct {
	JobID          uuid.UUID        `json:"jobId"`
	Invites        []InviteResponse `json:"invites"`
	Eligible       int              `json:"eligible"`
	AlreadyInvited int              `json:"alreadyInvited"`
	Degraded       bool             `json:"degraded"`
	RetryScheduled bool             `json:"retryScheduled"`
}

type ArchiveResponse struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
	Events int    `json:"events"`
}

type SweepResponse struct {
	Invites    int `json:"invites"`
	Quotations int `json:"quotations"`
}

// ── Mapping ───────────────────────────────────────────────────────────────────

func (r RegisterCriteriaRequest) ToDomain(jobID uuid.UUID) domain.JobEligibilityCriteria {
	c := domain.JobEligibilityCriteria{
		JobID:               jobID,
		MaxDistanceKm:       r.MaxDistanceKm,
		RequiredCategory:    r.RequiredCategory,
		MinProviderRating:   r.MinProviderRating,
		MaxProvidersInvited: r.MaxProvidersInvited,
		InviteExpiresHours:  r.InviteExpiresHours,
		Anchor:              domain.GeoPoint{Latitude: r.Anchor.Latitude, Longitude: r.Anchor.Longitude, Address: r.Anchor.Address},
		PreferredStart:      r.PreferredStart,
		Deadline:            r.Deadline,
		RequiresTools:       r.RequiresTools,
		EcoFriendlyOnly:     r.EcoFriendlyOnly,
		EmergencyJob:        r.EmergencyJob,
	}
	if r.CustomerID != nil {
		c.CustomerID = *r.CustomerID
	}
	return c
}

func (r QuotationDetailsRequest) ToDomain() domain.QuotationDetails {
	return domain.QuotationDetails{
		Price:         r.Price,
		EstimatedTime: r.EstimatedTime,
		Message:       r.Message,
		ProposedStart: r.ProposedStart,
		IncludesTools: r.IncludesTools,
		EcoFriendly:   r.EcoFriendly,
		ValidUntil:    r.ValidUntil,
		Warranty:      r.Warranty,
		MaterialsCost: r.MaterialsCost,
		LaborCost:     r.LaborCost,
		CustomerNotes: r.CustomerNotes,
	}
}

func ToCriteriaResponse(c domain.JobEligibilityCriteria) CriteriaResponse {
	resp := CriteriaResponse{
		JobID:               c.JobID,
		MaxDistanceKm:       c.MaxDistanceKm,
		RequiredCategory:    c.RequiredCategory,
		MinProviderRating:   c.MinProviderRating,
		MaxProvidersInvited: c.MaxProvidersInvited,
		InviteExpiresHours:  c.InviteExpiresHours,
		Anchor:              GeoPointResponse{Latitude: c.Anchor.Latitude, Longitude: c.Anchor.Longitude, Address: c.Anchor.Address},
		PreferredStart:      c.PreferredStart,
		Deadline:            c.Deadline,
		RequiresTools:       c.RequiresTools,
		EcoFriendlyOnly:     c.EcoFriendlyOnly,
		EmergencyJob:        c.EmergencyJob,
		CreatedAt:           c.CreatedAt,
	}
	if c.CustomerID != uuid.Nil {
		id := c.CustomerID
		resp.CustomerID = &id
	}
	return resp
}

func ToInviteResponse(inv domain.JobQuotationInvite) InviteResponse {
	return InviteResponse{
		ID:            inv.ID,
		JobID:         inv.JobID,
		ProviderID:    inv.ProviderID,
		ProviderEmail: inv.ProviderEmail,
		JobCategory:   inv.JobCategory,
		DistanceKm:    inv.DistanceKm,
		InvitedAt:     inv.InvitedAt,
		ExpiresAt:     inv.ExpiresAt,
		Responded:     inv.Responded,
		ResponseAt:    inv.ResponseAt,
		ViewedAt:      inv.ViewedAt,
		QuotationID:   inv.QuotationID,
		Status:        string(inv.Status),
	}
}

func ToInviteResponses(invites []domain.JobQuotationInvite) []InviteResponse {
	out := make([]InviteResponse, len(invites))
	for i, inv := range invites {
		out[i] = ToInviteResponse(inv)
	}
	return out
}

func ToQuotationResponse(q domain.Quotation) QuotationResponse {
	return QuotationResponse{
		ID:            q.ID,
		JobID:         q.JobID,
		ProviderID:    q.ProviderID,
		ProviderEmail: q.ProviderEmail,
		InviteID:      q.InviteID,
		Price:         q.Price,
		EstimatedTime: q.EstimatedTime,
		Message:       q.Message,
		ProposedStart: q.ProposedStart,
		IncludesTools: q.IncludesTools,
		EcoFriendly:   q.EcoFriendly,
		ValidUntil:    q.ValidUntil,
		Warranty:      q.Warranty,
		MaterialsCost: q.MaterialsCost,
		LaborCost:     q.LaborCost,
		CustomerNotes: q.CustomerNotes,
		Status:        string(q.Status),
		CreatedAt:     q.CreatedAt,
		UpdatedAt:     q.UpdatedAt,
		AcceptedAt:    q.AcceptedAt,
		RejectedAt:    q.RejectedAt,
		CancelledAt:   q.CancelledAt,
		ExpiredAt:     q.ExpiredAt,
	}
}

func ToQuotationResponses(quotes []domain.Quotation) []QuotationResponse {
	out := make([]QuotationResponse, len(quotes))
	for i, q := range quotes {
		out[i] = ToQuotationResponse(q)
	}
	return out
}

func ToEventResponses(events []domain.QuoteEvent) []EventResponse {
	out := make([]EventResponse, len(events))
	for i, e := range events {
		payload := map[string]any(e.Payload)
		if payload == nil {
			payload = map[string]any{}
		}
		out[i] = EventResponse{
			ID:         e.ID,
			Sequence:   e.Sequence,
			EventType:  string(e.Type),
			QuoteID:    e.QuoteID,
			InviteID:   e.InviteID,
			JobID:      e.JobID,
			ProviderID: e.ProviderID,
			CustomerID: e.CustomerID,
			Payload:    payload,
			Processed:  e.Processed,
			CreatedAt:  e.CreatedAt,
		}
	}
	return out
}

func ToMetricsResponse(m domain.QuotationMetrics) MetricsResponse {
	return MetricsResponse{
		ProviderID:               m.ProviderID,
		TotalInvites:             m.TotalInvites,
		TotalResponses:           m.TotalResponses,
		IgnoredInvites:           m.IgnoredInvites,
		TotalQuotes:              m.TotalQuotes,
		AcceptedQuotes:           m.AcceptedQuotes,
		RejectedQuotes:           m.RejectedQuotes,
		WithdrawnQuotes:          m.WithdrawnQuotes,
		ExpiredQuotes:            m.ExpiredQuotes,
		AveragePrice:             m.AveragePrice,
		AverageResponseTimeHours: m.AverageResponseTimeHours,
		ResponseRate:             m.ResponseRate,
		SuccessRate:              m.SuccessRate,
		AverageDistanceKm:        m.AverageDistanceKm,
		MaxDistanceKm:            m.MaxDistanceKm,
		LastInviteAt:             m.LastInviteAt,
		LastQuoteAt:              m.LastQuoteAt,
		LastSequence:             m.LastSequence,
		UpdatedAt:                m.UpdatedAt,
	}
}
