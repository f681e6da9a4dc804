package domain

import (
	"time"

	"github.com/google/uuid"
)

// QuotationMetrics are per-provider aggregates derived from the event log.
// Rates are fractions in [0,1].
type QuotationMetrics struct {
	ProviderID               uuid.UUID
	TotalInvites             int
	TotalResponses           int
	IgnoredInvites           int
	TotalQuotes              int
	AcceptedQuotes           int
	RejectedQuotes           int
	WithdrawnQuotes          int
	ExpiredQuotes            int
	AveragePrice             float64
	AverageResponseTimeHours float64
	ResponseRate             float64
	SuccessRate              float64
	AverageDistanceKm        float64
	MaxDistanceKm            float64
	LastInviteAt             *time.Time
	LastQuoteAt              *time.Time
	LastSequence             int64
	UpdatedAt                *time.Time
}
