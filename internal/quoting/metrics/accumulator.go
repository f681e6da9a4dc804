// Package metrics folds the quote event log into per-provider
// QuotationMetrics. The fold state is serializable so it can be cached and
// resumed; resuming and replaying from scratch give identical results.
package metrics

import (
	"time"

	"marketplace_quotes_backend/internal/quoting/domain"

	"github.com/google/uuid"
)

// Accumulator is the complete state of the fold for one provider. Events
// must be applied in sequence order.
type Accumulator struct {
	ProviderID uuid.UUID `json:"providerId"`

	Invites       int     `json:"invites"`
	Responses     int     `json:"responses"`
	Ignored       int     `json:"ignored"`
	Submitted     int     `json:"submitted"`
	Withdrawn     int     `json:"withdrawn"`
	Accepted      int     `json:"accepted"`
	Rejected      int     `json:"rejected"`
	ExpiredQuotes int     `json:"expiredQuotes"`
	PriceSum      float64 `json:"priceSum"`
	PricedQuotes  int     `json:"pricedQuotes"`
	ResponseHours float64 `json:"responseHours"`
	TimedReplies  int     `json:"timedReplies"`
	DistanceSum   float64 `json:"distanceSum"`
	DistanceCount int     `json:"distanceCount"`
	MaxDistance   float64 `json:"maxDistance"`

	LastInviteAt *time.Time `json:"lastInviteAt,omitempty"`
	LastQuoteAt  *time.Time `json:"lastQuoteAt,omitempty"`
	LastEventAt  *time.Time `json:"lastEventAt,omitempty"`
	LastSequence int64      `json:"lastSequence"`

	// Open holds invited_at for invites that have neither a response nor a
	// lapse yet.
	Open map[uuid.UUID]time.Time `json:"open"`
	// Settled holds invites that already counted as responded or ignored.
	Settled map[uuid.UUID]bool `json:"settled"`
}

// NewAccumulator returns an empty fold for providerID.
func NewAccumulator(providerID uuid.UUID) *Accumulator {
	return &Accumulator{
		ProviderID: providerID,
		Open:       make(map[uuid.UUID]time.Time),
		Settled:    make(map[uuid.UUID]bool),
	}
}

// Apply folds one event. It reports false and changes nothing when the event
// belongs to another provider or its sequence was already applied.
func (a *Accumulator) Apply(e domain.QuoteEvent) bool {
	if e.ProviderID != a.ProviderID || e.Sequence <= a.LastSequence {
		return false
	}
	if a.Open == nil {
		a.Open = make(map[uuid.UUID]time.Time)
	}
	if a.Settled == nil {
		a.Settled = make(map[uuid.UUID]bool)
	}

	switch e.Type {
	case domain.EventQuoteInvited:
		a.Invites++
		if d, ok := e.Payload.Float(domain.PayloadDistanceKm); ok {
			a.DistanceSum += d
			a.DistanceCount++
			if d > a.MaxDistance {
				a.MaxDistance = d
			}
		}
		a.LastInviteAt = later(a.LastInviteAt, e.CreatedAt)
		if e.InviteID != nil && !a.Settled[*e.InviteID] {
			a.Open[*e.InviteID] = invitedAt(e)
		}

	case domain.EventQuoteSubmitted:
		a.Submitted++
		if p, ok := e.Payload.Float(domain.PayloadPrice); ok {
			a.PriceSum += p
			a.PricedQuotes++
		}
		a.LastQuoteAt = later(a.LastQuoteAt, e.CreatedAt)
		if e.InviteID != nil {
			a.respond(*e.InviteID, e)
		}

	case domain.EventQuoteUpdated:
		if e.InviteID != nil && e.Payload.String(domain.PayloadInviteNewStatus) == string(domain.InviteStatusResponded) {
			a.respond(*e.InviteID, e)
		}

	case domain.EventQuoteWithdrawn:
		a.Withdrawn++
	case domain.EventQuoteAccepted:
		a.Accepted++
	case domain.EventQuoteRejected:
		a.Rejected++

	case domain.EventQuoteExpired:
		if e.QuoteID != nil {
			a.ExpiredQuotes++
		} else if e.InviteID != nil {
			a.lapse(*e.InviteID)
		}
	case domain.EventProviderIgnored, domain.EventInviteExpired:
		if e.InviteID != nil {
			a.lapse(*e.InviteID)
		}
	}

	a.LastSequence = e.Sequence
	a.LastEventAt = later(a.LastEventAt, e.CreatedAt)
	return true
}

// respond counts the first response to an invite.
func (a *Accumulator) respond(inviteID uuid.UUID, e domain.QuoteEvent) {
	if a.Settled[inviteID] {
		return
	}
	a.Settled[inviteID] = true
	a.Responses++

	start, ok := a.Open[inviteID]
	if !ok {
		start, ok = e.Payload.Time(domain.PayloadInvitedAt)
	}
	delete(a.Open, inviteID)
	if ok && !e.CreatedAt.Before(start) {
		a.ResponseHours += e.CreatedAt.Sub(start).Hours()
		a.TimedReplies++
	}
}

// lapse counts an invite that ran out without a response.
func (a *Accumulator) lapse(inviteID uuid.UUID) {
	if a.Settled[inviteID] {
		return
	}
	a.Settled[inviteID] = true
	a.Ignored++
	delete(a.Open, inviteID)
}

// Metrics derives the public aggregates from the fold state.
func (a *Accumulator) Metrics() domain.QuotationMetrics {
	m := domain.QuotationMetrics{
		ProviderID:      a.ProviderID,
		TotalInvites:    a.Invites,
		TotalResponses:  a.Responses,
		IgnoredInvites:  a.Ignored,
		TotalQuotes:     max(a.Submitted-a.Withdrawn, 0),
		AcceptedQuotes:  a.Accepted,
		RejectedQuotes:  a.Rejected,
		WithdrawnQuotes: a.Withdrawn,
		ExpiredQuotes:   a.ExpiredQuotes,
		MaxDistanceKm:   a.MaxDistance,
		LastInviteAt:    copyTime(a.LastInviteAt),
		LastQuoteAt:     copyTime(a.LastQuoteAt),
		LastSequence:    a.LastSequence,
		UpdatedAt:       copyTime(a.LastEventAt),
	}
	m.AveragePrice = ratio(a.PriceSum, a.PricedQuotes)
	m.AverageResponseTimeHours = ratio(a.ResponseHours, a.TimedReplies)
	m.AverageDistanceKm = ratio(a.DistanceSum, a.DistanceCount)
	m.ResponseRate = rate(a.Responses, a.Invites)
	m.SuccessRate = rate(a.Accepted, m.TotalQuotes)
	return m
}

func invitedAt(e domain.QuoteEvent) time.Time {
	if t, ok := e.Payload.Time(domain.PayloadInvitedAt); ok {
		return t
	}
	return e.CreatedAt
}

func later(current *time.Time, t time.Time) *time.Time {
	if current != nil && !t.After(*current) {
		return current
	}
	t = t.UTC()
	return &t
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func ratio(sum float64, n int) float64 {
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// rate is n/d clamped to [0,1], and 0 when d is 0.
func rate(n, d int) float64 {
	if d <= 0 {
		return 0
	}
	r := float64(n) / float64(d)
	if r > 1 {
		return 1
	}
	return r
}
