package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// GeoPoint is a coordinate with an optional human readable address.
type GeoPoint struct {
	Latitude  float64
	Longitude float64
	Address   string
}

// JobEligibilityCriteria is the immutable rule set used to pick providers
// for one job.
type JobEligibilityCriteria struct {
	JobID               uuid.UUID
	CustomerID          uuid.UUID
	MaxDistanceKm       float64
	RequiredCategory    string
	MinProviderRating   *float64
	MaxProvidersInvited int
	InviteExpiresHours  int
	Anchor              GeoPoint
	PreferredStart      *time.Time
	Deadline            *time.Time
	RequiresTools       bool
	EcoFriendlyOnly     bool
	EmergencyJob        bool
	CreatedAt           time.Time
}

// Validate enforces the criteria invariants.
func (c JobEligibilityCriteria) Validate() error {
	switch {
	case c.JobID == uuid.Nil:
		return Invalid("jobId is required")
	case strings.TrimSpace(c.RequiredCategory) == "":
		return Invalid("requiredCategory is required")
	case c.MaxDistanceKm <= 0:
		return Invalid("maxDistanceKm must be greater than 0")
	case c.MaxProvidersInvited < 1:
		return Invalid("maxProvidersInvited must be at least 1")
	case c.InviteExpiresHours <= 0:
		return Invalid("inviteExpiresHours must be greater than 0")
	case c.MinProviderRating != nil && (*c.MinProviderRating < 0 || *c.MinProviderRating > 5):
		return Invalid("minProviderRating must be between 0 and 5")
	case c.PreferredStart != nil && c.Deadline != nil && c.Deadline.Before(*c.PreferredStart):
		return Invalid("deadline must not be before preferredStart")
	}
	return nil
}

// InviteWindow is how long an invite stays open.
func (c JobEligibilityCriteria) InviteWindow() time.Duration {
	return time.Duration(c.InviteExpiresHours) * time.Hour
}

// ProviderProfile is the slice of a provider's profile that eligibility needs.
// DistanceKm is precomputed by the provider service relative to the job anchor.
type ProviderProfile struct {
	ID          uuid.UUID
	Email       string
	Category    string
	Categories  []string
	Rating      float64
	DistanceKm  float64
	Location    GeoPoint
	Available   bool
	HasTools    bool
	EcoFriendly bool
}

// ServesCategory reports whether category is the provider's primary or a
// registered category. Matching ignores case and surrounding space.
func (p ProviderProfile) ServesCategory(category string) bool {
	want := strings.TrimSpace(category)
	if want == "" {
		return false
	}
	if strings.EqualFold(strings.TrimSpace(p.Category), want) {
		return true
	}
	for _, c := range p.Categories {
		if strings.EqualFold(strings.TrimSpace(c), want) {
			return true
		}
	}
	return false
}

// JobQuotationInvite is the offer to one provider to quote on one job.
type JobQuotationInvite struct {
	ID            uuid.UUID
	JobID         uuid.UUID
	ProviderID    uuid.UUID
	ProviderEmail string
	JobCategory   string
	DistanceKm    float64
	InvitedAt     time.Time
	ExpiresAt     time.Time
	Responded     bool
	ResponseAt    *time.Time
	ViewedAt      *time.Time
	QuotationID   *uuid.UUID
	Status        InviteStatus
	UpdatedAt     time.Time
}

// IsOverdue reports whether the invite is still open past its expiry.
func (i JobQuotationInvite) IsOverdue(now time.Time) bool {
	return i.Status == InviteStatusInvited && !now.Before(i.ExpiresAt)
}

// LapseStatus is the status an overdue invite moves to. A provider who
// opened the invite and walked away ignored it; otherwise it simply expired.
func (i JobQuotationInvite) LapseStatus() InviteStatus {
	if i.ViewedAt != nil {
		return InviteStatusIgnored
	}
	return InviteStatusExpired
}

// QuotationDetails are the provider-editable terms of a quotation.
// Monetary amounts are in currency-less base units.
type QuotationDetails struct {
	Price         int64
	EstimatedTime *string
	Message       *string
	ProposedStart *time.Time
	IncludesTools bool
	EcoFriendly   bool
	ValidUntil    *time.Time
	Warranty      *string
	MaterialsCost *int64
	LaborCost     *int64
	CustomerNotes *string
}

// Validate enforces the quotation detail invariants.
func (d QuotationDetails) Validate() error {
	if d.Price < 0 {
		return Invalid("price must not be negative")
	}
	if d.MaterialsCost != nil && *d.MaterialsCost < 0 {
		return Invalid("materialsCost must not be negative")
	}
	if d.LaborCost != nil && *d.LaborCost < 0 {
		return Invalid("laborCost must not be negative")
	}
	return nil
}

// Quotation is a priced offer from a provider on a job.
type Quotation struct {
	ID            uuid.UUID
	JobID         uuid.UUID
	ProviderID    uuid.UUID
	ProviderEmail string
	CustomerID    *uuid.UUID
	InviteID      *uuid.UUID
	QuotationDetails
	Status      QuotationStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
	AcceptedAt  *time.Time
	RejectedAt  *time.Time
	CancelledAt *time.Time
	ExpiredAt   *time.Time
}

// IsStale reports whether a pending quotation has outlived valid_until.
func (q Quotation) IsStale(now time.Time) bool {
	return q.Status == QuotationStatusPending && q.ValidUntil != nil && !now.Before(*q.ValidUntil)
}

// Decide moves the quotation to next at now, stamping the decision time.
// Callers check CanTransitionTo first.
func (q *Quotation) Decide(next QuotationStatus, now time.Time) {
	q.Status = next
	q.UpdatedAt = now
	at := now
	switch next {
	case QuotationStatusAccepted:
		q.AcceptedAt = &at
	case QuotationStatusRejected:
		q.RejectedAt = &at
	case QuotationStatusCancelled:
		q.CancelledAt = &at
	case QuotationStatusExpired:
		q.ExpiredAt = &at
	}
}
