// Package directory reads jobs and provider profiles from the services that
// own them. The quoting core only ever consumes these through the interfaces
// below.
package directory

import (
	"context"

	"marketplace_quotes_backend/internal/quoting/domain"

	"github.com/google/uuid"
)

// Job is the slice of a posted job that matching needs.
type Job struct {
	ID         uuid.UUID
	CustomerID uuid.UUID
	Category   string
	Location   domain.GeoPoint
	BudgetMin  *int64
	BudgetMax  *int64
}

// JobDirectory looks up jobs by id.
type JobDirectory interface {
	GetJob(ctx context.Context, jobID uuid.UUID) (Job, error)
}

// ProviderDirectory looks up provider profiles.
type ProviderDirectory interface {
	GetProvider(ctx context.Context, providerID uuid.UUID) (domain.ProviderProfile, error)
	// FindCandidates returns providers serving category within radiusKm of
	// anchor. DistanceKm on each profile is relative to anchor.
	FindCandidates(ctx context.Context, category string, anchor domain.GeoPoint, radiusKm float64) ([]domain.ProviderProfile, error)
}
