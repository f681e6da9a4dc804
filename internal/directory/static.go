package directory

import (
	"context"
	"sync"

	"marketplace_quotes_backend/internal/quoting/domain"

	"github.com/google/uuid"
)

// Static is an in-memory directory used for local runs and tests. Candidate
// search filters by category only and trusts the stored DistanceKm.
type Static struct {
	mu        sync.RWMutex
	jobs      map[uuid.UUID]Job
	providers map[uuid.UUID]domain.ProviderProfile
	// Err, when set, is returned by every call.
	Err error
}

func NewStatic() *Static {
	return &Static{
		jobs:      make(map[uuid.UUID]Job),
		providers: make(map[uuid.UUID]domain.ProviderProfile),
	}
}

func (s *Static) PutJob(job Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
}

func (s *Static) PutProvider(p domain.ProviderProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.providers[p.ID] = p
}

func (s *Static) SetErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Err = err
}

func (s *Static) GetJob(_ context.Context, jobID uuid.UUID) (Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.Err != nil {
		return Job{}, s.Err
	}
	job, ok := s.jobs[jobID]
	if !ok {
		return Job{}, domain.NotFound("job", jobID)
	}
	return job, nil
}

func (s *Static) GetProvider(_ context.Context, providerID uuid.UUID) (domain.ProviderProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.Err != nil {
		return domain.ProviderProfile{}, s.Err
	}
	p, ok := s.providers[providerID]
	if !ok {
		return domain.ProviderProfile{}, domain.NotFound("provider", providerID)
	}
	return p, nil
}

func (s *Static) FindCandidates(_ context.Context, category string, _ domain.GeoPoint, _ float64) ([]domain.ProviderProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.Err != nil {
		return nil, s.Err
	}
	out := make([]domain.ProviderProfile, 0)
	for _, p := range s.providers {
		if p.ServesCategory(category) {
			out = append(out, p)
		}
	}
	return out, nil
}

var (
	_ JobDirectory      = (*Static)(nil)
	_ ProviderDirectory = (*Static)(nil)
)
