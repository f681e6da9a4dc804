// Package eligibility decides which providers may be invited to quote on a job.
package eligibility

import (
	"sort"

	"marketplace_quotes_backend/internal/quoting/domain"
)

// Evaluate filters candidates against criteria and returns at most
// criteria.MaxProvidersInvited of them, best first.
//
// Ranking is rating descending, then distance ascending, then provider id.
// An empty result is a normal outcome. A nil criteria fails with NoCriteria.
// The function has no side effects and does not modify candidates.
func Evaluate(criteria *domain.JobEligibilityCriteria, candidates []domain.ProviderProfile) ([]domain.ProviderProfile, error) {
	if criteria == nil {
		return nil, domain.NoCriteria(nilJob{})
	}

	eligible := make([]domain.ProviderProfile, 0, len(candidates))
	seen := make(map[string]struct{}, len(candidates))
	for _, p := range candidates {
		key := p.ID.String()
		if _, dup := seen[key]; dup {
			continue
		}
		if !Qualifies(*criteria, p) {
			continue
		}
		seen[key] = struct{}{}
		eligible = append(eligible, p)
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		a, b := eligible[i], eligible[j]
		if a.Rating != b.Rating {
			return a.Rating > b.Rating
		}
		if a.DistanceKm != b.DistanceKm {
			return a.DistanceKm < b.DistanceKm
		}
		return a.ID.String() < b.ID.String()
	})

	limit := criteria.MaxProvidersInvited
	if limit < 0 {
		limit = 0
	}
	if len(eligible) > limit {
		eligible = eligible[:limit]
	}
	return eligible, nil
}

// Qualifies reports whether a single provider passes every filter.
func Qualifies(c domain.JobEligibilityCriteria, p domain.ProviderProfile) bool {
	if !p.ServesCategory(c.RequiredCategory) {
		return false
	}
	if p.DistanceKm < 0 || p.DistanceKm > c.MaxDistanceKm {
		return false
	}
	if c.MinProviderRating != nil && p.Rating < *c.MinProviderRating {
		return false
	}
	if !p.Available {
		return false
	}
	if c.RequiresTools && !p.HasTools {
		return false
	}
	if c.EcoFriendlyOnly && !p.EcoFriendly {
		return false
	}
	return true
}

type nilJob struct{}

func (nilJob) String() string { return "(unknown)" }
