package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"marketplace_quotes_backend/internal/quoting/domain"

	"github.com/google/uuid"
)

// Memory is an in-process Store used by tests and by the API when no
// database is configured. One mutex serializes every transaction, which is
// stronger than the per-job lock the Postgres store provides.
type Memory struct {
	mu       sync.Mutex
	criteria map[uuid.UUID]domain.JobEligibilityCriteria
	invites  map[uuid.UUID]domain.JobQuotationInvite
	quotes   map[uuid.UUID]domain.Quotation
	events   []domain.QuoteEvent
	seq      int64
}

// NewMemory creates an empty store.
func NewMemory() *Memory {
	return &Memory{
		criteria: make(map[uuid.UUID]domain.JobEligibilityCriteria),
		invites:  make(map[uuid.UUID]domain.JobQuotationInvite),
		quotes:   make(map[uuid.UUID]domain.Quotation),
	}
}

// Ping always succeeds.
func (m *Memory) Ping(context.Context) error { return nil }

// WithinJob runs fn against a staged view and applies it on success.
func (m *Memory) WithinJob(ctx context.Context, _ uuid.UUID, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memoryTx{
		m:        m,
		criteria: make(map[uuid.UUID]domain.JobEligibilityCriteria),
		invites:  make(map[uuid.UUID]domain.JobQuotationInvite),
		quotes:   make(map[uuid.UUID]domain.Quotation),
	}
	if err := fn(tx); err != nil {
		return err
	}

	for id, c := range tx.criteria {
		m.criteria[id] = c
	}
	for id, inv := range tx.invites {
		m.invites[id] = inv
	}
	for id, q := range tx.quotes {
		m.quotes[id] = q
	}
	m.events = append(m.events, tx.events...)
	return nil
}

func (m *Memory) GetCriteria(_ context.Context, jobID uuid.UUID) (domain.JobEligibilityCriteria, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getCriteria(jobID)
}

func (m *Memory) getCriteria(jobID uuid.UUID) (domain.JobEligibilityCriteria, error) {
	c, ok := m.criteria[jobID]
	if !ok {
		return domain.JobEligibilityCriteria{}, domain.NoCriteria(jobID)
	}
	return c, nil
}

func (m *Memory) GetInvite(_ context.Context, id uuid.UUID) (domain.JobQuotationInvite, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invites[id]
	if !ok {
		return domain.JobQuotationInvite{}, domain.NotFound("invite", id)
	}
	return inv, nil
}

func (m *Memory) FindInvite(_ context.Context, jobID, providerID uuid.UUID) (domain.JobQuotationInvite, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := findInvite(m.invites, nil, jobID, providerID)
	return inv, ok, nil
}

func (m *Memory) ListInvites(_ context.Context, params InviteListParams) ([]domain.JobQuotationInvite, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return listInvites(m.invites, nil, params), nil
}

func (m *Memory) GetQuotation(_ context.Context, id uuid.UUID) (domain.Quotation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.quotes[id]
	if !ok {
		return domain.Quotation{}, domain.NotFound("quotation", id)
	}
	return q, nil
}

func (m *Memory) ListQuotations(_ context.Context, params QuotationListParams) ([]domain.Quotation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return listQuotations(m.quotes, nil, params), nil
}

func (m *Memory) ListOverdueInvites(_ context.Context, now time.Time, limit int) ([]domain.JobQuotationInvite, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.JobQuotationInvite
	for _, inv := range m.invites {
		if inv.IsOverdue(now) {
			out = append(out, inv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	return truncate(out, limit), nil
}

func (m *Memory) ListStaleQuotations(_ context.Context, now time.Time, limit int) ([]domain.Quotation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Quotation
	for _, q := range m.quotes {
		if q.IsStale(now) {
			out = append(out, q)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ValidUntil.Before(*out[j].ValidUntil) })
	return truncate(out, limit), nil
}

func (m *Memory) QueryEvents(ctx context.Context, filter domain.EventFilter) ([]domain.QuoteEvent, error) {
	var out []domain.QuoteEvent
	err := m.ScanEvents(ctx, filter, func(e domain.QuoteEvent) error {
		out = append(out, e)
		return nil
	})
	return out, err
}

// ScanEvents snapshots the matching events and then calls fn without
// holding the lock, so fn may call back into the store.
func (m *Memory) ScanEvents(ctx context.Context, filter domain.EventFilter, fn func(domain.QuoteEvent) error) error {
	m.mu.Lock()
	matched := make([]domain.QuoteEvent, 0)
	for _, e := range m.events {
		if filter.Matches(e) {
			matched = append(matched, cloneEvent(e))
		}
	}
	m.mu.Unlock()

	sort.SliceStable(matched, func(i, j int) bool { return domain.EventLess(matched[i], matched[j]) })
	matched = truncate(matched, filter.Limit)

	for _, e := range matched {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return nil
}

func (m *Memory) MarkEventProcessed(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.events {
		if m.events[i].ID == id {
			m.events[i].Processed = true
			return nil
		}
	}
	return domain.NotFound("event", id)
}

type memoryTx struct {
	m        *Memory
	criteria map[uuid.UUID]domain.JobEligibilityCriteria
	invites  map[uuid.UUID]domain.JobQuotationInvite
	quotes   map[uuid.UUID]domain.Quotation
	events   []domain.QuoteEvent
}

func (tx *memoryTx) GetCriteria(_ context.Context, jobID uuid.UUID) (domain.JobEligibilityCriteria, error) {
	if c, ok := tx.criteria[jobID]; ok {
		return c, nil
	}
	return tx.m.getCriteria(jobID)
}

func (tx *memoryTx) GetInvite(_ context.Context, id uuid.UUID) (domain.JobQuotationInvite, error) {
	if inv, ok := tx.invites[id]; ok {
		return inv, nil
	}
	if inv, ok := tx.m.invites[id]; ok {
		return inv, nil
	}
	return domain.JobQuotationInvite{}, domain.NotFound("invite", id)
}

func (tx *memoryTx) FindInvite(_ context.Context, jobID, providerID uuid.UUID) (domain.JobQuotationInvite, bool, error) {
	inv, ok := findInvite(tx.m.invites, tx.invites, jobID, providerID)
	return inv, ok, nil
}

func (tx *memoryTx) ListInvites(_ context.Context, params InviteListParams) ([]domain.JobQuotationInvite, error) {
	return listInvites(tx.m.invites, tx.invites, params), nil
}

func (tx *memoryTx) GetQuotation(_ context.Context, id uuid.UUID) (domain.Quotation, error) {
	if q, ok := tx.quotes[id]; ok {
		return q, nil
	}
	if q, ok := tx.m.quotes[id]; ok {
		return q, nil
	}
	return domain.Quotation{}, domain.NotFound("quotation", id)
}

func (tx *memoryTx) ListQuotations(_ context.Context, params QuotationListParams) ([]domain.Quotation, error) {
	return listQuotations(tx.m.quotes, tx.quotes, params), nil
}

func (tx *memoryTx) InsertCriteria(_ context.Context, c domain.JobEligibilityCriteria) error {
	if _, ok := tx.criteria[c.JobID]; ok {
		return domain.CriteriaExists(c.JobID)
	}
	if _, ok := tx.m.criteria[c.JobID]; ok {
		return domain.CriteriaExists(c.JobID)
	}
	tx.criteria[c.JobID] = c
	return nil
}

func (tx *memoryTx) InsertInvite(_ context.Context, inv domain.JobQuotationInvite) error {
	if _, exists := findInvite(tx.m.invites, tx.invites, inv.JobID, inv.ProviderID); exists {
		return domain.DuplicateInvite(inv.JobID, inv.ProviderID)
	}
	tx.invites[inv.ID] = inv
	return nil
}

func (tx *memoryTx) UpdateInvite(ctx context.Context, inv domain.JobQuotationInvite, expected domain.InviteStatus) (bool, error) {
	current, err := tx.GetInvite(ctx, inv.ID)
	if err != nil {
		return false, err
	}
	if current.Status != expected {
		return false, nil
	}
	tx.invites[inv.ID] = inv
	return true, nil
}

func (tx *memoryTx) InsertQuotation(_ context.Context, q domain.Quotation) error {
	if q.Status == domain.QuotationStatusPending {
		pending := domain.QuotationStatusPending
		existing := listQuotations(tx.m.quotes, tx.quotes, QuotationListParams{
			JobID:      &q.JobID,
			ProviderID: &q.ProviderID,
			Status:     &pending,
		})
		if len(existing) > 0 {
			return domain.DuplicatePendingQuote(q.JobID, q.ProviderID)
		}
	}
	tx.quotes[q.ID] = q
	return nil
}

func (tx *memoryTx) UpdateQuotation(ctx context.Context, q domain.Quotation, expected domain.QuotationStatus) (bool, error) {
	current, err := tx.GetQuotation(ctx, q.ID)
	if err != nil {
		return false, err
	}
	if current.Status != expected {
		return false, nil
	}
	if q.Status == domain.QuotationStatusAccepted {
		accepted := domain.QuotationStatusAccepted
		others := listQuotations(tx.m.quotes, tx.quotes, QuotationListParams{JobID: &q.JobID, Status: &accepted})
		for _, other := range others {
			if other.ID != q.ID {
				return false, nil
			}
		}
	}
	tx.quotes[q.ID] = q
	return true, nil
}

func (tx *memoryTx) AppendEvent(_ context.Context, e *domain.QuoteEvent) error {
	tx.m.seq++
	e.Sequence = tx.m.seq
	tx.events = append(tx.events, cloneEvent(*e))
	return nil
}

func findInvite(base, overlay map[uuid.UUID]domain.JobQuotationInvite, jobID, providerID uuid.UUID) (domain.JobQuotationInvite, bool) {
	for _, inv := range overlay {
		if inv.JobID == jobID && inv.ProviderID == providerID {
			return inv, true
		}
	}
	for _, inv := range base {
		if inv.JobID == jobID && inv.ProviderID == providerID {
			return inv, true
		}
	}
	return domain.JobQuotationInvite{}, false
}

func listInvites(base, overlay map[uuid.UUID]domain.JobQuotationInvite, p InviteListParams) []domain.JobQuotationInvite {
	merged := make(map[uuid.UUID]domain.JobQuotationInvite, len(base)+len(overlay))
	for id, inv := range base {
		merged[id] = inv
	}
	for id, inv := range overlay {
		merged[id] = inv
	}

	out := make([]domain.JobQuotationInvite, 0)
	for _, inv := range merged {
		if p.JobID != nil && inv.JobID != *p.JobID {
			continue
		}
		if p.ProviderID != nil && inv.ProviderID != *p.ProviderID {
			continue
		}
		if p.Status != nil && inv.Status != *p.Status {
			continue
		}
		out = append(out, inv)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].InvitedAt.Equal(out[j].InvitedAt) {
			return out[i].InvitedAt.After(out[j].InvitedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return truncate(out, p.Limit)
}

func listQuotations(base, overlay map[uuid.UUID]domain.Quotation, p QuotationListParams) []domain.Quotation {
	merged := make(map[uuid.UUID]domain.Quotation, len(base)+len(overlay))
	for id, q := range base {
		merged[id] = q
	}
	for id, q := range overlay {
		merged[id] = q
	}

	out := make([]domain.Quotation, 0)
	for _, q := range merged {
		if p.JobID != nil && q.JobID != *p.JobID {
			continue
		}
		if p.ProviderID != nil && q.ProviderID != *p.ProviderID {
			continue
		}
		if p.Status != nil && q.Status != *p.Status {
			continue
		}
		out = append(out, q)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return truncate(out, p.Limit)
}

func cloneEvent(e domain.QuoteEvent) domain.QuoteEvent {
	if e.Payload != nil {
		p := make(domain.Payload, len(e.Payload))
		for k, v := range e.Payload {
			p[k] = v
		}
		e.Payload = p
	}
	return e
}

func truncate[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}

var _ Store = (*Memory)(nil)
