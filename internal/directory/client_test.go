package directory

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"marketplace_quotes_backend/internal/quoting/domain"
	"marketplace_quotes_backend/platform/apperr"
	"marketplace_quotes_backend/platform/logger"

	"github.com/google/uuid"
)

func newTestClient(srv *httptest.Server) *Client {
	return NewClient(ClientConfig{
		JobServiceURL:      srv.URL,
		ProviderServiceURL: srv.URL,
		Timeout:            time.Second,
		MaxAttempts:        3,
		BackoffBase:        time.Millisecond,
	}, logger.Discard())
}

func TestGetJobDecodes(t *testing.T) {
	jobID, customerID := uuid.New(), uuid.New()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/jobs/"+jobID.String() {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"` + jobID.String() + `","customerId":"` + customerID.String() +
			`","category":"Plumbing","location":{"lat":52.1,"lon":4.3,"address":"Main 1"},"budgetMax":50000}`))
	}))
	defer srv.Close()

	job, err := newTestClient(srv).GetJob(context.Background(), jobID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if job.CustomerID != customerID || job.Category != "Plumbing" || job.Location.Address != "Main 1" {
		t.Fatalf("unexpected job %+v", job)
	}
	if job.BudgetMax == nil || *job.BudgetMax != 50000 || job.BudgetMin != nil {
		t.Fatalf("unexpected budget %+v %+v", job.BudgetMin, job.BudgetMax)
	}
}

func TestGetJobNotFoundIsNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := newTestClient(srv).GetJob(context.Background(), uuid.New())
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected a single call, got %d", calls)
	}
}

func TestFindCandidatesRetriesServerErrors(t *testing.T) {
	var calls int32
	providerID := uuid.New()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		if r.URL.Query().Get("category") != "Plumbing" {
			t.Errorf("expected category query, got %q", r.URL.RawQuery)
		}
		_, _ = w.Write([]byte(`[{"id":"` + providerID.String() + `","category":"Plumbing","rating":4.5,"distanceKm":3,"available":true}]`))
	}))
	defer srv.Close()

	got, err := newTestClient(srv).FindCandidates(context.Background(), "Plumbing", domain.GeoPoint{Latitude: 1, Longitude: 2}, 10)
	if err != nil {
		t.Fatalf("find candidates: %v", err)
	}
	if len(got) != 1 || got[0].ID != providerID || !got[0].Available {
		t.Fatalf("unexpected candidates %+v", got)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestExhaustedRetriesReportUnavailable(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := newTestClient(srv).GetProvider(context.Background(), uuid.New())
	if !errors.Is(err, domain.ErrUpstreamUnavailable) {
		t.Fatalf("expected upstream unavailable, got %v", err)
	}
	if apperr.GetKind(err) != apperr.KindUnavailable {
		t.Fatalf("expected unavailable kind, got %v", apperr.GetKind(err))
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestClientErrorIsPermanent(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := newTestClient(srv).GetProvider(context.Background(), uuid.New())
	if err == nil || errors.Is(err, domain.ErrUpstreamUnavailable) {
		t.Fatalf("expected a permanent error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected one call, got %d", calls)
	}
}

func TestStaticDirectory(t *testing.T) {
	ctx := context.Background()
	s := NewStatic()
	plumber := domain.ProviderProfile{ID: uuid.New(), Category: "Plumbing"}
	painter := domain.ProviderProfile{ID: uuid.New(), Category: "Painting", Categories: []string{"plumbing"}}
	other := domain.ProviderProfile{ID: uuid.New(), Category: "Roofing"}
	for _, p := range []domain.ProviderProfile{plumber, painter, other} {
		s.PutProvider(p)
	}

	got, err := s.FindCandidates(ctx, "Plumbing", domain.GeoPoint{}, 10)
	if err != nil || len(got) != 2 {
		t.Fatalf("expected 2 plumbing candidates, got %d (%v)", len(got), err)
	}

	if _, err := s.GetJob(ctx, uuid.New()); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found job, got %v", err)
	}

	s.SetErr(errors.New("down"))
	if _, err := s.FindCandidates(ctx, "Plumbing", domain.GeoPoint{}, 10); err == nil {
		t.Fatal("expected injected error")
	}
}
