// Package quoting provides the job quotation domain module: eligibility
// criteria, provider invites, quotations, the event log and provider metrics.
package quoting

import (
	"time"

	"marketplace_quotes_backend/internal/adapters/storage"
	"marketplace_quotes_backend/internal/directory"
	apphttp "marketplace_quotes_backend/internal/http"
	"marketplace_quotes_backend/internal/quoting/eventlog"
	"marketplace_quotes_backend/internal/quoting/handler"
	"marketplace_quotes_backend/internal/quoting/metrics"
	"marketplace_quotes_backend/internal/quoting/repository"
	"marketplace_quotes_backend/internal/quoting/service"
	"marketplace_quotes_backend/internal/quoting/transport"
	"marketplace_quotes_backend/platform/clock"
	"marketplace_quotes_backend/platform/logger"
	"marketplace_quotes_backend/platform/validator"
)

// Dependencies are the infrastructure pieces the module is built from.
// Retries, Snapshots and Archive are optional.
type Dependencies struct {
	Store      repository.Store
	Clock      clock.Clock
	Log        *logger.Logger
	Validator  *validator.Validator
	Jobs       directory.JobDirectory
	Providers  directory.ProviderDirectory
	Retries    service.RetryScheduler
	RetryDelay time.Duration
	Snapshots  metrics.SnapshotStore
	// Archive and ArchiveBucket enable the event export endpoint.
	Archive       storage.ObjectStore
	ArchiveBucket string
	SweepBatch    int
}

// Module represents the quoting domain module
type Module struct {
	handler  *handler.Handler
	services handler.Services
}

// NewModule creates a new quoting module with all dependencies wired
func NewModule(deps Dependencies) (*Module, error) {
	if err := transport.RegisterValidators(deps.Validator); err != nil {
		return nil, err
	}

	c := deps.Clock
	if c == nil {
		c = clock.Real{}
	}
	log := eventlog.New(deps.Store, c)
	shared := service.Deps{
		Store:      deps.Store,
		Events:     log,
		Clock:      c,
		Log:        deps.Log,
		SweepBatch: deps.SweepBatch,
	}

	invites := service.NewInvitationManager(shared)
	quotes := service.NewQuoteLifecycle(shared, invites, deps.Jobs)
	svc := handler.Services{
		Matcher: service.NewMatcher(shared, invites, deps.Providers, service.MatcherOptions{
			Jobs:       deps.Jobs,
			Retries:    deps.Retries,
			RetryDelay: deps.RetryDelay,
		}),
		Invites: invites,
		Quotes:  quotes,
		Sweeper: service.NewSweeper(invites, quotes, c),
		Events:  log,
		Metrics: metrics.NewAggregator(log, deps.Snapshots, deps.Log),
	}
	if deps.Archive != nil {
		svc.Archiver = eventlog.NewArchiver(log, deps.Archive, deps.ArchiveBucket)
	}

	return &Module{
		handler:  handler.New(svc, deps.Validator),
		services: svc,
	}, nil
}

// Name returns the module name for logging
func (m *Module) Name() string {
	return "quoting"
}

// Services returns the service layer for the scheduler and event handlers.
func (m *Module) Services() handler.Services {
	return m.services
}

// RegisterRoutes registers the module's routes
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterJobRoutes(ctx.Protected.Group("/jobs"))
	m.handler.RegisterProviderRoutes(ctx.Protected.Group("/provider"))
	m.handler.RegisterQuotationRoutes(ctx.Protected.Group("/quotations"))
	m.handler.RegisterAdminRoutes(ctx.Admin)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
