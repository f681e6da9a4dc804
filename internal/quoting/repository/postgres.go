package repository

import (
	"context"
	"errors"
	"fmt"

	"marketplace_quotes_backend/internal/quoting/domain"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	tableCriteria   = "job_eligibility_criteria"
	tableInvites    = "job_quotation_invites"
	tableQuotations = "quotations"
	tableEvents     = "quote_events"

	constraintInvitePair       = "uq_job_quotation_invites_job_provider"
	constraintPendingQuotation = "uq_quotations_one_pending_per_provider"
	constraintAcceptedPerJob   = "uq_quotations_one_accepted_per_job"
	constraintCriteriaPK       = "job_eligibility_criteria_pkey"

	pgUniqueViolation = "23505"

	// eventLogLockKey serializes event appends so sequence order equals
	// commit order. Incremental metric folds rely on that.
	eventLogLockKey int64 = 0x51554f5445
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres is the pgx-backed Store.
type Postgres struct {
	pool *pgxpool.Pool
	sb   sq.StatementBuilderType
}

// NewPostgres creates a Store over pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{
		pool: pool,
		sb:   sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// Ping checks connectivity.
func (r *Postgres) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// WithinJob opens a transaction and takes a transaction-scoped advisory
// lock on the job before running fn.
func (r *Postgres) WithinJob(ctx context.Context, jobID uuid.UUID, fn func(tx Tx) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin job transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1::text, 0))`, jobID.String()); err != nil {
		return fmt.Errorf("lock job %s: %w", jobID, err)
	}

	if err := fn(&postgresTx{rw: rw{q: tx, sb: r.sb}}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit job transaction: %w", err)
	}
	return nil
}

func (r *Postgres) reader() rw { return rw{q: r.pool, sb: r.sb} }

func (r *Postgres) GetCriteria(ctx context.Context, jobID uuid.UUID) (domain.JobEligibilityCriteria, error) {
	return r.reader().GetCriteria(ctx, jobID)
}

func (r *Postgres) GetInvite(ctx context.Context, id uuid.UUID) (domain.JobQuotationInvite, error) {
	return r.reader().GetInvite(ctx, id)
}

func (r *Postgres) FindInvite(ctx context.Context, jobID, providerID uuid.UUID) (domain.JobQuotationInvite, bool, error) {
	return r.reader().FindInvite(ctx, jobID, providerID)
}

func (r *Postgres) ListInvites(ctx context.Context, params InviteListParams) ([]domain.JobQuotationInvite, error) {
	return r.reader().ListInvites(ctx, params)
}

func (r *Postgres) GetQuotation(ctx context.Context, id uuid.UUID) (domain.Quotation, error) {
	return r.reader().GetQuotation(ctx, id)
}

func (r *Postgres) ListQuotations(ctx context.Context, params QuotationListParams) ([]domain.Quotation, error) {
	return r.reader().ListQuotations(ctx, params)
}

// rw holds the statement helpers shared by the pool and transaction paths.
type rw struct {
	q  querier
	sb sq.StatementBuilderType
}

type postgresTx struct {
	rw
}

func (t *postgresTx) InsertCriteria(ctx context.Context, c domain.JobEligibilityCriteria) error {
	query, args, err := t.sb.Insert(tableCriteria).
		Columns(
			"job_id", "customer_id", "max_distance_km", "required_category", "min_provider_rating",
			"max_providers_invited", "invite_expires_hours", "anchor_latitude", "anchor_longitude",
			"anchor_address", "preferred_start", "deadline", "requires_tools", "eco_friendly_only",
			"emergency_job", "created_at",
		).
		Values(
			c.JobID, c.CustomerID, c.MaxDistanceKm, c.RequiredCategory, c.MinProviderRating,
			c.MaxProvidersInvited, c.InviteExpiresHours, c.Anchor.Latitude, c.Anchor.Longitude,
			c.Anchor.Address, c.PreferredStart, c.Deadline, c.RequiresTools, c.EcoFriendlyOnly,
			c.EmergencyJob, c.CreatedAt,
		).ToSql()
	if err != nil {
		return fmt.Errorf("build insert criteria: %w", err)
	}

	if _, err := t.q.Exec(ctx, query, args...); err != nil {
		if isUniqueViolation(err, constraintCriteriaPK) {
			return domain.CriteriaExists(c.JobID)
		}
		return fmt.Errorf("insert criteria: %w", err)
	}
	return nil
}

func (r rw) GetCriteria(ctx context.Context, jobID uuid.UUID) (domain.JobEligibilityCriteria, error) {
	query, args, err := r.sb.Select(
		"job_id", "customer_id", "max_distance_km", "required_category", "min_provider_rating",
		"max_providers_invited", "invite_expires_hours", "anchor_latitude", "anchor_longitude",
		"anchor_address", "preferred_start", "deadline", "requires_tools", "eco_friendly_only",
		"emergency_job", "created_at",
	).From(tableCriteria).Where(sq.Eq{"job_id": jobID}).ToSql()
	if err != nil {
		return domain.JobEligibilityCriteria{}, fmt.Errorf("build get criteria: %w", err)
	}

	var c domain.JobEligibilityCriteria
	err = r.q.QueryRow(ctx, query, args...).Scan(
		&c.JobID, &c.CustomerID, &c.MaxDistanceKm, &c.RequiredCategory, &c.MinProviderRating,
		&c.MaxProvidersInvited, &c.InviteExpiresHours, &c.Anchor.Latitude, &c.Anchor.Longitude,
		&c.Anchor.Address, &c.PreferredStart, &c.Deadline, &c.RequiresTools, &c.EcoFriendlyOnly,
		&c.EmergencyJob, &c.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.JobEligibilityCriteria{}, domain.NoCriteria(jobID)
	}
	if err != nil {
		return domain.JobEligibilityCriteria{}, fmt.Errorf("get criteria: %w", err)
	}
	return c, nil
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == pgUniqueViolation && (constraint == "" || pgErr.ConstraintName == constraint)
}

var _ Store = (*Postgres)(nil)
var _ Tx = (*postgresTx)(nil)
