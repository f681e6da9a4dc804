package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"marketplace_quotes_backend/internal/quoting/domain"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var inviteColumns = []string{
	"id", "job_id", "provider_id", "provider_email", "job_category", "distance_km",
	"invited_at", "expires_at", "responded", "response_at", "viewed_at", "quotation_id",
	"status", "updated_at",
}

func scanInvite(row pgx.Row) (domain.JobQuotationInvite, error) {
	var inv domain.JobQuotationInvite
	var status string
	err := row.Scan(
		&inv.ID, &inv.JobID, &inv.ProviderID, &inv.ProviderEmail, &inv.JobCategory, &inv.DistanceKm,
		&inv.InvitedAt, &inv.ExpiresAt, &inv.Responded, &inv.ResponseAt, &inv.ViewedAt, &inv.QuotationID,
		&status, &inv.UpdatedAt,
	)
	inv.Status = domain.InviteStatus(status)
	return inv, err
}

func (r rw) GetInvite(ctx context.Context, id uuid.UUID) (domain.JobQuotationInvite, error) {
	query, args, err := r.sb.Select(inviteColumns...).From(tableInvites).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return domain.JobQuotationInvite{}, fmt.Errorf("build get invite: %w", err)
	}
	inv, err := scanInvite(r.q.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.JobQuotationInvite{}, domain.NotFound("invite", id)
	}
	if err != nil {
		return domain.JobQuotationInvite{}, fmt.Errorf("get invite: %w", err)
	}
	return inv, nil
}

func (r rw) FindInvite(ctx context.Context, jobID, providerID uuid.UUID) (domain.JobQuotationInvite, bool, error) {
	query, args, err := r.sb.Select(inviteColumns...).From(tableInvites).
		Where(sq.Eq{"job_id": jobID, "provider_id": providerID}).ToSql()
	if err != nil {
		return domain.JobQuotationInvite{}, false, fmt.Errorf("build find invite: %w", err)
	}
	inv, err := scanInvite(r.q.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.JobQuotationInvite{}, false, nil
	}
	if err != nil {
		return domain.JobQuotationInvite{}, false, fmt.Errorf("find invite: %w", err)
	}
	return inv, true, nil
}

func (r rw) ListInvites(ctx context.Context, params InviteListParams) ([]domain.JobQuotationInvite, error) {
	b := r.sb.Select(inviteColumns...).From(tableInvites).OrderBy("invited_at DESC", "id ASC")
	if params.JobID != nil {
		b = b.Where(sq.Eq{"job_id": *params.JobID})
	}
	if params.ProviderID != nil {
		b = b.Where(sq.Eq{"provider_id": *params.ProviderID})
	}
	if params.Status != nil {
		b = b.Where(sq.Eq{"status": string(*params.Status)})
	}
	if params.Limit > 0 {
		b = b.Limit(uint64(params.Limit))
	}
	return r.queryInvites(ctx, b)
}

func (r rw) queryInvites(ctx context.Context, b sq.SelectBuilder) ([]domain.JobQuotationInvite, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list invites: %w", err)
	}
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list invites: %w", err)
	}
	defer rows.Close()

	out := make([]domain.JobQuotationInvite, 0)
	for rows.Next() {
		inv, err := scanInvite(rows)
		if err != nil {
			return nil, fmt.Errorf("scan invite: %w", err)
		}
		out = append(out, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate invites: %w", err)
	}
	return out, nil
}

// ListOverdueInvites returns open invites whose expiry has passed, oldest first.
func (r *Postgres) ListOverdueInvites(ctx context.Context, now time.Time, limit int) ([]domain.JobQuotationInvite, error) {
	b := r.sb.Select(inviteColumns...).From(tableInvites).
		Where(sq.Eq{"status": string(domain.InviteStatusInvited)}).
		Where(sq.LtOrEq{"expires_at": now}).
		OrderBy("expires_at ASC")
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}
	return r.reader().queryInvites(ctx, b)
}

func (t *postgresTx) InsertInvite(ctx context.Context, inv domain.JobQuotationInvite) error {
	query, args, err := t.sb.Insert(tableInvites).Columns(inviteColumns...).Values(
		inv.ID, inv.JobID, inv.ProviderID, inv.ProviderEmail, inv.JobCategory, inv.DistanceKm,
		inv.InvitedAt, inv.ExpiresAt, inv.Responded, inv.ResponseAt, inv.ViewedAt, inv.QuotationID,
		string(inv.Status), inv.UpdatedAt,
	).ToSql()
	if err != nil {
		return fmt.Errorf("build insert invite: %w", err)
	}
	if _, err := t.q.Exec(ctx, query, args...); err != nil {
		if isUniqueViolation(err, constraintInvitePair) {
			return domain.DuplicateInvite(inv.JobID, inv.ProviderID)
		}
		return fmt.Errorf("insert invite: %w", err)
	}
	return nil
}

func (t *postgresTx) UpdateInvite(ctx context.Context, inv domain.JobQuotationInvite, expected domain.InviteStatus) (bool, error) {
	query, args, err := t.sb.Update(tableInvites).SetMap(map[string]any{
		"responded":    inv.Responded,
		"response_at":  inv.ResponseAt,
		"viewed_at":    inv.ViewedAt,
		"quotation_id": inv.QuotationID,
		"status":       string(inv.Status),
		"updated_at":   inv.UpdatedAt,
	}).Where(sq.Eq{"id": inv.ID, "status": string(expected)}).ToSql()
	if err != nil {
		return false, fmt.Errorf("build update invite: %w", err)
	}
	tag, err := t.q.Exec(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("update invite: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
