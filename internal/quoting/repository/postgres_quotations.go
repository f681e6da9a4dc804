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

var quotationColumns = []string{
	"id", "job_id", "provider_id", "provider_email", "customer_id", "invite_id",
	"price", "estimated_time", "message", "proposed_start", "includes_tools", "eco_friendly",
	"valid_until", "warranty", "materials_cost", "labor_cost", "customer_notes",
	"status", "created_at", "updated_at", "accepted_at", "rejected_at", "cancelled_at", "expired_at",
}

func scanQuotation(row pgx.Row) (domain.Quotation, error) {
	var q domain.Quotation
	var status string
	err := row.Scan(
		&q.ID, &q.JobID, &q.ProviderID, &q.ProviderEmail, &q.CustomerID, &q.InviteID,
		&q.Price, &q.EstimatedTime, &q.Message, &q.ProposedStart, &q.IncludesTools, &q.EcoFriendly,
		&q.ValidUntil, &q.Warranty, &q.MaterialsCost, &q.LaborCost, &q.CustomerNotes,
		&status, &q.CreatedAt, &q.UpdatedAt, &q.AcceptedAt, &q.RejectedAt, &q.CancelledAt, &q.ExpiredAt,
	)
	q.Status = domain.QuotationStatus(status)
	return q, err
}

func (r rw) GetQuotation(ctx context.Context, id uuid.UUID) (domain.Quotation, error) {
	query, args, err := r.sb.Select(quotationColumns...).From(tableQuotations).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return domain.Quotation{}, fmt.Errorf("build get quotation: %w", err)
	}
	q, err := scanQuotation(r.q.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Quotation{}, domain.NotFound("quotation", id)
	}
	if err != nil {
		return domain.Quotation{}, fmt.Errorf("get quotation: %w", err)
	}
	return q, nil
}

func (r rw) ListQuotations(ctx context.Context, params QuotationListParams) ([]domain.Quotation, error) {
	b := r.sb.Select(quotationColumns...).From(tableQuotations).OrderBy("created_at ASC", "id ASC")
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
	return r.queryQuotations(ctx, b)
}

func (r rw) queryQuotations(ctx context.Context, b sq.SelectBuilder) ([]domain.Quotation, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list quotations: %w", err)
	}
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list quotations: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Quotation, 0)
	for rows.Next() {
		q, err := scanQuotation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan quotation: %w", err)
		}
		out = append(out, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate quotations: %w", err)
	}
	return out, nil
}

// ListStaleQuotations returns pending quotations whose valid_until has passed.
func (r *Postgres) ListStaleQuotations(ctx context.Context, now time.Time, limit int) ([]domain.Quotation, error) {
	b := r.sb.Select(quotationColumns...).From(tableQuotations).
		Where(sq.Eq{"status": string(domain.QuotationStatusPending)}).
		Where(sq.NotEq{"valid_until": nil}).
		Where(sq.LtOrEq{"valid_until": now}).
		OrderBy("valid_until ASC")
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}
	return r.reader().queryQuotations(ctx, b)
}

func (t *postgresTx) InsertQuotation(ctx context.Context, q domain.Quotation) error {
	query, args, err := t.sb.Insert(tableQuotations).Columns(quotationColumns...).Values(
		q.ID, q.JobID, q.ProviderID, q.ProviderEmail, q.CustomerID, q.InviteID,
		q.Price, q.EstimatedTime, q.Message, q.ProposedStart, q.IncludesTools, q.EcoFriendly,
		q.ValidUntil, q.Warranty, q.MaterialsCost, q.LaborCost, q.CustomerNotes,
		string(q.Status), q.CreatedAt, q.UpdatedAt, q.AcceptedAt, q.RejectedAt, q.CancelledAt, q.ExpiredAt,
	).ToSql()
	if err != nil {
		return fmt.Errorf("build insert quotation: %w", err)
	}
	if _, err := t.q.Exec(ctx, query, args...); err != nil {
		if isUniqueViolation(err, constraintPendingQuotation) {
			return domain.DuplicatePendingQuote(q.JobID, q.ProviderID)
		}
		return fmt.Errorf("insert quotation: %w", err)
	}
	return nil
}

// UpdateQuotation is a compare-and-swap on status. A second acceptance on
// the same job trips the partial unique index and reports not written.
func (t *postgresTx) UpdateQuotation(ctx context.Context, q domain.Quotation, expected domain.QuotationStatus) (bool, error) {
	query, args, err := t.sb.Update(tableQuotations).SetMap(map[string]any{
		"price":          q.Price,
		"estimated_time": q.EstimatedTime,
		"message":        q.Message,
		"proposed_start": q.ProposedStart,
		"includes_tools": q.IncludesTools,
		"eco_friendly":   q.EcoFriendly,
		"valid_until":    q.ValidUntil,
		"warranty":       q.Warranty,
		"materials_cost": q.MaterialsCost,
		"labor_cost":     q.LaborCost,
		"customer_notes": q.CustomerNotes,
		"invite_id":      q.InviteID,
		"status":         string(q.Status),
		"updated_at":     q.UpdatedAt,
		"accepted_at":    q.AcceptedAt,
		"rejected_at":    q.RejectedAt,
		"cancelled_at":   q.CancelledAt,
		"expired_at":     q.ExpiredAt,
	}).Where(sq.Eq{"id": q.ID, "status": string(expected)}).ToSql()
	if err != nil {
		return false, fmt.Errorf("build update quotation: %w", err)
	}

	tag, err := t.q.Exec(ctx, query, args...)
	if err != nil {
		if isUniqueViolation(err, constraintAcceptedPerJob) {
			return false, nil
		}
		return false, fmt.Errorf("update quotation: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
