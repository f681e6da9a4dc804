package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"marketplace_quotes_backend/internal/quoting/domain"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var eventColumns = []string{
	"id", "sequence", "event_type", "quote_id", "invite_id", "job_id", "provider_id",
	"customer_id", "payload", "processed", "created_at",
}

func scanEvent(row pgx.Row) (domain.QuoteEvent, error) {
	var e domain.QuoteEvent
	var eventType string
	var payload []byte
	if err := row.Scan(
		&e.ID, &e.Sequence, &eventType, &e.QuoteID, &e.InviteID, &e.JobID, &e.ProviderID,
		&e.CustomerID, &payload, &e.Processed, &e.CreatedAt,
	); err != nil {
		return domain.QuoteEvent{}, err
	}
	e.Type = domain.EventType(eventType)
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &e.Payload); err != nil {
			return domain.QuoteEvent{}, fmt.Errorf("decode payload of event %s: %w", e.ID, err)
		}
	}
	return e, nil
}

// AppendEvent takes the log-wide append lock, inserts e and writes back the
// sequence the database assigned.
func (t *postgresTx) AppendEvent(ctx context.Context, e *domain.QuoteEvent) error {
	if _, err := t.q.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, eventLogLockKey); err != nil {
		return fmt.Errorf("lock event log: %w", err)
	}

	payload := e.Payload
	if payload == nil {
		payload = domain.Payload{}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode event payload: %w", err)
	}

	query, args, err := t.sb.Insert(tableEvents).
		Columns("id", "event_type", "quote_id", "invite_id", "job_id", "provider_id", "customer_id", "payload", "processed", "created_at").
		Values(e.ID, string(e.Type), e.QuoteID, e.InviteID, e.JobID, e.ProviderID, e.CustomerID, body, false, e.CreatedAt).
		Suffix("RETURNING sequence").
		ToSql()
	if err != nil {
		return fmt.Errorf("build append event: %w", err)
	}
	if err := t.q.QueryRow(ctx, query, args...).Scan(&e.Sequence); err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	e.Processed = false
	return nil
}

func (r *Postgres) eventQuery(filter domain.EventFilter) sq.SelectBuilder {
	b := r.sb.Select(eventColumns...).From(tableEvents).OrderBy("created_at ASC", "sequence ASC")
	if filter.JobID != nil {
		b = b.Where(sq.Eq{"job_id": *filter.JobID})
	}
	if filter.ProviderID != nil {
		b = b.Where(sq.Eq{"provider_id": *filter.ProviderID})
	}
	if len(filter.Types) > 0 {
		types := make([]string, len(filter.Types))
		for i, t := range filter.Types {
			types[i] = string(t)
		}
		b = b.Where(sq.Eq{"event_type": types})
	}
	if filter.Since != nil {
		b = b.Where(sq.GtOrEq{"created_at": *filter.Since})
	}
	if filter.AfterSequence > 0 {
		b = b.Where(sq.Gt{"sequence": filter.AfterSequence})
	}
	if filter.Unprocessed {
		b = b.Where(sq.Eq{"processed": false})
	}
	if filter.Limit > 0 {
		b = b.Limit(uint64(filter.Limit))
	}
	return b
}

func (r *Postgres) QueryEvents(ctx context.Context, filter domain.EventFilter) ([]domain.QuoteEvent, error) {
	out := make([]domain.QuoteEvent, 0)
	err := r.ScanEvents(ctx, filter, func(e domain.QuoteEvent) error {
		out = append(out, e)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ScanEvents streams matching events in log order. An error from fn stops
// the scan and is returned unchanged.
func (r *Postgres) ScanEvents(ctx context.Context, filter domain.EventFilter, fn func(domain.QuoteEvent) error) error {
	query, args, err := r.eventQuery(filter).ToSql()
	if err != nil {
		return fmt.Errorf("build scan events: %w", err)
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("scan events: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return fmt.Errorf("scan event row: %w", err)
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate events: %w", err)
	}
	return nil
}

func (r *Postgres) MarkEventProcessed(ctx context.Context, id uuid.UUID) error {
	query, args, err := r.sb.Update(tableEvents).
		Set("processed", true).
		Where(sq.Eq{"id": id, "processed": false}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build mark event processed: %w", err)
	}
	if _, err := r.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("mark event processed: %w", err)
	}
	return nil
}
