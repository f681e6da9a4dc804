package eventlog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"marketplace_quotes_backend/internal/adapters/storage"
	"marketplace_quotes_backend/internal/quoting/domain"

	"github.com/google/uuid"
)

const archiveContentType = "application/x-ndjson"

// ArchiveResult describes one exported object.
type ArchiveResult struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
	Events int    `json:"events"`
}

// archivedEvent is the JSON Lines record shape.
type archivedEvent struct {
	ID         uuid.UUID      `json:"id"`
	Sequence   int64          `json:"sequence"`
	Type       string         `json:"eventType"`
	QuoteID    *uuid.UUID     `json:"quoteId,omitempty"`
	InviteID   *uuid.UUID     `json:"inviteId,omitempty"`
	JobID      uuid.UUID      `json:"jobId"`
	ProviderID uuid.UUID      `json:"providerId"`
	CustomerID *uuid.UUID     `json:"customerId,omitempty"`
	Payload    domain.Payload `json:"payload"`
	CreatedAt  time.Time      `json:"createdAt"`
}

// Archiver exports a job's event history to object storage.
type Archiver struct {
	log    *Log
	store  storage.ObjectStore
	bucket string
}

func NewArchiver(log *Log, store storage.ObjectStore, bucket string) *Archiver {
	return &Archiver{log: log, store: store, bucket: bucket}
}

// ArchiveKey is the object key holding jobID's history.
func ArchiveKey(jobID uuid.UUID) string {
	return "events/" + jobID.String() + ".jsonl"
}

// ExportJob writes every event of jobID, in log order, as one JSON object per
// line. Re-exporting overwrites the previous object.
func (a *Archiver) ExportJob(ctx context.Context, jobID uuid.UUID) (ArchiveResult, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	count := 0

	err := a.log.Scan(ctx, domain.EventFilter{JobID: &jobID}, func(e domain.QuoteEvent) error {
		count++
		return enc.Encode(archivedEvent{
			ID:         e.ID,
			Sequence:   e.Sequence,
			Type:       string(e.Type),
			QuoteID:    e.QuoteID,
			InviteID:   e.InviteID,
			JobID:      e.JobID,
			ProviderID: e.ProviderID,
			CustomerID: e.CustomerID,
			Payload:    e.Payload,
			CreatedAt:  e.CreatedAt,
		})
	})
	if err != nil {
		return ArchiveResult{}, fmt.Errorf("read events for job %s: %w", jobID, err)
	}

	if err := a.store.EnsureBucketExists(ctx, a.bucket); err != nil {
		return ArchiveResult{}, err
	}
	key := ArchiveKey(jobID)
	if err := a.store.PutObject(ctx, a.bucket, key, archiveContentType, &buf, int64(buf.Len())); err != nil {
		return ArchiveResult{}, err
	}
	return ArchiveResult{Bucket: a.bucket, Key: key, Events: count}, nil
}
