package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cryptoaffil/dataplatform/internal/domain"
)

// BronzeArchiveStore provides the read access the archiver needs. The
// interface is deliberately narrow: archival only lists, it never mutates —
// deleting archived rows from the primary store is a separate, explicit step
// to be executed after the archive has been verified.
type BronzeArchiveStore interface {
	ListOlderThan(ctx context.Context, entity domain.EntityType, before time.Time) ([]domain.RawRecord, error)
}

// Archiver moves aged bronze audit rows to cold storage: it queries rows
// older than the retention cutoff, serializes them to JSONL, and uploads one
// object per entity type. Each completed upload is appended to the ETL event
// stream so operators can trace what left the hot store.
type Archiver struct {
	writer domain.BlobWriter
	store  BronzeArchiveStore
	bus    domain.EventBus
}

// NewArchiver creates a new Archiver.
func NewArchiver(writer domain.BlobWriter, store BronzeArchiveStore, bus domain.EventBus) *Archiver {
	return &Archiver{
		writer: writer,
		store:  store,
		bus:    bus,
	}
}

// ArchiveBronze archives all bronze rows of one entity type loaded strictly
// before the cutoff. It returns the number of archived rows; zero rows means
// no object is written.
func (a *Archiver) ArchiveBronze(ctx context.Context, entity domain.EntityType, before time.Time) (int64, error) {
	records, err := a.store.ListOlderThan(ctx, entity, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive %s query: %w", entity, err)
	}
	if len(records) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(records)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive %s marshal: %w", entity, err)
	}

	path := archivePath(entity, before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive %s upload: %w", entity, err)
	}

	count := int64(len(records))

	event, err := json.Marshal(map[string]any{
		"event":  "bronze_archived",
		"entity": string(entity),
		"path":   path,
		"count":  count,
		"before": before.Format(time.RFC3339),
	})
	if err == nil {
		if busErr := a.bus.StreamAppend(ctx, "etl:events", event); busErr != nil {
			return count, fmt.Errorf("s3blob: archive %s event: %w", entity, busErr)
		}
	}

	return count, nil
}

// ArchiveAll archives every entity type's bronze rows older than the cutoff
// and returns the total archived row count. The first failure aborts the
// remaining entity types.
func (a *Archiver) ArchiveAll(ctx context.Context, before time.Time) (int64, error) {
	var total int64
	for _, entity := range domain.AllEntityTypes() {
		n, err := a.ArchiveBronze(ctx, entity, before)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// archivePath builds the S3 key for an archive object, partitioned by the
// year-month of the cutoff time.
//
//	archive/bronze/customers/2025-01.jsonl
//	archive/bronze/trades/2025-01.jsonl
func archivePath(entity domain.EntityType, before time.Time) string {
	return fmt.Sprintf("archive/bronze/%s/%s.jsonl", entity, before.Format("2006-01"))
}

// marshalJSONL serialises a slice of values as newline-delimited JSON (JSONL).
// Each element is marshalled as a single compact JSON line followed by '\n'.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
