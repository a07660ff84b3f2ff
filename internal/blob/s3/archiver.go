package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/bahbah94/Orbex/internal/domain"
)

// TradeArchiveStore is the store surface the archiver needs: the query
// methods it actually calls rather than the full domain.TradeStore.
type TradeArchiveStore interface {
	// ListBefore returns trades executed strictly before the cutoff,
	// oldest first. limit <= 0 means no limit.
	ListBefore(ctx context.Context, before time.Time, limit int) ([]domain.Trade, error)

	// DeleteBefore removes trades executed strictly before the cutoff and
	// returns the number removed.
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// multipartThreshold is the payload size above which a month's archive is
// uploaded through the multipart manager instead of a single PutObject.
const (
	multipartThreshold = 16 * 1024 * 1024
	archivePartSize    = 8 * 1024 * 1024
)

// defaultPrefix is the key prefix for archive objects when none is
// configured.
const defaultPrefix = "archive"

// Archiver implements domain.Archiver: aged-out trades are serialised to
// JSONL and uploaded as one object per calendar month, at
// <prefix>/trades/YYYY-MM.jsonl.
//
// The cutoff is floored to its month boundary so only whole months are ever
// archived. A month's object is therefore written complete in a single run
// and never partially overwritten by a later one, which makes pruning the
// archived rows safe.
type Archiver struct {
	writer domain.BlobWriter
	reader domain.BlobReader
	trades TradeArchiveStore
	prefix string
	prune  bool
}

var _ domain.Archiver = (*Archiver)(nil)

// NewArchiver creates an Archiver. When prune is set, archived rows are
// deleted from the store after every uploaded object has been verified.
func NewArchiver(writer domain.BlobWriter, reader domain.BlobReader, trades TradeArchiveStore, prefix string, prune bool) *Archiver {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Archiver{
		writer: writer,
		reader: reader,
		trades: trades,
		prefix: prefix,
		prune:  prune,
	}
}

// ArchiveTrades uploads all trades executed before the month containing the
// cutoff, grouped into one JSONL object per month, and returns the number of
// trades archived. Rows are pruned only after every object is confirmed
// present in the bucket.
func (a *Archiver) ArchiveTrades(ctx context.Context, before time.Time) (int64, error) {
	monthStart := monthFloor(before)

	trades, err := a.trades.ListBefore(ctx, monthStart, 0)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive trades query: %w", err)
	}
	if len(trades) == 0 {
		return 0, nil
	}

	months := make(map[string][]domain.Trade)
	for _, t := range trades {
		key := t.ExecutedAt.UTC().Format("2006-01")
		months[key] = append(months[key], t)
	}

	keys := make([]string, 0, len(months))
	for key := range months {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		buf, err := marshalJSONL(months[key])
		if err != nil {
			return 0, fmt.Errorf("s3blob: archive trades marshal %s: %w", key, err)
		}

		path := a.archivePath(key)
		if err := a.upload(ctx, path, buf); err != nil {
			return 0, err
		}

		ok, err := a.reader.Exists(ctx, path)
		if err != nil {
			return 0, fmt.Errorf("s3blob: verify archive %s: %w", path, err)
		}
		if !ok {
			return 0, fmt.Errorf("s3blob: archive %s missing after upload", path)
		}
	}

	count := int64(len(trades))

	if a.prune {
		if _, err := a.trades.DeleteBefore(ctx, monthStart); err != nil {
			return count, fmt.Errorf("s3blob: prune archived trades: %w", err)
		}
	}

	return count, nil
}

func (a *Archiver) upload(ctx context.Context, path string, buf []byte) error {
	if len(buf) > multipartThreshold {
		if err := a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), archivePartSize); err != nil {
			return fmt.Errorf("s3blob: archive trades upload: %w", err)
		}
		return nil
	}
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return fmt.Errorf("s3blob: archive trades upload: %w", err)
	}
	return nil
}

// archivePath builds the object key for one month's archive, e.g.
// archive/trades/2025-01.jsonl.
func (a *Archiver) archivePath(month string) string {
	return fmt.Sprintf("%s/trades/%s.jsonl", a.prefix, month)
}

// monthFloor returns the first instant of the month containing t, in UTC.
func monthFloor(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// marshalJSONL serialises records as newline-delimited JSON, one compact
// line per record.
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
