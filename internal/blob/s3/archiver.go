package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/coinwatch/internal/domain"
)

// multipartThreshold is the payload size above which archives are uploaded
// with the multipart manager.
const multipartThreshold = 8 * 1024 * 1024

// TradeArchiveStore is the subset of the trade store the archiver needs.
type TradeArchiveStore interface {
	ListBefore(ctx context.Context, before time.Time) ([]domain.TradeRecord, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// ObjectChecker reports whether an object already exists.
type ObjectChecker interface {
	Exists(ctx context.Context, path string) (bool, error)
}

// ArchiveImpl implements domain.Archiver by exporting old trades as JSONL
// to object storage.
type ArchiveImpl struct {
	writer  domain.BlobWriter
	checker ObjectChecker
	trades  TradeArchiveStore
	audit   domain.AuditStore
	prune   bool
	logger  *slog.Logger
}

var _ domain.Archiver = (*ArchiveImpl)(nil)

// NewArchiver creates an archiver. checker and audit may be nil. When prune
// is set, archived rows are deleted from the store after a successful upload.
func NewArchiver(
	writer domain.BlobWriter,
	checker ObjectChecker,
	trades TradeArchiveStore,
	audit domain.AuditStore,
	prune bool,
	logger *slog.Logger,
) *ArchiveImpl {
	return &ArchiveImpl{
		writer:  writer,
		checker: checker,
		trades:  trades,
		audit:   audit,
		prune:   prune,
		logger:  logger.With(slog.String("component", "archiver")),
	}
}

// ArchiveTrades uploads every trade executed before the cutoff and returns
// the number of records written. An existing object for the same cutoff is
// left untouched.
func (a *ArchiveImpl) ArchiveTrades(ctx context.Context, before time.Time) (int64, error) {
	records, err := a.trades.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive trades: list: %w", err)
	}
	if len(records) == 0 {
		return 0, nil
	}

	path := archivePath("trades", before)

	if a.checker != nil {
		exists, err := a.checker.Exists(ctx, path)
		if err != nil {
			return 0, fmt.Errorf("s3blob: archive trades: %w", err)
		}
		if exists {
			a.logger.InfoContext(ctx, "archive already present", slog.String("path", path))
			return 0, nil
		}
	}

	data, err := marshalJSONL(records)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive trades: %w", err)
	}

	if len(data) > multipartThreshold {
		err = a.writer.PutMultipart(ctx, path, bytes.NewReader(data), minPartSize)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(data), "application/x-ndjson")
	}
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive trades: upload: %w", err)
	}

	count := int64(len(records))
	detail := map[string]any{
		"path":   path,
		"count":  count,
		"before": before.UTC().Format(time.RFC3339),
	}

	if a.prune {
		deleted, err := a.trades.DeleteBefore(ctx, before)
		if err != nil {
			return count, fmt.Errorf("s3blob: archive trades: prune: %w", err)
		}
		detail["deleted"] = deleted
	}

	if a.audit != nil {
		if err := a.audit.Log(ctx, "archive.trades", detail); err != nil {
			a.logger.WarnContext(ctx, "audit log failed", slog.String("error", err.Error()))
		}
	}

	a.logger.InfoContext(ctx, "trades archived",
		slog.String("path", path),
		slog.Int64("count", count),
	)
	return count, nil
}

// archivePath returns the object key for an archive of the given kind, e.g.
// archive/trades/2024-03/20240315T000000Z.jsonl.
func archivePath(kind string, before time.Time) string {
	before = before.UTC()
	return fmt.Sprintf("archive/%s/%s/%s.jsonl", kind, before.Format("2006-01"), before.Format("20060102T150405Z"))
}

// marshalJSONL serialises a slice of values as newline-delimited JSON.
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
