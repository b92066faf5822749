package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/OneAIgency/carbondesk/internal/domain"
)

// TradeArchiveSource provides read access to trade prints for archival. The
// Postgres TradeStore satisfies it.
type TradeArchiveSource interface {
	ListBefore(ctx context.Context, before time.Time, limit int) ([]domain.Trade, error)
}

// BookSource provides the current order book snapshot. The market data sync
// loop satisfies it.
type BookSource interface {
	OrderBook() (domain.OrderBookSnapshot, bool)
}

// ArchiverConfig tunes the archival loop.
type ArchiverConfig struct {
	// Interval is the cadence of the archival pass. Defaults to 1h.
	Interval time.Duration

	// TradeRetention is how long trade prints stay hot before being
	// archived. Defaults to 30 days.
	TradeRetention time.Duration

	// BatchLimit caps how many trades one pass archives. Defaults to 10000.
	BatchLimit int
}

// Archiver periodically uploads order-book snapshots and aged trade prints
// to object storage for compliance retention. Deleting archived rows from
// the primary store is deliberately not done here; that is a separate,
// verified step.
type Archiver struct {
	writer domain.BlobWriter
	trades TradeArchiveSource // optional
	books  BookSource         // optional
	cfg    ArchiverConfig
	logger *slog.Logger
}

// NewArchiver creates an Archiver. trades and books may be nil; the
// corresponding archival step is skipped.
func NewArchiver(
	writer domain.BlobWriter,
	trades TradeArchiveSource,
	books BookSource,
	cfg ArchiverConfig,
	logger *slog.Logger,
) *Archiver {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	if cfg.TradeRetention <= 0 {
		cfg.TradeRetention = 30 * 24 * time.Hour
	}
	if cfg.BatchLimit <= 0 {
		cfg.BatchLimit = 10000
	}
	return &Archiver{
		writer: writer,
		trades: trades,
		books:  books,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "archiver")),
	}
}

// Run executes archival passes on the configured interval until ctx is
// cancelled. Failures are logged and retried on the next pass; archival
// never disturbs the live data path.
func (a *Archiver) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := a.ArchiveOrderBook(ctx); err != nil {
				a.logger.WarnContext(ctx, "order book archival failed",
					slog.String("error", err.Error()))
			}
			cutoff := time.Now().Add(-a.cfg.TradeRetention)
			if _, err := a.ArchiveTrades(ctx, cutoff); err != nil {
				a.logger.WarnContext(ctx, "trade archival failed",
					slog.String("error", err.Error()))
			}
		}
	}
}

// ArchiveOrderBook uploads the current order book snapshot as a timestamped
// JSON object under books/{certificate_type}/.
func (a *Archiver) ArchiveOrderBook(ctx context.Context) error {
	if a.books == nil {
		return nil
	}
	snap, ok := a.books.OrderBook()
	if !ok {
		return nil
	}

	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("s3blob: marshal order book: %w", err)
	}

	path := bookPath(snap.CertificateType, snap.CapturedAt)
	if err := a.writer.Put(ctx, path, bytes.NewReader(raw), "application/json"); err != nil {
		return fmt.Errorf("s3blob: upload order book: %w", err)
	}

	a.logger.DebugContext(ctx, "order book archived", slog.String("path", path))
	return nil
}

// ArchiveTrades uploads trade prints executed before the cutoff as a JSONL
// file partitioned by the cutoff's year-month. It returns the number of
// archived records.
func (a *Archiver) ArchiveTrades(ctx context.Context, before time.Time) (int64, error) {
	if a.trades == nil {
		return 0, nil
	}

	trades, err := a.trades.ListBefore(ctx, before, a.cfg.BatchLimit)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive trades query: %w", err)
	}
	if len(trades) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(trades)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive trades marshal: %w", err)
	}

	path := archivePath("trades", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive trades upload: %w", err)
	}

	count := int64(len(trades))
	a.logger.InfoContext(ctx, "trades archived",
		slog.String("path", path),
		slog.Int64("count", count),
	)
	return count, nil
}

// bookPath builds the S3 key for one order book snapshot.
//
//	books/certificate_a/2026-09-01/100500.json
func bookPath(ct domain.CertificateType, at time.Time) string {
	at = at.UTC()
	return fmt.Sprintf("books/%s/%s/%s.json", ct, at.Format("2006-01-02"), at.Format("150405"))
}

// archivePath builds the S3 key for an archive file, partitioned by the
// year-month of the cutoff time.
//
//	archive/trades/2026-08.jsonl
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.UTC().Format("2006-01"))
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
