package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/voidlabs/voidbot/internal/domain"
)

// Putter is the slice of Writer the archiver needs.
type Putter interface {
	Put(ctx context.Context, key string, data io.Reader, contentType string) error
}

// ArchiverConfig tunes the retention sweep.
type ArchiverConfig struct {
	RetentionDays int
	Interval      time.Duration
	BatchSize     int
}

// Archiver moves terminal signals and orders past their retention window out
// of Postgres into object storage as JSONL, then deletes them. Rows are
// deleted only after the matching object upload succeeded.
type Archiver struct {
	writer  Putter
	signals domain.SignalStore
	orders  domain.OrderStore
	cfg     ArchiverConfig
	now     func() time.Time
	logger  *slog.Logger
}

// NewArchiver creates an Archiver.
func NewArchiver(writer Putter, signals domain.SignalStore, orders domain.OrderStore, cfg ArchiverConfig, logger *slog.Logger) *Archiver {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	return &Archiver{
		writer:  writer,
		signals: signals,
		orders:  orders,
		cfg:     cfg,
		now:     time.Now,
		logger:  logger.With(slog.String("component", "archiver")),
	}
}

// Run sweeps on the configured interval until ctx is done.
func (a *Archiver) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := a.Sweep(ctx); err != nil {
				a.logger.ErrorContext(ctx, "archive sweep failed",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// Sweep archives one batch of expired signals and orders. It is safe to call
// concurrently with the pipeline; records still referenced by open work are
// non-terminal and never selected.
func (a *Archiver) Sweep(ctx context.Context) error {
	cutoff := a.now().UTC().AddDate(0, 0, -a.cfg.RetentionDays)

	nSignals, err := a.sweepSignals(ctx, cutoff)
	if err != nil {
		return err
	}
	nOrders, err := a.sweepOrders(ctx, cutoff)
	if err != nil {
		return err
	}

	if nSignals > 0 || nOrders > 0 {
		a.logger.InfoContext(ctx, "archive sweep complete",
			slog.Int("signals", nSignals),
			slog.Int("orders", nOrders),
			slog.Time("cutoff", cutoff),
		)
	}
	return nil
}

func (a *Archiver) sweepSignals(ctx context.Context, cutoff time.Time) (int, error) {
	signals, err := a.signals.ListTerminalBefore(ctx, cutoff, a.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("s3blob: list signals for archive: %w", err)
	}
	if len(signals) == 0 {
		return 0, nil
	}

	buf, err := encodeJSONL(signals)
	if err != nil {
		return 0, fmt.Errorf("s3blob: encode signals: %w", err)
	}
	key := a.objectKey("signals")
	if err := a.writer.Put(ctx, key, buf, "application/x-ndjson"); err != nil {
		return 0, err
	}

	ids := make([]string, len(signals))
	for i, s := range signals {
		ids[i] = s.ID
	}
	n, err := a.signals.DeleteByIDs(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("s3blob: delete archived signals: %w", err)
	}
	return n, nil
}

func (a *Archiver) sweepOrders(ctx context.Context, cutoff time.Time) (int, error) {
	orders, err := a.orders.ListTerminalBefore(ctx, cutoff, a.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("s3blob: list orders for archive: %w", err)
	}
	if len(orders) == 0 {
		return 0, nil
	}

	buf, err := encodeJSONL(orders)
	if err != nil {
		return 0, fmt.Errorf("s3blob: encode orders: %w", err)
	}
	key := a.objectKey("orders")
	if err := a.writer.Put(ctx, key, buf, "application/x-ndjson"); err != nil {
		return 0, err
	}

	ids := make([]string, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
	}
	n, err := a.orders.DeleteByIDs(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("s3blob: delete archived orders: %w", err)
	}
	return n, nil
}

// objectKey builds a date-partitioned key, e.g.
// archive/signals/2026/08/29/signals-1756464000.jsonl.
func (a *Archiver) objectKey(kind string) string {
	now := a.now().UTC()
	return fmt.Sprintf("archive/%s/%s/%s-%d.jsonl",
		kind, now.Format("2006/01/02"), kind, now.Unix())
}

// encodeJSONL serialises records one JSON object per line.
func encodeJSONL[T any](records []T) (*bytes.Buffer, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			return nil, err
		}
	}
	return &buf, nil
}
