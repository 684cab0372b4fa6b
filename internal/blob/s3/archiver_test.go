package s3blob

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voidlabs/voidbot/internal/domain"
)

type capturedObject struct {
	key         string
	contentType string
	body        string
}

type memPutter struct {
	objects []capturedObject
	err     error
}

func (p *memPutter) Put(_ context.Context, key string, data io.Reader, contentType string) error {
	if p.err != nil {
		return p.err
	}
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(data)
	p.objects = append(p.objects, capturedObject{key: key, contentType: contentType, body: buf.String()})
	return nil
}

type archiveSignalStore struct {
	domain.SignalStore
	terminal []*domain.Signal
	deleted  []string
}

func (s *archiveSignalStore) ListTerminalBefore(_ context.Context, cutoff time.Time, limit int) ([]*domain.Signal, error) {
	var out []*domain.Signal
	for _, sig := range s.terminal {
		if sig.DetectedAt.Before(cutoff) && len(out) < limit {
			out = append(out, sig)
		}
	}
	return out, nil
}

func (s *archiveSignalStore) DeleteByIDs(_ context.Context, ids []string) (int, error) {
	s.deleted = append(s.deleted, ids...)
	return len(ids), nil
}

type archiveOrderStore struct {
	domain.OrderStore
	terminal []*domain.Order
	deleted  []string
}

func (s *archiveOrderStore) ListTerminalBefore(_ context.Context, cutoff time.Time, limit int) ([]*domain.Order, error) {
	var out []*domain.Order
	for _, o := range s.terminal {
		if o.CreatedAt.Before(cutoff) && len(out) < limit {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *archiveOrderStore) DeleteByIDs(_ context.Context, ids []string) (int, error) {
	s.deleted = append(s.deleted, ids...)
	return len(ids), nil
}

func TestSweep(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	old := now.AddDate(0, 0, -40)
	fresh := now.AddDate(0, 0, -2)

	signals := &archiveSignalStore{terminal: []*domain.Signal{
		{ID: "sig-old", Status: domain.SignalExpired, DetectedAt: old},
		{ID: "sig-fresh", Status: domain.SignalExpired, DetectedAt: fresh},
	}}
	orders := &archiveOrderStore{terminal: []*domain.Order{
		{ID: "ord-old", Status: domain.OrderFilled, CreatedAt: old},
	}}
	putter := &memPutter{}

	a := NewArchiver(putter, signals, orders,
		ArchiverConfig{RetentionDays: 30, Interval: time.Hour, BatchSize: 100},
		slog.New(slog.DiscardHandler))
	a.now = func() time.Time { return now }

	require.NoError(t, a.Sweep(context.Background()))

	require.Len(t, putter.objects, 2)
	assert.Contains(t, putter.objects[0].key, "archive/signals/2025/06/15/")
	assert.Contains(t, putter.objects[1].key, "archive/orders/2025/06/15/")
	assert.Equal(t, "application/x-ndjson", putter.objects[0].contentType)

	// Only the record past retention is archived and deleted.
	assert.Equal(t, 1, strings.Count(putter.objects[0].body, "\n"))
	assert.Contains(t, putter.objects[0].body, "sig-old")
	assert.Equal(t, []string{"sig-old"}, signals.deleted)
	assert.Equal(t, []string{"ord-old"}, orders.deleted)
}

func TestSweepNothingToArchive(t *testing.T) {
	putter := &memPutter{}
	a := NewArchiver(putter, &archiveSignalStore{}, &archiveOrderStore{},
		ArchiverConfig{RetentionDays: 30, Interval: time.Hour},
		slog.New(slog.DiscardHandler))

	require.NoError(t, a.Sweep(context.Background()))
	assert.Empty(t, putter.objects)
}

func TestSweepUploadFailureKeepsRows(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	signals := &archiveSignalStore{terminal: []*domain.Signal{
		{ID: "sig-old", Status: domain.SignalExpired, DetectedAt: now.AddDate(0, 0, -40)},
	}}
	putter := &memPutter{err: io.ErrUnexpectedEOF}

	a := NewArchiver(putter, signals, &archiveOrderStore{},
		ArchiverConfig{RetentionDays: 30, Interval: time.Hour},
		slog.New(slog.DiscardHandler))
	a.now = func() time.Time { return now }

	require.Error(t, a.Sweep(context.Background()))
	assert.Empty(t, signals.deleted)
}
