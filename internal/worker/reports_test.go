package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jmehdipour/wallet-notifier/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReportsRepo struct {
	mu      sync.Mutex
	batches [][]model.DeliveryReport
	err     error
}

func (f *fakeReportsRepo) InsertBatch(_ context.Context, rows []model.DeliveryReport) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]model.DeliveryReport, len(rows))
	copy(cp, rows)
	f.batches = append(f.batches, cp)
	return f.err
}

func (f *fakeReportsRepo) ListByWallet(context.Context, string, model.Outcome, int, int) ([]model.DeliveryReport, error) {
	return nil, nil
}

func (f *fakeReportsRepo) rows() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, b := range f.batches {
		n += len(b)
	}
	return n
}

func TestReportWriterFlushesBySize(t *testing.T) {
	repo := &fakeReportsRepo{}
	w := NewReportWriter(repo, 2, time.Hour, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	w.Report(model.DeliveryReport{NotificationID: "a"})
	w.Report(model.DeliveryReport{NotificationID: "b"})

	require.Eventually(t, func() bool { return repo.rows() == 2 }, time.Second, 10*time.Millisecond)
}

func TestReportWriterFlushesByTime(t *testing.T) {
	repo := &fakeReportsRepo{}
	w := NewReportWriter(repo, 100, 20*time.Millisecond, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	w.Report(model.DeliveryReport{NotificationID: "a"})

	require.Eventually(t, func() bool { return repo.rows() == 1 }, time.Second, 10*time.Millisecond)
}

func TestReportWriterDrainsOnShutdown(t *testing.T) {
	repo := &fakeReportsRepo{err: errors.New("ignored")}
	w := NewReportWriter(repo, 100, time.Hour, nil)
	w.Report(model.DeliveryReport{NotificationID: "a"})
	w.Report(model.DeliveryReport{NotificationID: "b"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w.Run(ctx)

	assert.Equal(t, 2, repo.rows())
}
