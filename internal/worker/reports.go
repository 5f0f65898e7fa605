package worker

import (
	"context"
	"time"

	"github.com/jmehdipour/wallet-notifier/internal/logger"
	"github.com/jmehdipour/wallet-notifier/internal/model"
	"github.com/jmehdipour/wallet-notifier/internal/repository"
	"go.uber.org/zap"
)

// ReportWriter buffers delivery reports and flushes them in batches by size or time.
type ReportWriter struct {
	repo      repository.DeliveryReportsRepository
	in        chan model.DeliveryReport
	batchSize int
	batchWait time.Duration
	log       *zap.Logger
}

var _ ReportSink = (*ReportWriter)(nil)

func NewReportWriter(repo repository.DeliveryReportsRepository, batchSize int, batchWait time.Duration, log *zap.Logger) *ReportWriter {
	if batchSize <= 0 {
		batchSize = 200
	}
	if batchWait <= 0 {
		batchWait = time.Second
	}
	return &ReportWriter{
		repo:      repo,
		in:        make(chan model.DeliveryReport, batchSize*4),
		batchSize: batchSize,
		batchWait: batchWait,
		log:       logger.Or(log).With(zap.String("component", "reports")),
	}
}

// Report enqueues r, dropping it when the buffer is full.
func (w *ReportWriter) Report(r model.DeliveryReport) {
	select {
	case w.in <- r:
	default:
		w.log.Warn("report buffer full, dropping", zap.String("notification_id", r.NotificationID))
	}
}

// Run flushes until ctx is cancelled, then drains what is buffered.
func (w *ReportWriter) Run(ctx context.Context) {
	tick := time.NewTicker(w.batchWait)
	defer tick.Stop()

	batch := make([]model.DeliveryReport, 0, w.batchSize)

	flush := func(fctx context.Context) {
		if len(batch) == 0 {
			return
		}
		if err := w.repo.InsertBatch(fctx, batch); err != nil {
			w.log.Error("insert reports", zap.Int("rows", len(batch)), zap.Error(err))
		} else {
			w.log.Debug("reports flushed", zap.Int("rows", len(batch)))
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		drain:
			for {
				select {
				case r := <-w.in:
					batch = append(batch, r)
				default:
					break drain
				}
			}
			flush(fctx)
			cancel()
			return

		case r := <-w.in:
			batch = append(batch, r)
			if len(batch) >= w.batchSize {
				flush(ctx)
			}

		case <-tick.C:
			flush(ctx)
		}
	}
}
