// Package poller resolves documents the authority answers asynchronously:
// invoices left SUBMITTED and batches still PENDING. One worker per
// deployment is enough; every pass is idempotent.
package poller

import (
	"context"
	"time"

	"github.com/arandulabs/kuatia/internal/config"
	invoicedomain "github.com/arandulabs/kuatia/internal/invoice/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log        *zap.Logger
	Config     config.Config
	InvoiceSvc invoicedomain.Service
}

type Worker struct {
	log        *zap.Logger
	interval   time.Duration
	batchSize  int
	invoiceSvc invoicedomain.Service
}

func New(p Params) *Worker {
	interval := p.Config.Poller.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	batchSize := p.Config.Poller.BatchSize
	if batchSize <= 0 {
		batchSize = 25
	}
	return &Worker{
		log:        p.Log.Named("poller"),
		interval:   interval,
		batchSize:  batchSize,
		invoiceSvc: p.InvoiceSvc,
	}
}

// RunForever polls on a fixed interval until ctx is cancelled. The first
// pass runs immediately so restarts do not delay pending work by a tick.
func (w *Worker) RunForever(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce drives a single pass: finished batches first, then stragglers
// queried one by one. Errors are logged, never fatal; the next tick retries.
func (w *Worker) RunOnce(ctx context.Context) {
	done, err := w.invoiceSvc.PollPendingBatches(ctx, w.batchSize)
	if err != nil {
		w.log.Warn("batch poll failed", zap.Error(err))
	} else if done > 0 {
		w.log.Info("batches completed", zap.Int("count", done))
	}

	report, err := w.invoiceSvc.Reconcile(ctx, w.batchSize)
	if err != nil {
		w.log.Warn("reconcile pass failed", zap.Error(err))
		return
	}
	if report.Checked > 0 {
		w.log.Info("reconcile pass",
			zap.Int("checked", report.Checked),
			zap.Int("approved", report.Approved),
			zap.Int("rejected", report.Rejected),
			zap.Int("pending", report.Pending),
			zap.Int("unreached", report.Unreached),
		)
	}
}

var Module = fx.Module("poller",
	fx.Provide(New),
)
