package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/yogalab/classhub/internal/domain/job"
	"github.com/yogalab/classhub/internal/notifications"
	"github.com/yogalab/classhub/internal/observability"
)

type JobsRepository interface {
	ClaimNext(ctx context.Context, workerID string) (job.Job, error)
	MarkDone(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, errMsg string) error
	Reschedule(ctx context.Context, id string, runAt time.Time, errMsg string) error
	RequeueStaleProcessing(ctx context.Context, lockTTL time.Duration) (int64, error)
}

type DeliveriesRepository interface {
	TryStartSettlement(ctx context.Context, jobID, settlementID, recipient string) error
	MarkSettlementConfirmationSent(ctx context.Context, settlementID string, providerMessageID *string) error
	MarkSettlementConfirmationFailed(ctx context.Context, settlementID string, errMsg string) error
}

type Config struct {
	WorkerID      string
	PollInterval  time.Duration
	LockTTL       time.Duration
	ShutdownGrace time.Duration
}

// Worker drains the outbox: claim one job via SKIP LOCKED, deliver the
// settlement confirmation, mark done or reschedule with backoff.
type Worker struct {
	cfg        Config
	log        *slog.Logger
	repo       JobsRepository
	deliveries DeliveriesRepository
	notifier   notifications.Notifier
	metrics    *observability.JobMetrics

	readyMu sync.RWMutex
	ready   bool
}

func New(
	cfg Config,
	log *slog.Logger,
	repo JobsRepository,
	deliveries DeliveriesRepository,
	notifier notifications.Notifier,
	metrics *observability.JobMetrics,
) *Worker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 200 * time.Millisecond
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Second
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = 10 * time.Second
	}

	return &Worker{
		cfg:        cfg,
		log:        log,
		repo:       repo,
		deliveries: deliveries,
		notifier:   notifier,
		metrics:    metrics,
	}
}

func (w *Worker) setReady(v bool) {
	w.readyMu.Lock()
	w.ready = v
	w.readyMu.Unlock()
}

func (w *Worker) Run(ctx context.Context) error {
	w.setReady(true)
	defer w.setReady(false)

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	// stale-lock sweeper runs much less often than the claim loop
	sweeper := time.NewTicker(w.cfg.LockTTL)
	defer sweeper.Stop()

	w.log.Info("worker started", "worker_id", w.cfg.WorkerID, "poll_interval", w.cfg.PollInterval.String())

	for {
		select {
		case <-ctx.Done():
			w.log.Info("worker received shutdown signal")
			return nil

		case <-sweeper.C:
			n, err := w.repo.RequeueStaleProcessing(ctx, w.cfg.LockTTL)
			if err != nil {
				w.log.Error("requeue stale failed", "err", err)
				continue
			}
			if n > 0 {
				w.log.Warn("requeued stale jobs", "count", n)
			}

		case <-ticker.C:
			// drain until empty, then go back to polling
			for {
				processed, err := w.ProcessOne(ctx)

				if err != nil {
					w.log.Error("process error", "err", err)
					break
				}
				if !processed {
					break
				}
			}
		}
	}
}
