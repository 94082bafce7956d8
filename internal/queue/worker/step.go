package worker

import (
	"context"
	"errors"
	"time"

	"github.com/yogalab/classhub/internal/domain/delivery"
	"github.com/yogalab/classhub/internal/domain/job"
	"github.com/yogalab/classhub/internal/jobs"
	"github.com/yogalab/classhub/internal/notifications"
)

func (w *Worker) ProcessOne(ctx context.Context) (bool, error) {
	claimCtx, cancel := context.WithTimeout(ctx, 2*time.Second)

	j, err := w.repo.ClaimNext(claimCtx, w.cfg.WorkerID)
	cancel()

	if err != nil {
		if errors.Is(err, job.ErrJobNotFound) {
			return false, nil
		}

		return false, err
	}

	if w.metrics != nil {
		w.metrics.IncClaimed()
	}

	start := time.Now()
	err = w.execute(ctx, j)

	if w.metrics != nil {
		w.metrics.ObserveDuration(time.Since(start))
	}

	if err != nil {
		w.handleFailure(ctx, j, err)
		return true, nil
	}

	err = w.repo.MarkDone(ctx, j.ID)

	if err != nil {
		_ = w.repo.MarkFailed(ctx, j.ID, "mark_done_failed: "+err.Error())
		return true, err
	}

	if w.metrics != nil {
		w.metrics.IncDone()
	}

	return true, nil
}

func (w *Worker) execute(ctx context.Context, j job.Job) error {
	switch j.Type {
	case jobs.TypeSettlementConfirmation:
		return w.executeSettlementConfirmation(ctx, j)
	default:
		return jobs.ErrInvalidJobType
	}
}

func (w *Worker) executeSettlementConfirmation(ctx context.Context, j job.Job) error {
	p, err := jobs.DecodeSettlementConfirmation(j)

	if err != nil {
		return err
	}

	err = w.deliveries.TryStartSettlement(ctx, j.ID, p.SettlementID, p.PayerEmail)

	if err != nil {
		if errors.Is(err, delivery.ErrAlreadySent) {
			// a prior attempt got through; this retry is a no-op
			w.log.Info("confirmation already sent", "settlement_id", p.SettlementID)
			return nil
		}
		return err
	}

	err = w.notifier.SendSettlementConfirmation(ctx, notifications.SendSettlementConfirmationInput{
		Email:           p.PayerEmail,
		Name:            p.PayerName,
		SettlementID:    p.SettlementID,
		PaymentRecordID: p.PaymentRecordID,
		AmountMinor:     p.AmountMinor,
		ClassesCredited: p.ClassesCredited,
	})

	if err != nil {
		_ = w.deliveries.MarkSettlementConfirmationFailed(ctx, p.SettlementID, err.Error())
		return err
	}

	return w.deliveries.MarkSettlementConfirmationSent(ctx, p.SettlementID, nil)
}

func (w *Worker) handleFailure(ctx context.Context, j job.Job, execErr error) {
	// Malformed payloads never heal; retrying them just burns attempts.
	if errors.Is(execErr, jobs.ErrInvalidJobPayload) || errors.Is(execErr, jobs.ErrInvalidJobType) {
		w.log.Error("job payload unusable", "job_id", j.ID, "type", j.Type, "err", execErr)

		if err := w.repo.MarkFailed(ctx, j.ID, execErr.Error()); err != nil {
			w.log.Error("mark failed error", "job_id", j.ID, "err", err)
		}
		if w.metrics != nil {
			w.metrics.IncDeadLettered()
		}
		return
	}

	if j.Attempts+1 >= j.MaxAttempts {
		w.log.Error("job exhausted attempts", "job_id", j.ID, "attempts", j.Attempts+1, "err", execErr)

		if err := w.repo.MarkFailed(ctx, j.ID, execErr.Error()); err != nil {
			w.log.Error("mark failed error", "job_id", j.ID, "err", err)
		}
		if w.metrics != nil {
			w.metrics.IncDeadLettered()
		}
		return
	}

	delay := ExponentialBackoff(j.Attempts)
	runAt := time.Now().UTC().Add(delay)

	w.log.Warn("job rescheduled", "job_id", j.ID, "attempt", j.Attempts+1, "delay", delay.String(), "err", execErr)

	if err := w.repo.Reschedule(ctx, j.ID, runAt, execErr.Error()); err != nil {
		w.log.Error("reschedule error", "job_id", j.ID, "err", err)
		_ = w.repo.MarkFailed(ctx, j.ID, "reschedule_failed: "+err.Error())
		return
	}

	if w.metrics != nil {
		w.metrics.IncRetried()
	}
}
