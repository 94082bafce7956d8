package worker

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/yogalab/classhub/internal/domain/delivery"
	"github.com/yogalab/classhub/internal/domain/job"
	"github.com/yogalab/classhub/internal/jobs"
	"github.com/yogalab/classhub/internal/notifications"
	"github.com/yogalab/classhub/internal/observability"
)

type fakeJobsRepo struct {
	claimFn      func(ctx context.Context, workerID string) (job.Job, error)
	doneIDs      []string
	failed       map[string]string
	rescheduled  map[string]time.Time
	requeueCount int64
}

func newFakeJobsRepo() *fakeJobsRepo {
	return &fakeJobsRepo{
		failed:      make(map[string]string),
		rescheduled: make(map[string]time.Time),
	}
}

func (f *fakeJobsRepo) ClaimNext(ctx context.Context, workerID string) (job.Job, error) {
	if f.claimFn != nil {
		return f.claimFn(ctx, workerID)
	}
	return job.Job{}, job.ErrJobNotFound
}

func (f *fakeJobsRepo) MarkDone(ctx context.Context, id string) error {
	f.doneIDs = append(f.doneIDs, id)
	return nil
}

func (f *fakeJobsRepo) MarkFailed(ctx context.Context, id string, errMsg string) error {
	f.failed[id] = errMsg
	return nil
}

func (f *fakeJobsRepo) Reschedule(ctx context.Context, id string, runAt time.Time, errMsg string) error {
	f.rescheduled[id] = runAt
	return nil
}

func (f *fakeJobsRepo) RequeueStaleProcessing(ctx context.Context, lockTTL time.Duration) (int64, error) {
	return f.requeueCount, nil
}

type fakeDeliveries struct {
	startFn func(ctx context.Context, jobID, settlementID, recipient string) error
	sent    []string
	failed  []string
}

func (f *fakeDeliveries) TryStartSettlement(ctx context.Context, jobID, settlementID, recipient string) error {
	if f.startFn != nil {
		return f.startFn(ctx, jobID, settlementID, recipient)
	}
	return nil
}

func (f *fakeDeliveries) MarkSettlementConfirmationSent(ctx context.Context, settlementID string, providerMessageID *string) error {
	f.sent = append(f.sent, settlementID)
	return nil
}

func (f *fakeDeliveries) MarkSettlementConfirmationFailed(ctx context.Context, settlementID string, errMsg string) error {
	f.failed = append(f.failed, settlementID)
	return nil
}

type fakeNotifier struct {
	sendFn func(ctx context.Context, in notifications.SendSettlementConfirmationInput) error
	calls  int
}

func (f *fakeNotifier) SendSettlementConfirmation(ctx context.Context, in notifications.SendSettlementConfirmationInput) error {
	f.calls++
	if f.sendFn != nil {
		return f.sendFn(ctx, in)
	}
	return nil
}

func confirmationJob(t *testing.T, attempts, maxAttempts int) job.Job {
	t.Helper()

	raw, err := jobs.SettlementConfirmationPayload{
		SettlementID:    "settle-1",
		PaymentRecordID: "rec-1",
		PayerEmail:      "student@yogalab.io",
		AmountMinor:     90000,
		ClassesCredited: 2,
		RequestedAt:     time.Now().UTC(),
	}.JSON()
	if err != nil {
		t.Fatalf("payload encode: %v", err)
	}

	j := job.New(job.CreateRequest{
		Type:        jobs.TypeSettlementConfirmation,
		Payload:     raw,
		MaxAttempts: maxAttempts,
	})
	j.Attempts = attempts

	return j
}

func newTestWorker(repo JobsRepository, deliveries DeliveriesRepository, notifier notifications.Notifier) *Worker {
	return New(Config{WorkerID: "test-worker"},
		slog.New(slog.DiscardHandler),
		repo,
		deliveries,
		notifier,
		observability.NewJobMetrics(),
	)
}

func TestProcessOne_NoJobIsNotAnError(t *testing.T) {
	w := newTestWorker(newFakeJobsRepo(), &fakeDeliveries{}, &fakeNotifier{})

	processed, err := w.ProcessOne(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if processed {
		t.Fatalf("an empty queue should report processed=false")
	}
}

func TestProcessOne_SuccessMarksDoneAndSent(t *testing.T) {
	j := confirmationJob(t, 0, 10)

	repo := newFakeJobsRepo()
	claimed := false
	repo.claimFn = func(ctx context.Context, workerID string) (job.Job, error) {
		if claimed {
			return job.Job{}, job.ErrJobNotFound
		}
		claimed = true
		return j, nil
	}

	deliveries := &fakeDeliveries{}
	notifier := &fakeNotifier{}

	w := newTestWorker(repo, deliveries, notifier)

	processed, err := w.ProcessOne(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !processed {
		t.Fatalf("expected processed=true")
	}

	if notifier.calls != 1 {
		t.Fatalf("expected one send, got %d", notifier.calls)
	}
	if len(repo.doneIDs) != 1 || repo.doneIDs[0] != j.ID {
		t.Fatalf("job was not marked done: %v", repo.doneIDs)
	}
	if len(deliveries.sent) != 1 || deliveries.sent[0] != "settle-1" {
		t.Fatalf("delivery was not marked sent: %v", deliveries.sent)
	}
}

func TestProcessOne_AlreadySentIsANoOpSuccess(t *testing.T) {
	j := confirmationJob(t, 0, 10)

	repo := newFakeJobsRepo()
	repo.claimFn = func(ctx context.Context, workerID string) (job.Job, error) {
		return j, nil
	}

	deliveries := &fakeDeliveries{
		startFn: func(ctx context.Context, jobID, settlementID, recipient string) error {
			return delivery.ErrAlreadySent
		},
	}
	notifier := &fakeNotifier{}

	w := newTestWorker(repo, deliveries, notifier)

	if _, err := w.ProcessOne(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if notifier.calls != 0 {
		t.Fatalf("a settled delivery must not be re-sent, got %d sends", notifier.calls)
	}
	if len(repo.doneIDs) != 1 {
		t.Fatalf("job should still be marked done: %v", repo.doneIDs)
	}
}

func TestProcessOne_TransientFailureReschedules(t *testing.T) {
	j := confirmationJob(t, 1, 10)

	repo := newFakeJobsRepo()
	repo.claimFn = func(ctx context.Context, workerID string) (job.Job, error) {
		return j, nil
	}

	notifier := &fakeNotifier{
		sendFn: func(ctx context.Context, in notifications.SendSettlementConfirmationInput) error {
			return errors.New("provider timeout")
		},
	}
	deliveries := &fakeDeliveries{}

	w := newTestWorker(repo, deliveries, notifier)

	processed, err := w.ProcessOne(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !processed {
		t.Fatalf("expected processed=true")
	}

	runAt, ok := repo.rescheduled[j.ID]
	if !ok {
		t.Fatalf("job was not rescheduled; failed=%v", repo.failed)
	}
	if !runAt.After(time.Now().UTC()) {
		t.Fatalf("reschedule time should be in the future, got %v", runAt)
	}
	if len(deliveries.failed) != 1 {
		t.Fatalf("delivery failure was not recorded")
	}
}

func TestProcessOne_ExhaustedAttemptsDeadLetter(t *testing.T) {
	j := confirmationJob(t, 9, 10)

	repo := newFakeJobsRepo()
	repo.claimFn = func(ctx context.Context, workerID string) (job.Job, error) {
		return j, nil
	}

	notifier := &fakeNotifier{
		sendFn: func(ctx context.Context, in notifications.SendSettlementConfirmationInput) error {
			return errors.New("provider down")
		},
	}

	w := newTestWorker(repo, &fakeDeliveries{}, notifier)

	if _, err := w.ProcessOne(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, ok := repo.failed[j.ID]; !ok {
		t.Fatalf("exhausted job should be dead-lettered; rescheduled=%v", repo.rescheduled)
	}
	if len(repo.rescheduled) != 0 {
		t.Fatalf("exhausted job must not be rescheduled")
	}
}

func TestProcessOne_InvalidPayloadDeadLettersImmediately(t *testing.T) {
	j := job.New(job.CreateRequest{
		Type:        jobs.TypeSettlementConfirmation,
		Payload:     []byte(`{"settlementId": ""}`),
		MaxAttempts: 10,
	})

	repo := newFakeJobsRepo()
	repo.claimFn = func(ctx context.Context, workerID string) (job.Job, error) {
		return j, nil
	}

	w := newTestWorker(repo, &fakeDeliveries{}, &fakeNotifier{})

	if _, err := w.ProcessOne(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, ok := repo.failed[j.ID]; !ok {
		t.Fatalf("malformed payload should dead-letter on the first attempt")
	}
	if len(repo.rescheduled) != 0 {
		t.Fatalf("malformed payload must not be retried")
	}
}

func TestProcessOne_UnknownTypeDeadLetters(t *testing.T) {
	j := job.New(job.CreateRequest{
		Type:        "email.digest",
		Payload:     []byte(`{}`),
		MaxAttempts: 10,
	})

	repo := newFakeJobsRepo()
	repo.claimFn = func(ctx context.Context, workerID string) (job.Job, error) {
		return j, nil
	}

	w := newTestWorker(repo, &fakeDeliveries{}, &fakeNotifier{})

	if _, err := w.ProcessOne(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, ok := repo.failed[j.ID]; !ok {
		t.Fatalf("unknown job type should dead-letter")
	}
}

func TestExponentialBackoff(t *testing.T) {
	tests := []struct {
		attempt int
		wantMin time.Duration
		wantMax time.Duration
	}{
		{attempt: 0, wantMin: 2 * time.Second, wantMax: 2*time.Second + 250*time.Millisecond},
		{attempt: 1, wantMin: 4 * time.Second, wantMax: 4*time.Second + 250*time.Millisecond},
		{attempt: 3, wantMin: 16 * time.Second, wantMax: 16*time.Second + 250*time.Millisecond},
		{attempt: 20, wantMin: 5 * time.Minute, wantMax: 5*time.Minute + 250*time.Millisecond},
	}

	for _, tt := range tests {
		got := ExponentialBackoff(tt.attempt)

		if got < tt.wantMin || got > tt.wantMax {
			t.Fatalf("attempt %d: got %v, want between %v and %v", tt.attempt, got, tt.wantMin, tt.wantMax)
		}
	}
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	w := newTestWorker(newFakeJobsRepo(), &fakeDeliveries{}, &fakeNotifier{})

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- w.Run(ctx)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("worker did not stop after context cancel")
	}
}
