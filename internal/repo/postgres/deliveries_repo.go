package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yogalab/classhub/internal/domain/delivery"
)

const settlementConfirmationKind = "settlement.confirmation"

type DeliveriesRepo struct {
	pool *pgxpool.Pool
}

func NewDeliveriesRepo(pool *pgxpool.Pool) *DeliveriesRepo {
	return &DeliveriesRepo{pool: pool}
}

// TryStartSettlement claims the delivery slot for one settlement. The
// primary key on (kind, settlement_id) guarantees at most one send even when
// a job is retried after a timeout.
func (r *DeliveriesRepo) TryStartSettlement(
	ctx context.Context,
	jobID string,
	settlementID string,
	recipient string,
) error {
	// 1) Insert if missing
	_, err := r.pool.Exec(ctx, `
		INSERT INTO notification_deliveries (kind, settlement_id, job_id, recipient, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 'sending', NOW(), NOW())
	`, settlementConfirmationKind, settlementID, jobID, recipient)

	if err == nil {
		return nil
	}
	if !IsUniqueViolation(err) {
		return err
	}

	// 2) Row exists. If it failed, claim it for retry; only one worker can
	// flip failed -> sending.
	tag, uErr := r.pool.Exec(ctx, `
		UPDATE notification_deliveries
		SET status = 'sending',
		    job_id = $3,
		    recipient = $4,
		    last_error = NULL,
		    updated_at = NOW()
		WHERE kind = $1 AND settlement_id = $2 AND status = 'failed'
	`, settlementConfirmationKind, settlementID, jobID, recipient)

	if uErr != nil {
		return uErr
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	// 3) Not failed. Already sent, or another worker is on it.
	var status string
	var sentAt *time.Time

	qErr := r.pool.QueryRow(ctx, `
		SELECT status, sent_at
		FROM notification_deliveries
		WHERE kind = $1 AND settlement_id = $2
	`, settlementConfirmationKind, settlementID).Scan(&status, &sentAt)

	if qErr != nil {
		if errors.Is(qErr, pgx.ErrNoRows) {
			// row disappeared; let caller retry
			return nil
		}
		return qErr
	}

	if sentAt != nil || status == "sent" {
		return delivery.ErrAlreadySent
	}

	return delivery.ErrInProgress
}

func (r *DeliveriesRepo) MarkSettlementConfirmationSent(
	ctx context.Context,
	settlementID string,
	providerMessageID *string,
) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE notification_deliveries
		SET status = 'sent',
		    sent_at = NOW(),
		    provider_message_id = $3,
		    last_error = NULL,
		    updated_at = NOW()
		WHERE kind = $1 AND settlement_id = $2
	`, settlementConfirmationKind, settlementID, providerMessageID)

	return err
}

func (r *DeliveriesRepo) MarkSettlementConfirmationFailed(
	ctx context.Context,
	settlementID string,
	errMsg string,
) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE notification_deliveries
		SET status = 'failed',
		    last_error = $3,
		    updated_at = NOW()
		WHERE kind = $1 AND settlement_id = $2
	`, settlementConfirmationKind, settlementID, errMsg)

	return err
}
