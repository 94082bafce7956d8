package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yogalab/classhub/internal/domain/payment"
	"github.com/yogalab/classhub/internal/observability"
)

type PaymentsRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewPaymentsRepo(pool *pgxpool.Pool, prom *observability.Prom) *PaymentsRepo {
	return &PaymentsRepo{pool: pool, prom: prom}
}

func (r *PaymentsRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

func (r *PaymentsRepo) BeginTx(ctx context.Context) (pgx.Tx, error) {
	return r.pool.BeginTx(ctx, pgx.TxOptions{})
}

// CreateTx writes the ledger row. This is the first statement of every
// settling transaction: the unique index on settlement_id makes a second
// settle with the same id fail here, before any cart or enrollment write.
func (r *PaymentsRepo) CreateTx(ctx context.Context, tx pgx.Tx, rec payment.Record) error {
	err := r.observe("payments.create_tx", func() error {
		_, e := tx.Exec(ctx, `
			INSERT INTO payment_records (id, settlement_id, payer_email, amount_minor, class_ids, cart_item_ids, items_removed, classes_credited, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		`, rec.ID, rec.SettlementID, rec.PayerEmail, rec.AmountMinor, rec.ClassIDs, rec.CartItemIDs, rec.ItemsRemoved, rec.ClassesCredited, rec.CreatedAt)
		return e
	})

	if err != nil {
		if IsUniqueViolation(err) {
			return payment.ErrDuplicateSettlement
		}
		return err
	}

	return nil
}

// UpdateCountsTx backfills the outcome counters on the ledger row once the
// cart and enrollment writes inside the same transaction are done.
func (r *PaymentsRepo) UpdateCountsTx(ctx context.Context, tx pgx.Tx, recordID string, itemsRemoved, classesCredited int) error {
	return r.observe("payments.update_counts_tx", func() error {
		_, e := tx.Exec(ctx, `
			UPDATE payment_records
			SET items_removed = $2, classes_credited = $3
			WHERE id = $1
		`, recordID, itemsRemoved, classesCredited)
		return e
	})
}

func (r *PaymentsRepo) GetBySettlementID(ctx context.Context, settlementID string) (payment.Record, error) {
	var rec payment.Record

	err := r.observe("payments.get_by_settlement_id", func() error {
		return r.pool.QueryRow(ctx, `
			SELECT id, settlement_id, payer_email, amount_minor, class_ids, cart_item_ids, items_removed, classes_credited, created_at
			FROM payment_records
			WHERE settlement_id = $1
		`, settlementID).Scan(
			&rec.ID, &rec.SettlementID, &rec.PayerEmail, &rec.AmountMinor,
			&rec.ClassIDs, &rec.CartItemIDs, &rec.ItemsRemoved, &rec.ClassesCredited, &rec.CreatedAt,
		)
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return payment.Record{}, payment.ErrNotFound
		}
		return payment.Record{}, err
	}

	return rec, nil
}

func (r *PaymentsRepo) ListByPayer(ctx context.Context, payerEmail string) (records []payment.Record, err error) {
	op := "payments.list_by_payer"

	var rows pgx.Rows

	err = r.observe(op, func() error {
		rows, err = r.pool.Query(ctx, `
			SELECT id, settlement_id, payer_email, amount_minor, class_ids, cart_item_ids, items_removed, classes_credited, created_at
			FROM payment_records
			WHERE payer_email = $1
			ORDER BY created_at DESC, id DESC
		`, payerEmail)
		return err
	})

	if err != nil {
		return
	}

	defer rows.Close()

	records = make([]payment.Record, 0)

	for rows.Next() {
		var rec payment.Record

		e := rows.Scan(
			&rec.ID, &rec.SettlementID, &rec.PayerEmail, &rec.AmountMinor,
			&rec.ClassIDs, &rec.CartItemIDs, &rec.ItemsRemoved, &rec.ClassesCredited, &rec.CreatedAt,
		)

		if e != nil {
			err = e
			return
		}
		records = append(records, rec)
	}

	e := rows.Err()

	if e != nil {
		if r.prom != nil {
			r.prom.DbErrorsTotal.WithLabelValues(op, "rows_err").Inc()
		}
		err = e
		return
	}

	return
}
