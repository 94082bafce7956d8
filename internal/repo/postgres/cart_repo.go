package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yogalab/classhub/internal/domain/cart"
	"github.com/yogalab/classhub/internal/observability"
)

type CartRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewCartRepo(pool *pgxpool.Pool, prom *observability.Prom) *CartRepo {
	return &CartRepo{pool: pool, prom: prom}
}

func (r *CartRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

// Add inserts a new line. Duplicates of the same class are allowed; each add
// is its own row with its own id.
func (r *CartRepo) Add(ctx context.Context, item cart.Item) error {
	return r.observe("cart.add", func() error {
		_, err := r.pool.Exec(ctx, `
			INSERT INTO cart_items (id, owner_email, class_id, created_at)
			VALUES ($1,$2,$3,$4)
		`, item.ID, item.OwnerEmail, item.ClassID, item.CreatedAt)
		return err
	})
}

func (r *CartRepo) ListByOwner(ctx context.Context, ownerEmail string) (items []cart.Item, err error) {
	op := "cart.list_by_owner"

	var rows pgx.Rows

	err = r.observe(op, func() error {
		rows, err = r.pool.Query(ctx, `
			SELECT id, owner_email, class_id, created_at
			FROM cart_items
			WHERE owner_email = $1
			ORDER BY created_at ASC, id ASC
		`, ownerEmail)
		return err
	})

	if err != nil {
		return
	}

	defer rows.Close()

	items = make([]cart.Item, 0)

	for rows.Next() {
		var it cart.Item

		e := rows.Scan(&it.ID, &it.OwnerEmail, &it.ClassID, &it.CreatedAt)

		if e != nil {
			err = e
			return
		}
		items = append(items, it)
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

// Remove deletes a single line scoped to its owner. A row owned by someone
// else is reported as ErrNotOwner, a missing row as ErrNotFound: a delete
// that lost the race with settlement must read as already-gone, not as a
// permission failure.
func (r *CartRepo) Remove(ctx context.Context, id, ownerEmail string) error {
	var tag int64

	err := r.observe("cart.remove", func() error {
		t, e := r.pool.Exec(ctx, `
			DELETE FROM cart_items
			WHERE id = $1 AND owner_email = $2
		`, id, ownerEmail)

		if e != nil {
			return e
		}
		tag = t.RowsAffected()
		return nil
	})

	if err != nil {
		return err
	}

	if tag == 1 {
		return nil
	}

	var owner string

	err = r.observe("cart.remove.owner_check", func() error {
		return r.pool.QueryRow(ctx, `SELECT owner_email FROM cart_items WHERE id = $1`, id).Scan(&owner)
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return cart.ErrNotFound
		}
		return err
	}

	return cart.ErrNotOwner
}

// DeleteManyTx clears the given ids for one payer inside the caller's
// transaction. Ids that are missing or owned by another user are skipped;
// the count of rows actually removed comes back.
func (r *CartRepo) DeleteManyTx(ctx context.Context, tx pgx.Tx, ownerEmail string, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	var removed int64

	err := r.observe("cart.delete_many_tx", func() error {
		tag, e := tx.Exec(ctx, `
			DELETE FROM cart_items
			WHERE owner_email = $1 AND id = ANY($2)
		`, ownerEmail, ids)

		if e != nil {
			return e
		}
		removed = tag.RowsAffected()
		return nil
	})

	return int(removed), err
}
