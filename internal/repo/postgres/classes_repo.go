package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yogalab/classhub/internal/domain/class"
	"github.com/yogalab/classhub/internal/observability"
	"github.com/yogalab/classhub/internal/utils"
)

type ClassesRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewClassesRepo(pool *pgxpool.Pool, prom *observability.Prom) *ClassesRepo {
	return &ClassesRepo{pool: pool, prom: prom}
}

func (r *ClassesRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

func (r *ClassesRepo) BeginTx(ctx context.Context) (pgx.Tx, error) {
	return r.pool.BeginTx(ctx, pgx.TxOptions{})
}

func (r *ClassesRepo) Create(ctx context.Context, c class.Class) error {
	return r.observe("classes.create", func() error {
		_, err := r.pool.Exec(ctx, `
			INSERT INTO classes (id, instructor_email, title, description, price_minor, status, feedback, enrollment_count, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		`, c.ID, c.InstructorEmail, c.Title, c.Description, c.PriceMinor, string(c.Status), c.Feedback, c.EnrollmentCount, c.CreatedAt, c.UpdatedAt)
		return err
	})
}

func (r *ClassesRepo) GetByID(ctx context.Context, id string) (class.Class, error) {
	var c class.Class
	var status string

	err := r.observe("classes.get_by_id", func() error {
		return r.pool.QueryRow(ctx, `
			SELECT id, instructor_email, title, description, price_minor, status, feedback, enrollment_count, created_at, updated_at
			FROM classes
			WHERE id = $1
		`, id).Scan(&c.ID, &c.InstructorEmail, &c.Title, &c.Description, &c.PriceMinor, &status, &c.Feedback, &c.EnrollmentCount, &c.CreatedAt, &c.UpdatedAt)
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return class.Class{}, class.ErrNotFound
		}
		return class.Class{}, err
	}

	c.Status = class.Status(status)
	return c, nil
}

// List runs the catalog query. Top > 0 switches ordering to enrollment
// count, the shape the landing page asks for.
func (r *ClassesRepo) List(ctx context.Context, filter class.ListFilter) (classes []class.Class, err error) {
	op := "classes.list"

	base := `
		SELECT id, instructor_email, title, description, price_minor, status, feedback, enrollment_count, created_at, updated_at
		FROM classes
	`

	var (
		conds   []string
		args    []any
		argsPos = 1
	)

	if filter.Status != nil {
		conds = append(conds, fmt.Sprintf("status = $%d", argsPos))
		args = append(args, string(*filter.Status))
		argsPos++
	}

	if filter.Instructor != nil {
		conds = append(conds, fmt.Sprintf("instructor_email = $%d", argsPos))
		args = append(args, *filter.Instructor)
		argsPos++
	}

	q := base
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}

	if filter.Top > 0 {
		q += fmt.Sprintf(" ORDER BY enrollment_count DESC, id ASC LIMIT $%d", argsPos)
		args = append(args, filter.Top)
	} else {
		q += " ORDER BY created_at DESC, id DESC"

		if filter.Limit > 0 {
			q += fmt.Sprintf(" LIMIT $%d", argsPos)
			args = append(args, filter.Limit)
			argsPos++
		}
		if filter.Offset > 0 {
			q += fmt.Sprintf(" OFFSET $%d", argsPos)
			args = append(args, filter.Offset)
		}
	}

	var rows pgx.Rows

	err = r.observe(op, func() error {
		var qerr error
		rows, qerr = r.pool.Query(ctx, q, args...)
		return qerr
	})

	if err != nil {
		return
	}

	defer rows.Close()

	classes = make([]class.Class, 0)

	for rows.Next() {
		var c class.Class
		var status string

		e := rows.Scan(&c.ID, &c.InstructorEmail, &c.Title, &c.Description, &c.PriceMinor, &status, &c.Feedback, &c.EnrollmentCount, &c.CreatedAt, &c.UpdatedAt)

		if e != nil {
			err = e
			return
		}

		c.Status = class.Status(status)
		classes = append(classes, c)
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

func (r *ClassesRepo) ListCursor(
	ctx context.Context,
	status *class.Status,
	limit int,
	beforeCreatedAt time.Time,
	beforeID string,
) (items []class.Class, nextCursor *string, hasMore bool, err error) {
	op := "classes.list_cursor"

	base := `
		SELECT id, instructor_email, title, description, price_minor, status, feedback, enrollment_count, created_at, updated_at
		FROM classes
	`

	var (
		conds   []string
		args    []any
		argsPos = 1
	)

	if status != nil {
		conds = append(conds, fmt.Sprintf("status = $%d", argsPos))
		args = append(args, string(*status))
		argsPos++
	}

	// DESC keyset: fetch rows older than the cursor
	conds = append(conds, fmt.Sprintf("(created_at, id) < ($%d, $%d)", argsPos, argsPos+1))
	args = append(args, beforeCreatedAt, beforeID)
	argsPos += 2

	q := base + " WHERE " + strings.Join(conds, " AND ")

	limitPlusOne := limit + 1
	q += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d", argsPos)
	args = append(args, limitPlusOne)

	var rows pgx.Rows

	err = r.observe(op, func() error {
		var qerr error
		rows, qerr = r.pool.Query(ctx, q, args...)
		return qerr
	})
	if err != nil {
		return nil, nil, false, err
	}
	defer rows.Close()

	out := make([]class.Class, 0, limit)

	for rows.Next() {
		var c class.Class
		var st string

		if scanErr := rows.Scan(&c.ID, &c.InstructorEmail, &c.Title, &c.Description, &c.PriceMinor, &st, &c.Feedback, &c.EnrollmentCount, &c.CreatedAt, &c.UpdatedAt); scanErr != nil {
			return nil, nil, false, scanErr
		}
		c.Status = class.Status(st)
		out = append(out, c)
	}

	if rows.Err() != nil {
		return nil, nil, false, rows.Err()
	}

	if len(out) > limit {
		hasMore = true
		out = out[:limit]
		last := out[len(out)-1]

		cur, encErr := utils.EncodeClassCursor(last.CreatedAt, last.ID)
		if encErr != nil {
			return nil, nil, false, encErr
		}
		nextCursor = &cur
	}

	return out, nextCursor, hasMore, nil
}

// GetByIDs resolves a batch of ids in one round trip. Ids with no row are
// silently absent from the result.
func (r *ClassesRepo) GetByIDs(ctx context.Context, ids []string) (classes []class.Class, err error) {
	if len(ids) == 0 {
		return []class.Class{}, nil
	}

	op := "classes.get_by_ids"

	var rows pgx.Rows

	err = r.observe(op, func() error {
		var qerr error
		rows, qerr = r.pool.Query(ctx, `
			SELECT id, instructor_email, title, description, price_minor, status, feedback, enrollment_count, created_at, updated_at
			FROM classes
			WHERE id = ANY($1)
			ORDER BY created_at DESC, id DESC
		`, ids)
		return qerr
	})

	if err != nil {
		return
	}

	defer rows.Close()

	classes = make([]class.Class, 0, len(ids))

	for rows.Next() {
		var c class.Class
		var status string

		e := rows.Scan(&c.ID, &c.InstructorEmail, &c.Title, &c.Description, &c.PriceMinor, &status, &c.Feedback, &c.EnrollmentCount, &c.CreatedAt, &c.UpdatedAt)

		if e != nil {
			err = e
			return
		}

		c.Status = class.Status(status)
		classes = append(classes, c)
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

// Review applies an admin decision. Latest wins: a re-review overwrites both
// status and feedback unconditionally.
func (r *ClassesRepo) Review(ctx context.Context, id string, req class.ReviewRequest) (class.Class, error) {
	var c class.Class
	var status string

	err := r.observe("classes.review", func() error {
		return r.pool.QueryRow(ctx, `
			UPDATE classes
			SET status = $2, feedback = $3, updated_at = NOW()
			WHERE id = $1
			RETURNING id, instructor_email, title, description, price_minor, status, feedback, enrollment_count, created_at, updated_at
		`, id, string(req.Status), req.Feedback).Scan(
			&c.ID, &c.InstructorEmail, &c.Title, &c.Description, &c.PriceMinor, &status, &c.Feedback, &c.EnrollmentCount, &c.CreatedAt, &c.UpdatedAt,
		)
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return class.Class{}, class.ErrNotFound
		}
		return class.Class{}, err
	}

	c.Status = class.Status(status)
	return c, nil
}

// IncrementEnrollmentTx credits one enrollment inside the caller's
// transaction. The increment happens in SQL so concurrent settlements never
// read-modify-write each other's counts. Returns false when the id has no
// row.
func (r *ClassesRepo) IncrementEnrollmentTx(ctx context.Context, tx pgx.Tx, id string) (bool, error) {
	var credited bool

	err := r.observe("classes.increment_enrollment_tx", func() error {
		tag, e := tx.Exec(ctx, `
			UPDATE classes
			SET enrollment_count = enrollment_count + 1, updated_at = NOW()
			WHERE id = $1
		`, id)

		if e != nil {
			return e
		}
		credited = tag.RowsAffected() == 1
		return nil
	})

	return credited, err
}
