package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yogalab/classhub/internal/domain/user"
	"github.com/yogalab/classhub/internal/observability"
)

type UsersRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewUsersRepo(pool *pgxpool.Pool, prom *observability.Prom) *UsersRepo {
	return &UsersRepo{pool: pool, prom: prom}
}

func (r *UsersRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

// Upsert inserts the user if the email is new and leaves an existing row
// untouched. Re-sign-ins must not reset an assigned role.
func (r *UsersRepo) Upsert(ctx context.Context, req user.UpsertRequest) (u user.User, created bool, err error) {
	now := time.Now().UTC()

	candidate := user.User{
		ID:        uuid.NewString(),
		Email:     req.Email,
		Name:      req.Name,
		Role:      user.RoleUnset,
		CreatedAt: now,
		UpdatedAt: now,
	}

	var tag int64

	err = r.observe("users.upsert.insert", func() error {
		t, e := r.pool.Exec(ctx, `
			INSERT INTO users (id, email, password_hash, name, role, created_at, updated_at)
			VALUES ($1,$2,'',$3,$4,$5,$6)
			ON CONFLICT (email) DO NOTHING
		`, candidate.ID, candidate.Email, candidate.Name, string(candidate.Role), candidate.CreatedAt, candidate.UpdatedAt)

		if e != nil {
			return e
		}
		tag = t.RowsAffected()
		return nil
	})

	if err != nil {
		return
	}

	if tag == 1 {
		return candidate, true, nil
	}

	u, err = r.GetByEmail(ctx, req.Email)
	return u, false, err
}

func (r *UsersRepo) GetByEmail(ctx context.Context, email string) (user.User, error) {
	var u user.User
	var role string

	err := r.observe("users.get_by_email", func() error {
		return r.pool.QueryRow(ctx, `
			SELECT id, email, password_hash, name, role, created_at, updated_at
			FROM users
			WHERE email = $1
		`, email).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &role, &u.CreatedAt, &u.UpdatedAt)
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, err
	}

	u.Role = user.Role(role)
	return u, nil
}

func (r *UsersRepo) GetByID(ctx context.Context, id string) (user.User, error) {
	var u user.User
	var role string

	err := r.observe("users.get_by_id", func() error {
		return r.pool.QueryRow(ctx, `
			SELECT id, email, password_hash, name, role, created_at, updated_at
			FROM users
			WHERE id = $1
		`, id).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &role, &u.CreatedAt, &u.UpdatedAt)
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, err
	}

	u.Role = user.Role(role)
	return u, nil
}

func (r *UsersRepo) List(ctx context.Context) (users []user.User, err error) {
	var rows pgx.Rows

	err = r.observe("users.list", func() error {
		rows, err = r.pool.Query(ctx, `
			SELECT id, email, password_hash, name, role, created_at, updated_at
			FROM users
			ORDER BY created_at ASC, id ASC
		`)
		return err
	})

	if err != nil {
		return
	}

	defer rows.Close()

	users = make([]user.User, 0)

	for rows.Next() {
		var u user.User
		var role string

		e := rows.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &role, &u.CreatedAt, &u.UpdatedAt)

		if e != nil {
			err = e
			return
		}

		u.Role = user.Role(role)
		users = append(users, u)
	}

	e := rows.Err()

	if e != nil {
		if r.prom != nil {
			r.prom.DbErrorsTotal.WithLabelValues("users.list", "rows_err").Inc()
		}
		err = e
		return
	}

	return
}

func (r *UsersRepo) SetRole(ctx context.Context, email string, role user.Role) error {
	var tag int64

	err := r.observe("users.set_role", func() error {
		t, e := r.pool.Exec(ctx, `
			UPDATE users
			SET role = $2, updated_at = NOW()
			WHERE email = $1
		`, email, string(role))

		if e != nil {
			return e
		}
		tag = t.RowsAffected()
		return nil
	})

	if err != nil {
		return err
	}

	if tag == 0 {
		return user.ErrNotFound
	}

	return nil
}
