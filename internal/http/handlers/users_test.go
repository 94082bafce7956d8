package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yogalab/classhub/internal/domain/user"
	"github.com/yogalab/classhub/internal/http/handlers"
)

type fakeUsersRepo struct {
	upsertFn  func(ctx context.Context, req user.UpsertRequest) (user.User, bool, error)
	getFn     func(ctx context.Context, email string) (user.User, error)
	listFn    func(ctx context.Context) ([]user.User, error)
	setRoleFn func(ctx context.Context, email string, role user.Role) error
}

func (f *fakeUsersRepo) Upsert(ctx context.Context, req user.UpsertRequest) (user.User, bool, error) {
	if f.upsertFn != nil {
		return f.upsertFn(ctx, req)
	}
	return user.User{}, false, nil
}

func (f *fakeUsersRepo) GetByEmail(ctx context.Context, email string) (user.User, error) {
	if f.getFn != nil {
		return f.getFn(ctx, email)
	}
	return user.User{}, nil
}

func (f *fakeUsersRepo) List(ctx context.Context) ([]user.User, error) {
	if f.listFn != nil {
		return f.listFn(ctx)
	}
	return []user.User{}, nil
}

func (f *fakeUsersRepo) SetRole(ctx context.Context, email string, role user.Role) error {
	if f.setRoleFn != nil {
		return f.setRoleFn(ctx, email, role)
	}
	return nil
}

func storedUser(email string, role user.Role) user.User {
	now := time.Now().UTC()
	return user.User{
		ID:        newUUID(),
		Email:     email,
		Name:      "Someone",
		Role:      role,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestGetRoleHandler(t *testing.T) {
	tests := []struct {
		name           string
		url            string
		identity       []gin.HandlerFunc
		repoSetup      func(*fakeUsersRepo)
		wantStatusCode int
		wantRole       string
		wantEmptyRole  bool
	}{
		{
			name:     "self_lookup",
			url:      "/users/student@yogalab.io/role",
			identity: []gin.HandlerFunc{withIdentity("student@yogalab.io", user.RoleStudent)},
			repoSetup: func(f *fakeUsersRepo) {
				f.getFn = func(ctx context.Context, email string) (user.User, error) {
					return storedUser(email, user.RoleStudent), nil
				}
			},
			wantStatusCode: http.StatusOK,
			wantRole:       "student",
		},
		{
			name:     "unassigned_account_reports_unset",
			url:      "/users/new@yogalab.io/role",
			identity: []gin.HandlerFunc{withIdentity("new@yogalab.io", user.RoleUnset)},
			repoSetup: func(f *fakeUsersRepo) {
				f.getFn = func(ctx context.Context, email string) (user.User, error) {
					return storedUser(email, user.RoleUnset), nil
				}
			},
			wantStatusCode: http.StatusOK,
			wantRole:       "unset",
		},
		{
			name:     "someone_else_gets_an_empty_role",
			url:      "/users/other@yogalab.io/role",
			identity: []gin.HandlerFunc{withIdentity("student@yogalab.io", user.RoleStudent)},
			repoSetup: func(f *fakeUsersRepo) {
				// if the soft deny leaks through to the store, the stored
				// role would show up in the response
				f.getFn = func(ctx context.Context, email string) (user.User, error) {
					return storedUser(email, user.RoleInstructor), nil
				}
			},
			wantStatusCode: http.StatusOK,
			wantEmptyRole:  true,
		},
		{
			name:     "admin_can_read_anyone",
			url:      "/users/other@yogalab.io/role",
			identity: []gin.HandlerFunc{withIdentity("admin@yogalab.io", user.RoleAdmin)},
			repoSetup: func(f *fakeUsersRepo) {
				f.getFn = func(ctx context.Context, email string) (user.User, error) {
					return storedUser(email, user.RoleInstructor), nil
				}
			},
			wantStatusCode: http.StatusOK,
			wantRole:       "instructor",
		},
		{
			name:     "unknown_user",
			url:      "/users/ghost@yogalab.io/role",
			identity: []gin.HandlerFunc{withIdentity("admin@yogalab.io", user.RoleAdmin)},
			repoSetup: func(f *fakeUsersRepo) {
				f.getFn = func(ctx context.Context, email string) (user.User, error) {
					return user.User{}, user.ErrNotFound
				}
			},
			wantStatusCode: http.StatusNotFound,
		},
		{
			name:           "missing_identity",
			url:            "/users/student@yogalab.io/role",
			identity:       nil,
			wantStatusCode: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		tt := tt

		t.Run(tt.name, func(t *testing.T) {
			repo := &fakeUsersRepo{}
			if tt.repoSetup != nil {
				tt.repoSetup(repo)
			}

			h := handlers.NewUsersHandler(repo)
			r := setupRouter(http.MethodGet, "/users/:email/role", tt.identity, h.GetRole)

			req := httptest.NewRequest(http.MethodGet, tt.url, nil)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != tt.wantStatusCode {
				t.Fatalf("got status %d, want %d, body=%s", w.Code, tt.wantStatusCode, w.Body.String())
			}

			if tt.wantRole != "" || tt.wantEmptyRole {
				var resp struct {
					Role string `json:"role"`
				}
				if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
					t.Fatalf("failed to unmarshal response: %v", err)
				}
				if resp.Role != tt.wantRole {
					t.Fatalf("got role %q, want %q", resp.Role, tt.wantRole)
				}
			}
		})
	}
}

func TestCreateUserHandler(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		repoSetup      func(*fakeUsersRepo)
		wantStatusCode int
		wantExists     bool
	}{
		{
			name: "new_account",
			body: `{"email": "new@yogalab.io", "name": "New Person"}`,
			repoSetup: func(f *fakeUsersRepo) {
				f.upsertFn = func(ctx context.Context, req user.UpsertRequest) (user.User, bool, error) {
					return storedUser(req.Email, user.RoleUnset), true, nil
				}
			},
			wantStatusCode: http.StatusCreated,
		},
		{
			name: "existing_account_is_reported_not_mutated",
			body: `{"email": "old@yogalab.io", "name": "Different Name"}`,
			repoSetup: func(f *fakeUsersRepo) {
				f.upsertFn = func(ctx context.Context, req user.UpsertRequest) (user.User, bool, error) {
					return storedUser(req.Email, user.RoleInstructor), false, nil
				}
			},
			wantStatusCode: http.StatusOK,
			wantExists:     true,
		},
		{
			name:           "invalid_email",
			body:           `{"email": "not-an-email", "name": "Someone"}`,
			wantStatusCode: http.StatusBadRequest,
		},
		{
			name: "repo_error",
			body: `{"email": "new@yogalab.io", "name": "New Person"}`,
			repoSetup: func(f *fakeUsersRepo) {
				f.upsertFn = func(ctx context.Context, req user.UpsertRequest) (user.User, bool, error) {
					return user.User{}, false, errors.New("db error")
				}
			},
			wantStatusCode: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		tt := tt

		t.Run(tt.name, func(t *testing.T) {
			repo := &fakeUsersRepo{}
			if tt.repoSetup != nil {
				tt.repoSetup(repo)
			}

			h := handlers.NewUsersHandler(repo)
			r := setupRouter(http.MethodPost, "/users", nil, h.Create)

			req := httptest.NewRequest(http.MethodPost, "/users", bytes.NewBufferString(tt.body))
			req.Header.Set("Content-Type", "application/json")

			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != tt.wantStatusCode {
				t.Fatalf("got status %d, want %d, body=%s", w.Code, tt.wantStatusCode, w.Body.String())
			}

			if w.Code < 300 {
				var resp struct {
					AlreadyExists bool `json:"alreadyExists"`
				}
				if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
					t.Fatalf("failed to unmarshal response: %v", err)
				}
				if resp.AlreadyExists != tt.wantExists {
					t.Fatalf("got alreadyExists=%v, want %v", resp.AlreadyExists, tt.wantExists)
				}
			}
		})
	}
}

func TestSetRoleHandler(t *testing.T) {
	tests := []struct {
		name           string
		url            string
		body           string
		repoSetup      func(*fakeUsersRepo)
		wantStatusCode int
	}{
		{
			name: "success",
			url:  "/users/teacher@yogalab.io/role",
			body: `{"role": "instructor"}`,
			repoSetup: func(f *fakeUsersRepo) {
				f.setRoleFn = func(ctx context.Context, email string, role user.Role) error {
					if role != user.RoleInstructor {
						return errors.New("role not passed through")
					}
					return nil
				}
			},
			wantStatusCode: http.StatusOK,
		},
		{
			name: "revoke_back_to_unset",
			url:  "/users/teacher@yogalab.io/role",
			body: `{"role": "unset"}`,
			repoSetup: func(f *fakeUsersRepo) {
				f.setRoleFn = func(ctx context.Context, email string, role user.Role) error {
					if role != user.RoleUnset {
						return errors.New("role not passed through")
					}
					return nil
				}
			},
			wantStatusCode: http.StatusOK,
		},
		{
			name:           "unknown_role",
			url:            "/users/teacher@yogalab.io/role",
			body:           `{"role": "superuser"}`,
			wantStatusCode: http.StatusBadRequest,
		},
		{
			name: "unknown_user",
			url:  "/users/ghost@yogalab.io/role",
			body: `{"role": "student"}`,
			repoSetup: func(f *fakeUsersRepo) {
				f.setRoleFn = func(ctx context.Context, email string, role user.Role) error {
					return user.ErrNotFound
				}
			},
			wantStatusCode: http.StatusNotFound,
		},
		{
			name: "repo_error",
			url:  "/users/teacher@yogalab.io/role",
			body: `{"role": "student"}`,
			repoSetup: func(f *fakeUsersRepo) {
				f.setRoleFn = func(ctx context.Context, email string, role user.Role) error {
					return errors.New("db error")
				}
			},
			wantStatusCode: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		tt := tt

		t.Run(tt.name, func(t *testing.T) {
			repo := &fakeUsersRepo{}
			if tt.repoSetup != nil {
				tt.repoSetup(repo)
			}

			h := handlers.NewUsersHandler(repo)
			r := setupRouter(http.MethodPut, "/users/:email/role", []gin.HandlerFunc{
				withIdentity("admin@yogalab.io", user.RoleAdmin),
			}, h.SetRole)

			req := httptest.NewRequest(http.MethodPut, tt.url, bytes.NewBufferString(tt.body))
			req.Header.Set("Content-Type", "application/json")

			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != tt.wantStatusCode {
				t.Fatalf("got status %d, want %d, body=%s", w.Code, tt.wantStatusCode, w.Body.String())
			}
		})
	}
}

func TestListUsersHandler_ETag(t *testing.T) {
	repo := &fakeUsersRepo{}
	stored := storedUser("a@yogalab.io", user.RoleStudent)
	repo.listFn = func(ctx context.Context) ([]user.User, error) {
		return []user.User{stored}, nil
	}

	h := handlers.NewUsersHandler(repo)
	r := setupRouter(http.MethodGet, "/users", []gin.HandlerFunc{
		withIdentity("admin@yogalab.io", user.RoleAdmin),
	}, h.List)

	w1 := httptest.NewRecorder()
	req1 := httptest.NewRequest(http.MethodGet, "/users", nil)
	r.ServeHTTP(w1, req1)

	if w1.Code != http.StatusOK {
		t.Fatalf("first call got %d body=%s", w1.Code, w1.Body.String())
	}

	etag := w1.Header().Get("ETag")
	if etag == "" {
		t.Fatalf("expected ETag header")
	}

	w2 := httptest.NewRecorder()
	req2 := httptest.NewRequest(http.MethodGet, "/users", nil)
	req2.Header.Set("If-None-Match", etag)
	r.ServeHTTP(w2, req2)

	if w2.Code != http.StatusNotModified {
		t.Fatalf("second call got %d, want %d", w2.Code, http.StatusNotModified)
	}
}
