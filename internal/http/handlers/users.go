package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yogalab/classhub/internal/config"
	"github.com/yogalab/classhub/internal/domain/user"
	"github.com/yogalab/classhub/internal/http/middlewares"
)

type UsersRepo interface {
	Upsert(ctx context.Context, req user.UpsertRequest) (user.User, bool, error)
	GetByEmail(ctx context.Context, email string) (user.User, error)
	List(ctx context.Context) ([]user.User, error)
	SetRole(ctx context.Context, email string, role user.Role) error
}

type UsersHandler struct {
	repo UsersRepo
}

func NewUsersHandler(repo UsersRepo) *UsersHandler {
	return &UsersHandler{repo: repo}
}

type SetRoleRequest struct {
	Role string `json:"role" binding:"required,oneof=unset student instructor admin"`
}

type CreateUserRequest struct {
	Email string `json:"email" binding:"required,email"`
	Name  string `json:"name" binding:"required,min=2,max=120"`
}

// Create is the idempotent sign-up path. A second call with a known email
// reports alreadyExists and leaves the stored row, role included, untouched.
func (h *UsersHandler) Create(ctx *gin.Context) {
	var req CreateUserRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	u, created, err := h.repo.Upsert(cctx, user.UpsertRequest{
		Email: req.Email,
		Name:  req.Name,
	})

	if err != nil {
		RespondInternal(ctx, "Could not create user")
		return
	}

	status := http.StatusCreated
	if !created {
		status = http.StatusOK
	}

	ctx.JSON(status, gin.H{
		"email":         u.Email,
		"name":          u.Name,
		"role":          u.Role,
		"alreadyExists": !created,
	})
}

// GetRole is the soft lookup: it answers "what am I allowed to do" without
// ever failing the caller. An account with no assignment reports unset, and
// the client routes that to onboarding. Asking about someone else's role
// yields an empty role rather than an error, so the response shape never
// leaks whether the other account exists.
func (h *UsersHandler) GetRole(ctx *gin.Context) {
	email := ctx.Param("email")

	callerEmail, ok := middlewares.EmailFromContext(ctx)

	if !ok {
		RespondUnAuthorized(ctx, "unauthorized", "Missing identity")
		return
	}

	callerRole, _ := middlewares.RoleFromContext(ctx)

	if email != callerEmail && callerRole != user.RoleAdmin {
		ctx.JSON(http.StatusOK, gin.H{
			"email": email,
			"role":  "",
		})
		return
	}

	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	u, err := h.repo.GetByEmail(cctx, email)

	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			RespondNotFound(ctx, "User not found")
			return
		}
		RespondInternal(ctx, "Could not fetch role")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"email": u.Email,
		"role":  u.Role,
	})
}

// List is admin-only, used by the role assignment screen.
func (h *UsersHandler) List(ctx *gin.Context) {
	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	users, err := h.repo.List(cctx)

	if err != nil {
		RespondInternal(ctx, "Could not list users")
		return
	}

	RespondJSONWithETag(ctx, http.StatusOK, gin.H{
		"items": users,
		"count": len(users),
	})
}

// SetRole replaces the assignment outright; there is no role merging.
func (h *UsersHandler) SetRole(ctx *gin.Context) {
	email := ctx.Param("email")

	var req SetRoleRequest

	if !BindJSON(ctx, &req) {
		return
	}

	role, err := user.ParseRole(req.Role)

	if err != nil {
		RespondBadRequest(ctx, "Unknown role", nil)
		return
	}

	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	err = h.repo.SetRole(cctx, email, role)

	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			RespondNotFound(ctx, "User not found")
			return
		}
		RespondInternal(ctx, "Could not update role")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"email": email,
		"role":  role,
	})
}
