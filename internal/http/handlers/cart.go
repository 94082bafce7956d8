package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yogalab/classhub/internal/config"
	"github.com/yogalab/classhub/internal/domain/cart"
	"github.com/yogalab/classhub/internal/domain/class"
	"github.com/yogalab/classhub/internal/http/middlewares"
	"github.com/yogalab/classhub/internal/utils"
)

type CartRepo interface {
	Add(ctx context.Context, item cart.Item) error
	ListByOwner(ctx context.Context, ownerEmail string) ([]cart.Item, error)
	Remove(ctx context.Context, id, ownerEmail string) error
}

type ClassReader interface {
	GetByID(ctx context.Context, id string) (class.Class, error)
}

type CartHandler struct {
	repo    CartRepo
	classes ClassReader
}

func NewCartHandler(repo CartRepo, classes ClassReader) *CartHandler {
	return &CartHandler{repo: repo, classes: classes}
}

// Add puts a class into the caller's cart. Adding the same class twice is
// allowed; each add is its own line item.
func (h *CartHandler) Add(ctx *gin.Context) {
	var req cart.AddItemRequest

	if !BindJSON(ctx, &req) {
		return
	}

	email, ok := middlewares.EmailFromContext(ctx)

	if !ok {
		RespondUnAuthorized(ctx, "unauthorized", "Missing identity")
		return
	}

	req.OwnerEmail = email

	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	// only approved listings can be carted
	c, err := h.classes.GetByID(cctx, req.ClassID)

	if err != nil {
		if errors.Is(err, class.ErrNotFound) {
			RespondNotFound(ctx, "Class not found")
			return
		}
		RespondInternal(ctx, "Could not add to cart")
		return
	}

	if c.Status != class.StatusApproved {
		RespondNotFound(ctx, "Class not found")
		return
	}

	item := cart.NewFromAddRequest(req)

	if err := h.repo.Add(cctx, item); err != nil {
		RespondInternal(ctx, "Could not add to cart")
		return
	}

	ctx.JSON(http.StatusCreated, item)
}

func (h *CartHandler) List(ctx *gin.Context) {
	email, ok := middlewares.EmailFromContext(ctx)

	if !ok {
		RespondUnAuthorized(ctx, "unauthorized", "Missing identity")
		return
	}

	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	items, err := h.repo.ListByOwner(cctx, email)

	if err != nil {
		RespondInternal(ctx, "Could not list cart")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"items": items,
		"count": len(items),
	})
}

// Remove deletes one line. A row already cleared by a settlement that won
// the race reads as success; a row owned by someone else is forbidden.
func (h *CartHandler) Remove(ctx *gin.Context) {
	id := ctx.Param("id")

	if !utils.IsUUID(id) {
		RespondBadRequest(ctx, "cart item id must be a valid UUID", nil)
		return
	}

	email, ok := middlewares.EmailFromContext(ctx)

	if !ok {
		RespondUnAuthorized(ctx, "unauthorized", "Missing identity")
		return
	}

	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	err := h.repo.Remove(cctx, id, email)

	if err != nil {
		switch {
		case errors.Is(err, cart.ErrNotFound):
			// already gone; removal is idempotent
			ctx.Status(http.StatusNoContent)
		case errors.Is(err, cart.ErrNotOwner):
			RespondForbidden(ctx, "forbidden", "Cart item belongs to another user")
		default:
			RespondInternal(ctx, "Could not remove cart item")
		}
		return
	}

	ctx.Status(http.StatusNoContent)
}
