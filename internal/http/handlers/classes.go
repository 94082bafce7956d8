package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yogalab/classhub/internal/cache"
	"github.com/yogalab/classhub/internal/config"
	"github.com/yogalab/classhub/internal/domain/class"
	"github.com/yogalab/classhub/internal/domain/user"
	"github.com/yogalab/classhub/internal/http/middlewares"
	"github.com/yogalab/classhub/internal/profiles"
	"github.com/yogalab/classhub/internal/utils"
)

type ClassesRepo interface {
	Create(ctx context.Context, c class.Class) error
	GetByID(ctx context.Context, id string) (class.Class, error)
	List(ctx context.Context, filter class.ListFilter) ([]class.Class, error)
	ListCursor(ctx context.Context, status *class.Status, limit int, beforeCreatedAt time.Time, beforeID string) ([]class.Class, *string, bool, error)
	Review(ctx context.Context, id string, req class.ReviewRequest) (class.Class, error)
}

type ClassesHandler struct {
	repo      ClassesRepo
	directory profiles.Directory
	listCache *cache.Cache
	log       *slog.Logger
	topLimit  int
}

func NewClassesHandler(repo ClassesRepo, directory profiles.Directory, listCache *cache.Cache, log *slog.Logger, topLimit int) *ClassesHandler {
	if topLimit <= 0 {
		topLimit = 6
	}

	return &ClassesHandler{
		repo:      repo,
		directory: directory,
		listCache: listCache,
		log:       log,
		topLimit:  topLimit,
	}
}

// Create submits a listing for review. Status is forced to pending no
// matter what the body says.
func (h *ClassesHandler) Create(ctx *gin.Context) {
	var req class.CreateRequest

	if !BindJSON(ctx, &req) {
		return
	}

	email, ok := middlewares.EmailFromContext(ctx)

	if !ok {
		RespondUnAuthorized(ctx, "unauthorized", "Missing identity")
		return
	}

	req.InstructorEmail = email

	c := class.NewFromCreateRequest(req)

	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	if err := h.repo.Create(cctx, c); err != nil {
		RespondInternal(ctx, "Could not create class")
		return
	}

	if h.listCache != nil {
		h.listCache.Clear()
	}

	ctx.JSON(http.StatusCreated, c)
}

// List serves the public catalog, defaulting to approved listings; ?status
// narrows to any lifecycle state, ?top=1 returns the most-enrolled classes
// for the landing page, ?cursor pages through the rest.
func (h *ClassesHandler) List(ctx *gin.Context) {
	if ctx.Query("top") == "1" {
		h.listTop(ctx)
		return
	}

	limit := parseIntDefault(ctx.Query("limit"), 20)
	if limit < 1 || limit > 100 {
		RespondBadRequest(ctx, "limit must be between 1 and 100", nil)
		return
	}

	status := class.StatusApproved

	if s := ctx.Query("status"); s != "" {
		status = class.Status(s)
		if !status.IsValid() {
			RespondBadRequest(ctx, "status must be pending, approved or denied", nil)
			return
		}
	}

	// DESC first-page sentinel: "far future" + max UUID
	beforeCreatedAt := time.Date(9999, 12, 31, 23, 59, 59, 0, time.UTC)
	beforeID := "ffffffff-ffff-ffff-ffff-ffffffffffff"

	if cursor := ctx.Query("cursor"); cursor != "" {
		cur, err := utils.DecodeClassCursor(cursor)
		if err != nil {
			RespondBadRequest(ctx, "cursor is invalid", nil)
			return
		}
		beforeCreatedAt = cur.CreatedAt
		beforeID = cur.ID
	}

	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	items, next, hasMore, err := h.repo.ListCursor(cctx, &status, limit, beforeCreatedAt, beforeID)

	if err != nil {
		RespondInternal(ctx, "Could not list classes")
		return
	}

	h.enrich(cctx, items)

	RespondJSONWithETag(ctx, http.StatusOK, gin.H{
		"limit":      limit,
		"count":      len(items),
		"items":      items,
		"hasMore":    hasMore,
		"nextCursor": next,
	})
}

func (h *ClassesHandler) listTop(ctx *gin.Context) {
	const cacheKey = "classes:top"

	if h.listCache != nil {
		if v, ok := h.listCache.Get(cacheKey); ok {
			RespondJSONWithETag(ctx, http.StatusOK, v)
			return
		}
	}

	approved := class.StatusApproved

	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	items, err := h.repo.List(cctx, class.ListFilter{
		Status: &approved,
		Top:    h.topLimit,
	})

	if err != nil {
		RespondInternal(ctx, "Could not list classes")
		return
	}

	h.enrich(cctx, items)

	payload := gin.H{
		"items": items,
		"count": len(items),
	}

	if h.listCache != nil {
		h.listCache.Set(cacheKey, payload)
	}

	RespondJSONWithETag(ctx, http.StatusOK, payload)
}

// Mine lists the caller's own submissions in every status. An instructor
// with nothing submitted gets an empty list, not an error.
func (h *ClassesHandler) Mine(ctx *gin.Context) {
	email, ok := middlewares.EmailFromContext(ctx)

	if !ok {
		RespondUnAuthorized(ctx, "unauthorized", "Missing identity")
		return
	}

	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	items, err := h.repo.List(cctx, class.ListFilter{Instructor: &email})

	if err != nil {
		RespondInternal(ctx, "Could not list classes")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"items": items,
		"count": len(items),
	})
}

// Pending lists the review queue for admins.
func (h *ClassesHandler) Pending(ctx *gin.Context) {
	pending := class.StatusPending

	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	items, err := h.repo.List(cctx, class.ListFilter{Status: &pending})

	if err != nil {
		RespondInternal(ctx, "Could not list classes")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"items": items,
		"count": len(items),
	})
}

func (h *ClassesHandler) GetByID(ctx *gin.Context) {
	id := ctx.Param("id")

	if !utils.IsUUID(id) {
		RespondBadRequest(ctx, "class id must be a valid UUID", nil)
		return
	}

	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	c, err := h.repo.GetByID(cctx, id)

	if err != nil {
		if errors.Is(err, class.ErrNotFound) {
			RespondNotFound(ctx, "Class not found")
			return
		}
		RespondInternal(ctx, "Could not fetch class")
		return
	}

	// non-approved listings are only visible to their instructor and admins
	if c.Status != class.StatusApproved {
		email, _ := middlewares.EmailFromContext(ctx)
		role, _ := middlewares.RoleFromContext(ctx)

		if email != c.InstructorEmail && role != user.RoleAdmin {
			RespondNotFound(ctx, "Class not found")
			return
		}
	}

	ctx.JSON(http.StatusOK, c)
}

// Review records the admin decision. Latest wins: reviewing an already
// reviewed listing overwrites the previous status and feedback.
func (h *ClassesHandler) Review(ctx *gin.Context) {
	id := ctx.Param("id")

	if !utils.IsUUID(id) {
		RespondBadRequest(ctx, "class id must be a valid UUID", nil)
		return
	}

	var req class.ReviewRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	c, err := h.repo.Review(cctx, id, req)

	if err != nil {
		if errors.Is(err, class.ErrNotFound) {
			RespondNotFound(ctx, "Class not found")
			return
		}
		RespondInternal(ctx, "Could not review class")
		return
	}

	if h.listCache != nil {
		h.listCache.Clear()
	}

	ctx.JSON(http.StatusOK, c)
}

func (h *ClassesHandler) enrich(ctx context.Context, items []class.Class) {
	if h.directory == nil || len(items) == 0 {
		return
	}

	emails := make([]string, 0, len(items))
	for _, c := range items {
		emails = append(emails, c.InstructorEmail)
	}

	photos := profiles.Enrich(ctx, h.directory, h.log, emails)

	for i := range items {
		items[i].InstructorPhotoURL = photos[items[i].InstructorEmail]
	}
}
