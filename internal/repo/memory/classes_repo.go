package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/yogalab/classhub/internal/domain/class"
	"github.com/yogalab/classhub/internal/utils"
)

// ClassesRepo keeps listings in a map. It backs handler tests and local
// development without postgres.
type ClassesRepo struct {
	mu    sync.RWMutex
	items map[string]class.Class
}

func NewClassesRepo() *ClassesRepo {
	return &ClassesRepo{
		items: make(map[string]class.Class),
	}
}

func (r *ClassesRepo) Create(ctx context.Context, c class.Class) error {
	r.mu.Lock()
	r.items[c.ID] = c
	r.mu.Unlock()

	return nil
}

func (r *ClassesRepo) GetByID(ctx context.Context, id string) (class.Class, error) {
	r.mu.RLock()
	c, ok := r.items[id]
	r.mu.RUnlock()

	if !ok {
		return class.Class{}, class.ErrNotFound
	}

	return c, nil
}

func (r *ClassesRepo) List(ctx context.Context, filter class.ListFilter) ([]class.Class, error) {
	r.mu.RLock()

	out := make([]class.Class, 0, len(r.items))

	for _, c := range r.items {
		if filter.Status != nil && c.Status != *filter.Status {
			continue
		}
		if filter.Instructor != nil && c.InstructorEmail != *filter.Instructor {
			continue
		}
		out = append(out, c)
	}

	r.mu.RUnlock()

	if filter.Top > 0 {
		sort.SliceStable(out, func(i, j int) bool {
			if out[i].EnrollmentCount != out[j].EnrollmentCount {
				return out[i].EnrollmentCount > out[j].EnrollmentCount
			}
			return out[i].ID < out[j].ID
		})

		if len(out) > filter.Top {
			out = out[:filter.Top]
		}

		return out, nil
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return []class.Class{}, nil
		}
		out = out[filter.Offset:]
	}

	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}

	return out, nil
}

func (r *ClassesRepo) ListCursor(
	ctx context.Context,
	status *class.Status,
	limit int,
	beforeCreatedAt time.Time,
	beforeID string,
) ([]class.Class, *string, bool, error) {
	r.mu.RLock()

	all := make([]class.Class, 0, len(r.items))

	for _, c := range r.items {
		if status != nil && c.Status != *status {
			continue
		}
		all = append(all, c)
	}

	r.mu.RUnlock()

	// newest first, id descending as tiebreaker, matching the sql ordering
	sort.SliceStable(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID > all[j].ID
	})

	filtered := make([]class.Class, 0, len(all))

	for _, c := range all {
		if c.CreatedAt.After(beforeCreatedAt) {
			continue
		}
		if c.CreatedAt.Equal(beforeCreatedAt) && c.ID >= beforeID {
			continue
		}
		filtered = append(filtered, c)
	}

	hasMore := len(filtered) > limit

	if hasMore {
		filtered = filtered[:limit]
	}

	var next *string

	if hasMore && len(filtered) > 0 {
		last := filtered[len(filtered)-1]
		cur, err := utils.EncodeClassCursor(last.CreatedAt, last.ID)

		if err != nil {
			return nil, nil, false, err
		}

		next = &cur
	}

	return filtered, next, hasMore, nil
}

func (r *ClassesRepo) Review(ctx context.Context, id string, req class.ReviewRequest) (class.Class, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.items[id]

	if !ok {
		return class.Class{}, class.ErrNotFound
	}

	c.Status = req.Status
	c.Feedback = req.Feedback
	c.UpdatedAt = time.Now().UTC()
	r.items[id] = c

	return c, nil
}

// IncrementEnrollment mirrors the conditional credit used at settlement
// time: a missing listing is skipped, not an error.
func (r *ClassesRepo) IncrementEnrollment(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.items[id]

	if !ok {
		return false
	}

	c.EnrollmentCount++
	r.items[id] = c

	return true
}
