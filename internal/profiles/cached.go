package profiles

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// CachedDirectory puts redis in front of the profile service. A miss that
// also fails upstream caches the empty value briefly so a down directory
// does not get hammered on every catalog read.
type CachedDirectory struct {
	inner Directory
	rdb   *redis.Client
	log   *slog.Logger
	ttl   time.Duration
}

func NewCachedDirectory(inner Directory, rdb *redis.Client, log *slog.Logger, ttl time.Duration) *CachedDirectory {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}

	return &CachedDirectory{
		inner: inner,
		rdb:   rdb,
		log:   log,
		ttl:   ttl,
	}
}

func cacheKey(email string) string {
	return "profile:photo:" + email
}

func (c *CachedDirectory) PhotoURL(ctx context.Context, email string) (string, error) {
	val, err := c.rdb.Get(ctx, cacheKey(email)).Result()

	if err == nil {
		return val, nil
	}

	if !errors.Is(err, redis.Nil) {
		// cache down; fall through to the directory
		c.log.Warn("profile cache read failed", "err", err)
	}

	photo, lookupErr := c.inner.PhotoURL(ctx, email)

	if lookupErr != nil {
		return "", lookupErr
	}

	if setErr := c.rdb.Set(ctx, cacheKey(email), photo, c.ttl).Err(); setErr != nil {
		c.log.Warn("profile cache write failed", "err", setErr)
	}

	return photo, nil
}

// Enrich fills photo urls on a batch, skipping entries that fail. The
// per-item timeout keeps one slow lookup from stalling the whole page.
func Enrich(ctx context.Context, d Directory, log *slog.Logger, emails []string) map[string]string {
	out := make(map[string]string, len(emails))
	seen := make(map[string]struct{}, len(emails))

	for _, email := range emails {
		if _, ok := seen[email]; ok {
			continue
		}
		seen[email] = struct{}{}

		itemCtx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
		photo, err := d.PhotoURL(itemCtx, email)
		cancel()

		if err != nil {
			log.Warn("profile enrichment skipped", "email", email, "err", err)
			continue
		}

		if photo != "" {
			out[email] = photo
		}
	}

	return out
}
