package processor

import (
	"crypto/md5"
	"encoding/hex"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/reachby3cs/engage/internal/domain"
)

const dedupTTL = 7 * 24 * time.Hour

// Deduper is a best-effort redis cache in front of the store's
// external_url uniqueness check. Redis failures degrade to the store
// lookup instead of failing the crawl.
type Deduper struct {
	rdb *redis.Client
}

func NewDeduper(rdb *redis.Client) *Deduper {
	return &Deduper{rdb: rdb}
}

func dedupKey(url string) string {
	sum := md5.Sum([]byte(url))
	return "engage:dedup:url:" + hex.EncodeToString(sum[:])
}

// Seen reports whether the URL was marked before. Errors read as unseen.
func (d *Deduper) Seen(ctx domain.Context, url string) bool {
	if d == nil || d.rdb == nil {
		return false
	}
	n, err := d.rdb.Exists(ctx, dedupKey(url)).Result()
	if err != nil {
		slog.Warn("dedup cache read failed", slog.String("error", err.Error()))
		return false
	}
	return n > 0
}

// Mark records the URL for dedupTTL.
func (d *Deduper) Mark(ctx domain.Context, url string) {
	if d == nil || d.rdb == nil {
		return
	}
	if err := d.rdb.Set(ctx, dedupKey(url), "1", dedupTTL).Err(); err != nil {
		slog.Warn("dedup cache write failed", slog.String("error", err.Error()))
	}
}
