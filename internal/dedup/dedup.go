package dedup

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/ziad784/whatsapp-bot2/internal/redis"
)

// DefaultRetention is how long a message id is remembered. A redelivery
// after the window has elapsed is processed as new.
const DefaultRetention = 5 * time.Minute

// Filter rejects re-delivered events by transport-assigned message id. The
// membership set is in-memory; when a redis client is configured the ids are
// additionally reserved there so restarts and sibling instances stay
// deduplicated. Redis errors fall back to the local result.
type Filter struct {
	mu        sync.Mutex
	seen      map[string]struct{}
	cache     *redis.Client
	retention time.Duration
}

func NewFilter(cache *redis.Client, retention time.Duration) *Filter {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Filter{
		seen:      make(map[string]struct{}),
		cache:     cache,
		retention: retention,
	}
}

// FirstSight reports whether messageID has not been seen within the
// retention window, inserting it as a side effect. Callers process the
// event only when it returns true.
func (f *Filter) FirstSight(ctx context.Context, messageID string) bool {
	if messageID == "" {
		return true
	}

	f.mu.Lock()
	if _, dup := f.seen[messageID]; dup {
		f.mu.Unlock()
		return false
	}
	f.seen[messageID] = struct{}{}
	f.mu.Unlock()

	time.AfterFunc(f.retention, func() {
		f.mu.Lock()
		delete(f.seen, messageID)
		f.mu.Unlock()
	})

	if f.cache != nil {
		ok, err := f.cache.SetNX(ctx, "dedup:msg:"+messageID, 1, f.retention)
		if err != nil {
			log.Printf("dedup: redis reserve failed for %s: %v", messageID, err)
			return true
		}
		if !ok {
			// Another instance already handled it.
			return false
		}
	}
	return true
}
