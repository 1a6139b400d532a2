package bot

import (
	"sync"
	"time"

	"github.com/ziad784/whatsapp-bot2/internal/models"
)

// queuedEvent is one pending unit of work for a conversation. done is closed
// once the event has been fully processed, making enqueue awaitable.
type queuedEvent struct {
	ev     *models.Event
	prompt bool // synthetic debounce firing, not a transport event
	done   chan struct{}
}

// convQueue is the FIFO of pending events for one conversation. It is
// emptied on cleanup but never removed from its entry, so an in-flight
// drainer can never observe a dangling queue.
type convQueue struct {
	events     []queuedEvent
	processing bool
}

// entry bundles everything owned per conversation: the session, its queue,
// and the pending prompt timer.
//
// Lock discipline: entry.mu guards sel (pointer and contents) and is held
// for the whole of one event's processing, which is what serializes session
// mutation. registry.mu guards the entries map, each queue, and each prompt
// timer. When both are needed, entry.mu is taken first.
type entry struct {
	mu     sync.Mutex
	sel    *models.Selection
	queue  convQueue
	prompt *time.Timer
}

// registry owns every per-conversation object, created lazily on first
// event and reset (never deleted) on cleanup.
type registry struct {
	mu      sync.Mutex
	entries map[string]*entry
}

func newRegistry() *registry {
	return &registry{entries: make(map[string]*entry)}
}

func (r *registry) getOrCreate(chatID string) *entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	ent, ok := r.entries[chatID]
	if !ok {
		ent = &entry{}
		r.entries[chatID] = ent
	}
	return ent
}

func (r *registry) get(chatID string) *entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.entries[chatID]
}

// snapshot returns the current entries under lock so callers can inspect
// them without holding the registry mutex.
func (r *registry) snapshot() map[string]*entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]*entry, len(r.entries))
	for id, ent := range r.entries {
		out[id] = ent
	}
	return out
}
