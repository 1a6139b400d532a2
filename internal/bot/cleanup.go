package bot

import (
	"log"
)

// Cleanup tears down a conversation from outside the serialized queue
// (cancel webhooks, staff tools). In-queue handlers already holding the
// entry lock use cleanupLocked directly.
func (e *Engine) Cleanup(chatID string) {
	ent := e.reg.get(chatID)
	if ent == nil {
		return
	}
	ent.mu.Lock()
	defer ent.mu.Unlock()
	e.cleanupLocked(chatID, ent)
}

// cleanupLocked releases everything a conversation holds: queued events,
// the prompt timer, uploaded files, and the session itself. It never fails
// and is safe to run repeatedly. Pending queued events are detached and
// their waiters released so no enqueue caller blocks on a dead
// conversation. Caller holds ent.mu.
func (e *Engine) cleanupLocked(chatID string, ent *entry) {
	e.reg.mu.Lock()
	pending := ent.queue.events
	ent.queue.events = nil
	if ent.prompt != nil {
		ent.prompt.Stop()
		ent.prompt = nil
	}
	e.reg.mu.Unlock()

	for _, item := range pending {
		if item.done != nil {
			close(item.done)
		}
	}
	if len(pending) > 0 {
		log.Printf("discarded %d queued events for chat %s during cleanup", len(pending), chatID)
	}

	if sel := ent.sel; sel != nil {
		for _, f := range sel.Files {
			removeFileEntry(chatID, f)
		}
		ent.sel = nil
	}
	debugLog("cleaned up conversation state for chat %s", chatID)
}
