package bot

import (
	"context"
	"errors"

	"github.com/ziad784/whatsapp-bot2/internal/models"
)

// Enqueue queues one inbound event for its conversation and blocks until the
// event has been fully processed (or ctx is cancelled; processing still
// completes in that case). Events of the same conversation are handled
// strictly in arrival order and never concurrently; independent
// conversations drain independently.
func (e *Engine) Enqueue(ctx context.Context, ev *models.Event) error {
	if ev == nil || ev.ChatID == "" {
		return errors.New("event with chat id required")
	}
	ent := e.reg.getOrCreate(ev.ChatID)
	done := make(chan struct{})

	e.reg.mu.Lock()
	ent.queue.events = append(ent.queue.events, queuedEvent{ev: ev, done: done})
	start := !ent.queue.processing
	if start {
		ent.queue.processing = true
	}
	qlen := len(ent.queue.events)
	e.reg.mu.Unlock()

	debugLog("queued event %s for chat %s, queue length %d", ev.MessageID, ev.ChatID, qlen)
	if start {
		go e.drain(ev.ChatID, ent)
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// drain processes the queue in FIFO order until it empties, then decides
// whether to arm the file-selection prompt debouncer.
func (e *Engine) drain(chatID string, ent *entry) {
	var last *models.Event
	for {
		e.reg.mu.Lock()
		if len(ent.queue.events) == 0 {
			ent.queue.processing = false
			e.reg.mu.Unlock()
			break
		}
		item := ent.queue.events[0]
		ent.queue.events = ent.queue.events[1:]
		e.reg.mu.Unlock()

		if item.ev != nil {
			last = item.ev
		}
		if item.prompt {
			e.handlePrompt(chatID, item.ev)
		} else {
			e.handleEvent(item.ev)
		}
		if item.done != nil {
			close(item.done)
		}
	}
	e.maybeArmPrompt(chatID, last)
}

// enqueuePrompt appends a synthetic debounce-firing item so the prompt
// eligibility re-check and the prompt itself run on the conversation's
// serialized queue, never racing an in-flight transition.
func (e *Engine) enqueuePrompt(chatID string, ev *models.Event) {
	ent := e.reg.get(chatID)
	if ent == nil {
		return
	}
	e.reg.mu.Lock()
	ent.prompt = nil
	ent.queue.events = append(ent.queue.events, queuedEvent{ev: ev, prompt: true})
	start := !ent.queue.processing
	if start {
		ent.queue.processing = true
	}
	e.reg.mu.Unlock()
	if start {
		go e.drain(chatID, ent)
	}
}
