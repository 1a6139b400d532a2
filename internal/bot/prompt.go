package bot

import (
	"fmt"
	"strings"
	"time"

	"github.com/ziad784/whatsapp-bot2/internal/models"
)

// maybeArmPrompt (re)arms the file-selection prompt debouncer after a
// conversation's queue empties. The prompt only makes sense while the user
// is still dumping documents: a session exists, no step has started, the
// prompt has not already fired, and at least one file arrived.
func (e *Engine) maybeArmPrompt(chatID string, last *models.Event) {
	if last == nil {
		return
	}
	ent := e.reg.get(chatID)
	if ent == nil {
		return
	}
	ent.mu.Lock()
	defer ent.mu.Unlock()
	sel := ent.sel
	if sel == nil || sel.Step != models.StepNone || sel.PromptLock || len(sel.Files) == 0 {
		return
	}

	ev := last
	e.reg.mu.Lock()
	if ent.prompt != nil {
		ent.prompt.Stop()
	}
	ent.prompt = time.AfterFunc(e.promptDelay, func() {
		e.enqueuePrompt(chatID, ev)
	})
	e.reg.mu.Unlock()
	debugLog("armed selection prompt for chat %s", chatID)
}

// handlePrompt runs when the debounce window elapses with no further
// messages. Eligibility is re-checked because events may have advanced the
// conversation between firing and draining.
func (e *Engine) handlePrompt(chatID string, ev *models.Event) {
	ent := e.reg.get(chatID)
	if ent == nil {
		return
	}
	ent.mu.Lock()
	defer ent.mu.Unlock()
	sel := ent.sel
	if sel == nil || sel.Step != models.StepNone || sel.PromptLock || len(sel.Files) == 0 {
		debugLog("selection prompt for chat %s no longer applicable", chatID)
		return
	}
	sel.Step = models.StepAwaitingFileSelection
	e.safeReply(ev, "📎 Please select a file to print:\n"+fileOptions(sel.Files)+"\nReply with the number (e.g., 1) or 'cancel' to reset.")
}

func fileOptions(files []*models.FileEntry) string {
	var b strings.Builder
	for i, f := range files {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%d. %s", i+1, f.Name)
	}
	return b.String()
}
