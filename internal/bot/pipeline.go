package bot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/ziad784/whatsapp-bot2/internal/models"
)

// ExecutePrintJob runs the staged print pipeline for a paid conversation:
// page extraction, optional grayscale conversion, then one print dispatch
// per copy. Any stage failure aborts the job; success and failure alike end
// with the conversation's resources released.
func (e *Engine) ExecutePrintJob(ctx context.Context, chatID string) error {
	ent := e.reg.get(chatID)
	if ent == nil {
		return fmt.Errorf("no conversation for chat %s", chatID)
	}
	ent.mu.Lock()
	defer ent.mu.Unlock()
	sel := ent.sel
	if sel == nil || sel.File == nil {
		return fmt.Errorf("no print job staged for chat %s", chatID)
	}

	intermediates, failedStage, err := e.runPipeline(ctx, chatID, sel)
	for _, p := range intermediates {
		if rmErr := os.Remove(p); rmErr != nil && !os.IsNotExist(rmErr) {
			log.Printf("remove intermediate %s failed: %v", p, rmErr)
		}
	}
	if err != nil {
		log.Printf("print pipeline failed for chat %s at %s: %v", chatID, failedStage, err)
		e.safeSend(chatID, fmt.Sprintf("❌ Printing failed (%s). Please contact support; your payment has been recorded.", failedStage))
		e.recordJob(chatID, sel, models.JobFailed)
	} else {
		log.Printf("print job completed for chat %s", chatID)
		e.safeSend(chatID, "✅ Successfully printed document! Thank you for your patronage.")
		e.recordJob(chatID, sel, models.JobCompleted)
	}
	e.cleanupLocked(chatID, ent)
	return err
}

// runPipeline drives the stages over a working path. It returns every
// intermediate file it created so the caller can remove them, plus the
// user-facing name of the stage that failed.
func (e *Engine) runPipeline(ctx context.Context, chatID string, sel *models.Selection) ([]string, string, error) {
	path := sel.File.Path
	var intermediates []string
	if _, err := os.Stat(path); err != nil {
		return intermediates, "document lookup", fmt.Errorf("source document missing: %w", err)
	}

	if sel.Pages != "" && !strings.EqualFold(sel.Pages, "all") {
		out := path + ".print.pdf"
		intermediates = append(intermediates, out)
		if err := e.runTimed(ctx, func(sctx context.Context) error {
			return e.extractor.Extract(sctx, path, out, sel.Pages)
		}); err != nil {
			return intermediates, "page extraction", err
		}
		if err := requireOutput(out); err != nil {
			return intermediates, "page extraction", err
		}
		path = out
		debugLog("extracted pages %s for chat %s into %s", sel.Pages, chatID, out)
	}

	if !sel.Color {
		out := path + ".bw.pdf"
		intermediates = append(intermediates, out)
		if err := e.runTimed(ctx, func(sctx context.Context) error {
			return e.grayscale.Run(sctx, path, out)
		}); err != nil {
			return intermediates, "black & white conversion", err
		}
		if err := requireOutput(out); err != nil {
			return intermediates, "black & white conversion", err
		}
		path = out
		debugLog("grayscale document ready for chat %s at %s", chatID, out)
	}

	for i := 1; i <= sel.Copies; i++ {
		if err := e.runTimed(ctx, func(sctx context.Context) error {
			return e.printer.Print(sctx, path, sel.Size)
		}); err != nil {
			return intermediates, "print dispatch", fmt.Errorf("copy %d of %d: %w", i, sel.Copies, err)
		}
		log.Printf("dispatched copy %d/%d for chat %s", i, sel.Copies, chatID)
	}
	return intermediates, "", nil
}

// runTimed bounds one pipeline stage by the configured stage timeout while
// still honoring the caller's context.
func (e *Engine) runTimed(ctx context.Context, stage func(context.Context) error) error {
	sctx, cancel := context.WithTimeout(ctx, e.stageTimeout)
	defer cancel()
	return stage(sctx)
}

func requireOutput(path string) error {
	if _, err := os.Stat(path); err != nil {
		return errors.New("tool produced no output file")
	}
	return nil
}
