package bot

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ziad784/whatsapp-bot2/internal/convert"
	"github.com/ziad784/whatsapp-bot2/internal/models"
)

// extByMime is the upload allow-list. Anything outside it is rejected
// before touching disk.
var extByMime = map[string]string{
	"application/pdf":    ".pdf",
	"application/msword": ".doc",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": ".docx",
	"image/jpeg": ".jpg",
	"image/jpg":  ".jpg",
	"image/png":  ".png",
}

// handleUpload downloads an attachment, persists it under the uploads
// directory, converts non-PDF formats to PDF, and registers the result on
// the conversation's candidate file list. Called with ent.mu held.
func (e *Engine) handleUpload(ent *entry, ev *models.Event) {
	mime := strings.ToLower(strings.TrimSpace(ev.MimeType))
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	ext, ok := extByMime[mime]
	if !ok {
		log.Printf("rejected unsupported media type %q from chat %s", ev.MimeType, ev.ChatID)
		e.safeReply(ev, "❌ Unsupported file type. Please send a PDF, Word document, or image (JPG/PNG).")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), e.stageTimeout)
	defer cancel()
	media, err := e.transport.Download(ctx, ev)
	if err != nil {
		log.Printf("media download failed for chat %s: %v", ev.ChatID, err)
		e.safeReply(ev, "❌ Failed to receive your document. Please send it again.")
		return
	}

	name := media.Filename
	if name == "" {
		name = ev.Filename
	}
	if name == "" {
		name = "document" + ext
	}
	name = filepath.Base(name)
	if !strings.EqualFold(filepath.Ext(name), ext) {
		name += ext
	}

	path := filepath.Join(e.uploadsDir, fmt.Sprintf("%s_%d_%s", sanitizeChatID(ev.ChatID), time.Now().UnixNano(), name))
	if err := os.MkdirAll(e.uploadsDir, 0o755); err != nil {
		log.Printf("uploads dir unavailable: %v", err)
		e.safeReply(ev, msgGenericError)
		return
	}
	if err := os.WriteFile(path, media.Data, 0o644); err != nil {
		log.Printf("persist upload for chat %s failed: %v", ev.ChatID, err)
		e.safeReply(ev, msgGenericError)
		return
	}
	log.Printf("stored upload %s for chat %s (%d bytes)", path, ev.ChatID, len(media.Data))

	fileEntry := &models.FileEntry{Path: path, OriginalPath: path, Name: name}
	switch ext {
	case ".jpg", ".png":
		pdfPath := path + ".pdf"
		if err := e.runStage(e.imageToPDF, path, pdfPath); err != nil {
			log.Printf("image conversion failed for chat %s: %v", ev.ChatID, err)
			os.Remove(path)
			e.safeReply(ev, "❌ Could not convert your image for printing. Please try a different file.")
			return
		}
		fileEntry.Path = pdfPath
	case ".doc", ".docx":
		pdfPath := path + ".pdf"
		if err := e.runStage(e.docToPDF, path, pdfPath); err != nil {
			log.Printf("document conversion failed for chat %s: %v", ev.ChatID, err)
			os.Remove(path)
			e.safeReply(ev, "❌ Could not convert your document for printing. Please try a different file.")
			return
		}
		fileEntry.Path = pdfPath
	}

	if ent.sel == nil {
		ent.sel = &models.Selection{Step: models.StepNone}
	}
	for _, f := range ent.sel.Files {
		if f.Path == fileEntry.Path {
			return
		}
	}
	ent.sel.Files = append(ent.sel.Files, fileEntry)
	debugLog("chat %s now has %d candidate files", ev.ChatID, len(ent.sel.Files))
}

// runStage executes one conversion step and insists on output existing
// afterwards; tools that exit zero without producing output count as
// failures.
func (e *Engine) runStage(step convert.Step, in, out string) error {
	ctx, cancel := context.WithTimeout(context.Background(), e.stageTimeout)
	defer cancel()
	if err := step.Run(ctx, in, out); err != nil {
		return err
	}
	if _, err := os.Stat(out); err != nil {
		return fmt.Errorf("conversion produced no output at %s: %w", out, err)
	}
	return nil
}

func sanitizeChatID(chatID string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '-'
		}
	}, chatID)
}

// removeFileEntry deletes a candidate's files from disk, ignoring files
// already gone.
func removeFileEntry(chatID string, f *models.FileEntry) {
	for _, p := range []string{f.Path, f.OriginalPath} {
		if p == "" {
			continue
		}
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			log.Printf("remove %s for chat %s failed: %v", p, chatID, err)
		}
	}
}
