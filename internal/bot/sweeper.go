package bot

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"time"
)

// StartUploadSweeper periodically deletes upload files older than maxAge
// that no live conversation still references, catching leftovers from
// crashes and abandoned conversations. It returns after spawning the loop;
// the loop exits when ctx is cancelled.
func (e *Engine) StartUploadSweeper(ctx context.Context, interval, maxAge time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				e.sweepUploads(maxAge)
			}
		}
	}()
}

func (e *Engine) sweepUploads(maxAge time.Duration) {
	referenced := make(map[string]struct{})
	for _, ent := range e.reg.snapshot() {
		ent.mu.Lock()
		if sel := ent.sel; sel != nil {
			for _, f := range sel.Files {
				referenced[filepath.Clean(f.Path)] = struct{}{}
				referenced[filepath.Clean(f.OriginalPath)] = struct{}{}
			}
		}
		ent.mu.Unlock()
	}

	entries, err := os.ReadDir(e.uploadsDir)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("upload sweep: read dir failed: %v", err)
		}
		return
	}
	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, de := range entries {
		if de.IsDir() {
			continue
		}
		path := filepath.Join(e.uploadsDir, de.Name())
		if _, ok := referenced[filepath.Clean(path)]; ok {
			continue
		}
		info, err := de.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(path); err != nil {
			log.Printf("upload sweep: remove %s failed: %v", path, err)
			continue
		}
		removed++
	}
	if removed > 0 {
		log.Printf("upload sweep removed %d stale files", removed)
	}
}
