package pipeline

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/udaypartap979/cal2/internal/ai"
	"github.com/udaypartap979/cal2/internal/config"
)

// FileArchive keeps undecodable voice notes on local disk under a random
// reference until Prune removes them.
type FileArchive struct {
	dir       string
	retention time.Duration
	now       func() time.Time
}

func NewFileArchive(dir string, retention time.Duration) *FileArchive {
	return &FileArchive{dir: dir, retention: retention, now: time.Now}
}

func NewFileArchiveFromConfig(cfg config.Config) *FileArchive {
	return NewFileArchive(cfg.DebugAudioDir, time.Duration(cfg.DebugAudioRetentionHours)*time.Hour)
}

// Preserve writes data and returns its reference. The reference is returned
// even when the write fails so the user still gets something to quote.
func (a *FileArchive) Preserve(data []byte, mimeType string) (string, error) {
	ref := uuid.NewString()
	if err := os.MkdirAll(a.dir, 0o750); err != nil {
		return ref, fmt.Errorf("create debug dir: %w", err)
	}
	path := filepath.Join(a.dir, ref+ai.ExtensionFor(mimeType))
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return ref, fmt.Errorf("write debug audio: %w", err)
	}
	log.Printf("debug audio preserved ref=%s path=%s bytes=%d", ref, path, len(data))
	return ref, nil
}

// Path returns the stored file for ref, if any.
func (a *FileArchive) Path(ref string) (string, bool) {
	ref = strings.TrimSpace(ref)
	if _, err := uuid.Parse(ref); err != nil {
		return "", false
	}
	matches, err := filepath.Glob(filepath.Join(a.dir, ref+".*"))
	if err != nil || len(matches) == 0 {
		return "", false
	}
	return matches[0], true
}

// Prune deletes archived files older than the retention window and returns
// how many were removed.
func (a *FileArchive) Prune() (int, error) {
	if a.retention <= 0 {
		return 0, nil
	}
	entries, err := os.ReadDir(a.dir)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	cutoff := a.now().Add(-a.retention)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(a.dir, entry.Name())); err != nil {
			log.Printf("debug audio prune failed file=%s err=%v", entry.Name(), err)
			continue
		}
		removed++
	}
	return removed, nil
}

// SchedulePrune runs Prune on schedule until the returned scheduler is
// stopped.
func (a *FileArchive) SchedulePrune(schedule string) (*cron.Cron, error) {
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(schedule, func() {
		removed, err := a.Prune()
		if err != nil {
			log.Printf("debug audio prune failed err=%v", err)
			return
		}
		if removed > 0 {
			log.Printf("debug audio pruned count=%d", removed)
		}
	}); err != nil {
		return nil, fmt.Errorf("invalid DEBUG_AUDIO_PRUNE_SCHEDULE %q: %w", schedule, err)
	}
	scheduler.Start()
	return scheduler, nil
}
