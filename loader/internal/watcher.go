package internal

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"ustawy/config"
)

// FileState is where a processed file ends up.
type FileState int

const (
	StateDone FileState = iota
	StateBad
)

// Watcher reports files dropped into the source directory once they have
// not changed for the monitoring period.
type Watcher struct {
	sourceDir      string
	archiveDir     string
	badDir         string
	monitoringTime time.Duration
	tick           time.Duration
	logger         *slog.Logger

	mu         sync.Mutex
	lastChange map[string]time.Time
	processing map[string]bool
}

func NewWatcher(cfg config.LoaderConfig) (*Watcher, error) {
	if err := CreateDirectories(cfg.SourceDir, cfg.ArchiveDir, cfg.BadDir); err != nil {
		return nil, err
	}
	return &Watcher{
		sourceDir:      cfg.SourceDir,
		archiveDir:     cfg.ArchiveDir,
		badDir:         cfg.BadDir,
		monitoringTime: cfg.MonitoringTime,
		tick:           time.Second,
		logger:         slog.Default(),
		lastChange:     make(map[string]time.Time),
		processing:     make(map[string]bool),
	}, nil
}

// WatchFile sends stable file paths to fileChan until ctx is cancelled.
func (w *Watcher) WatchFile(ctx context.Context, fileChan chan<- string) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fs watcher: %w", err)
	}
	defer fsw.Close()

	if err := fsw.Add(w.sourceDir); err != nil {
		return fmt.Errorf("watch %s: %w", w.sourceDir, err)
	}
	w.logger.Info("start monitoring folder", "stage", "watch", "dir", w.sourceDir)
	defer w.logger.Info("file watcher stopped", "stage", "watch")

	// files already waiting before start
	if entries, err := os.ReadDir(w.sourceDir); err == nil {
		for _, e := range entries {
			if !e.IsDir() {
				w.touch(filepath.Join(w.sourceDir, e.Name()))
			}
		}
	}

	ticker := time.NewTicker(w.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ev)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("fs watcher error", "stage", "watch", "error", err)
		case <-ticker.C:
			for _, path := range w.ready(time.Now()) {
				select {
				case fileChan <- path:
				case <-ctx.Done():
					return nil
				}
			}
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	if strings.HasPrefix(filepath.Base(ev.Name), ".") {
		return
	}
	switch {
	case ev.Has(fsnotify.Create), ev.Has(fsnotify.Write):
		if info, err := os.Stat(ev.Name); err == nil && !info.IsDir() {
			w.touch(ev.Name)
		}
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		w.forget(ev.Name)
		w.logger.Debug("file removed from tracking", "stage", "watch", "path", ev.Name)
	}
}

func (w *Watcher) touch(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.processing[path] {
		return
	}
	if _, seen := w.lastChange[path]; !seen {
		w.logger.Info("new file detected", "stage", "watch", "path", path)
	}
	w.lastChange[path] = time.Now()
}

func (w *Watcher) forget(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.lastChange, path)
	delete(w.processing, path)
}

// ready marks and returns the files unchanged for longer than monitoringTime.
func (w *Watcher) ready(now time.Time) []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	var out []string
	for path, changed := range w.lastChange {
		if w.processing[path] || now.Sub(changed) <= w.monitoringTime {
			continue
		}
		w.processing[path] = true
		out = append(out, path)
	}
	return out
}

// Done moves a processed file to the archive or bad directory and stops tracking it.
func (w *Watcher) Done(filePath string, state FileState) error {
	defer w.forget(filePath)
	dest, err := MoveToArchive(filePath, w.archiveDir, w.badDir, state)
	if err != nil {
		return err
	}
	w.logger.Info("file moved", "stage", "watch", "to", dest)
	return nil
}

// MoveToArchive moves filePath into <archiveDir|badDir>/<YYYY-MM-DD>/,
// suffixing the name when a file with the same name is already there.
func MoveToArchive(filePath, archiveDir, badDir string, state FileState) (string, error) {
	base := archiveDir
	if state == StateBad {
		base = badDir
	}

	destDir := filepath.Join(base, time.Now().Format("2006-01-02"))
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("error creating directory: %w", err)
	}

	destPath := filepath.Join(destDir, filepath.Base(filePath))
	ext := filepath.Ext(destPath)
	baseName := strings.TrimSuffix(filepath.Base(destPath), ext)
	for counter := 1; ; counter++ {
		if _, err := os.Stat(destPath); os.IsNotExist(err) {
			break
		}
		destPath = filepath.Join(destDir, fmt.Sprintf("%s_%d%s", baseName, counter, ext))
	}

	if err := os.Rename(filePath, destPath); err == nil {
		return destPath, nil
	}

	// rename fails across devices, fall back to copy and remove
	in, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("error open file: %w", err)
	}
	defer in.Close()

	out, err := os.Create(destPath)
	if err != nil {
		return "", fmt.Errorf("error create file: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return "", fmt.Errorf("error moving file to archive: %w", err)
	}
	if err := out.Close(); err != nil {
		return "", err
	}
	in.Close()
	return destPath, os.Remove(filePath)
}

func CreateDirectories(dirs ...string) error {
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}
