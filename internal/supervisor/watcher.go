package supervisor

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// DefaultDebounce is the quiet period after the last file change before a
// burst is acted on. Editors commonly touch several files per save; one
// restart per burst avoids restart storms.
const DefaultDebounce = 300 * time.Millisecond

var ignoredDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"dist":         true,
	".gkm":         true,
}

// Watcher watches a source tree recursively and reports debounced change
// bursts.
type Watcher struct {
	fsw      *fsnotify.Watcher
	debounce time.Duration
	logger   *logrus.Logger
}

// NewWatcher creates a recursive watcher over root. Dependency and artifact
// directories are skipped.
func NewWatcher(root string, debounce time.Duration, logger *logrus.Logger) (*Watcher, error) {
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.InfoLevel)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{fsw: fsw, debounce: debounce, logger: logger}

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if ignoredDirs[d.Name()] || strings.HasPrefix(d.Name(), ".devhome") {
			return filepath.SkipDir
		}
		return fsw.Add(path)
	})
	if err != nil {
		fsw.Close()
		return nil, err
	}
	return w, nil
}

// Run blocks, invoking onBurst once per debounced burst of file changes,
// until the context is cancelled. The debounce timer is single-shot: a new
// event before it fires reschedules it rather than stacking handlers.
// Errors from onBurst are the handler's problem; the watch loop never dies.
func (w *Watcher) Run(ctx context.Context, onBurst func(context.Context)) {
	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	pending := false

	for {
		select {
		case <-ctx.Done():
			if pending && !timer.Stop() {
				<-timer.C
			}
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !relevantEvent(event) {
				continue
			}
			// New directories need watches too (create-then-write flows).
			if event.Op.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() && !ignoredDirs[filepath.Base(event.Name)] {
					_ = w.fsw.Add(event.Name)
				}
			}
			w.logger.WithField("file", event.Name).Debug("File changed")
			if pending && !timer.Stop() {
				<-timer.C
			}
			timer.Reset(w.debounce)
			pending = true
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.WithError(err).Warn("Watcher error")
		case <-timer.C:
			pending = false
			onBurst(ctx)
		}
	}
}

// Close releases the underlying watches.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

func relevantEvent(event fsnotify.Event) bool {
	if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Remove) && !event.Op.Has(fsnotify.Rename) {
		return false
	}
	base := filepath.Base(event.Name)
	if strings.HasPrefix(base, ".") || strings.HasSuffix(base, "~") {
		return false
	}
	return true
}
