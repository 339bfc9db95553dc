package fswatch

import (
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/CoderByBlood/whisper-cms-sub000/internal/logger"
)

// WatchConfig tunes a folder watch.
type WatchConfig struct {
	// Recursive adds every subdirectory of the root.
	Recursive bool

	// Debounce is the quiet window before changed paths are delivered.
	Debounce time.Duration

	// Canonicalize resolves delivered paths through EvalSymlinks.
	Canonicalize bool

	// Buffer is the output channel capacity.
	Buffer int
}

// StopFunc shuts a watch down: it drops the OS watcher, signals the
// forwarder and closes the output channel. Safe to call once.
type StopFunc func()

// Watch emits changed file paths under root. The OS callback feeds an
// internal channel; a forwarder applies the debounce window, coalesces
// bursts into a unique set and delivers each path to the bounded output
// channel under the caller's backpressure.
func Watch(root string, cfg WatchConfig) (<-chan string, StopFunc, error) {
	if cfg.Debounce <= 0 {
		cfg.Debounce = 100 * time.Millisecond
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 64
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, nil, err
	}

	if err := w.Add(root); err != nil {
		w.Close()
		return nil, nil, err
	}
	if cfg.Recursive {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil || !d.IsDir() || path == root {
				return nil
			}
			if addErr := w.Add(path); addErr != nil {
				logger.Warn("watching subdirectory failed", "path", path, "error", addErr)
			}
			return nil
		})
		if err != nil {
			w.Close()
			return nil, nil, err
		}
	}

	out := make(chan string, cfg.Buffer)
	stopCh := make(chan struct{})

	go forward(w, cfg, out, stopCh)

	stop := func() {
		w.Close()
		close(stopCh)
	}
	return out, stop, nil
}

// attach brings a directory created after the watch started under
// observation. The directory and any subdirectories are added to the OS
// watcher, and files already inside are recorded as pending since their
// writes may have landed before the watch attached.
func attach(w *fsnotify.Watcher, dir string, pending map[string]struct{}) {
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if addErr := w.Add(path); addErr != nil {
				logger.Warn("watching subdirectory failed", "path", path, "error", addErr)
			}
			return nil
		}
		pending[path] = struct{}{}
		return nil
	})
	if err != nil {
		logger.Warn("scanning subdirectory failed", "path", dir, "error", err)
	}
}

// forward is the debounce and coalesce loop.
func forward(w *fsnotify.Watcher, cfg WatchConfig, out chan<- string, stopCh <-chan struct{}) {
	defer close(out)

	pending := make(map[string]struct{})
	var timer *time.Timer
	var fire <-chan time.Time

	note := func(ev fsnotify.Event) {
		if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename|fsnotify.Remove) == 0 {
			return
		}
		if cfg.Recursive && ev.Op&fsnotify.Create != 0 {
			if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
				attach(w, ev.Name, pending)
			}
		}
		pending[ev.Name] = struct{}{}
		if timer == nil {
			timer = time.NewTimer(cfg.Debounce)
			fire = timer.C
		}
	}

	flush := func() {
		// drain whatever arrived during the window without sleeping again
		for drained := false; !drained; {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				note(ev)
			default:
				drained = true
			}
		}
		for path := range pending {
			delete(pending, path)
			if cfg.Canonicalize {
				if canon, err := filepath.EvalSymlinks(path); err == nil {
					path = canon
				}
			}
			select {
			case out <- path:
			case <-stopCh:
				return
			}
		}
		timer = nil
		fire = nil
	}

	for {
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			note(ev)

		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			logger.Warn("watch error", "error", err)

		case <-fire:
			flush()

		case <-stopCh:
			return
		}
	}
}
