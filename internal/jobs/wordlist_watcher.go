package jobs

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/nutshimit/mashin-registry/internal/safego"
)

const defaultWordListDebounce = time.Second

// WordStore replaces the stored forbidden word list.
type WordStore interface {
	ReplaceAll(ctx context.Context, words []string) (int, error)
}

// LoadWordList reads a forbidden word file: one word per line, blank lines
// and lines starting with # ignored. Normalisation happens in the store.
func LoadWordList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open word list: %w", err)
	}
	defer f.Close()

	var words []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		words = append(words, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read word list %s: %w", path, err)
	}
	return words, nil
}

// SyncWordList loads path and replaces the stored list with it.
func SyncWordList(ctx context.Context, store WordStore, path string) (int, error) {
	words, err := LoadWordList(path)
	if err != nil {
		return 0, err
	}
	return store.ReplaceAll(ctx, words)
}

// WordListWatcher keeps the forbidden word table in sync with a file on
// disk. Editors often replace a file instead of writing it, so the parent
// directory is watched and events are filtered by name.
type WordListWatcher struct {
	path     string
	store    WordStore
	debounce time.Duration

	fsWatcher *fsnotify.Watcher
	done      chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup

	// synced receives after every reload attempt; used by tests.
	synced chan error
}

// NewWordListWatcher creates a watcher for path. It does nothing until Start.
func NewWordListWatcher(path string, store WordStore) *WordListWatcher {
	return &WordListWatcher{
		path:     filepath.Clean(path),
		store:    store,
		debounce: defaultWordListDebounce,
		done:     make(chan struct{}),
	}
}

// Start loads the file once and then reloads it whenever it changes. A failed
// initial load is returned; later failures are logged and the previous list
// stays in place.
func (w *WordListWatcher) Start(ctx context.Context) error {
	n, err := SyncWordList(ctx, w.store, w.path)
	if err != nil {
		return err
	}
	slog.Info("forbidden word list loaded", "path", w.path, "words", n)

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	dir := filepath.Dir(w.path)
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	w.fsWatcher = fsw

	w.wg.Add(1)
	safego.Go("forbidden word list watcher", func() {
		defer w.wg.Done()
		w.loop(ctx)
	})
	return nil
}

// Stop ends watching. It is safe to call more than once or without Start.
func (w *WordListWatcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		if w.fsWatcher != nil {
			w.fsWatcher.Close()
		}
	})
	w.wg.Wait()
}

func (w *WordListWatcher) loop(ctx context.Context) {
	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if !w.isRelevant(event) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			w.reload(ctx)

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			slog.Warn("forbidden word list watcher error", "path", w.path, "error", err)

		case <-ctx.Done():
			return
		case <-w.done:
			return
		}
	}
}

func (w *WordListWatcher) reload(ctx context.Context) {
	n, err := SyncWordList(ctx, w.store, w.path)
	if err != nil {
		slog.Error("failed to reload forbidden word list, keeping previous list", "path", w.path, "error", err)
	} else {
		slog.Info("forbidden word list reloaded", "path", w.path, "words", n)
	}
	if w.synced != nil {
		select {
		case w.synced <- err:
		default:
		}
	}
}

func (w *WordListWatcher) isRelevant(event fsnotify.Event) bool {
	if filepath.Clean(event.Name) != w.path {
		return false
	}
	return event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0
}
