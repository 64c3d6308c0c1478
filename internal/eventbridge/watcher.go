package eventbridge

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
)

// DefaultSceneExtensions are the files the watcher treats as scenes.
var DefaultSceneExtensions = []string{".scene", ".katana"}

const defaultSettle = 250 * time.Millisecond

// WatcherOption customizes a Watcher.
type WatcherOption func(*Watcher)

// WatcherWithExtensions overrides which file extensions count as scenes.
func WatcherWithExtensions(exts ...string) WatcherOption {
	return func(w *Watcher) {
		if len(exts) > 0 {
			w.exts = normalizeExtensions(exts)
		}
	}
}

// WatcherWithSettle sets how long repeated writes to one file are coalesced.
func WatcherWithSettle(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d >= 0 {
			w.settle = d
		}
	}
}

// WatcherWithLogger routes watcher diagnostics to logger.
func WatcherWithLogger(logger Logger) WatcherOption {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// Watcher turns writes to scene files under a directory tree into
// scene_save events, for hosts that cannot post to the bridge themselves.
type Watcher struct {
	root      string
	processor EventProcessor
	watcher   *fsnotify.Watcher
	exts      []string
	settle    time.Duration
	logger    Logger
	now       func() time.Time

	mu       sync.Mutex
	lastSeen map[string]time.Time
}

// NewWatcher prepares a recursive watcher rooted at root.
func NewWatcher(root string, processor EventProcessor, opts ...WatcherOption) (*Watcher, error) {
	if processor == nil {
		return nil, fmt.Errorf("eventbridge: watcher needs a processor")
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("eventbridge: watch %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("eventbridge: watch %s: not a directory", root)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("eventbridge: create watcher: %w", err)
	}
	w := &Watcher{
		root:      root,
		processor: processor,
		watcher:   fw,
		exts:      normalizeExtensions(DefaultSceneExtensions),
		settle:    defaultSettle,
		logger:    nopLogger{},
		now:       time.Now,
		lastSeen:  map[string]time.Time{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	if err := w.addTree(root); err != nil {
		_ = fw.Close()
		return nil, err
	}
	return w, nil
}

// Run forwards events until ctx is done or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) {
	w.logger.Printf("eventbridge: watching %s for %s", w.root, strings.Join(w.exts, ", "))
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Printf("eventbridge: watcher error: %v", err)
		case <-ctx.Done():
			return
		}
	}
}

// Close releases the underlying watcher. Safe to call multiple times.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

func (w *Watcher) handle(event fsnotify.Event) {
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addTree(event.Name); err != nil {
				w.logger.Printf("eventbridge: %v", err)
			}
			return
		}
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return
	}
	if !w.isScene(event.Name) || !w.settled(event.Name) {
		return
	}
	if event.Has(fsnotify.Rename) {
		if _, err := os.Stat(event.Name); err != nil {
			return
		}
	}
	evt := Event{
		Version: EventSchemaVersion,
		EventID: uuid.NewString(),
		Type:    TypeSceneSave,
		Path:    event.Name,
		Source:  "watcher",
	}
	evt.StampServerTime(w.now())
	if err := w.processor.HandleEvent(evt); err != nil {
		w.logger.Printf("eventbridge: forward %s: %v", event.Name, err)
	}
}

func (w *Watcher) settled(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	now := w.now()
	if last, ok := w.lastSeen[path]; ok && now.Sub(last) < w.settle {
		return false
	}
	for seen, last := range w.lastSeen {
		if now.Sub(last) >= w.settle {
			delete(w.lastSeen, seen)
		}
	}
	w.lastSeen[path] = now
	return true
}

func (w *Watcher) isScene(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, want := range w.exts {
		if ext == want {
			return true
		}
	}
	return false
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			return fmt.Errorf("eventbridge: watch %s: %w", path, err)
		}
		return nil
	})
}

func normalizeExtensions(exts []string) []string {
	out := make([]string, 0, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		out = append(out, ext)
	}
	return out
}
