package eventbridge

import (
	"sync"
)

const (
	defaultBacklogLimit = 50
	defaultDedupeWindow = 1024
)

// RouterOption customizes Router construction.
type RouterOption func(*Router)

// Router turns bridge events into host hook calls. It drops duplicate event
// ids, buffers events that arrive before their hook is bound, and hands every
// call to the dispatcher so hooks never run concurrently.
type Router struct {
	dispatcher *Dispatcher

	mu           sync.Mutex
	onLoad       func(path string)
	onSave       func(path string)
	onStartup    func()
	backlog      []Event
	recentIDs    map[string]struct{}
	recentOrder  []string
	backlogLimit int
	dedupeWindow int
	logger       Logger
}

// NewRouter constructs a router delivering through dispatcher.
func NewRouter(dispatcher *Dispatcher, opts ...RouterOption) *Router {
	r := &Router{
		dispatcher:   dispatcher,
		recentIDs:    map[string]struct{}{},
		recentOrder:  make([]string, 0, defaultDedupeWindow),
		backlogLimit: defaultBacklogLimit,
		dedupeWindow: defaultDedupeWindow,
		logger:       nopLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// RouterWithLogger injects a logger for drop/diagnostic messages.
func RouterWithLogger(logger Logger) RouterOption {
	return func(r *Router) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// RouterWithBacklogLimit overrides how many events are held before hooks are bound.
func RouterWithBacklogLimit(limit int) RouterOption {
	return func(r *Router) {
		if limit > 0 {
			r.backlogLimit = limit
		}
	}
}

// RouterWithDedupeWindow controls how many recent event IDs are retained.
func RouterWithDedupeWindow(size int) RouterOption {
	return func(r *Router) {
		if size > 0 {
			r.dedupeWindow = size
		}
	}
}

// OnSceneLoad binds the scene load hook.
func (r *Router) OnSceneLoad(fn func(path string)) {
	r.mu.Lock()
	r.onLoad = fn
	r.mu.Unlock()
	r.flushBacklog()
}

// OnSceneSave binds the scene save hook.
func (r *Router) OnSceneSave(fn func(path string)) {
	r.mu.Lock()
	r.onSave = fn
	r.mu.Unlock()
	r.flushBacklog()
}

// OnStartupComplete binds the startup hook.
func (r *Router) OnStartupComplete(fn func()) {
	r.mu.Lock()
	r.onStartup = fn
	r.mu.Unlock()
	r.flushBacklog()
}

// HandleEvent satisfies the EventProcessor interface.
func (r *Router) HandleEvent(event Event) error {
	r.Route(event)
	return nil
}

// Route delivers the event to its hook or buffers it when none is bound.
func (r *Router) Route(event Event) {
	if event.EventID != "" && r.isDuplicate(event.EventID) {
		r.logger.Printf("eventbridge: duplicate event %s ignored", event.EventID)
		return
	}
	r.mu.Lock()
	call := r.callLocked(event)
	if call == nil {
		r.bufferLocked(event)
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()
	r.dispatcher.Submit(event.Type, call)
}

func (r *Router) callLocked(event Event) func() {
	switch event.Type {
	case TypeSceneLoad:
		if fn := r.onLoad; fn != nil {
			return func() { fn(event.Path) }
		}
	case TypeSceneSave:
		if fn := r.onSave; fn != nil {
			return func() { fn(event.Path) }
		}
	case TypeStartupComplete:
		if fn := r.onStartup; fn != nil {
			return fn
		}
	}
	return nil
}

func (r *Router) bufferLocked(event Event) {
	if len(r.backlog) >= r.backlogLimit {
		r.logger.Printf("eventbridge: backlog drop for %s (limit %d)", r.backlog[0].Type, r.backlogLimit)
		r.backlog = r.backlog[1:]
	}
	r.backlog = append(r.backlog, event)
}

func (r *Router) flushBacklog() {
	r.mu.Lock()
	var (
		calls []func()
		kinds []string
		kept  []Event
	)
	for _, event := range r.backlog {
		if call := r.callLocked(event); call != nil {
			calls = append(calls, call)
			kinds = append(kinds, event.Type)
			continue
		}
		kept = append(kept, event)
	}
	r.backlog = kept
	r.mu.Unlock()
	for i, call := range calls {
		r.dispatcher.Submit(kinds[i], call)
	}
}

func (r *Router) isDuplicate(eventID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.recentIDs[eventID]; ok {
		return true
	}
	r.recentIDs[eventID] = struct{}{}
	r.recentOrder = append(r.recentOrder, eventID)
	if len(r.recentOrder) > r.dedupeWindow {
		oldest := r.recentOrder[0]
		r.recentOrder = r.recentOrder[1:]
		delete(r.recentIDs, oldest)
	}
	return false
}
