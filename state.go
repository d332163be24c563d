package livespec

import "sync"

// StateChange is one path write. Subscribers always receive the batched
// form: every mutation, including a single Set, notifies with a slice.
type StateChange struct {
	Path  string      `json:"path"`
	Value interface{} `json:"value"`
}

// StateReader is the read side of the state contract, enough for
// expression resolution and visibility evaluation.
type StateReader interface {
	// Get reads the value at a slash-delimited path. Missing paths report
	// ok=false; reads never fail.
	Get(path string) (interface{}, bool)
	// Snapshot returns the current state root. The returned value stays
	// referentially stable until the next mutation.
	Snapshot() map[string]interface{}
}

// StateStore is the full path-addressed state contract. A session owns one
// store by default; callers may inject their own implementation to run in
// controlled mode.
type StateStore interface {
	StateReader
	// Set writes one value, creating intermediate objects as needed.
	Set(path string, value interface{})
	// Update applies a batch atomically: all entries land before the single
	// subscriber notification fires.
	Update(changes []StateChange)
	// Subscribe registers a listener for mutation batches. The returned
	// function removes it. Listeners run synchronously on the mutating
	// goroutine and must not block.
	Subscribe(fn func([]StateChange)) func()
}

// MemoryStore is the default in-memory StateStore. Mutations are
// copy-on-write along the written path, so snapshots handed out earlier
// are never modified underneath a reader.
type MemoryStore struct {
	mu      sync.RWMutex
	root    map[string]interface{}
	subs    map[int]func([]StateChange)
	nextSub int
}

// NewMemoryStore creates a store seeded with initial state. A nil initial
// map starts empty.
func NewMemoryStore(initial map[string]interface{}) *MemoryStore {
	if initial == nil {
		initial = make(map[string]interface{})
	}
	return &MemoryStore{
		root: initial,
		subs: make(map[int]func([]StateChange)),
	}
}

// Get reads the value at path. The root path ("" or "/") returns the
// whole state object.
func (s *MemoryStore) Get(path string) (interface{}, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	segs := splitPath(path)
	if segs == nil {
		return s.root, true
	}
	return getIn(s.root, segs)
}

// Snapshot returns the current root object. Callers treat it as read-only;
// the store never mutates a root it has already handed out.
func (s *MemoryStore) Snapshot() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.root
}

// Set writes value at path and notifies subscribers with a one-entry batch.
func (s *MemoryStore) Set(path string, value interface{}) {
	s.Update([]StateChange{{Path: path, Value: value}})
}

// Update applies all changes, swaps the root once, then notifies
// subscribers once with the full batch.
func (s *MemoryStore) Update(changes []StateChange) {
	if len(changes) == 0 {
		return
	}
	s.mu.Lock()
	next := interface{}(s.root)
	for _, c := range changes {
		segs := splitPath(c.Path)
		if segs == nil {
			if m, ok := c.Value.(map[string]interface{}); ok {
				next = m
			}
			continue
		}
		next = setIn(next, segs, c.Value)
	}
	if m, ok := next.(map[string]interface{}); ok {
		s.root = m
	}
	listeners := make([]func([]StateChange), 0, len(s.subs))
	for _, fn := range s.subs {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(changes)
	}
}

// Subscribe registers fn and returns its cancel function. Cancelling twice
// is a no-op.
func (s *MemoryStore) Subscribe(fn func([]StateChange)) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}
