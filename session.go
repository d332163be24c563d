package livespec

import (
	"context"
	"log"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// UpdateKind tags what triggered a session update.
type UpdateKind string

const (
	// UpdateSpec means a stream payload changed the spec.
	UpdateSpec UpdateKind = "spec"
	// UpdateState means a state mutation triggered the re-render.
	UpdateState UpdateKind = "state"
)

// Update is one rendered pass pushed to session listeners: the output of
// the tree walk plus metadata about what caused it.
type Update struct {
	Kind      UpdateKind  `json:"kind"`
	Tree      interface{} `json:"tree"`
	Streaming bool        `json:"streaming"`
	Err       string      `json:"error,omitempty"`
}

// SessionConfig wires a session's collaborators. Only zero values are
// required: a missing store, executor or validator is created internally.
type SessionConfig struct {
	Store     StateStore
	Handlers  Handlers
	Computed  *ComputedRegistry
	Registry  *ComponentRegistry
	Confirmer Confirmer
	Auth      interface{}
	Logger    *log.Logger

	// InitialState seeds the store when none is injected.
	InitialState map[string]interface{}
}

// Session is one generation/rendering session: it owns the live state
// store, the current spec (swapped wholesale per applied payload), the
// executor, the validator and the renderer, and re-renders on every spec
// or state change.
//
// A single goroutine drains the update pump; UI events and stream
// payloads may arrive from any goroutine.
type Session struct {
	ID string

	store     StateStore
	executor  *Executor
	validator *Validator
	renderer  *Renderer
	logger    *log.Logger

	mu        sync.RWMutex
	spec      *Spec
	streaming bool

	updates     chan Update
	unsubscribe func()
	closeOnce   sync.Once
}

// NewSession creates a session and subscribes it to its store, so state
// mutations from action handlers immediately produce a render pass.
func NewSession(cfg SessionConfig) *Session {
	store := cfg.Store
	if store == nil {
		store = NewMemoryStore(cfg.InitialState)
	}

	execOpts := []ExecutorOption{WithHandlers(cfg.Handlers)}
	if cfg.Confirmer != nil {
		execOpts = append(execOpts, WithConfirmer(cfg.Confirmer))
	}
	if cfg.Logger != nil {
		execOpts = append(execOpts, WithActionLogger(cfg.Logger))
	}
	executor := NewExecutor(store, execOpts...)
	validator := NewValidator(store)

	s := &Session{
		ID:        uuid.NewString(),
		store:     store,
		executor:  executor,
		validator: validator,
		logger:    cfg.Logger,
		spec:      NewSpec(),
		updates:   make(chan Update, 64),
	}
	s.renderer = NewRenderer(RendererConfig{
		State:     store,
		Executor:  executor,
		Computed:  cfg.Computed,
		Validator: validator,
		Registry:  cfg.Registry,
		Auth:      cfg.Auth,
		Logger:    cfg.Logger,
	})
	s.unsubscribe = store.Subscribe(func([]StateChange) {
		s.push(UpdateState)
	})
	return s
}

// Store returns the session's live state store.
func (s *Session) Store() StateStore { return s.store }

// Validator returns the session's validation engine.
func (s *Session) Validator() *Validator { return s.validator }

// Spec returns the current spec. The returned value is immutable:
// every applied payload swaps in a fresh copy.
func (s *Session) Spec() *Spec {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.spec
}

// Streaming reports whether a patch stream is still feeding the spec.
// While true, missing-element diagnostics stay silent.
func (s *Session) Streaming() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.streaming
}

// Updates is the session's render output channel. Every applied payload
// and every state mutation pushes one Update; slow consumers drop
// intermediate frames rather than blocking the mutating goroutine.
func (s *Session) Updates() <-chan Update { return s.updates }

// BeginStream resets the session to an empty spec for a new generation.
// The previously accumulated spec is discarded wholesale.
func (s *Session) BeginStream() {
	s.mu.Lock()
	s.spec = NewSpec()
	s.streaming = true
	s.mu.Unlock()
	s.push(UpdateSpec)
}

// EndStream marks the stream complete. Structural gaps in the spec are
// diagnostics from here on, not expected transients.
func (s *Session) EndStream() {
	s.mu.Lock()
	s.streaming = false
	s.mu.Unlock()
	s.push(UpdateSpec)
}

// Apply folds one stream payload (incremental patch, flat spec, or
// nested tree) into the session's spec. The bool reports whether the
// spec changed; unchanged payloads do not trigger a render pass.
func (s *Session) Apply(payload map[string]interface{}) bool {
	s.mu.Lock()
	next, changed := ApplyUpdate(s.spec, payload)
	if changed {
		s.spec = next
	}
	s.mu.Unlock()
	if changed {
		s.seedState(next.State)
		s.push(UpdateSpec)
	}
	return changed
}

// seedState folds a spec's initial-state block into the store. Only keys
// the store has never seen are written: live mutations from earlier
// actions survive a superseding spec payload.
func (s *Session) seedState(seed map[string]interface{}) {
	if len(seed) == 0 {
		return
	}
	var changes []StateChange
	for key, value := range seed {
		if _, ok := s.store.Get("/" + key); !ok {
			changes = append(changes, StateChange{Path: "/" + key, Value: value})
		}
	}
	s.store.Update(changes)
}

// ApplyPatch folds one typed patch into the spec.
func (s *Session) ApplyPatch(patch Patch) bool {
	s.mu.Lock()
	next, changed := ApplyPatch(s.spec, patch)
	if changed {
		s.spec = next
	}
	s.mu.Unlock()
	if changed {
		s.push(UpdateSpec)
	}
	return changed
}

// Render walks the current spec against the live state and returns the
// rendered output.
func (s *Session) Render() (interface{}, error) {
	s.mu.RLock()
	spec, streaming := s.spec, s.streaming
	s.mu.RUnlock()
	return s.renderer.Render(spec, streaming)
}

// HandleEvent dispatches a UI event against an element of the current
// spec: the element's On binding for the event resolves and executes with
// the chaining semantics of the executor. Events against unknown elements
// or unbound events are a no-op.
func (s *Session) HandleEvent(ctx context.Context, elementKey, event string, payload map[string]interface{}) error {
	s.mu.RLock()
	spec := s.spec
	s.mu.RUnlock()

	// Rendered node keys carry a "#itemKey" suffix inside repeats; the
	// element itself is addressed by the part before it.
	var itemSuffix string
	if i := strings.IndexByte(elementKey, '#'); i >= 0 {
		elementKey, itemSuffix = elementKey[:i], elementKey[i+1:]
	}
	el, ok := spec.Elements[elementKey]
	if !ok {
		s.logf("event %q for unknown element %q", event, elementKey)
		return nil
	}
	raw, ok := el.On[event]
	if !ok {
		return nil
	}
	bindings, err := decodeBindings(raw)
	if err != nil {
		return err
	}
	evalCtx := &EvalContext{Computed: s.renderer.computed, Auth: s.renderer.auth}
	if itemSuffix != "" {
		evalCtx.Scope = s.repeatScope(spec, elementKey, itemSuffix)
	}
	return s.executor.Execute(ctx, bindings, evalCtx, payload)
}

// repeatScope rebuilds the render-time scope for an event addressed to a
// repeated node. The "#itemKey" suffix of the rendered key identifies one
// item of the nearest repeat ancestor's array; the matching item and index
// are threaded back so {$item} and {$index} params resolve exactly as they
// did during the render pass that produced the node.
func (s *Session) repeatScope(spec *Spec, elementKey, suffix string) *Scope {
	rep := nearestRepeat(spec, elementKey)
	if rep == nil {
		return nil
	}
	raw, _ := s.store.Get(rep.StatePath)
	items, ok := raw.([]interface{})
	if !ok {
		return nil
	}
	// Nested repeats compound keys with dots; the last segment addresses
	// this array.
	seg := suffix
	if i := strings.LastIndexByte(seg, '.'); i >= 0 {
		seg = seg[i+1:]
	}
	for i, item := range items {
		if itemKey(rep, item, i, nil) == seg {
			return &Scope{
				Item:     item,
				Index:    i,
				BasePath: rep.StatePath + "/" + strconv.Itoa(i),
				itemKey:  suffix,
			}
		}
	}
	s.logf("no item %q under repeat path %q", seg, rep.StatePath)
	return nil
}

// nearestRepeat returns the Repeat of the closest ancestor of key that
// declares one. Elements inside that subtree rendered under its scope.
func nearestRepeat(spec *Spec, key string) *Repeat {
	parents := make(map[string]string, len(spec.Elements))
	for parentKey, el := range spec.Elements {
		for _, child := range el.Children {
			parents[child] = parentKey
		}
	}
	for i := 0; i < len(spec.Elements); i++ {
		parentKey, ok := parents[key]
		if !ok {
			return nil
		}
		if parent := spec.Elements[parentKey]; parent != nil && parent.Repeat != nil {
			return parent.Repeat
		}
		key = parentKey
	}
	return nil
}

// push renders and enqueues one update, dropping the frame when the
// consumer lags. A dropped frame is safe: the next mutation re-renders
// from the same live state.
func (s *Session) push(kind UpdateKind) {
	tree, err := s.Render()
	update := Update{Kind: kind, Tree: tree, Streaming: s.Streaming()}
	if err != nil {
		update.Err = err.Error()
		s.logf("render: %v", err)
	}
	select {
	case s.updates <- update:
	default:
	}
}

// Close detaches the session from its store and closes the update
// channel. Closing twice is a no-op.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		if s.unsubscribe != nil {
			s.unsubscribe()
		}
		close(s.updates)
	})
}

func (s *Session) logf(format string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Printf(format, args...)
		return
	}
	log.Printf(format, args...)
}

// SessionStore keeps per-HTTP-session state between requests, for mounts
// serving plain HTTP alongside WebSocket clients.
type SessionStore interface {
	Get(sessionID string) interface{}
	Set(sessionID string, state interface{})
	Delete(sessionID string)
}

// MemorySessionStore is a simple in-memory SessionStore.
type MemorySessionStore struct {
	sessions map[string]interface{}
	mu       sync.RWMutex
}

// NewMemorySessionStore creates an empty in-memory session store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]interface{})}
}

// Get retrieves a session's state.
func (s *MemorySessionStore) Get(sessionID string) interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessions[sessionID]
}

// Set stores a session's state.
func (s *MemorySessionStore) Set(sessionID string, state interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sessionID] = state
}

// Delete removes a session.
func (s *MemorySessionStore) Delete(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
}
