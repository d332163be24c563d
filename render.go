package livespec

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
)

// Node is one resolved element: visibility applied, expressions
// substituted, two-way bindings collected. With a nil component registry
// the walk returns a tree of Nodes, which is the shape the live mount
// ships to clients; custom registries receive Nodes and produce their own
// output.
type Node struct {
	Key      string                 `json:"key"`
	Type     string                 `json:"type"`
	Props    map[string]interface{} `json:"props,omitempty"`
	Bindings map[string]string      `json:"bindings,omitempty"`
	Children []*Node                `json:"children,omitempty"`

	emit    EmitFunc
	loading func(action string) bool
}

// EmitFunc fires a named UI event against the element it was built from.
type EmitFunc func(ctx context.Context, event string, payload map[string]interface{}) error

// Emit dispatches the element's binding for event. Events with no binding,
// and nodes rendered without an executor, are a no-op.
func (n *Node) Emit(ctx context.Context, event string, payload map[string]interface{}) error {
	if n.emit == nil {
		return nil
	}
	return n.emit(ctx, event, payload)
}

// Loading reports whether the named action has a handler in flight, for
// busy/disabled rendering.
func (n *Node) Loading(action string) bool {
	if n.loading == nil {
		return false
	}
	return n.loading(action)
}

// RendererConfig wires the collaborators of a tree walk. Only State is
// required; everything else degrades gracefully when absent.
type RendererConfig struct {
	State     StateStore
	Executor  *Executor
	Computed  *ComputedRegistry
	Validator *Validator
	Registry  *ComponentRegistry
	Auth      interface{}
	Logger    *log.Logger
}

// Renderer walks a spec from its root, resolving each element against the
// live state and dispatching to component renderers. One Renderer serves
// many Render calls; the spec to render is passed per call because it is
// replaced wholesale by every applied patch.
type Renderer struct {
	state     StateStore
	executor  *Executor
	computed  *ComputedRegistry
	validator *Validator
	registry  *ComponentRegistry
	auth      interface{}
	logger    *log.Logger
}

// NewRenderer creates a renderer from cfg.
func NewRenderer(cfg RendererConfig) *Renderer {
	state := cfg.State
	if state == nil {
		state = NewMemoryStore(nil)
	}
	return &Renderer{
		state:     state,
		executor:  cfg.Executor,
		computed:  cfg.Computed,
		validator: cfg.Validator,
		registry:  cfg.Registry,
		auth:      cfg.Auth,
		logger:    cfg.Logger,
	}
}

// snapshotReader pins one render pass to a single state view, so a
// concurrent mutation cannot tear a pass halfway through.
type snapshotReader struct {
	root map[string]interface{}
}

func (s snapshotReader) Get(path string) (interface{}, bool) {
	segs := splitPath(path)
	if segs == nil {
		return s.root, true
	}
	return getIn(s.root, segs)
}

func (s snapshotReader) Snapshot() map[string]interface{} {
	return s.root
}

// Render walks spec from the root and returns the rendered output:
// a *Node tree with a nil registry, otherwise whatever the root's
// component renderer produced. The loading flag marks the spec as still
// streaming, which silences missing-element diagnostics.
//
// Per-element faults are isolated: a failing element logs and renders
// nothing while its siblings and ancestors proceed. The exception is an
// unknown $computed function, which aborts the pass with the error:
// that is a registry/catalog mismatch a developer has to fix.
func (r *Renderer) Render(spec *Spec, loading bool) (interface{}, error) {
	pass := &renderPass{
		r:       r,
		spec:    spec,
		state:   snapshotReader{root: r.state.Snapshot()},
		loading: loading,
	}
	if spec == nil || spec.Root == "" {
		if spec != nil && !loading {
			pass.logf("spec has no root element")
		}
		return nil, nil
	}
	out, _ := pass.element(spec.Root, nil)
	if pass.err != nil {
		return nil, pass.err
	}
	return out, nil
}

type renderPass struct {
	r       *Renderer
	spec    *Spec
	state   snapshotReader
	loading bool
	err     error // hard error, aborts the pass
}

func (p *renderPass) logf(format string, args ...interface{}) {
	if p.r.logger != nil {
		p.r.logger.Printf(format, args...)
		return
	}
	log.Printf(format, args...)
}

// element renders one element key. The bool reports whether it produced
// output; skipped and faulted elements report false.
func (p *renderPass) element(key string, scope *Scope) (interface{}, bool) {
	el, exists := p.spec.Elements[key]
	if !exists {
		// Expected mid-stream: a parent's children array can reference
		// a key whose element has not arrived yet.
		if !p.loading {
			p.logf("element %q referenced but not defined", key)
		}
		return nil, false
	}

	ctx := &EvalContext{State: p.state, Scope: scope, Computed: p.r.computed, Auth: p.r.auth}
	if !EvaluateVisibility(el.Visible, ctx) {
		return nil, false
	}

	props, bindings, err := ResolveProps(el.Props, ctx)
	if err != nil {
		return p.fault(key, el.Type, err)
	}

	if p.r.validator != nil && el.Validation != nil {
		for _, path := range bindings {
			p.r.validator.RegisterField(path, el.Validation)
		}
	}

	node := &Node{
		Key:      nodeKey(key, scope),
		Type:     el.Type,
		Props:    props,
		Bindings: bindings,
		emit:     p.emitFunc(el, scope),
	}
	if p.r.executor != nil {
		node.loading = p.r.executor.Loading
	}

	var children []interface{}
	if el.Repeat != nil {
		children = p.repeatChildren(el, scope)
	} else {
		for _, childKey := range el.Children {
			out, ok := p.element(childKey, scope)
			if p.err != nil {
				return nil, false
			}
			if ok {
				children = append(children, out)
			}
		}
	}
	if p.err != nil {
		return nil, false
	}

	return p.dispatch(node, children)
}

// repeatChildren renders the element's declared children once per item of
// the state array, each rendering under a fresh scope.
func (p *renderPass) repeatChildren(el *Element, outer *Scope) []interface{} {
	raw, _ := p.state.Get(el.Repeat.StatePath)
	if raw == nil {
		return nil
	}
	items, ok := raw.([]interface{})
	if !ok {
		p.logf("repeat path %q is not an array", el.Repeat.StatePath)
		return nil
	}

	var children []interface{}
	for i, item := range items {
		scope := &Scope{
			Item:     item,
			Index:    i,
			BasePath: el.Repeat.StatePath + "/" + strconv.Itoa(i),
			itemKey:  itemKey(el.Repeat, item, i, outer),
		}
		for _, childKey := range el.Children {
			out, ok := p.element(childKey, scope)
			if p.err != nil {
				return nil
			}
			if ok {
				children = append(children, out)
			}
		}
	}
	return children
}

// itemKey derives the stable per-item key: the Repeat.Key field value of
// the item when declared and present, else the index. Nested repeats
// compound the outer key so every rendered node stays unique.
func itemKey(rep *Repeat, item interface{}, index int, outer *Scope) string {
	key := strconv.Itoa(index)
	if rep.Key != "" {
		if m, ok := item.(map[string]interface{}); ok {
			if v, ok := m[rep.Key]; ok {
				key = stringifyValue(v)
			}
		}
	}
	if outer != nil && outer.itemKey != "" {
		return outer.itemKey + "." + key
	}
	return key
}

// nodeKey uniquifies element keys across repeat iterations.
func nodeKey(key string, scope *Scope) string {
	if scope == nil || scope.itemKey == "" {
		return key
	}
	return key + "#" + scope.itemKey
}

// emitFunc builds the element's event hook. Params resolve at execution
// time against live state; the repeat scope is captured as rendered.
func (p *renderPass) emitFunc(el *Element, scope *Scope) EmitFunc {
	if p.r.executor == nil || len(el.On) == 0 {
		return nil
	}
	on := el.On
	executor := p.r.executor
	computed := p.r.computed
	auth := p.r.auth
	return func(ctx context.Context, event string, payload map[string]interface{}) error {
		raw, exists := on[event]
		if !exists {
			return nil
		}
		bindings, err := decodeBindings(raw)
		if err != nil {
			return fmt.Errorf("event %q: %w", event, err)
		}
		evalCtx := &EvalContext{Scope: scope, Computed: computed, Auth: auth}
		return executor.Execute(ctx, bindings, evalCtx, payload)
	}
}

// dispatch hands the resolved node to its component renderer. A renderer
// panic or error is a per-element fault: logged, rendered as nothing,
// siblings unaffected.
func (p *renderPass) dispatch(node *Node, children []interface{}) (out interface{}, ok bool) {
	if p.r.registry == nil {
		node.Children = toNodes(children)
		return node, true
	}
	renderer, found := p.r.registry.Renderer(node.Type)
	if !found {
		p.logf("no renderer registered for component type %q, skipping %s", node.Type, node.Key)
		return nil, false
	}
	defer func() {
		if rec := recover(); rec != nil {
			p.logf("render fault in element %s (%s): %v", node.Key, node.Type, rec)
			out, ok = nil, false
		}
	}()
	result, err := renderer(node, children)
	if err != nil {
		return p.fault(node.Key, node.Type, err)
	}
	return result, true
}

// fault classifies an element error: unknown $computed functions abort the
// pass, everything else is isolated to the element.
func (p *renderPass) fault(key, componentType string, err error) (interface{}, bool) {
	var notFound ErrComputedNotFound
	if errors.As(err, &notFound) {
		p.err = err
		return nil, false
	}
	p.logf("render fault in element %s (%s): %v", key, componentType, err)
	return nil, false
}

func toNodes(children []interface{}) []*Node {
	if len(children) == 0 {
		return nil
	}
	nodes := make([]*Node, 0, len(children))
	for _, child := range children {
		if node, ok := child.(*Node); ok {
			nodes = append(nodes, node)
		}
	}
	return nodes
}
