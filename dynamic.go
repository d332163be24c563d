package livespec

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"sync/atomic"
	"time"
)

// EvalContext is the resolution context threaded explicitly through every
// resolver, visibility, and action call. There is no ambient scope: repeat
// iteration state rides in Scope, nothing else.
type EvalContext struct {
	State    StateReader
	Scope    *Scope
	Computed *ComputedRegistry
	Auth     interface{}
}

// Scope is the repeat-iteration context: the current item, its index, and
// the absolute state path of the item ("/todos/2").
type Scope struct {
	Item     interface{}
	Index    int
	BasePath string

	// itemKey is the stable render key for this iteration, compounded
	// across nested repeats by the tree walker.
	itemKey string
}

type dynKind int

const (
	dynState dynKind = iota
	dynItem
	dynIndex
	dynID
	dynBindState
	dynBindItem
	dynCond
	dynComputed
	dynTemplate
)

// DynamicValue is one classified prop expression. Raw JSON objects are
// parsed into this union exactly once per walk; all expression semantics
// live in a single resolve switch instead of scattered shape checks.
type DynamicValue struct {
	kind      dynKind
	path      string                 // dynState, dynBindState
	field     string                 // dynItem, dynBindItem ("" selects the whole item)
	wholeItem bool                   // dynItem with a non-string selector
	cond      interface{}            // dynCond: raw condition
	then      interface{}            // dynCond: raw branch
	els       interface{}            // dynCond: raw branch
	name      string                 // dynComputed
	args      map[string]interface{} // dynComputed: raw args
	text      string                 // dynTemplate
}

// Expression keys in precedence order. When a malformed object carries
// several expression keys at once, the first present key wins; the order is
// fixed so resolution stays deterministic across runs.
var dynKeys = []string{"$state", "$item", "$index", "$id", "$bindState", "$bindItem", "$cond", "$computed", "$template"}

// parseDynamic classifies a raw JSON object as an expression. Objects
// carrying none of the expression keys report ok=false and are treated as
// plain data.
func parseDynamic(m map[string]interface{}) (DynamicValue, bool) {
	for _, key := range dynKeys {
		raw, present := m[key]
		if !present {
			continue
		}
		switch key {
		case "$state":
			path, _ := raw.(string)
			return DynamicValue{kind: dynState, path: path}, true
		case "$item":
			if field, ok := raw.(string); ok && field != "" {
				return DynamicValue{kind: dynItem, field: field}, true
			}
			return DynamicValue{kind: dynItem, wholeItem: true}, true
		case "$index":
			return DynamicValue{kind: dynIndex}, true
		case "$id":
			return DynamicValue{kind: dynID}, true
		case "$bindState":
			path, _ := raw.(string)
			return DynamicValue{kind: dynBindState, path: path}, true
		case "$bindItem":
			field, _ := raw.(string)
			return DynamicValue{kind: dynBindItem, field: field}, true
		case "$cond":
			return DynamicValue{kind: dynCond, cond: raw, then: m["$then"], els: m["$else"]}, true
		case "$computed":
			name, _ := raw.(string)
			args, _ := m["args"].(map[string]interface{})
			return DynamicValue{kind: dynComputed, name: name, args: args}, true
		case "$template":
			text, _ := raw.(string)
			return DynamicValue{kind: dynTemplate, text: text}, true
		}
	}
	return DynamicValue{}, false
}

var idCounter uint64

// nextID returns a process-unique identifier, fresh on every call.
// Timestamp plus counter keeps ids monotonically distinguishable; this is
// the one deliberately non-deterministic expression.
func nextID() string {
	n := atomic.AddUint64(&idCounter, 1)
	return fmt.Sprintf("%d-%d", time.Now().UnixMilli(), n)
}

// bindingPath returns the absolute state path a bind expression writes back
// to. $bindItem joins the repeat base path with the field; outside a repeat
// scope it has no target.
func (d DynamicValue) bindingPath(ctx *EvalContext) (string, bool) {
	switch d.kind {
	case dynBindState:
		return d.path, d.path != ""
	case dynBindItem:
		if ctx.Scope == nil || ctx.Scope.BasePath == "" {
			return "", false
		}
		if d.field == "" {
			return ctx.Scope.BasePath, true
		}
		return ctx.Scope.BasePath + "/" + d.field, true
	}
	return "", false
}

// resolve evaluates one classified expression against ctx.
func (d DynamicValue) resolve(ctx *EvalContext) (interface{}, error) {
	switch d.kind {
	case dynState:
		v, _ := ctx.State.Get(d.path)
		return v, nil
	case dynItem:
		if ctx.Scope == nil {
			return nil, nil
		}
		if d.wholeItem || d.field == "" {
			return ctx.Scope.Item, nil
		}
		v, _ := getIn(ctx.Scope.Item, splitPath("/"+d.field))
		return v, nil
	case dynIndex:
		if ctx.Scope == nil {
			return nil, nil
		}
		return ctx.Scope.Index, nil
	case dynID:
		return nextID(), nil
	case dynBindState, dynBindItem:
		path, ok := d.bindingPath(ctx)
		if !ok {
			return nil, nil
		}
		v, _ := ctx.State.Get(path)
		return v, nil
	case dynCond:
		branch := d.els
		if EvaluateVisibility(d.cond, ctx) {
			branch = d.then
		}
		v, _, err := resolveValue(branch, ctx)
		return v, err
	case dynComputed:
		if ctx.Computed == nil {
			return nil, ErrComputedNotFound{Name: d.name}
		}
		args, _, err := resolveValue(d.args, ctx)
		if err != nil {
			return nil, err
		}
		argMap, _ := args.(map[string]interface{})
		return ctx.Computed.Call(d.name, argMap, ctx)
	case dynTemplate:
		return interpolateTemplate(d.text, ctx), nil
	}
	return nil, nil
}

// ResolveValue substitutes every expression found in raw, recursing through
// maps and slices. Non-expression data passes through untouched.
func ResolveValue(raw interface{}, ctx *EvalContext) (interface{}, error) {
	v, _, err := resolveValue(raw, ctx)
	return v, err
}

// resolveValue reports whether the branch changed so parents copy only the
// branches that actually resolved something.
func resolveValue(raw interface{}, ctx *EvalContext) (interface{}, bool, error) {
	switch node := raw.(type) {
	case map[string]interface{}:
		if dyn, ok := parseDynamic(node); ok {
			v, err := dyn.resolve(ctx)
			return v, true, err
		}
		var out map[string]interface{}
		for k, v := range node {
			rv, changed, err := resolveValue(v, ctx)
			if err != nil {
				return nil, false, err
			}
			if changed && out == nil {
				out = make(map[string]interface{}, len(node))
				for k2, v2 := range node {
					out[k2] = v2
				}
			}
			if out != nil {
				out[k] = rv
			}
		}
		if out == nil {
			return node, false, nil
		}
		return out, true, nil
	case []interface{}:
		var out []interface{}
		for i, v := range node {
			rv, changed, err := resolveValue(v, ctx)
			if err != nil {
				return nil, false, err
			}
			if changed && out == nil {
				out = make([]interface{}, len(node))
				copy(out, node)
			}
			if out != nil {
				out[i] = rv
			}
		}
		if out == nil {
			return node, false, nil
		}
		return out, true, nil
	default:
		return raw, false, nil
	}
}

// ResolveProps resolves every prop expression and collects two-way
// bindings. Bindings are recorded for props whose top-level value is a
// $bindState/$bindItem expression; the prop itself receives the current
// value at the bound path, and the returned map carries prop name to
// absolute write-back path.
func ResolveProps(props map[string]interface{}, ctx *EvalContext) (map[string]interface{}, map[string]string, error) {
	if len(props) == 0 {
		return props, nil, nil
	}
	var bindings map[string]string
	for name, raw := range props {
		m, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		dyn, ok := parseDynamic(m)
		if !ok {
			continue
		}
		if path, ok := dyn.bindingPath(ctx); ok {
			if bindings == nil {
				bindings = make(map[string]string)
			}
			bindings[name] = path
		}
	}
	resolved, _, err := resolveValue(props, ctx)
	if err != nil {
		return nil, nil, err
	}
	out, _ := resolved.(map[string]interface{})
	return out, bindings, nil
}

var templateRef = regexp.MustCompile(`\$\{([^}]*)\}`)

// interpolateTemplate substitutes each ${/path} occurrence with the
// stringified state value. Missing paths produce an empty string.
func interpolateTemplate(text string, ctx *EvalContext) string {
	return templateRef.ReplaceAllStringFunc(text, func(ref string) string {
		path := ref[2 : len(ref)-1]
		v, ok := ctx.State.Get(path)
		if !ok {
			return ""
		}
		return stringifyValue(v)
	})
}

// stringifyValue renders a state value for template output. Numbers drop
// trailing zeros so 3.0 prints as "3"; containers fall back to JSON.
func stringifyValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case json.Number:
		return val.String()
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}
