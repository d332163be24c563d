package livespec

import (
	"encoding/json"
	"strings"
)

// Patch is one incremental mutation instruction against a Spec, streamed
// as newline-delimited JSON. "set" arrives from some generators as a
// synonym for "replace".
type Patch struct {
	Op    string      `json:"op"`
	Path  string      `json:"path"`
	Value interface{} `json:"value,omitempty"`
}

const (
	OpAdd     = "add"
	OpReplace = "replace"
	OpRemove  = "remove"
	OpSet     = "set"
)

// ApplyPatch folds one patch into the spec and returns the next spec.
// The input spec is never mutated: untouched elements are shared between
// versions, so applying the same ordered sequence from empty always
// produces the same result. Unknown ops and path shapes are ignored, and
// any prefix of a stream leaves the spec in a tolerable partial state
// (root or children may reference elements that have not arrived yet).
// The bool reports whether the operation changed the spec.
func ApplyPatch(spec *Spec, patch Patch) (*Spec, bool) {
	if spec == nil {
		spec = NewSpec()
	}
	switch patch.Op {
	case OpAdd, OpReplace, OpSet, OpRemove:
	default:
		return spec, false
	}

	segs := splitPath(patch.Path)
	if len(segs) == 0 {
		return spec, false
	}

	switch segs[0] {
	case "root":
		if len(segs) != 1 {
			return spec, false
		}
		if patch.Op == OpRemove {
			if spec.Root == "" {
				return spec, false
			}
			next := spec.clone()
			next.Root = ""
			return next, true
		}
		root, ok := patch.Value.(string)
		if !ok {
			return spec, false
		}
		next := spec.clone()
		next.Root = root
		return next, true
	case "elements":
		return applyElementPatch(spec, segs[1:], patch.Value, patch.Op)
	default:
		return spec, false
	}
}

func applyElementPatch(spec *Spec, segs []string, value interface{}, op string) (*Spec, bool) {
	if len(segs) == 0 {
		// Whole-map operations show up at stream boundaries.
		if op == OpRemove {
			if len(spec.Elements) == 0 {
				return spec, false
			}
			next := spec.clone()
			next.Elements = make(map[string]*Element)
			return next, true
		}
		raw, ok := value.(map[string]interface{})
		if !ok {
			return spec, false
		}
		elements := make(map[string]*Element, len(raw))
		for k, v := range raw {
			el, err := decodeElement(v)
			if err != nil {
				return spec, false
			}
			elements[k] = el
		}
		next := spec.clone()
		next.Elements = elements
		return next, true
	}

	key := segs[0]
	if len(segs) == 1 {
		if op == OpRemove {
			if _, ok := spec.Elements[key]; !ok {
				return spec, false
			}
			next := spec.clone()
			delete(next.Elements, key)
			return next, true
		}
		el, err := decodeElement(value)
		if err != nil {
			return spec, false
		}
		next := spec.clone()
		next.Elements[key] = el
		return next, true
	}

	// Sub-property patch. The element may not have arrived yet; a write
	// creates it so out-of-order streams still converge.
	cur, exists := spec.Elements[key]
	if !exists {
		if op == OpRemove {
			return spec, false
		}
		cur = &Element{}
	}
	el, changed := applyElementField(cur, segs[1:], value, op)
	if !changed {
		return spec, false
	}
	next := spec.clone()
	next.Elements[key] = el
	return next, true
}

func applyElementField(cur *Element, segs []string, value interface{}, op string) (*Element, bool) {
	el := cur.clone()
	field, rest := segs[0], segs[1:]
	remove := op == OpRemove

	switch field {
	case "type":
		if len(rest) != 0 {
			return cur, false
		}
		if remove {
			el.Type = ""
			return el, true
		}
		t, ok := value.(string)
		if !ok {
			return cur, false
		}
		el.Type = t
		return el, true
	case "props":
		next, ok := applyMapField(el.Props, rest, value, remove)
		if !ok {
			return cur, false
		}
		el.Props = next
		return el, true
	case "on":
		next, ok := applyMapField(el.On, rest, value, remove)
		if !ok {
			return cur, false
		}
		el.On = next
		return el, true
	case "children":
		next, ok := applyChildrenField(el.Children, rest, value, op)
		if !ok {
			return cur, false
		}
		el.Children = next
		return el, true
	case "visible":
		if len(rest) != 0 {
			return cur, false
		}
		if remove {
			el.Visible = nil
			return el, true
		}
		el.Visible = value
		return el, true
	case "repeat":
		if len(rest) != 0 {
			return cur, false
		}
		if remove {
			el.Repeat = nil
			return el, true
		}
		rep, err := decodeAs[Repeat](value)
		if err != nil {
			return cur, false
		}
		el.Repeat = rep
		return el, true
	case "validation":
		if len(rest) != 0 {
			return cur, false
		}
		if remove {
			el.Validation = nil
			return el, true
		}
		vc, err := decodeAs[ValidationConfig](value)
		if err != nil {
			return cur, false
		}
		el.Validation = vc
		return el, true
	default:
		return cur, false
	}
}

// applyMapField deep-sets or removes inside props/on. An empty rest path
// replaces the whole map.
func applyMapField(m map[string]interface{}, rest []string, value interface{}, remove bool) (map[string]interface{}, bool) {
	if len(rest) == 0 {
		if remove || value == nil {
			return nil, true
		}
		raw, ok := value.(map[string]interface{})
		if !ok {
			return nil, false
		}
		return raw, true
	}
	if m == nil {
		m = map[string]interface{}{}
	}
	if remove {
		next, removed := removeIn(m, rest)
		if !removed {
			return nil, false
		}
		nm, _ := next.(map[string]interface{})
		return nm, true
	}
	next := setIn(m, rest, value)
	nm, ok := next.(map[string]interface{})
	if !ok {
		return nil, false
	}
	return nm, true
}

// applyChildrenField edits the ordered child key list. "add" at an index
// inserts; index len(children) or "-" appends; "replace" overwrites in
// range; "remove" splices.
func applyChildrenField(children []string, rest []string, value interface{}, op string) ([]string, bool) {
	if len(rest) == 0 {
		if op == OpRemove {
			return nil, true
		}
		return toStringSlice(value)
	}
	if len(rest) != 1 {
		return nil, false
	}
	seg := rest[0]

	if op == OpRemove {
		i, ok := toIndex(seg)
		if !ok || i >= len(children) {
			return nil, false
		}
		next := make([]string, 0, len(children)-1)
		next = append(next, children[:i]...)
		next = append(next, children[i+1:]...)
		return next, true
	}

	key, ok := value.(string)
	if !ok {
		return nil, false
	}
	if seg == "-" {
		return append(append([]string(nil), children...), key), true
	}
	i, ok := toIndex(seg)
	if !ok || i > len(children) {
		return nil, false
	}
	if i == len(children) {
		return append(append([]string(nil), children...), key), true
	}
	if op == OpReplace || op == OpSet {
		next := append([]string(nil), children...)
		next[i] = key
		return next, true
	}
	next := make([]string, 0, len(children)+1)
	next = append(next, children[:i]...)
	next = append(next, key)
	next = append(next, children[i:]...)
	return next, true
}

func toStringSlice(value interface{}) ([]string, bool) {
	switch v := value.(type) {
	case []string:
		return append([]string(nil), v...), true
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	case nil:
		return []string{}, true
	default:
		return nil, false
	}
}

// decodeAs round-trips a raw JSON value into a concrete wire type.
func decodeAs[T any](value interface{}) (*T, error) {
	b, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	var out T
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ApplyUpdate folds one stream payload into the spec. Three shapes are
// accepted: an incremental patch ({op,path,value}), a flat spec
// ({root,elements}), and a nested inline tree ({type,children:[...]}).
// Flat and nested payloads fully supersede the accumulated spec rather
// than merging into it. Unrecognized payloads are ignored.
func ApplyUpdate(spec *Spec, payload map[string]interface{}) (*Spec, bool) {
	if spec == nil {
		spec = NewSpec()
	}
	if payload == nil {
		return spec, false
	}

	if _, hasOp := payload["op"]; hasOp {
		if path, ok := payload["path"].(string); ok {
			op, _ := payload["op"].(string)
			return ApplyPatch(spec, Patch{Op: op, Path: path, Value: payload["value"]})
		}
		return spec, false
	}

	if _, hasElements := payload["elements"]; hasElements {
		next, err := decodeAs[Spec](payload)
		if err != nil || next.Elements == nil {
			return spec, false
		}
		return next, true
	}

	if _, hasType := payload["type"]; hasType {
		return Flatten(payload), true
	}

	return spec, false
}

// DecodePatchLine parses one line of the newline-delimited patch stream.
// Blank lines and // comment lines decode to (nil, nil) and are skipped;
// malformed JSON returns the parse error so callers can count it, but the
// stream itself treats it as skippable.
func DecodePatchLine(line string) (map[string]interface{}, error) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || strings.HasPrefix(trimmed, "//") {
		return nil, nil
	}
	var payload map[string]interface{}
	if err := json.Unmarshal([]byte(trimmed), &payload); err != nil {
		return nil, err
	}
	return payload, nil
}
