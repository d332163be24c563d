package livespec

import (
	"encoding/json"
	"fmt"
)

// Spec is the JSON-serializable UI description: a root key plus a flat map
// of elements. Root must name a key in Elements for the spec to be
// renderable; while a spec is still streaming in, that invariant may be
// transiently violated and consumers tolerate it.
type Spec struct {
	Root     string                 `json:"root"`
	Elements map[string]*Element    `json:"elements"`
	State    map[string]interface{} `json:"state,omitempty"`
}

// Element is one node in the spec. Children hold keys into the same flat
// element map, never inline nodes: a patch can append a child key before
// the referenced element itself arrives.
type Element struct {
	Type       string                 `json:"type"`
	Props      map[string]interface{} `json:"props,omitempty"`
	Children   []string               `json:"children,omitempty"`
	Visible    interface{}            `json:"visible,omitempty"`
	On         map[string]interface{} `json:"on,omitempty"`
	Repeat     *Repeat                `json:"repeat,omitempty"`
	Validation *ValidationConfig      `json:"validation,omitempty"`
}

// Repeat renders an element's children once per item of the state array at
// StatePath. Key names the item field used as a stable child key; without
// it the index is used.
type Repeat struct {
	StatePath string `json:"statePath"`
	Key       string `json:"key,omitempty"`
}

// NewSpec returns the empty spec a stream starts from.
func NewSpec() *Spec {
	return &Spec{Elements: make(map[string]*Element)}
}

// Renderable reports whether the root element exists yet.
func (s *Spec) Renderable() bool {
	if s == nil || s.Root == "" {
		return false
	}
	_, ok := s.Elements[s.Root]
	return ok
}

// clone returns a shallow copy sharing all element pointers. Patch
// application copies the map, then replaces only the touched entries.
func (s *Spec) clone() *Spec {
	next := &Spec{Root: s.Root, State: s.State}
	next.Elements = make(map[string]*Element, len(s.Elements))
	for k, v := range s.Elements {
		next.Elements[k] = v
	}
	return next
}

// clone returns a copy of the element with its own props, children and on
// maps, so sub-property patches never mutate an element shared with an
// earlier spec version.
func (e *Element) clone() *Element {
	next := &Element{Type: e.Type, Visible: e.Visible, Repeat: e.Repeat, Validation: e.Validation}
	if e.Props != nil {
		next.Props = make(map[string]interface{}, len(e.Props))
		for k, v := range e.Props {
			next.Props[k] = v
		}
	}
	if e.Children != nil {
		next.Children = append([]string(nil), e.Children...)
	}
	if e.On != nil {
		next.On = make(map[string]interface{}, len(e.On))
		for k, v := range e.On {
			next.On[k] = v
		}
	}
	return next
}

// decodeElement converts a raw patch value into an Element via a JSON
// round trip, accepting anything JSON-shaped.
func decodeElement(value interface{}) (*Element, error) {
	if el, ok := value.(*Element); ok {
		return el, nil
	}
	b, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode element: %w", err)
	}
	var el Element
	if err := json.Unmarshal(b, &el); err != nil {
		return nil, fmt.Errorf("decode element: %w", err)
	}
	return &el, nil
}

// FlatElement is one row of the flat authoring form: an element plus a
// parent pointer instead of children arrays.
type FlatElement struct {
	Key       string                 `json:"key"`
	ParentKey string                 `json:"parentKey,omitempty"`
	Type      string                 `json:"type"`
	Props     map[string]interface{} `json:"props,omitempty"`
	Visible   interface{}            `json:"visible,omitempty"`
	On        map[string]interface{} `json:"on,omitempty"`
	Repeat    *Repeat                `json:"repeat,omitempty"`
}

// FromFlat builds a Spec from parent-pointer rows. The first row without a
// parent becomes the root; children arrays follow input order within each
// parent. Empty input yields the empty spec.
func FromFlat(rows []FlatElement) *Spec {
	spec := NewSpec()
	for _, row := range rows {
		if row.Key == "" {
			continue
		}
		spec.Elements[row.Key] = &Element{
			Type:    row.Type,
			Props:   row.Props,
			Visible: row.Visible,
			On:      row.On,
			Repeat:  row.Repeat,
		}
		if row.ParentKey == "" && spec.Root == "" {
			spec.Root = row.Key
		}
	}
	for _, row := range rows {
		if row.Key == "" || row.ParentKey == "" {
			continue
		}
		parent, ok := spec.Elements[row.ParentKey]
		if !ok {
			continue
		}
		parent.Children = append(parent.Children, row.Key)
	}
	return spec
}

// Flatten converts an inline node tree (elements nested under "children")
// into a flat Spec, assigning synthetic keys el-1, el-2, ... in walk order
// so the same tree always flattens to the same spec. String entries in a
// children array pass through as key references.
func Flatten(node map[string]interface{}) *Spec {
	spec := NewSpec()
	if len(node) == 0 {
		return spec
	}
	counter := 0
	spec.Root = flattenNode(node, spec, &counter)
	return spec
}

func flattenNode(node map[string]interface{}, spec *Spec, counter *int) string {
	*counter++
	key := fmt.Sprintf("el-%d", *counter)

	el := &Element{}
	if t, ok := node["type"].(string); ok {
		el.Type = t
	}
	if props, ok := node["props"].(map[string]interface{}); ok {
		el.Props = props
	}
	el.Visible = node["visible"]
	if on, ok := node["on"].(map[string]interface{}); ok {
		el.On = on
	}
	if rep, ok := node["repeat"].(map[string]interface{}); ok {
		r := &Repeat{}
		r.StatePath, _ = rep["statePath"].(string)
		r.Key, _ = rep["key"].(string)
		el.Repeat = r
	}
	spec.Elements[key] = el

	children, _ := node["children"].([]interface{})
	for _, child := range children {
		switch c := child.(type) {
		case string:
			el.Children = append(el.Children, c)
		case map[string]interface{}:
			el.Children = append(el.Children, flattenNode(c, spec, counter))
		}
	}
	return key
}
