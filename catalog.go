package livespec

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

// ComponentSpec describes one component type a catalog offers: its name as
// referenced from element specs, an optional HTML tag mapping for the
// reference renderer, and a JSON Schema for its props.
type ComponentSpec struct {
	Name        string                 `yaml:"name"`
	Description string                 `yaml:"description,omitempty"`
	Tag         string                 `yaml:"tag,omitempty"`
	Void        bool                   `yaml:"void,omitempty"`
	Events      []string               `yaml:"events,omitempty"`
	Props       map[string]interface{} `yaml:"props,omitempty"`

	schema *jsonschema.Schema
}

// ComputedSpec declares a named $computed function as a CEL expression.
// The expression sees `args` and `state` variables.
type ComputedSpec struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
	Expression  string `yaml:"expression"`
}

// Catalog is a YAML manifest declaring the component vocabulary a spec may
// use, plus catalog-defined computed functions.
type Catalog struct {
	Name        string          `yaml:"name"`
	Version     string          `yaml:"version"`
	Description string          `yaml:"description,omitempty"`
	Components  []ComponentSpec `yaml:"components"`
	Computed    []ComputedSpec  `yaml:"computed,omitempty"`

	byName map[string]*ComponentSpec
}

// LoadCatalog reads and parses a catalog manifest from disk. The returned
// catalog is validated and its prop schemas are compiled.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	catalog, err := ParseCatalog(data)
	if err != nil {
		return nil, ErrManifestParse{Path: path, Err: err}
	}
	return catalog, nil
}

// ParseCatalog parses a catalog manifest from YAML bytes, validates it and
// compiles prop schemas.
func ParseCatalog(data []byte) (*Catalog, error) {
	var catalog Catalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("yaml parse failed: %w", err)
	}
	if err := catalog.Validate(); err != nil {
		return nil, err
	}
	if err := catalog.compileSchemas(); err != nil {
		return nil, err
	}
	catalog.index()
	return &catalog, nil
}

// Validate checks the manifest's structural invariants.
func (c *Catalog) Validate() error {
	if c.Name == "" {
		return ErrInvalidManifest{Field: "name", Reason: "name is required"}
	}
	if c.Version == "" {
		return ErrInvalidManifest{Field: "version", Reason: "version is required"}
	}
	if len(c.Components) == 0 {
		return ErrInvalidManifest{Field: "components", Reason: "at least one component is required"}
	}

	seen := make(map[string]bool)
	for i, comp := range c.Components {
		if comp.Name == "" {
			return ErrInvalidManifest{Field: "components", Reason: "component name is required", Index: &i}
		}
		if seen[comp.Name] {
			return ErrInvalidManifest{Field: "components", Reason: fmt.Sprintf("duplicate component name: %s", comp.Name), Index: &i}
		}
		seen[comp.Name] = true
	}

	seenComputed := make(map[string]bool)
	for i, fn := range c.Computed {
		if fn.Name == "" {
			return ErrInvalidManifest{Field: "computed", Reason: "computed name is required", Index: &i}
		}
		if fn.Expression == "" {
			return ErrInvalidManifest{Field: "computed", Reason: "computed expression is required", Index: &i}
		}
		if seenComputed[fn.Name] {
			return ErrInvalidManifest{Field: "computed", Reason: fmt.Sprintf("duplicate computed name: %s", fn.Name), Index: &i}
		}
		seenComputed[fn.Name] = true
	}

	return nil
}

// compileSchemas compiles each component's prop schema. YAML decodes maps
// with interface{} keys, so the schema is round-tripped through JSON first.
func (c *Catalog) compileSchemas() error {
	for i := range c.Components {
		comp := &c.Components[i]
		if comp.Props == nil {
			continue
		}
		raw, err := json.Marshal(normalizeYAML(comp.Props))
		if err != nil {
			return ErrInvalidManifest{Field: "components", Reason: fmt.Sprintf("props schema for %s is not serializable: %v", comp.Name, err), Index: &i}
		}
		schema, err := jsonschema.CompileString(comp.Name+".json", string(raw))
		if err != nil {
			return ErrInvalidManifest{Field: "components", Reason: fmt.Sprintf("props schema for %s does not compile: %v", comp.Name, err), Index: &i}
		}
		comp.schema = schema
	}
	return nil
}

func (c *Catalog) index() {
	c.byName = make(map[string]*ComponentSpec, len(c.Components))
	for i := range c.Components {
		c.byName[c.Components[i].Name] = &c.Components[i]
	}
}

// Component returns the spec for a component type.
func (c *Catalog) Component(name string) (*ComponentSpec, bool) {
	comp, ok := c.byName[name]
	return comp, ok
}

// Has reports whether the catalog declares a component type.
func (c *Catalog) Has(name string) bool {
	_, ok := c.byName[name]
	return ok
}

// ComponentNames returns the declared component type names in manifest order.
func (c *Catalog) ComponentNames() []string {
	names := make([]string, len(c.Components))
	for i, comp := range c.Components {
		names[i] = comp.Name
	}
	return names
}

// ValidateProps checks resolved element props against the component's prop
// schema. Components without a schema accept any props.
func (c *Catalog) ValidateProps(typeName string, props map[string]interface{}) error {
	comp, ok := c.byName[typeName]
	if !ok {
		return ErrComponentNotFound{Type: typeName}
	}
	if comp.schema == nil {
		return nil
	}

	// The validator wants plain JSON values.
	raw, err := json.Marshal(props)
	if err != nil {
		return ErrPropsInvalid{Type: typeName, Err: err}
	}
	var value interface{}
	if err := json.Unmarshal(raw, &value); err != nil {
		return ErrPropsInvalid{Type: typeName, Err: err}
	}

	if err := comp.schema.Validate(value); err != nil {
		return ErrPropsInvalid{Type: typeName, Err: err}
	}
	return nil
}

// VetSpec validates every element in a spec against the catalog: unknown
// component types and schema-violating literal props are reported. Dynamic
// props (expressions resolved at render time) are skipped since their
// values are not known statically.
func (c *Catalog) VetSpec(spec *Spec) []error {
	if spec == nil {
		return nil
	}

	var errs []error
	for key, el := range spec.Elements {
		if el == nil {
			continue
		}
		if !c.Has(el.Type) {
			errs = append(errs, fmt.Errorf("element %s: %w", key, ErrComponentNotFound{Type: el.Type}))
			continue
		}
		literal := literalProps(el.Props)
		if len(literal) == 0 {
			continue
		}
		if err := c.ValidateProps(el.Type, literal); err != nil {
			errs = append(errs, fmt.Errorf("element %s: %w", key, err))
		}
	}
	return errs
}

// RegisterComputed compiles the catalog's CEL expressions into a computed
// registry. Collisions with already-registered names are errors.
func (c *Catalog) RegisterComputed(registry *ComputedRegistry) error {
	for _, fn := range c.Computed {
		if err := registry.RegisterCEL(fn.Name, fn.Expression); err != nil {
			return fmt.Errorf("catalog computed %q: %w", fn.Name, err)
		}
	}
	return nil
}

// literalProps filters out props whose values contain dynamic expressions.
func literalProps(props map[string]interface{}) map[string]interface{} {
	literal := make(map[string]interface{})
	for k, v := range props {
		if !containsDynamic(v) {
			literal[k] = v
		}
	}
	return literal
}

func containsDynamic(v interface{}) bool {
	switch val := v.(type) {
	case map[string]interface{}:
		for k, nested := range val {
			if strings.HasPrefix(k, "$") {
				return true
			}
			if containsDynamic(nested) {
				return true
			}
		}
	case []interface{}:
		for _, item := range val {
			if containsDynamic(item) {
				return true
			}
		}
	}
	return false
}

// normalizeYAML converts yaml.v3's map[string]interface{} values that may
// contain interface{}-keyed maps into JSON-marshalable structures.
func normalizeYAML(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, nested := range val {
			out[k] = normalizeYAML(nested)
		}
		return out
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, nested := range val {
			out[fmt.Sprintf("%v", k)] = normalizeYAML(nested)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = normalizeYAML(item)
		}
		return out
	default:
		return val
	}
}
