package livespec

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tdewolff/minify/v2"
	mhtml "github.com/tdewolff/minify/v2/html"
	"golang.org/x/net/html"
)

// HTMLRenderer is the reference ComponentRenderer target: it maps catalog
// component types to HTML tags and renders resolved nodes as escaped,
// optionally minified markup. It carries no styling opinions; it exists to
// make spec output viewable and to exercise the registry seam.
type HTMLRenderer struct {
	catalog  *Catalog
	minifier *minify.M
}

// HTMLOption configures an HTMLRenderer.
type HTMLOption func(*HTMLRenderer)

// WithMinify enables HTML minification of full-document output.
func WithMinify() HTMLOption {
	return func(r *HTMLRenderer) {
		m := minify.New()
		m.AddFunc("text/html", mhtml.Minify)
		r.minifier = m
	}
}

// NewHTMLRenderer creates an HTML renderer over a catalog. A nil catalog
// renders every element as a div.
func NewHTMLRenderer(catalog *Catalog, opts ...HTMLOption) *HTMLRenderer {
	r := &HTMLRenderer{catalog: catalog}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Registry returns a component registry whose fallback renders every node
// through this renderer, ready to pass to RendererConfig.Registry.
func (r *HTMLRenderer) Registry() *ComponentRegistry {
	registry := NewComponentRegistry()
	registry.SetFallback(r.Render)
	return registry
}

// Render implements ComponentRenderer: it produces the HTML string for one
// node. Children arrive already rendered; non-string children are skipped.
func (r *HTMLRenderer) Render(node *Node, children []interface{}) (interface{}, error) {
	var b strings.Builder
	r.writeNode(&b, node, children)
	return b.String(), nil
}

// RenderDocument renders a full spec to an HTML string via a Renderer
// carrying this target, minifying when configured.
func (r *HTMLRenderer) RenderDocument(renderer *Renderer, spec *Spec) (string, error) {
	out, err := renderer.Render(spec, false)
	if err != nil {
		return "", err
	}
	doc, _ := out.(string)
	if r.minifier == nil || doc == "" {
		return doc, nil
	}
	minified, err := r.minifier.String("text/html", doc)
	if err != nil {
		return "", fmt.Errorf("minify output: %w", err)
	}
	return minified, nil
}

func (r *HTMLRenderer) writeNode(b *strings.Builder, node *Node, children []interface{}) {
	tag, void := r.tagFor(node.Type)

	b.WriteByte('<')
	b.WriteString(tag)
	b.WriteString(` data-key="`)
	b.WriteString(html.EscapeString(node.Key))
	b.WriteByte('"')

	// Attributes come out sorted so the same node always renders the
	// same bytes.
	content := writeAttrs(b, node)

	if void {
		b.WriteString("/>")
		return
	}
	b.WriteByte('>')

	if content != "" {
		b.WriteString(html.EscapeString(content))
	}
	for _, child := range children {
		if s, ok := child.(string); ok {
			b.WriteString(s)
		}
	}

	b.WriteString("</")
	b.WriteString(tag)
	b.WriteByte('>')
}

// writeAttrs emits the node's props as attributes and returns the text
// content, which is not an attribute. The "content" prop is the inner
// text; bindings become data-bind-* attributes for the client runtime.
func writeAttrs(b *strings.Builder, node *Node) string {
	var content string

	keys := make([]string, 0, len(node.Props))
	for k := range node.Props {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		v := node.Props[k]
		if k == "content" {
			content = stringifyValue(v)
			continue
		}
		switch val := v.(type) {
		case bool:
			// Boolean attributes render bare when true, not at all
			// when false.
			if val {
				b.WriteByte(' ')
				b.WriteString(html.EscapeString(k))
			}
		case string, float64, int, int64:
			b.WriteByte(' ')
			b.WriteString(html.EscapeString(k))
			b.WriteString(`="`)
			b.WriteString(html.EscapeString(stringifyValue(v)))
			b.WriteByte('"')
		default:
			// Structured props have no attribute form.
		}
	}

	bindKeys := make([]string, 0, len(node.Bindings))
	for k := range node.Bindings {
		bindKeys = append(bindKeys, k)
	}
	sort.Strings(bindKeys)
	for _, k := range bindKeys {
		b.WriteString(` data-bind-`)
		b.WriteString(html.EscapeString(k))
		b.WriteString(`="`)
		b.WriteString(html.EscapeString(node.Bindings[k]))
		b.WriteByte('"')
	}

	return content
}

// tagFor resolves the HTML tag for a component type from the catalog,
// defaulting to div.
func (r *HTMLRenderer) tagFor(componentType string) (tag string, void bool) {
	if r.catalog != nil {
		if comp, ok := r.catalog.Component(componentType); ok && comp.Tag != "" {
			return comp.Tag, comp.Void
		}
	}
	return "div", false
}
