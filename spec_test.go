package livespec

import (
	"reflect"
	"testing"
)

func TestSpecRenderable(t *testing.T) {
	tests := []struct {
		name string
		spec *Spec
		want bool
	}{
		{name: "nil spec", spec: nil, want: false},
		{name: "empty spec", spec: NewSpec(), want: false},
		{
			name: "root names missing element",
			spec: &Spec{Root: "main", Elements: map[string]*Element{}},
			want: false,
		},
		{
			name: "root present",
			spec: &Spec{Root: "main", Elements: map[string]*Element{"main": {Type: "text"}}},
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.spec.Renderable(); got != tt.want {
				t.Errorf("Renderable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFromFlat(t *testing.T) {
	rows := []FlatElement{
		{Key: "app", Type: "container"},
		{Key: "header", ParentKey: "app", Type: "text", Props: map[string]interface{}{"content": "hi"}},
		{Key: "list", ParentKey: "app", Type: "container", Repeat: &Repeat{StatePath: "/todos"}},
		{Key: "item", ParentKey: "list", Type: "text"},
	}

	spec := FromFlat(rows)

	if spec.Root != "app" {
		t.Errorf("root = %q", spec.Root)
	}
	if !reflect.DeepEqual(spec.Elements["app"].Children, []string{"header", "list"}) {
		t.Errorf("app children = %v", spec.Elements["app"].Children)
	}
	if !reflect.DeepEqual(spec.Elements["list"].Children, []string{"item"}) {
		t.Errorf("list children = %v", spec.Elements["list"].Children)
	}
	if spec.Elements["list"].Repeat.StatePath != "/todos" {
		t.Error("repeat config dropped")
	}
}

func TestFromFlatEdgeCases(t *testing.T) {
	if spec := FromFlat(nil); spec.Root != "" || len(spec.Elements) != 0 {
		t.Errorf("empty input should be empty spec: %+v", spec)
	}

	// Rows without a key are dropped; orphans keep their element but no
	// parent wiring; the first parentless row wins the root.
	spec := FromFlat([]FlatElement{
		{Type: "ghost"},
		{Key: "first", Type: "container"},
		{Key: "second", Type: "container"},
		{Key: "orphan", ParentKey: "missing", Type: "text"},
	})
	if spec.Root != "first" {
		t.Errorf("root = %q, want first", spec.Root)
	}
	if len(spec.Elements) != 3 {
		t.Errorf("elements = %v", spec.Elements)
	}
	if _, ok := spec.Elements["orphan"]; !ok {
		t.Error("orphan element dropped")
	}
}

func TestFlatten(t *testing.T) {
	tree := map[string]interface{}{
		"type": "container",
		"children": []interface{}{
			map[string]interface{}{
				"type":  "text",
				"props": map[string]interface{}{"content": "hello"},
			},
			"external-ref",
			map[string]interface{}{
				"type": "container",
				"children": []interface{}{
					map[string]interface{}{"type": "button"},
				},
			},
		},
	}

	spec := Flatten(tree)

	if spec.Root != "el-1" {
		t.Errorf("root = %q", spec.Root)
	}
	root := spec.Elements["el-1"]
	if !reflect.DeepEqual(root.Children, []string{"el-2", "external-ref", "el-3"}) {
		t.Errorf("root children = %v", root.Children)
	}
	if spec.Elements["el-2"].Props["content"] != "hello" {
		t.Error("props dropped in flatten")
	}
	if !reflect.DeepEqual(spec.Elements["el-3"].Children, []string{"el-4"}) {
		t.Errorf("nested children = %v", spec.Elements["el-3"].Children)
	}

	// Key assignment is walk-order deterministic.
	again := Flatten(tree)
	if !reflect.DeepEqual(spec.Elements["el-1"].Children, again.Elements["el-1"].Children) {
		t.Error("flatten is not deterministic")
	}
}

func TestFlattenEmpty(t *testing.T) {
	spec := Flatten(nil)
	if spec.Root != "" || len(spec.Elements) != 0 {
		t.Errorf("empty tree should flatten to empty spec: %+v", spec)
	}
}

func TestFlattenRepeatAndVisible(t *testing.T) {
	spec := Flatten(map[string]interface{}{
		"type":    "container",
		"visible": map[string]interface{}{"$state": "/show"},
		"repeat":  map[string]interface{}{"statePath": "/todos", "key": "id"},
	})

	el := spec.Elements["el-1"]
	if el.Visible == nil {
		t.Error("visible dropped")
	}
	if el.Repeat == nil || el.Repeat.StatePath != "/todos" || el.Repeat.Key != "id" {
		t.Errorf("repeat = %+v", el.Repeat)
	}
}
