package livespec

import (
	"reflect"
	"testing"
)

func TestSplitPath(t *testing.T) {
	tests := []struct {
		name string
		path string
		want []string
	}{
		{name: "empty is root", path: "", want: nil},
		{name: "slash is root", path: "/", want: nil},
		{name: "single segment", path: "/todos", want: []string{"todos"}},
		{name: "nested", path: "/user/profile/name", want: []string{"user", "profile", "name"}},
		{name: "numeric segment", path: "/todos/2/done", want: []string{"todos", "2", "done"}},
		{name: "empty segments dropped", path: "/a//b", want: []string{"a", "b"}},
		{name: "no leading slash", path: "todos/0", want: []string{"todos", "0"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := splitPath(tt.path)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("splitPath(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestJoinPath(t *testing.T) {
	if got := joinPath(); got != "/" {
		t.Errorf("joinPath() = %q, want /", got)
	}
	if got := joinPath("todos", "2"); got != "/todos/2" {
		t.Errorf("joinPath(todos, 2) = %q, want /todos/2", got)
	}
}

func TestGetIn(t *testing.T) {
	root := map[string]interface{}{
		"user": map[string]interface{}{"name": "ada"},
		"todos": []interface{}{
			map[string]interface{}{"text": "first"},
			map[string]interface{}{"text": "second"},
		},
	}

	tests := []struct {
		name   string
		path   string
		want   interface{}
		wantOK bool
	}{
		{name: "map key", path: "/user/name", want: "ada", wantOK: true},
		{name: "slice index", path: "/todos/1/text", want: "second", wantOK: true},
		{name: "missing key", path: "/user/email", wantOK: false},
		{name: "index out of range", path: "/todos/5", wantOK: false},
		{name: "negative index", path: "/todos/-1", wantOK: false},
		{name: "index into scalar", path: "/user/name/0", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := getIn(root, splitPath(tt.path))
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSetInCopiesOnlyThePath(t *testing.T) {
	orig := map[string]interface{}{
		"user":  map[string]interface{}{"name": "ada"},
		"other": map[string]interface{}{"kept": true},
	}

	next := setIn(orig, []string{"user", "name"}, "grace").(map[string]interface{})

	if got, _ := getIn(next, []string{"user", "name"}); got != "grace" {
		t.Errorf("new root missing write, got %v", got)
	}
	if got, _ := getIn(orig, []string{"user", "name"}); got != "ada" {
		t.Errorf("original mutated, got %v", got)
	}
	// Untouched branches are shared, not copied.
	if reflect.ValueOf(next["other"]).Pointer() != reflect.ValueOf(orig["other"]).Pointer() {
		t.Error("untouched branch was copied instead of shared")
	}
}

func TestSetInCreatesIntermediates(t *testing.T) {
	next := setIn(map[string]interface{}{}, []string{"a", "b", "c"}, 1)
	if got, ok := getIn(next, []string{"a", "b", "c"}); !ok || got != 1 {
		t.Errorf("intermediates not created, got %v ok=%v", got, ok)
	}
}

func TestSetInOverwritesScalarIntermediate(t *testing.T) {
	root := map[string]interface{}{"a": "scalar"}
	next := setIn(root, []string{"a", "b"}, 1)
	if got, ok := getIn(next, []string{"a", "b"}); !ok || got != 1 {
		t.Errorf("scalar not replaced by map, got %v ok=%v", got, ok)
	}
}

func TestSetInPastSliceEndIsDropped(t *testing.T) {
	root := map[string]interface{}{"todos": []interface{}{"only"}}
	next := setIn(root, []string{"todos", "3"}, "x")
	if !reflect.DeepEqual(next, root) {
		t.Errorf("sparse slice write should be dropped, got %v", next)
	}
}

func TestRemoveIn(t *testing.T) {
	root := map[string]interface{}{
		"user":  map[string]interface{}{"name": "ada", "email": "a@b.c"},
		"todos": []interface{}{"a", "b", "c"},
	}

	next, removed := removeIn(root, []string{"user", "email"})
	if !removed {
		t.Fatal("expected removal")
	}
	if _, ok := getIn(next, []string{"user", "email"}); ok {
		t.Error("email still present after removal")
	}
	if _, ok := getIn(root, []string{"user", "email"}); !ok {
		t.Error("original mutated by removal")
	}

	next, removed = removeIn(root, []string{"todos", "1"})
	if !removed {
		t.Fatal("expected splice")
	}
	got, _ := getIn(next, []string{"todos"})
	if !reflect.DeepEqual(got, []interface{}{"a", "c"}) {
		t.Errorf("splice result %v, want [a c]", got)
	}

	if _, removed := removeIn(root, []string{"missing"}); removed {
		t.Error("removal of missing path reported true")
	}
	if _, removed := removeIn(root, []string{"todos", "9"}); removed {
		t.Error("removal past slice end reported true")
	}
}
