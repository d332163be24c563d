package livespec

import (
	"strconv"
	"strings"
)

// splitPath breaks a slash-delimited pointer path into segments.
// "" and "/" address the root and yield nil. Empty segments are dropped,
// so "/a//b" reads the same as "/a/b".
func splitPath(path string) []string {
	if path == "" || path == "/" {
		return nil
	}
	parts := strings.Split(strings.TrimPrefix(path, "/"), "/")
	segs := parts[:0]
	for _, p := range parts {
		if p != "" {
			segs = append(segs, p)
		}
	}
	if len(segs) == 0 {
		return nil
	}
	return segs
}

// joinPath builds an absolute path from segments.
func joinPath(segs ...string) string {
	if len(segs) == 0 {
		return "/"
	}
	return "/" + strings.Join(segs, "/")
}

func toIndex(seg string) (int, bool) {
	i, err := strconv.Atoi(seg)
	if err != nil || i < 0 {
		return 0, false
	}
	return i, true
}

// getIn walks maps and slices by segment. Numeric segments index slices.
// Missing paths report ok=false, never an error.
func getIn(root interface{}, segs []string) (interface{}, bool) {
	cur := root
	for _, seg := range segs {
		switch node := cur.(type) {
		case map[string]interface{}:
			v, ok := node[seg]
			if !ok {
				return nil, false
			}
			cur = v
		case []interface{}:
			i, ok := toIndex(seg)
			if !ok || i >= len(node) {
				return nil, false
			}
			cur = node[i]
		default:
			return nil, false
		}
	}
	return cur, true
}

// setIn returns a new root with value placed at the segment path, cloning
// only the containers along the path (untouched branches are shared).
// Missing intermediate containers are created as maps; an intermediate
// scalar is overwritten by a map. Writes to slice indices past the end are
// dropped: arrays grow through pushState, not sparse assignment.
func setIn(root interface{}, segs []string, value interface{}) interface{} {
	if len(segs) == 0 {
		return value
	}
	seg, rest := segs[0], segs[1:]

	switch node := root.(type) {
	case []interface{}:
		i, ok := toIndex(seg)
		if !ok || i >= len(node) {
			return root
		}
		next := make([]interface{}, len(node))
		copy(next, node)
		next[i] = setIn(node[i], rest, value)
		return next
	case map[string]interface{}:
		next := make(map[string]interface{}, len(node)+1)
		for k, v := range node {
			next[k] = v
		}
		next[seg] = setIn(node[seg], rest, value)
		return next
	default:
		next := make(map[string]interface{}, 1)
		next[seg] = setIn(nil, rest, value)
		return next
	}
}

// removeIn returns a new root with the value at the segment path deleted.
// Map entries are deleted; slice elements are spliced out. The bool reports
// whether anything was removed; a miss returns the root unchanged.
func removeIn(root interface{}, segs []string) (interface{}, bool) {
	if len(segs) == 0 {
		return root, false
	}
	seg, rest := segs[0], segs[1:]

	switch node := root.(type) {
	case map[string]interface{}:
		child, ok := node[seg]
		if !ok {
			return root, false
		}
		if len(rest) == 0 {
			next := make(map[string]interface{}, len(node))
			for k, v := range node {
				if k != seg {
					next[k] = v
				}
			}
			return next, true
		}
		newChild, removed := removeIn(child, rest)
		if !removed {
			return root, false
		}
		next := make(map[string]interface{}, len(node))
		for k, v := range node {
			next[k] = v
		}
		next[seg] = newChild
		return next, true
	case []interface{}:
		i, ok := toIndex(seg)
		if !ok || i >= len(node) {
			return root, false
		}
		if len(rest) == 0 {
			next := make([]interface{}, 0, len(node)-1)
			next = append(next, node[:i]...)
			next = append(next, node[i+1:]...)
			return next, true
		}
		newChild, removed := removeIn(node[i], rest)
		if !removed {
			return root, false
		}
		next := make([]interface{}, len(node))
		copy(next, node)
		next[i] = newChild
		return next, true
	default:
		return root, false
	}
}
