// Package query implements the metadata predicate DSL used by catalog
// searches and transformer maps. Predicates are a miniature document query:
// a top-level object is an implicit AND of its fields, "$or" requires at
// least one branch to hold, "$and" requires all, and any other key is an
// equality test against a (possibly dotted) field path.
package query

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/tidwall/gjson"

	"github.com/ragplane/ragplane/engine/core"
)

// Predicate is a compiled filter evaluated against key-value documents.
type Predicate struct {
	root node
}

type node interface {
	matches(raw []byte) bool
}

type andNode struct{ children []node }

type orNode struct{ children []node }

type eqNode struct {
	path string
	want any
}

// Parse compiles a filter document into a Predicate. A nil or empty filter
// matches everything.
func Parse(filter map[string]any) (*Predicate, error) {
	root, err := parseObject(filter)
	if err != nil {
		return nil, err
	}
	return &Predicate{root: root}, nil
}

func parseObject(filter map[string]any) (node, error) {
	children := make([]node, 0, len(filter))
	for key, value := range filter {
		switch key {
		case "$or":
			branch, err := parseBranches(key, value)
			if err != nil {
				return nil, err
			}
			children = append(children, orNode{children: branch})
		case "$and":
			branch, err := parseBranches(key, value)
			if err != nil {
				return nil, err
			}
			children = append(children, andNode{children: branch})
		default:
			child, err := parseField(key, value)
			if err != nil {
				return nil, err
			}
			children = append(children, child)
		}
	}
	return andNode{children: children}, nil
}

func parseBranches(op string, value any) ([]node, error) {
	list, ok := value.([]any)
	if !ok {
		return nil, core.Validationf("query: %s expects an array of sub-filters", op)
	}
	if len(list) == 0 {
		return nil, core.Validationf("query: %s requires at least one sub-filter", op)
	}
	branches := make([]node, 0, len(list))
	for i, item := range list {
		sub, ok := item.(map[string]any)
		if !ok {
			return nil, core.Validationf("query: %s[%d] must be an object", op, i)
		}
		child, err := parseObject(sub)
		if err != nil {
			return nil, err
		}
		branches = append(branches, child)
	}
	return branches, nil
}

func parseField(path string, value any) (node, error) {
	// {field: {"$eq": v}} is accepted as a spelled-out equality.
	if sub, ok := value.(map[string]any); ok {
		if len(sub) == 1 {
			if want, ok := sub["$eq"]; ok {
				return eqNode{path: path, want: want}, nil
			}
		}
		for key := range sub {
			if len(key) > 0 && key[0] == '$' {
				return nil, core.Validationf("query: operator %q is not supported", key)
			}
		}
	}
	return eqNode{path: path, want: value}, nil
}

// Matches reports whether the document satisfies the predicate.
func (p *Predicate) Matches(doc map[string]any) (bool, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return false, fmt.Errorf("query: marshal document: %w", err)
	}
	return p.MatchesJSON(raw), nil
}

// MatchesJSON evaluates the predicate against a pre-serialized document.
func (p *Predicate) MatchesJSON(raw []byte) bool {
	if p == nil || p.root == nil {
		return true
	}
	return p.root.matches(raw)
}

func (n andNode) matches(raw []byte) bool {
	for _, child := range n.children {
		if !child.matches(raw) {
			return false
		}
	}
	return true
}

func (n orNode) matches(raw []byte) bool {
	for _, child := range n.children {
		if child.matches(raw) {
			return true
		}
	}
	return false
}

func (n eqNode) matches(raw []byte) bool {
	res := gjson.GetBytes(raw, n.path)
	if !res.Exists() {
		return n.want == nil
	}
	return looseEqual(res.Value(), n.want)
}

// looseEqual compares values with JSON numeric semantics so that an int in a
// filter matches a float64 decoded from a stored document.
func looseEqual(got, want any) bool {
	if gf, ok := toFloat(got); ok {
		if wf, ok := toFloat(want); ok {
			return gf == wf
		}
		return false
	}
	return reflect.DeepEqual(got, want)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
