package transformer

import (
	"github.com/ragplane/ragplane/engine/core"
	"github.com/ragplane/ragplane/engine/docstore"
	"github.com/ragplane/ragplane/engine/query"
)

// MapRule pairs a metadata predicate with the transformer applied to the
// documents it matches. An empty OutputCollection defers to the map default.
type MapRule struct {
	Filter           map[string]any `json:"filter,omitempty"`
	Transformer      Config         `json:"transformer"`
	OutputCollection string         `json:"output_collection,omitempty"`
}

// MapConfig is the persisted transformer-map configuration body. Rules are
// evaluated in declaration order; documents matching several rules pass
// through every matching transformer sequentially.
type MapConfig struct {
	Rules                   []MapRule `json:"rules"`
	Default                 *Config   `json:"default,omitempty"`
	DefaultOutputCollection string    `json:"default_output_collection,omitempty"`
}

type mapRule struct {
	predicate   *query.Predicate
	transformer *Transformer
	output      string
}

// Map routes documents through transformers chosen by metadata predicates.
type Map struct {
	rules         []mapRule
	fallback      *Transformer
	defaultOutput string
}

// Routed is a chunk annotated with the doc-store collection it should be
// persisted to. Collection is empty when the caller supplies the target.
type Routed struct {
	Document   docstore.Document
	Collection string
}

// NewMap compiles a transformer map: every rule filter is parsed into a
// predicate and every transformer is built eagerly so configuration errors
// surface at load time.
func NewMap(cfg *MapConfig) (*Map, error) {
	if cfg == nil {
		return nil, core.Validationf("transformer map: config is required")
	}
	m := &Map{defaultOutput: cfg.DefaultOutputCollection}
	for i := range cfg.Rules {
		rule := &cfg.Rules[i]
		predicate, err := query.Parse(rule.Filter)
		if err != nil {
			return nil, core.Validationf("transformer map: rule %d: %v", i, err)
		}
		tr, err := New(&rule.Transformer)
		if err != nil {
			return nil, core.Validationf("transformer map: rule %d: %v", i, err)
		}
		m.rules = append(m.rules, mapRule{predicate: predicate, transformer: tr, output: rule.OutputCollection})
	}
	if cfg.Default != nil {
		fallback, err := New(cfg.Default)
		if err != nil {
			return nil, core.Validationf("transformer map: default: %v", err)
		}
		m.fallback = fallback
	}
	return m, nil
}

// MapFromBody decodes a raw configuration body and compiles the map.
func MapFromBody(body map[string]any) (*Map, error) {
	cfg := &MapConfig{}
	if err := core.DeepCopyJSON(body, cfg); err != nil {
		return nil, core.Validationf("transformer map: invalid config body: %v", err)
	}
	return NewMap(cfg)
}

// Apply routes every document through the transformers whose predicates match
// its metadata, in declaration order. Documents matching no rule fall through
// to the default transformer, or pass untouched when no default is set. The
// returned chunks carry the output collection decided by the last matching
// rule with an explicit output, else the map default.
func (m *Map) Apply(docs []docstore.Document) ([]Routed, error) {
	out := make([]Routed, 0, len(docs))
	for i := range docs {
		doc := docs[i]
		current := []docstore.Document{doc}
		matched := false
		output := m.defaultOutput
		for j := range m.rules {
			rule := &m.rules[j]
			ok, err := rule.predicate.Matches(doc.Metadata)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			matched = true
			if rule.output != "" {
				output = rule.output
			}
			current, err = rule.transformer.Transform(current)
			if err != nil {
				return nil, err
			}
		}
		if !matched && m.fallback != nil {
			var err error
			current, err = m.fallback.Transform(current)
			if err != nil {
				return nil, err
			}
		}
		for k := range current {
			out = append(out, Routed{Document: current[k], Collection: output})
		}
	}
	return out, nil
}
