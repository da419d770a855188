// Package loader turns files held in a data store into documents. Which
// loader handles a file, which arguments it receives, which metadata is
// stamped on the result, and which collection receives it are all decided by
// glob rules evaluated in declaration order.
package loader

import (
	"github.com/bmatcuk/doublestar/v4"

	"github.com/ragplane/ragplane/engine/core"
)

// LoaderRule binds a path glob to the loader class handling matching files.
type LoaderRule struct {
	Glob  string `json:"glob"`
	Class string `json:"class"`
}

// KwargsRule binds a path glob to the keyword arguments the chosen loader
// receives for matching files.
type KwargsRule struct {
	Glob   string         `json:"glob"`
	Kwargs map[string]any `json:"kwargs"`
}

// MetadataRule binds a path glob to metadata merged over the defaults for
// matching files.
type MetadataRule struct {
	Glob     string         `json:"glob"`
	Metadata map[string]any `json:"metadata"`
}

// OutputStore names a doc-store collection.
type OutputStore struct {
	CollectionName string `json:"collection_name"`
}

// OutputRule binds a path glob to the doc-store collection receiving the
// documents loaded from matching files.
type OutputRule struct {
	Glob  string      `json:"glob"`
	Store OutputStore `json:"store"`
}

// Config is the persisted loader configuration body.
type Config struct {
	Path               string         `json:"path"`
	LoaderMap          []LoaderRule   `json:"loader_map"`
	LoaderKwargsMap    []KwargsRule   `json:"loader_kwargs_map,omitempty"`
	MetadataMap        []MetadataRule `json:"metadata_map,omitempty"`
	DefaultMetadata    map[string]any `json:"default_metadata,omitempty"`
	OutputStoreMap     []OutputRule   `json:"output_store_map,omitempty"`
	DefaultOutputStore *OutputStore   `json:"default_output_store,omitempty"`

	Recursive  bool     `json:"recursive,omitempty"`
	MaxDepth   int      `json:"max_depth,omitempty"`
	LoadHidden bool     `json:"load_hidden,omitempty"`
	Exclude    []string `json:"exclude,omitempty"`

	SampleSize      int   `json:"sample_size,omitempty"`
	RandomizeSample bool  `json:"randomize_sample,omitempty"`
	SampleSeed      int64 `json:"sample_seed,omitempty"`

	UseMultithreading bool `json:"use_multithreading,omitempty"`
	MaxConcurrency    int  `json:"max_concurrency,omitempty"`
	ShowProgress      bool `json:"show_progress,omitempty"`
	SilentErrors      bool `json:"silent_errors,omitempty"`
}

// Validate checks the configuration eagerly so errors surface at load time
// rather than on the first file.
func (c *Config) Validate() error {
	if len(c.LoaderMap) == 0 {
		return core.Validationf("loader: loader_map must declare at least one rule")
	}
	for i := range c.LoaderMap {
		rule := &c.LoaderMap[i]
		if !doublestar.ValidatePattern(rule.Glob) {
			return core.Validationf("loader: loader_map rule %d: invalid glob %q", i, rule.Glob)
		}
		if !knownClass(rule.Class) {
			return core.Unsupportedf("loader class %q", rule.Class)
		}
	}
	for _, pattern := range c.Exclude {
		if !doublestar.ValidatePattern(pattern) {
			return core.Validationf("loader: invalid exclude glob %q", pattern)
		}
	}
	return nil
}

// loaderClass returns the class of the first loader rule matching rel, in
// declaration order. Files matching no rule are skipped.
func (c *Config) loaderClass(rel string) (string, bool) {
	for i := range c.LoaderMap {
		if match(c.LoaderMap[i].Glob, rel) {
			return c.LoaderMap[i].Class, true
		}
	}
	return "", false
}

func (c *Config) kwargsFor(rel string) map[string]any {
	for i := range c.LoaderKwargsMap {
		if match(c.LoaderKwargsMap[i].Glob, rel) {
			return c.LoaderKwargsMap[i].Kwargs
		}
	}
	return nil
}

// metadataFor layers the first matching metadata rule over the defaults.
func (c *Config) metadataFor(rel string) map[string]any {
	for i := range c.MetadataMap {
		if match(c.MetadataMap[i].Glob, rel) {
			return core.MergeMaps(c.DefaultMetadata, c.MetadataMap[i].Metadata)
		}
	}
	return core.CloneMap(c.DefaultMetadata)
}

func (c *Config) outputFor(rel string) string {
	for i := range c.OutputStoreMap {
		if match(c.OutputStoreMap[i].Glob, rel) {
			return c.OutputStoreMap[i].Store.CollectionName
		}
	}
	if c.DefaultOutputStore != nil {
		return c.DefaultOutputStore.CollectionName
	}
	return ""
}

func (c *Config) excluded(rel string) bool {
	for _, pattern := range c.Exclude {
		if match(pattern, rel) {
			return true
		}
	}
	return false
}

func match(pattern, rel string) bool {
	ok, err := doublestar.Match(pattern, rel)
	return err == nil && ok
}
