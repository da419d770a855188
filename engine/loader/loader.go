package loader

import (
	"context"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/tmc/langchaingo/schema"
	"golang.org/x/sync/errgroup"

	"github.com/ragplane/ragplane/engine/core"
	"github.com/ragplane/ragplane/engine/docstore"
	"github.com/ragplane/ragplane/pkg/logger"
)

// MetadataKeySource carries the path a document was loaded from.
const MetadataKeySource = "source"

// Result is a loaded document annotated with the doc-store collection it
// routes to. Collection is empty when no output rule or default applies.
type Result struct {
	Document   docstore.Document
	Collection string
}

// Loader enumerates files under a directory and materialises them into
// documents according to its glob rules.
type Loader struct {
	cfg Config
}

// New builds a loader after validating its configuration.
func New(cfg *Config) (*Loader, error) {
	if cfg == nil {
		return nil, core.Validationf("loader: config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Loader{cfg: *cfg}, nil
}

// FromBody decodes a raw configuration body and builds the loader.
func FromBody(body map[string]any) (*Loader, error) {
	cfg := &Config{}
	if err := core.DeepCopyJSON(body, cfg); err != nil {
		return nil, core.Validationf("loader: invalid config body: %v", err)
	}
	return New(cfg)
}

// Config returns the loader's configuration.
func (l *Loader) Config() Config { return l.cfg }

// Load enumerates every file under base (the configured path when base is
// empty), runs each matching file through its loader variant, and returns
// the enriched documents together with their routed collections. Files
// matching no loader rule are skipped silently; per-file failures abort the
// run unless silent_errors is set, in which case they are logged and
// skipped. Document order within a file is preserved; the order across files
// follows the enumeration order.
func (l *Loader) Load(ctx context.Context, fsys afero.Fs, base string) ([]Result, error) {
	if base == "" {
		base = l.cfg.Path
	}
	if base == "" {
		return nil, core.Validationf("loader: no path configured")
	}
	files, err := l.enumerate(fsys, base)
	if err != nil {
		return nil, err
	}
	results := make([][]Result, len(files))
	group, gctx := errgroup.WithContext(ctx)
	limit := 1
	if l.cfg.UseMultithreading {
		limit = l.cfg.MaxConcurrency
		if limit <= 0 {
			limit = 4
		}
	}
	group.SetLimit(limit)
	for i := range files {
		i := i
		group.Go(func() error {
			loaded, err := l.loadOne(gctx, fsys, files[i])
			if err != nil {
				if l.cfg.SilentErrors {
					logger.FromContext(gctx).Warn("skipping file after load failure",
						"path", files[i].path, "error", err)
					return nil
				}
				return err
			}
			results[i] = loaded
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	out := make([]Result, 0, len(files))
	for _, batch := range results {
		out = append(out, batch...)
	}
	return out, nil
}

type candidate struct {
	path  string // full path on the filesystem
	rel   string // path relative to the enumeration base
	class string
}

func (l *Loader) enumerate(fsys afero.Fs, base string) ([]candidate, error) {
	base = filepath.Clean(base)
	var paths []string
	err := afero.Walk(fsys, base, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if p != base && !l.cfg.Recursive {
				return filepath.SkipDir
			}
			return nil
		}
		paths = append(paths, p)
		return nil
	})
	if err != nil {
		return nil, core.NotFoundf("loader: enumerate %s: %v", base, err)
	}
	sort.Strings(paths)
	candidates := make([]candidate, 0, len(paths))
	for _, p := range paths {
		rel := relativeTo(filepath.ToSlash(p), filepath.ToSlash(base))
		if rel == "" {
			continue
		}
		if !l.admits(rel) {
			continue
		}
		class, ok := l.cfg.loaderClass(rel)
		if !ok {
			continue
		}
		candidates = append(candidates, candidate{path: p, rel: rel, class: class})
	}
	return l.sample(candidates), nil
}

func (l *Loader) admits(rel string) bool {
	depth := strings.Count(rel, "/")
	if l.cfg.MaxDepth > 0 && depth >= l.cfg.MaxDepth {
		return false
	}
	if !l.cfg.LoadHidden && hasHiddenSegment(rel) {
		return false
	}
	return !l.cfg.excluded(rel)
}

// sample trims the candidate list to sample_size, optionally shuffling first
// with a fixed seed so repeated runs see the same subset.
func (l *Loader) sample(candidates []candidate) []candidate {
	if l.cfg.SampleSize <= 0 || l.cfg.SampleSize >= len(candidates) {
		return candidates
	}
	if l.cfg.RandomizeSample {
		rng := rand.New(rand.NewSource(l.cfg.SampleSeed))
		rng.Shuffle(len(candidates), func(i, j int) {
			candidates[i], candidates[j] = candidates[j], candidates[i]
		})
	}
	return candidates[:l.cfg.SampleSize]
}

func (l *Loader) loadOne(ctx context.Context, fsys afero.Fs, file candidate) ([]Result, error) {
	data, err := afero.ReadFile(fsys, file.path)
	if err != nil {
		return nil, core.NotFoundf("loader: read %s: %v", file.path, err)
	}
	mime := mimetype.Detect(data).String()
	loaded, err := loadFile(ctx, file.class, data, mime, l.cfg.kwargsFor(file.rel))
	if err != nil {
		return nil, err
	}
	ruleMeta := l.cfg.metadataFor(file.rel)
	collection := l.cfg.outputFor(file.rel)
	out := make([]Result, 0, len(loaded))
	for i := range loaded {
		out = append(out, Result{
			Document:   toDocument(&loaded[i], file.path, ruleMeta),
			Collection: collection,
		})
	}
	return out, nil
}

func toDocument(doc *schema.Document, source string, ruleMeta map[string]any) docstore.Document {
	metadata := core.MergeMaps(ruleMeta, doc.Metadata)
	if metadata == nil {
		metadata = make(map[string]any)
	}
	metadata[MetadataKeySource] = source
	id := uuid.NewString()
	if v, ok := metadata[docstore.MetadataKeyID].(string); ok && v != "" {
		id = v
	}
	metadata[docstore.MetadataKeyID] = id
	return docstore.Document{
		ID:          id,
		PageContent: doc.PageContent,
		Metadata:    metadata,
	}
}

func relativeTo(path, base string) string {
	if path == base {
		return ""
	}
	if strings.HasPrefix(path, base+"/") {
		return path[len(base)+1:]
	}
	return path
}

func hasHiddenSegment(rel string) bool {
	for _, segment := range strings.Split(rel, "/") {
		if strings.HasPrefix(segment, ".") {
			return true
		}
	}
	return false
}
