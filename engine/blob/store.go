// Package blob stores user file bytes plus per-path custom metadata on top
// of a flat filesystem backend. Bytes live under encoded physical keys; the
// metadata catalogue is a sidecar JSON document keyed by physical key, with
// directory records keyed by their logical path.
package blob

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/afero"

	"github.com/ragplane/ragplane/engine/core"
)

const catalogueFile = "metadata.json"

// Entry describes one stored blob or directory. Directory records carry no
// size field; that absence is what distinguishes them.
type Entry struct {
	Path      string         `json:"path"`
	Size      *int64         `json:"size,omitempty"`
	MIME      string         `json:"mime,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	Custom    map[string]any `json:"custom_metadata,omitempty"`
}

// IsDir reports whether the entry describes directory metadata.
func (e *Entry) IsDir() bool { return e.Size == nil }

// Store is the blob byte+metadata store. The metadata catalogue is written
// atomically per update with read-modify-write, last writer wins.
type Store struct {
	fs   afero.Fs
	root string
	mu   sync.Mutex
}

type catalogue struct {
	Files map[string]Entry `json:"files"`
	Dirs  map[string]Entry `json:"dirs"`
}

// NewStore opens (creating if needed) a blob store rooted at root.
func NewStore(fs afero.Fs, root string) (*Store, error) {
	if root == "" {
		return nil, core.Validationf("blob: root directory is required")
	}
	if err := fs.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("blob: create root %s: %w", root, err)
	}
	return &Store{fs: fs, root: strings.TrimSuffix(root, "/")}, nil
}

func (s *Store) cataloguePath() string {
	return path.Join(path.Dir(s.root), catalogueFile)
}

func (s *Store) physical(logical string) string {
	return path.Join(s.root, EncodePath(logical))
}

func (s *Store) readCatalogue() (*catalogue, error) {
	cat := &catalogue{Files: map[string]Entry{}, Dirs: map[string]Entry{}}
	raw, err := afero.ReadFile(s.fs, s.cataloguePath())
	if os.IsNotExist(err) {
		return cat, nil
	}
	if err != nil {
		return nil, fmt.Errorf("blob: read catalogue: %w", err)
	}
	if err := json.Unmarshal(raw, cat); err != nil {
		return nil, fmt.Errorf("%w: blob catalogue is corrupt: %v", core.ErrIntegrity, err)
	}
	if cat.Files == nil {
		cat.Files = map[string]Entry{}
	}
	if cat.Dirs == nil {
		cat.Dirs = map[string]Entry{}
	}
	return cat, nil
}

func (s *Store) writeCatalogue(cat *catalogue) error {
	raw, err := json.MarshalIndent(cat, "", "  ")
	if err != nil {
		return fmt.Errorf("blob: marshal catalogue: %w", err)
	}
	if err := afero.WriteFile(s.fs, s.cataloguePath(), raw, 0o644); err != nil {
		return fmt.Errorf("blob: write catalogue: %w", err)
	}
	return nil
}

// mutate runs fn under the catalogue lock with read-modify-write semantics.
func (s *Store) mutate(fn func(cat *catalogue) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cat, err := s.readCatalogue()
	if err != nil {
		return err
	}
	if err := fn(cat); err != nil {
		return err
	}
	return s.writeCatalogue(cat)
}

// Save writes bytes then records metadata; the pair is mutually present
// after a successful call.
func (s *Store) Save(ctx context.Context, logical string, data []byte, custom map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if logical == "" {
		return core.Validationf("blob: path is required")
	}
	key := s.physical(logical)
	if err := s.fs.MkdirAll(path.Dir(key), 0o755); err != nil {
		return fmt.Errorf("blob: create parent dirs for %s: %w", logical, err)
	}
	if err := afero.WriteFile(s.fs, key, data, 0o644); err != nil {
		return fmt.Errorf("blob: write %s: %w", logical, err)
	}
	now := time.Now().UTC()
	size := int64(len(data))
	return s.mutate(func(cat *catalogue) error {
		entry, existed := cat.Files[key]
		if !existed {
			entry = Entry{Path: logical, CreatedAt: now}
		}
		entry.Size = &size
		entry.MIME = detectMIME(logical, data)
		entry.UpdatedAt = now
		if custom != nil {
			entry.Custom = core.MergeMaps(entry.Custom, custom)
		}
		cat.Files[key] = entry
		return nil
	})
}

// Update overwrites an existing blob. It shares Save's atomic pair contract.
func (s *Store) Update(ctx context.Context, logical string, data []byte, custom map[string]any) error {
	exists, err := afero.Exists(s.fs, s.physical(logical))
	if err != nil {
		return fmt.Errorf("blob: stat %s: %w", logical, err)
	}
	if !exists {
		return core.NotFoundf("blob: file %q", logical)
	}
	return s.Save(ctx, logical, data, custom)
}

// Get returns the stored bytes, or nil when the path does not exist.
func (s *Store) Get(ctx context.Context, logical string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := afero.ReadFile(s.fs, s.physical(logical))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("blob: read %s: %w", logical, err)
	}
	return raw, nil
}

// GetMeta returns the metadata record, synthesising a default one when only
// bytes exist.
func (s *Store) GetMeta(ctx context.Context, logical string) (*Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key := s.physical(logical)
	s.mu.Lock()
	cat, err := s.readCatalogue()
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if entry, ok := cat.Files[key]; ok {
		return &entry, nil
	}
	info, err := s.fs.Stat(key)
	if os.IsNotExist(err) {
		return nil, core.NotFoundf("blob: file %q", logical)
	}
	if err != nil {
		return nil, fmt.Errorf("blob: stat %s: %w", logical, err)
	}
	size := info.Size()
	return &Entry{
		Path:      logical,
		Size:      &size,
		MIME:      detectMIME(logical, nil),
		CreatedAt: info.ModTime().UTC(),
		UpdatedAt: info.ModTime().UTC(),
	}, nil
}

// Delete removes bytes and metadata. Deleting an absent file succeeds.
func (s *Store) Delete(ctx context.Context, logical string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key := s.physical(logical)
	if err := s.fs.Remove(key); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("blob: remove %s: %w", logical, err)
	}
	return s.mutate(func(cat *catalogue) error {
		delete(cat.Files, key)
		return nil
	})
}

// List returns file entries whose logical path starts with prefix, sorted by
// path.
func (s *Store) List(ctx context.Context, prefix string) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	cat, err := s.readCatalogue()
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(cat.Files))
	for _, entry := range cat.Files {
		if prefix == "" || strings.HasPrefix(entry.Path, prefix) {
			out = append(out, entry)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// Search matches a case-insensitive substring against logical paths and
// string-valued custom metadata, optionally under a prefix.
func (s *Store) Search(ctx context.Context, q, prefix string) ([]Entry, error) {
	entries, err := s.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(q)
	out := make([]Entry, 0, len(entries))
	for _, entry := range entries {
		if matchesEntry(&entry, needle) {
			out = append(out, entry)
		}
	}
	return out, nil
}

// Filter selects files by MIME prefix and size bounds. Zero bounds are open.
func (s *Store) Filter(ctx context.Context, mime string, minSize, maxSize int64) ([]Entry, error) {
	entries, err := s.List(ctx, "")
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(entries))
	for _, entry := range entries {
		if mime != "" && !strings.HasPrefix(entry.MIME, mime) {
			continue
		}
		size := int64(0)
		if entry.Size != nil {
			size = *entry.Size
		}
		if minSize > 0 && size < minSize {
			continue
		}
		if maxSize > 0 && size > maxSize {
			continue
		}
		out = append(out, entry)
	}
	return out, nil
}

// CreateDir records directory metadata and creates the physical directory.
func (s *Store) CreateDir(ctx context.Context, logical string, custom map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if logical == "" {
		return core.Validationf("blob: directory path is required")
	}
	if err := s.fs.MkdirAll(s.physical(logical), 0o755); err != nil {
		return fmt.Errorf("blob: create dir %s: %w", logical, err)
	}
	now := time.Now().UTC()
	return s.mutate(func(cat *catalogue) error {
		entry, existed := cat.Dirs[logical]
		if !existed {
			entry = Entry{Path: logical, CreatedAt: now}
		}
		entry.UpdatedAt = now
		entry.Custom = core.MergeMaps(entry.Custom, custom)
		cat.Dirs[logical] = entry
		return nil
	})
}

// DeleteDir removes directory metadata; absent metadata is an error.
func (s *Store) DeleteDir(ctx context.Context, logical string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.mutate(func(cat *catalogue) error {
		if _, ok := cat.Dirs[logical]; !ok {
			return core.NotFoundf("blob: directory %q", logical)
		}
		delete(cat.Dirs, logical)
		return nil
	})
	if err != nil {
		return err
	}
	if err := s.fs.RemoveAll(s.physical(logical)); err != nil {
		return fmt.Errorf("blob: remove dir %s: %w", logical, err)
	}
	return nil
}

// ListDirs returns every directory metadata record sorted by path.
func (s *Store) ListDirs(ctx context.Context) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	cat, err := s.readCatalogue()
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(cat.Dirs))
	for _, entry := range cat.Dirs {
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// SaveDirMeta replaces a directory's custom metadata, creating the record
// when absent.
func (s *Store) SaveDirMeta(ctx context.Context, logical string, custom map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	now := time.Now().UTC()
	return s.mutate(func(cat *catalogue) error {
		entry, existed := cat.Dirs[logical]
		if !existed {
			entry = Entry{Path: logical, CreatedAt: now}
		}
		entry.Custom = core.CloneMap(custom)
		entry.UpdatedAt = now
		cat.Dirs[logical] = entry
		return nil
	})
}

// UpdateDirMeta shallow-merges new keys over existing directory metadata.
func (s *Store) UpdateDirMeta(ctx context.Context, logical string, custom map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.mutate(func(cat *catalogue) error {
		entry, ok := cat.Dirs[logical]
		if !ok {
			return core.NotFoundf("blob: directory %q", logical)
		}
		entry.Custom = core.MergeMaps(entry.Custom, custom)
		entry.UpdatedAt = time.Now().UTC()
		cat.Dirs[logical] = entry
		return nil
	})
}

// Root returns the physical root directory of the store.
func (s *Store) Root() string { return s.root }

// PhysicalPath resolves a logical path to its on-disk location. Loader
// configurations point at physical paths when reading store content.
func (s *Store) PhysicalPath(logical string) string { return s.physical(logical) }

func matchesEntry(entry *Entry, needle string) bool {
	if needle == "" {
		return true
	}
	if strings.Contains(strings.ToLower(entry.Path), needle) {
		return true
	}
	for _, v := range entry.Custom {
		if s, ok := v.(string); ok && strings.Contains(strings.ToLower(s), needle) {
			return true
		}
	}
	return false
}

func detectMIME(logical string, data []byte) string {
	if byExt := mimetype.Lookup(path.Ext(logical)); byExt != nil {
		return byExt.String()
	}
	return mimetype.Detect(data).String()
}
