// Package assets resolves resource names to bytes across GRF archives and
// plain directories.
package assets

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/Faultbox/midgard-models/pkg/encoding"
	"github.com/Faultbox/midgard-models/pkg/grf"
)

// ErrNotFound is returned when no source holds a resource.
var ErrNotFound = errors.New("asset not found")

// Source is one place resources can be read from.
type Source interface {
	Read(name string) ([]byte, error)
	Close() error
	String() string
}

// Normalize converts a resource name to its canonical form: forward slashes,
// lowercase, no leading slash.
func Normalize(name string) string {
	return strings.TrimLeft(encoding.NormalizePath(name), "/")
}

// Extension returns the lowercase extension of name without the dot.
func Extension(name string) string {
	ext := path.Ext(Normalize(name))
	return strings.TrimPrefix(ext, ".")
}

// Manager reads resources from its sources. Sources added later take
// priority over earlier ones.
type Manager struct {
	sources []Source
	cache   *Cache
	mu      sync.RWMutex
}

// NewManager creates a new asset manager.
func NewManager() *Manager {
	return &Manager{
		cache: NewCache(),
	}
}

// Open creates a manager over the given archives and directories. Directories
// take priority over archives, and later entries over earlier ones.
func Open(archives, dirs []string) (*Manager, error) {
	m := NewManager()
	for _, p := range archives {
		if err := m.AddArchive(p); err != nil {
			m.Close()
			return nil, err
		}
	}
	for _, d := range dirs {
		if err := m.AddDir(d); err != nil {
			m.Close()
			return nil, err
		}
	}
	return m, nil
}

// AddArchive opens a GRF archive and adds it as a source.
func (m *Manager) AddArchive(path string) error {
	archive, err := grf.Open(path)
	if err != nil {
		return fmt.Errorf("opening archive %s: %w", path, err)
	}
	m.AddSource(&archiveSource{path: path, archive: archive})
	return nil
}

// AddDir adds a directory as a source.
func (m *Manager) AddDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("adding directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("adding directory %s: not a directory", dir)
	}
	m.AddSource(dirSource(dir))
	return nil
}

// AddSource adds an arbitrary source.
func (m *Manager) AddSource(s Source) {
	m.mu.Lock()
	m.sources = append(m.sources, s)
	m.mu.Unlock()
}

// Sources returns the sources in priority order, highest first.
func (m *Manager) Sources() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.sources))
	for i := len(m.sources) - 1; i >= 0; i-- {
		out = append(out, m.sources[i].String())
	}
	return out
}

// Load returns the contents of name from the highest-priority source holding it.
func (m *Manager) Load(name string) ([]byte, error) {
	key := Normalize(name)
	if data, ok := m.cache.Get(key); ok {
		return data, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := []string{key}
	// archives store EUC-KR names; accept them typed as UTF-8
	if !encoding.IsASCII(key) {
		if alt, err := encoding.EncodeEUCKR(key); err == nil && alt != key {
			keys = append(keys, alt)
		}
	}

	for _, k := range keys {
		for i := len(m.sources) - 1; i >= 0; i-- {
			data, err := m.sources[i].Read(k)
			if err == nil {
				m.cache.Set(key, data)
				return data, nil
			}
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
}

// List returns the normalized names of every resource whose extension is in
// exts, across all sources, sorted and without duplicates. No exts lists everything.
func (m *Manager) List(exts ...string) ([]string, error) {
	want := make(map[string]bool, len(exts))
	for _, e := range exts {
		want[strings.ToLower(strings.TrimPrefix(e, "."))] = true
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[string]bool)
	var out []string
	for _, s := range m.sources {
		l, ok := s.(lister)
		if !ok {
			continue
		}
		names, err := l.List()
		if err != nil {
			return nil, fmt.Errorf("listing %s: %w", s, err)
		}
		for _, n := range names {
			n = Normalize(n)
			if seen[n] || (len(want) > 0 && !want[Extension(n)]) {
				continue
			}
			seen[n] = true
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Exists reports whether any source holds name.
func (m *Manager) Exists(name string) bool {
	_, err := m.Load(name)
	return err == nil
}

// Stats returns cache statistics.
func (m *Manager) Stats() (hits, misses int) {
	return m.cache.Stats()
}

// Close closes all sources.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for _, s := range m.sources {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing %s: %w", s, err))
		}
	}
	m.sources = nil
	m.cache.Clear()
	return errors.Join(errs...)
}

// lister is implemented by sources that can enumerate their contents.
type lister interface {
	List() ([]string, error)
}

type archiveSource struct {
	path    string
	archive *grf.Archive
}

func (s *archiveSource) Read(name string) ([]byte, error) { return s.archive.Read(name) }
func (s *archiveSource) Close() error                     { return s.archive.Close() }
func (s *archiveSource) String() string                   { return "grf:" + s.path }
func (s *archiveSource) List() ([]string, error)          { return s.archive.List(), nil }

// dirSource reads files below a directory. Names are matched against
// lowercase paths, so the directory should use lowercase file names.
type dirSource string

func (d dirSource) Read(name string) ([]byte, error) {
	if !filepath.IsLocal(filepath.FromSlash(name)) {
		return nil, fmt.Errorf("%w: %s escapes %s", ErrNotFound, name, string(d))
	}
	return os.ReadFile(filepath.Join(string(d), filepath.FromSlash(name)))
}

func (d dirSource) Close() error   { return nil }
func (d dirSource) String() string { return "dir:" + string(d) }

func (d dirSource) List() ([]string, error) {
	var out []string
	err := filepath.WalkDir(string(d), func(p string, e fs.DirEntry, err error) error {
		if err != nil || e.IsDir() {
			return err
		}
		rel, err := filepath.Rel(string(d), p)
		if err != nil {
			return err
		}
		out = append(out, filepath.ToSlash(rel))
		return nil
	})
	return out, err
}

// Cache is a simple in-memory cache for loaded assets.
type Cache struct {
	data map[string][]byte
	mu   sync.Mutex

	// Stats
	hits   int
	misses int
}

// NewCache creates a new cache.
func NewCache() *Cache {
	return &Cache{
		data: make(map[string][]byte),
	}
}

// Get retrieves an item from cache.
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, ok := c.data[key]
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	return data, ok
}

// Set stores an item in cache.
func (c *Cache) Set(key string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = data
}

// Clear clears the cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = make(map[string][]byte)
	c.hits = 0
	c.misses = 0
}

// Stats returns cache statistics.
func (c *Cache) Stats() (hits, misses int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}
