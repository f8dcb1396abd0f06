package loader

import (
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"
	"sync"

	"github.com/Faultbox/midgard-models/internal/engine/gpu"
	"github.com/Faultbox/midgard-models/internal/engine/model"
)

// ErrMalformedExtensionList is returned for wildcard lists with entries not of the form "*.ext".
var ErrMalformedExtensionList = errors.New("malformed extension list")

// DrawContext is the command surface a parser draws into during realization.
type DrawContext = gpu.DrawContext

// Parser turns a named resource into a model tree. Draw issues the geometry of
// one piece and is only called while its draw list is being compiled.
//
// Parsers registered under several extensions are normally pointer types so
// the registry can close each one once. A non-comparable parser value is a
// separate copy per registration and is closed once per copy. A parser that
// also implements io.Closer is closed on teardown.
type Parser interface {
	Load(name string) (*model.Model, error)
	Draw(piece *model.Piece, dc DrawContext)
}

// Registry maps lowercase file extensions to parsers.
type Registry struct {
	mu      sync.RWMutex
	parsers map[string]Parser
	order   []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{parsers: make(map[string]Parser)}
}

// Register associates ext with p. Registering an extension again replaces its
// parser but keeps its original position.
func (r *Registry) Register(ext string, p Parser) {
	ext = strings.ToLower(ext)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.parsers[ext]; !ok {
		r.order = append(r.order, ext)
	}
	r.parsers[ext] = p
}

// RegisterWildcards registers p under every entry of a semicolon separated list
// such as "*.gltf;*.glb". Empty entries are skipped. If any entry is malformed
// nothing is registered.
func (r *Registry) RegisterWildcards(list string, p Parser) error {
	exts, err := ParseWildcards(list)
	if err != nil {
		return err
	}
	for _, ext := range exts {
		r.Register(ext, p)
	}
	return nil
}

// ParseWildcards strips the "*." prefix from each entry of list.
func ParseWildcards(list string) ([]string, error) {
	var exts []string
	for _, entry := range strings.Split(list, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if len(entry) <= 2 || !strings.HasPrefix(entry, "*.") {
			return nil, fmt.Errorf("%w: entry %q in %q", ErrMalformedExtensionList, entry, list)
		}
		exts = append(exts, entry[2:])
	}
	if len(exts) == 0 {
		return nil, fmt.Errorf("%w: %q has no entries", ErrMalformedExtensionList, list)
	}
	return exts, nil
}

// Resolve returns the parser registered for ext.
func (r *Registry) Resolve(ext string) (Parser, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.parsers[strings.ToLower(ext)]
	return p, ok
}

// Extensions returns the registered extensions in registration order.
func (r *Registry) Extensions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Len returns the number of registered extensions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Close empties the registry and closes every distinct parser that
// implements io.Closer, each exactly once.
func (r *Registry) Close() error {
	r.mu.Lock()
	seen := make(map[Parser]struct{}, len(r.parsers))
	var distinct []Parser
	for _, ext := range r.order {
		p := r.parsers[ext]
		if p == nil {
			continue
		}
		if !reflect.TypeOf(p).Comparable() {
			distinct = append(distinct, p)
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		distinct = append(distinct, p)
	}
	r.parsers = make(map[string]Parser)
	r.order = nil
	r.mu.Unlock()

	var errs []error
	for _, p := range distinct {
		if c, ok := p.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
