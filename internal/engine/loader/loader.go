// Package loader resolves model names to parsers, caches the resulting shared
// model trees and hands out per-actor local models.
package loader

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap"

	"github.com/Faultbox/midgard-models/internal/assets"
	"github.com/Faultbox/midgard-models/internal/engine/gpu"
	"github.com/Faultbox/midgard-models/internal/engine/model"
	"github.com/Faultbox/midgard-models/internal/metrics"
	"github.com/Faultbox/midgard-models/pkg/encoding"
)

// ErrNoParser is returned when no parser is registered for a model's extension.
// It is not fatal: the caller carries on without a visual model.
var ErrNoParser = errors.New("no parser for model")

// Actor owns a local model of a shared model.
type Actor interface {
	gpu.Actor
	SetLocalModel(lm *model.LocalModel)
}

// LowDetailGenerator builds the far representation of a newly loaded model.
type LowDetailGenerator interface {
	Generate(m *model.Model)
}

// Options configures a Loader.
type Options struct {
	Registry *Registry
	// GPU receives realization, binding and deletion requests. A nil GPU gets
	// an immediate-mode manager without a realizer.
	GPU       *gpu.Manager
	LowDetail LowDetailGenerator
	// Extension derives the registry key from a model name. Defaults to assets.Extension.
	Extension func(name string) string
	Logger    *zap.Logger
	Metrics   *metrics.Metrics
}

// Loader owns the model cache and the parser registry.
type Loader struct {
	registry  *Registry
	gpu       *gpu.Manager
	lowDetail LowDetailGenerator
	extension func(string) string
	log       *zap.Logger
	metrics   *metrics.Metrics

	mu    sync.Mutex
	cache map[string]*model.Model
}

// New creates a Loader.
func New(opts Options) *Loader {
	l := &Loader{
		registry:  opts.Registry,
		gpu:       opts.GPU,
		lowDetail: opts.LowDetail,
		extension: opts.Extension,
		log:       opts.Logger,
		metrics:   opts.Metrics,
		cache:     make(map[string]*model.Model),
	}
	if l.log == nil {
		l.log = zap.NewNop()
	}
	l.log = l.log.Named("loader")
	if l.registry == nil {
		l.registry = NewRegistry()
	}
	if l.gpu == nil {
		l.gpu = gpu.NewManager(gpu.Options{Mode: gpu.ModeImmediate, Logger: opts.Logger, Metrics: opts.Metrics})
	}
	if l.extension == nil {
		l.extension = assets.Extension
	}
	return l
}

// Registry returns the parser registry.
func (l *Loader) Registry() *Registry {
	return l.registry
}

// GPU returns the resource manager.
func (l *Loader) GPU() *gpu.Manager {
	return l.gpu
}

// LoadModel returns the shared model for name, parsing it on first use.
// Names are case-insensitive. centerOffset shifts the model's midpoint and
// only applies when the model is first built.
//
// A name whose extension has no parser yields (nil, ErrNoParser) and leaves
// the cache untouched. Parser errors are returned wrapped.
func (l *Loader) LoadModel(ctx context.Context, name string, centerOffset mgl32.Vec3) (*model.Model, error) {
	key := encoding.LowerASCII(name)

	l.mu.Lock()
	defer l.mu.Unlock()

	if m, ok := l.cache[key]; ok {
		l.metrics.CacheHit()
		return m, nil
	}

	ext := l.extension(key)
	parser, ok := l.registry.Resolve(ext)
	if !ok {
		l.log.Warn("no parser for model",
			zap.String("model", key),
			zap.String("ext", ext),
		)
		l.metrics.MissingParser()
		return nil, fmt.Errorf("%w %q (extension %q)", ErrNoParser, key, ext)
	}

	start := time.Now()
	m, err := parser.Load(key)
	if err != nil {
		l.metrics.ParseFailure()
		return nil, fmt.Errorf("loading model %q: %w", key, err)
	}
	if m == nil || m.Root == nil {
		l.metrics.ParseFailure()
		return nil, fmt.Errorf("loading model %q: parser returned no piece tree", key)
	}
	elapsed := time.Since(start)

	m.Name = key
	m.RelMidPos = m.RelMidPos.Add(centerOffset)

	l.gpu.RequestRealization(ctx, parser, m.Root)
	if l.lowDetail != nil {
		l.lowDetail.Generate(m)
	}

	l.cache[key] = m
	l.metrics.ObserveLoad(m.Type.String(), elapsed.Seconds())
	l.log.Info("model loaded",
		zap.String("model", key),
		zap.Stringer("type", m.Type),
		zap.Int("pieces", m.NumObjects),
		zap.Duration("elapsed", elapsed),
	)

	return m, nil
}

// Cached returns the cached model for name without loading it.
func (l *Loader) Cached(name string) (*model.Model, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.cache[encoding.LowerASCII(name)]
	return m, ok
}

// Len returns the number of cached models.
func (l *Loader) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.cache)
}

// Names returns the keys of every cached model, sorted.
func (l *Loader) Names() []string {
	l.mu.Lock()
	names := make([]string, 0, len(l.cache))
	for name := range l.cache {
		names = append(names, name)
	}
	l.mu.Unlock()

	sort.Strings(names)
	return names
}

// CreateLocalModel gives actor a fresh local model of its current model and
// queues the binding of its draw handles. A previous local model is queued
// for deletion. Actors without a model get none.
func (l *Loader) CreateLocalModel(ctx context.Context, actor Actor) *model.LocalModel {
	m := actor.Model()
	if m == nil {
		return nil
	}
	if actor.LocalModel() != nil {
		l.gpu.RequestDeletion(actor)
	}

	lm := model.NewLocalModel(m)
	actor.SetLocalModel(lm)
	l.gpu.RequestBinding(ctx, actor)
	return lm
}

// DeleteLocalModel detaches the actor's local model and queues it for release.
func (l *Loader) DeleteLocalModel(actor Actor) {
	if actor.LocalModel() == nil {
		return
	}
	l.gpu.RequestDeletion(actor)
	actor.SetLocalModel(nil)
}

// Update drains deferred GPU work. Call it once per frame from the render thread.
func (l *Loader) Update(ctx context.Context) (gpu.FlushStats, error) {
	return l.gpu.Flush(ctx)
}

// Close frees the draw lists of every cached model, drops pending GPU work and
// closes the registered parsers. Call it from the render thread.
func (l *Loader) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, m := range l.cache {
		l.gpu.ReleaseTree(m.Root)
	}
	n := len(l.cache)
	l.cache = make(map[string]*model.Model)
	l.gpu.Close()

	l.log.Info("model loader closed", zap.Int("models", n))
	return l.registry.Close()
}
