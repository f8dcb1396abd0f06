// Package world places units in the scene and keeps their models instanced.
package world

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap"

	"github.com/Faultbox/midgard-models/internal/engine/loader"
	"github.com/Faultbox/midgard-models/internal/engine/model"
	"github.com/Faultbox/midgard-models/internal/game/entity"
)

// ErrUnknownUnit is returned for unit IDs the world does not hold.
var ErrUnknownUnit = errors.New("unknown unit")

// Spawn describes a unit to place.
type Spawn struct {
	Name     string
	Type     entity.Type
	Model    string
	Position mgl32.Vec3
}

// Options configures a World.
type Options struct {
	Loader *loader.Loader
	// Workers is the number of goroutines Populate loads models on. Zero loads
	// on the calling goroutine, which immediate GPU mode needs on the render thread.
	Workers int
	// CenterOffset returns the midpoint shift for a model name. Optional.
	CenterOffset func(name string) mgl32.Vec3
	Logger       *zap.Logger
}

// World owns the units and drives the loader for them. Population runs on
// worker goroutines; with a deferred GPU manager the render loop must keep
// calling the loader's Update for the units to become drawable.
type World struct {
	loader       *loader.Loader
	units        *entity.Manager
	workers      int
	centerOffset func(string) mgl32.Vec3
	log          *zap.Logger

	nextID atomic.Uint32
}

// New creates an empty world.
func New(opts Options) *World {
	w := &World{
		loader:       opts.Loader,
		units:        entity.NewManager(),
		workers:      opts.Workers,
		centerOffset: opts.CenterOffset,
		log:          opts.Logger,
	}
	if w.centerOffset == nil {
		w.centerOffset = func(string) mgl32.Vec3 { return mgl32.Vec3{} }
	}
	if w.log == nil {
		w.log = zap.NewNop()
	}
	w.log = w.log.Named("world")
	return w
}

// Units returns the unit manager.
func (w *World) Units() *entity.Manager {
	return w.units
}

// Populate loads the model of every spawn and adds a unit with a fresh local
// model for each one that loaded. Spawns whose model has no parser are
// skipped. Other failures are joined into the returned error; the remaining
// spawns are still placed.
func (w *World) Populate(ctx context.Context, spawns []Spawn) (int, error) {
	if w.workers < 1 {
		return w.populateInline(ctx, spawns)
	}

	jobs := make(chan Spawn)
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		errs  []error
		added atomic.Int32
	)
	fail := func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	}

	for i := 0; i < w.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for s := range jobs {
				ok, err := w.spawn(ctx, s)
				if err != nil {
					fail(err)
				}
				if ok {
					added.Add(1)
				}
			}
		}()
	}

feed:
	for _, s := range spawns {
		if err := ctx.Err(); err != nil {
			fail(err)
			break
		}
		select {
		case jobs <- s:
		case <-ctx.Done():
			fail(ctx.Err())
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	w.log.Info("world populated",
		zap.Int("requested", len(spawns)),
		zap.Int32("added", added.Load()),
		zap.Int("failed", len(errs)),
	)
	return int(added.Load()), errors.Join(errs...)
}

func (w *World) populateInline(ctx context.Context, spawns []Spawn) (int, error) {
	var (
		errs  []error
		added int
	)
	for _, s := range spawns {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		ok, err := w.spawn(ctx, s)
		if err != nil {
			errs = append(errs, err)
		}
		if ok {
			added++
		}
	}
	w.log.Info("world populated",
		zap.Int("requested", len(spawns)),
		zap.Int("added", added),
		zap.Int("failed", len(errs)),
	)
	return added, errors.Join(errs...)
}

func (w *World) spawn(ctx context.Context, s Spawn) (bool, error) {
	m, err := w.loader.LoadModel(ctx, s.Model, w.centerOffset(s.Model))
	if errors.Is(err, loader.ErrNoParser) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("spawning %q: %w", s.Name, err)
	}

	u := entity.NewUnit(w.nextID.Add(1), s.Type, s.Name)
	u.Position = s.Position
	u.SetModel(m)
	w.loader.CreateLocalModel(ctx, u)
	w.units.Add(u)
	return true, nil
}

// Remodel switches a unit to another model. The old local model is queued
// for deletion and the new one for binding.
func (w *World) Remodel(ctx context.Context, id uint32, modelName string) error {
	u := w.units.Get(id)
	if u == nil {
		return fmt.Errorf("%w: %d", ErrUnknownUnit, id)
	}
	m, err := w.loader.LoadModel(ctx, modelName, w.centerOffset(modelName))
	if err != nil {
		return err
	}
	u.SetModel(m)
	w.loader.CreateLocalModel(ctx, u)
	return nil
}

// Despawn removes a unit and queues its local model for deletion.
func (w *World) Despawn(id uint32) error {
	u := w.units.Remove(id)
	if u == nil {
		return fmt.Errorf("%w: %d", ErrUnknownUnit, id)
	}
	w.loader.DeleteLocalModel(u)
	return nil
}

// Clear despawns every unit.
func (w *World) Clear() {
	for _, u := range w.units.Clear() {
		w.loader.DeleteLocalModel(u)
	}
}

// Bounds returns the world-space box around every unit's model, or zero
// bounds for an empty world.
func (w *World) Bounds() model.Bounds {
	total := model.EmptyBounds()
	for _, u := range w.units.All() {
		m := u.Model()
		if m == nil {
			continue
		}
		total.Union(model.Bounds{Min: m.Mins, Max: m.Maxs}.Translate(u.Position))
	}
	if !total.Valid() {
		return model.Bounds{}
	}
	return total
}

// GridLayout places one spawn per model name on a square grid in the XZ
// plane, spacing units apart and centered on the origin.
func GridLayout(models []string, spacing float32) []Spawn {
	if len(models) == 0 {
		return nil
	}
	cols := int(math.Ceil(math.Sqrt(float64(len(models)))))
	half := float32(cols-1) * spacing / 2

	spawns := make([]Spawn, len(models))
	for i, name := range models {
		row, col := i/cols, i%cols
		spawns[i] = Spawn{
			Name:     fmt.Sprintf("unit-%d", i+1),
			Type:     entity.TypeProp,
			Model:    name,
			Position: mgl32.Vec3{float32(col)*spacing - half, 0, float32(row)*spacing - half},
		}
	}
	return spawns
}
