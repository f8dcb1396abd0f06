package gpu

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/Faultbox/midgard-models/internal/engine/model"
	"github.com/Faultbox/midgard-models/internal/metrics"
)

// Options configures a Manager.
type Options struct {
	Mode     Mode
	Realizer Realizer
	Logger   *zap.Logger
	Metrics  *metrics.Metrics
}

// FlushStats summarizes one Flush.
type FlushStats struct {
	Realized int // Pieces compiled
	Failed   int // Pieces whose compilation failed
	Fixed    int // Actors re-bound
	Freed    int // Local models released
}

type realizeRequest struct {
	drawer Drawer
	root   *model.Piece
}

// fixRequest pins the model and local model an actor held when the binding
// was requested. The actor may be re-modelled before the next Flush.
type fixRequest struct {
	actor Actor
	model *model.Model
	local *model.LocalModel
}

// Manager queues GPU draw-resource work issued off the render thread.
type Manager struct {
	mode     Mode
	realizer Realizer
	log      *zap.Logger
	metrics  *metrics.Metrics

	mu          sync.Mutex
	createLists []realizeRequest
	fixActors   []*fixRequest
	fixSet      map[Actor]*fixRequest
	deleteLocal []*model.LocalModel

	noRealizer sync.Once
}

// NewManager creates a resource manager. The mode is fixed for its lifetime.
func NewManager(opts Options) *Manager {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		mode:     opts.Mode,
		realizer: opts.Realizer,
		log:      log.Named("gpu"),
		metrics:  opts.Metrics,
		fixSet:   make(map[Actor]*fixRequest),
	}
}

// Mode returns the execution mode chosen at construction.
func (m *Manager) Mode() Mode {
	return m.mode
}

func (m *Manager) immediate(ctx context.Context) bool {
	return m.mode == ModeImmediate || OnRenderThread(ctx)
}

// RequestRealization compiles draw lists for every piece under root. On the
// render thread (or in immediate mode) this happens before returning;
// otherwise the tree is queued for the next Flush.
func (m *Manager) RequestRealization(ctx context.Context, drawer Drawer, root *model.Piece) {
	if root == nil {
		return
	}
	if m.immediate(ctx) {
		ok, failed := m.realize(drawer, root)
		m.metrics.Realized(ok, failed)
		return
	}

	m.mu.Lock()
	m.createLists = append(m.createLists, realizeRequest{drawer: drawer, root: root})
	m.publishPendingLocked()
	m.mu.Unlock()
}

// RequestBinding schedules a fix pass copying realized draw handles into the
// actor's local model. The actor's current model and local model are captured
// now; a later re-model does not change what the pending fix touches.
// Repeated requests before a Flush collapse into one for the latest pair.
func (m *Manager) RequestBinding(ctx context.Context, actor Actor) {
	req := &fixRequest{actor: actor, model: actor.Model(), local: actor.LocalModel()}
	if m.immediate(ctx) {
		if model.FixLocalModel(req.model, req.local) {
			m.metrics.Fixed(1)
		}
		return
	}

	m.mu.Lock()
	if queued, ok := m.fixSet[actor]; ok {
		queued.model, queued.local = req.model, req.local
	} else {
		m.fixSet[actor] = req
		m.fixActors = append(m.fixActors, req)
	}
	m.publishPendingLocked()
	m.mu.Unlock()
}

// RequestDeletion releases the actor's local model. In deferred mode the
// release waits for the next Flush, and any pending fix for the actor is
// dropped since the deletion supersedes it.
func (m *Manager) RequestDeletion(actor Actor) {
	lm := actor.LocalModel()

	if m.mode == ModeImmediate {
		if lm != nil {
			lm.Release()
			m.metrics.Freed(1)
		}
		return
	}

	m.mu.Lock()
	m.dropFixLocked(actor)
	if lm != nil {
		m.deleteLocal = append(m.deleteLocal, lm)
	}
	m.publishPendingLocked()
	m.mu.Unlock()
}

func (m *Manager) dropFixLocked(actor Actor) {
	if _, queued := m.fixSet[actor]; !queued {
		return
	}
	delete(m.fixSet, actor)
	for i, req := range m.fixActors {
		if req.actor == actor {
			m.fixActors = append(m.fixActors[:i], m.fixActors[i+1:]...)
			break
		}
	}
}

// Flush drains the queues on the render thread: realization first, then the
// fix passes that depend on it, then deletions. Requests arriving while Flush
// runs are left for the next call.
func (m *Manager) Flush(ctx context.Context) (FlushStats, error) {
	var stats FlushStats
	if m.mode == ModeDeferred && !OnRenderThread(ctx) {
		return stats, ErrNotRenderThread
	}

	m.mu.Lock()
	createLists := m.createLists
	fixActors := m.fixActors
	deleteLocal := m.deleteLocal
	m.createLists = nil
	m.fixActors = nil
	m.fixSet = make(map[Actor]*fixRequest)
	m.deleteLocal = nil
	m.publishPendingLocked()
	m.mu.Unlock()

	for _, req := range createLists {
		ok, failed := m.realize(req.drawer, req.root)
		stats.Realized += ok
		stats.Failed += failed
	}

	for _, req := range fixActors {
		if model.FixLocalModel(req.model, req.local) {
			stats.Fixed++
		}
	}

	for _, lm := range deleteLocal {
		lm.Release()
		stats.Freed++
	}

	if len(createLists) > 0 || stats.Fixed > 0 || stats.Freed > 0 {
		m.log.Debug("flushed deferred gpu work",
			zap.Int("trees", len(createLists)),
			zap.Int("realized", stats.Realized),
			zap.Int("failed", stats.Failed),
			zap.Int("fixed", stats.Fixed),
			zap.Int("freed", stats.Freed),
		)
	}
	m.metrics.Realized(stats.Realized, stats.Failed)
	m.metrics.Fixed(stats.Fixed)
	m.metrics.Freed(stats.Freed)

	return stats, nil
}

// realize compiles draw lists for root and its subtree in pre-order.
// Pieces that already hold a handle are skipped.
func (m *Manager) realize(drawer Drawer, root *model.Piece) (ok, failed int) {
	if m.realizer == nil {
		m.noRealizer.Do(func() {
			m.log.Warn("no realizer configured, pieces stay without draw lists",
				zap.String("piece", root.Name),
			)
		})
		return 0, 0
	}
	root.Walk(func(p *model.Piece) {
		if p.DrawList() != model.NoDrawHandle {
			return
		}
		h, err := m.realizer.Compile(func(dc DrawContext) {
			drawer.Draw(p, dc)
		})
		if err != nil {
			failed++
			m.log.Warn("failed to compile draw list",
				zap.String("piece", p.Name),
				zap.Error(err),
			)
			return
		}
		p.SetDrawList(h)
		ok++
	})
	return ok, failed
}

// ReleaseTree frees every draw list under root. Must run on the render thread.
func (m *Manager) ReleaseTree(root *model.Piece) {
	if root == nil {
		return
	}
	root.Release(func(h model.DrawHandle) {
		if m.realizer != nil {
			m.realizer.Release(h)
		}
	})
}

// Pending returns the current queue lengths.
func (m *Manager) Pending() (realize, fix, deletion int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.createLists), len(m.fixActors), len(m.deleteLocal)
}

func (m *Manager) publishPendingLocked() {
	m.metrics.SetPending(len(m.createLists), len(m.fixActors), len(m.deleteLocal))
}

// Close discards pending realization and fix work and releases local models
// still waiting for deletion.
func (m *Manager) Close() {
	m.mu.Lock()
	deleteLocal := m.deleteLocal
	m.createLists = nil
	m.fixActors = nil
	m.fixSet = make(map[Actor]*fixRequest)
	m.deleteLocal = nil
	m.publishPendingLocked()
	m.mu.Unlock()

	for _, lm := range deleteLocal {
		lm.Release()
	}
	m.metrics.Freed(len(deleteLocal))
}
