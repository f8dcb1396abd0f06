package loader

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Faultbox/midgard-models/internal/engine/gpu"
	"github.com/Faultbox/midgard-models/internal/engine/model"
)

// countingParser builds a small fixed tree and counts its invocations.
type countingParser struct {
	loads  atomic.Int32
	closes atomic.Int32
	draws  atomic.Int32
	fail   error
}

func (p *countingParser) Load(name string) (*model.Model, error) {
	p.loads.Add(1)
	if p.fail != nil {
		return nil, p.fail
	}

	root := &model.Piece{Name: "body"}
	root.Vertices = []model.Vertex{
		{Position: mgl32.Vec3{-1, 0, -1}},
		{Position: mgl32.Vec3{1, 2, 1}},
		{Position: mgl32.Vec3{1, 0, -1}},
	}
	root.Faces = []model.Face{{Indices: [3]uint32{0, 1, 2}}}
	root.FinalizeGeometry()

	turret := &model.Piece{Name: "turret", Offset: mgl32.Vec3{0, 2, 0}}
	barrel := &model.Piece{Name: "barrel", Offset: mgl32.Vec3{0, 0, 1}}
	turret.FinalizeGeometry()
	barrel.FinalizeGeometry()
	turret.AddChild(barrel)
	root.AddChild(turret)

	m := &model.Model{Name: name, Type: model.TypeRSM, Root: root}
	m.Finalize()
	return m, nil
}

func (p *countingParser) Draw(piece *model.Piece, dc DrawContext) {
	p.draws.Add(1)
	dc.Begin()
	for _, v := range piece.Vertices {
		dc.Vertex(v.Position)
	}
	dc.End()
}

func (p *countingParser) Close() error {
	p.closes.Add(1)
	return nil
}

type fakeLowDetail struct {
	mu     sync.Mutex
	models []*model.Model
}

func (g *fakeLowDetail) Generate(m *model.Model) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.models = append(g.models, m)
}

type unit struct {
	mu    sync.Mutex
	model *model.Model
	local *model.LocalModel
}

func (u *unit) Model() *model.Model {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.model
}

func (u *unit) LocalModel() *model.LocalModel {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.local
}

func (u *unit) SetLocalModel(lm *model.LocalModel) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.local = lm
}

func newTestLoader(t *testing.T, mode gpu.Mode) (*Loader, *countingParser, *gpu.NullRealizer) {
	t.Helper()
	p := &countingParser{}
	reg := NewRegistry()
	reg.Register("rsm", p)

	r := gpu.NewNullRealizer()
	l := New(Options{
		Registry: reg,
		GPU:      gpu.NewManager(gpu.Options{Mode: mode, Realizer: r}),
	})
	return l, p, r
}

func TestLoadModel_Idempotent(t *testing.T) {
	l, p, _ := newTestLoader(t, gpu.ModeImmediate)
	ctx := context.Background()

	first, err := l.LoadModel(ctx, "data/model/Tank.rsm", mgl32.Vec3{})
	require.NoError(t, err)
	second, err := l.LoadModel(ctx, "DATA/MODEL/tank.RSM", mgl32.Vec3{5, 5, 5})
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, int32(1), p.loads.Load())
	assert.Equal(t, "data/model/tank.rsm", first.Name)
	assert.Equal(t, 1, l.Len())

	cached, ok := l.Cached("Data/Model/Tank.rsm")
	assert.True(t, ok)
	assert.Same(t, first, cached)

	_, err = l.LoadModel(ctx, "data/model/apc.rsm", mgl32.Vec3{})
	require.NoError(t, err)
	assert.Equal(t, []string{"data/model/apc.rsm", "data/model/tank.rsm"}, l.Names())
}

func TestLoadModel_MissingParser(t *testing.T) {
	l, p, _ := newTestLoader(t, gpu.ModeImmediate)
	extsBefore := l.Registry().Extensions()

	m, err := l.LoadModel(context.Background(), "unit.s3o", mgl32.Vec3{})

	assert.Nil(t, m)
	assert.True(t, errors.Is(err, ErrNoParser))
	assert.Zero(t, l.Len())
	assert.Equal(t, extsBefore, l.Registry().Extensions())
	assert.Zero(t, p.loads.Load())
}

func TestLoadModel_ParseFailurePropagates(t *testing.T) {
	boom := errors.New("truncated node table")
	p := &countingParser{fail: boom}
	reg := NewRegistry()
	reg.Register("rsm", p)
	l := New(Options{Registry: reg})

	m, err := l.LoadModel(context.Background(), "broken.rsm", mgl32.Vec3{})

	assert.Nil(t, m)
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, l.Len())
}

func TestLoadModel_CenterOffset(t *testing.T) {
	l, _, _ := newTestLoader(t, gpu.ModeImmediate)
	ctx := context.Background()

	a, err := l.LoadModel(ctx, "a/tank.rsm", mgl32.Vec3{1, 2, 3})
	require.NoError(t, err)
	b, err := l.LoadModel(ctx, "b/tank.rsm", mgl32.Vec3{-1, 0, 4})
	require.NoError(t, err)

	assert.NotSame(t, a, b)
	diff := a.RelMidPos.Sub(b.RelMidPos)
	assert.InDelta(t, 2, diff.X(), 1e-6)
	assert.InDelta(t, 2, diff.Y(), 1e-6)
	assert.InDelta(t, -1, diff.Z(), 1e-6)
}

func TestLoadModel_RealizesAndGeneratesLowDetail(t *testing.T) {
	p := &countingParser{}
	reg := NewRegistry()
	reg.Register("rsm", p)
	lod := &fakeLowDetail{}
	r := gpu.NewNullRealizer()
	l := New(Options{
		Registry:  reg,
		GPU:       gpu.NewManager(gpu.Options{Mode: gpu.ModeImmediate, Realizer: r}),
		LowDetail: lod,
	})

	m, err := l.LoadModel(context.Background(), "tank.rsm", mgl32.Vec3{})
	require.NoError(t, err)
	_, err = l.LoadModel(context.Background(), "tank.rsm", mgl32.Vec3{})
	require.NoError(t, err)

	assert.Len(t, lod.models, 1)
	assert.Equal(t, int32(3), p.draws.Load())
	assert.Equal(t, 3, r.Live())
	assert.Equal(t, 1, r.Triangles(m.Root.DrawList()))
}

func TestLoadModel_ConcurrentFirstLoad(t *testing.T) {
	l, p, _ := newTestLoader(t, gpu.ModeDeferred)

	const callers = 32
	results := make([]*model.Model, callers)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			m, err := l.LoadModel(context.Background(), "race.rsm", mgl32.Vec3{})
			assert.NoError(t, err)
			results[i] = m
		}(i)
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), p.loads.Load())
	for _, m := range results {
		assert.Same(t, results[0], m)
	}
	realize, _, _ := l.GPU().Pending()
	assert.Equal(t, 1, realize)
}

func TestLocalModel_DeferredFix(t *testing.T) {
	l, _, _ := newTestLoader(t, gpu.ModeDeferred)
	ctx := context.Background()

	m, err := l.LoadModel(ctx, "tank.rsm", mgl32.Vec3{})
	require.NoError(t, err)

	u := &unit{model: m}
	lm := l.CreateLocalModel(ctx, u)
	require.NotNil(t, lm)
	assert.Same(t, lm, u.LocalModel())
	assert.Len(t, lm.Pieces, m.NumObjects)
	assert.Equal(t, model.NoDrawHandle, lm.Root().DrawList)

	stats, err := l.Update(gpu.WithRenderThread(ctx))
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Realized)
	assert.Equal(t, 1, stats.Fixed)

	for i, lp := range lm.Pieces {
		orig := m.PieceByIndex(i)
		assert.NotEqual(t, model.NoDrawHandle, orig.DrawList())
		assert.Equal(t, orig.DrawList(), lp.DrawList)
	}
}

func TestLocalModel_DeleteBeforeFlush(t *testing.T) {
	l, _, _ := newTestLoader(t, gpu.ModeDeferred)
	ctx := context.Background()

	m, err := l.LoadModel(ctx, "tank.rsm", mgl32.Vec3{})
	require.NoError(t, err)
	u := &unit{model: m}
	lm := l.CreateLocalModel(ctx, u)

	l.DeleteLocalModel(u)
	assert.Nil(t, u.LocalModel())
	assert.False(t, lm.Released(), "release waits for the flush")

	stats, err := l.Update(gpu.WithRenderThread(ctx))
	require.NoError(t, err)
	assert.Zero(t, stats.Fixed)
	assert.Equal(t, 1, stats.Freed)
	assert.True(t, lm.Released())
}

func TestLocalModel_RemodelQueuesOldForDeletion(t *testing.T) {
	l, _, _ := newTestLoader(t, gpu.ModeDeferred)
	ctx := context.Background()

	m, err := l.LoadModel(ctx, "tank.rsm", mgl32.Vec3{})
	require.NoError(t, err)
	u := &unit{model: m}
	old := l.CreateLocalModel(ctx, u)
	current := l.CreateLocalModel(ctx, u)

	stats, err := l.Update(gpu.WithRenderThread(ctx))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Fixed)
	assert.Equal(t, 1, stats.Freed)
	assert.True(t, old.Released())
	assert.False(t, current.Released())
	assert.Equal(t, m.Root.DrawList(), current.Root().DrawList)
}

func TestCreateLocalModel_NoModel(t *testing.T) {
	l, _, _ := newTestLoader(t, gpu.ModeImmediate)
	assert.Nil(t, l.CreateLocalModel(context.Background(), &unit{}))
}

func TestLocalModels_DeterministicAcrossActors(t *testing.T) {
	l, _, _ := newTestLoader(t, gpu.ModeImmediate)
	ctx := context.Background()
	m, err := l.LoadModel(ctx, "tank.rsm", mgl32.Vec3{})
	require.NoError(t, err)

	a := l.CreateLocalModel(ctx, &unit{model: m})
	b := l.CreateLocalModel(ctx, &unit{model: m})

	require.Len(t, b.Pieces, len(a.Pieces))
	index := func(lm *model.LocalModel, lp *model.LocalModelPiece) int {
		for i, p := range lm.Pieces {
			if p == lp {
				return i
			}
		}
		return -1
	}
	for i := range a.Pieces {
		pa, pb := a.Pieces[i], b.Pieces[i]
		assert.Equal(t, pa.Name, pb.Name)
		assert.Equal(t, index(a, pa.Parent), index(b, pb.Parent))
		require.Len(t, pb.Children, len(pa.Children))
		for j := range pa.Children {
			assert.Equal(t, index(a, pa.Children[j]), index(b, pb.Children[j]))
		}
		if pa.ColVol != nil {
			assert.NotSame(t, pa.ColVol, pb.ColVol)
		}
	}
}

func TestClose_ReleasesEverything(t *testing.T) {
	p := &countingParser{}
	reg := NewRegistry()
	reg.Register("rsm", p)
	reg.Register("rsm2", p)
	reg.Register("rsx", p)
	r := gpu.NewNullRealizer()
	l := New(Options{
		Registry: reg,
		GPU:      gpu.NewManager(gpu.Options{Mode: gpu.ModeImmediate, Realizer: r}),
	})

	_, err := l.LoadModel(context.Background(), "tank.rsm", mgl32.Vec3{})
	require.NoError(t, err)
	require.Equal(t, 3, r.Live())

	require.NoError(t, l.Close())
	assert.Zero(t, r.Live())
	assert.Zero(t, l.Len())
	assert.Equal(t, int32(1), p.closes.Load())
	assert.Zero(t, reg.Len())
}
