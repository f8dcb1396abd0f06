package model

import (
	"sync/atomic"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/Faultbox/midgard-models/internal/engine/collision"
)

// Piece is one node of a shared model tree. Pieces are immutable once the
// owning Model is cached, apart from the draw handle which realization fills
// in from the rendering thread.
type Piece struct {
	Name   string
	Type   ModelType
	Offset mgl32.Vec3 // Translation relative to the parent piece

	// Children are owned by this piece; releasing a piece releases its subtree.
	Children []*Piece

	drawList atomic.Uint32

	IsEmpty bool // No drawable geometry
	ColVol  *collision.Volume

	Vertices []Vertex
	Faces    []Face
	Bounds   Bounds // Piece-local bounds of Vertices
}

// AddChild appends c to the piece's children.
func (p *Piece) AddChild(c *Piece) {
	p.Children = append(p.Children, c)
}

// DrawList returns the realized draw handle, or NoDrawHandle.
func (p *Piece) DrawList() DrawHandle {
	return DrawHandle(p.drawList.Load())
}

// SetDrawList stores the realized draw handle.
func (p *Piece) SetDrawList(h DrawHandle) {
	p.drawList.Store(uint32(h))
}

// Walk visits the subtree in pre-order: parent first, then children in order.
// This is the canonical piece ordering that LocalModel indices follow.
func (p *Piece) Walk(fn func(*Piece)) {
	fn(p)
	for _, c := range p.Children {
		c.Walk(fn)
	}
}

// Count returns the number of pieces in the subtree rooted at p.
func (p *Piece) Count() int {
	n := 0
	p.Walk(func(*Piece) { n++ })
	return n
}

// Release drops the subtree, handing every realized draw handle to release.
func (p *Piece) Release(release func(DrawHandle)) {
	for _, c := range p.Children {
		c.Release(release)
	}
	p.Children = nil
	if h := DrawHandle(p.drawList.Swap(0)); h != NoDrawHandle && release != nil {
		release(h)
	}
}

// FinalizeGeometry computes Bounds, IsEmpty and the default collision volume
// from the piece's vertex data.
func (p *Piece) FinalizeGeometry() {
	p.Bounds = EmptyBounds()
	for i := range p.Vertices {
		p.Bounds.Extend(p.Vertices[i].Position)
	}
	p.IsEmpty = len(p.Faces) == 0 || !p.Bounds.Valid()
	if p.IsEmpty {
		p.ColVol = collision.NewFromBounds(mgl32.Vec3{}, mgl32.Vec3{})
		return
	}
	p.ColVol = collision.NewFromBounds(p.Bounds.Min, p.Bounds.Max)
}

// Model is a shared, cached model tree for one named resource.
type Model struct {
	Name       string // Canonical lowercase resource name, the cache key
	Type       ModelType
	Root       *Piece
	NumObjects int

	Radius    float32
	Height    float32
	Mins      mgl32.Vec3
	Maxs      mgl32.Vec3
	RelMidPos mgl32.Vec3 // Bounding midpoint, shifted by the load-time center offset

	Textures []string
}

// Finalize derives NumObjects and the model dimensions from the piece tree.
// Parsers call it once the tree is fully built.
func (m *Model) Finalize() {
	if m.Root == nil {
		m.NumObjects = 0
		return
	}
	m.NumObjects = m.Root.Count()

	total := EmptyBounds()
	accumulateBounds(m.Root, mgl32.Vec3{}, &total)
	if !total.Valid() {
		total = Bounds{}
	}

	m.Mins = total.Min
	m.Maxs = total.Max
	m.Height = total.Max[1]
	m.Radius = total.Size().Len() * 0.5
	m.RelMidPos = total.Center()
}

func accumulateBounds(p *Piece, origin mgl32.Vec3, total *Bounds) {
	pos := origin.Add(p.Offset)
	if !p.IsEmpty {
		total.Union(p.Bounds.Translate(pos))
	}
	for _, c := range p.Children {
		accumulateBounds(c, pos, total)
	}
}

// PieceByIndex returns the piece at pre-order index i, or nil if out of range.
func (m *Model) PieceByIndex(i int) *Piece {
	if m.Root == nil || i < 0 {
		return nil
	}
	var found *Piece
	n := 0
	m.Root.Walk(func(p *Piece) {
		if n == i {
			found = p
		}
		n++
	})
	return found
}

// Release frees the whole tree. release receives each realized draw handle.
func (m *Model) Release(release func(DrawHandle)) {
	if m.Root != nil {
		m.Root.Release(release)
		m.Root = nil
	}
}
