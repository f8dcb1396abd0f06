package gpu

import (
	"sync"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/Faultbox/midgard-models/internal/engine/model"
)

// Batch records DrawContext commands as a flat triangle list. Normal and
// TexCoord set the attributes of the following Vertex calls, the same way
// immediate-mode GL does. Vertices issued outside Begin/End are dropped.
type Batch struct {
	Vertices []model.Vertex

	open     bool
	normal   mgl32.Vec3
	texCoord mgl32.Vec2
}

// Begin starts a run of triangles.
func (b *Batch) Begin() {
	b.open = true
}

// Normal sets the normal of subsequent vertices.
func (b *Batch) Normal(n mgl32.Vec3) {
	b.normal = n
}

// TexCoord sets the texture coordinate of subsequent vertices.
func (b *Batch) TexCoord(uv mgl32.Vec2) {
	b.texCoord = uv
}

// Vertex appends a vertex.
func (b *Batch) Vertex(p mgl32.Vec3) {
	if !b.open {
		return
	}
	b.Vertices = append(b.Vertices, model.Vertex{
		Position: p,
		Normal:   b.normal,
		TexCoord: b.texCoord,
	})
}

// End closes the run. Trailing vertices that do not form a full triangle are discarded.
func (b *Batch) End() {
	b.open = false
	if extra := len(b.Vertices) % 3; extra != 0 {
		b.Vertices = b.Vertices[:len(b.Vertices)-extra]
	}
}

// Triangles returns the number of complete triangles recorded.
func (b *Batch) Triangles() int {
	return len(b.Vertices) / 3
}

// Reset clears the batch for reuse.
func (b *Batch) Reset() {
	b.Vertices = b.Vertices[:0]
	b.open = false
	b.normal = mgl32.Vec3{}
	b.texCoord = mgl32.Vec2{}
}

// DrawPiece emits the faces of piece as one triangle run. Two-sided faces get
// a mirrored back face with the normal flipped. Empty pieces draw nothing.
func DrawPiece(piece *model.Piece, dc DrawContext) {
	if piece.IsEmpty {
		return
	}
	dc.Begin()
	for _, f := range piece.Faces {
		if !model.ValidFace(f, len(piece.Vertices)) {
			continue
		}
		for _, idx := range f.Indices {
			emitVertex(dc, piece.Vertices[idx], false)
		}
		if f.TwoSided {
			for j := 2; j >= 0; j-- {
				emitVertex(dc, piece.Vertices[f.Indices[j]], true)
			}
		}
	}
	dc.End()
}

func emitVertex(dc DrawContext, v model.Vertex, flip bool) {
	n := v.Normal
	if flip {
		n = n.Mul(-1)
	}
	dc.Normal(n)
	dc.TexCoord(v.TexCoord)
	dc.Vertex(v.Position)
}

// NullRealizer records geometry without touching a GPU. Tools and headless
// runs use it so that the realization and fix passes still hand out handles.
type NullRealizer struct {
	mu        sync.Mutex
	next      model.DrawHandle
	triangles map[model.DrawHandle]int
}

// NewNullRealizer creates a NullRealizer.
func NewNullRealizer() *NullRealizer {
	return &NullRealizer{triangles: make(map[model.DrawHandle]int)}
}

// Compile runs draw against a scratch batch and returns a fresh handle.
func (r *NullRealizer) Compile(draw func(dc DrawContext)) (model.DrawHandle, error) {
	var b Batch
	draw(&b)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	r.triangles[r.next] = b.Triangles()
	return r.next, nil
}

// Release forgets a handle.
func (r *NullRealizer) Release(h model.DrawHandle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.triangles, h)
}

// Triangles returns the triangle count recorded for h.
func (r *NullRealizer) Triangles(h model.DrawHandle) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.triangles[h]
}

// Live returns the number of handles not yet released.
func (r *NullRealizer) Live() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.triangles)
}
