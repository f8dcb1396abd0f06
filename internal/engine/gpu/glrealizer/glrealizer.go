// Package glrealizer compiles model pieces into OpenGL vertex arrays.
package glrealizer

import (
	"errors"
	"unsafe"

	"github.com/go-gl/gl/v4.1-core/gl"

	"github.com/Faultbox/midgard-models/internal/engine/gpu"
	"github.com/Faultbox/midgard-models/internal/engine/model"
)

var errNoVertexArray = errors.New("glrealizer: glGenVertexArrays returned 0")

type mesh struct {
	vao         uint32
	vbo         uint32
	vertexCount int32
}

// Realizer uploads each compiled piece as one VAO/VBO pair holding an
// interleaved position/normal/texcoord triangle list. Handles index an
// internal table, so 0 is never handed out.
//
// All methods must be called on the thread owning the GL context.
type Realizer struct {
	meshes map[model.DrawHandle]mesh
	next   model.DrawHandle
	batch  gpu.Batch
}

// New creates a Realizer. gl.Init must already have succeeded.
func New() *Realizer {
	return &Realizer{meshes: make(map[model.DrawHandle]mesh)}
}

// Compile records draw and uploads the result.
func (r *Realizer) Compile(draw func(dc gpu.DrawContext)) (model.DrawHandle, error) {
	r.batch.Reset()
	draw(&r.batch)

	var m mesh
	gl.GenVertexArrays(1, &m.vao)
	if m.vao == 0 {
		return model.NoDrawHandle, errNoVertexArray
	}
	gl.BindVertexArray(m.vao)

	vertices := r.batch.Vertices
	if len(vertices) > 0 {
		gl.GenBuffers(1, &m.vbo)
		gl.BindBuffer(gl.ARRAY_BUFFER, m.vbo)
		vertexSize := int(unsafe.Sizeof(model.Vertex{}))
		gl.BufferData(gl.ARRAY_BUFFER, len(vertices)*vertexSize, unsafe.Pointer(&vertices[0]), gl.STATIC_DRAW)

		// Position
		gl.VertexAttribPointerWithOffset(0, 3, gl.FLOAT, false, int32(vertexSize), 0)
		gl.EnableVertexAttribArray(0)
		// Normal
		gl.VertexAttribPointerWithOffset(1, 3, gl.FLOAT, false, int32(vertexSize), 3*4)
		gl.EnableVertexAttribArray(1)
		// TexCoord
		gl.VertexAttribPointerWithOffset(2, 2, gl.FLOAT, false, int32(vertexSize), 6*4)
		gl.EnableVertexAttribArray(2)
	}
	gl.BindVertexArray(0)
	m.vertexCount = int32(len(vertices))

	r.next++
	r.meshes[r.next] = m
	return r.next, nil
}

// Release deletes the GL objects behind h.
func (r *Realizer) Release(h model.DrawHandle) {
	m, ok := r.meshes[h]
	if !ok {
		return
	}
	if m.vbo != 0 {
		gl.DeleteBuffers(1, &m.vbo)
	}
	gl.DeleteVertexArrays(1, &m.vao)
	delete(r.meshes, h)
}

// Draw issues the draw call for h. Unknown or empty handles draw nothing.
func (r *Realizer) Draw(h model.DrawHandle) {
	m, ok := r.meshes[h]
	if !ok || m.vertexCount == 0 {
		return
	}
	gl.BindVertexArray(m.vao)
	gl.DrawArrays(gl.TRIANGLES, 0, m.vertexCount)
	gl.BindVertexArray(0)
}

// Len returns the number of live meshes.
func (r *Realizer) Len() int {
	return len(r.meshes)
}

// Destroy releases every mesh.
func (r *Realizer) Destroy() {
	for h := range r.meshes {
		r.Release(h)
	}
}
