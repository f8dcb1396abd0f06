package gpu

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
)

func TestBatch_RecordsAttributes(t *testing.T) {
	var b Batch
	b.Begin()
	b.Normal(mgl32.Vec3{0, 1, 0})
	b.TexCoord(mgl32.Vec2{0.5, 0.5})
	b.Vertex(mgl32.Vec3{0, 0, 0})
	b.Vertex(mgl32.Vec3{1, 0, 0})
	b.TexCoord(mgl32.Vec2{1, 1})
	b.Vertex(mgl32.Vec3{0, 0, 1})
	b.End()

	assert.Equal(t, 1, b.Triangles())
	assert.Equal(t, mgl32.Vec3{0, 1, 0}, b.Vertices[2].Normal)
	assert.Equal(t, mgl32.Vec2{0.5, 0.5}, b.Vertices[1].TexCoord)
	assert.Equal(t, mgl32.Vec2{1, 1}, b.Vertices[2].TexCoord)
}

func TestBatch_DropsIncompleteAndUnopened(t *testing.T) {
	var b Batch
	b.Vertex(mgl32.Vec3{9, 9, 9})
	b.Begin()
	for i := 0; i < 5; i++ {
		b.Vertex(mgl32.Vec3{float32(i), 0, 0})
	}
	b.End()

	assert.Equal(t, 1, b.Triangles())
	assert.Len(t, b.Vertices, 3)

	b.Reset()
	assert.Zero(t, b.Triangles())
}

func TestNullRealizer(t *testing.T) {
	r := NewNullRealizer()

	h1, err := r.Compile(func(dc DrawContext) {
		dc.Begin()
		dc.Vertex(mgl32.Vec3{})
		dc.Vertex(mgl32.Vec3{1, 0, 0})
		dc.Vertex(mgl32.Vec3{0, 1, 0})
		dc.End()
	})
	assert.NoError(t, err)
	h2, err := r.Compile(func(DrawContext) {})
	assert.NoError(t, err)

	assert.NotEqual(t, h1, h2)
	assert.Equal(t, 1, r.Triangles(h1))
	assert.Equal(t, 0, r.Triangles(h2))
	assert.Equal(t, 2, r.Live())

	r.Release(h1)
	assert.Equal(t, 1, r.Live())
}
