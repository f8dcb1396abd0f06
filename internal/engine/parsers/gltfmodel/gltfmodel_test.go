package gltfmodel

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Faultbox/midgard-models/internal/engine/gpu"
	"github.com/Faultbox/midgard-models/internal/engine/loader"
	"github.com/Faultbox/midgard-models/internal/engine/model"
)

var errMissing = errors.New("missing")

type mapSource map[string][]byte

func (s mapSource) Load(name string) ([]byte, error) {
	if data, ok := s[name]; ok {
		return data, nil
	}
	return nil, errMissing
}

// crateDocument has a two-sided base quad with an indexed mesh and a lid
// child that reuses a non-indexed triangle without normals.
func crateDocument() *gltf.Document {
	doc := gltf.NewDocument()

	quadPos := modeler.WritePosition(doc, [][3]float32{{0, 0, 0}, {1, 0, 0}, {1, 0, 1}, {0, 0, 1}})
	quadNormal := modeler.WriteNormal(doc, [][3]float32{{0, 1, 0}, {0, 1, 0}, {0, 1, 0}, {0, 1, 0}})
	quadUV := modeler.WriteTextureCoord(doc, [][2]float32{{0, 0}, {1, 0}, {1, 1}, {0, 1}})
	quadIdx := modeler.WriteIndices(doc, []uint16{0, 2, 1, 0, 3, 2, 0, 1, 1})

	triPos := modeler.WritePosition(doc, [][3]float32{{0, 0, 0}, {0, 0, 1}, {1, 0, 0}})

	doc.Materials = []*gltf.Material{{Name: "wood", DoubleSided: true}}
	doc.Meshes = []*gltf.Mesh{
		{Name: "quad", Primitives: []*gltf.Primitive{{
			Indices:    gltf.Index(quadIdx),
			Attributes: map[string]uint32{"POSITION": quadPos, "NORMAL": quadNormal, "TEXCOORD_0": quadUV},
			Material:   gltf.Index(0),
		}}},
		{Name: "tri", Primitives: []*gltf.Primitive{{
			Attributes: map[string]uint32{"POSITION": triPos},
		}}},
	}
	doc.Nodes = []*gltf.Node{
		{Name: "base", Mesh: gltf.Index(0), Children: []uint32{1}},
		{Name: "lid", Mesh: gltf.Index(1), Translation: [3]float32{0, 2, 0}, Scale: [3]float32{2, 2, 2}},
	}
	doc.Scenes = []*gltf.Scene{{Name: "crate", Nodes: []uint32{0}}}
	doc.Scene = gltf.Index(0)
	return doc
}

func encodeGLB(t *testing.T, doc *gltf.Document) []byte {
	t.Helper()
	var buf bytes.Buffer
	enc := gltf.NewEncoder(&buf)
	enc.AsBinary = true
	require.NoError(t, enc.Encode(doc))
	return buf.Bytes()
}

func TestBuild_Tree(t *testing.T) {
	m, err := Build(crateDocument())
	require.NoError(t, err)

	assert.Equal(t, model.TypeGLTF, m.Type)
	assert.Equal(t, 2, m.NumObjects)
	assert.Equal(t, "base", m.Root.Name)
	require.Len(t, m.Root.Children, 1)

	lid := m.Root.Children[0]
	assert.Equal(t, "lid", lid.Name)
	assert.Equal(t, mgl32.Vec3{0, 2, 0}, lid.Offset)
}

func TestBuild_Geometry(t *testing.T) {
	m, err := Build(crateDocument())
	require.NoError(t, err)

	base := m.Root
	require.Len(t, base.Faces, 2, "degenerate triangle is dropped")
	assert.True(t, base.Faces[0].TwoSided)
	assert.Equal(t, 0, base.Faces[0].TextureID)
	assert.Equal(t, mgl32.Vec2{1, 1}, base.Vertices[2].TexCoord)
	assert.Equal(t, mgl32.Vec3{0, 1, 0}, base.Vertices[0].Normal)

	lid := m.Root.Children[0]
	require.Len(t, lid.Faces, 1)
	assert.False(t, lid.Faces[0].TwoSided)
	assert.Equal(t, -1, lid.Faces[0].TextureID)
	assert.InDelta(t, 2, lid.Vertices[2].Position.X(), 1e-5, "node scale applies to vertices")
	assert.InDelta(t, 1, lid.Vertices[0].Normal.Len(), 1e-5, "normals are derived when absent")
}

func TestBuild_MultipleRootsGetSyntheticRoot(t *testing.T) {
	doc := crateDocument()
	doc.Nodes[0].Children = nil
	doc.Scenes[0].Nodes = []uint32{0, 1}

	m, err := Build(doc)
	require.NoError(t, err)
	assert.Equal(t, "root", m.Root.Name)
	assert.True(t, m.Root.IsEmpty)
	assert.Equal(t, 3, m.NumObjects)
}

func TestBuild_NoScene(t *testing.T) {
	doc := crateDocument()
	doc.Scenes = nil
	doc.Scene = nil

	m, err := Build(doc)
	require.NoError(t, err)
	assert.Equal(t, "base", m.Root.Name)
	assert.Equal(t, 2, m.NumObjects)

	doc.Nodes = nil
	_, err = Build(doc)
	assert.ErrorIs(t, err, ErrNoNodes)
}

func TestBuild_SharedChildRejected(t *testing.T) {
	doc := crateDocument()
	doc.Nodes = append(doc.Nodes, &gltf.Node{Name: "other", Children: []uint32{1}})
	doc.Scenes[0].Nodes = []uint32{0, 2}

	_, err := Build(doc)
	assert.Error(t, err)
}

func TestNodeTransform(t *testing.T) {
	offset, mat := nodeTransform(&gltf.Node{
		Translation: [3]float32{1, 2, 3},
		Rotation:    [4]float32{0, 0.7071068, 0, 0.7071068},
	})
	assert.Equal(t, mgl32.Vec3{1, 2, 3}, offset)
	got := mgl32.TransformCoordinate(mgl32.Vec3{1, 0, 0}, mat)
	assert.InDelta(t, -1, got.Z(), 1e-5)

	m := mgl32.Translate3D(4, 5, 6).Mul4(mgl32.Scale3D(3, 3, 3))
	offset, mat = nodeTransform(&gltf.Node{Matrix: [16]float32(m)})
	assert.Equal(t, mgl32.Vec3{4, 5, 6}, offset)
	got = mgl32.TransformCoordinate(mgl32.Vec3{1, 0, 0}, mat)
	assert.InDelta(t, 3, got.X(), 1e-5)
}

func TestLoad_GLB(t *testing.T) {
	p := New(mapSource{"crate.glb": encodeGLB(t, crateDocument())})

	m, err := p.Load("crate.glb")
	require.NoError(t, err)
	assert.Equal(t, "crate.glb", m.Name)
	assert.Equal(t, 2, m.NumObjects)

	var b gpu.Batch
	p.Draw(m.Root, &b)
	assert.Equal(t, 4, b.Triangles(), "two faces plus their back faces")

	_, err = p.Load("absent.glb")
	assert.ErrorIs(t, err, errMissing)

	p = New(mapSource{"junk.glb": []byte("not a gltf document")})
	_, err = p.Load("junk.glb")
	assert.Error(t, err)
}

func TestRegisteredUnderWildcards(t *testing.T) {
	reg := loader.NewRegistry()
	p := New(mapSource{"props/crate.glb": encodeGLB(t, crateDocument())})
	require.NoError(t, reg.RegisterWildcards(Extensions, p))

	for _, ext := range []string{"gltf", "glb"} {
		got, ok := reg.Resolve(ext)
		require.True(t, ok, ext)
		assert.Same(t, p, got)
	}

	realizer := gpu.NewNullRealizer()
	ld := loader.New(loader.Options{
		Registry: reg,
		GPU:      gpu.NewManager(gpu.Options{Mode: gpu.ModeImmediate, Realizer: realizer}),
	})
	defer ld.Close()

	m, err := ld.LoadModel(context.Background(), "Props/Crate.GLB", mgl32.Vec3{})
	require.NoError(t, err)
	assert.Equal(t, "props/crate.glb", m.Name)
	assert.Equal(t, 2, realizer.Live())
}
