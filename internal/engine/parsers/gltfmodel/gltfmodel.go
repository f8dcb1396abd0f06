// Package gltfmodel is a generic model backend for glTF 2.0 documents.
//
// Only self-contained documents are supported: .glb files and .gltf files
// whose buffers are embedded as data URIs.
package gltfmodel

import (
	"bytes"
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"

	"github.com/Faultbox/midgard-models/internal/engine/gpu"
	"github.com/Faultbox/midgard-models/internal/engine/model"
)

// Extensions is the wildcard list the backend is registered under.
const Extensions = "*.gltf;*.glb"

// ErrNoNodes is returned for documents without any node to build a tree from.
var ErrNoNodes = errors.New("gltf: document has no nodes")

// Source provides raw file contents.
type Source interface {
	Load(name string) ([]byte, error)
}

// Parser builds model trees from glTF documents.
type Parser struct {
	src Source
}

// New creates a Parser reading from src.
func New(src Source) *Parser {
	return &Parser{src: src}
}

// Load reads and decodes name.
func (p *Parser) Load(name string) (*model.Model, error) {
	data, err := p.src.Load(name)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", name)
	}
	doc := new(gltf.Document)
	if err := gltf.NewDecoder(bytes.NewReader(data)).Decode(doc); err != nil {
		return nil, errors.Wrapf(err, "decoding %s", name)
	}
	m, err := Build(doc)
	if err != nil {
		return nil, errors.Wrapf(err, "building %s", name)
	}
	m.Name = name
	return m, nil
}

// Draw emits the piece's triangles.
func (p *Parser) Draw(piece *model.Piece, dc gpu.DrawContext) {
	gpu.DrawPiece(piece, dc)
}

// Build converts the default scene of doc into a model tree. Each node becomes
// a piece; a scene with several top-level nodes gets a synthetic empty root.
func Build(doc *gltf.Document) (*model.Model, error) {
	roots := sceneRoots(doc)
	if len(roots) == 0 {
		return nil, ErrNoNodes
	}

	b := &builder{doc: doc, visited: make(map[uint32]bool)}
	var root *model.Piece
	if len(roots) == 1 {
		var err error
		if root, err = b.piece(roots[0]); err != nil {
			return nil, err
		}
	} else {
		root = &model.Piece{Name: "root", Type: model.TypeGLTF}
		root.FinalizeGeometry()
		for _, idx := range roots {
			child, err := b.piece(idx)
			if err != nil {
				return nil, err
			}
			root.AddChild(child)
		}
	}

	m := &model.Model{Type: model.TypeGLTF, Root: root}
	for _, img := range doc.Images {
		name := img.URI
		if name == "" || img.IsEmbeddedResource() {
			name = img.Name
		}
		m.Textures = append(m.Textures, name)
	}
	m.Finalize()
	return m, nil
}

// sceneRoots returns the top-level nodes of the default scene, or every node
// without a parent when the document has no usable scene.
func sceneRoots(doc *gltf.Document) []uint32 {
	if len(doc.Scenes) > 0 {
		idx := uint32(0)
		if doc.Scene != nil && int(*doc.Scene) < len(doc.Scenes) {
			idx = *doc.Scene
		}
		if nodes := doc.Scenes[idx].Nodes; len(nodes) > 0 {
			return nodes
		}
	}

	isChild := make([]bool, len(doc.Nodes))
	for _, n := range doc.Nodes {
		for _, c := range n.Children {
			if int(c) < len(isChild) {
				isChild[c] = true
			}
		}
	}
	var roots []uint32
	for i := range doc.Nodes {
		if !isChild[i] {
			roots = append(roots, uint32(i))
		}
	}
	return roots
}

type builder struct {
	doc     *gltf.Document
	visited map[uint32]bool
}

func (b *builder) piece(idx uint32) (*model.Piece, error) {
	if int(idx) >= len(b.doc.Nodes) {
		return nil, errors.Errorf("node %d out of range", idx)
	}
	if b.visited[idx] {
		return nil, errors.Errorf("node %d has more than one parent", idx)
	}
	b.visited[idx] = true

	node := b.doc.Nodes[idx]
	offset, mat := nodeTransform(node)

	name := node.Name
	if name == "" {
		name = fmt.Sprintf("node%d", idx)
	}
	piece := &model.Piece{Name: name, Type: model.TypeGLTF, Offset: offset}
	if node.Mesh != nil {
		if err := b.mesh(piece, *node.Mesh, mat); err != nil {
			return nil, errors.Wrapf(err, "node %q", name)
		}
	}
	piece.FinalizeGeometry()

	for _, c := range node.Children {
		child, err := b.piece(c)
		if err != nil {
			return nil, err
		}
		piece.AddChild(child)
	}
	return piece, nil
}

// nodeTransform splits the node transform into the piece offset and the
// matrix applied to its vertices.
func nodeTransform(node *gltf.Node) (mgl32.Vec3, mgl32.Mat4) {
	m := mgl32.Mat4(node.Matrix)
	if m != (mgl32.Mat4{}) && m != mgl32.Ident4() {
		offset := m.Col(3).Vec3()
		m.SetCol(3, mgl32.Vec4{0, 0, 0, 1})
		return offset, m
	}

	mat := mgl32.Ident4()
	if r := node.Rotation; r != [4]float32{} {
		q := mgl32.Quat{W: r[3], V: mgl32.Vec3{r[0], r[1], r[2]}}
		mat = q.Normalize().Mat4()
	}
	if s := node.Scale; s != [3]float32{} {
		mat = mat.Mul4(mgl32.Scale3D(s[0], s[1], s[2]))
	}
	return mgl32.Vec3(node.Translation), mat
}

func (b *builder) accessor(idx uint32) (*gltf.Accessor, error) {
	if int(idx) >= len(b.doc.Accessors) {
		return nil, errors.Errorf("accessor %d out of range", idx)
	}
	return b.doc.Accessors[idx], nil
}

func (b *builder) mesh(piece *model.Piece, idx uint32, mat mgl32.Mat4) error {
	if int(idx) >= len(b.doc.Meshes) {
		return errors.Errorf("mesh %d out of range", idx)
	}
	normalMat := mat.Mat3().Inv().Transpose()

	for pi, prim := range b.doc.Meshes[idx].Primitives {
		if prim.Mode != gltf.PrimitiveTriangles {
			continue
		}
		posIdx, ok := prim.Attributes["POSITION"]
		if !ok {
			continue
		}
		acr, err := b.accessor(posIdx)
		if err != nil {
			return err
		}
		positions, err := modeler.ReadPosition(b.doc, acr, nil)
		if err != nil {
			return errors.Wrapf(err, "primitive %d positions", pi)
		}

		var normals [][3]float32
		if ni, ok := prim.Attributes["NORMAL"]; ok {
			if acr, err = b.accessor(ni); err != nil {
				return err
			}
			if normals, err = modeler.ReadNormal(b.doc, acr, nil); err != nil {
				return errors.Wrapf(err, "primitive %d normals", pi)
			}
		}

		var uvs [][2]float32
		if ti, ok := prim.Attributes["TEXCOORD_0"]; ok {
			if acr, err = b.accessor(ti); err != nil {
				return err
			}
			if uvs, err = modeler.ReadTextureCoord(b.doc, acr, nil); err != nil {
				return errors.Wrapf(err, "primitive %d texcoords", pi)
			}
		}

		var indices []uint32
		if prim.Indices != nil {
			if acr, err = b.accessor(*prim.Indices); err != nil {
				return err
			}
			if indices, err = modeler.ReadIndices(b.doc, acr, nil); err != nil {
				return errors.Wrapf(err, "primitive %d indices", pi)
			}
		} else {
			indices = make([]uint32, len(positions))
			for i := range indices {
				indices[i] = uint32(i)
			}
		}

		twoSided := false
		texture := -1
		if prim.Material != nil && int(*prim.Material) < len(b.doc.Materials) {
			twoSided = b.doc.Materials[*prim.Material].DoubleSided
			texture = int(*prim.Material)
		}

		b.appendPrimitive(piece, primitive{
			positions: positions,
			normals:   normals,
			uvs:       uvs,
			indices:   indices,
			twoSided:  twoSided,
			texture:   texture,
		}, mat, normalMat)
	}
	return nil
}

type primitive struct {
	positions [][3]float32
	normals   [][3]float32
	uvs       [][2]float32
	indices   []uint32
	twoSided  bool
	texture   int
}

func (b *builder) appendPrimitive(piece *model.Piece, p primitive, mat mgl32.Mat4, normalMat mgl32.Mat3) {
	base := uint32(len(piece.Vertices))
	for i, pos := range p.positions {
		v := model.Vertex{Position: mgl32.TransformCoordinate(mgl32.Vec3(pos), mat)}
		if i < len(p.normals) {
			if n := normalMat.Mul3x1(mgl32.Vec3(p.normals[i])); n.Len() > 0 {
				v.Normal = n.Normalize()
			}
		}
		if i < len(p.uvs) {
			v.TexCoord = mgl32.Vec2(p.uvs[i])
		}
		piece.Vertices = append(piece.Vertices, v)
	}

	// accumulated face normals for primitives that ship none
	var accum []mgl32.Vec3
	if len(p.normals) == 0 {
		accum = make([]mgl32.Vec3, len(p.positions))
	}

	for t := 0; t+2 < len(p.indices); t += 3 {
		f := model.Face{
			Indices:   [3]uint32{base + p.indices[t], base + p.indices[t+1], base + p.indices[t+2]},
			TextureID: p.texture,
			TwoSided:  p.twoSided,
		}
		if !model.ValidFace(f, len(piece.Vertices)) {
			continue
		}
		n, ok := model.FaceNormal(
			piece.Vertices[f.Indices[0]].Position,
			piece.Vertices[f.Indices[1]].Position,
			piece.Vertices[f.Indices[2]].Position,
		)
		if !ok {
			continue
		}
		piece.Faces = append(piece.Faces, f)
		if accum != nil {
			for _, idx := range f.Indices {
				accum[idx-base] = accum[idx-base].Add(n)
			}
		}
	}

	for i, n := range accum {
		if n.Len() > 0 {
			piece.Vertices[base+uint32(i)].Normal = n.Normalize()
		}
	}
}
