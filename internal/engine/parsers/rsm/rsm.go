// Package rsm is the model backend for Ragnarok Online RSM files.
package rsm

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"

	"github.com/Faultbox/midgard-models/internal/engine/gpu"
	"github.com/Faultbox/midgard-models/internal/engine/model"
	"github.com/Faultbox/midgard-models/pkg/formats"
)

// Extension is the registry key of the backend.
const Extension = "rsm"

// ErrNoRootNode is returned for files whose nodes form no tree.
var ErrNoRootNode = errors.New("rsm: no root node")

// Source provides raw file contents.
type Source interface {
	Load(name string) ([]byte, error)
}

// Parser builds model trees from RSM files.
type Parser struct {
	src Source
}

// New creates a Parser reading from src.
func New(src Source) *Parser {
	return &Parser{src: src}
}

// Load reads and decodes name. Each RSM node becomes a piece; children are
// linked by parent name in file order.
func (p *Parser) Load(name string) (*model.Model, error) {
	data, err := p.src.Load(name)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", name)
	}
	rsm, err := formats.ParseRSM(data)
	if err != nil {
		return nil, errors.Wrapf(err, "decoding %s", name)
	}
	m, err := Build(rsm)
	if err != nil {
		return nil, errors.Wrapf(err, "building %s", name)
	}
	m.Name = name
	return m, nil
}

// Build converts a decoded RSM into a model tree.
func Build(rsm *formats.RSM) (*model.Model, error) {
	rootNode := rsm.Root()
	if rootNode == nil {
		return nil, ErrNoRootNode
	}

	smooth := rsm.Shading == formats.RSMShadingSmooth
	visited := make(map[*formats.RSMNode]bool)
	root := buildPiece(rsm, rootNode, smooth, visited)

	m := &model.Model{
		Type:     model.TypeRSM,
		Root:     root,
		Textures: append([]string(nil), rsm.Textures...),
	}
	m.Finalize()
	return m, nil
}

func buildPiece(rsm *formats.RSM, node *formats.RSMNode, smooth bool, visited map[*formats.RSMNode]bool) *model.Piece {
	visited[node] = true

	pos := mgl32.Vec3(node.Position)
	pos[1] = -pos[1]
	piece := &model.Piece{
		Name:   node.Name,
		Type:   model.TypeRSM,
		Offset: pos,
	}
	buildGeometry(piece, node, smooth)

	for _, child := range rsm.ChildNodes(node.Name) {
		if visited[child] {
			continue
		}
		piece.AddChild(buildPiece(rsm, child, smooth, visited))
	}
	return piece
}

// vertexMatrix is the node transform minus its position, which the piece
// offset carries instead: Rotation * Scale * Translate(pivot) * Mat3.
func vertexMatrix(node *formats.RSMNode) mgl32.Mat4 {
	m := mgl32.Ident4()

	switch {
	case len(node.RotKeys) > 0:
		k := node.RotKeys[0].Quaternion
		q := mgl32.Quat{W: k[3], V: mgl32.Vec3{k[0], k[1], k[2]}}
		m = m.Mul4(q.Normalize().Mat4())
	case node.RotAngle != 0:
		axis := mgl32.Vec3(node.RotAxis)
		if axis.Len() > 1e-6 {
			m = m.Mul4(mgl32.HomogRotate3D(node.RotAngle, axis.Normalize()))
		}
	}

	m = m.Mul4(mgl32.Scale3D(node.Scale[0], node.Scale[1], node.Scale[2]))
	m = m.Mul4(mgl32.Translate3D(node.Offset[0], node.Offset[1], node.Offset[2]))

	mat := node.Matrix
	m = m.Mul4(mgl32.Mat4{
		mat[0], mat[1], mat[2], 0,
		mat[3], mat[4], mat[5], 0,
		mat[6], mat[7], mat[8], 0,
		0, 0, 0, 1,
	})
	return m
}

// buildGeometry unrolls the node's faces into per-corner vertices in the
// piece's local space, dropping faces with bad indices or no area.
func buildGeometry(piece *model.Piece, node *formats.RSMNode, smooth bool) {
	mat := vertexMatrix(node)
	transformed := make([]mgl32.Vec3, len(node.Vertices))
	for i, v := range node.Vertices {
		p := mgl32.TransformCoordinate(mgl32.Vec3(v), mat)
		p[1] = -p[1]
		transformed[i] = p
	}

	for _, f := range node.Faces {
		if !model.ValidFace(model.Face{Indices: [3]uint32{
			uint32(f.VertexIDs[0]), uint32(f.VertexIDs[1]), uint32(f.VertexIDs[2]),
		}}, len(transformed)) {
			continue
		}
		v0 := transformed[f.VertexIDs[0]]
		v1 := transformed[f.VertexIDs[1]]
		v2 := transformed[f.VertexIDs[2]]
		normal, ok := model.FaceNormal(v0, v1, v2)
		if !ok {
			continue
		}

		base := uint32(len(piece.Vertices))
		for j := 0; j < 3; j++ {
			var uv mgl32.Vec2
			if tid := int(f.TexCoordIDs[j]); tid < len(node.TexCoords) {
				uv = mgl32.Vec2{node.TexCoords[tid].U, node.TexCoords[tid].V}
			}
			piece.Vertices = append(piece.Vertices, model.Vertex{
				Position: transformed[f.VertexIDs[j]],
				Normal:   normal,
				TexCoord: uv,
			})
		}

		texture := 0
		if int(f.TextureID) < len(node.TextureIDs) {
			texture = int(node.TextureIDs[f.TextureID])
		}
		piece.Faces = append(piece.Faces, model.Face{
			Indices:   [3]uint32{base, base + 1, base + 2},
			TextureID: texture,
			TwoSided:  f.TwoSide != 0,
		})
	}

	if smooth {
		model.SmoothNormals(piece.Vertices)
	}
	piece.FinalizeGeometry()
}

// Draw emits the piece's triangles.
func (p *Parser) Draw(piece *model.Piece, dc gpu.DrawContext) {
	gpu.DrawPiece(piece, dc)
}
