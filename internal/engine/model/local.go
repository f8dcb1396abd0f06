package model

import (
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/Faultbox/midgard-models/internal/engine/collision"
)

// ErrPieceCountMismatch reports a Model whose NumObjects disagrees with its tree.
// It signals a parser bug and is raised as a panic, not returned.
var ErrPieceCountMismatch = errors.New("model piece count does not match tree")

// LocalModelPiece is a per-actor overlay node mirroring one shared Piece.
type LocalModelPiece struct {
	// Original is a read-only association with the shared piece. It is never
	// mutated or released through this reference.
	Original *Piece

	Name     string
	Type     ModelType
	DrawList DrawHandle
	Visible  bool
	Updated  bool

	Pos mgl32.Vec3
	Rot mgl32.Vec3 // Euler angles in radians

	ColVol *collision.Volume // Independent copy owned by this piece

	Parent   *LocalModelPiece // Non-owning; nil for the root
	Children []*LocalModelPiece
}

// SetPosition moves the piece relative to its parent.
func (lp *LocalModelPiece) SetPosition(pos mgl32.Vec3) {
	lp.Pos = pos
	lp.Updated = true
}

// SetRotation sets the piece rotation (radians around X, Y, Z).
func (lp *LocalModelPiece) SetRotation(rot mgl32.Vec3) {
	lp.Rot = rot
	lp.Updated = true
}

// Matrix returns the piece transform relative to its parent.
// Rotation is applied in Y, X, Z order.
func (lp *LocalModelPiece) Matrix() mgl32.Mat4 {
	m := mgl32.Translate3D(lp.Pos[0], lp.Pos[1], lp.Pos[2])
	if lp.Rot[1] != 0 {
		m = m.Mul4(mgl32.HomogRotate3DY(lp.Rot[1]))
	}
	if lp.Rot[0] != 0 {
		m = m.Mul4(mgl32.HomogRotate3DX(lp.Rot[0]))
	}
	if lp.Rot[2] != 0 {
		m = m.Mul4(mgl32.HomogRotate3DZ(lp.Rot[2]))
	}
	return m
}

// WorldMatrix returns the piece transform in model space.
func (lp *LocalModelPiece) WorldMatrix() mgl32.Mat4 {
	m := lp.Matrix()
	for p := lp.Parent; p != nil; p = p.Parent {
		m = p.Matrix().Mul4(m)
	}
	return m
}

// LocalModel is the per-actor overlay of a shared Model. Pieces are stored in
// pre-order, so index 0 is the root and index i addresses the same piece in
// every LocalModel built from the same Model.
type LocalModel struct {
	Type   ModelType
	Pieces []*LocalModelPiece

	released bool
}

// NewLocalModel builds an overlay mirroring m's piece tree.
// It panics if m.NumObjects disagrees with the actual tree size.
func NewLocalModel(m *Model) *LocalModel {
	if m == nil || m.Root == nil || m.NumObjects <= 0 {
		panic(fmt.Errorf("%w: model has no pieces", ErrPieceCountMismatch))
	}

	lm := &LocalModel{
		Type:   m.Type,
		Pieces: make([]*LocalModelPiece, m.NumObjects),
	}
	for i := range lm.Pieces {
		lm.Pieces[i] = &LocalModelPiece{}
	}
	lm.Pieces[0].Parent = nil

	next := 0
	lm.build(m.Root, &next, m.Name)
	if next+1 != m.NumObjects {
		panic(fmt.Errorf("%w: model %q declares %d pieces, tree has %d",
			ErrPieceCountMismatch, m.Name, m.NumObjects, next+1))
	}
	return lm
}

func (lm *LocalModel) build(piece *Piece, next *int, modelName string) {
	lp := lm.Pieces[*next]

	lp.Original = piece
	lp.Name = piece.Name
	lp.Type = piece.Type
	lp.DrawList = piece.DrawList()
	lp.Visible = !piece.IsEmpty
	lp.Updated = false
	lp.Pos = piece.Offset
	lp.Rot = mgl32.Vec3{}
	lp.ColVol = piece.ColVol.Clone()

	lp.Children = make([]*LocalModelPiece, 0, len(piece.Children))
	for _, child := range piece.Children {
		*next++
		if *next >= len(lm.Pieces) {
			panic(fmt.Errorf("%w: model %q declares %d pieces, tree has more",
				ErrPieceCountMismatch, modelName, len(lm.Pieces)))
		}
		cp := lm.Pieces[*next]
		cp.Parent = lp
		lp.Children = append(lp.Children, cp)
		lm.build(child, next, modelName)
	}
}

// Root returns the root piece.
func (lm *LocalModel) Root() *LocalModelPiece {
	if len(lm.Pieces) == 0 {
		return nil
	}
	return lm.Pieces[0]
}

// Piece returns the piece at index i, or nil if out of range.
func (lm *LocalModel) Piece(i int) *LocalModelPiece {
	if i < 0 || i >= len(lm.Pieces) {
		return nil
	}
	return lm.Pieces[i]
}

// PieceByName returns the first piece with the given name and its index.
func (lm *LocalModel) PieceByName(name string) (*LocalModelPiece, int) {
	for i, lp := range lm.Pieces {
		if lp.Name == name {
			return lp, i
		}
	}
	return nil, -1
}

// Released reports whether Release has been called.
func (lm *LocalModel) Released() bool {
	return lm.released
}

// Release drops the overlay. Draw handles belong to the shared Model and are
// left untouched.
func (lm *LocalModel) Release() {
	for _, lp := range lm.Pieces {
		lp.ColVol = nil
		lp.Original = nil
		lp.Parent = nil
		lp.Children = nil
		lp.DrawList = NoDrawHandle
	}
	lm.Pieces = nil
	lm.released = true
}

// FixLocalModel copies the realized draw handles of m into lm, walking both
// trees in lockstep. It reports whether lm was bound. An overlay that was
// released, or that was built from a different tree than m, is left alone.
func FixLocalModel(m *Model, lm *LocalModel) bool {
	if m == nil || m.Root == nil || lm == nil || lm.released {
		return false
	}
	if root := lm.Root(); root == nil || root.Original != m.Root || len(lm.Pieces) != m.NumObjects {
		return false
	}
	i := 0
	m.Root.Walk(func(p *Piece) {
		if i < len(lm.Pieces) {
			lm.Pieces[i].DrawList = p.DrawList()
		}
		i++
	})
	return true
}
