// Package model provides the shared model piece tree and the per-actor local model overlay.
package model

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
)

// ModelType identifies the file format family a model was loaded from.
type ModelType uint8

const (
	TypeUnknown ModelType = iota
	TypeRSM
	TypeGLTF
)

// String returns a human-readable format name.
func (t ModelType) String() string {
	switch t {
	case TypeUnknown:
		return "Unknown"
	case TypeRSM:
		return "RSM"
	case TypeGLTF:
		return "glTF"
	default:
		return fmt.Sprintf("Unknown(%d)", t)
	}
}

// DrawHandle is an opaque GPU draw resource handed out by a realizer.
type DrawHandle uint32

// NoDrawHandle marks a piece that has not been realized yet.
const NoDrawHandle DrawHandle = 0

// Vertex represents a piece vertex with position, normal, and texture coordinates.
type Vertex struct {
	Position mgl32.Vec3
	Normal   mgl32.Vec3
	TexCoord mgl32.Vec2
}

// Face is a triangle referencing the owning piece's vertex array.
type Face struct {
	Indices   [3]uint32
	TextureID int  // Index into Model.Textures, -1 when untextured
	TwoSided  bool // Render the back face as well
}

// Bounds holds an axis-aligned bounding box.
type Bounds struct {
	Min mgl32.Vec3
	Max mgl32.Vec3
}

// EmptyBounds returns inverted bounds that any Extend call will overwrite.
func EmptyBounds() Bounds {
	return Bounds{
		Min: mgl32.Vec3{1e10, 1e10, 1e10},
		Max: mgl32.Vec3{-1e10, -1e10, -1e10},
	}
}

// Valid reports whether at least one point was added.
func (b Bounds) Valid() bool {
	return b.Min[0] <= b.Max[0] && b.Min[1] <= b.Max[1] && b.Min[2] <= b.Max[2]
}

// Extend grows the box to include p.
func (b *Bounds) Extend(p mgl32.Vec3) {
	for i := 0; i < 3; i++ {
		if p[i] < b.Min[i] {
			b.Min[i] = p[i]
		}
		if p[i] > b.Max[i] {
			b.Max[i] = p[i]
		}
	}
}

// Union grows the box to include other. Invalid boxes are ignored.
func (b *Bounds) Union(other Bounds) {
	if !other.Valid() {
		return
	}
	b.Extend(other.Min)
	b.Extend(other.Max)
}

// Center returns the midpoint of the box.
func (b Bounds) Center() mgl32.Vec3 {
	return b.Min.Add(b.Max).Mul(0.5)
}

// Size returns the extent along each axis.
func (b Bounds) Size() mgl32.Vec3 {
	return b.Max.Sub(b.Min)
}

// Translate returns the box moved by d.
func (b Bounds) Translate(d mgl32.Vec3) Bounds {
	return Bounds{Min: b.Min.Add(d), Max: b.Max.Add(d)}
}
