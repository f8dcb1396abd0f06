// Package collision provides the collision-volume descriptor attached to model pieces.
// Intersection math lives with the simulation; this package only describes volumes.
package collision

import (
	"fmt"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// Type is the primitive shape of a volume.
type Type uint8

const (
	TypeSphere Type = iota
	TypeEllipsoid
	TypeBox
	TypeCylinder
)

// String returns a human-readable shape name.
func (t Type) String() string {
	switch t {
	case TypeSphere:
		return "Sphere"
	case TypeEllipsoid:
		return "Ellipsoid"
	case TypeBox:
		return "Box"
	case TypeCylinder:
		return "Cylinder"
	default:
		return fmt.Sprintf("Unknown(%d)", t)
	}
}

// Volume describes one collision primitive relative to its owner.
type Volume struct {
	Type     Type
	Axis     int        // Major axis for cylinders (0=X, 1=Y, 2=Z)
	Scales   mgl32.Vec3 // Full extents along each axis
	Offset   mgl32.Vec3 // Center relative to the owner's origin
	Radius   float32    // Bounding radius of the primitive
	Disabled bool       // Set for pieces without any extent
}

// NewFromBounds builds the default volume for a piece whose geometry spans [min, max].
// Near-cubic extents produce a sphere, everything else a box.
func NewFromBounds(min, max mgl32.Vec3) *Volume {
	size := max.Sub(min)
	for i := 0; i < 3; i++ {
		if size[i] < 0 {
			size[i] = 0
		}
	}

	v := &Volume{
		Type:   TypeBox,
		Axis:   majorAxis(size),
		Scales: size,
		Offset: min.Add(max).Mul(0.5),
	}
	v.Radius = math32.Sqrt(size.Dot(size)) * 0.5

	lo := math32.Min(size[0], math32.Min(size[1], size[2]))
	hi := math32.Max(size[0], math32.Max(size[1], size[2]))
	if hi > 0 && lo/hi > 0.95 {
		v.Type = TypeSphere
		v.Radius = hi * 0.5
	}
	if hi == 0 {
		v.Disabled = true
	}
	return v
}

// Clone returns an independent copy. A nil volume clones to nil.
func (v *Volume) Clone() *Volume {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

// SetScale rescales the volume in place, keeping its type.
func (v *Volume) SetScale(s float32) {
	v.Scales = v.Scales.Mul(s)
	v.Offset = v.Offset.Mul(s)
	v.Radius *= math32.Abs(s)
}

func majorAxis(size mgl32.Vec3) int {
	axis := 0
	for i := 1; i < 3; i++ {
		if size[i] > size[axis] {
			axis = i
		}
	}
	return axis
}
