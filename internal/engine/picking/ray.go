// Package picking provides ray casting against placed units.
package picking

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/Faultbox/midgard-models/internal/engine/model"
	"github.com/Faultbox/midgard-models/internal/game/entity"
)

// Ray represents a ray in 3D space with origin and direction.
type Ray struct {
	Origin    mgl32.Vec3
	Direction mgl32.Vec3 // Normalized
}

// ScreenToRay converts pixel coordinates to a world-space ray through the
// view-projection viewProj.
func ScreenToRay(screenX, screenY, viewportW, viewportH float32, viewProj mgl32.Mat4) Ray {
	ndcX := 2*screenX/viewportW - 1
	ndcY := 1 - 2*screenY/viewportH // Flip Y

	inv := viewProj.Inv()
	near := inv.Mul4x1(mgl32.Vec4{ndcX, ndcY, -1, 1})
	far := inv.Mul4x1(mgl32.Vec4{ndcX, ndcY, 1, 1})
	if near[3] != 0 {
		near = near.Mul(1 / near[3])
	}
	if far[3] != 0 {
		far = far.Mul(1 / far[3])
	}

	origin := near.Vec3()
	dir := far.Vec3().Sub(origin)
	if dir.Len() > 0 {
		dir = dir.Normalize()
	}
	return Ray{Origin: origin, Direction: dir}
}

// IntersectAABB tests the ray against box with the slab method. It returns
// the distance to the entry point, or to the exit point when the ray starts
// inside the box.
func (r Ray) IntersectAABB(box model.Bounds) (t float32, hit bool) {
	tmin := math32.Inf(-1)
	tmax := math32.Inf(1)

	for axis := 0; axis < 3; axis++ {
		o, d := r.Origin[axis], r.Direction[axis]
		if d == 0 {
			if o < box.Min[axis] || o > box.Max[axis] {
				return 0, false
			}
			continue
		}
		t1 := (box.Min[axis] - o) / d
		t2 := (box.Max[axis] - o) / d
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		tmin = math32.Max(tmin, t1)
		tmax = math32.Min(tmax, t2)
	}

	if tmax < tmin || tmax < 0 {
		return 0, false
	}
	if tmin < 0 {
		return tmax, true
	}
	return tmin, true
}

// UnitBounds returns the world-space box around a unit's model. Units
// without a model have invalid bounds.
func UnitBounds(u *entity.Unit) model.Bounds {
	b := model.EmptyBounds()
	m := u.Model()
	if m == nil {
		return b
	}
	world := u.WorldMatrix()
	for i := 0; i < 8; i++ {
		corner := m.Mins
		if i&1 != 0 {
			corner[0] = m.Maxs[0]
		}
		if i&2 != 0 {
			corner[1] = m.Maxs[1]
		}
		if i&4 != 0 {
			corner[2] = m.Maxs[2]
		}
		b.Extend(mgl32.TransformCoordinate(corner, world))
	}
	return b
}

// PickUnit returns the visible unit nearest along the ray, or nil.
func PickUnit(r Ray, units []*entity.Unit) *entity.Unit {
	var (
		best  *entity.Unit
		bestT = math32.Inf(1)
	)
	for _, u := range units {
		if u == nil || !u.IsVisible {
			continue
		}
		box := UnitBounds(u)
		if !box.Valid() {
			continue
		}
		if t, hit := r.IntersectAABB(box); hit && t < bestT {
			best, bestT = u, t
		}
	}
	return best
}
