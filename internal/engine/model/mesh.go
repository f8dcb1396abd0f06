package model

import "github.com/go-gl/mathgl/mgl32"

// degenerateEpsilon is the minimum cross-product magnitude of a drawable triangle.
const degenerateEpsilon = 1e-5

// FaceNormal returns the unit normal of triangle (v0, v1, v2).
// ok is false for degenerate triangles.
func FaceNormal(v0, v1, v2 mgl32.Vec3) (n mgl32.Vec3, ok bool) {
	c := v1.Sub(v0).Cross(v2.Sub(v0))
	mag := c.Len()
	if mag < degenerateEpsilon {
		return mgl32.Vec3{0, 1, 0}, false
	}
	return c.Mul(1 / mag), true
}

// ValidFace reports whether all indices of f are inside a vertex array of size n.
func ValidFace(f Face, n int) bool {
	for _, idx := range f.Indices {
		if int(idx) >= n {
			return false
		}
	}
	return true
}

// SmoothNormals averages normals at shared vertex positions.
func SmoothNormals(vertices []Vertex) {
	const epsilon float32 = 0.001

	// Group vertices by quantized position for O(n) lookup
	posMap := make(map[[3]int32][]int)
	for i := range vertices {
		key := [3]int32{
			int32(vertices[i].Position[0] / epsilon),
			int32(vertices[i].Position[1] / epsilon),
			int32(vertices[i].Position[2] / epsilon),
		}
		posMap[key] = append(posMap[key], i)
	}

	for _, idxs := range posMap {
		if len(idxs) < 2 {
			continue
		}

		var sum mgl32.Vec3
		for _, idx := range idxs {
			sum = sum.Add(vertices[idx].Normal)
		}
		if sum.Len() < degenerateEpsilon {
			continue
		}
		avg := sum.Normalize()

		for _, idx := range idxs {
			vertices[idx].Normal = avg
		}
	}
}

// CountFaces returns total and two-sided face counts for a model.
func CountFaces(m *Model) (total, twoSided int) {
	if m == nil || m.Root == nil {
		return 0, 0
	}
	m.Root.Walk(func(p *Piece) {
		for _, f := range p.Faces {
			total++
			if f.TwoSided {
				twoSided++
			}
		}
	})
	return total, twoSided
}
