// Package scene draws the units of a world with their realized model pieces.
package scene

import (
	"github.com/go-gl/gl/v4.1-core/gl"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/Faultbox/midgard-models/internal/engine/model"
	"github.com/Faultbox/midgard-models/internal/engine/shader"
	"github.com/Faultbox/midgard-models/internal/game/entity"
)

// Config holds scene rendering settings.
type Config struct {
	LightDir   mgl32.Vec3
	Color      mgl32.Vec3
	ClearColor mgl32.Vec4
	// CullFaces enables back-face culling. Two-sided faces are realized with
	// explicit back faces.
	CullFaces bool
}

// DefaultConfig returns sensible default settings.
func DefaultConfig() Config {
	return Config{
		LightDir:   mgl32.Vec3{-0.5, -1, -0.3},
		Color:      mgl32.Vec3{0.8, 0.75, 0.7},
		ClearColor: mgl32.Vec4{0.15, 0.17, 0.2, 1},
		CullFaces:  true,
	}
}

// DrawCall is one realized piece with its final transform.
type DrawCall struct {
	Handle    model.DrawHandle
	Transform mgl32.Mat4
}

// DrawCalls flattens the local models of units into draw calls. Hidden
// units, hidden pieces and pieces not yet bound to a draw list are skipped.
func DrawCalls(units []*entity.Unit) []DrawCall {
	var calls []DrawCall
	for _, u := range units {
		if u == nil || !u.IsVisible {
			continue
		}
		lm := u.LocalModel()
		if lm == nil {
			continue
		}
		world := u.WorldMatrix()
		for _, lp := range lm.Pieces {
			if !lp.Visible || lp.DrawList == model.NoDrawHandle {
				continue
			}
			calls = append(calls, DrawCall{
				Handle:    lp.DrawList,
				Transform: world.Mul4(lp.WorldMatrix()),
			})
		}
	}
	return calls
}

// MeshDrawer issues the GL draw for a realized handle.
type MeshDrawer interface {
	Draw(h model.DrawHandle)
}

// Renderer draws units with the model program.
type Renderer struct {
	cfg     Config
	program *shader.ModelProgram
	meshes  MeshDrawer

	calls []DrawCall
}

// NewRenderer compiles the model program. Call it on the GL thread.
func NewRenderer(cfg Config, meshes MeshDrawer) (*Renderer, error) {
	program, err := shader.NewModelProgram()
	if err != nil {
		return nil, err
	}
	return &Renderer{cfg: cfg, program: program, meshes: meshes}, nil
}

// Render clears the frame and draws every visible unit. It returns the number
// of draw calls issued.
func (r *Renderer) Render(viewProj mgl32.Mat4, units []*entity.Unit) int {
	c := r.cfg.ClearColor
	gl.ClearColor(c[0], c[1], c[2], c[3])
	gl.Clear(gl.COLOR_BUFFER_BIT | gl.DEPTH_BUFFER_BIT)
	gl.Enable(gl.DEPTH_TEST)
	if r.cfg.CullFaces {
		gl.Enable(gl.CULL_FACE)
	} else {
		gl.Disable(gl.CULL_FACE)
	}

	r.calls = DrawCalls(units)
	if len(r.calls) == 0 {
		return 0
	}

	r.program.Use(viewProj, r.cfg.LightDir, r.cfg.Color)
	for _, dc := range r.calls {
		r.program.SetModel(dc.Transform)
		r.meshes.Draw(dc.Handle)
	}
	return len(r.calls)
}

// ToggleCulling flips back-face culling and returns the new state.
func (r *Renderer) ToggleCulling() bool {
	r.cfg.CullFaces = !r.cfg.CullFaces
	return r.cfg.CullFaces
}

// Destroy frees the program.
func (r *Renderer) Destroy() {
	r.program.Delete()
}
