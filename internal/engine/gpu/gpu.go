// Package gpu manages the lifecycle of GPU draw resources for shared models
// and the actors that reference them.
//
// Draw lists may only be created on the thread owning the GL context. Model
// loading can happen anywhere, so in deferred mode the Manager queues the
// work and drains it from Flush, which the render loop calls once per frame.
package gpu

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/Faultbox/midgard-models/internal/engine/model"
)

// ErrNotRenderThread is returned by Flush when called outside the render context.
var ErrNotRenderThread = errors.New("gpu: flush called outside the render thread")

// Mode selects how requests are executed.
type Mode uint8

const (
	// ModeImmediate performs every request synchronously at the call site.
	// Use it when loading never happens off the render thread.
	ModeImmediate Mode = iota
	// ModeDeferred queues requests made outside the render context until Flush.
	ModeDeferred
)

// String returns the config name of the mode.
func (m Mode) String() string {
	switch m {
	case ModeImmediate:
		return "immediate"
	case ModeDeferred:
		return "deferred"
	default:
		return fmt.Sprintf("Mode(%d)", m)
	}
}

// ParseMode converts a config string into a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "immediate", "":
		return ModeImmediate, nil
	case "deferred":
		return ModeDeferred, nil
	default:
		return ModeImmediate, fmt.Errorf("unknown gpu mode %q", s)
	}
}

// DrawContext receives immediate-mode drawing commands while a draw list is compiled.
type DrawContext interface {
	Begin()
	Normal(n mgl32.Vec3)
	TexCoord(uv mgl32.Vec2)
	Vertex(p mgl32.Vec3)
	End()
}

// Drawer issues the drawing commands for one piece's geometry.
// Format parsers implement it.
type Drawer interface {
	Draw(piece *model.Piece, dc DrawContext)
}

// Realizer compiles and frees draw lists. Implementations must only be used
// from the render thread.
type Realizer interface {
	Compile(draw func(dc DrawContext)) (model.DrawHandle, error)
	Release(h model.DrawHandle)
}

// Actor is anything owning a LocalModel of a shared Model.
type Actor interface {
	Model() *model.Model
	LocalModel() *model.LocalModel
}

type renderThreadKey struct{}

// WithRenderThread marks ctx as running on the thread that owns the GL context.
func WithRenderThread(ctx context.Context) context.Context {
	return context.WithValue(ctx, renderThreadKey{}, true)
}

// OnRenderThread reports whether ctx was marked by WithRenderThread.
func OnRenderThread(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	on, _ := ctx.Value(renderThreadKey{}).(bool)
	return on
}
