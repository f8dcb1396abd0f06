// Package lod keeps the far-distance representation of loaded models.
package lod

import (
	"sync"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap"

	"github.com/Faultbox/midgard-models/internal/engine/model"
)

// Billboard describes the camera-facing quad a model is drawn as from far away.
type Billboard struct {
	Model  string
	Width  float32
	Height float32
	Center mgl32.Vec3 // Relative to the model origin
}

// Generator builds one Billboard per model.
type Generator struct {
	log *zap.Logger

	mu          sync.Mutex
	billboards  map[string]Billboard
	generations int
}

// NewGenerator creates a Generator. A nil logger disables logging.
func NewGenerator(log *zap.Logger) *Generator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Generator{
		log:        log.Named("lod"),
		billboards: make(map[string]Billboard),
	}
}

// Generate records the billboard of m, replacing any earlier one for the same name.
func (g *Generator) Generate(m *model.Model) {
	if m == nil {
		return
	}
	b := billboardFor(m)

	g.mu.Lock()
	g.billboards[m.Name] = b
	g.generations++
	g.mu.Unlock()

	g.log.Debug("billboard generated",
		zap.String("model", m.Name),
		zap.Float32("width", b.Width),
		zap.Float32("height", b.Height),
	)
}

// billboardFor sizes the quad to the model's horizontal extent and height.
// Models without geometry fall back to their radius.
func billboardFor(m *model.Model) Billboard {
	size := m.Maxs.Sub(m.Mins)
	width := math32.Max(size.X(), size.Z())
	height := size.Y()
	if width <= 0 {
		width = 2 * m.Radius
	}
	if height <= 0 {
		height = math32.Max(m.Height, width)
	}
	return Billboard{
		Model:  m.Name,
		Width:  width,
		Height: height,
		Center: m.RelMidPos,
	}
}

// Billboard returns the billboard recorded for a model name.
func (g *Generator) Billboard(name string) (Billboard, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	b, ok := g.billboards[name]
	return b, ok
}

// Generations returns how many times Generate ran.
func (g *Generator) Generations() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.generations
}

// Len returns the number of distinct models with a billboard.
func (g *Generator) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.billboards)
}
