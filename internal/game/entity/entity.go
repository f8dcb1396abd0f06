// Package entity implements the actors that carry unit models.
package entity

import (
	"sort"
	"sync"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/Faultbox/midgard-models/internal/engine/model"
)

// Type represents the type of a unit.
type Type uint8

const (
	TypePlayer Type = iota
	TypeMonster
	TypeNPC
	TypeProp
)

// String returns a human-readable type name.
func (t Type) String() string {
	switch t {
	case TypePlayer:
		return "player"
	case TypeMonster:
		return "monster"
	case TypeNPC:
		return "npc"
	case TypeProp:
		return "prop"
	default:
		return "unknown"
	}
}

// Unit is an actor placed in the world. Its model fields are written by
// loader workers and read by the render loop, so they sit behind a lock.
type Unit struct {
	ID        uint32
	Type      Type
	Name      string
	Position  mgl32.Vec3
	Direction uint8 // 0-7 for 8 directions
	IsVisible bool

	mu         sync.RWMutex
	model      *model.Model
	localModel *model.LocalModel
}

// NewUnit creates a visible unit.
func NewUnit(id uint32, typ Type, name string) *Unit {
	return &Unit{
		ID:        id,
		Type:      typ,
		Name:      name,
		IsVisible: true,
	}
}

// Model returns the shared model the unit is drawn with.
func (u *Unit) Model() *model.Model {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.model
}

// SetModel assigns the shared model. The local model is left alone; callers
// go through the loader to rebuild it.
func (u *Unit) SetModel(m *model.Model) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.model = m
}

// LocalModel returns the unit's own instance of its model.
func (u *Unit) LocalModel() *model.LocalModel {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.localModel
}

// SetLocalModel replaces the local model.
func (u *Unit) SetLocalModel(lm *model.LocalModel) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.localModel = lm
}

// WorldMatrix places the unit in the world: translation then yaw by direction.
func (u *Unit) WorldMatrix() mgl32.Mat4 {
	yaw := float32(u.Direction) * (mgl32.DegToRad(45))
	return mgl32.Translate3D(u.Position.X(), u.Position.Y(), u.Position.Z()).
		Mul4(mgl32.HomogRotate3DY(yaw))
}

// Manager tracks all units.
type Manager struct {
	mu    sync.RWMutex
	units map[uint32]*Unit
}

// NewManager creates a new unit manager.
func NewManager() *Manager {
	return &Manager{
		units: make(map[uint32]*Unit),
	}
}

// Add adds a unit, replacing any unit with the same ID.
func (m *Manager) Add(u *Unit) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.units[u.ID] = u
}

// Remove removes a unit and returns it.
func (m *Manager) Remove(id uint32) *Unit {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.units[id]
	delete(m.units, id)
	return u
}

// Get returns a unit by ID.
func (m *Manager) Get(id uint32) *Unit {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.units[id]
}

// All returns all units ordered by ID.
func (m *Manager) All() []*Unit {
	m.mu.RLock()
	result := make([]*Unit, 0, len(m.units))
	for _, u := range m.units {
		result = append(result, u)
	}
	m.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// AllVisible returns the visible units that have a local model, ordered by ID.
func (m *Manager) AllVisible() []*Unit {
	all := m.All()
	result := all[:0]
	for _, u := range all {
		if u.IsVisible && u.LocalModel() != nil {
			result = append(result, u)
		}
	}
	return result
}

// Count returns the total number of units.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.units)
}

// Clear removes all units and returns them.
func (m *Manager) Clear() []*Unit {
	all := m.All()
	m.mu.Lock()
	m.units = make(map[uint32]*Unit)
	m.mu.Unlock()
	return all
}
