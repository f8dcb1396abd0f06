// Package parsers wires the bundled model backends into a loader registry.
package parsers

import (
	"fmt"

	"github.com/Faultbox/midgard-models/internal/engine/loader"
	"github.com/Faultbox/midgard-models/internal/engine/parsers/gltfmodel"
	"github.com/Faultbox/midgard-models/internal/engine/parsers/rsm"
)

// Source provides raw file contents to the backends.
type Source interface {
	Load(name string) ([]byte, error)
}

// Register adds every bundled backend to reg, reading files from src.
func Register(reg *loader.Registry, src Source) error {
	reg.Register(rsm.Extension, rsm.New(src))
	if err := reg.RegisterWildcards(gltfmodel.Extensions, gltfmodel.New(src)); err != nil {
		return fmt.Errorf("registering glTF backend: %w", err)
	}
	return nil
}

// NewRegistry returns a registry holding every bundled backend.
func NewRegistry(src Source) (*loader.Registry, error) {
	reg := loader.NewRegistry()
	if err := Register(reg, src); err != nil {
		return nil, err
	}
	return reg, nil
}
