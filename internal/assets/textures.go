package assets

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"path"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// TextureDir is where RSM models reference their textures from.
const TextureDir = "data/texture"

// TextureInfo describes a decoded texture header.
type TextureInfo struct {
	Name   string
	Format string
	Width  int
	Height int
}

// TexturePath resolves a texture reference of a model. RSM textures live
// under TextureDir; other formats reference files next to the model.
func TexturePath(modelName, texture string, rsm bool) string {
	if rsm {
		return path.Join(TextureDir, Normalize(texture))
	}
	return path.Join(path.Dir(Normalize(modelName)), Normalize(texture))
}

// TextureInfo loads name and decodes its image header.
func (m *Manager) TextureInfo(name string) (TextureInfo, error) {
	data, err := m.Load(name)
	if err != nil {
		return TextureInfo{}, err
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return TextureInfo{}, fmt.Errorf("decoding texture %s: %w", name, err)
	}
	return TextureInfo{Name: name, Format: format, Width: cfg.Width, Height: cfg.Height}, nil
}
