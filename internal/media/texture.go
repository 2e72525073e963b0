package media

import (
	"errors"
	"io"
	"log"

	"cubetonic.app/internal/nodedef"
)

// FallbackTexture always occupies layer 0.
const FallbackTexture = "no_texture.png"

var ErrFrozen = errors.New("texture index is frozen")

// TextureIndex assigns texture array layers to tile names. Layers are stable
// for the session; once frozen the index is read concurrently by mesh
// workers and never written again.
type TextureIndex struct {
	layers map[string]uint32
	names  []string
	paths  []string
	frozen bool
}

func NewTextureIndex() *TextureIndex {
	return &TextureIndex{
		layers: map[string]uint32{FallbackTexture: 0},
		names:  []string{FallbackTexture},
		paths:  []string{""},
	}
}

// Add assigns the next layer to name, or returns its existing layer.
func (t *TextureIndex) Add(name, path string) (uint32, error) {
	name = nodedef.StripModifiers(name)
	if l, ok := t.layers[name]; ok {
		return l, nil
	}
	if t.frozen {
		return 0, ErrFrozen
	}
	l := uint32(len(t.names))
	t.layers[name] = l
	t.names = append(t.names, name)
	t.paths = append(t.paths, path)
	return l, nil
}

func (t *TextureIndex) Freeze() { t.frozen = true }

func (t *TextureIndex) Frozen() bool { return t.frozen }

// IndexOf returns the layer for name, or the fallback layer.
func (t *TextureIndex) IndexOf(name string) uint32 {
	return t.layers[nodedef.StripModifiers(name)]
}

func (t *TextureIndex) Len() int { return len(t.names) }

// Names returns tile names by layer.
func (t *TextureIndex) Names() []string { return append([]string(nil), t.names...) }

// Paths returns cache paths by layer; the fallback layer has none.
func (t *TextureIndex) Paths() []string { return append([]string(nil), t.paths...) }

// BuildTextureIndex registers every tile the node definitions use that the
// media cache resolved, and freezes the result. Unresolved tiles render with
// the fallback texture.
func BuildTextureIndex(defs *nodedef.Manager, paths map[string]string, logger *log.Logger) *TextureIndex {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	t := NewTextureIndex()
	var missing []string
	for _, name := range defs.TextureNames() {
		p, ok := paths[name]
		if !ok {
			missing = append(missing, name)
			continue
		}
		_, _ = t.Add(name, p)
	}
	if len(missing) > 0 {
		logger.Printf("textures: %d unresolved, using %s (first: %s)", len(missing), FallbackTexture, missing[0])
	}
	t.Freeze()
	return t
}
