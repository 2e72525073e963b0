package nodedef

import (
	"sort"
	"strings"

	"cubetonic.app/internal/world"
)

// DrawType names as sent by the server.
const (
	DrawNormal        = "normal"
	DrawAirLike       = "airlike"
	DrawLiquid        = "liquid"
	DrawFlowingLiquid = "flowingliquid"
	DrawGlassLike     = "glasslike"
	DrawAllFaces      = "allfaces"
	DrawPlantLike     = "plantlike"
	DrawNodeBox       = "nodebox"
	DrawMesh          = "mesh"
)

// Class is what the mesher needs to know about a node.
type Class int

const (
	// ClassEmpty renders nothing and never hides a neighbor face.
	ClassEmpty Class = iota
	// ClassSolid is a full opaque cube.
	ClassSolid
	// ClassOther covers every remaining draw type. It is meshed and culled
	// like a solid cube.
	ClassOther
)

func (c Class) String() string {
	switch c {
	case ClassEmpty:
		return "empty"
	case ClassSolid:
		return "solid"
	default:
		return "other"
	}
}

const (
	UnknownTexture = "unknown_node.png"
)

// Def is one content definition. Tiles follow world.Dirs order.
type Def struct {
	Name     string    `json:"name"`
	DrawType string    `json:"drawtype"`
	Tiles    [6]string `json:"tiles"`
}

// Manager maps content ids to definitions. It is built once during
// negotiation and only read afterwards, so it is shared by reference with
// every mesh worker.
type Manager struct {
	defs map[uint16]Def
}

func builtins() map[uint16]Def {
	unknown := Def{Name: "unknown", DrawType: DrawNormal}
	for i := range unknown.Tiles {
		unknown.Tiles[i] = UnknownTexture
	}
	return map[uint16]Def{
		world.ContentUnknown: unknown,
		world.ContentAir:     {Name: "air", DrawType: DrawAirLike},
		world.ContentIgnore:  {Name: "ignore", DrawType: DrawAirLike},
	}
}

// New returns a manager holding the builtin unknown/air/ignore definitions
// overlaid with defs from the server.
func New(defs map[uint16]Def) *Manager {
	m := &Manager{defs: builtins()}
	for id, d := range defs {
		if d.DrawType == "" {
			d.DrawType = DrawNormal
		}
		for i, t := range d.Tiles {
			d.Tiles[i] = StripModifiers(t)
		}
		m.defs[id] = d
	}
	return m
}

func (m *Manager) Get(id uint16) (Def, bool) {
	d, ok := m.defs[id]
	return d, ok
}

// GetWithFallback returns the unknown definition for ids the server never sent.
func (m *Manager) GetWithFallback(id uint16) Def {
	if d, ok := m.defs[id]; ok {
		return d
	}
	return m.defs[world.ContentUnknown]
}

func (m *Manager) Has(id uint16) bool {
	_, ok := m.defs[id]
	return ok
}

func (m *Manager) Len() int { return len(m.defs) }

func (m *Manager) Classify(id uint16) Class {
	switch m.GetWithFallback(id).DrawType {
	case DrawAirLike:
		return ClassEmpty
	case DrawNormal:
		return ClassSolid
	default:
		return ClassOther
	}
}

// FaceTexture returns the tile name for face (world.Dirs index) of id.
func (m *Manager) FaceTexture(id uint16, face int) string {
	if face < 0 || face >= 6 {
		return ""
	}
	return m.GetWithFallback(id).Tiles[face]
}

// TextureNames lists every distinct non-empty tile name, sorted.
func (m *Manager) TextureNames() []string {
	set := map[string]struct{}{}
	for _, d := range m.defs {
		for _, t := range d.Tiles {
			if t != "" {
				set[t] = struct{}{}
			}
		}
	}
	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// StripModifiers drops texture modifiers ("stone.png^[crack" -> "stone.png").
func StripModifiers(name string) string {
	if i := strings.IndexByte(name, '^'); i >= 0 {
		return name[:i]
	}
	return name
}
