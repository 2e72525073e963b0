package nodedef

import (
	"testing"

	"cubetonic.app/internal/world"
)

func TestBuiltinsAndFallback(t *testing.T) {
	m := New(map[uint16]Def{
		1: {Name: "default:stone", DrawType: DrawNormal, Tiles: [6]string{"stone.png^[crack:1", "stone.png", "stone.png", "stone.png", "stone.png", "stone.png"}},
		2: {Name: "default:water", DrawType: DrawLiquid},
		3: {Name: "mod:nodraw"},
	})

	if got := m.Classify(world.ContentAir); got != ClassEmpty {
		t.Fatalf("air: %v", got)
	}
	if got := m.Classify(world.ContentIgnore); got != ClassEmpty {
		t.Fatalf("ignore: %v", got)
	}
	if got := m.Classify(1); got != ClassSolid {
		t.Fatalf("stone: %v", got)
	}
	if got := m.Classify(2); got != ClassOther {
		t.Fatalf("water: %v", got)
	}
	if got := m.Classify(3); got != ClassSolid {
		t.Fatalf("missing drawtype should default to normal, got %v", got)
	}
	if got := m.Classify(4000); got != ClassSolid {
		t.Fatalf("unknown id should fall back to the unknown node, got %v", got)
	}
	if m.Has(4000) {
		t.Fatalf("4000 should not be defined")
	}
	if got := m.FaceTexture(4000, 2); got != UnknownTexture {
		t.Fatalf("fallback texture: %q", got)
	}
	if got := m.FaceTexture(1, 0); got != "stone.png" {
		t.Fatalf("modifiers not stripped: %q", got)
	}
	if got := m.FaceTexture(1, 6); got != "" {
		t.Fatalf("out of range face: %q", got)
	}
}

func TestServerOverridesBuiltin(t *testing.T) {
	m := New(map[uint16]Def{
		world.ContentUnknown: {Name: "custom_unknown", DrawType: DrawNormal, Tiles: [6]string{"u.png", "u.png", "u.png", "u.png", "u.png", "u.png"}},
	})
	if got := m.GetWithFallback(9999).Name; got != "custom_unknown" {
		t.Fatalf("fallback should use server unknown def, got %q", got)
	}
}

func TestTextureNames(t *testing.T) {
	m := New(map[uint16]Def{
		1: {Name: "a", Tiles: [6]string{"b.png", "a.png", "", "a.png", "c.png^x", ""}},
	})
	got := m.TextureNames()
	want := []string{"a.png", "b.png", "c.png", UnknownTexture}
	if len(got) != len(want) {
		t.Fatalf("names: %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("names: %v want %v", got, want)
		}
	}
}
