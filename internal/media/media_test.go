package media

import (
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"cubetonic.app/internal/nodedef"
	"cubetonic.app/internal/persistence/indexdb"
	"cubetonic.app/internal/protocol"
)

type recorder struct{ recs []indexdb.MediaRecord }

func (r *recorder) RecordMedia(rec indexdb.MediaRecord) { r.recs = append(r.recs, rec) }

func putFile(t *testing.T, dir string, content []byte) string {
	t.Helper()
	sum := sha1.Sum(content)
	if err := os.WriteFile(filepath.Join(dir, hex.EncodeToString(sum[:])), content, 0o644); err != nil {
		t.Fatal(err)
	}
	return base64.StdEncoding.EncodeToString(sum[:])
}

func TestCacheResolve(t *testing.T) {
	dir := t.TempDir()
	b64 := putFile(t, dir, []byte("stone pixels"))
	rec := &recorder{}
	c := NewCache(dir, rec, nil)

	p, ok := c.Resolve("stone.png", b64)
	if !ok {
		t.Fatalf("expected hit")
	}
	if filepath.Dir(p) != dir {
		t.Fatalf("path %s outside cache", p)
	}

	// Padding is optional.
	p2, ok := c.Resolve("stone.png", strings.TrimRight(b64, "="))
	if !ok || p2 != p {
		t.Fatalf("unpadded lookup: %q %v", p2, ok)
	}

	missing := sha1.Sum([]byte("other"))
	if _, ok := c.Resolve("dirt.png", base64.StdEncoding.EncodeToString(missing[:])); ok {
		t.Fatalf("expected miss")
	}
	if _, ok := c.Resolve("bad.png", "!!"); ok {
		t.Fatalf("expected bad hash miss")
	}

	if len(rec.recs) != 3 {
		t.Fatalf("records: %+v", rec.recs)
	}
	if !rec.recs[0].Found || rec.recs[2].Found || rec.recs[2].Name != "dirt.png" {
		t.Fatalf("records: %+v", rec.recs)
	}
}

func TestResolveManifest(t *testing.T) {
	dir := t.TempDir()
	b64 := putFile(t, dir, []byte("0123456789"))
	other := sha1.Sum([]byte("x"))
	c := NewCache(dir, nil, nil)
	m := c.ResolveManifest([]protocol.MediaFile{
		{Name: "a.png", SHA1: b64},
		{Name: "b.png", SHA1: base64.RawStdEncoding.EncodeToString(other[:])},
	})
	if len(m.Paths) != 1 || m.Paths["a.png"] == "" {
		t.Fatalf("paths: %v", m.Paths)
	}
	if len(m.Missing) != 1 || m.Missing[0] != "b.png" {
		t.Fatalf("missing: %v", m.Missing)
	}
	if m.Bytes != 10 {
		t.Fatalf("bytes: %d", m.Bytes)
	}
}

func TestTextureIndex(t *testing.T) {
	defs := nodedef.New(map[uint16]nodedef.Def{
		1: {Name: "stone", Tiles: [6]string{"stone.png", "stone.png", "stone.png", "stone.png", "stone.png", "stone.png^[crack"}},
		2: {Name: "dirt", Tiles: [6]string{"dirt.png", "dirt.png", "dirt.png", "dirt.png", "dirt.png", "dirt.png"}},
	})
	tex := BuildTextureIndex(defs, map[string]string{"stone.png": "/c/1", "dirt.png": "/c/2"}, nil)

	if !tex.Frozen() {
		t.Fatalf("index should be frozen")
	}
	// Fallback plus the two resolved tiles; unknown_node.png has no media.
	if tex.Len() != 3 || tex.Names()[0] != FallbackTexture {
		t.Fatalf("names: %v", tex.Names())
	}
	dirt, stone := tex.IndexOf("dirt.png"), tex.IndexOf("stone.png")
	if dirt == 0 || stone == 0 || dirt == stone {
		t.Fatalf("layers dirt=%d stone=%d", dirt, stone)
	}
	if tex.IndexOf("stone.png^[crack:2") != stone {
		t.Fatalf("modifiers should not change the layer")
	}
	if tex.IndexOf("unknown_node.png") != 0 || tex.IndexOf("nope.png") != 0 {
		t.Fatalf("unresolved names should use the fallback layer")
	}
	if _, err := tex.Add("new.png", ""); err != ErrFrozen {
		t.Fatalf("add after freeze: %v", err)
	}
	if l, err := tex.Add("dirt.png", ""); err != nil || l != dirt {
		t.Fatalf("re-adding an existing name should be allowed: %d %v", l, err)
	}
	if tex.Paths()[stone] != "/c/1" {
		t.Fatalf("paths: %v", tex.Paths())
	}
}
