package mesh

import (
	"encoding/binary"
	"errors"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/require"

	"cubetonic.app/internal/nodedef"
	"cubetonic.app/internal/world"
)

const stone uint16 = 1

func testDefs() *nodedef.Manager {
	tiles := [6]string{"top.png", "bottom.png", "side.png", "side.png", "side.png", "side.png"}
	return nodedef.New(map[uint16]nodedef.Def{
		stone: {Name: "default:stone", DrawType: nodedef.DrawNormal, Tiles: tiles},
	})
}

type layers map[string]uint32

func (l layers) IndexOf(name string) uint32 { return l[name] }

var testLayers = layers{"top.png": 1, "bottom.png": 2, "side.png": 3}

func snapshotOf(t *testing.T, s *world.Store, pos world.BlockPos) *world.Snapshot {
	t.Helper()
	snap, ok := world.BuildSnapshot(s, pos)
	require.True(t, ok)
	return snap
}

func TestGenerateCornerWithoutNeighbors(t *testing.T) {
	b := world.NewFilledBlock(world.ContentAir)
	for x := 0; x < 2; x++ {
		for y := 0; y < 2; y++ {
			for z := 0; z < 2; z++ {
				b.Set(x, y, z, world.Node{Content: stone})
			}
		}
	}
	s := world.NewStore()
	s.InsertOrReplace(world.BlockPos{}, b)

	m := Generate(snapshotOf(t, s, world.BlockPos{}), testDefs(), testLayers)
	require.Equal(t, 24, m.Triangles())
	require.Len(t, m.Vertices, 48)

	perNormal := map[mgl32.Vec3]int{}
	for _, v := range m.Vertices {
		perNormal[v.Normal]++
	}
	require.Equal(t, map[mgl32.Vec3]int{
		{1, 0, 0}: 16,
		{0, 1, 0}: 16,
		{0, 0, 1}: 16,
	}, perNormal)

	for _, v := range m.Vertices {
		switch v.Normal {
		case mgl32.Vec3{0, 1, 0}:
			require.Equal(t, uint32(1), v.Texture)
			require.InDelta(t, 1.5, v.Position.Y(), 1e-6)
		case mgl32.Vec3{1, 0, 0}:
			require.Equal(t, uint32(3), v.Texture)
			require.InDelta(t, 1.5, v.Position.X(), 1e-6)
		}
	}
}

func TestGenerateQuadWinding(t *testing.T) {
	b := world.NewFilledBlock(world.ContentAir)
	b.Set(5, 5, 5, world.Node{Content: stone})
	s := world.NewStore()
	s.InsertOrReplace(world.BlockPos{X: 1}, b)

	m := Generate(snapshotOf(t, s, world.BlockPos{X: 1}), testDefs(), nil)
	require.Equal(t, 12, m.Triangles())
	require.Equal(t, []uint32{0, 1, 2, 2, 3, 0}, m.Indices[:6])
	require.Equal(t, []uint32{4, 5, 6, 6, 7, 4}, m.Indices[6:12])
	// Top face of the node at world (21,5,5).
	require.Equal(t, mgl32.Vec3{20.5, 5.5, 5.5}, m.Vertices[0].Position)
	require.Equal(t, mgl32.Vec2{0, 0}, m.Vertices[0].UV)
	require.Equal(t, mgl32.Vec2{0, 1}, m.Vertices[3].UV)
}

func TestVertexBytesLayout(t *testing.T) {
	vs := []Vertex{{Position: mgl32.Vec3{1, 2, 3}, UV: mgl32.Vec2{0.5, 1}, Normal: mgl32.Vec3{0, -1, 0}, Texture: 7}}
	b := VertexBytes(vs)
	require.Len(t, b, VertexSize)
	require.Equal(t, float32(2), math.Float32frombits(binary.LittleEndian.Uint32(b[4:])))
	require.Equal(t, float32(-1), math.Float32frombits(binary.LittleEndian.Uint32(b[24:])))
	require.Equal(t, uint32(7), binary.LittleEndian.Uint32(b[32:]))
	require.Len(t, IndexBytes([]uint32{0, 1, 2}), 12)
}

func newTestPool(t *testing.T, defs NodeDefs, up Uploader) *Pool {
	t.Helper()
	p, err := NewPool(Config{Workers: 3}, defs, testLayers, up)
	require.NoError(t, err)
	t.Cleanup(p.Close)
	return p
}

func collect(t *testing.T, p *Pool, n int) []Result {
	t.Helper()
	out := make([]Result, 0, n)
	timeout := time.After(5 * time.Second)
	for len(out) < n {
		select {
		case r := <-p.Results():
			out = append(out, r)
		case <-timeout:
			t.Fatalf("got %d of %d results", len(out), n)
		}
	}
	return out
}

func TestEmptyFastPathMatchesFullPath(t *testing.T) {
	s := world.NewStore()
	pos := world.BlockPos{Y: -1}
	s.InsertOrReplace(pos, world.NewFilledBlock(world.ContentAir))
	center, _ := s.Get(pos)
	snapFn := func() (*world.Snapshot, bool) { return world.BuildSnapshot(s, pos) }

	p := newTestPool(t, testDefs(), NewMemoryUploader())
	fast := p.Submit(pos, center, snapFn)
	full := p.Submit(pos, nil, snapFn)
	require.Less(t, fast, full)

	res := collect(t, p, 2)
	for _, r := range res {
		require.Equal(t, pos, r.Pos)
		require.Zero(t, r.Triangles)
		require.True(t, r.Empty())
	}
	st := p.Stats()
	require.Equal(t, uint64(1), st.FastEmpty)
	require.Equal(t, uint64(1), st.LateEmpty)
	require.Zero(t, st.Uploaded)

	gm := Generate(snapshotOf(t, s, pos), testDefs(), nil)
	require.True(t, gm.Empty())
}

func TestLateEmptyForEnclosedSolid(t *testing.T) {
	s := world.NewStore()
	s.InsertOrReplace(world.BlockPos{}, world.NewFilledBlock(stone))
	center, _ := s.Get(world.BlockPos{})

	up := NewMemoryUploader()
	p := newTestPool(t, testDefs(), up)
	p.Submit(world.BlockPos{}, center, func() (*world.Snapshot, bool) { return world.BuildSnapshot(s, world.BlockPos{}) })
	r := collect(t, p, 1)[0]
	require.True(t, r.Empty())
	require.Equal(t, uint64(1), p.Stats().LateEmpty)
	require.Zero(t, up.Uploads())
}

func TestMissingSnapshotYieldsEmptyResult(t *testing.T) {
	p := newTestPool(t, testDefs(), NewMemoryUploader())
	stamp := p.Submit(world.BlockPos{X: 9}, nil, func() (*world.Snapshot, bool) { return nil, false })
	r := collect(t, p, 1)[0]
	require.Equal(t, stamp, r.Stamp)
	require.True(t, r.Empty())
}

type panicDefs struct{}

func (panicDefs) Classify(uint16) nodedef.Class  { panic("boom") }
func (panicDefs) FaceTexture(uint16, int) string { return "" }

type failingUploader struct{}

func (failingUploader) Upload([]byte, []byte) (Buffers, error) {
	return Buffers{}, errors.New("device lost")
}

func TestFailedJobsStillReport(t *testing.T) {
	s := world.NewStore()
	b := world.NewFilledBlock(world.ContentAir)
	b.Set(0, 0, 0, world.Node{Content: stone})
	s.InsertOrReplace(world.BlockPos{}, b)
	snapFn := func() (*world.Snapshot, bool) { return world.BuildSnapshot(s, world.BlockPos{}) }

	p := newTestPool(t, panicDefs{}, NewMemoryUploader())
	p.Submit(world.BlockPos{}, b, snapFn)
	require.True(t, collect(t, p, 1)[0].Empty())
	require.Equal(t, uint64(1), p.Stats().Failed)

	q := newTestPool(t, testDefs(), failingUploader{})
	q.Submit(world.BlockPos{}, b, snapFn)
	require.True(t, collect(t, q, 1)[0].Empty())
	require.Equal(t, uint64(1), q.Stats().Failed)
}

type countingReleaser struct{ released []uint64 }

func (c *countingReleaser) Release(b Buffers) { c.released = append(c.released, b.ID) }

func TestReconcilerKeepsMaxStamp(t *testing.T) {
	pos := world.BlockPos{X: 2, Y: -3, Z: 4}
	r := rand.New(rand.NewSource(11))
	for round := 0; round < 200; round++ {
		n := 1 + r.Intn(8)
		results := make([]Result, n)
		for i := range results {
			results[i] = Result{Pos: pos, Stamp: uint64(i + 1), Triangles: 2 * (i + 1), Buffers: &Buffers{ID: uint64(i + 1)}}
		}
		r.Shuffle(n, func(i, j int) { results[i], results[j] = results[j], results[i] })

		rel := &countingReleaser{}
		rec := NewReconciler(rel, nil, false)
		for _, res := range results {
			rec.Accept(res)
		}
		got, ok := rec.Table().Get(pos)
		require.True(t, ok)
		require.Equal(t, uint64(n), got.Stamp)
		require.Equal(t, 2*n, rec.Table().Triangles())
		require.Len(t, rel.released, n-1)
		require.NotContains(t, rel.released, uint64(n))
	}
}

func TestReconcilerEqualStampIsStale(t *testing.T) {
	rec := NewReconciler(nil, nil, false)
	pos := world.BlockPos{}
	require.True(t, rec.Accept(Result{Pos: pos, Stamp: 5, Triangles: 2}))
	require.False(t, rec.Accept(Result{Pos: pos, Stamp: 5, Triangles: 4}))
	require.False(t, rec.Accept(Result{Pos: pos, Stamp: 3}))
	got, _ := rec.Table().Get(pos)
	require.Equal(t, 2, got.Triangles)
	accepted, stale := rec.Counts()
	require.Equal(t, uint64(1), accepted)
	require.Equal(t, uint64(2), stale)
}

func TestMailboxDrainKeepsOrder(t *testing.T) {
	var mb Mailbox
	for i := 1; i <= 3; i++ {
		mb.Push(Result{Stamp: uint64(i)})
	}
	require.Equal(t, 3, mb.Len())
	got := mb.Drain(nil)
	require.Len(t, got, 3)
	for i, r := range got {
		require.Equal(t, uint64(i+1), r.Stamp)
	}
	require.Zero(t, mb.Len())
	require.Empty(t, mb.Drain(nil))
}

func TestSubmitAfterClose(t *testing.T) {
	p, err := NewPool(Config{Workers: 1}, testDefs(), nil, NewMemoryUploader())
	require.NoError(t, err)
	p.Close()
	require.Zero(t, p.Submit(world.BlockPos{}, nil, func() (*world.Snapshot, bool) { return nil, false }))
	_, open := <-p.Results()
	require.False(t, open)
}

func TestCloseReleasesUnreceivedResults(t *testing.T) {
	s := world.NewStore()
	up := NewMemoryUploader()
	p, err := NewPool(Config{Workers: 2}, testDefs(), testLayers, up)
	require.NoError(t, err)

	const n = 20
	for i := 0; i < n; i++ {
		pos := world.BlockPos{X: i}
		b := world.NewFilledBlock(world.ContentAir)
		b.Set(3, 3, 3, world.Node{Content: stone})
		s.InsertOrReplace(pos, b)
		snap := snapshotOf(t, s, pos)
		p.Submit(pos, b, func() (*world.Snapshot, bool) { return snap, true })
	}

	// Nobody reads Results before Close.
	p.Close()
	require.Equal(t, uint64(n), up.Uploads())
	live, bytes := up.Live()
	require.Zero(t, live)
	require.Zero(t, bytes)
	_, open := <-p.Results()
	require.False(t, open)
}
