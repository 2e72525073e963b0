package world

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplitComposeInverse(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for i := 0; i < 5000; i++ {
		p := NodePos{X: r.Intn(2000) - 1000, Y: r.Intn(2000) - 1000, Z: r.Intn(2000) - 1000}
		bp, idx := p.Split()
		require.GreaterOrEqual(t, idx, 0)
		require.Less(t, idx, NodesPerBlock)
		require.Equal(t, p, Compose(bp, idx), "pos %v", p)
	}
	for idx := 0; idx < NodesPerBlock; idx++ {
		bp := BlockPos{X: -3, Y: 2, Z: -1}
		gotBP, gotIdx := Compose(bp, idx).Split()
		require.Equal(t, bp, gotBP)
		require.Equal(t, idx, gotIdx)
	}
}

func TestSplitNegativeBoundaries(t *testing.T) {
	bp, idx := NodePos{X: -1, Y: 0, Z: 15}.Split()
	require.Equal(t, BlockPos{X: -1, Y: 0, Z: 0}, bp)
	require.Equal(t, LocalIndex(15, 0, 15), idx)

	bp, idx = NodePos{X: -16, Y: -17, Z: 16}.Split()
	require.Equal(t, BlockPos{X: -1, Y: -2, Z: 1}, bp)
	require.Equal(t, LocalIndex(0, 15, 0), idx)
}

func TestDirOpposite(t *testing.T) {
	for _, d := range Dirs {
		o := d.Opposite()
		require.Equal(t, d, o.Opposite())
		require.Equal(t, BlockPos{}, d.BlockOffset().Add(o.BlockOffset()), "dir %s", d)
	}
}

func TestStoreSetNodeMissingBlockIsNoop(t *testing.T) {
	s := NewStore()
	s.InsertOrReplace(BlockPos{}, NewFilledBlock(ContentAir))

	_, ok := s.SetNode(NodePos{X: 100, Y: 0, Z: 0}, Node{Content: 1})
	require.False(t, ok)
	require.Equal(t, 1, s.Len())
	_, ok = s.Get(BlockPos{X: 6})
	require.False(t, ok)
}

func TestStoreSetNodeMutatesInPlace(t *testing.T) {
	s := NewStore()
	s.InsertOrReplace(BlockPos{X: -1}, NewFilledBlock(ContentAir))

	bp, ok := s.SetNode(NodePos{X: -1, Y: 3, Z: 4}, Node{Content: 9, Param2: 2})
	require.True(t, ok)
	require.Equal(t, BlockPos{X: -1}, bp)

	n, ok := s.GetNode(NodePos{X: -1, Y: 3, Z: 4})
	require.True(t, ok)
	require.Equal(t, Node{Content: 9, Param2: 2}, n)

	b, _ := s.Get(bp)
	require.Equal(t, uint16(9), b.Get(15, 3, 4).Content)
}

func TestStoreNeighborsAndKeys(t *testing.T) {
	s := NewStore()
	c := BlockPos{X: 1, Y: 1, Z: 1}
	s.InsertOrReplace(c, NewFilledBlock(ContentAir))
	s.InsertOrReplace(c.Add(DirUp.BlockOffset()), NewFilledBlock(ContentAir))
	s.InsertOrReplace(c.Add(DirSouth.BlockOffset()), NewFilledBlock(ContentAir))
	s.InsertOrReplace(BlockPos{X: 2, Y: 2, Z: 2}, NewFilledBlock(ContentAir)) // diagonal

	require.Equal(t, []BlockPos{{X: 1, Y: 2, Z: 1}, {X: 1, Y: 1, Z: 0}}, s.Neighbors(c))
	require.Equal(t, []BlockPos{{1, 1, 0}, {1, 1, 1}, {1, 2, 1}, {2, 2, 2}}, s.Keys())
}

func TestBlockIsVacuum(t *testing.T) {
	b := NewFilledBlock(ContentAir)
	require.True(t, b.IsVacuum())
	b.Set(15, 15, 15, Node{Content: ContentIgnore})
	require.False(t, b.IsVacuum())
	require.ElementsMatch(t, []uint16{ContentAir, ContentIgnore}, b.ContentIDs())
}

func TestSnapshotLocality(t *testing.T) {
	s := NewStore()
	c := BlockPos{X: 4, Y: -2, Z: 7}
	center := NewFilledBlock(ContentAir)
	center.Set(0, 0, 0, Node{Content: 1})
	px := NewFilledBlock(2)
	ny := NewFilledBlock(3)
	s.InsertOrReplace(c, center)
	s.InsertOrReplace(c.Add(DirEast.BlockOffset()), px)
	s.InsertOrReplace(c.Add(DirDown.BlockOffset()), ny)

	snap, ok := BuildSnapshot(s, c)
	require.True(t, ok)
	require.Equal(t, c, snap.Pos())

	n, ok := snap.Node(NodePos{})
	require.True(t, ok)
	require.Equal(t, uint16(1), n.Content)
	n, ok = snap.Node(NodePos{X: 15, Y: 15, Z: 15})
	require.True(t, ok)
	require.Equal(t, ContentAir, n.Content)

	n, ok = snap.Node(NodePos{X: 16, Y: 3, Z: 3})
	require.True(t, ok, "+X neighbor")
	require.Equal(t, uint16(2), n.Content)
	n, ok = snap.Node(NodePos{X: 5, Y: -1, Z: 9})
	require.True(t, ok, "-Y neighbor")
	require.Equal(t, uint16(3), n.Content)

	for _, p := range []NodePos{
		{X: 0, Y: 16, Z: 0},  // +Y
		{X: -1, Y: 0, Z: 0},  // -X
		{X: 0, Y: 0, Z: 16},  // +Z
		{X: 0, Y: 0, Z: -1},  // -Z
		{X: 16, Y: -1, Z: 0}, // diagonal
		{X: 32, Y: 0, Z: 0},  // two blocks out
	} {
		_, ok := snap.Node(p)
		require.False(t, ok, "pos %v", p)
	}
}

func TestSnapshotIsIndependentOfStore(t *testing.T) {
	s := NewStore()
	s.InsertOrReplace(BlockPos{}, NewFilledBlock(ContentAir))
	s.InsertOrReplace(BlockPos{X: 1}, NewFilledBlock(ContentAir))
	snap, ok := BuildSnapshot(s, BlockPos{})
	require.True(t, ok)

	s.SetNode(NodePos{X: 0, Y: 0, Z: 0}, Node{Content: 5})
	s.SetNode(NodePos{X: 16, Y: 0, Z: 0}, Node{Content: 6})
	s.InsertOrReplace(BlockPos{Y: 1}, NewFilledBlock(7))

	n, _ := snap.Node(NodePos{})
	require.Equal(t, ContentAir, n.Content)
	n, _ = snap.Node(NodePos{X: 16})
	require.Equal(t, ContentAir, n.Content)
	require.False(t, snap.HasNeighbor(DirUp))
}

func TestBuildSnapshotMissingCenter(t *testing.T) {
	s := NewStore()
	s.InsertOrReplace(BlockPos{X: 1}, NewFilledBlock(ContentAir))
	_, ok := BuildSnapshot(s, BlockPos{})
	require.False(t, ok)
}
