package world

import "cubetonic.app/internal/mathx"

// Snapshot is an owned copy of one block and its loaded face neighbors,
// taken at a single instant. It is never updated after BuildSnapshot returns
// and is safe to read from any goroutine.
type Snapshot struct {
	pos       BlockPos
	center    *Block
	neighbors [6]*Block // indexed by Dir; nil when the neighbor was not loaded
}

// BuildSnapshot copies the block at center and its neighbors out of s.
// It reports false when the center block itself is not loaded.
func BuildSnapshot(s *Store, center BlockPos) (*Snapshot, bool) {
	b, ok := s.Get(center)
	if !ok {
		return nil, false
	}
	snap := &Snapshot{pos: center, center: b.Clone()}
	for _, d := range Dirs {
		if nb, ok := s.Get(center.Add(d.BlockOffset())); ok {
			snap.neighbors[d] = nb.Clone()
		}
	}
	return snap, true
}

func (s *Snapshot) Pos() BlockPos { return s.pos }

func (s *Snapshot) Center() *Block { return s.center }

// HasNeighbor reports whether the neighbor in direction d was loaded.
func (s *Snapshot) HasNeighbor(d Dir) bool { return s.neighbors[d] != nil }

// Node resolves a position relative to the center block's origin. Positions
// inside the center block and positions one block out along a single axis
// resolve; anything else, and anything inside a missing neighbor, does not.
func (s *Snapshot) Node(rel NodePos) (Node, bool) {
	off := BlockPos{
		X: mathx.FloorDiv(rel.X, BlockSize),
		Y: mathx.FloorDiv(rel.Y, BlockSize),
		Z: mathx.FloorDiv(rel.Z, BlockSize),
	}
	idx := LocalIndex(mathx.Mod(rel.X, BlockSize), mathx.Mod(rel.Y, BlockSize), mathx.Mod(rel.Z, BlockSize))
	if off == (BlockPos{}) {
		return s.center.Nodes[idx], true
	}
	d, ok := dirFromBlockOffset(off)
	if !ok {
		return Node{}, false
	}
	nb := s.neighbors[d]
	if nb == nil {
		return Node{}, false
	}
	return nb.Nodes[idx], true
}
