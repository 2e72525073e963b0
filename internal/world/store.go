package world

import "sort"

// Store is the client's sparse copy of the server map.
//
// Accessed only from the connection goroutine; there is no internal locking.
// Mesh workers never see a Store, only Snapshots built from it.
type Store struct {
	blocks map[BlockPos]*Block
}

func NewStore() *Store {
	return &Store{blocks: map[BlockPos]*Block{}}
}

// InsertOrReplace stores b at pos, dropping any previous block there.
// The store takes ownership of b.
func (s *Store) InsertOrReplace(pos BlockPos, b *Block) {
	s.blocks[pos] = b
}

func (s *Store) Get(pos BlockPos) (*Block, bool) {
	b, ok := s.blocks[pos]
	return b, ok
}

// SetNode writes n at pos and returns the block that needs remeshing.
// When the containing block is not loaded nothing is written and ok is false;
// the server resends the whole block later.
func (s *Store) SetNode(pos NodePos, n Node) (bp BlockPos, ok bool) {
	bp, idx := pos.Split()
	b, ok := s.blocks[bp]
	if !ok {
		return BlockPos{}, false
	}
	b.Nodes[idx] = n
	return bp, true
}

// GetNode reads a node in world space.
func (s *Store) GetNode(pos NodePos) (Node, bool) {
	bp, idx := pos.Split()
	b, ok := s.blocks[bp]
	if !ok {
		return Node{}, false
	}
	return b.Nodes[idx], true
}

func (s *Store) Len() int { return len(s.blocks) }

// Neighbors returns the loaded face-adjacent blocks of pos in Dirs order.
func (s *Store) Neighbors(pos BlockPos) []BlockPos {
	out := make([]BlockPos, 0, 6)
	for _, d := range Dirs {
		np := pos.Add(d.BlockOffset())
		if _, ok := s.blocks[np]; ok {
			out = append(out, np)
		}
	}
	return out
}

// Keys returns all loaded positions sorted by X, then Y, then Z.
func (s *Store) Keys() []BlockPos {
	keys := make([]BlockPos, 0, len(s.blocks))
	for k := range s.blocks {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].X != keys[j].X {
			return keys[i].X < keys[j].X
		}
		if keys[i].Y != keys[j].Y {
			return keys[i].Y < keys[j].Y
		}
		return keys[i].Z < keys[j].Z
	})
	return keys
}
