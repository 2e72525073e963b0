package world

// Content ids reserved by the server protocol; never sent in node definitions.
const (
	ContentUnknown uint16 = 125
	ContentAir     uint16 = 126
	ContentIgnore  uint16 = 127
)

// Node is a single voxel record. Meshing only looks at Content.
type Node struct {
	Content uint16
	Param1  uint8
	Param2  uint8
}

// Block owns NodesPerBlock nodes in LocalIndex order.
type Block struct {
	Nodes [NodesPerBlock]Node
}

// NewFilledBlock returns a block where every node has content c.
func NewFilledBlock(c uint16) *Block {
	b := &Block{}
	for i := range b.Nodes {
		b.Nodes[i].Content = c
	}
	return b
}

func (b *Block) Get(x, y, z int) Node {
	return b.Nodes[LocalIndex(x, y, z)]
}

func (b *Block) Set(x, y, z int, n Node) {
	b.Nodes[LocalIndex(x, y, z)] = n
}

// Clone returns an independent deep copy.
func (b *Block) Clone() *Block {
	c := *b
	return &c
}

// IsVacuum reports whether every node is air. Other airlike content makes the
// block non-vacuum even though it renders nothing.
func (b *Block) IsVacuum() bool {
	for i := range b.Nodes {
		if b.Nodes[i].Content != ContentAir {
			return false
		}
	}
	return true
}

// ContentIDs returns the distinct content ids present in the block.
func (b *Block) ContentIDs() []uint16 {
	seen := make(map[uint16]struct{}, 8)
	out := make([]uint16, 0, 8)
	for i := range b.Nodes {
		c := b.Nodes[i].Content
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}
