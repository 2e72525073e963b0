package world

import (
	"fmt"

	"cubetonic.app/internal/mathx"
)

const (
	// BlockSize is the edge length of a block in nodes.
	BlockSize     = 16
	NodesPerBlock = BlockSize * BlockSize * BlockSize
)

// BlockPos addresses a 16³ block of nodes.
type BlockPos struct {
	X int
	Y int
	Z int
}

func (p BlockPos) Add(d BlockPos) BlockPos {
	return BlockPos{X: p.X + d.X, Y: p.Y + d.Y, Z: p.Z + d.Z}
}

// Origin is the world position of the block's (0,0,0) node.
func (p BlockPos) Origin() NodePos {
	return NodePos{X: p.X * BlockSize, Y: p.Y * BlockSize, Z: p.Z * BlockSize}
}

func (p BlockPos) ToArray() [3]int { return [3]int{p.X, p.Y, p.Z} }

func (p BlockPos) String() string { return fmt.Sprintf("(%d,%d,%d)", p.X, p.Y, p.Z) }

func BlockPosFromArray(a [3]int) BlockPos { return BlockPos{X: a[0], Y: a[1], Z: a[2]} }

// NodePos addresses a single node in world space.
type NodePos struct {
	X int
	Y int
	Z int
}

func (p NodePos) Add(d NodePos) NodePos {
	return NodePos{X: p.X + d.X, Y: p.Y + d.Y, Z: p.Z + d.Z}
}

func (p NodePos) ToArray() [3]int { return [3]int{p.X, p.Y, p.Z} }

func (p NodePos) String() string { return fmt.Sprintf("(%d,%d,%d)", p.X, p.Y, p.Z) }

func NodePosFromArray(a [3]int) NodePos { return NodePos{X: a[0], Y: a[1], Z: a[2]} }

// Split decomposes p into its containing block and the node's index inside it.
func (p NodePos) Split() (BlockPos, int) {
	bp := BlockPos{
		X: mathx.FloorDiv(p.X, BlockSize),
		Y: mathx.FloorDiv(p.Y, BlockSize),
		Z: mathx.FloorDiv(p.Z, BlockSize),
	}
	return bp, LocalIndex(mathx.Mod(p.X, BlockSize), mathx.Mod(p.Y, BlockSize), mathx.Mod(p.Z, BlockSize))
}

// Compose is the inverse of NodePos.Split.
func Compose(bp BlockPos, index int) NodePos {
	x, y, z := LocalCoords(index)
	o := bp.Origin()
	return NodePos{X: o.X + x, Y: o.Y + y, Z: o.Z + z}
}

// LocalIndex orders nodes x fastest, then y, then z.
func LocalIndex(x, y, z int) int {
	return x + y*BlockSize + z*BlockSize*BlockSize
}

func LocalCoords(index int) (x, y, z int) {
	x = index % BlockSize
	y = (index / BlockSize) % BlockSize
	z = index / (BlockSize * BlockSize)
	return x, y, z
}

// Dir is one of the six face directions.
type Dir int

const (
	DirUp Dir = iota
	DirDown
	DirEast
	DirWest
	DirNorth
	DirSouth
)

// Dirs lists the face directions in tile order: +Y, -Y, +X, -X, +Z, -Z.
var Dirs = [6]Dir{DirUp, DirDown, DirEast, DirWest, DirNorth, DirSouth}

var dirOffsets = [6][3]int{
	{0, 1, 0},
	{0, -1, 0},
	{1, 0, 0},
	{-1, 0, 0},
	{0, 0, 1},
	{0, 0, -1},
}

func (d Dir) Offset() (dx, dy, dz int) {
	o := dirOffsets[d]
	return o[0], o[1], o[2]
}

func (d Dir) BlockOffset() BlockPos {
	o := dirOffsets[d]
	return BlockPos{X: o[0], Y: o[1], Z: o[2]}
}

func (d Dir) NodeOffset() NodePos {
	o := dirOffsets[d]
	return NodePos{X: o[0], Y: o[1], Z: o[2]}
}

func (d Dir) Opposite() Dir {
	// Pairs are adjacent: (Up,Down), (East,West), (North,South).
	return d ^ 1
}

func (d Dir) String() string {
	switch d {
	case DirUp:
		return "+Y"
	case DirDown:
		return "-Y"
	case DirEast:
		return "+X"
	case DirWest:
		return "-X"
	case DirNorth:
		return "+Z"
	case DirSouth:
		return "-Z"
	default:
		return fmt.Sprintf("Dir(%d)", int(d))
	}
}

// dirFromBlockOffset is the inverse of Dir.BlockOffset.
func dirFromBlockOffset(o BlockPos) (Dir, bool) {
	for _, d := range Dirs {
		if d.BlockOffset() == o {
			return d, true
		}
	}
	return 0, false
}
