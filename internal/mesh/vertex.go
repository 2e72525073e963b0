package mesh

import (
	"encoding/binary"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// VertexSize is the packed size of one Vertex in bytes.
const VertexSize = 36

type Vertex struct {
	Position mgl32.Vec3
	UV       mgl32.Vec2
	Normal   mgl32.Vec3
	Texture  uint32
}

// Mesh is CPU-side geometry for one block.
type Mesh struct {
	Vertices []Vertex
	Indices  []uint32
}

func (m Mesh) Triangles() int { return len(m.Indices) / 3 }

func (m Mesh) Empty() bool { return len(m.Indices) == 0 }

// quadIndices is clockwise.
var quadIndices = [6]uint32{0, 1, 2, 2, 3, 0}

var quadUVs = [4]mgl32.Vec2{{0, 0}, {1, 0}, {1, 1}, {0, 1}}

// cubeFaces holds the four corners of each unit-cube face around the node
// center, in world.Dirs order.
var cubeFaces = [6][4]mgl32.Vec3{
	{{-0.5, 0.5, 0.5}, {0.5, 0.5, 0.5}, {0.5, 0.5, -0.5}, {-0.5, 0.5, -0.5}},
	{{-0.5, -0.5, -0.5}, {0.5, -0.5, -0.5}, {0.5, -0.5, 0.5}, {-0.5, -0.5, 0.5}},
	{{0.5, 0.5, -0.5}, {0.5, 0.5, 0.5}, {0.5, -0.5, 0.5}, {0.5, -0.5, -0.5}},
	{{-0.5, 0.5, 0.5}, {-0.5, 0.5, -0.5}, {-0.5, -0.5, -0.5}, {-0.5, -0.5, 0.5}},
	{{0.5, 0.5, 0.5}, {-0.5, 0.5, 0.5}, {-0.5, -0.5, 0.5}, {0.5, -0.5, 0.5}},
	{{-0.5, 0.5, -0.5}, {0.5, 0.5, -0.5}, {0.5, -0.5, -0.5}, {-0.5, -0.5, -0.5}},
}

var faceNormals = [6]mgl32.Vec3{
	{0, 1, 0},
	{0, -1, 0},
	{1, 0, 0},
	{-1, 0, 0},
	{0, 0, 1},
	{0, 0, -1},
}

func (m *Mesh) addQuad(face int, center mgl32.Vec3, texture uint32) {
	base := uint32(len(m.Vertices))
	for i, corner := range cubeFaces[face] {
		m.Vertices = append(m.Vertices, Vertex{
			Position: center.Add(corner),
			UV:       quadUVs[i],
			Normal:   faceNormals[face],
			Texture:  texture,
		})
	}
	for _, idx := range quadIndices {
		m.Indices = append(m.Indices, base+idx)
	}
}

// VertexBytes packs vertices little-endian: position, uv, normal, texture.
func VertexBytes(vs []Vertex) []byte {
	out := make([]byte, 0, len(vs)*VertexSize)
	putF := func(f float32) {
		out = binary.LittleEndian.AppendUint32(out, math.Float32bits(f))
	}
	for _, v := range vs {
		putF(v.Position[0])
		putF(v.Position[1])
		putF(v.Position[2])
		putF(v.UV[0])
		putF(v.UV[1])
		putF(v.Normal[0])
		putF(v.Normal[1])
		putF(v.Normal[2])
		out = binary.LittleEndian.AppendUint32(out, v.Texture)
	}
	return out
}

func IndexBytes(idx []uint32) []byte {
	out := make([]byte, 0, len(idx)*4)
	for _, i := range idx {
		out = binary.LittleEndian.AppendUint32(out, i)
	}
	return out
}
