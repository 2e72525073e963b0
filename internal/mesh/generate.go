package mesh

import (
	"github.com/go-gl/mathgl/mgl32"

	"cubetonic.app/internal/nodedef"
	"cubetonic.app/internal/world"
)

// NodeDefs is the read-only view of node definitions the mesher needs.
type NodeDefs interface {
	Classify(id uint16) nodedef.Class
	FaceTexture(id uint16, face int) string
}

// TextureLookup maps a tile name to its texture array layer.
type TextureLookup interface {
	IndexOf(name string) uint32
}

// Generate builds a face-culled cube mesh for the snapshot's center block.
//
// A face is emitted when the node is not empty and the node across that face
// resolves and is empty. Faces toward a neighbor block that was not loaded are
// left out; the neighbor's arrival triggers a remesh of this block.
func Generate(snap *world.Snapshot, defs NodeDefs, tex TextureLookup) Mesh {
	var m Mesh
	center := snap.Center()
	origin := snap.Pos().Origin()
	for i := range center.Nodes {
		id := center.Nodes[i].Content
		if defs.Classify(id) == nodedef.ClassEmpty {
			continue
		}
		x, y, z := world.LocalCoords(i)
		pos := mgl32.Vec3{float32(origin.X + x), float32(origin.Y + y), float32(origin.Z + z)}
		for face, d := range world.Dirs {
			dx, dy, dz := d.Offset()
			nb, ok := snap.Node(world.NodePos{X: x + dx, Y: y + dy, Z: z + dz})
			if !ok || defs.Classify(nb.Content) != nodedef.ClassEmpty {
				continue
			}
			var layer uint32
			if tex != nil {
				layer = tex.IndexOf(defs.FaceTexture(id, face))
			}
			m.addQuad(face, pos, layer)
		}
	}
	return m
}
