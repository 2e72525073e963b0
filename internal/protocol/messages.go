package protocol

import "github.com/go-gl/mathgl/mgl32"

// INIT (client -> server)
type InitMsg struct {
	Type                 string `json:"type"`
	Username             string `json:"username"`
	SerializationVersion int    `json:"serialization_version"`
	ProtoVersionMin      int    `json:"proto_version_min"`
	ProtoVersionMax      int    `json:"proto_version_max"`
}

// HELLO (server -> client)
type HelloMsg struct {
	Type                 string   `json:"type"`
	SerializationVersion int      `json:"serialization_version"`
	ProtoVersion         int      `json:"proto_version"`
	AuthMethods          []string `json:"auth_methods"`
	LegacyName           string   `json:"legacy_name,omitempty"`
}

// AUTH_RESPONSE (client -> server). With an empty salt and verifier this is
// the first-login registration marker for accounts without a password.
type AuthResponseMsg struct {
	Type     string `json:"type"`
	Salt     string `json:"salt"`
	Verifier string `json:"verifier"`
	IsEmpty  bool   `json:"is_empty"`
}

// AUTH_ACCEPTED (server -> client)
type AuthAcceptedMsg struct {
	Type           string     `json:"type"`
	PlayerPos      mgl32.Vec3 `json:"player_pos"`
	MapSeed        uint64     `json:"map_seed,omitempty"`
	SendInterval   float32    `json:"send_interval,omitempty"`
	SudoAuthMethod []string   `json:"sudo_auth_methods,omitempty"`
}

// SESSION_INIT (client -> server)
type SessionInitMsg struct {
	Type string `json:"type"`
	Lang string `json:"lang"`
}

// NODE_DEFINITIONS (server -> client). Tiles are in +Y, -Y, +X, -X, +Z, -Z order.
type NodeDefinitionsMsg struct {
	Type string               `json:"type"`
	Defs map[uint16]NodeDefV1 `json:"defs"`
}

type NodeDefV1 struct {
	Name     string   `json:"name"`
	DrawType string   `json:"drawtype"`
	Tiles    []string `json:"tiles"`
}

// MEDIA_MANIFEST (server -> client)
type MediaManifestMsg struct {
	Type      string      `json:"type"`
	Files     []MediaFile `json:"files"`
	RemoteURL string      `json:"remote_url,omitempty"`
}

type MediaFile struct {
	Name string `json:"name"`
	// SHA1 is base64 of the raw digest; padding may be absent.
	SHA1 string `json:"sha1"`
}

// READY (client -> server)
type ReadyMsg struct {
	Type            string `json:"type"`
	Major           int    `json:"major"`
	Minor           int    `json:"minor"`
	Patch           int    `json:"patch"`
	FullVersion     string `json:"full_version"`
	FormspecVersion int    `json:"formspec_version"`
}

// PLAYER_MOVE (server -> client): authoritative teleport.
type PlayerMoveMsg struct {
	Type  string     `json:"type"`
	Pos   mgl32.Vec3 `json:"pos"`
	Yaw   float32    `json:"yaw"`
	Pitch float32    `json:"pitch"`
}

// PLAYER_POSITION (client -> server)
type PlayerPositionMsg struct {
	Type      string     `json:"type"`
	Pos       mgl32.Vec3 `json:"pos"`
	Speed     mgl32.Vec3 `json:"speed"`
	Yaw       float32    `json:"yaw"`
	Pitch     float32    `json:"pitch"`
	ViewRange int        `json:"view_range"`
}

// BLOCK_DATA (server -> client). Nodes is produced by EncodeNodes.
type BlockDataMsg struct {
	Type  string `json:"type"`
	Pos   [3]int `json:"pos"`
	Nodes string `json:"nodes"`
}

// ACK_BLOCKS (client -> server)
type AckBlocksMsg struct {
	Type   string   `json:"type"`
	Blocks [][3]int `json:"blocks"`
}

type NodeV1 struct {
	Content uint16 `json:"content"`
	Param1  uint8  `json:"param1,omitempty"`
	Param2  uint8  `json:"param2,omitempty"`
}

// VOXEL_ADD (server -> client)
type VoxelAddMsg struct {
	Type string `json:"type"`
	Pos  [3]int `json:"pos"`
	Node NodeV1 `json:"node"`
}

// VOXEL_REMOVE (server -> client). The node becomes air.
type VoxelRemoveMsg struct {
	Type string `json:"type"`
	Pos  [3]int `json:"pos"`
}

// ACCESS_DENIED (server -> client)
type AccessDeniedMsg struct {
	Type      string `json:"type"`
	Code      string `json:"code"`
	Reason    string `json:"reason,omitempty"`
	Reconnect bool   `json:"reconnect,omitempty"`
}
