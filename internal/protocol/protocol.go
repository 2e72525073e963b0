package protocol

import "encoding/json"

// Wire versions this client speaks.
const (
	SerializationVersion = 29
	ProtoVersionMin      = 46
	ProtoVersionMax      = 46
	FormspecVersion      = 8
)

// Message types.
const (
	// client -> server
	TypeInit           = "INIT"
	TypeAuthResponse   = "AUTH_RESPONSE"
	TypeSessionInit    = "SESSION_INIT"
	TypeReady          = "READY"
	TypeAckBlocks      = "ACK_BLOCKS"
	TypePlayerPosition = "PLAYER_POSITION"

	// server -> client
	TypeHello           = "HELLO"
	TypeAuthAccepted    = "AUTH_ACCEPTED"
	TypeNodeDefinitions = "NODE_DEFINITIONS"
	TypeMediaManifest   = "MEDIA_MANIFEST"
	TypePlayerMove      = "PLAYER_MOVE"
	TypeBlockData       = "BLOCK_DATA"
	TypeVoxelAdd        = "VOXEL_ADD"
	TypeVoxelRemove     = "VOXEL_REMOVE"
	TypeAccessDenied    = "ACCESS_DENIED"
)

// Auth methods offered in HELLO.
const (
	AuthLegacyPassword = "legacy_password"
	AuthSRP            = "srp"
	AuthFirstSRP       = "first_srp"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type string `json:"type"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}
