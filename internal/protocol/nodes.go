package protocol

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"

	"cubetonic.app/internal/world"
)

// nodeRecordSize is u16 content (big endian), u8 param1, u8 param2.
const nodeRecordSize = 4

const nodeDataSize = world.NodesPerBlock * nodeRecordSize

var ErrBadNodeData = errors.New("bad node data")

// EncodeAll and DecodeAll are safe for concurrent use.
var (
	nodeEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	nodeDecoder, _ = zstd.NewReader(nil, zstd.WithDecoderConcurrency(0), zstd.WithDecoderMaxMemory(4*nodeDataSize))
)

// EncodeNodes is the BLOCK_DATA "nodes" encoding: base64 of a zstd frame
// holding every node in world.LocalIndex order.
func EncodeNodes(b *world.Block) string {
	raw := make([]byte, 0, nodeDataSize)
	for _, n := range b.Nodes {
		raw = binary.BigEndian.AppendUint16(raw, n.Content)
		raw = append(raw, n.Param1, n.Param2)
	}
	return base64.StdEncoding.EncodeToString(nodeEncoder.EncodeAll(raw, nil))
}

// DecodeNodes reverses EncodeNodes. Base64 padding is optional.
func DecodeNodes(s string) (*world.Block, error) {
	comp, err := DecodeBase64(s)
	if err != nil {
		return nil, fmt.Errorf("%w: base64: %v", ErrBadNodeData, err)
	}
	raw, err := nodeDecoder.DecodeAll(comp, make([]byte, 0, nodeDataSize))
	if err != nil {
		return nil, fmt.Errorf("%w: zstd: %v", ErrBadNodeData, err)
	}
	if len(raw) != nodeDataSize {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrBadNodeData, len(raw), nodeDataSize)
	}
	b := &world.Block{}
	for i := range b.Nodes {
		rec := raw[i*nodeRecordSize:]
		b.Nodes[i] = world.Node{
			Content: binary.BigEndian.Uint16(rec),
			Param1:  rec[2],
			Param2:  rec[3],
		}
	}
	return b, nil
}

// DecodeBase64 accepts standard base64 with or without padding.
func DecodeBase64(s string) ([]byte, error) {
	if len(s)%4 == 0 {
		return base64.StdEncoding.DecodeString(s)
	}
	return base64.RawStdEncoding.DecodeString(s)
}
