package client

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"cubetonic.app/internal/mathx"
	"cubetonic.app/internal/media"
	"cubetonic.app/internal/mesh"
	"cubetonic.app/internal/nodedef"
	"cubetonic.app/internal/protocol"
	"cubetonic.app/internal/world"
)

// Version reported in READY.
const (
	VersionMajor = 0
	VersionMinor = 1
	VersionPatch = 0
	FullVersion  = "Cubetonic 0.1.0"
)

// Sender writes one outbound message.
type Sender interface {
	Send(msgType string, v any) error
}

// Mesher is the mesh pipeline as the connection sees it.
type Mesher interface {
	Submit(pos world.BlockPos, center *world.Block, snapshot mesh.SnapshotFunc) uint64
	Results() <-chan mesh.Result
	Stats() mesh.Stats
	Close()
}

// MesherFactory builds the pipeline once node definitions and textures are
// final. Both are shared read-only with every worker afterwards.
type MesherFactory func(defs *nodedef.Manager, tex *media.TextureIndex) (Mesher, error)

// MediaResolver looks up the media manifest in the local cache.
type MediaResolver interface {
	ResolveManifest(files []protocol.MediaFile) media.Manifest
}

type MachineConfig struct {
	Username             string
	Language             string
	SerializationVersion int
	ProtoVersionMin      int
	ProtoVersionMax      int
	ViewRange            int
	Debug                bool
	Logger               *log.Logger
}

// DefaultUsername returns a throwaway account name.
func DefaultUsername() string {
	return "test" + uuid.NewString()[:8]
}

type Deps struct {
	Media   MediaResolver
	Meshers MesherFactory
	Sink    PositionSink
	Source  PositionSource
}

// Stats is safe to read from any goroutine.
type Stats struct {
	State        State
	Blocks       int64
	BlockUpdates uint64
	Remeshes     uint64
	Ignored      uint64
	Pool         mesh.Stats
}

// Machine is the connection state machine. Every method except Stats and
// State must be called from the connection goroutine, which also owns the
// world store.
type Machine struct {
	cfg    MachineConfig
	deps   Deps
	out    Sender
	logger *log.Logger
	warn   rate.Sometimes

	state atomic.Int32
	store *world.Store

	defs     *nodedef.Manager
	manifest *media.Manifest
	tex      *media.TextureIndex

	mesherMu sync.Mutex
	mesher   Mesher

	unknownSeen map[uint16]struct{}

	blocks       atomic.Int64
	blockUpdates atomic.Uint64
	remeshes     atomic.Uint64
	ignored      atomic.Uint64
}

func NewMachine(cfg MachineConfig, deps Deps, out Sender) *Machine {
	if cfg.Username == "" {
		cfg.Username = DefaultUsername()
	}
	if cfg.Language == "" {
		cfg.Language = "en"
	}
	if cfg.SerializationVersion == 0 {
		cfg.SerializationVersion = protocol.SerializationVersion
	}
	if cfg.ProtoVersionMin == 0 {
		cfg.ProtoVersionMin = protocol.ProtoVersionMin
	}
	if cfg.ProtoVersionMax == 0 {
		cfg.ProtoVersionMax = protocol.ProtoVersionMax
	}
	// The server reads view_range as a byte.
	cfg.ViewRange = mathx.Clamp(cfg.ViewRange, 0, 255)
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Machine{
		cfg:         cfg,
		deps:        deps,
		out:         out,
		logger:      logger,
		warn:        rate.Sometimes{First: 5, Interval: 10 * time.Second},
		store:       world.NewStore(),
		unknownSeen: map[uint16]struct{}{},
	}
}

func (m *Machine) State() State { return State(m.state.Load()) }

// Store is the world store. Connection goroutine only.
func (m *Machine) Store() *world.Store { return m.store }

func (m *Machine) Stats() Stats {
	st := Stats{
		State:        m.State(),
		Blocks:       m.blocks.Load(),
		BlockUpdates: m.blockUpdates.Load(),
		Remeshes:     m.remeshes.Load(),
		Ignored:      m.ignored.Load(),
	}
	m.mesherMu.Lock()
	if m.mesher != nil {
		st.Pool = m.mesher.Stats()
	}
	m.mesherMu.Unlock()
	return st
}

// Results yields mesh results once Ready. Before that it returns nil, which
// blocks forever in a select.
func (m *Machine) Results() <-chan mesh.Result {
	m.mesherMu.Lock()
	defer m.mesherMu.Unlock()
	if m.mesher == nil {
		return nil
	}
	return m.mesher.Results()
}

// Close shuts the mesh pipeline down.
func (m *Machine) Close() {
	m.mesherMu.Lock()
	mesher := m.mesher
	m.mesherMu.Unlock()
	if mesher != nil {
		mesher.Close()
	}
}

func (m *Machine) advance(to State) {
	from := m.State()
	if to <= from {
		m.logger.Printf("state: refusing %s -> %s", from, to)
		return
	}
	m.state.Store(int32(to))
	m.logger.Printf("state: %s -> %s", from, to)
}

// Start opens the handshake.
func (m *Machine) Start() error {
	return m.out.Send(protocol.TypeInit, protocol.InitMsg{
		Type:                 protocol.TypeInit,
		Username:             m.cfg.Username,
		SerializationVersion: m.cfg.SerializationVersion,
		ProtoVersionMin:      m.cfg.ProtoVersionMin,
		ProtoVersionMax:      m.cfg.ProtoVersionMax,
	})
}

// Handle applies one inbound frame. A non-nil error ends the session;
// malformed or out-of-phase frames are logged and dropped.
func (m *Machine) Handle(raw []byte) error {
	base, err := protocol.DecodeBase(raw)
	if err != nil {
		m.ignore("", fmt.Sprintf("undecodable frame: %v", err))
		return nil
	}

	switch base.Type {
	case protocol.TypeAccessDenied:
		var msg protocol.AccessDeniedMsg
		if err := json.Unmarshal(raw, &msg); err != nil {
			return fmt.Errorf("%w: undecodable reason: %v", ErrAccessDenied, err)
		}
		if !protocol.IsKnownCode(msg.Code) {
			m.logger.Printf("access denied with unknown code %q", msg.Code)
		}
		return fmt.Errorf("%w: %s %s", ErrAccessDenied, msg.Code, msg.Reason)

	case protocol.TypeHello:
		if !m.expect(base.Type, StateConnected) {
			return nil
		}
		var msg protocol.HelloMsg
		if !m.decode(raw, &msg) {
			return nil
		}
		return m.onHello(msg)

	case protocol.TypeAuthAccepted:
		if !m.expect(base.Type, StateAuthenticating) {
			return nil
		}
		if err := m.out.Send(protocol.TypeSessionInit, protocol.SessionInitMsg{
			Type: protocol.TypeSessionInit,
			Lang: m.cfg.Language,
		}); err != nil {
			return err
		}
		m.advance(StateNegotiating)
		return nil

	case protocol.TypeNodeDefinitions:
		if !m.expect(base.Type, StateNegotiating) {
			return nil
		}
		var msg protocol.NodeDefinitionsMsg
		if !m.decode(raw, &msg) {
			return nil
		}
		m.defs = nodedef.New(convertDefs(msg.Defs))
		m.logger.Printf("node definitions: %d (including builtins)", m.defs.Len())
		return m.maybeReady()

	case protocol.TypeMediaManifest:
		if !m.expect(base.Type, StateNegotiating) {
			return nil
		}
		var msg protocol.MediaManifestMsg
		if !m.decode(raw, &msg) {
			return nil
		}
		man := media.Manifest{Paths: map[string]string{}}
		if m.deps.Media != nil {
			man = m.deps.Media.ResolveManifest(msg.Files)
		}
		m.manifest = &man
		m.logger.Printf("media: %d files, %d cached (%s), %d missing",
			len(msg.Files), len(man.Paths), humanize.Bytes(uint64(man.Bytes)), len(man.Missing))
		return m.maybeReady()

	case protocol.TypePlayerMove:
		if !m.expect(base.Type, StateReady) {
			return nil
		}
		var msg protocol.PlayerMoveMsg
		if !m.decode(raw, &msg) {
			return nil
		}
		if m.deps.Sink != nil {
			m.deps.Sink.Teleport(msg.Pos, msg.Yaw, msg.Pitch)
		}
		return nil

	case protocol.TypeBlockData:
		if !m.expect(base.Type, StateReady) {
			return nil
		}
		var msg protocol.BlockDataMsg
		if !m.decode(raw, &msg) {
			return nil
		}
		return m.onBlockData(msg)

	case protocol.TypeVoxelAdd:
		if !m.expect(base.Type, StateReady) {
			return nil
		}
		var msg protocol.VoxelAddMsg
		if !m.decode(raw, &msg) {
			return nil
		}
		m.setNode(world.NodePosFromArray(msg.Pos), world.Node{
			Content: msg.Node.Content,
			Param1:  msg.Node.Param1,
			Param2:  msg.Node.Param2,
		})
		return nil

	case protocol.TypeVoxelRemove:
		if !m.expect(base.Type, StateReady) {
			return nil
		}
		var msg protocol.VoxelRemoveMsg
		if !m.decode(raw, &msg) {
			return nil
		}
		m.setNode(world.NodePosFromArray(msg.Pos), world.Node{Content: world.ContentAir})
		return nil

	default:
		m.ignore(base.Type, "unknown message type")
		return nil
	}
}

func (m *Machine) onHello(msg protocol.HelloMsg) error {
	if msg.ProtoVersion < m.cfg.ProtoVersionMin || msg.ProtoVersion > m.cfg.ProtoVersionMax {
		m.logger.Printf("server picked proto_version %d outside [%d, %d]", msg.ProtoVersion, m.cfg.ProtoVersionMin, m.cfg.ProtoVersionMax)
	}
	// Only the empty-password first login is implemented.
	if !slices.Contains(msg.AuthMethods, protocol.AuthFirstSRP) {
		return fmt.Errorf("%w: offered %v", ErrUnsupportedAuth, msg.AuthMethods)
	}
	if err := m.out.Send(protocol.TypeAuthResponse, protocol.AuthResponseMsg{
		Type: protocol.TypeAuthResponse,
	}); err != nil {
		return err
	}
	m.advance(StateAuthenticating)
	return nil
}

// maybeReady finishes negotiation once both node definitions and media are
// known. The texture index is frozen and the mesher built before READY, so
// workers never observe either changing.
func (m *Machine) maybeReady() error {
	if m.defs == nil || m.manifest == nil || m.State() != StateNegotiating {
		return nil
	}
	m.tex = media.BuildTextureIndex(m.defs, m.manifest.Paths, m.logger)
	if m.deps.Meshers == nil {
		return fmt.Errorf("no mesher factory")
	}
	mesher, err := m.deps.Meshers(m.defs, m.tex)
	if err != nil {
		return fmt.Errorf("start mesher: %w", err)
	}
	m.mesherMu.Lock()
	m.mesher = mesher
	m.mesherMu.Unlock()
	m.logger.Printf("textures: %d layers", m.tex.Len())

	if err := m.out.Send(protocol.TypeReady, protocol.ReadyMsg{
		Type:            protocol.TypeReady,
		Major:           VersionMajor,
		Minor:           VersionMinor,
		Patch:           VersionPatch,
		FullVersion:     FullVersion,
		FormspecVersion: protocol.FormspecVersion,
	}); err != nil {
		return err
	}
	m.advance(StateReady)
	return nil
}

func (m *Machine) onBlockData(msg protocol.BlockDataMsg) error {
	pos := world.BlockPosFromArray(msg.Pos)
	b, err := protocol.DecodeNodes(msg.Nodes)
	if err != nil {
		m.ignore(protocol.TypeBlockData, fmt.Sprintf("block %s: %v", pos, err))
		return nil
	}
	if _, existed := m.store.Get(pos); !existed {
		m.blocks.Add(1)
	}
	m.store.InsertOrReplace(pos, b)
	m.blockUpdates.Add(1)
	m.warnUnknown(pos, b)

	if err := m.out.Send(protocol.TypeAckBlocks, protocol.AckBlocksMsg{
		Type:   protocol.TypeAckBlocks,
		Blocks: [][3]int{pos.ToArray()},
	}); err != nil {
		return err
	}
	m.remesh(pos)
	return nil
}

// setNode applies a single-node edit. Edits to unloaded blocks are dropped;
// the server sends the whole block again later.
func (m *Machine) setNode(pos world.NodePos, n world.Node) {
	bp, ok := m.store.SetNode(pos, n)
	if !ok {
		if m.cfg.Debug {
			m.logger.Printf("edit at %s: block not loaded", pos)
		}
		return
	}
	m.remesh(bp)
}

// remesh resubmits pos and every loaded face neighbor, so faces that were
// suppressed toward a missing neighbor get filled in once it arrives.
func (m *Machine) remesh(pos world.BlockPos) {
	m.mesherMu.Lock()
	mesher := m.mesher
	m.mesherMu.Unlock()
	if mesher == nil {
		return
	}
	targets := append([]world.BlockPos{pos}, m.store.Neighbors(pos)...)
	for _, bp := range targets {
		bp := bp
		center, _ := m.store.Get(bp)
		mesher.Submit(bp, center, func() (*world.Snapshot, bool) {
			return world.BuildSnapshot(m.store, bp)
		})
		m.remeshes.Add(1)
	}
}

// SendPosition reports the sampled pose. It is a no-op before Ready.
func (m *Machine) SendPosition() error {
	if m.State() != StateReady || m.deps.Source == nil {
		return nil
	}
	p := m.deps.Source.Sample()
	return m.out.Send(protocol.TypePlayerPosition, protocol.PlayerPositionMsg{
		Type:      protocol.TypePlayerPosition,
		Pos:       p.Pos,
		Speed:     p.Speed,
		Yaw:       p.Yaw,
		Pitch:     p.Pitch,
		ViewRange: m.cfg.ViewRange,
	})
}

func (m *Machine) warnUnknown(pos world.BlockPos, b *world.Block) {
	if m.defs == nil {
		return
	}
	for _, id := range b.ContentIDs() {
		if m.defs.Has(id) {
			continue
		}
		if _, seen := m.unknownSeen[id]; seen {
			continue
		}
		m.unknownSeen[id] = struct{}{}
		m.logger.Printf("block %s: content %d has no definition, drawing as unknown", pos, id)
	}
}

func (m *Machine) expect(msgType string, want State) bool {
	if got := m.State(); got != want {
		m.ignore(msgType, fmt.Sprintf("in state %s", got))
		return false
	}
	return true
}

func (m *Machine) decode(raw []byte, v any) bool {
	if err := json.Unmarshal(raw, v); err != nil {
		base, _ := protocol.DecodeBase(raw)
		m.ignore(base.Type, fmt.Sprintf("decode: %v", err))
		return false
	}
	return true
}

func (m *Machine) ignore(msgType, why string) {
	m.ignored.Add(1)
	m.warn.Do(func() {
		m.logger.Printf("ignoring %s: %s", msgType, why)
	})
}

func convertDefs(in map[uint16]protocol.NodeDefV1) map[uint16]nodedef.Def {
	out := make(map[uint16]nodedef.Def, len(in))
	for id, d := range in {
		def := nodedef.Def{Name: d.Name, DrawType: d.DrawType}
		copy(def.Tiles[:], d.Tiles)
		out[id] = def
	}
	return out
}
