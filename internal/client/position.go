package client

import (
	"sync"

	"github.com/go-gl/mathgl/mgl32"
)

// PlayerPos is the pose reported to the server.
type PlayerPos struct {
	Pos   mgl32.Vec3
	Speed mgl32.Vec3
	Yaw   float32
	Pitch float32
}

// PositionSink receives authoritative server repositioning.
type PositionSink interface {
	Teleport(pos mgl32.Vec3, yaw, pitch float32)
}

// PositionSource is sampled for periodic position updates.
type PositionSource interface {
	Sample() PlayerPos
}

// PositionInbox connects the session to the camera/controller. The session
// writes teleports into it and samples it; the application shell takes
// teleports out and sets the current pose.
type PositionInbox struct {
	mu        sync.Mutex
	cur       PlayerPos
	pending   bool
	teleports uint64
}

func (p *PositionInbox) Teleport(pos mgl32.Vec3, yaw, pitch float32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cur = PlayerPos{Pos: pos, Yaw: yaw, Pitch: pitch}
	p.pending = true
	p.teleports++
}

// Take returns the latest teleport not yet taken.
func (p *PositionInbox) Take() (PlayerPos, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.pending {
		return PlayerPos{}, false
	}
	p.pending = false
	return p.cur, true
}

// Set records the pose the controller is actually at.
func (p *PositionInbox) Set(pp PlayerPos) {
	p.mu.Lock()
	p.cur = pp
	p.mu.Unlock()
}

func (p *PositionInbox) Sample() PlayerPos {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cur
}

func (p *PositionInbox) Teleports() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.teleports
}
