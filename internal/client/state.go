package client

import "fmt"

// State is the connection phase. It only ever moves forward.
type State int32

const (
	StateConnected State = iota
	StateAuthenticating
	StateNegotiating
	StateReady
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "CONNECTED"
	case StateAuthenticating:
		return "AUTHENTICATING"
	case StateNegotiating:
		return "NEGOTIATING"
	case StateReady:
		return "READY"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}
