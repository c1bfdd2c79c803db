package host

import (
	"errors"
	"fmt"

	"github.com/nymtech/nym-sub006/internal/rpc"
)

// State is the lifecycle state of a sandbox session
type State int32

const (
	StateCreated State = iota
	StateLoaded
	StateSessionEstablishing
	StateReady
	StateDisconnecting
	StateDisconnected
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateLoaded:
		return "loaded"
	case StateSessionEstablishing:
		return "session_establishing"
	case StateReady:
		return "ready"
	case StateDisconnecting:
		return "disconnecting"
	case StateDisconnected:
		return "disconnected"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Host errors wrap the rpc sentinels so they keep their wire code
var (
	ErrNotReady       = fmt.Errorf("host: %w", rpc.ErrNotReady)
	ErrSessionFailed  = fmt.Errorf("host: %w", rpc.ErrSession)
	ErrDisconnected   = fmt.Errorf("host: %w", rpc.ErrDisconnected)
	ErrModuleFault    = fmt.Errorf("host: %w", rpc.ErrModule)
	ErrInvalidOptions = fmt.Errorf("host: %w", rpc.ErrBadRequest)
	ErrDecode         = fmt.Errorf("host: body decode: %w", rpc.ErrInternal)
	ErrClosed         = fmt.Errorf("host: closed: %w", rpc.ErrInternal)

	errBadTransition = errors.New("host: invalid state transition")
)

var transitions = map[State][]State{
	StateCreated:             {StateLoaded, StateFailed},
	StateLoaded:              {StateSessionEstablishing, StateDisconnected},
	StateSessionEstablishing: {StateReady, StateLoaded},
	StateReady:               {StateLoaded, StateDisconnecting},
	StateDisconnecting:       {StateDisconnected},
}

// CanTransition reports whether the state machine allows from → to
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func checkTransition(from, to State) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s → %s", errBadTransition, from, to)
	}
	return nil
}
