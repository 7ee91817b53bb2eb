package gatt

import "sync"

// State is the connection lifecycle state. Transitions are driven only by
// the event dispatcher; Disconnected and Failed are terminal, a new
// connection requires a new Peer.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateDiscoveringServices
	StateReady
	StateDisconnected
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateDiscoveringServices:
		return "discovering_services"
	case StateReady:
		return "ready"
	case StateDisconnected:
		return "disconnected"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state admits no further transitions.
func (s State) Terminal() bool {
	return s == StateDisconnected || s == StateFailed
}

// lifecycle is the connection state machine. It owns no waiters itself;
// the singleton connect waiter lives in the PendingTable under ConnectKey.
type lifecycle struct {
	mu     sync.Mutex
	state  State
	reason error
}

func newLifecycle() *lifecycle {
	return &lifecycle{state: StateIdle}
}

// State returns the current state.
func (l *lifecycle) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Reason returns the failure or disconnect cause for terminal states.
func (l *lifecycle) Reason() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.reason
}

// beginConnect moves Idle to Connecting. Invoked by the facade before the
// connect waiter is registered.
func (l *lifecycle) beginConnect() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	switch {
	case l.state == StateIdle:
		l.state = StateConnecting
		return nil
	case l.state.Terminal():
		return opError(ConnectionLost, "connection is %s, create a new peer", l.state)
	default:
		return opError(AlreadyConnecting, "connect already issued, state is %s", l.state)
	}
}

// linkEstablished moves Connecting to DiscoveringServices. Reports whether
// the transition applied; a false return means the event was spurious.
func (l *lifecycle) linkEstablished() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != StateConnecting {
		return false
	}
	l.state = StateDiscoveringServices
	return true
}

// discoveryComplete moves DiscoveringServices to Ready.
func (l *lifecycle) discoveryComplete() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != StateDiscoveringServices {
		return false
	}
	l.state = StateReady
	return true
}

// fail moves any non-terminal state to Failed with the given reason.
func (l *lifecycle) fail(reason error) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state.Terminal() {
		return false
	}
	l.state = StateFailed
	l.reason = reason
	return true
}

// linkLost moves any non-terminal state to Disconnected with the given
// reason. Reports whether the transition applied, so disconnect fan-out
// runs at most once.
func (l *lifecycle) linkLost(reason error) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state.Terminal() {
		return false
	}
	l.state = StateDisconnected
	l.reason = reason
	return true
}
