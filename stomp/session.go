package stomp

import (
	"context"
	"sync"
)

// Phase is the login lifecycle position of a session.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseAwaitingConnected
	PhaseLoggedIn
	PhaseAwaitingDisconnectReceipt
)

func (phase Phase) String() string {
	switch phase {
	case PhaseIdle:
		return "idle"
	case PhaseAwaitingConnected:
		return "awaiting-connected"
	case PhaseLoggedIn:
		return "logged-in"
	case PhaseAwaitingDisconnectReceipt:
		return "awaiting-disconnect-receipt"
	default:
		return "unknown"
	}
}

// SessionSnapshot is a point-in-time view of the session state.
type SessionSnapshot struct {
	Phase         Phase
	Connected     bool
	LoggedIn      bool
	PendingLogin  bool
	PendingLogout bool
	CurrentUser   string
	// PendingReceipts counts requests still waiting for their RECEIPT.
	PendingReceipts int
}

// sessionState owns the connection handle and the phase. Every transition
// broadcasts on changed so blocked login/logout callers re-check their predicate.
type sessionState struct {
	lock        sync.Mutex
	changed     *sync.Cond
	phase       Phase
	transport   Transport
	pendingUser string
	currentUser string
	failure     string
}

func newSessionState() *sessionState {
	state := &sessionState{}
	state.changed = sync.NewCond(&state.lock)
	return state
}

func (state *sessionState) snapshot() SessionSnapshot {
	state.lock.Lock()
	defer state.lock.Unlock()

	snapshot := SessionSnapshot{
		Phase:         state.phase,
		Connected:     state.transport != nil,
		LoggedIn:      state.phase == PhaseLoggedIn,
		PendingLogin:  state.phase == PhaseAwaitingConnected,
		PendingLogout: state.phase == PhaseAwaitingDisconnectReceipt,
	}
	if snapshot.LoggedIn || snapshot.PendingLogout {
		snapshot.CurrentUser = state.currentUser
	}
	return snapshot
}

// beginLogin moves Idle to AwaitingConnected before any I/O happens.
func (state *sessionState) beginLogin(user string) error {
	state.lock.Lock()
	defer state.lock.Unlock()

	switch state.phase {
	case PhaseLoggedIn, PhaseAwaitingConnected:
		return NewError(AlreadyLoggedInError, "The client is already logged in, log out before trying again")
	case PhaseAwaitingDisconnectReceipt:
		return NewError(LogoutPendingError, "logout in progress")
	}
	state.phase = PhaseAwaitingConnected
	state.pendingUser = user
	state.failure = ""
	state.changed.Broadcast()
	return nil
}

// attach installs the transport of a login in progress. It fails when the
// login was abandoned in the meantime.
func (state *sessionState) attach(transport Transport) bool {
	state.lock.Lock()
	defer state.lock.Unlock()
	if state.phase != PhaseAwaitingConnected || state.transport != nil {
		return false
	}
	state.transport = transport
	return true
}

// loginSucceeded handles CONNECTED. It reports false when no login was pending.
func (state *sessionState) loginSucceeded() bool {
	state.lock.Lock()
	defer state.lock.Unlock()

	if state.phase != PhaseAwaitingConnected {
		return false
	}
	state.phase = PhaseLoggedIn
	state.currentUser = state.pendingUser
	state.pendingUser = ""
	state.changed.Broadcast()
	return true
}

// beginLogout moves LoggedIn to AwaitingDisconnectReceipt and returns the transport to send on.
func (state *sessionState) beginLogout() (Transport, error) {
	state.lock.Lock()
	defer state.lock.Unlock()

	switch state.phase {
	case PhaseAwaitingDisconnectReceipt:
		return nil, NewError(LogoutPendingError, "logout already in progress")
	case PhaseLoggedIn:
	default:
		return nil, NewError(NotLoggedInError, "must login first")
	}
	state.phase = PhaseAwaitingDisconnectReceipt
	state.failure = ""
	state.changed.Broadcast()
	return state.transport, nil
}

// authenticated returns the transport and user while logged in.
func (state *sessionState) authenticated() (Transport, string, error) {
	state.lock.Lock()
	defer state.lock.Unlock()

	switch state.phase {
	case PhaseLoggedIn:
		return state.transport, state.currentUser, nil
	case PhaseAwaitingDisconnectReceipt:
		return nil, "", NewError(LogoutPendingError, "logout in progress")
	default:
		return nil, "", NewError(NotLoggedInError, "must login first")
	}
}

func (state *sessionState) user() string {
	state.lock.Lock()
	defer state.lock.Unlock()
	if state.phase == PhaseLoggedIn || state.phase == PhaseAwaitingDisconnectReceipt {
		return state.currentUser
	}
	return ""
}

func (state *sessionState) currentTransport() Transport {
	state.lock.Lock()
	defer state.lock.Unlock()
	return state.transport
}

// recordFailure keeps the broker's reason for ending the session on
// expected. It is read back by the login or logout call that was waiting.
func (state *sessionState) recordFailure(expected Transport, reason string) {
	state.lock.Lock()
	defer state.lock.Unlock()
	if state.transport == expected {
		state.failure = reason
	}
}

func (state *sessionState) failureReason() string {
	state.lock.Lock()
	defer state.lock.Unlock()
	return state.failure
}

// reset forces Idle and releases waiters. When expected is non-nil the reset
// only applies while expected is still the attached transport, so a stale
// receive loop cannot tear down a newer session. It returns the detached
// transport, if any, and whether the reset applied.
func (state *sessionState) reset(expected Transport) (Transport, bool) {
	state.lock.Lock()
	defer state.lock.Unlock()

	if expected != nil && state.transport != expected {
		return nil, false
	}
	previous := state.transport
	state.transport = nil
	state.phase = PhaseIdle
	state.pendingUser = ""
	state.currentUser = ""
	state.changed.Broadcast()
	return previous, true
}

// waitWhile blocks while the phase equals phase. The predicate is re-checked
// after every wakeup; ctx cancellation also wakes the waiter.
func (state *sessionState) waitWhile(ctx context.Context, phase Phase) (Phase, error) {
	stop := context.AfterFunc(ctx, func() {
		state.lock.Lock()
		state.changed.Broadcast()
		state.lock.Unlock()
	})
	defer stop()

	state.lock.Lock()
	defer state.lock.Unlock()
	for state.phase == phase {
		if err := ctx.Err(); err != nil {
			return state.phase, err
		}
		state.changed.Wait()
	}
	return state.phase, nil
}
