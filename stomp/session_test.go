package stomp

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thejuampi/stomp-client-go/stomp/internal/testutil"
)

func TestSessionStateTransitions(t *testing.T) {
	state := newSessionState()
	require.Equal(t, SessionSnapshot{Phase: PhaseIdle}, state.snapshot())

	require.NoError(t, state.beginLogin("alice"))
	assert.True(t, IsCode(state.beginLogin("bob"), AlreadyLoggedInError), "login must be refused while pending")

	transport := testutil.NewTransport()
	require.True(t, state.attach(transport))
	snapshot := state.snapshot()
	assert.True(t, snapshot.PendingLogin)
	assert.True(t, snapshot.Connected)
	assert.Empty(t, snapshot.CurrentUser)

	require.True(t, state.loginSucceeded())
	assert.False(t, state.loginSucceeded(), "second CONNECTED must not apply")
	snapshot = state.snapshot()
	assert.True(t, snapshot.LoggedIn)
	assert.Equal(t, "alice", snapshot.CurrentUser)
	assert.True(t, IsCode(state.beginLogin("bob"), AlreadyLoggedInError))
	assert.Equal(t, "alice", state.user(), "login attempt changed the current user")

	sendOn, err := state.beginLogout()
	require.NoError(t, err)
	assert.Same(t, transport, sendOn)
	_, err = state.beginLogout()
	assert.True(t, IsCode(err, LogoutPendingError))
	_, _, err = state.authenticated()
	assert.True(t, IsCode(err, LogoutPendingError), "commands are rejected while logging out")
	assert.True(t, IsCode(state.beginLogin("bob"), LogoutPendingError), "login is rejected while logging out")

	previous, applied := state.reset(transport)
	require.True(t, applied)
	assert.Same(t, transport, previous)
	assert.Equal(t, SessionSnapshot{Phase: PhaseIdle}, state.snapshot())
	_, _, err = state.authenticated()
	assert.True(t, IsCode(err, NotLoggedInError))
}

func TestSessionStateStaleResetIsIgnored(t *testing.T) {
	state := newSessionState()
	current := testutil.NewTransport()
	stale := testutil.NewTransport()
	_ = state.beginLogin("alice")
	state.attach(current)
	state.loginSucceeded()

	_, applied := state.reset(stale)
	assert.False(t, applied, "reset from a stale transport must be ignored")
	assert.True(t, state.snapshot().LoggedIn, "session was torn down by a stale transport")
}

func TestSessionStateFailureReason(t *testing.T) {
	state := newSessionState()
	current := testutil.NewTransport()
	_ = state.beginLogin("alice")
	state.attach(current)

	state.recordFailure(testutil.NewTransport(), "stale")
	assert.Empty(t, state.failureReason(), "a stale transport must not record a reason")

	state.recordFailure(current, "Wrong password")
	state.reset(current)
	assert.Equal(t, "Wrong password", state.failureReason())

	require.NoError(t, state.beginLogin("alice"))
	assert.Empty(t, state.failureReason(), "a new login starts without a reason")
}

func TestSessionStateWaitReleasedByReset(t *testing.T) {
	state := newSessionState()
	_ = state.beginLogin("alice")

	done := make(chan Phase, 1)
	go func() {
		phase, _ := state.waitWhile(context.Background(), PhaseAwaitingConnected)
		done <- phase
	}()

	time.Sleep(10 * time.Millisecond)
	state.reset(nil)

	select {
	case phase := <-done:
		assert.Equal(t, PhaseIdle, phase)
	case <-time.After(time.Second):
		t.Fatalf("waiter was not released by reset")
	}
}

func TestSessionStateWaitHonorsContext(t *testing.T) {
	state := newSessionState()
	_ = state.beginLogin("alice")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	phase, err := state.waitWhile(ctx, PhaseAwaitingConnected)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, PhaseAwaitingConnected, phase)
}

func TestPhaseString(t *testing.T) {
	cases := map[Phase]string{
		PhaseIdle:                      "idle",
		PhaseAwaitingConnected:         "awaiting-connected",
		PhaseLoggedIn:                  "logged-in",
		PhaseAwaitingDisconnectReceipt: "awaiting-disconnect-receipt",
		Phase(42):                      "unknown",
	}
	for phase, expected := range cases {
		assert.Equal(t, expected, phase.String())
	}
}
