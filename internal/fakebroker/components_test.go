package fakebroker

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserStoreLogin(t *testing.T) {
	store := newUserStore()
	store.add("carol", "secret")

	assert.Equal(t, loginRegistered, store.login("c1", "alice", "pw"))
	assert.Equal(t, loginAlreadyActive, store.login("c2", "alice", "pw"))
	assert.Equal(t, loginWrongPassword, store.login("c3", "alice", "other"))
	assert.Equal(t, loginSucceeded, store.login("c4", "carol", "secret"))
	assert.Equal(t, loginRejected, store.login("c5", "", "pw"))

	// A connection that does not own the session cannot end it.
	store.logout("alice", "c2")
	assert.Equal(t, loginAlreadyActive, store.login("c6", "alice", "pw"))

	store.logout("alice", "c1")
	assert.Equal(t, loginSucceeded, store.login("c7", "alice", "pw"))
}

func TestUserStoreSnapshot(t *testing.T) {
	store := newUserStore()
	store.add("zed", "pw")
	store.login("c1", "amy", "pw")
	store.logFile("amy", "events.json", "/A_B")

	users := store.snapshot()

	require.Len(t, users, 2)
	assert.Equal(t, "amy", users[0].Name)
	assert.True(t, users[0].Active)
	assert.Equal(t, "c1", users[0].Session)
	require.Len(t, users[0].Files, 1)
	assert.Equal(t, "/A_B", users[0].Files[0].Destination)
	assert.Equal(t, "zed", users[1].Name)
	assert.False(t, users[1].Active)
}

func TestLoginStatusReason(t *testing.T) {
	assert.Equal(t, "Wrong password", loginWrongPassword.reason())
	assert.Equal(t, "User already active", loginAlreadyActive.reason())
	assert.Equal(t, "Login failed", loginRejected.reason())
	assert.True(t, loginRegistered.ok())
	assert.False(t, loginRejected.ok())
}

func TestTopicRegistry(t *testing.T) {
	registry := newTopicRegistry()
	first := &connection{}
	second := &connection{}

	registry.subscribe("/a", subscriber{conn: first, subscriptionID: "1", user: "bob"})
	registry.subscribe("/a", subscriber{conn: second, subscriptionID: "2", user: "amy"})
	registry.subscribe("/a", subscriber{conn: first, subscriptionID: "9", user: "bob"})
	registry.subscribe("/b", subscriber{conn: first, subscriptionID: "3", user: "bob"})

	assert.Len(t, registry.subscribers("/a"), 2)
	assert.True(t, registry.subscribed("/b", first))
	assert.False(t, registry.subscribed("/b", second))
	assert.Equal(t, map[string][]string{"/a": {"amy", "bob"}, "/b": {"bob"}}, registry.snapshot())

	for _, entry := range registry.subscribers("/a") {
		if entry.conn == first {
			assert.Equal(t, "9", entry.subscriptionID)
		}
	}

	registry.unsubscribe("/a", second)
	registry.unregisterAll(first)

	assert.Empty(t, registry.snapshot())
	assert.Empty(t, registry.subscribers("/a"))
	registry.unsubscribe("/missing", first)
}

// blockingTransport holds every SendFrame until release is closed.
type blockingTransport struct {
	release chan struct{}
	lock    sync.Mutex
	sent    [][]byte
	failing bool
}

func (transport *blockingTransport) SendFrame(frame []byte) error {
	<-transport.release
	transport.lock.Lock()
	defer transport.lock.Unlock()
	if transport.failing {
		return errors.New("broken pipe")
	}
	transport.sent = append(transport.sent, frame)
	return nil
}

func (transport *blockingTransport) ReceiveFrame() ([]byte, error) { return nil, errors.New("unused") }
func (transport *blockingTransport) Close() error                  { return nil }

func (transport *blockingTransport) count() int {
	transport.lock.Lock()
	defer transport.lock.Unlock()
	return len(transport.sent)
}

func TestConnWriterDropsWhenFull(t *testing.T) {
	transport := &blockingTransport{release: make(chan struct{})}
	metrics := newBrokerMetrics(prometheus.NewRegistry())
	writer := newConnWriter(transport, 1, metrics)

	// The writer goroutine may already hold the first frame, so at most two
	// frames fit before sends start failing.
	accepted := 0
	for index := 0; index < 4; index++ {
		if writer.deliver([]byte("frame")) {
			accepted++
		}
	}
	assert.GreaterOrEqual(t, accepted, 1)
	assert.LessOrEqual(t, accepted, 2)

	close(transport.release)
	writer.close()

	assert.Equal(t, accepted, transport.count())
	assert.False(t, writer.deliver([]byte("late")))
}

func TestConnWriterReplyWaitsInsteadOfDropping(t *testing.T) {
	transport := &blockingTransport{release: make(chan struct{})}
	writer := newConnWriter(transport, 1, newBrokerMetrics(prometheus.NewRegistry()))
	// One frame held by the blocked writer goroutine, one filling the queue.
	require.True(t, writer.deliver([]byte("MESSAGE")))
	require.Eventually(t, func() bool { return len(writer.ch) == 0 }, time.Second, time.Millisecond)
	require.True(t, writer.deliver([]byte("MESSAGE")))
	require.False(t, writer.deliver([]byte("MESSAGE")), "fan-out drops when full")

	replied := make(chan bool, 1)
	go func() { replied <- writer.reply([]byte("RECEIPT")) }()

	select {
	case <-replied:
		t.Fatalf("reply returned while the queue was full")
	case <-time.After(20 * time.Millisecond):
	}

	close(transport.release)
	require.True(t, <-replied, "a reply must be queued once there is room")
	writer.close()

	transport.lock.Lock()
	defer transport.lock.Unlock()
	require.NotEmpty(t, transport.sent)
	assert.Equal(t, "RECEIPT", string(transport.sent[len(transport.sent)-1]))
	assert.False(t, writer.reply([]byte("late")), "a closed writer refuses replies")
}

func TestConnWriterDrainsAfterSendFailure(t *testing.T) {
	transport := &blockingTransport{release: make(chan struct{}), failing: true}
	close(transport.release)
	writer := newConnWriter(transport, 8, newBrokerMetrics(prometheus.NewRegistry()))

	for index := 0; index < 5; index++ {
		writer.deliver([]byte("frame"))
	}
	writer.close()
	writer.close()

	assert.Zero(t, transport.count())
}
