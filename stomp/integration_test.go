package stomp_test

import (
	"bytes"
	"context"
	"net"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/tools/txtar"

	"github.com/Thejuampi/stomp-client-go/game"
	"github.com/Thejuampi/stomp-client-go/internal/fakebroker"
	"github.com/Thejuampi/stomp-client-go/stomp"
)

const integrationWait = 3 * time.Second

type transcript struct {
	lock  sync.Mutex
	lines []string
}

func (transcript *transcript) write(line string) {
	transcript.lock.Lock()
	transcript.lines = append(transcript.lines, line)
	transcript.lock.Unlock()
}

func (transcript *transcript) contains(substring string) bool {
	transcript.lock.Lock()
	defer transcript.lock.Unlock()
	for _, line := range transcript.lines {
		if strings.Contains(line, substring) {
			return true
		}
	}
	return false
}

func waitFor(t *testing.T, condition func() bool, message string) {
	t.Helper()
	deadline := time.Now().Add(integrationWait)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", message)
}

func startTCPBroker(t *testing.T, options ...fakebroker.Option) (*fakebroker.Broker, string) {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	broker := fakebroker.New(options...)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = broker.Serve(ctx, listener)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return broker, listener.Addr().String()
}

func newClient(t *testing.T) (*stomp.Client, *transcript) {
	t.Helper()
	output := &transcript{}
	client := stomp.NewClient(stomp.WithOutput(output.write), stomp.WithLoginTimeout(integrationWait))
	t.Cleanup(func() { _ = client.Close() })
	return client, output
}

func login(t *testing.T, client *stomp.Client, address string, user string) {
	t.Helper()
	require.NoError(t, client.Login(context.Background(), address, user, "pw"), "login %s", user)
}

func join(t *testing.T, client *stomp.Client, output *transcript, gameName string) {
	t.Helper()
	require.NoError(t, client.Join(gameName), "join %s", gameName)
	waitFor(t, func() bool { return output.contains("Joined channel " + gameName) }, "join receipt")
}

// writeEventFile extracts events.json from the shared summary fixture.
func writeEventFile(t *testing.T) string {
	t.Helper()
	archive, err := txtar.ParseFile(filepath.Join("..", "game", "testdata", "summary", "eventfile.txtar"))
	require.NoError(t, err)
	for _, file := range archive.Files {
		if file.Name == "events.json" {
			path := filepath.Join(t.TempDir(), "events.json")
			require.NoError(t, os.WriteFile(path, file.Data, 0o644))
			return path
		}
	}
	require.FailNow(t, "fixture has no events.json")
	return ""
}

func summaryOf(t *testing.T, store *game.Store, gameName string, user string) string {
	t.Helper()
	var buffer bytes.Buffer
	teamA, teamB := store.Teams(gameName)
	require.NoError(t, game.WriteSummary(&buffer, teamA, teamB, store.UserStats(gameName, user)))
	return buffer.String()
}

func TestReportReachesOtherSubscribers(t *testing.T) {
	broker, address := startTCPBroker(t)
	const gameName = "Germany_Japan"

	alice, aliceOutput := newClient(t)
	login(t, alice, address, "alice")
	join(t, alice, aliceOutput, gameName)

	bob, bobOutput := newClient(t)
	login(t, bob, address, "bob")
	join(t, bob, bobOutput, gameName)

	path := writeEventFile(t)
	require.NoError(t, alice.Report(path))

	expected := len(alice.Store().UserStats(gameName, "alice").Events)
	require.Equal(t, 4, expected, "alice holds her events locally")
	waitFor(t, func() bool {
		return len(bob.Store().UserStats(gameName, "alice").Events) == expected
	}, "bob to aggregate alice's events")

	local := summaryOf(t, alice.Store(), gameName, "alice")
	remote := summaryOf(t, bob.Store(), gameName, "alice")
	assert.Equal(t, local, remote)
	assert.True(t, strings.HasPrefix(remote, "Germany vs Japan\n"), remote)
	assert.Equal(t, []string{"alice"}, alice.Store().Users(gameName), "alice skips her own echoes")

	summaryPath := filepath.Join(t.TempDir(), "out.txt")
	require.NoError(t, bob.Summary(gameName, "alice", summaryPath))
	written, err := os.ReadFile(summaryPath)
	require.NoError(t, err)
	assert.Equal(t, remote, string(written))

	status := broker.Status()
	assert.EqualValues(t, 2, status.ConnectionsCurrent)
	assert.EqualValues(t, 8, status.MessagesDelivered)
}

func TestLogoutReleasesUserForNextLogin(t *testing.T) {
	_, address := startTCPBroker(t)
	client, output := newClient(t)

	login(t, client, address, "alice")
	join(t, client, output, "A_B")
	require.NoError(t, client.Logout(context.Background()))
	state := client.State()
	assert.False(t, state.LoggedIn)
	assert.False(t, state.Connected)
	assert.Empty(t, client.Subscriptions(), "subscriptions survived logout")

	other, _ := newClient(t)
	login(t, other, address, "alice")
}

func TestBrokerRejectsWrongPassword(t *testing.T) {
	_, address := startTCPBroker(t, fakebroker.WithUsers(map[string]string{"carol": "secret"}))
	client, output := newClient(t)

	err := client.Login(context.Background(), address, "carol", "guess")
	assert.True(t, stomp.IsCode(err, stomp.ServerError), "expected ServerError, got %v", err)
	assert.ErrorContains(t, err, "Wrong password")
	assert.True(t, output.contains("Error: Wrong password"), "broker reason in the output")
	waitFor(t, func() bool { return !client.State().Connected }, "connection teardown")

	require.NoError(t, client.Login(context.Background(), address, "carol", "secret"), "retry with the right password")
}

func TestSecondSessionForActiveUserIsRefused(t *testing.T) {
	_, address := startTCPBroker(t)
	first, _ := newClient(t)
	login(t, first, address, "alice")

	second, output := newClient(t)
	err := second.Login(context.Background(), address, "alice", "pw")
	assert.True(t, stomp.IsCode(err, stomp.ServerError), "expected ServerError, got %v", err)
	assert.True(t, output.contains("User already active"), "broker reason in the output")
	assert.True(t, first.State().LoggedIn, "the first session must survive")
}

func TestClientOverWebSocket(t *testing.T) {
	broker := fakebroker.New()
	server := httptest.NewServer(broker.WebSocketHandler())
	t.Cleanup(server.Close)
	t.Cleanup(broker.Close)
	address := "ws" + strings.TrimPrefix(server.URL, "http") + fakebroker.WebSocketPath

	alice, aliceOutput := newClient(t)
	login(t, alice, address, "alice")
	join(t, alice, aliceOutput, "Germany_Japan")

	bob, bobOutput := newClient(t)
	login(t, bob, address, "bob")
	join(t, bob, bobOutput, "Germany_Japan")

	require.NoError(t, alice.Report(writeEventFile(t)))
	waitFor(t, func() bool {
		return len(bob.Store().UserStats("Germany_Japan", "alice").Events) == 4
	}, "events over websocket")

	require.NoError(t, alice.Logout(context.Background()))
	require.NoError(t, bob.Logout(context.Background()))
}

func TestProcessInputAgainstBroker(t *testing.T) {
	_, address := startTCPBroker(t)
	client, output := newClient(t)
	ctx := context.Background()

	steps := []string{
		"login " + address + " alice pw",
		"join Spain_Italy",
	}
	for _, line := range steps {
		require.NoError(t, client.ProcessInput(ctx, line), line)
	}
	waitFor(t, func() bool { return output.contains("Joined channel Spain_Italy") }, "join")

	require.NoError(t, client.ProcessInput(ctx, "exit Spain_Italy"))
	waitFor(t, func() bool { return output.contains("Exited channel Spain_Italy") }, "exit")

	require.NoError(t, client.ProcessInput(ctx, "logout"))
	assert.True(t, output.contains("Logged out"), "logout confirmation")
}
