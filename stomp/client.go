package stomp

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/Thejuampi/stomp-client-go/game"
)

// Option configures a Client.
type Option func(*Client)

// WithOutput sets the sink for user-facing status lines.
func WithOutput(output func(string)) Option {
	return func(client *Client) {
		if output != nil {
			client.output = output
		}
	}
}

// WithLogger sets the structured logger. The default discards records.
func WithLogger(logger *slog.Logger) Option {
	return func(client *Client) {
		if logger != nil {
			client.logger = logger
		}
	}
}

// WithMetrics enables protocol metrics.
func WithMetrics(metrics *Metrics) Option {
	return func(client *Client) { client.metrics = metrics }
}

// WithDialer replaces DefaultDialer.
func WithDialer(dialer Dialer) Option {
	return func(client *Client) {
		if dialer != nil {
			client.dialer = dialer
		}
	}
}

// WithEventSource replaces the event-file parser used by report.
func WithEventSource(parser game.Parser) Option {
	return func(client *Client) {
		if parser != nil {
			client.events = parser
		}
	}
}

// WithLoginTimeout bounds the login and logout waits. Zero waits forever.
func WithLoginTimeout(timeout time.Duration) Option {
	return func(client *Client) { client.loginTimeout = timeout }
}

// WithSummaryDir sets the directory relative summary paths are resolved against.
func WithSummaryDir(dir string) Option {
	return func(client *Client) { client.summaryDir = dir }
}

// WithStore shares an existing aggregation store.
func WithStore(store *game.Store) Option {
	return func(client *Client) {
		if store != nil {
			client.store = store
		}
	}
}

// Client is the protocol engine. User commands run on the caller's goroutine
// and write frames synchronously; one receive goroutine per connection
// decodes incoming frames. The two only meet in the session state, the
// receipt registry, the subscription table and the aggregation store.
type Client struct {
	dialer       Dialer
	events       game.Parser
	store        *game.Store
	output       func(string)
	logger       *slog.Logger
	metrics      *Metrics
	loginTimeout time.Duration
	summaryDir   string

	session       *sessionState
	receipts      *ReceiptRegistry
	subscriptions *SubscriptionTable
	commands      map[string]commandSpec

	sendLock sync.Mutex
	loopLock sync.Mutex
	readDone chan struct{}
}

// NewClient returns an idle client.
func NewClient(options ...Option) *Client {
	client := &Client{
		dialer: DefaultDialer,
		events: game.FileParser,
		store:  game.NewStore(),
		output: func(line string) {
			fmt.Fprintln(os.Stdout, line)
		},
		logger:        slog.New(slog.DiscardHandler),
		session:       newSessionState(),
		receipts:      NewReceiptRegistry(),
		subscriptions: NewSubscriptionTable(),
	}
	for _, option := range options {
		option(client)
	}
	client.commands = client.commandTable()
	return client
}

// State returns a snapshot of the session state.
func (client *Client) State() SessionSnapshot {
	snapshot := client.session.snapshot()
	snapshot.PendingReceipts = client.receipts.Len()
	return snapshot
}

// Store returns the aggregation store.
func (client *Client) Store() *game.Store { return client.store }

// Subscriptions returns the subscribed game names.
func (client *Client) Subscriptions() []string { return client.subscriptions.Games() }

func (client *Client) print(format string, args ...interface{}) {
	client.output(fmt.Sprintf(format, args...))
}

func (client *Client) send(transport Transport, frame *Frame) error {
	if transport == nil {
		return NewError(DisconnectedError, "Client is not connected while trying to send data")
	}

	client.sendLock.Lock()
	err := transport.SendFrame(frame.Bytes())
	client.sendLock.Unlock()

	if err != nil {
		client.onConnectionError(transport, err)
		return NewError(ConnectionError, fmt.Sprintf("Socket error while sending frame (%v)", err))
	}
	client.metrics.frameSent(frame.Command)
	client.logger.Debug("frame sent", "command", frame.Command)
	return nil
}

func (client *Client) startReceiveLoop(transport Transport) {
	done := make(chan struct{})
	client.loopLock.Lock()
	client.readDone = done
	client.loopLock.Unlock()

	go client.readRoutine(transport, done)
}

// joinReceiveLoop waits for the last started receive goroutine to return.
// It must not be called from the receive goroutine.
func (client *Client) joinReceiveLoop() {
	client.loopLock.Lock()
	done := client.readDone
	client.readDone = nil
	client.loopLock.Unlock()

	if done != nil {
		<-done
	}
}

func (client *Client) readRoutine(transport Transport, done chan struct{}) {
	defer close(done)

	for {
		raw, err := transport.ReceiveFrame()
		if err != nil {
			client.onConnectionError(transport, err)
			return
		}
		client.onFrame(transport, Decode(string(raw)))
	}
}

func (client *Client) onFrame(transport Transport, frame Frame) {
	client.metrics.frameReceived(frame.Command)
	client.logger.Debug("frame received", "command", frame.Command)

	switch frame.Command {
	case CommandConnected:
		client.onConnected(frame)
	case CommandMessage:
		client.onMessage(frame)
	case CommandReceipt:
		client.onReceipt(transport, frame)
	case CommandError:
		client.onServerError(transport, frame)
	default:
		err := NewError(ProtocolError, fmt.Sprintf("unexpected frame %q", frame.Command))
		client.logger.Warn("ignoring frame", "error", err)
	}
}

func (client *Client) onConnected(frame Frame) {
	if !client.session.loginSucceeded() {
		client.print("already connected to server.")
		return
	}
	version, _ := frame.Header(HeaderVersion)
	client.logger.Info("logged in", "user", client.session.user(), "version", version)
}

func (client *Client) onMessage(frame Frame) {
	destination, _ := frame.Header(HeaderDestination)
	gameName := topicGame(destination)
	if gameName == "" {
		client.logger.Warn("message without destination dropped")
		return
	}

	user := game.BodyUser(frame.Body)
	if user == "" {
		user, _ = frame.Header("user")
	}
	if user != "" && user == client.session.user() {
		client.logger.Debug("skipping echo of own event", "game", gameName)
		return
	}

	client.store.ApplyEventBody(gameName, user, frame.Body)
	client.metrics.eventAggregated(OriginRemote)
	client.logger.Debug("event aggregated", "game", gameName, "user", user)
}

func (client *Client) onReceipt(transport Transport, frame Frame) {
	receiptID, _ := frame.Header(HeaderReceiptID)
	request, exists := client.receipts.Resolve(receiptID)
	if !exists {
		client.logger.Debug("ignoring unknown receipt", "receipt", receiptID)
		return
	}
	client.metrics.receiptResolved(request.Kind)

	switch request.Kind {
	case RequestSubscribe:
		client.print("Joined channel %s", request.Game)
	case RequestUnsubscribe:
		client.subscriptions.Unsubscribe(request.Game, request.SubscriptionID)
		client.print("Exited channel %s", request.Game)
	case RequestDisconnect:
		client.dropConnection(transport)
		client.logger.Info("disconnected from server")
	}
}

func (client *Client) onServerError(transport Transport, frame Frame) {
	message, _ := frame.Header(HeaderMessage)
	text := strings.TrimSpace(frame.Body)
	switch {
	case message != "" && text != "":
		client.print("Error: %s\n%s", message, text)
	case message != "":
		client.print("Error: %s", message)
	default:
		client.print("Error: %s", text)
	}
	client.logger.Warn("server error", "message", message)

	reason := message
	if reason == "" {
		reason = text
	}
	if reason == "" {
		reason = "connection closed by server"
	}
	client.session.recordFailure(transport, reason)
	if client.dropConnection(transport) {
		client.metrics.connectionLost()
	}
}

func (client *Client) onConnectionError(transport Transport, err error) {
	if !client.dropConnection(transport) {
		return
	}
	client.metrics.connectionLost()
	client.logger.Warn("connection lost", "error", err)
	client.print("Disconnected from server")
}

// dropConnection resets the session if transport is still the active one and
// closes it. It reports whether a reset happened.
func (client *Client) dropConnection(transport Transport) bool {
	previous, applied := client.session.reset(transport)
	if !applied {
		return false
	}
	client.receipts.Clear()
	client.subscriptions.Clear()
	if previous != nil {
		_ = previous.Close()
	}
	return true
}

func (client *Client) await(ctx context.Context, phase Phase) (Phase, error) {
	if client.loginTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, client.loginTimeout)
		defer cancel()
	}
	return client.session.waitWhile(ctx, phase)
}

// Login connects to address ("host:port" or a ws:// URL), sends CONNECT and
// blocks until the broker answers with CONNECTED, ERROR, or the connection
// ends.
func (client *Client) Login(ctx context.Context, address string, user string, passcode string) error {
	host, err := connectHost(address)
	if err != nil {
		client.print("Invalid host: %s", address)
		return err
	}
	if err := client.session.beginLogin(user); err != nil {
		if IsCode(err, LogoutPendingError) {
			client.print("logout in progress")
		} else {
			client.print("The client is already logged in, log out before trying again")
		}
		return err
	}
	client.joinReceiveLoop()

	transport, err := client.dialer.Dial(ctx, address)
	if err != nil {
		client.session.reset(nil)
		client.print("Could not connect to server")
		client.logger.Warn("dial failed", "address", address, "error", err)
		if IsCode(err, ConnectionRefusedError) {
			return err
		}
		return NewError(ConnectionRefusedError, err)
	}
	if !client.session.attach(transport) {
		_ = transport.Close()
		return NewError(DisconnectedError, "login abandoned")
	}
	client.startReceiveLoop(transport)

	connect := NewFrame(CommandConnect).
		SetHeader(HeaderAcceptVersion, ProtocolVersion).
		SetHeader(HeaderHost, host).
		SetHeader(HeaderLogin, user).
		SetHeader(HeaderPasscode, passcode)
	if err := client.send(transport, connect); err != nil {
		client.print("Could not connect to server")
		return err
	}

	phase, err := client.await(ctx, PhaseAwaitingConnected)
	if err != nil {
		client.dropConnection(transport)
		client.print("Login timed out")
		return NewError(TimedOutError, err)
	}
	if phase != PhaseLoggedIn {
		if reason := client.session.failureReason(); reason != "" {
			return NewError(ServerError, reason)
		}
		return NewError(ConnectionError, "connection closed before CONNECTED")
	}
	client.print("Login successful")
	return nil
}

// Logout sends DISCONNECT and blocks until its receipt arrives or the connection ends.
func (client *Client) Logout(ctx context.Context) error {
	transport, err := client.session.beginLogout()
	if err != nil {
		if IsCode(err, NotLoggedInError) {
			client.print("must login first")
		}
		return err
	}

	receiptID := client.receipts.Next(PendingRequest{Kind: RequestDisconnect})
	disconnect := NewFrame(CommandDisconnect).SetHeader(HeaderReceipt, receiptID)
	if err := client.send(transport, disconnect); err != nil {
		return err
	}

	if _, err := client.await(ctx, PhaseAwaitingDisconnectReceipt); err != nil {
		client.dropConnection(transport)
		client.joinReceiveLoop()
		client.print("Logout timed out, connection closed")
		return NewError(TimedOutError, err)
	}
	client.joinReceiveLoop()
	if reason := client.session.failureReason(); reason != "" {
		return NewError(ServerError, reason)
	}
	client.print("Logged out")
	return nil
}

// Join subscribes to the topic of gameName. The subscription is recorded
// before the receipt confirms it.
func (client *Client) Join(gameName string) error {
	transport, _, err := client.requireLogin()
	if err != nil {
		return err
	}

	subscriptionID := client.subscriptions.Subscribe(gameName)
	receiptID := client.receipts.Next(PendingRequest{
		Kind:           RequestSubscribe,
		Game:           gameName,
		SubscriptionID: subscriptionID,
	})
	subscribe := NewFrame(CommandSubscribe).
		SetHeader(HeaderDestination, topicDestination(gameName)).
		SetHeader(HeaderID, subscriptionID).
		SetHeader(HeaderReceipt, receiptID)
	return client.send(transport, subscribe)
}

// Exit unsubscribes from gameName. The table entry is removed when the receipt arrives.
func (client *Client) Exit(gameName string) error {
	transport, _, err := client.requireLogin()
	if err != nil {
		return err
	}

	subscriptionID, subscribed := client.subscriptions.Lookup(gameName)
	if !subscribed {
		client.print("You are not subscribed to channel %s", gameName)
		return NewError(NotSubscribedError, gameName)
	}

	receiptID := client.receipts.Next(PendingRequest{
		Kind:           RequestUnsubscribe,
		Game:           gameName,
		SubscriptionID: subscriptionID,
	})
	unsubscribe := NewFrame(CommandUnsubscribe).
		SetHeader(HeaderID, subscriptionID).
		SetHeader(HeaderReceipt, receiptID)
	return client.send(transport, unsubscribe)
}

// Report publishes every event of the file at path to its game topic,
// updating the local store first for each one.
func (client *Client) Report(path string) error {
	transport, user, err := client.requireLogin()
	if err != nil {
		return err
	}

	report, err := client.events.Parse(path)
	if err != nil {
		client.print("Could not read events file %s", path)
		return NewError(InvalidArgumentError, err)
	}

	gameName := report.GameName()
	if _, subscribed := client.subscriptions.Lookup(gameName); !subscribed {
		client.print("You must join %s before reporting to it", gameName)
		return NewError(NotSubscribedError, gameName)
	}

	destination := topicDestination(gameName)
	for _, event := range report.Events {
		body := game.FormatEventBody(user, report.TeamA, report.TeamB, event)
		client.store.ApplyEventBody(gameName, user, body)
		client.metrics.eventAggregated(OriginLocal)

		send := NewFrame(CommandSend).
			SetHeader(HeaderDestination, destination).
			SetHeader(HeaderFileName, path)
		send.Body = body
		if err := client.send(transport, send); err != nil {
			return err
		}
	}
	client.print("Reported %d events to %s", len(report.Events), gameName)
	return nil
}

// Summary writes user's aggregated view of gameName to path.
func (client *Client) Summary(gameName string, user string, path string) error {
	if _, _, err := client.requireLogin(); err != nil {
		return err
	}

	if client.summaryDir != "" && !filepath.IsAbs(path) {
		path = filepath.Join(client.summaryDir, path)
	}
	teamA, teamB := client.store.Teams(gameName)
	stats := client.store.UserStats(gameName, user)
	client.logger.Debug("writing summary", "game", gameName, "user", user, "reporters", client.store.Users(gameName))
	if err := game.WriteSummaryFile(path, teamA, teamB, stats); err != nil {
		client.print("Could not write summary: %v", err)
		return NewError(InvalidArgumentError, err)
	}
	client.print("Summary of %s by %s written to %s", gameName, user, path)
	return nil
}

func (client *Client) requireLogin() (Transport, string, error) {
	transport, user, err := client.session.authenticated()
	if err != nil {
		if IsCode(err, LogoutPendingError) {
			client.print("logout in progress")
		} else {
			client.print("must login first")
		}
		return nil, "", err
	}
	return transport, user, nil
}

// Close drops the connection without a DISCONNECT handshake and waits for
// the receive goroutine to exit.
func (client *Client) Close() error {
	previous, _ := client.session.reset(nil)
	client.receipts.Clear()
	client.subscriptions.Clear()

	var err error
	if previous != nil {
		err = previous.Close()
	}
	client.joinReceiveLoop()
	return err
}

func topicDestination(gameName string) string {
	return "/" + gameName
}

// topicGame recovers the game name from "/game" or "/topic/game".
func topicGame(destination string) string {
	name := strings.TrimPrefix(destination, "/")
	return strings.TrimPrefix(name, "topic/")
}

// connectHost validates a login address and returns the host for the CONNECT frame.
func connectHost(address string) (string, error) {
	if strings.HasPrefix(address, "ws://") || strings.HasPrefix(address, "wss://") {
		parsed, err := url.Parse(address)
		if err != nil || parsed.Hostname() == "" {
			return "", NewError(InvalidArgumentError, fmt.Sprintf("invalid address %q", address))
		}
		return parsed.Hostname(), nil
	}
	host, port, err := net.SplitHostPort(address)
	if err != nil || port == "" {
		return "", NewError(InvalidArgumentError, fmt.Sprintf("invalid address %q", address))
	}
	if host == "" {
		host = "localhost"
	}
	return host, nil
}
