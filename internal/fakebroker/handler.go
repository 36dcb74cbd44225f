package fakebroker

import (
	"errors"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/Thejuampi/stomp-client-go/stomp"
)

// connection is the per-client protocol state. It is owned by the goroutine
// running serveConnection; other connections only touch it through writer.
type connection struct {
	broker        *Broker
	id            string
	remote        string
	transport     stomp.Transport
	writer        *connWriter
	logger        *slog.Logger
	user          string
	authenticated bool
	subscriptions map[string]string // subscription id → destination
}

// serveConnection runs the read loop for one client until the peer goes away,
// the broker closes, or a frame ends the session.
func (broker *Broker) serveConnection(transport stomp.Transport, remote string) {
	conn := &connection{
		broker:        broker,
		id:            uuid.NewString(),
		remote:        remote,
		transport:     transport,
		subscriptions: make(map[string]string),
	}
	conn.logger = broker.logger.With("conn", conn.id, "remote", remote)

	if !broker.track(conn) {
		_ = transport.Close()
		return
	}
	defer broker.handlers.Done()

	conn.writer = newConnWriter(transport, broker.outDepth, broker.metrics)
	conn.logger.Debug("connection accepted")

	defer func() {
		broker.topics.unregisterAll(conn)
		if conn.authenticated {
			broker.users.logout(conn.user, conn.id)
		}
		conn.writer.close()
		_ = transport.Close()
		broker.untrack(conn)
		conn.logger.Debug("connection closed", "user", conn.user)
	}()

	for {
		raw, err := transport.ReceiveFrame()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				conn.logger.Debug("read failed", "err", err)
			}
			return
		}
		if !conn.process(stomp.Decode(string(raw))) {
			return
		}
	}
}

// process handles one inbound frame and reports whether the connection stays open.
func (conn *connection) process(frame stomp.Frame) bool {
	if frame.Command == "" {
		// Heartbeats and stray newlines.
		return true
	}
	conn.broker.metrics.framesIn.WithLabelValues(frame.Command).Inc()

	if frame.Command == stomp.CommandConnect {
		return conn.handleConnect(frame)
	}

	switch frame.Command {
	case stomp.CommandDisconnect, stomp.CommandSend, stomp.CommandSubscribe, stomp.CommandUnsubscribe:
		if !conn.authenticated {
			return conn.fail("Client is not authenticated", frame)
		}
	default:
		return conn.fail("Unknown STOMP command: "+frame.Command, frame)
	}

	switch frame.Command {
	case stomp.CommandDisconnect:
		return conn.handleDisconnect(frame)
	case stomp.CommandSend:
		return conn.handleSend(frame)
	case stomp.CommandSubscribe:
		return conn.handleSubscribe(frame)
	default:
		return conn.handleUnsubscribe(frame)
	}
}

func (conn *connection) handleConnect(frame stomp.Frame) bool {
	if conn.authenticated {
		return conn.fail("User already logged in", frame)
	}
	versions, _ := frame.Header(stomp.HeaderAcceptVersion)
	if !acceptsVersion(versions, stomp.ProtocolVersion) {
		return conn.fail("Unsupported protocol version", frame)
	}

	user, _ := frame.Header(stomp.HeaderLogin)
	password, _ := frame.Header(stomp.HeaderPasscode)
	status := conn.broker.users.login(conn.id, user, password)
	if !status.ok() {
		return conn.fail(status.reason(), frame)
	}

	conn.user = user
	conn.authenticated = true
	conn.logger = conn.logger.With("user", user)
	conn.logger.Info("login", "registered", status == loginRegistered)

	conn.reply(stomp.NewFrame(stomp.CommandConnected).
		SetHeader(stomp.HeaderVersion, stomp.ProtocolVersion).
		SetHeader(stomp.HeaderSession, conn.id))
	return true
}

func (conn *connection) handleDisconnect(frame stomp.Frame) bool {
	conn.receipt(frame)
	conn.logger.Info("logout")
	return false
}

func (conn *connection) handleSend(frame stomp.Frame) bool {
	destination, _ := frame.Header(stomp.HeaderDestination)
	if destination == "" {
		return conn.fail("Missing 'destination' header", frame)
	}
	if !conn.broker.topics.subscribed(destination, conn) {
		return conn.fail("User is not subscribed to "+destination, frame)
	}

	if fileName, exists := frame.Header(stomp.HeaderFileName); exists && fileName != "" {
		conn.broker.users.logFile(conn.user, fileName, destination)
	}

	for _, entry := range conn.broker.topics.subscribers(destination) {
		messageID := conn.broker.nextMessageID.Add(1) - 1
		message := stomp.NewFrame(stomp.CommandMessage).
			SetHeader(stomp.HeaderSubscription, entry.subscriptionID).
			SetHeader(stomp.HeaderMessageID, strconv.FormatUint(messageID, 10)).
			SetHeader(stomp.HeaderDestination, destination)
		message.Body = frame.Body
		if entry.conn.writer.deliver(message.Bytes()) {
			conn.broker.metrics.delivered.Inc()
		}
	}

	conn.receipt(frame)
	return true
}

func (conn *connection) handleSubscribe(frame stomp.Frame) bool {
	destination, _ := frame.Header(stomp.HeaderDestination)
	subscriptionID, _ := frame.Header(stomp.HeaderID)
	if destination == "" || subscriptionID == "" {
		return conn.fail("Malformed SUBSCRIBE frame (missing id or destination)", frame)
	}
	if _, err := strconv.Atoi(subscriptionID); err != nil {
		return conn.fail("Invalid subscription ID", frame)
	}

	for existingID, existingDestination := range conn.subscriptions {
		if existingDestination == destination {
			delete(conn.subscriptions, existingID)
		}
	}
	conn.subscriptions[subscriptionID] = destination
	conn.broker.topics.subscribe(destination, subscriber{conn: conn, subscriptionID: subscriptionID, user: conn.user})
	conn.logger.Debug("subscribed", "destination", destination, "id", subscriptionID)

	conn.receipt(frame)
	return true
}

func (conn *connection) handleUnsubscribe(frame stomp.Frame) bool {
	subscriptionID, _ := frame.Header(stomp.HeaderID)
	if subscriptionID == "" {
		return conn.fail("Missing subscription ID", frame)
	}
	if _, err := strconv.Atoi(subscriptionID); err != nil {
		return conn.fail("Invalid ID format", frame)
	}

	// Unknown ids are acknowledged like known ones.
	if destination, exists := conn.subscriptions[subscriptionID]; exists {
		delete(conn.subscriptions, subscriptionID)
		conn.broker.topics.unsubscribe(destination, conn)
		conn.logger.Debug("unsubscribed", "destination", destination, "id", subscriptionID)
	}

	conn.receipt(frame)
	return true
}

func (conn *connection) reply(frame *stomp.Frame) {
	conn.writer.reply(frame.Bytes())
}

func (conn *connection) receipt(frame stomp.Frame) {
	receiptID, exists := frame.Header(stomp.HeaderReceipt)
	if !exists {
		return
	}
	conn.reply(stomp.NewFrame(stomp.CommandReceipt).SetHeader(stomp.HeaderReceiptID, receiptID))
}

// fail queues an ERROR frame for the offending frame and ends the session.
func (conn *connection) fail(message string, frame stomp.Frame) bool {
	reply := stomp.NewFrame(stomp.CommandError).SetHeader(stomp.HeaderMessage, message)
	if receiptID, exists := frame.Header(stomp.HeaderReceipt); exists {
		reply.SetHeader(stomp.HeaderReceiptID, receiptID)
	}
	conn.reply(reply)
	conn.broker.metrics.errors.Inc()
	conn.logger.Warn("protocol error", "command", frame.Command, "message", message)
	return false
}

func acceptsVersion(header string, version string) bool {
	for _, candidate := range strings.Split(header, ",") {
		if strings.TrimSpace(candidate) == version {
			return true
		}
	}
	return false
}
