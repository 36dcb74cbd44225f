// Package fakebroker implements a deterministic, in-process STOMP 1.2 broker
// for integration testing of the game-event client. It models the behavior of
// the course server the client was written against:
//   - CONNECT requires accept-version 1.2; unknown users are registered on
//     first login, a wrong password or an already active user is refused
//   - SUBSCRIBE / UNSUBSCRIBE with numeric ids and optional receipts
//   - SEND only to destinations the sender is subscribed to, fanned out to
//     every subscriber (the sender included) as MESSAGE frames
//   - DISCONNECT acknowledged with its receipt
//   - every ERROR closes the connection
//
// The broker speaks NUL-terminated frames over TCP and one frame per text
// message over WebSocket, and exposes a JSON admin API with Prometheus metrics.
package fakebroker

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Option configures a Broker.
type Option func(*Broker)

// WithUsers preloads accounts.
func WithUsers(users map[string]string) Option {
	return func(broker *Broker) {
		for user, password := range users {
			broker.users.add(user, password)
		}
	}
}

// WithLogger sets the structured logger. The default discards records.
func WithLogger(logger *slog.Logger) Option {
	return func(broker *Broker) {
		if logger != nil {
			broker.logger = logger
		}
	}
}

// WithRegistry registers the broker metrics on registry instead of a private one.
func WithRegistry(registry *prometheus.Registry) Option {
	return func(broker *Broker) {
		if registry != nil {
			broker.registry = registry
		}
	}
}

// WithOutboundDepth sets the per-connection outbound queue size.
func WithOutboundDepth(depth int) Option {
	return func(broker *Broker) {
		if depth > 0 {
			broker.outDepth = depth
		}
	}
}

// Broker holds the state shared by all connections.
type Broker struct {
	logger   *slog.Logger
	registry *prometheus.Registry
	metrics  *brokerMetrics
	users    *userStore
	topics   *topicRegistry
	outDepth int
	started  time.Time

	nextMessageID       atomic.Uint64
	connectionsAccepted atomic.Uint64
	connectionsCurrent  atomic.Int64

	connectionsLock sync.Mutex
	connections     map[*connection]struct{}
	handlers        sync.WaitGroup
}

// New returns a broker with no listeners attached.
func New(options ...Option) *Broker {
	broker := &Broker{
		logger:      slog.New(slog.DiscardHandler),
		users:       newUserStore(),
		topics:      newTopicRegistry(),
		outDepth:    4096,
		started:     time.Now(),
		connections: make(map[*connection]struct{}),
	}
	for _, option := range options {
		option(broker)
	}
	if broker.registry == nil {
		broker.registry = prometheus.NewRegistry()
	}
	broker.metrics = newBrokerMetrics(broker.registry)
	return broker
}

// Registry returns the registry the broker metrics are registered on.
func (broker *Broker) Registry() *prometheus.Registry { return broker.registry }

func (broker *Broker) track(conn *connection) bool {
	broker.connectionsLock.Lock()
	defer broker.connectionsLock.Unlock()
	if broker.connections == nil {
		return false
	}
	broker.connections[conn] = struct{}{}
	broker.handlers.Add(1)
	broker.connectionsAccepted.Add(1)
	broker.connectionsCurrent.Add(1)
	broker.metrics.connections.Inc()
	return true
}

func (broker *Broker) untrack(conn *connection) {
	broker.connectionsLock.Lock()
	defer broker.connectionsLock.Unlock()
	if _, exists := broker.connections[conn]; !exists {
		return
	}
	delete(broker.connections, conn)
	broker.connectionsCurrent.Add(-1)
	broker.metrics.connections.Dec()
}

// Close drops every connection and waits for their handlers to return.
// Connections arriving afterwards are refused.
func (broker *Broker) Close() {
	broker.connectionsLock.Lock()
	active := make([]*connection, 0, len(broker.connections))
	for conn := range broker.connections {
		active = append(active, conn)
	}
	broker.connections = nil
	broker.connectionsLock.Unlock()

	for _, conn := range active {
		_ = conn.transport.Close()
	}
	broker.handlers.Wait()
}
