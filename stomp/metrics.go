package stomp

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Event origins recorded by Metrics.
const (
	OriginLocal  = "local"
	OriginRemote = "remote"
)

// Metrics counts client protocol activity. A nil *Metrics records nothing.
type Metrics struct {
	framesSent       *prometheus.CounterVec
	framesReceived   *prometheus.CounterVec
	eventsAggregated *prometheus.CounterVec
	receiptsResolved *prometheus.CounterVec
	connectionsLost  prometheus.Counter
}

// NewMetrics registers the client collectors on registry under namespace.
func NewMetrics(registry prometheus.Registerer, namespace string) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "stomp_client"
	}
	factory := promauto.With(registry)

	return &Metrics{
		framesSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_sent_total",
			Help:      "Frames written to the transport by command",
		}, []string{"command"}),

		framesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_received_total",
			Help:      "Frames read from the transport by command",
		}, []string{"command"}),

		eventsAggregated: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_aggregated_total",
			Help:      "Game events applied to the aggregation store by origin",
		}, []string{"origin"}),

		receiptsResolved: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "receipts_resolved_total",
			Help:      "Receipts matched to a pending request by request kind",
		}, []string{"kind"}),

		connectionsLost: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_lost_total",
			Help:      "Connections ended by a transport failure or a server ERROR",
		}),
	}
}

func (metrics *Metrics) frameSent(command string) {
	if metrics != nil {
		metrics.framesSent.WithLabelValues(command).Inc()
	}
}

func (metrics *Metrics) frameReceived(command string) {
	if metrics != nil {
		if command == "" {
			command = "malformed"
		}
		metrics.framesReceived.WithLabelValues(command).Inc()
	}
}

func (metrics *Metrics) eventAggregated(origin string) {
	if metrics != nil {
		metrics.eventsAggregated.WithLabelValues(origin).Inc()
	}
}

func (metrics *Metrics) receiptResolved(kind RequestKind) {
	if metrics != nil {
		metrics.receiptsResolved.WithLabelValues(kind.String()).Inc()
	}
}

func (metrics *Metrics) connectionLost() {
	if metrics != nil {
		metrics.connectionsLost.Inc()
	}
}
