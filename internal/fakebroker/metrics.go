package fakebroker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "fakestomp"

type brokerMetrics struct {
	connections prometheus.Gauge
	framesIn    *prometheus.CounterVec
	framesOut   prometheus.Counter
	delivered   prometheus.Counter
	dropped     prometheus.Counter
	errors      prometheus.Counter
}

func newBrokerMetrics(registry prometheus.Registerer) *brokerMetrics {
	factory := promauto.With(registry)
	return &brokerMetrics{
		connections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "connections_current",
			Help:      "Open client connections",
		}),
		framesIn: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "frames_received_total",
			Help:      "Frames received from clients by command",
		}, []string{"command"}),
		framesOut: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "frames_sent_total",
			Help:      "Frames written to clients",
		}),
		delivered: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "messages_delivered_total",
			Help:      "MESSAGE frames queued for subscribers",
		}),
		dropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "frames_dropped_total",
			Help:      "Frames dropped because a client queue was full",
		}),
		errors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "errors_sent_total",
			Help:      "ERROR frames sent before closing a connection",
		}),
	}
}
