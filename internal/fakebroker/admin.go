package fakebroker

import (
	"encoding/json"
	"net/http"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ---------------------------------------------------------------------------
// Admin API: read-only view of broker state.
//
//   GET /admin/status   uptime and connection counters
//   GET /admin/topics   destination to subscribed users
//   GET /admin/users    accounts, active sessions and uploaded report files
//   GET /metrics        Prometheus exposition
// ---------------------------------------------------------------------------

// Status is the /admin/status payload.
type Status struct {
	Uptime              string `json:"uptime"`
	ConnectionsAccepted uint64 `json:"connections_accepted"`
	ConnectionsCurrent  int64  `json:"connections_current"`
	MessagesDelivered   uint64 `json:"messages_delivered"`
	Topics              int    `json:"topics"`
	Goroutines          int    `json:"goroutines"`
}

// AdminHandler returns the admin router.
func (broker *Broker) AdminHandler() http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.Recoverer)

	router.Get("/admin/status", func(writer http.ResponseWriter, _ *http.Request) {
		jsonResponse(writer, broker.Status())
	})
	router.Get("/admin/topics", func(writer http.ResponseWriter, _ *http.Request) {
		jsonResponse(writer, broker.topics.snapshot())
	})
	router.Get("/admin/users", func(writer http.ResponseWriter, _ *http.Request) {
		jsonResponse(writer, broker.users.snapshot())
	})
	router.Handle("/metrics", promhttp.HandlerFor(broker.registry, promhttp.HandlerOpts{}))
	return router
}

// Status reports the broker counters.
func (broker *Broker) Status() Status {
	return Status{
		Uptime:              time.Since(broker.started).Truncate(time.Second).String(),
		ConnectionsAccepted: broker.connectionsAccepted.Load(),
		ConnectionsCurrent:  broker.connectionsCurrent.Load(),
		MessagesDelivered:   broker.nextMessageID.Load(),
		Topics:              len(broker.topics.snapshot()),
		Goroutines:          runtime.NumGoroutine(),
	}
}

func jsonResponse(writer http.ResponseWriter, value any) {
	writer.Header().Set("Content-Type", "application/json")
	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	_ = encoder.Encode(value)
}
