package fakebroker

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/Thejuampi/stomp-client-go/internal/config"
	"github.com/Thejuampi/stomp-client-go/stomp"
)

// WebSocketPath is where WebSocketHandler is mounted by ListenAndServe.
const WebSocketPath = "/stomp"

const shutdownTimeout = 5 * time.Second

// Serve accepts TCP clients on listener until ctx is done or the listener fails.
// It closes the listener and every connection it accepted before returning.
func (broker *Broker) Serve(ctx context.Context, listener net.Listener) error {
	stop := context.AfterFunc(ctx, func() { _ = listener.Close() })
	defer stop()

	broker.logger.Info("listening", "transport", "tcp", "addr", listener.Addr().String())
	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || isClosedError(err) {
				broker.Close()
				return nil
			}
			broker.Close()
			return err
		}
		go broker.serveConnection(stomp.NewTCPTransport(conn), conn.RemoteAddr().String())
	}
}

// WebSocketHandler upgrades requests to the v12.stomp subprotocol and serves
// each upgraded socket as one client connection.
func (broker *Broker) WebSocketHandler() http.Handler {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		Subprotocols:    []string{stomp.WebSocketSubprotocol},
		CheckOrigin:     func(*http.Request) bool { return true },
	}
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		socket, err := upgrader.Upgrade(writer, request, nil)
		if err != nil {
			broker.logger.Debug("websocket upgrade failed", "remote", request.RemoteAddr, "err", err)
			return
		}
		broker.serveConnection(stomp.NewWebSocketTransport(socket), request.RemoteAddr)
	})
}

// ListenAndServe runs the listeners named in settings until ctx is done.
// The TCP listener is always started; the WebSocket and admin listeners only
// when their address is set.
func (broker *Broker) ListenAndServe(ctx context.Context, settings config.Broker) error {
	listener, err := net.Listen("tcp", settings.Addr)
	if err != nil {
		return err
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error { return broker.Serve(groupCtx, listener) })

	if settings.WSAddr != "" {
		mux := http.NewServeMux()
		mux.Handle(WebSocketPath, broker.WebSocketHandler())
		serveHTTP(groupCtx, group, broker, "websocket", settings.WSAddr, mux)
	}
	if settings.AdminAddr != "" {
		serveHTTP(groupCtx, group, broker, "admin", settings.AdminAddr, broker.AdminHandler())
	}

	return group.Wait()
}

func serveHTTP(ctx context.Context, group *errgroup.Group, broker *Broker, name string, addr string, handler http.Handler) {
	server := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}

	group.Go(func() error {
		broker.logger.Info("listening", "transport", name, "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		// Hijacked WebSocket connections are not tracked by Shutdown.
		broker.Close()
		return server.Shutdown(shutdownCtx)
	})
}

func isClosedError(err error) bool {
	return errors.Is(err, net.ErrClosed)
}
