package stomp

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocketSubprotocol is the subprotocol negotiated for STOMP 1.2 over WebSocket.
const WebSocketSubprotocol = "v12.stomp"

// WebSocketTransport carries one frame per text message. The trailing
// terminator is still written so brokers that stream the payload can split it.
type WebSocketTransport struct {
	connection *websocket.Conn
	writeLock  sync.Mutex
	closeOnce  sync.Once
	closeErr   error
	pending    [][]byte
}

// DialWebSocket connects to a ws:// or wss:// URL.
func DialWebSocket(ctx context.Context, url string) (*WebSocketTransport, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: 10 * time.Second,
		Subprotocols:     []string{WebSocketSubprotocol},
	}
	connection, response, err := dialer.DialContext(ctx, url, nil)
	if response != nil && response.Body != nil {
		_ = response.Body.Close()
	}
	if err != nil {
		return nil, NewError(ConnectionRefusedError, err)
	}
	return NewWebSocketTransport(connection), nil
}

// NewWebSocketTransport wraps an established WebSocket connection.
func NewWebSocketTransport(connection *websocket.Conn) *WebSocketTransport {
	return &WebSocketTransport{connection: connection}
}

// SendFrame writes the frame and terminator as a single text message.
func (transport *WebSocketTransport) SendFrame(frame []byte) error {
	buffer := make([]byte, 0, len(frame)+1)
	buffer = append(buffer, frame...)
	buffer = append(buffer, FrameTerminator)

	transport.writeLock.Lock()
	defer transport.writeLock.Unlock()
	return transport.connection.WriteMessage(websocket.TextMessage, buffer)
}

// ReceiveFrame returns the next frame. A message holding several terminated
// frames is split and the remainder queued for later calls.
func (transport *WebSocketTransport) ReceiveFrame() ([]byte, error) {
	for len(transport.pending) == 0 {
		_, payload, err := transport.connection.ReadMessage()
		if err != nil {
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil, io.EOF
			}
			return nil, err
		}
		for _, part := range bytes.Split(payload, []byte{FrameTerminator}) {
			if len(bytes.TrimLeft(part, "\r\n")) == 0 {
				continue
			}
			transport.pending = append(transport.pending, part)
		}
	}
	frame := transport.pending[0]
	transport.pending = transport.pending[1:]
	return frame, nil
}

// Close sends a close message and closes the connection.
func (transport *WebSocketTransport) Close() error {
	transport.closeOnce.Do(func() {
		_ = transport.connection.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		transport.closeErr = transport.connection.Close()
	})
	return transport.closeErr
}
