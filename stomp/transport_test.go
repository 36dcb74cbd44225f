package stomp

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTCPTransportFraming(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	received := make(chan string, 1)
	go func() {
		connection, err := listener.Accept()
		if err != nil {
			return
		}
		defer connection.Close()
		_, _ = connection.Write([]byte("CONNECTED\nversion:1.2\n\n\x00RECEIPT\nreceipt-id:1\n\n\x00"))
		frame, _ := bufio.NewReader(connection).ReadString(FrameTerminator)
		received <- frame
	}()

	transport, err := DialTCP(context.Background(), listener.Addr().String())
	require.NoError(t, err)
	defer transport.Close()

	first, err := transport.ReceiveFrame()
	require.NoError(t, err)
	assert.Equal(t, CommandConnected, Decode(string(first)).Command)

	second, err := transport.ReceiveFrame()
	require.NoError(t, err)
	secondFrame := Decode(string(second))
	receiptID, _ := secondFrame.Header(HeaderReceiptID)
	assert.Equal(t, "1", receiptID)

	require.NoError(t, transport.SendFrame(Encode(CommandDisconnect, map[string]string{HeaderReceipt: "9"}, "")))
	select {
	case frame := <-received:
		assert.Equal(t, "DISCONNECT\nreceipt:9\n\n\x00", frame)
	case <-time.After(testWait):
		t.Fatalf("server did not receive the frame")
	}

	_, err = transport.ReceiveFrame()
	assert.ErrorIs(t, err, io.EOF, "expected EOF after peer close")
}

func TestTCPTransportCloseUnblocksReceive(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()
	transport := NewTCPTransport(client)

	result := make(chan error, 1)
	go func() {
		_, err := transport.ReceiveFrame()
		result <- err
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, transport.Close())
	_ = transport.Close()

	select {
	case err := <-result:
		assert.Error(t, err)
	case <-time.After(testWait):
		t.Fatalf("close did not unblock ReceiveFrame")
	}
}

func TestDialTCPRefused(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	address := listener.Addr().String()
	_ = listener.Close()

	_, err = DialTCP(context.Background(), address)
	assert.True(t, IsCode(err, ConnectionRefusedError), "expected ConnectionRefusedError, got %v", err)
}

func TestWebSocketTransportFraming(t *testing.T) {
	upgrader := websocket.Upgrader{Subprotocols: []string{WebSocketSubprotocol}}
	received := make(chan string, 1)
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		connection, err := upgrader.Upgrade(writer, request, nil)
		if err != nil {
			return
		}
		defer connection.Close()

		_ = connection.WriteMessage(websocket.TextMessage,
			[]byte("CONNECTED\nversion:1.2\n\n\x00MESSAGE\ndestination:/A_B\n\nuser: bob\x00"))
		_, payload, err := connection.ReadMessage()
		if err == nil {
			received <- string(payload)
		}
		_, _, _ = connection.ReadMessage()
	}))
	defer server.Close()

	address := "ws" + strings.TrimPrefix(server.URL, "http")
	transport, err := DialWebSocket(context.Background(), address)
	require.NoError(t, err)

	first, err := transport.ReceiveFrame()
	require.NoError(t, err)
	assert.Equal(t, CommandConnected, Decode(string(first)).Command)
	second, err := transport.ReceiveFrame()
	require.NoError(t, err)
	assert.Equal(t, "user: bob", Decode(string(second)).Body)

	require.NoError(t, transport.SendFrame(Encode(CommandSubscribe, map[string]string{HeaderDestination: "/A_B"}, "")))
	select {
	case payload := <-received:
		assert.Equal(t, "SUBSCRIBE\ndestination:/A_B\n\n\x00", payload)
	case <-time.After(testWait):
		t.Fatalf("server did not receive the frame")
	}

	if err := transport.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		t.Fatalf("close: %v", err)
	}
}

func TestDefaultDialerRoutesByScheme(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	address := listener.Addr().String()
	_ = listener.Close()

	for _, target := range []string{address, "ws://" + address + "/stomp"} {
		_, err := DefaultDialer.Dial(ctx, target)
		assert.True(t, IsCode(err, ConnectionRefusedError), "%s: expected ConnectionRefusedError, got %v", target, err)
	}
}
