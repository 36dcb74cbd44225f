package stomp

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"time"
)

// Transport carries terminator-delimited frames over a byte stream.
type Transport interface {
	// SendFrame writes one encoded frame followed by the terminator.
	SendFrame(frame []byte) error
	// ReceiveFrame blocks until a full frame arrives and returns it without
	// the terminator. It returns io.EOF once the peer or Close ends the stream.
	ReceiveFrame() ([]byte, error)
	Close() error
}

// Dialer opens a transport to an address taken from the login command.
type Dialer interface {
	Dial(ctx context.Context, address string) (Transport, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, address string) (Transport, error)

// Dial calls the wrapped function.
func (dial DialerFunc) Dial(ctx context.Context, address string) (Transport, error) {
	return dial(ctx, address)
}

// DefaultDialer selects the WebSocket transport for ws:// and wss:// addresses
// and plain TCP for host:port.
var DefaultDialer Dialer = DialerFunc(func(ctx context.Context, address string) (Transport, error) {
	if strings.HasPrefix(address, "ws://") || strings.HasPrefix(address, "wss://") {
		return DialWebSocket(ctx, address)
	}
	return DialTCP(ctx, address)
})

// TCPTransport frames STOMP over a net.Conn.
type TCPTransport struct {
	connection net.Conn
	reader     *bufio.Reader
	writeLock  sync.Mutex
	closeOnce  sync.Once
	closeErr   error
}

// DialTCP connects to host:port.
func DialTCP(ctx context.Context, address string) (*TCPTransport, error) {
	dialer := net.Dialer{KeepAlive: 30 * time.Second}
	connection, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, NewError(ConnectionRefusedError, err)
	}
	if tcpConnection, isTCP := connection.(*net.TCPConn); isTCP {
		_ = tcpConnection.SetNoDelay(true)
	}
	return NewTCPTransport(connection), nil
}

// NewTCPTransport wraps an established connection.
func NewTCPTransport(connection net.Conn) *TCPTransport {
	return &TCPTransport{
		connection: connection,
		reader:     bufio.NewReaderSize(connection, 64*1024),
	}
}

// SendFrame writes the frame and the terminator in one call.
func (transport *TCPTransport) SendFrame(frame []byte) error {
	buffer := make([]byte, 0, len(frame)+1)
	buffer = append(buffer, frame...)
	buffer = append(buffer, FrameTerminator)

	transport.writeLock.Lock()
	defer transport.writeLock.Unlock()
	_, err := transport.connection.Write(buffer)
	return err
}

// ReceiveFrame reads up to the next terminator byte.
func (transport *TCPTransport) ReceiveFrame() ([]byte, error) {
	frame, err := transport.reader.ReadBytes(FrameTerminator)
	if err != nil {
		if errors.Is(err, net.ErrClosed) {
			return nil, io.EOF
		}
		return nil, err
	}
	return frame[:len(frame)-1], nil
}

// Close closes the connection, unblocking a pending ReceiveFrame.
func (transport *TCPTransport) Close() error {
	transport.closeOnce.Do(func() {
		transport.closeErr = transport.connection.Close()
	})
	return transport.closeErr
}
