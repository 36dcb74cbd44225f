// Package testutil provides an in-memory frame transport for engine tests.
package testutil

import (
	"errors"
	"io"
	"sync"
	"time"
)

// Responder returns the frames the fake peer answers to one sent frame.
type Responder func(frame []byte) [][]byte

// Transport is a scripted peer. Frames passed to Deliver are returned by
// ReceiveFrame in order; frames the client sends are recorded and may
// trigger scripted replies.
type Transport struct {
	lock      sync.Mutex
	sent      [][]byte
	responder Responder
	sendErr   error
	inbound   chan []byte
	closed    chan struct{}
	closeOnce sync.Once
	sentCh    chan struct{}
}

// NewTransport returns an open transport with no responder.
func NewTransport() *Transport {
	return &Transport{
		inbound: make(chan []byte, 256),
		closed:  make(chan struct{}),
		sentCh:  make(chan struct{}, 1),
	}
}

// SetResponder installs the reply script.
func (transport *Transport) SetResponder(responder Responder) {
	transport.lock.Lock()
	transport.responder = responder
	transport.lock.Unlock()
}

// FailSends makes every following SendFrame return err.
func (transport *Transport) FailSends(err error) {
	transport.lock.Lock()
	transport.sendErr = err
	transport.lock.Unlock()
}

// Deliver queues an inbound frame.
func (transport *Transport) Deliver(frame []byte) {
	transport.inbound <- append([]byte(nil), frame...)
}

// SendFrame records frame and queues any scripted replies.
func (transport *Transport) SendFrame(frame []byte) error {
	if transport.Closed() {
		return io.ErrClosedPipe
	}

	transport.lock.Lock()
	if transport.sendErr != nil {
		err := transport.sendErr
		transport.lock.Unlock()
		return err
	}
	transport.sent = append(transport.sent, append([]byte(nil), frame...))
	responder := transport.responder
	transport.lock.Unlock()

	select {
	case transport.sentCh <- struct{}{}:
	default:
	}

	if responder != nil {
		for _, reply := range responder(frame) {
			transport.Deliver(reply)
		}
	}
	return nil
}

// ReceiveFrame blocks until a frame is delivered or the transport is closed.
func (transport *Transport) ReceiveFrame() ([]byte, error) {
	select {
	case frame := <-transport.inbound:
		return frame, nil
	case <-transport.closed:
		return nil, io.EOF
	}
}

// Close ends the stream and unblocks ReceiveFrame.
func (transport *Transport) Close() error {
	transport.closeOnce.Do(func() { close(transport.closed) })
	return nil
}

// Closed reports whether Close was called.
func (transport *Transport) Closed() bool {
	select {
	case <-transport.closed:
		return true
	default:
		return false
	}
}

// Sent returns copies of the recorded frames.
func (transport *Transport) Sent() [][]byte {
	transport.lock.Lock()
	defer transport.lock.Unlock()
	frames := make([][]byte, len(transport.sent))
	for index, frame := range transport.sent {
		frames[index] = append([]byte(nil), frame...)
	}
	return frames
}

// ErrTimeout is returned by WaitForSent when the frames did not arrive in time.
var ErrTimeout = errors.New("testutil: timed out waiting for sent frames")

// WaitForSent waits until at least count frames were sent.
func (transport *Transport) WaitForSent(count int, timeout time.Duration) ([][]byte, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		if frames := transport.Sent(); len(frames) >= count {
			return frames, nil
		}
		select {
		case <-transport.sentCh:
		case <-deadline.C:
			return transport.Sent(), ErrTimeout
		}
	}
}
