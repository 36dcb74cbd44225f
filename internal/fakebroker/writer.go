package fakebroker

import (
	"sync"

	"github.com/Thejuampi/stomp-client-go/stomp"
)

// ---------------------------------------------------------------------------
// connWriter owns the write side of one connection on its own goroutine.
//
// Fan-out from other connections never blocks on a slow peer: deliver drops
// the MESSAGE when the queue is full. Replies to the connection's own frames
// (CONNECTED, RECEIPT, ERROR) are never dropped; reply waits for room, which
// only stalls that connection's read loop. close drains what is queued, so
// an ERROR enqueued right before close still reaches the peer.
// ---------------------------------------------------------------------------

type connWriter struct {
	lock    sync.RWMutex
	closed  bool
	ch      chan []byte
	done    chan struct{}
	metrics *brokerMetrics
}

func newConnWriter(transport stomp.Transport, depth int, metrics *brokerMetrics) *connWriter {
	writer := &connWriter{
		ch:      make(chan []byte, depth),
		done:    make(chan struct{}),
		metrics: metrics,
	}
	go writer.run(transport)
	return writer
}

func (writer *connWriter) run(transport stomp.Transport) {
	defer close(writer.done)

	failed := false
	for frame := range writer.ch {
		if failed {
			continue
		}
		if err := transport.SendFrame(frame); err != nil {
			// Keep draining so senders never see a stuck queue.
			failed = true
			continue
		}
		writer.metrics.framesOut.Inc()
	}
}

// deliver enqueues a fan-out frame. It reports false when the writer is
// closed or the queue is full.
func (writer *connWriter) deliver(frame []byte) bool {
	writer.lock.RLock()
	defer writer.lock.RUnlock()

	if writer.closed {
		return false
	}
	select {
	case writer.ch <- frame:
		return true
	default:
		writer.metrics.dropped.Inc()
		return false
	}
}

// reply enqueues a response to the peer's own request, waiting for room.
// It reports false only when the writer is closed.
func (writer *connWriter) reply(frame []byte) bool {
	writer.lock.RLock()
	defer writer.lock.RUnlock()

	if writer.closed {
		return false
	}
	writer.ch <- frame
	return true
}

func (writer *connWriter) close() {
	writer.lock.Lock()
	if !writer.closed {
		writer.closed = true
		close(writer.ch)
	}
	writer.lock.Unlock()
	<-writer.done
}
