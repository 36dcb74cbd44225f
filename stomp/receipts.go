package stomp

import (
	"strconv"
	"sync"
)

// RequestKind identifies the request a receipt acknowledges.
type RequestKind int

const (
	RequestSubscribe RequestKind = iota + 1
	RequestUnsubscribe
	RequestDisconnect
)

func (kind RequestKind) String() string {
	switch kind {
	case RequestSubscribe:
		return "subscribe"
	case RequestUnsubscribe:
		return "unsubscribe"
	case RequestDisconnect:
		return "disconnect"
	default:
		return "unknown"
	}
}

// PendingRequest is the context resolved when its receipt arrives.
type PendingRequest struct {
	Kind           RequestKind
	Game           string
	SubscriptionID string
}

// ReceiptRegistry maps outstanding receipt ids to pending requests.
// Ids come from a counter that is never rewound, so they are unique for the
// lifetime of the registry.
type ReceiptRegistry struct {
	lock    sync.Mutex
	nextID  uint64
	pending map[string]PendingRequest
}

// NewReceiptRegistry returns an empty registry whose first id is "1".
func NewReceiptRegistry() *ReceiptRegistry {
	return &ReceiptRegistry{
		nextID:  1,
		pending: make(map[string]PendingRequest),
	}
}

// Next allocates a fresh receipt id and registers request under it.
func (registry *ReceiptRegistry) Next(request PendingRequest) string {
	registry.lock.Lock()
	receiptID := strconv.FormatUint(registry.nextID, 10)
	registry.nextID++
	registry.lock.Unlock()

	registry.Register(receiptID, request)
	return receiptID
}

// Register inserts request under an explicit id. It reports false when the id is already outstanding.
func (registry *ReceiptRegistry) Register(receiptID string, request PendingRequest) bool {
	registry.lock.Lock()
	defer registry.lock.Unlock()

	if _, exists := registry.pending[receiptID]; exists {
		return false
	}
	registry.pending[receiptID] = request
	return true
}

// Resolve removes and returns the request for receiptID. Unknown or already
// resolved ids return false.
func (registry *ReceiptRegistry) Resolve(receiptID string) (PendingRequest, bool) {
	registry.lock.Lock()
	defer registry.lock.Unlock()

	request, exists := registry.pending[receiptID]
	if exists {
		delete(registry.pending, receiptID)
	}
	return request, exists
}

// Len returns the number of outstanding receipts.
func (registry *ReceiptRegistry) Len() int {
	registry.lock.Lock()
	defer registry.lock.Unlock()
	return len(registry.pending)
}

// Clear drops every outstanding receipt. The id counter keeps running.
func (registry *ReceiptRegistry) Clear() {
	registry.lock.Lock()
	registry.pending = make(map[string]PendingRequest)
	registry.lock.Unlock()
}
