package stomp

import (
	"sort"
	"strconv"
	"sync"
)

// SubscriptionTable maps game names to subscription ids.
type SubscriptionTable struct {
	lock          sync.Mutex
	nextID        uint64
	subscriptions map[string]string
}

// NewSubscriptionTable returns an empty table whose first id is "1".
func NewSubscriptionTable() *SubscriptionTable {
	return &SubscriptionTable{
		nextID:        1,
		subscriptions: make(map[string]string),
	}
}

// Subscribe allocates a new id for game and stores it, replacing any previous entry.
func (table *SubscriptionTable) Subscribe(game string) string {
	table.lock.Lock()
	defer table.lock.Unlock()

	subscriptionID := strconv.FormatUint(table.nextID, 10)
	table.nextID++
	table.subscriptions[game] = subscriptionID
	return subscriptionID
}

// Lookup returns the subscription id for game.
func (table *SubscriptionTable) Lookup(game string) (string, bool) {
	table.lock.Lock()
	defer table.lock.Unlock()
	subscriptionID, exists := table.subscriptions[game]
	return subscriptionID, exists
}

// Unsubscribe removes game only while it still maps to subscriptionID, so a
// late receipt for a replaced subscription leaves the newer entry alone.
func (table *SubscriptionTable) Unsubscribe(game string, subscriptionID string) bool {
	table.lock.Lock()
	defer table.lock.Unlock()

	current, exists := table.subscriptions[game]
	if !exists || (subscriptionID != "" && current != subscriptionID) {
		return false
	}
	delete(table.subscriptions, game)
	return true
}

// Games returns the subscribed game names in sorted order.
func (table *SubscriptionTable) Games() []string {
	table.lock.Lock()
	games := make([]string, 0, len(table.subscriptions))
	for game := range table.subscriptions {
		games = append(games, game)
	}
	table.lock.Unlock()

	sort.Strings(games)
	return games
}

// Clear drops every subscription.
func (table *SubscriptionTable) Clear() {
	table.lock.Lock()
	table.subscriptions = make(map[string]string)
	table.lock.Unlock()
}
