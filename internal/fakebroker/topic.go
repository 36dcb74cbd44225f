package fakebroker

import (
	"sort"
	"sync"
)

// ---------------------------------------------------------------------------
// Topic registry: destination to subscribed connections.
//
// A connection holds at most one entry per destination; subscribing again
// replaces the subscription id that MESSAGE frames carry.
// ---------------------------------------------------------------------------

type subscriber struct {
	conn           *connection
	subscriptionID string
	user           string
}

type topicRegistry struct {
	lock   sync.RWMutex
	topics map[string]map[*connection]subscriber
}

func newTopicRegistry() *topicRegistry {
	return &topicRegistry{topics: make(map[string]map[*connection]subscriber)}
}

func (registry *topicRegistry) subscribe(destination string, entry subscriber) {
	registry.lock.Lock()
	defer registry.lock.Unlock()

	members, exists := registry.topics[destination]
	if !exists {
		members = make(map[*connection]subscriber)
		registry.topics[destination] = members
	}
	members[entry.conn] = entry
}

func (registry *topicRegistry) unsubscribe(destination string, conn *connection) {
	registry.lock.Lock()
	defer registry.lock.Unlock()

	members, exists := registry.topics[destination]
	if !exists {
		return
	}
	delete(members, conn)
	if len(members) == 0 {
		delete(registry.topics, destination)
	}
}

func (registry *topicRegistry) unregisterAll(conn *connection) {
	registry.lock.Lock()
	defer registry.lock.Unlock()

	for destination, members := range registry.topics {
		delete(members, conn)
		if len(members) == 0 {
			delete(registry.topics, destination)
		}
	}
}

func (registry *topicRegistry) subscribed(destination string, conn *connection) bool {
	registry.lock.RLock()
	defer registry.lock.RUnlock()
	_, exists := registry.topics[destination][conn]
	return exists
}

func (registry *topicRegistry) subscribers(destination string) []subscriber {
	registry.lock.RLock()
	defer registry.lock.RUnlock()

	members := registry.topics[destination]
	entries := make([]subscriber, 0, len(members))
	for _, entry := range members {
		entries = append(entries, entry)
	}
	return entries
}

// snapshot returns destination → sorted subscriber user names.
func (registry *topicRegistry) snapshot() map[string][]string {
	registry.lock.RLock()
	defer registry.lock.RUnlock()

	result := make(map[string][]string, len(registry.topics))
	for destination, members := range registry.topics {
		users := make([]string, 0, len(members))
		for _, entry := range members {
			users = append(users, entry.user)
		}
		sort.Strings(users)
		result[destination] = users
	}
	return result
}
