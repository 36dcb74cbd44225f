package game

import (
	"sort"
	"strings"
	"sync"
)

// UserStats is what one user reported for one game.
type UserStats struct {
	GeneralStats map[string]string
	TeamAStats   map[string]string
	TeamBStats   map[string]string
	Events       []GameEvent
}

func newUserStats() *UserStats {
	return &UserStats{
		GeneralStats: make(map[string]string),
		TeamAStats:   make(map[string]string),
		TeamBStats:   make(map[string]string),
	}
}

func (stats *UserStats) apply(event Event) {
	for key, value := range event.GameUpdates {
		stats.GeneralStats[key] = value
	}
	for key, value := range event.TeamAUpdates {
		stats.TeamAStats[key] = value
	}
	for key, value := range event.TeamBUpdates {
		stats.TeamBStats[key] = value
	}
	stats.Events = append(stats.Events, event.Record())
}

func (stats *UserStats) clone() UserStats {
	copied := UserStats{
		GeneralStats: make(map[string]string, len(stats.GeneralStats)),
		TeamAStats:   make(map[string]string, len(stats.TeamAStats)),
		TeamBStats:   make(map[string]string, len(stats.TeamBStats)),
		Events:       append([]GameEvent(nil), stats.Events...),
	}
	for key, value := range stats.GeneralStats {
		copied.GeneralStats[key] = value
	}
	for key, value := range stats.TeamAStats {
		copied.TeamAStats[key] = value
	}
	for key, value := range stats.TeamBStats {
		copied.TeamBStats[key] = value
	}
	return copied
}

type session struct {
	teamA string
	teamB string
	users map[string]*UserStats
}

// Store aggregates events per game and user. All methods are safe for
// concurrent use; each update runs entirely under one lock.
type Store struct {
	lock  sync.Mutex
	games map[string]*session
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{games: make(map[string]*session)}
}

func (store *Store) userLocked(gameName string, user string) (*session, *UserStats) {
	game, exists := store.games[gameName]
	if !exists {
		game = &session{users: make(map[string]*UserStats)}
		store.games[gameName] = game
	}
	stats, exists := game.users[user]
	if !exists {
		stats = newUserStats()
		game.users[user] = stats
	}
	return game, stats
}

// ApplyEventBody parses raw and records it as one event of user in gameName.
// Team names found in the body replace the game's team names.
func (store *Store) ApplyEventBody(gameName string, user string, raw string) EventBody {
	body := ParseEventBody(raw)
	store.ApplyEvent(gameName, user, body.TeamA, body.TeamB, body.Event)
	return body
}

// ApplyEvent records an already structured event.
func (store *Store) ApplyEvent(gameName string, user string, teamA string, teamB string, event Event) {
	store.lock.Lock()
	defer store.lock.Unlock()

	game, stats := store.userLocked(gameName, user)
	if teamA != "" {
		game.teamA = teamA
	}
	if teamB != "" {
		game.teamB = teamB
	}
	stats.apply(event)
}

// UserStats returns a copy of the user's stats. Unknown games or users yield
// empty, non-nil maps.
func (store *Store) UserStats(gameName string, user string) UserStats {
	store.lock.Lock()
	defer store.lock.Unlock()

	if game, exists := store.games[gameName]; exists {
		if stats, exists := game.users[user]; exists {
			return stats.clone()
		}
	}
	return newUserStats().clone()
}

// Teams returns the team names recorded for gameName. When no body carried
// them, they are derived from the "teamA_teamB" game name.
func (store *Store) Teams(gameName string) (string, string) {
	store.lock.Lock()
	var teamA, teamB string
	if game, exists := store.games[gameName]; exists {
		teamA, teamB = game.teamA, game.teamB
	}
	store.lock.Unlock()

	if teamA == "" || teamB == "" {
		if left, right, found := strings.Cut(gameName, "_"); found {
			if teamA == "" {
				teamA = left
			}
			if teamB == "" {
				teamB = right
			}
		}
	}
	return teamA, teamB
}

// Games returns the known game names, sorted.
func (store *Store) Games() []string {
	store.lock.Lock()
	games := make([]string, 0, len(store.games))
	for gameName := range store.games {
		games = append(games, gameName)
	}
	store.lock.Unlock()

	sort.Strings(games)
	return games
}

// Users returns the users that reported on gameName, sorted.
func (store *Store) Users(gameName string) []string {
	store.lock.Lock()
	var users []string
	if game, exists := store.games[gameName]; exists {
		users = make([]string, 0, len(game.users))
		for user := range game.users {
			users = append(users, user)
		}
	}
	store.lock.Unlock()

	sort.Strings(users)
	return users
}
