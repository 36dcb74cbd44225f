package fakebroker

import (
	"sort"
	"sync"
	"time"
)

// ---------------------------------------------------------------------------
// Accounts and active sessions.
//
// Unknown users are registered on their first CONNECT. A known user must
// present the stored password and may hold only one active session.
// ---------------------------------------------------------------------------

type loginStatus int

const (
	loginSucceeded loginStatus = iota
	loginRegistered
	loginWrongPassword
	loginAlreadyActive
	loginRejected
)

func (status loginStatus) ok() bool {
	return status == loginSucceeded || status == loginRegistered
}

// reason is the ERROR message header for a refused login.
func (status loginStatus) reason() string {
	switch status {
	case loginWrongPassword:
		return "Wrong password"
	case loginAlreadyActive:
		return "User already active"
	default:
		return "Login failed"
	}
}

type fileRecord struct {
	FileName    string    `json:"file_name"`
	Destination string    `json:"destination"`
	Uploaded    time.Time `json:"uploaded"`
}

type userInfo struct {
	Name    string       `json:"name"`
	Active  bool         `json:"active"`
	Session string       `json:"session,omitempty"`
	Files   []fileRecord `json:"files,omitempty"`
}

type userStore struct {
	lock      sync.RWMutex
	passwords map[string]string
	active    map[string]string // user → connection id
	files     map[string][]fileRecord
}

func newUserStore() *userStore {
	return &userStore{
		passwords: make(map[string]string),
		active:    make(map[string]string),
		files:     make(map[string][]fileRecord),
	}
}

func (store *userStore) add(user string, password string) {
	store.lock.Lock()
	store.passwords[user] = password
	store.lock.Unlock()
}

func (store *userStore) login(connectionID string, user string, password string) loginStatus {
	if user == "" {
		return loginRejected
	}

	store.lock.Lock()
	defer store.lock.Unlock()

	expected, exists := store.passwords[user]
	if !exists {
		store.passwords[user] = password
		store.active[user] = connectionID
		return loginRegistered
	}
	if expected != password {
		return loginWrongPassword
	}
	if _, active := store.active[user]; active {
		return loginAlreadyActive
	}
	store.active[user] = connectionID
	return loginSucceeded
}

// logout ends the session of user if connectionID still owns it.
func (store *userStore) logout(user string, connectionID string) {
	store.lock.Lock()
	if store.active[user] == connectionID {
		delete(store.active, user)
	}
	store.lock.Unlock()
}

func (store *userStore) logFile(user string, fileName string, destination string) {
	store.lock.Lock()
	store.files[user] = append(store.files[user], fileRecord{
		FileName:    fileName,
		Destination: destination,
		Uploaded:    time.Now().UTC(),
	})
	store.lock.Unlock()
}

func (store *userStore) snapshot() []userInfo {
	store.lock.RLock()
	users := make([]userInfo, 0, len(store.passwords))
	for name := range store.passwords {
		session, active := store.active[name]
		users = append(users, userInfo{
			Name:    name,
			Active:  active,
			Session: session,
			Files:   append([]fileRecord(nil), store.files[name]...),
		})
	}
	store.lock.RUnlock()

	sort.Slice(users, func(left, right int) bool { return users[left].Name < users[right].Name })
	return users
}
