// Package sessionstore keeps the current-user marker for each dashboard
// session. It is the server-side analog of the SPA's persisted user flag:
// an opaque session id maps to the authenticated user until logout or TTL.
package sessionstore

import (
	"time"

	"github.com/managenergy/dashboard-bfa-go/internal/domain"
	"github.com/managenergy/dashboard-bfa-go/internal/infra/cache"
)

// Memory is a TTL-backed session store.
type Memory struct {
	entries *cache.InMemory[*domain.User]
}

// New creates a session store whose sessions expire after ttl of inactivity.
func New(ttl time.Duration) *Memory {
	return &Memory{entries: cache.New[*domain.User](ttl)}
}

// Get returns the user bound to a session and refreshes the session TTL.
func (m *Memory) Get(sessionID string) (*domain.User, bool) {
	user, ok := m.entries.Get(sessionID)
	if !ok {
		return nil, false
	}
	m.entries.Set(sessionID, user) // sliding expiry
	return user, true
}

// Set binds a user to a session id.
func (m *Memory) Set(sessionID string, user *domain.User) {
	m.entries.Set(sessionID, user)
}

// Clear removes a session.
func (m *Memory) Clear(sessionID string) {
	m.entries.Delete(sessionID)
}

// Len returns the number of live sessions.
func (m *Memory) Len() int {
	return m.entries.Len()
}
