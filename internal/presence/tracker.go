// ABOUTME: In-memory presence tracking for connected users
// ABOUTME: Maps user identity to a live channel handle, rebuilt from zero on restart

package presence

import (
	"log/slog"
	"sync"
)

// Tracker answers "is user X online" for the current process. State is
// volatile: a restart drops all knowledge and every user appears offline until
// they reconnect. Identity is supplied by the session layer; the tracker
// trusts its caller.
//
// One live handle per user: a second Announce for the same user overwrites the
// first. If that first connection later disconnects, Forget finds no mapping
// for its handle and reports nothing, so the user stays online through the
// surviving connection's own lifecycle.
type Tracker struct {
	mu     sync.RWMutex
	byUser map[string]string // userID -> channel handle
	logger *slog.Logger
}

// NewTracker creates a tracker. Pass nil logger for default.
func NewTracker(logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		byUser: make(map[string]string),
		logger: logger.With("component", "presence"),
	}
}

// Announce registers (or overwrites) the live handle for a user.
// Returns the handle that was displaced, if any.
func (t *Tracker) Announce(userID, handle string) (displaced string) {
	t.mu.Lock()
	displaced = t.byUser[userID]
	t.byUser[userID] = handle
	t.mu.Unlock()

	t.logger.Debug("user announced", "user_id", userID, "handle", handle)
	return displaced
}

// IsOnline reports whether the user has a live handle.
func (t *Tracker) IsOnline(userID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.byUser[userID]
	return ok
}

// Forget removes the mapping that points at handle, scanning by value since
// the tracker is keyed by user. Returns the user that went offline; ok is
// false when no mapping referenced the handle (already removed, or the user
// never announced).
func (t *Tracker) Forget(handle string) (userID string, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for uid, h := range t.byUser {
		if h == handle {
			delete(t.byUser, uid)
			t.logger.Debug("user forgotten", "user_id", uid, "handle", handle)
			return uid, true
		}
	}
	return "", false
}

// Handle returns the live handle for a user, if any.
func (t *Tracker) Handle(userID string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	h, ok := t.byUser[userID]
	return h, ok
}

// OnlineCount returns the number of users currently online.
func (t *Tracker) OnlineCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.byUser)
}
