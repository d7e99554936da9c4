// ABOUTME: Tests for the presence tracker
// ABOUTME: Covers announce/forget lifecycle and the single-handle-per-user overwrite

package presence

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnnounceThenForget(t *testing.T) {
	tr := NewTracker(nil)

	tr.Announce("alice", "ch-1")
	assert.True(t, tr.IsOnline("alice"))

	userID, ok := tr.Forget("ch-1")
	require.True(t, ok)
	assert.Equal(t, "alice", userID)
	assert.False(t, tr.IsOnline("alice"))
}

func TestAnnounceAlone(t *testing.T) {
	tr := NewTracker(nil)

	tr.Announce("alice", "ch-1")
	assert.True(t, tr.IsOnline("alice"))
	assert.False(t, tr.IsOnline("bob"))
}

func TestForget_UnknownHandleIsNoop(t *testing.T) {
	tr := NewTracker(nil)

	_, ok := tr.Forget("never-announced")
	assert.False(t, ok)
}

func TestAnnounce_SecondConnectionOverwrites(t *testing.T) {
	tr := NewTracker(nil)

	displaced := tr.Announce("alice", "ch-1")
	assert.Empty(t, displaced)

	displaced = tr.Announce("alice", "ch-2")
	assert.Equal(t, "ch-1", displaced)

	// The displaced handle no longer maps to alice
	_, ok := tr.Forget("ch-1")
	assert.False(t, ok)
	assert.True(t, tr.IsOnline("alice"))

	// Disconnecting the surviving handle takes her offline
	userID, ok := tr.Forget("ch-2")
	require.True(t, ok)
	assert.Equal(t, "alice", userID)
	assert.False(t, tr.IsOnline("alice"))
}

func TestHandleLookup(t *testing.T) {
	tr := NewTracker(nil)

	tr.Announce("alice", "ch-1")

	h, ok := tr.Handle("alice")
	require.True(t, ok)
	assert.Equal(t, "ch-1", h)

	_, ok = tr.Handle("bob")
	assert.False(t, ok)
}

func TestTracker_ConcurrentAccess(t *testing.T) {
	tr := NewTracker(nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			user := fmt.Sprintf("user-%d", i)
			handle := fmt.Sprintf("ch-%d", i)
			tr.Announce(user, handle)
			tr.IsOnline(user)
			tr.Forget(handle)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 0, tr.OnlineCount())
}
