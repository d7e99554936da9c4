// ABOUTME: Per-connection channel with a buffered outbound event queue
// ABOUTME: Non-blocking sends drop events for slow consumers instead of stalling the hub

package hub

import (
	"sync"

	"github.com/google/uuid"

	"github.com/talentlink/chat-gateway/internal/event"
)

// outboundBufferSize is the event buffer for each connected channel.
const outboundBufferSize = 64

// Channel is one live connection's server-to-client event stream. It is
// distinct from the user identity that owns it: a user with several browser
// tabs holds several channels.
type Channel struct {
	id     string
	userID string

	mu     sync.Mutex
	closed bool
	out    chan event.Envelope
}

func newChannel(userID string) *Channel {
	return &Channel{
		id:     uuid.New().String(),
		userID: userID,
		out:    make(chan event.Envelope, outboundBufferSize),
	}
}

// ID returns the channel's opaque identifier, used as its presence handle.
func (c *Channel) ID() string {
	return c.id
}

// UserID returns the identity that owns this channel.
func (c *Channel) UserID() string {
	return c.userID
}

// Events returns the outbound event stream. The channel is closed when the
// connection is disconnected from the hub.
func (c *Channel) Events() <-chan event.Envelope {
	return c.out
}

// trySend enqueues an event without blocking. Returns false when the channel
// is closed or its buffer is full; a full buffer drops the event, and the
// client catches up through a history fetch.
func (c *Channel) trySend(env event.Envelope) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	select {
	case c.out <- env:
		return true
	default:
		return false
	}
}

// close shuts the outbound stream. Idempotent.
func (c *Channel) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.out)
	}
}
