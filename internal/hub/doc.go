// Package hub implements the realtime broadcast layer.
//
// Each connected client holds one Channel, a buffered outbound event stream.
// Channels join per-conversation rooms; a message sent to a conversation is
// broadcast to the room's current members, while participants not viewing the
// conversation receive a lighter notification with a content preview.
//
// Delivery is best-effort: there is no acknowledgement, retry, or replay of
// missed events. A channel that was not connected (or whose buffer was full)
// at broadcast time catches up through a REST history fetch, de-duplicating
// by message id. Messages are persisted before broadcast, so everything that
// fans out is already durable.
package hub
