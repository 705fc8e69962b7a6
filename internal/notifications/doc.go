// Package notifications pushes upload outcomes to ntfy.
//
// NewService returns a no-op implementation when no topic is configured, so
// callers publish unconditionally. Events carry a loose Payload map; each
// event knows which keys it reads and how to phrase its message.
package notifications
