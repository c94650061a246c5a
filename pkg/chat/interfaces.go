package chat

import (
	"context"
	"net/http"
)

// WebhookRequest carries one raw webhook delivery, verbatim, to an adapter.
type WebhookRequest struct {
	Body   []byte
	Header http.Header
}

// ParseResult is what an adapter decodes a webhook delivery into. Event is
// nil when the delivery carries nothing to dispatch (e.g. a Slack URL
// verification handshake); Ack, when set, is written back as the HTTP 200
// response body.
type ParseResult struct {
	Event *Event
	Ack   []byte
}

// Adapter translates between one platform's wire formats and the core's
// normalized types. Implementations live in pkg/adapter.
type Adapter interface {
	// Platform returns the stable platform identifier ("slack", "telegram").
	Platform() string
	// Parse decodes and verifies one raw webhook delivery.
	Parse(ctx context.Context, req WebhookRequest) (ParseResult, error)
	// FetchMessages returns up to limit most recent messages of a
	// conversation, in any order; callers re-sort chronologically.
	FetchMessages(ctx context.Context, conversationID string, limit int) ([]Message, error)
	// Post delivers a structured or plain-text message to a conversation.
	Post(ctx context.Context, conversationID string, content Content) error
	// OpenStream prepares incremental delivery to a conversation. How
	// increments render (edited-in-place vs appended) is the adapter's call.
	OpenStream(ctx context.Context, conversationID string) (ChunkWriter, error)
}

// ChunkWriter receives streamed text increments one at a time. Write must not
// be called again before the previous call returned.
type ChunkWriter interface {
	Write(ctx context.Context, chunk string) error
	// Close finalizes the streamed message after the last increment.
	Close(ctx context.Context) error
}

// ChunkStream is a lazy, finite, non-restartable sequence of generated text
// increments. Mirrors the SDK streaming iterators the providers wrap.
type ChunkStream interface {
	Next() bool
	Current() string
	Err() error
	Close() error
}

// Generator produces a streamed completion for a transcript. Implementations
// live in pkg/providers.
type Generator interface {
	StreamChat(ctx context.Context, transcript []TranscriptEntry) (ChunkStream, error)
}

// Store tracks which conversations are subscribed. SetSubscribed must be
// durable before it returns, and reads must observe the caller's own prior
// writes for the same conversation.
type Store interface {
	IsSubscribed(ctx context.Context, platform, conversationID string) (bool, error)
	SetSubscribed(ctx context.Context, platform, conversationID string, subscribed bool) error
}
