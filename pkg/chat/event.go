// Package chat is the event-routing and response-streaming core of the bot.
// It normalizes inbound platform events, routes them to registered handlers,
// tracks per-conversation subscription state, and relays model-generated
// replies back to the originating conversation.
//
// Platform adapters, the subscription store and the generation service are
// collaborators consumed through the interfaces in interfaces.go; the core
// never talks to a platform SDK directly.
package chat

import "time"

// EventKind discriminates the inbound event union.
type EventKind string

const (
	// EventMention is a direct mention of the bot in a conversation.
	EventMention EventKind = "mention"
	// EventInteraction is a UI interaction (button click, menu selection).
	EventInteraction EventKind = "interaction"
	// EventSubscribedMessage is a new message in a conversation the bot
	// subscribed to.
	EventSubscribedMessage EventKind = "subscribed_message"
)

// Author identifies who wrote a message, and whether it was the bot itself.
type Author struct {
	ID     string `json:"id"`
	IsSelf bool   `json:"is_self"`
}

// Message is one prior message in a conversation, as returned by a platform
// adapter's history fetch. Read-only from the core's perspective.
type Message struct {
	Author    Author    `json:"author"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Event is a normalized inbound platform event. Which fields are set depends
// on Kind: interactions carry ActionID (and optionally Value), subscribed
// messages carry Author and Text.
type Event struct {
	ID             string    `json:"id"`
	Kind           EventKind `json:"kind"`
	Platform       string    `json:"platform"`
	ConversationID string    `json:"conversation_id"`

	ActionID string `json:"action_id,omitempty"`
	Value    string `json:"value,omitempty"`

	Author Author `json:"author,omitempty"`
	Text   string `json:"text,omitempty"`

	// Raw is the adapter-specific payload the event was decoded from.
	Raw interface{} `json:"-"`
}

// Role tags a transcript entry for the generation service.
type Role string

const (
	RoleAssistant Role = "assistant"
	RoleUser      Role = "user"
)

// TranscriptEntry is one role-tagged line of conversation history. Derived
// from Messages on demand, never stored.
type TranscriptEntry struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}
