package chat

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/yutakobayashidev/asobiba/pkg/bus"
	"github.com/yutakobayashidev/asobiba/pkg/logger"
)

const defaultHistoryLimit = 20

// Handler reacts to one dispatched event. All handler shapes are uniform:
// whether a handler posts static content or triggers a streamed reply is its
// own business, the dispatcher does not care.
type Handler func(ctx context.Context, th *Thread, ev *Event) error

// Bot routes normalized inbound events to registered handlers and owns the
// per-conversation subscription check. One Bot instance is constructed at
// process start and handed to the webhook ingress; there is no ambient
// global registry.
type Bot struct {
	store     Store
	generator Generator
	sysBus    *bus.Bus

	historyLimit int

	mu              sync.RWMutex
	adapters        map[string]Adapter
	mentionHandlers []Handler
	actionHandlers  map[string]Handler
	messageHandlers []Handler
}

// BotOption configures a Bot at construction.
type BotOption func(*Bot)

// WithHistoryLimit overrides the default bounded-history window (20).
func WithHistoryLimit(limit int) BotOption {
	return func(b *Bot) {
		if limit > 0 {
			b.historyLimit = limit
		}
	}
}

// NewBot creates a bot around its collaborators. sysBus may be nil; system
// events are then skipped.
func NewBot(store Store, generator Generator, sysBus *bus.Bus, opts ...BotOption) *Bot {
	b := &Bot{
		store:          store,
		generator:      generator,
		sysBus:         sysBus,
		historyLimit:   defaultHistoryLimit,
		adapters:       make(map[string]Adapter),
		actionHandlers: make(map[string]Handler),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// RegisterAdapter makes a platform adapter available for dispatch and
// delivery. Later registrations for the same platform replace earlier ones.
func (b *Bot) RegisterAdapter(a Adapter) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.adapters[a.Platform()] = a
}

// Adapter returns the adapter registered for a platform.
func (b *Bot) Adapter(platform string) (Adapter, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	a, ok := b.adapters[platform]
	return a, ok
}

// Platforms lists the registered platform identifiers.
func (b *Bot) Platforms() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	names := make([]string, 0, len(b.adapters))
	for name := range b.adapters {
		names = append(names, name)
	}
	return names
}

// OnMention registers a mention handler. Mention handlers run in
// registration order; a failing handler does not stop the rest.
func (b *Bot) OnMention(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.mentionHandlers = append(b.mentionHandlers, h)
}

// OnAction binds a handler to an action identifier. At most one handler may
// be bound to an id; a second binding is a configuration error.
func (b *Bot) OnAction(actionID string, h Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.actionHandlers[actionID]; exists {
		return fmt.Errorf("%w: %q", ErrActionRegistered, actionID)
	}
	b.actionHandlers[actionID] = h
	return nil
}

// OnSubscribedMessage registers a handler for new messages in subscribed
// conversations.
func (b *Bot) OnSubscribedMessage(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messageHandlers = append(b.messageHandlers, h)
}

// HandlerCounts reports registered handlers per kind, for the status API.
func (b *Bot) HandlerCounts() map[string]int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return map[string]int{
		string(EventMention):           len(b.mentionHandlers),
		string(EventInteraction):       len(b.actionHandlers),
		string(EventSubscribedMessage): len(b.messageHandlers),
	}
}

// Dispatch routes one inbound event to its handlers. It is called once per
// webhook delivery; concurrent deliveries for the same conversation run
// unserialized (last writer wins on the subscription flag). Handler failures
// are reported, not returned; the returned error covers infrastructure
// failures only (e.g. the subscription read).
func (b *Bot) Dispatch(ctx context.Context, ev *Event) error {
	if ev == nil {
		return nil
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}

	b.publish("event.received", map[string]interface{}{
		"id":           ev.ID,
		"kind":         string(ev.Kind),
		"platform":     ev.Platform,
		"conversation": ev.ConversationID,
	})

	switch ev.Kind {
	case EventMention:
		return b.dispatchFanOut(ctx, ev, b.snapshotMention())
	case EventInteraction:
		return b.dispatchInteraction(ctx, ev)
	case EventSubscribedMessage:
		return b.dispatchSubscribedMessage(ctx, ev)
	default:
		logger.WarnCF("dispatch", "Unknown event kind", map[string]interface{}{
			"kind": string(ev.Kind), "platform": ev.Platform,
		})
		return nil
	}
}

func (b *Bot) snapshotMention() []Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]Handler(nil), b.mentionHandlers...)
}

func (b *Bot) snapshotMessage() []Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]Handler(nil), b.messageHandlers...)
}

// dispatchFanOut invokes every handler in order, isolating failures so one
// broken handler cannot shadow its siblings.
func (b *Bot) dispatchFanOut(ctx context.Context, ev *Event, handlers []Handler) error {
	th := b.Thread(ev.Platform, ev.ConversationID)
	for _, h := range handlers {
		if err := h(ctx, th, ev); err != nil {
			b.reportHandlerFailure(ev, err)
		}
	}
	return nil
}

func (b *Bot) dispatchInteraction(ctx context.Context, ev *Event) error {
	if ev.ActionID == "" {
		logger.WarnCF("dispatch", "Interaction without action id dropped", map[string]interface{}{
			"platform": ev.Platform, "conversation": ev.ConversationID,
		})
		b.publish("event.dropped", map[string]interface{}{"id": ev.ID, "reason": "empty_action_id"})
		return nil
	}

	b.mu.RLock()
	h, ok := b.actionHandlers[ev.ActionID]
	b.mu.RUnlock()
	if !ok {
		// Tolerate UI elements from a prior handler version: explicitly a
		// no-op, not an error.
		logger.DebugCF("dispatch", "No handler for action id", map[string]interface{}{
			"action_id": ev.ActionID, "platform": ev.Platform,
		})
		return nil
	}

	if err := h(ctx, b.Thread(ev.Platform, ev.ConversationID), ev); err != nil {
		b.reportHandlerFailure(ev, err)
	}
	return nil
}

func (b *Bot) dispatchSubscribedMessage(ctx context.Context, ev *Event) error {
	// The bot's own posts come back through the message feed; reacting to
	// them would loop the pipeline on its own replies.
	if ev.Author.IsSelf {
		logger.DebugC("dispatch", "Own message ignored")
		return nil
	}

	subscribed, err := b.store.IsSubscribed(ctx, ev.Platform, ev.ConversationID)
	if err != nil {
		logger.ErrorCF("dispatch", "Subscription read failed", map[string]interface{}{
			"platform": ev.Platform, "conversation": ev.ConversationID, "error": err.Error(),
		})
		return fmt.Errorf("subscription read: %w", err)
	}
	if !subscribed {
		b.publish("event.dropped", map[string]interface{}{"id": ev.ID, "reason": "not_subscribed"})
		return nil
	}

	return b.dispatchFanOut(ctx, ev, b.snapshotMessage())
}

func (b *Bot) reportHandlerFailure(ev *Event, err error) {
	logger.ErrorCF("dispatch", "Handler failed", map[string]interface{}{
		"id":           ev.ID,
		"kind":         string(ev.Kind),
		"action_id":    ev.ActionID,
		"platform":     ev.Platform,
		"conversation": ev.ConversationID,
		"error":        err.Error(),
	})
	b.publish("handler.failed", map[string]interface{}{
		"id": ev.ID, "kind": string(ev.Kind), "error": err.Error(),
	})
}

func (b *Bot) publish(eventType string, data map[string]interface{}) {
	if b.sysBus == nil {
		return
	}
	b.sysBus.Publish(bus.SystemEvent{Type: eventType, Source: "chat", Data: data})
}
