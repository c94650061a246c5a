package chat

import (
	"context"
	"fmt"
)

// Thread is a handle on one conversation, scoped to a platform. Handlers
// receive a Thread and act on the conversation through it.
type Thread struct {
	bot *Bot

	Platform string
	ID       string
}

// Thread returns a handle for a conversation. Conversations exist implicitly;
// nothing is created until a subscription is recorded.
func (b *Bot) Thread(platform, conversationID string) *Thread {
	return &Thread{bot: b, Platform: platform, ID: conversationID}
}

// Subscribe durably marks the conversation as subscribed. The write completes
// before Subscribe returns, so a welcome message posted right after cannot
// race ahead of the flag.
func (t *Thread) Subscribe(ctx context.Context) error {
	if err := t.bot.store.SetSubscribed(ctx, t.Platform, t.ID, true); err != nil {
		return fmt.Errorf("subscribe %s/%s: %w", t.Platform, t.ID, err)
	}
	t.bot.publish("subscription.changed", map[string]interface{}{
		"platform": t.Platform, "conversation": t.ID, "subscribed": true,
	})
	return nil
}

// Unsubscribe durably clears the subscription. A streaming reply in flight
// for this conversation stops at its next delivery boundary.
func (t *Thread) Unsubscribe(ctx context.Context) error {
	if err := t.bot.store.SetSubscribed(ctx, t.Platform, t.ID, false); err != nil {
		return fmt.Errorf("unsubscribe %s/%s: %w", t.Platform, t.ID, err)
	}
	t.bot.publish("subscription.changed", map[string]interface{}{
		"platform": t.Platform, "conversation": t.ID, "subscribed": false,
	})
	return nil
}

// Subscribed reports the current subscription flag.
func (t *Thread) Subscribed(ctx context.Context) (bool, error) {
	return t.bot.store.IsSubscribed(ctx, t.Platform, t.ID)
}

// Post delivers structured content to the conversation.
func (t *Thread) Post(ctx context.Context, content Content) error {
	adapter, ok := t.bot.Adapter(t.Platform)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedPlatform, t.Platform)
	}
	if err := adapter.Post(ctx, t.ID, content); err != nil {
		return fmt.Errorf("post to %s/%s: %w", t.Platform, t.ID, err)
	}
	return nil
}

// PostText delivers a plain text message.
func (t *Thread) PostText(ctx context.Context, text string) error {
	return t.Post(ctx, Text(text))
}
