// Package slack adapts the chat core to the Slack Events and Web APIs.
// Conversations are threads, addressed as "channelID/threadTS".
package slack

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"

	"github.com/yutakobayashidev/asobiba/pkg/chat"
	"github.com/yutakobayashidev/asobiba/pkg/logger"
)

// Adapter implements chat.Adapter for Slack.
type Adapter struct {
	client        *slack.Client
	signingSecret string
	botUserID     string
}

// New creates the adapter and resolves the bot's own user id, which is
// needed to tag self-authored messages in history.
func New(botToken, signingSecret string) (*Adapter, error) {
	client := slack.New(botToken)
	auth, err := client.AuthTestContext(context.Background())
	if err != nil {
		return nil, fmt.Errorf("slack auth test: %w", err)
	}
	return &Adapter{
		client:        client,
		signingSecret: signingSecret,
		botUserID:     auth.UserID,
	}, nil
}

// Platform returns "slack".
func (a *Adapter) Platform() string { return "slack" }

// Parse verifies and decodes one webhook delivery: either an Events API
// JSON payload or a form-encoded interaction payload.
func (a *Adapter) Parse(ctx context.Context, req chat.WebhookRequest) (chat.ParseResult, error) {
	if a.signingSecret != "" {
		if err := a.verifySignature(req); err != nil {
			return chat.ParseResult{}, fmt.Errorf("verify signature: %w", err)
		}
	}

	if strings.Contains(req.Header.Get("Content-Type"), "application/x-www-form-urlencoded") {
		return a.parseInteraction(req.Body)
	}
	return a.parseEvent(req.Body)
}

func (a *Adapter) verifySignature(req chat.WebhookRequest) error {
	sv, err := slack.NewSecretsVerifier(req.Header, a.signingSecret)
	if err != nil {
		return err
	}
	if _, err := sv.Write(req.Body); err != nil {
		return err
	}
	return sv.Ensure()
}

func (a *Adapter) parseEvent(body []byte) (chat.ParseResult, error) {
	outer, err := slackevents.ParseEvent(json.RawMessage(body), slackevents.OptionNoVerifyToken())
	if err != nil {
		return chat.ParseResult{}, fmt.Errorf("parse events payload: %w", err)
	}

	switch outer.Type {
	case slackevents.URLVerification:
		var challenge slackevents.ChallengeResponse
		if err := json.Unmarshal(body, &challenge); err != nil {
			return chat.ParseResult{}, fmt.Errorf("parse challenge: %w", err)
		}
		return chat.ParseResult{Ack: []byte(challenge.Challenge)}, nil

	case slackevents.CallbackEvent:
		switch inner := outer.InnerEvent.Data.(type) {
		case *slackevents.AppMentionEvent:
			return chat.ParseResult{Event: &chat.Event{
				Kind:           chat.EventMention,
				Platform:       a.Platform(),
				ConversationID: conversationID(inner.Channel, inner.ThreadTimeStamp, inner.TimeStamp),
				Author:         chat.Author{ID: inner.User},
				Text:           inner.Text,
				Raw:            inner,
			}}, nil

		case *slackevents.MessageEvent:
			return a.parseMessageEvent(inner)

		default:
			logger.DebugCF("slack", "Unhandled callback event", map[string]interface{}{
				"type": outer.InnerEvent.Type,
			})
			return chat.ParseResult{}, nil
		}

	default:
		return chat.ParseResult{}, fmt.Errorf("unexpected payload type %q", outer.Type)
	}
}

func (a *Adapter) parseMessageEvent(ev *slackevents.MessageEvent) (chat.ParseResult, error) {
	// Edits, joins and other subtyped messages are not conversation turns.
	if ev.SubType != "" {
		return chat.ParseResult{}, nil
	}
	// Mentions arrive separately as app_mention; dropping the duplicate
	// here keeps one mention from triggering two responses.
	if a.botUserID != "" && strings.Contains(ev.Text, "<@"+a.botUserID+">") {
		return chat.ParseResult{}, nil
	}

	return chat.ParseResult{Event: &chat.Event{
		Kind:           chat.EventSubscribedMessage,
		Platform:       a.Platform(),
		ConversationID: conversationID(ev.Channel, ev.ThreadTimeStamp, ev.TimeStamp),
		Author: chat.Author{
			ID:     ev.User,
			IsSelf: ev.User == a.botUserID || ev.BotID != "",
		},
		Text: ev.Text,
		Raw:  ev,
	}}, nil
}

func (a *Adapter) parseInteraction(body []byte) (chat.ParseResult, error) {
	form, err := url.ParseQuery(string(body))
	if err != nil {
		return chat.ParseResult{}, fmt.Errorf("parse form: %w", err)
	}
	payload := form.Get("payload")
	if payload == "" {
		return chat.ParseResult{}, fmt.Errorf("interaction without payload")
	}

	var cb slack.InteractionCallback
	if err := json.Unmarshal([]byte(payload), &cb); err != nil {
		return chat.ParseResult{}, fmt.Errorf("parse interaction payload: %w", err)
	}
	if cb.Type != slack.InteractionTypeBlockActions || len(cb.ActionCallback.BlockActions) == 0 {
		return chat.ParseResult{}, nil
	}

	action := cb.ActionCallback.BlockActions[0]
	if action.ActionID == "" {
		return chat.ParseResult{}, fmt.Errorf("interaction without action id")
	}
	value := action.SelectedOption.Value
	if value == "" {
		value = action.Value
	}

	return chat.ParseResult{Event: &chat.Event{
		Kind:           chat.EventInteraction,
		Platform:       a.Platform(),
		ConversationID: conversationID(cb.Channel.ID, cb.Container.ThreadTs, cb.Container.MessageTs),
		ActionID:       action.ActionID,
		Value:          value,
		Author:         chat.Author{ID: cb.User.ID},
		Raw:            &cb,
	}}, nil
}

// FetchMessages reads the thread's replies. Slack returns them oldest-first;
// the core re-sorts by timestamp either way.
func (a *Adapter) FetchMessages(ctx context.Context, conversation string, limit int) ([]chat.Message, error) {
	channel, threadTS, err := splitConversationID(conversation)
	if err != nil {
		return nil, err
	}

	replies, _, _, err := a.client.GetConversationRepliesContext(ctx, &slack.GetConversationRepliesParameters{
		ChannelID: channel,
		Timestamp: threadTS,
		Limit:     limit,
	})
	if err != nil {
		return nil, fmt.Errorf("conversations.replies: %w", err)
	}

	messages := make([]chat.Message, 0, len(replies))
	for _, m := range replies {
		messages = append(messages, chat.Message{
			Author: chat.Author{
				ID:     m.User,
				IsSelf: m.User == a.botUserID || m.BotID != "",
			},
			Text:      m.Text,
			Timestamp: parseSlackTimestamp(m.Timestamp),
		})
	}
	return messages, nil
}

// Post renders the content tree to Block Kit and posts it into the thread.
func (a *Adapter) Post(ctx context.Context, conversation string, content chat.Content) error {
	channel, threadTS, err := splitConversationID(conversation)
	if err != nil {
		return err
	}

	opts := []slack.MsgOption{slack.MsgOptionTS(threadTS)}
	if text, ok := content.(chat.TextBlock); ok {
		opts = append(opts, slack.MsgOptionText(text.Text, false))
	} else {
		opts = append(opts, slack.MsgOptionBlocks(renderContent(content)...))
	}

	if _, _, err := a.client.PostMessageContext(ctx, channel, opts...); err != nil {
		return fmt.Errorf("chat.postMessage: %w", err)
	}
	return nil
}

// OpenStream renders increments as one message edited in place: the first
// chunk posts it, each later chunk updates it with the accumulated text.
func (a *Adapter) OpenStream(ctx context.Context, conversation string) (chat.ChunkWriter, error) {
	channel, threadTS, err := splitConversationID(conversation)
	if err != nil {
		return nil, err
	}
	return &streamWriter{adapter: a, channel: channel, threadTS: threadTS}, nil
}

type streamWriter struct {
	adapter   *Adapter
	channel   string
	threadTS  string
	messageTS string
	text      strings.Builder
}

func (w *streamWriter) Write(ctx context.Context, chunk string) error {
	w.text.WriteString(chunk)

	if w.messageTS == "" {
		_, ts, err := w.adapter.client.PostMessageContext(ctx, w.channel,
			slack.MsgOptionTS(w.threadTS),
			slack.MsgOptionText(w.text.String(), false),
		)
		if err != nil {
			return fmt.Errorf("chat.postMessage: %w", err)
		}
		w.messageTS = ts
		return nil
	}

	if _, _, _, err := w.adapter.client.UpdateMessageContext(ctx, w.channel, w.messageTS,
		slack.MsgOptionText(w.text.String(), false),
	); err != nil {
		return fmt.Errorf("chat.update: %w", err)
	}
	return nil
}

func (w *streamWriter) Close(context.Context) error { return nil }

// conversationID addresses a thread; a message outside any thread roots a
// new one at its own timestamp.
func conversationID(channel, threadTS, ts string) string {
	if threadTS == "" {
		threadTS = ts
	}
	return channel + "/" + threadTS
}

func splitConversationID(conversation string) (channel, threadTS string, err error) {
	channel, threadTS, ok := strings.Cut(conversation, "/")
	if !ok || channel == "" || threadTS == "" {
		return "", "", fmt.Errorf("malformed slack conversation id %q", conversation)
	}
	return channel, threadTS, nil
}

func parseSlackTimestamp(ts string) time.Time {
	seconds, err := strconv.ParseFloat(ts, 64)
	if err != nil {
		return time.Time{}
	}
	sec := int64(seconds)
	nsec := int64((seconds - float64(sec)) * 1e9)
	return time.Unix(sec, nsec).UTC()
}

// Ensure Adapter implements the chat adapter interface.
var _ chat.Adapter = (*Adapter)(nil)
