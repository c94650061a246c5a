// Package telegram adapts the chat core to the Telegram Bot API via webhook
// updates. Conversations are chats, addressed by their numeric chat id.
//
// The Bot API has no history read, so the adapter keeps a bounded in-memory
// window of the messages that passed through it; that window backs
// FetchMessages.
package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/yutakobayashidev/asobiba/pkg/chat"
	"github.com/yutakobayashidev/asobiba/pkg/logger"
)

const historyWindow = 50

// Adapter implements chat.Adapter for Telegram.
type Adapter struct {
	bot      *telego.Bot
	selfID   int64
	username string

	mu      sync.RWMutex
	history map[string][]chat.Message
}

// New creates the adapter and resolves the bot's own identity.
func New(token string) (*Adapter, error) {
	bot, err := telego.NewBot(token, telego.WithDiscardLogger())
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	me, err := bot.GetMe(context.Background())
	if err != nil {
		return nil, fmt.Errorf("telegram getMe: %w", err)
	}
	return &Adapter{
		bot:      bot,
		selfID:   me.ID,
		username: me.Username,
		history:  make(map[string][]chat.Message),
	}, nil
}

// Platform returns "telegram".
func (a *Adapter) Platform() string { return "telegram" }

// Parse decodes one webhook Update: a message (mention or ordinary text) or
// a callback query from an inline keyboard.
func (a *Adapter) Parse(ctx context.Context, req chat.WebhookRequest) (chat.ParseResult, error) {
	var update telego.Update
	if err := json.Unmarshal(req.Body, &update); err != nil {
		return chat.ParseResult{}, fmt.Errorf("parse update: %w", err)
	}

	switch {
	case update.CallbackQuery != nil:
		return a.parseCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		return a.parseMessage(update.Message), nil
	default:
		return chat.ParseResult{}, nil
	}
}

func (a *Adapter) parseMessage(msg *telego.Message) chat.ParseResult {
	if msg.Text == "" || msg.From == nil {
		return chat.ParseResult{}
	}

	conversation := strconv.FormatInt(msg.Chat.ID, 10)
	author := chat.Author{
		ID:     strconv.FormatInt(msg.From.ID, 10),
		IsSelf: msg.From.ID == a.selfID,
	}
	a.record(conversation, chat.Message{
		Author:    author,
		Text:      msg.Text,
		Timestamp: time.Unix(msg.Date, 0).UTC(),
	})

	kind := chat.EventSubscribedMessage
	if a.username != "" && strings.Contains(msg.Text, "@"+a.username) {
		kind = chat.EventMention
	}

	return chat.ParseResult{Event: &chat.Event{
		Kind:           kind,
		Platform:       a.Platform(),
		ConversationID: conversation,
		Author:         author,
		Text:           msg.Text,
		Raw:            msg,
	}}
}

func (a *Adapter) parseCallback(ctx context.Context, cq *telego.CallbackQuery) (chat.ParseResult, error) {
	if cq.Data == "" || cq.Message == nil {
		return chat.ParseResult{}, fmt.Errorf("callback without data or message")
	}

	// Stop the client-side loading spinner; delivery of the event does not
	// depend on this succeeding.
	if err := a.bot.AnswerCallbackQuery(ctx, &telego.AnswerCallbackQueryParams{CallbackQueryID: cq.ID}); err != nil {
		logger.DebugCF("telegram", "answerCallbackQuery failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	// Callback data is "actionID" for buttons, "actionID|value" for select
	// options (see renderKeyboard).
	actionID, value, _ := strings.Cut(cq.Data, "|")
	if actionID == "" {
		return chat.ParseResult{}, fmt.Errorf("callback with empty action id")
	}

	return chat.ParseResult{Event: &chat.Event{
		Kind:           chat.EventInteraction,
		Platform:       a.Platform(),
		ConversationID: strconv.FormatInt(cq.Message.GetChat().ID, 10),
		ActionID:       actionID,
		Value:          value,
		Author:         chat.Author{ID: strconv.FormatInt(cq.From.ID, 10)},
		Raw:            cq,
	}}, nil
}

// FetchMessages returns the adapter's recent-message window for the chat,
// oldest-first.
func (a *Adapter) FetchMessages(_ context.Context, conversation string, limit int) ([]chat.Message, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	window := a.history[conversation]
	if limit > 0 && len(window) > limit {
		window = window[len(window)-limit:]
	}
	return append([]chat.Message(nil), window...), nil
}

// Post renders the content tree to text plus an inline keyboard and sends it.
func (a *Adapter) Post(ctx context.Context, conversation string, content chat.Content) error {
	chatID, err := parseChatID(conversation)
	if err != nil {
		return err
	}

	text, keyboard := renderContent(content)
	if text == "" && keyboard == nil {
		return nil
	}

	params := &telego.SendMessageParams{
		ChatID:    tu.ID(chatID),
		Text:      text,
		ParseMode: telego.ModeMarkdown,
	}
	if keyboard != nil {
		params.ReplyMarkup = keyboard
	}

	sent, err := a.bot.SendMessage(ctx, params)
	if err != nil {
		return fmt.Errorf("sendMessage: %w", err)
	}
	a.recordOwn(conversation, text, sent)
	return nil
}

// OpenStream renders increments as one message edited in place.
func (a *Adapter) OpenStream(_ context.Context, conversation string) (chat.ChunkWriter, error) {
	chatID, err := parseChatID(conversation)
	if err != nil {
		return nil, err
	}
	return &streamWriter{adapter: a, conversation: conversation, chatID: chatID}, nil
}

type streamWriter struct {
	adapter      *Adapter
	conversation string
	chatID       int64
	messageID    int
	text         strings.Builder
}

func (w *streamWriter) Write(ctx context.Context, chunk string) error {
	w.text.WriteString(chunk)

	if w.messageID == 0 {
		sent, err := w.adapter.bot.SendMessage(ctx, &telego.SendMessageParams{
			ChatID: tu.ID(w.chatID),
			Text:   w.text.String(),
		})
		if err != nil {
			return fmt.Errorf("sendMessage: %w", err)
		}
		w.messageID = sent.MessageID
		return nil
	}

	if _, err := w.adapter.bot.EditMessageText(ctx, &telego.EditMessageTextParams{
		ChatID:    tu.ID(w.chatID),
		MessageID: w.messageID,
		Text:      w.text.String(),
	}); err != nil {
		return fmt.Errorf("editMessageText: %w", err)
	}
	return nil
}

func (w *streamWriter) Close(context.Context) error {
	if w.messageID != 0 {
		w.adapter.record(w.conversation, chat.Message{
			Author:    chat.Author{ID: strconv.FormatInt(w.adapter.selfID, 10), IsSelf: true},
			Text:      w.text.String(),
			Timestamp: time.Now().UTC(),
		})
	}
	return nil
}

func (a *Adapter) record(conversation string, msg chat.Message) {
	a.mu.Lock()
	defer a.mu.Unlock()
	window := append(a.history[conversation], msg)
	if len(window) > historyWindow {
		window = window[len(window)-historyWindow:]
	}
	a.history[conversation] = window
}

func (a *Adapter) recordOwn(conversation, text string, sent *telego.Message) {
	if text == "" {
		return
	}
	ts := time.Now().UTC()
	if sent != nil {
		ts = time.Unix(sent.Date, 0).UTC()
	}
	a.record(conversation, chat.Message{
		Author:    chat.Author{ID: strconv.FormatInt(a.selfID, 10), IsSelf: true},
		Text:      text,
		Timestamp: ts,
	})
}

func parseChatID(conversation string) (int64, error) {
	id, err := strconv.ParseInt(conversation, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed telegram conversation id %q", conversation)
	}
	return id, nil
}

// Ensure Adapter implements the chat adapter interface.
var _ chat.Adapter = (*Adapter)(nil)
