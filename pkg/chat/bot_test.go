package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeStore is an in-memory Store with optional failure injection and a
// counter of reads, used to flip the flag mid-stream.
type fakeStore struct {
	mu      sync.Mutex
	subs    map[string]bool
	readErr error
	reads   int

	// unsubscribeAfter, when > 0, clears every subscription once that many
	// reads have been served.
	unsubscribeAfter int
}

func newFakeStore() *fakeStore {
	return &fakeStore{subs: make(map[string]bool)}
}

func (s *fakeStore) IsSubscribed(_ context.Context, platform, conversationID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readErr != nil {
		return false, s.readErr
	}
	s.reads++
	if s.unsubscribeAfter > 0 && s.reads > s.unsubscribeAfter {
		return false, nil
	}
	return s.subs[platform+"/"+conversationID], nil
}

func (s *fakeStore) SetSubscribed(_ context.Context, platform, conversationID string, subscribed bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs[platform+"/"+conversationID] = subscribed
	return nil
}

type fakeWriter struct {
	chunks  []string
	closed  bool
	writeAt int // fail on the writeAt-th call (1-based), 0 disables
}

func (w *fakeWriter) Write(_ context.Context, chunk string) error {
	if w.writeAt > 0 && len(w.chunks)+1 == w.writeAt {
		return errors.New("delivery refused")
	}
	w.chunks = append(w.chunks, chunk)
	return nil
}

func (w *fakeWriter) Close(_ context.Context) error {
	w.closed = true
	return nil
}

type fakeAdapter struct {
	platform string

	posts      []Content
	fetched    []Message
	fetchErr   error
	fetchLimit int

	writer  *fakeWriter
	openErr error
}

func (a *fakeAdapter) Platform() string { return a.platform }

func (a *fakeAdapter) Parse(_ context.Context, _ WebhookRequest) (ParseResult, error) {
	return ParseResult{}, nil
}

func (a *fakeAdapter) FetchMessages(_ context.Context, _ string, limit int) ([]Message, error) {
	a.fetchLimit = limit
	if a.fetchErr != nil {
		return nil, a.fetchErr
	}
	return a.fetched, nil
}

func (a *fakeAdapter) Post(_ context.Context, _ string, content Content) error {
	a.posts = append(a.posts, content)
	return nil
}

func (a *fakeAdapter) OpenStream(_ context.Context, _ string) (ChunkWriter, error) {
	if a.openErr != nil {
		return nil, a.openErr
	}
	if a.writer == nil {
		a.writer = &fakeWriter{}
	}
	return a.writer, nil
}

// fakeStream yields its chunks then optionally ends in an error.
type fakeStream struct {
	chunks   []string
	idx      int
	finalErr error
	closed   bool

	// failAfter ends the stream with finalErr once that many chunks have
	// been yielded, 0 means after all of them.
	failAfter int
}

func (s *fakeStream) Next() bool {
	if s.failAfter > 0 && s.idx >= s.failAfter {
		return false
	}
	if s.idx >= len(s.chunks) {
		return false
	}
	s.idx++
	return true
}

func (s *fakeStream) Current() string { return s.chunks[s.idx-1] }

func (s *fakeStream) Err() error {
	if s.failAfter > 0 && s.idx >= s.failAfter {
		return s.finalErr
	}
	if s.idx >= len(s.chunks) {
		return s.finalErr
	}
	return nil
}

func (s *fakeStream) Close() error {
	s.closed = true
	return nil
}

type fakeGenerator struct {
	stream   *fakeStream
	startErr error
	calls    [][]TranscriptEntry
}

func (g *fakeGenerator) StreamChat(_ context.Context, transcript []TranscriptEntry) (ChunkStream, error) {
	g.calls = append(g.calls, transcript)
	if g.startErr != nil {
		return nil, g.startErr
	}
	return g.stream, nil
}

func newTestBot(store *fakeStore, gen *fakeGenerator, adapters ...*fakeAdapter) *Bot {
	if store == nil {
		store = newFakeStore()
	}
	if gen == nil {
		gen = &fakeGenerator{stream: &fakeStream{}}
	}
	bot := NewBot(store, gen, nil)
	for _, a := range adapters {
		bot.RegisterAdapter(a)
	}
	return bot
}

// TestOnActionDuplicate verifies a second binding for the same action id is
// rejected.
func TestOnActionDuplicate(t *testing.T) {
	bot := newTestBot(nil, nil)
	noop := func(context.Context, *Thread, *Event) error { return nil }

	if err := bot.OnAction("confirm", noop); err != nil {
		t.Fatalf("first binding: %v", err)
	}
	err := bot.OnAction("confirm", noop)
	if !errors.Is(err, ErrActionRegistered) {
		t.Fatalf("expected ErrActionRegistered, got %v", err)
	}
	if err := bot.OnAction("other", noop); err != nil {
		t.Errorf("unrelated id should still bind: %v", err)
	}
}

// TestDispatchMentionOrder verifies mention handlers run in registration
// order and a failing handler does not shadow the rest.
func TestDispatchMentionOrder(t *testing.T) {
	adapter := &fakeAdapter{platform: "slack"}
	bot := newTestBot(nil, nil, adapter)

	var order []string
	bot.OnMention(func(context.Context, *Thread, *Event) error {
		order = append(order, "first")
		return errors.New("boom")
	})
	bot.OnMention(func(context.Context, *Thread, *Event) error {
		order = append(order, "second")
		return nil
	})

	ev := &Event{Kind: EventMention, Platform: "slack", ConversationID: "C1"}
	if err := bot.Dispatch(context.Background(), ev); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Errorf("expected both handlers in order, got %v", order)
	}
	if ev.ID == "" {
		t.Error("expected dispatch to assign an event id")
	}
}

// TestDispatchInteraction verifies action routing: matched ids run their
// handler, unmatched ids are a silent no-op, empty ids are dropped.
func TestDispatchInteraction(t *testing.T) {
	tests := []struct {
		name     string
		actionID string
		wantRun  bool
	}{
		{name: "matched action", actionID: "confirm", wantRun: true},
		{name: "unmatched action", actionID: "stale-button"},
		{name: "empty action id", actionID: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bot := newTestBot(nil, nil, &fakeAdapter{platform: "slack"})
			ran := false
			if err := bot.OnAction("confirm", func(_ context.Context, _ *Thread, ev *Event) error {
				ran = true
				if ev.Value != "yes" {
					t.Errorf("expected value passed through, got %q", ev.Value)
				}
				return nil
			}); err != nil {
				t.Fatalf("bind: %v", err)
			}

			ev := &Event{
				Kind:           EventInteraction,
				Platform:       "slack",
				ConversationID: "C1",
				ActionID:       tt.actionID,
				Value:          "yes",
			}
			if err := bot.Dispatch(context.Background(), ev); err != nil {
				t.Fatalf("dispatch: %v", err)
			}
			if ran != tt.wantRun {
				t.Errorf("handler ran = %v, want %v", ran, tt.wantRun)
			}
		})
	}
}

// TestDispatchSubscribedMessage verifies the subscription gate: only
// messages in subscribed conversations reach handlers, and the bot's own
// messages never do.
func TestDispatchSubscribedMessage(t *testing.T) {
	tests := []struct {
		name       string
		subscribed bool
		isSelf     bool
		wantRun    bool
	}{
		{name: "subscribed", subscribed: true, wantRun: true},
		{name: "not subscribed"},
		{name: "own message in subscribed conversation", subscribed: true, isSelf: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			if tt.subscribed {
				store.subs["slack/C1"] = true
			}
			bot := newTestBot(store, nil, &fakeAdapter{platform: "slack"})

			ran := false
			bot.OnSubscribedMessage(func(context.Context, *Thread, *Event) error {
				ran = true
				return nil
			})

			ev := &Event{
				Kind:           EventSubscribedMessage,
				Platform:       "slack",
				ConversationID: "C1",
				Author:         Author{ID: "U1", IsSelf: tt.isSelf},
				Text:           "hello",
			}
			if err := bot.Dispatch(context.Background(), ev); err != nil {
				t.Fatalf("dispatch: %v", err)
			}
			if ran != tt.wantRun {
				t.Errorf("handler ran = %v, want %v", ran, tt.wantRun)
			}
		})
	}
}

// TestDispatchSubscribedMessageStoreError verifies a failing subscription
// read surfaces as an error instead of silently dropping the message.
func TestDispatchSubscribedMessageStoreError(t *testing.T) {
	store := newFakeStore()
	store.readErr = errors.New("disk gone")
	bot := newTestBot(store, nil, &fakeAdapter{platform: "slack"})
	bot.OnSubscribedMessage(func(context.Context, *Thread, *Event) error {
		t.Error("handler must not run when the subscription read fails")
		return nil
	})

	ev := &Event{Kind: EventSubscribedMessage, Platform: "slack", ConversationID: "C1"}
	if err := bot.Dispatch(context.Background(), ev); err == nil {
		t.Fatal("expected error from failed subscription read")
	}
}

// TestMentionSubscribesThenMessagesFlow walks the core loop: a mention
// subscribes the conversation and posts a welcome, after which plain
// messages in the same conversation are dispatched.
func TestMentionSubscribesThenMessagesFlow(t *testing.T) {
	store := newFakeStore()
	adapter := &fakeAdapter{platform: "slack"}
	bot := newTestBot(store, nil, adapter)

	bot.OnMention(func(ctx context.Context, th *Thread, _ *Event) error {
		if err := th.Subscribe(ctx); err != nil {
			return err
		}
		return th.Post(ctx, Card{Title: "Welcome"})
	})

	var got []string
	bot.OnSubscribedMessage(func(_ context.Context, _ *Thread, ev *Event) error {
		got = append(got, ev.Text)
		return nil
	})

	ctx := context.Background()
	if err := bot.Dispatch(ctx, &Event{Kind: EventMention, Platform: "slack", ConversationID: "C9"}); err != nil {
		t.Fatalf("mention dispatch: %v", err)
	}
	if len(adapter.posts) != 1 {
		t.Fatalf("expected one welcome post, got %d", len(adapter.posts))
	}
	if card, ok := adapter.posts[0].(Card); !ok || card.Title != "Welcome" {
		t.Errorf("expected welcome card, got %#v", adapter.posts[0])
	}

	if err := bot.Dispatch(ctx, &Event{
		Kind: EventSubscribedMessage, Platform: "slack", ConversationID: "C9", Text: "how are you?",
	}); err != nil {
		t.Fatalf("message dispatch: %v", err)
	}
	if len(got) != 1 || got[0] != "how are you?" {
		t.Errorf("expected message to reach handler, got %v", got)
	}

	// A different conversation on the same platform stays gated.
	if err := bot.Dispatch(ctx, &Event{
		Kind: EventSubscribedMessage, Platform: "slack", ConversationID: "C10", Text: "ignored",
	}); err != nil {
		t.Fatalf("unsubscribed dispatch: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("unsubscribed conversation must not dispatch, got %v", got)
	}
}

// TestThreadPostUnknownPlatform verifies posting through a thread for an
// unregistered platform fails with ErrUnsupportedPlatform.
func TestThreadPostUnknownPlatform(t *testing.T) {
	bot := newTestBot(nil, nil)
	th := bot.Thread("discord", "C1")
	err := th.PostText(context.Background(), "hi")
	if !errors.Is(err, ErrUnsupportedPlatform) {
		t.Fatalf("expected ErrUnsupportedPlatform, got %v", err)
	}
}

// TestHandlerCounts verifies the status API sees registrations.
func TestHandlerCounts(t *testing.T) {
	bot := newTestBot(nil, nil)
	noop := func(context.Context, *Thread, *Event) error { return nil }
	bot.OnMention(noop)
	bot.OnMention(noop)
	if err := bot.OnAction("a", noop); err != nil {
		t.Fatalf("bind: %v", err)
	}
	bot.OnSubscribedMessage(noop)

	counts := bot.HandlerCounts()
	want := map[string]int{"mention": 2, "interaction": 1, "subscribed_message": 1}
	for kind, n := range want {
		if counts[kind] != n {
			t.Errorf("counts[%s] = %d, want %d", kind, counts[kind], n)
		}
	}
}

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t.Fatalf("parse time %q: %v", s, err)
	}
	return ts
}
