package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/yutakobayashidev/asobiba/pkg/chat"
	"github.com/yutakobayashidev/asobiba/pkg/config"
	"github.com/yutakobayashidev/asobiba/pkg/state"
)

// stubAdapter hands back a canned parse result, enough to drive the ingress
// without a real platform.
type stubAdapter struct {
	platform string
	result   chat.ParseResult
	parseErr error
}

func (a *stubAdapter) Platform() string { return a.platform }

func (a *stubAdapter) Parse(_ context.Context, _ chat.WebhookRequest) (chat.ParseResult, error) {
	if a.parseErr != nil {
		return chat.ParseResult{}, a.parseErr
	}
	return a.result, nil
}

func (a *stubAdapter) FetchMessages(_ context.Context, _ string, _ int) ([]chat.Message, error) {
	return nil, nil
}

func (a *stubAdapter) Post(_ context.Context, _ string, _ chat.Content) error { return nil }

func (a *stubAdapter) OpenStream(_ context.Context, _ string) (chat.ChunkWriter, error) {
	return nil, errors.New("not streaming in tests")
}

type nopGenerator struct{}

func (nopGenerator) StreamChat(_ context.Context, _ []chat.TranscriptEntry) (chat.ChunkStream, error) {
	return nil, errors.New("no generation in tests")
}

func newTestServer(adapters ...chat.Adapter) (*Server, *chat.Bot) {
	bot := chat.NewBot(state.NewMemoryStore(), nopGenerator{}, nil)
	for _, a := range adapters {
		bot.RegisterAdapter(a)
	}
	return NewServer(config.Default(), bot, nil), bot
}

// TestWebhookUnknownPlatform verifies deliveries for unregistered platforms
// get a 400 with a fixed plain-text body.
func TestWebhookUnknownPlatform(t *testing.T) {
	srv, _ := newTestServer(&stubAdapter{platform: "slack"})

	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/discord", strings.NewReader("{}"))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if got := rec.Body.String(); got != "Unsupported platform" {
		t.Errorf("expected body %q, got %q", "Unsupported platform", got)
	}
}

// TestWebhookParseFailure verifies an unparseable payload yields 400 without
// dispatching anything.
func TestWebhookParseFailure(t *testing.T) {
	srv, bot := newTestServer(&stubAdapter{platform: "slack", parseErr: errors.New("bad signature")})
	bot.OnMention(func(context.Context, *chat.Thread, *chat.Event) error {
		t.Error("no handler must run for an unparseable delivery")
		return nil
	})

	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/slack", strings.NewReader("garbage"))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if got := rec.Body.String(); got != "Bad request" {
		t.Errorf("expected body %q, got %q", "Bad request", got)
	}
}

// TestWebhookAckBody verifies an adapter-supplied ack (e.g. a verification
// challenge) is echoed as the 200 body with no dispatch.
func TestWebhookAckBody(t *testing.T) {
	srv, _ := newTestServer(&stubAdapter{
		platform: "slack",
		result:   chat.ParseResult{Ack: []byte("challenge-token-123")},
	})

	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/slack", strings.NewReader("{}"))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := rec.Body.String(); got != "challenge-token-123" {
		t.Errorf("expected challenge echoed, got %q", got)
	}
}

// TestWebhookDispatchesEvent verifies a parsed event reaches handlers after
// the HTTP response, and the response itself is the accepted JSON.
func TestWebhookDispatchesEvent(t *testing.T) {
	dispatched := make(chan *chat.Event, 1)
	srv, bot := newTestServer(&stubAdapter{
		platform: "slack",
		result: chat.ParseResult{Event: &chat.Event{
			Kind: chat.EventMention, Platform: "slack", ConversationID: "C1",
		}},
	})
	bot.OnMention(func(_ context.Context, _ *chat.Thread, ev *chat.Event) error {
		dispatched <- ev
		return nil
	})

	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/slack", strings.NewReader("{}"))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["status"] != "accepted" {
		t.Errorf("expected accepted status, got %v", resp)
	}

	select {
	case ev := <-dispatched:
		if ev.ConversationID != "C1" {
			t.Errorf("expected conversation C1, got %q", ev.ConversationID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("event never reached the handler")
	}
}

// TestWebhookMethodNotAllowed verifies non-POST deliveries are rejected.
func TestWebhookMethodNotAllowed(t *testing.T) {
	srv, _ := newTestServer(&stubAdapter{platform: "slack"})

	req := httptest.NewRequest(http.MethodGet, "/api/webhooks/slack", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

// TestHealthAndStatus verifies the observability endpoints answer.
func TestHealthAndStatus(t *testing.T) {
	srv, bot := newTestServer(&stubAdapter{platform: "slack"})
	bot.OnMention(func(context.Context, *chat.Thread, *chat.Event) error { return nil })

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("health: expected 200, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status: expected 200, got %d", rec.Code)
	}
	var status struct {
		Platforms []string       `json:"platforms"`
		Handlers  map[string]int `json:"handlers"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if len(status.Platforms) != 1 || status.Platforms[0] != "slack" {
		t.Errorf("expected platforms [slack], got %v", status.Platforms)
	}
	if status.Handlers["mention"] != 1 {
		t.Errorf("expected one mention handler, got %v", status.Handlers)
	}
}
