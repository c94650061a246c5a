package chat

import (
	"context"
	"errors"
	"testing"
)

// TestStreamReplyDeliversInOrder verifies every chunk is delivered in
// generation order and the writer is finalized afterwards.
func TestStreamReplyDeliversInOrder(t *testing.T) {
	store := newFakeStore()
	store.subs["slack/C1"] = true
	stream := &fakeStream{chunks: []string{"Hel", "lo ", "there"}}
	gen := &fakeGenerator{stream: stream}
	adapter := &fakeAdapter{platform: "slack"}
	bot := newTestBot(store, gen, adapter)

	transcript := []TranscriptEntry{{Role: RoleUser, Content: "hi"}}
	if err := bot.StreamReply(context.Background(), bot.Thread("slack", "C1"), transcript); err != nil {
		t.Fatalf("stream reply: %v", err)
	}

	want := []string{"Hel", "lo ", "there"}
	if len(adapter.writer.chunks) != len(want) {
		t.Fatalf("expected %d chunks, got %v", len(want), adapter.writer.chunks)
	}
	for i, chunk := range want {
		if adapter.writer.chunks[i] != chunk {
			t.Errorf("chunk %d = %q, want %q", i, adapter.writer.chunks[i], chunk)
		}
	}
	if !adapter.writer.closed {
		t.Error("expected writer finalized after last chunk")
	}
	if !stream.closed {
		t.Error("expected generation stream released")
	}
	if len(gen.calls) != 1 {
		t.Fatalf("expected a single generation call, got %d", len(gen.calls))
	}
}

// TestStreamReplyStopsWhenUnsubscribed verifies an unsubscribe lands at the
// next delivery boundary: delivered chunks stay, the rest never go out, and
// the generation stream is released.
func TestStreamReplyStopsWhenUnsubscribed(t *testing.T) {
	store := newFakeStore()
	store.subs["slack/C1"] = true
	store.unsubscribeAfter = 1 // first check passes, second sees the flag cleared
	stream := &fakeStream{chunks: []string{"one", "two", "three"}}
	adapter := &fakeAdapter{platform: "slack"}
	bot := newTestBot(store, &fakeGenerator{stream: stream}, adapter)

	if err := bot.StreamReply(context.Background(), bot.Thread("slack", "C1"), nil); err != nil {
		t.Fatalf("stream reply: %v", err)
	}

	if len(adapter.writer.chunks) != 1 || adapter.writer.chunks[0] != "one" {
		t.Errorf("expected exactly the first chunk delivered, got %v", adapter.writer.chunks)
	}
	if !stream.closed {
		t.Error("expected generation stream released after cancellation")
	}
}

// TestStreamReplyGenerationFailure verifies a mid-stream generation error is
// surfaced while already-delivered chunks remain delivered.
func TestStreamReplyGenerationFailure(t *testing.T) {
	store := newFakeStore()
	store.subs["slack/C1"] = true
	stream := &fakeStream{
		chunks:    []string{"partial ", "answer", "never seen"},
		failAfter: 2,
		finalErr:  errors.New("model overloaded"),
	}
	adapter := &fakeAdapter{platform: "slack"}
	bot := newTestBot(store, &fakeGenerator{stream: stream}, adapter)

	err := bot.StreamReply(context.Background(), bot.Thread("slack", "C1"), nil)
	if err == nil {
		t.Fatal("expected generation error to surface")
	}
	if len(adapter.writer.chunks) != 2 {
		t.Errorf("expected the two pre-failure chunks delivered, got %v", adapter.writer.chunks)
	}
}

// TestStreamReplyDeliveryFailure verifies a failed delivery stops the
// pipeline and surfaces the error.
func TestStreamReplyDeliveryFailure(t *testing.T) {
	store := newFakeStore()
	store.subs["slack/C1"] = true
	stream := &fakeStream{chunks: []string{"a", "b", "c"}}
	adapter := &fakeAdapter{platform: "slack", writer: &fakeWriter{writeAt: 2}}
	bot := newTestBot(store, &fakeGenerator{stream: stream}, adapter)

	err := bot.StreamReply(context.Background(), bot.Thread("slack", "C1"), nil)
	if err == nil {
		t.Fatal("expected delivery error to surface")
	}
	if len(adapter.writer.chunks) != 1 {
		t.Errorf("expected delivery to stop after the failure, got %v", adapter.writer.chunks)
	}
	if !stream.closed {
		t.Error("expected generation stream released after delivery failure")
	}
}

// TestStreamReplyStartFailure verifies a generation service that cannot even
// start produces an error and no delivery stream is opened.
func TestStreamReplyStartFailure(t *testing.T) {
	store := newFakeStore()
	store.subs["slack/C1"] = true
	gen := &fakeGenerator{startErr: errors.New("invalid api key")}
	adapter := &fakeAdapter{platform: "slack"}
	bot := newTestBot(store, gen, adapter)

	err := bot.StreamReply(context.Background(), bot.Thread("slack", "C1"), nil)
	if err == nil {
		t.Fatal("expected start error to surface")
	}
	if adapter.writer != nil {
		t.Error("expected no delivery stream when generation never started")
	}
}

// TestStreamReplyUnknownPlatform verifies streaming to an unregistered
// platform fails before touching the generation service.
func TestStreamReplyUnknownPlatform(t *testing.T) {
	gen := &fakeGenerator{stream: &fakeStream{}}
	bot := newTestBot(nil, gen)

	err := bot.StreamReply(context.Background(), bot.Thread("discord", "C1"), nil)
	if !errors.Is(err, ErrUnsupportedPlatform) {
		t.Fatalf("expected ErrUnsupportedPlatform, got %v", err)
	}
	if len(gen.calls) != 0 {
		t.Error("generation must not start for an unknown platform")
	}
}
