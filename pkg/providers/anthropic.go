// Package providers implements generation backends behind the chat.Generator
// interface. Each provider wraps its SDK's streaming iterator in a
// chat.ChunkStream that yields plain text increments.
package providers

import (
	"context"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	anthropicstream "github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/yutakobayashidev/asobiba/pkg/chat"
)

const (
	defaultAnthropicModel  = "claude-haiku-4-5"
	defaultAnthropicTokens = 4096
)

// AnthropicProvider generates streamed replies via the Anthropic Messages
// API.
type AnthropicProvider struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// NewAnthropicProvider creates a provider. An empty model selects the
// default.
func NewAnthropicProvider(apiKey, model string) *AnthropicProvider {
	if model == "" {
		model = defaultAnthropicModel
	}
	return &AnthropicProvider{
		client:    anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:     model,
		maxTokens: defaultAnthropicTokens,
	}
}

// GetDefaultModel returns the model used when none is configured.
func (p *AnthropicProvider) GetDefaultModel() string {
	return defaultAnthropicModel
}

// StreamChat starts one streamed generation over the transcript.
func (p *AnthropicProvider) StreamChat(ctx context.Context, transcript []chat.TranscriptEntry) (chat.ChunkStream, error) {
	messages := make([]anthropic.MessageParam, 0, len(transcript))
	for _, entry := range transcript {
		block := anthropic.NewTextBlock(entry.Content)
		if entry.Role == chat.RoleAssistant {
			messages = append(messages, anthropic.NewAssistantMessage(block))
		} else {
			messages = append(messages, anthropic.NewUserMessage(block))
		}
	}

	stream := p.client.Messages.NewStreaming(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: p.maxTokens,
		Messages:  messages,
	})
	return &anthropicChunkStream{stream: stream}, nil
}

// anthropicChunkStream filters the SSE event stream down to text deltas.
type anthropicChunkStream struct {
	stream  *anthropicstream.Stream[anthropic.MessageStreamEventUnion]
	current string
}

func (s *anthropicChunkStream) Next() bool {
	for s.stream.Next() {
		event := s.stream.Current()
		if delta, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent); ok {
			if text, ok := delta.Delta.AsAny().(anthropic.TextDelta); ok && text.Text != "" {
				s.current = text.Text
				return true
			}
		}
	}
	return false
}

func (s *anthropicChunkStream) Current() string { return s.current }
func (s *anthropicChunkStream) Err() error      { return s.stream.Err() }
func (s *anthropicChunkStream) Close() error    { return s.stream.Close() }

// Ensure AnthropicProvider implements the Generator interface.
var _ chat.Generator = (*AnthropicProvider)(nil)
