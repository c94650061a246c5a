package providers

import (
	"context"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	oaistream "github.com/openai/openai-go/v3/packages/ssestream"

	"github.com/yutakobayashidev/asobiba/pkg/chat"
)

const defaultOpenAIModel = "gpt-4o-mini"

// OpenAIProvider generates streamed replies via the OpenAI Chat Completions
// API.
type OpenAIProvider struct {
	client openai.Client
	model  string
}

// NewOpenAIProvider creates a provider. An empty model selects the default.
func NewOpenAIProvider(apiKey, model string) *OpenAIProvider {
	if model == "" {
		model = defaultOpenAIModel
	}
	return &OpenAIProvider{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

// GetDefaultModel returns the model used when none is configured.
func (p *OpenAIProvider) GetDefaultModel() string {
	return defaultOpenAIModel
}

// StreamChat starts one streamed generation over the transcript.
func (p *OpenAIProvider) StreamChat(ctx context.Context, transcript []chat.TranscriptEntry) (chat.ChunkStream, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(transcript))
	for _, entry := range transcript {
		if entry.Role == chat.RoleAssistant {
			messages = append(messages, openai.AssistantMessage(entry.Content))
		} else {
			messages = append(messages, openai.UserMessage(entry.Content))
		}
	}

	stream := p.client.Chat.Completions.NewStreaming(ctx, openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(p.model),
		Messages: messages,
	})
	return &openaiChunkStream{stream: stream}, nil
}

// openaiChunkStream filters completion chunks down to non-empty deltas.
type openaiChunkStream struct {
	stream  *oaistream.Stream[openai.ChatCompletionChunk]
	current string
}

func (s *openaiChunkStream) Next() bool {
	for s.stream.Next() {
		chunk := s.stream.Current()
		if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
			s.current = chunk.Choices[0].Delta.Content
			return true
		}
	}
	return false
}

func (s *openaiChunkStream) Current() string { return s.current }
func (s *openaiChunkStream) Err() error      { return s.stream.Err() }
func (s *openaiChunkStream) Close() error    { return s.stream.Close() }

// Ensure OpenAIProvider implements the Generator interface.
var _ chat.Generator = (*OpenAIProvider)(nil)
