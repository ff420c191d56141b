package providers

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// OpenAIProvider covers the OpenAI API and every OpenAI-compatible gateway
// reachable through a custom base URL.
type OpenAIProvider struct {
	name   string
	client openai.Client
}

func NewOpenAIProvider(apiKey, apiBase string) *OpenAIProvider {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if apiBase != "" {
		opts = append(opts, option.WithBaseURL(apiBase))
	}
	return &OpenAIProvider{name: "openai", client: openai.NewClient(opts...)}
}

func (p *OpenAIProvider) Name() string { return p.name }

func (p *OpenAIProvider) NewConversation(system, model string) Conversation {
	return &openaiConversation{p: p, system: system, model: model, hist: &history{}}
}

type openaiConversation struct {
	p      *OpenAIProvider
	system string
	model  string
	hist   *history
}

func (c *openaiConversation) Send(ctx context.Context, text string) (<-chan Fragment, error) {
	c.hist.appendUser(text)

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, c.hist.len()+1)
	if c.system != "" {
		messages = append(messages, openai.SystemMessage(c.system))
	}
	for _, m := range c.hist.snapshot() {
		if m.Role == "assistant" {
			messages = append(messages, openai.AssistantMessage(m.Content))
		} else {
			messages = append(messages, openai.UserMessage(m.Content))
		}
	}

	stream := c.p.client.Chat.Completions.NewStreaming(ctx, openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(c.model),
		Messages: messages,
	})

	out := make(chan Fragment)
	go func() {
		defer close(out)
		var full string
		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			delta := chunk.Choices[0].Delta.Content
			if delta == "" {
				continue
			}
			full += delta
			out <- Fragment{Text: delta}
		}
		if err := stream.Err(); err != nil {
			c.hist.dropLastUser()
			out <- Fragment{Err: classifyOpenAIError(err)}
			return
		}
		c.hist.recordReply(full)
	}()
	return out, nil
}

func (c *openaiConversation) Close() { c.hist.reset() }

func (c *openaiConversation) setHistory(h *history) { c.hist = h }

func classifyOpenAIError(err error) error {
	var apierr *openai.Error
	if errors.As(err, &apierr) {
		return &APIError{Provider: "openai", Status: apierr.StatusCode, Message: apierr.Message}
	}
	return fmt.Errorf("openai stream: %w", err)
}
