package providers

import (
	"context"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const anthropicMaxTokens = 4096

type AnthropicProvider struct {
	client anthropic.Client
}

func NewAnthropicProvider(apiKey, apiBase string) *AnthropicProvider {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if apiBase != "" {
		opts = append(opts, option.WithBaseURL(apiBase))
	}
	return &AnthropicProvider{client: anthropic.NewClient(opts...)}
}

func (p *AnthropicProvider) Name() string { return "anthropic" }

func (p *AnthropicProvider) NewConversation(system, model string) Conversation {
	return &anthropicConversation{p: p, system: system, model: model, hist: &history{}}
}

type anthropicConversation struct {
	p      *AnthropicProvider
	system string
	model  string
	hist   *history
}

func (c *anthropicConversation) Send(ctx context.Context, text string) (<-chan Fragment, error) {
	c.hist.appendUser(text)

	msgs := c.hist.snapshot()
	messages := make([]anthropic.MessageParam, 0, len(msgs))
	for _, m := range msgs {
		block := anthropic.NewTextBlock(m.Content)
		if m.Role == "assistant" {
			messages = append(messages, anthropic.NewAssistantMessage(block))
		} else {
			messages = append(messages, anthropic.NewUserMessage(block))
		}
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: anthropicMaxTokens,
		Messages:  messages,
	}
	if c.system != "" {
		params.System = []anthropic.TextBlockParam{{Text: c.system}}
	}

	stream := c.p.client.Messages.NewStreaming(ctx, params)

	out := make(chan Fragment)
	go func() {
		defer close(out)
		var full string
		for stream.Next() {
			event := stream.Current()
			switch ev := event.AsAny().(type) {
			case anthropic.ContentBlockDeltaEvent:
				switch delta := ev.Delta.AsAny().(type) {
				case anthropic.TextDelta:
					if delta.Text == "" {
						continue
					}
					full += delta.Text
					out <- Fragment{Text: delta.Text}
				}
			}
		}
		if err := stream.Err(); err != nil {
			c.hist.dropLastUser()
			out <- Fragment{Err: classifyAnthropicError(err)}
			return
		}
		c.hist.recordReply(full)
	}()
	return out, nil
}

func (c *anthropicConversation) Close() { c.hist.reset() }

func (c *anthropicConversation) setHistory(h *history) { c.hist = h }

func classifyAnthropicError(err error) error {
	var apierr *anthropic.Error
	if errors.As(err, &apierr) {
		return &APIError{Provider: "anthropic", Status: apierr.StatusCode, Message: apierr.Error()}
	}
	return fmt.Errorf("anthropic stream: %w", err)
}
