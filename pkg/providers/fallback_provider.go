package providers

import (
	"context"
	"fmt"

	"github.com/nddang/gemchat/pkg/logger"
)

// FallbackEntry pairs a provider with the model name to use for it.
type FallbackEntry struct {
	Provider Provider
	Model    string
}

// FallbackProvider tries the primary provider first, then falls back to
// alternatives in order when a Send fails before the first fragment arrives.
// Failures mid-stream are not retried; they finalize the cycle as an error
// turn like any other streaming failure.
type FallbackProvider struct {
	primary   Provider
	fallbacks []FallbackEntry
}

func NewFallbackProvider(primary Provider, fallbacks []FallbackEntry) *FallbackProvider {
	return &FallbackProvider{primary: primary, fallbacks: fallbacks}
}

func (p *FallbackProvider) Name() string { return p.primary.Name() }

// NewConversation builds one conversation per backend, all bound to a single
// shared memory: whichever backend ends up answering a turn, the others
// replay the full exchange on their next attempt.
func (p *FallbackProvider) NewConversation(system, model string) Conversation {
	shared := &history{}
	bind := func(prov Provider, mdl string) fallbackConv {
		conv := prov.NewConversation(system, mdl)
		if hs, ok := conv.(historySetter); ok {
			hs.setHistory(shared)
		}
		return fallbackConv{conv: conv, name: prov.Name()}
	}

	convs := make([]fallbackConv, 0, 1+len(p.fallbacks))
	convs = append(convs, bind(p.primary, model))
	for _, fb := range p.fallbacks {
		fbModel := fb.Model
		if fbModel == "" {
			fbModel = model
		}
		convs = append(convs, bind(fb.Provider, fbModel))
	}
	return &fallbackConversation{convs: convs}
}

type fallbackConv struct {
	conv Conversation
	name string
}

type fallbackConversation struct {
	convs []fallbackConv
}

func (c *fallbackConversation) Send(ctx context.Context, text string) (<-chan Fragment, error) {
	// Try primary
	out, err := c.convs[0].conv.Send(ctx, text)
	if err == nil {
		return out, nil
	}

	logger.WarnCF("providers", fmt.Sprintf("Primary provider failed: %v, trying fallbacks", err),
		map[string]interface{}{"provider": c.convs[0].name})

	lastErr := err
	for i, fb := range c.convs[1:] {
		logger.InfoCF("providers", fmt.Sprintf("Trying fallback #%d", i+1),
			map[string]interface{}{"provider": fb.name})

		out, lastErr = fb.conv.Send(ctx, text)
		if lastErr == nil {
			logger.InfoCF("providers", fmt.Sprintf("Fallback #%d succeeded", i+1),
				map[string]interface{}{"provider": fb.name})
			return out, nil
		}

		logger.WarnCF("providers", fmt.Sprintf("Fallback #%d failed: %v", i+1, lastErr),
			map[string]interface{}{"provider": fb.name})
	}

	return nil, fmt.Errorf("all providers failed, last error: %w", lastErr)
}

func (c *fallbackConversation) Close() {
	for _, fb := range c.convs {
		fb.conv.Close()
	}
}
