package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tmaxmax/go-sse"

	"github.com/nddang/gemchat/pkg/logger"
)

const defaultGeminiBase = "https://generativelanguage.googleapis.com/v1beta"

// GeminiProvider talks to the Gemini REST API and streams replies via the
// streamGenerateContent SSE endpoint.
type GeminiProvider struct {
	apiKey  string
	apiBase string
	client  *http.Client
}

func NewGeminiProvider(apiKey, apiBase string) *GeminiProvider {
	if apiBase == "" {
		apiBase = defaultGeminiBase
	}
	return &GeminiProvider{
		apiKey:  apiKey,
		apiBase: apiBase,
		client:  &http.Client{Timeout: 5 * time.Minute},
	}
}

func (p *GeminiProvider) Name() string { return "gemini" }

func (p *GeminiProvider) NewConversation(system, model string) Conversation {
	return &geminiConversation{p: p, system: system, model: model, hist: &history{}}
}

type geminiConversation struct {
	p      *GeminiProvider
	system string
	model  string
	hist   *history
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	SystemInstruction *geminiContent  `json:"system_instruction,omitempty"`
	Contents          []geminiContent `json:"contents"`
}

type geminiChunk struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

type geminiErrorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *geminiConversation) Send(ctx context.Context, text string) (<-chan Fragment, error) {
	c.hist.appendUser(text)

	req := geminiRequest{Contents: contentsFromHistory(c.hist.snapshot())}
	if c.system != "" {
		req.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: c.system}}}
	}
	body, err := json.Marshal(req)
	if err != nil {
		c.hist.dropLastUser()
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:streamGenerateContent?alt=sse", c.p.apiBase, c.model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		c.hist.dropLastUser()
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.p.apiKey)

	resp, err := c.p.client.Do(httpReq)
	if err != nil {
		c.hist.dropLastUser()
		return nil, fmt.Errorf("calling gemini: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		apiErr := &APIError{Provider: "gemini", Status: resp.StatusCode}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		var eb geminiErrorBody
		if json.Unmarshal(raw, &eb) == nil && eb.Error.Message != "" {
			apiErr.Message = eb.Error.Message
		} else {
			apiErr.Message = resp.Status
		}
		c.hist.dropLastUser()
		return nil, apiErr
	}

	out := make(chan Fragment)
	go c.stream(resp.Body, out)
	return out, nil
}

// stream parses the SSE body into fragments. Conversation memory is committed
// only when the stream ends cleanly.
func (c *geminiConversation) stream(body io.ReadCloser, out chan<- Fragment) {
	defer close(out)
	defer body.Close()

	var full bytes.Buffer
	for ev, err := range sse.Read(body, nil) {
		if err != nil {
			logger.WarnCF("providers", "gemini stream aborted", map[string]interface{}{"error": err.Error()})
			c.hist.dropLastUser()
			out <- Fragment{Err: fmt.Errorf("reading gemini stream: %w", err)}
			return
		}
		var chunk geminiChunk
		if err := json.Unmarshal([]byte(ev.Data), &chunk); err != nil {
			c.hist.dropLastUser()
			out <- Fragment{Err: fmt.Errorf("decoding gemini chunk: %w", err)}
			return
		}
		for _, cand := range chunk.Candidates {
			for _, part := range cand.Content.Parts {
				if part.Text == "" {
					continue
				}
				full.WriteString(part.Text)
				out <- Fragment{Text: part.Text}
			}
		}
	}
	c.hist.recordReply(full.String())
}

func (c *geminiConversation) Close() { c.hist.reset() }

func (c *geminiConversation) setHistory(h *history) { c.hist = h }

func contentsFromHistory(msgs []Message) []geminiContent {
	contents := make([]geminiContent, 0, len(msgs))
	for _, m := range msgs {
		role := "user"
		if m.Role == "assistant" {
			role = "model"
		}
		contents = append(contents, geminiContent{Role: role, Parts: []geminiPart{{Text: m.Content}}})
	}
	return contents
}
