// Package providers implements the conversation clients that talk to hosted
// model APIs and stream reply fragments back to the transcript engine.
package providers

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/nddang/gemchat/pkg/transcript"
)

// Fragment is one incremental piece of a streamed reply. A Fragment with a
// non-nil Err is terminal; the channel is closed right after it. A channel
// that closes without an Err fragment ended cleanly.
type Fragment struct {
	Text string
	Err  error
}

// Conversation is a model-side chat session. It keeps the prior turns of one
// browser session and replays them on every Send.
type Conversation interface {
	// Send streams the model's reply to text. Fragments arrive in model
	// order. The reply is recorded into the conversation's memory only when
	// the stream ends cleanly; a failed cycle leaves the memory as it was.
	Send(ctx context.Context, text string) (<-chan Fragment, error)
	Close()
}

// Provider constructs conversations against one upstream API.
type Provider interface {
	Name() string
	NewConversation(system, model string) Conversation
}

// Message is one turn of conversation memory replayed to the upstream.
type Message struct {
	Role    string // "user" or "assistant"
	Content string
}

// APIError is a classified upstream failure: the request reached the API and
// the API said no. Everything else is unexpected.
type APIError struct {
	Provider string
	Status   int
	Message  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s api error (status %d): %s", e.Provider, e.Status, e.Message)
}

// ClassifyError maps a streaming failure onto the transcript's error taxonomy.
func ClassifyError(err error) transcript.ErrorKind {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return transcript.ErrorKindAPI
	}
	return transcript.ErrorKindUnexpected
}

// historySetter lets a wrapping conversation inject shared memory so every
// backend it delegates to replays the same transcript.
type historySetter interface {
	setHistory(*history)
}

// history is the shared conversation-memory bookkeeping. Send flows append
// the user turn up front and commit the assistant turn via recordReply only
// on a clean stream end.
type history struct {
	mu   sync.Mutex
	msgs []Message
}

func (h *history) appendUser(text string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.msgs = append(h.msgs, Message{Role: "user", Content: text})
}

func (h *history) recordReply(text string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.msgs = append(h.msgs, Message{Role: "assistant", Content: text})
}

// dropLastUser removes the trailing user turn after a failed cycle so a
// retried submission does not replay a dangling unanswered message.
func (h *history) dropLastUser() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if n := len(h.msgs); n > 0 && h.msgs[n-1].Role == "user" {
		h.msgs = h.msgs[:n-1]
	}
}

func (h *history) len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.msgs)
}

func (h *history) snapshot() []Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Message, len(h.msgs))
	copy(out, h.msgs)
	return out
}

func (h *history) reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.msgs = nil
}
