package providers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConversation struct {
	sendErr   error
	fragments []string
	streamErr error
	sends     int
	closed    bool
	lastModel string
}

func (c *fakeConversation) Send(ctx context.Context, text string) (<-chan Fragment, error) {
	c.sends++
	if c.sendErr != nil {
		return nil, c.sendErr
	}
	out := make(chan Fragment, len(c.fragments)+1)
	for _, f := range c.fragments {
		out <- Fragment{Text: f}
	}
	if c.streamErr != nil {
		out <- Fragment{Err: c.streamErr}
	}
	close(out)
	return out, nil
}

func (c *fakeConversation) Close() { c.closed = true }

type fakeProvider struct {
	name string
	conv *fakeConversation
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) NewConversation(system, model string) Conversation {
	p.conv.lastModel = model
	return p.conv
}

func TestFallbackUsesPrimaryWhenHealthy(t *testing.T) {
	primary := &fakeProvider{name: "primary", conv: &fakeConversation{fragments: []string{"ok"}}}
	backup := &fakeProvider{name: "backup", conv: &fakeConversation{fragments: []string{"nope"}}}

	fp := NewFallbackProvider(primary, []FallbackEntry{{Provider: backup}})
	conv := fp.NewConversation("sys", "model-a")

	frags, err := conv.Send(context.Background(), "hi")
	require.NoError(t, err)
	var full string
	for f := range frags {
		require.NoError(t, f.Err)
		full += f.Text
	}
	assert.Equal(t, "ok", full)
	assert.Equal(t, 1, primary.conv.sends)
	assert.Equal(t, 0, backup.conv.sends)
}

func TestFallbackTriesAlternativesInOrder(t *testing.T) {
	primary := &fakeProvider{name: "primary", conv: &fakeConversation{sendErr: errors.New("down")}}
	first := &fakeProvider{name: "first", conv: &fakeConversation{sendErr: errors.New("also down")}}
	second := &fakeProvider{name: "second", conv: &fakeConversation{fragments: []string{"saved"}}}

	fp := NewFallbackProvider(primary, []FallbackEntry{
		{Provider: first},
		{Provider: second, Model: "backup-model"},
	})
	conv := fp.NewConversation("sys", "model-a")

	frags, err := conv.Send(context.Background(), "hi")
	require.NoError(t, err)
	var full string
	for f := range frags {
		full += f.Text
	}
	assert.Equal(t, "saved", full)
	assert.Equal(t, 1, primary.conv.sends)
	assert.Equal(t, 1, first.conv.sends)
	assert.Equal(t, 1, second.conv.sends)
	// Fallback entries without a model inherit the primary's.
	assert.Equal(t, "model-a", first.conv.lastModel)
	assert.Equal(t, "backup-model", second.conv.lastModel)
}

func TestFallbackAllFail(t *testing.T) {
	primary := &fakeProvider{name: "primary", conv: &fakeConversation{sendErr: errors.New("down")}}
	backup := &fakeProvider{name: "backup", conv: &fakeConversation{sendErr: &APIError{Provider: "backup", Status: 500, Message: "boom"}}}

	fp := NewFallbackProvider(primary, []FallbackEntry{{Provider: backup}})
	conv := fp.NewConversation("sys", "model-a")

	_, err := conv.Send(context.Background(), "hi")
	require.Error(t, err)
	var apiErr *APIError
	assert.ErrorAs(t, err, &apiErr)
}

func TestFallbackDoesNotRetryMidStreamFailure(t *testing.T) {
	primary := &fakeProvider{name: "primary", conv: &fakeConversation{fragments: []string{"par"}, streamErr: errors.New("cut off")}}
	backup := &fakeProvider{name: "backup", conv: &fakeConversation{fragments: []string{"unused"}}}

	fp := NewFallbackProvider(primary, []FallbackEntry{{Provider: backup}})
	conv := fp.NewConversation("sys", "model-a")

	frags, err := conv.Send(context.Background(), "hi")
	require.NoError(t, err)
	var gotErr error
	for f := range frags {
		if f.Err != nil {
			gotErr = f.Err
		}
	}
	require.Error(t, gotErr)
	assert.Equal(t, 0, backup.conv.sends)
}

func TestFallbackSharesConversationMemory(t *testing.T) {
	// Primary answers turn one, 500s on turn two, recovers for turn three.
	var primaryCalls int
	var primaryReqs []geminiRequest
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		primaryCalls++
		var req geminiRequest
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &req)
		primaryReqs = append(primaryReqs, req)

		if primaryCalls == 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, sseChunk("primary reply"))
	}))
	defer primary.Close()

	var backupReqs []geminiRequest
	backup := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req geminiRequest
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &req)
		backupReqs = append(backupReqs, req)
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, sseChunk("backup reply"))
	}))
	defer backup.Close()

	fp := NewFallbackProvider(
		NewGeminiProvider("k", primary.URL),
		[]FallbackEntry{{Provider: NewGeminiProvider("k", backup.URL)}},
	)
	conv := fp.NewConversation("", "gemini-2.5-flash")

	sendAndDrain := func(text string) {
		t.Helper()
		frags, err := conv.Send(context.Background(), text)
		require.NoError(t, err)
		_, err = collect(t, frags)
		require.NoError(t, err)
	}

	sendAndDrain("turn one")
	sendAndDrain("turn two")
	sendAndDrain("turn three")

	// The fallback that answered turn two replays the full prior exchange.
	require.Len(t, backupReqs, 1)
	contents := backupReqs[0].Contents
	require.Len(t, contents, 3)
	assert.Equal(t, "turn one", contents[0].Parts[0].Text)
	assert.Equal(t, "primary reply", contents[1].Parts[0].Text)
	assert.Equal(t, "turn two", contents[2].Parts[0].Text)

	// Once the primary recovers it sees the turn the fallback answered.
	require.Len(t, primaryReqs, 3)
	contents = primaryReqs[2].Contents
	require.Len(t, contents, 5)
	assert.Equal(t, "backup reply", contents[3].Parts[0].Text)
	assert.Equal(t, "turn three", contents[4].Parts[0].Text)
}

func TestFallbackCloseClosesAll(t *testing.T) {
	primary := &fakeProvider{name: "primary", conv: &fakeConversation{}}
	backup := &fakeProvider{name: "backup", conv: &fakeConversation{}}

	fp := NewFallbackProvider(primary, []FallbackEntry{{Provider: backup}})
	fp.NewConversation("sys", "model-a").Close()

	assert.True(t, primary.conv.closed)
	assert.True(t, backup.conv.closed)
}
