package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nddang/gemchat/pkg/transcript"
)

func sseChunk(text string) string {
	return fmt.Sprintf("data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":%q}]}}]}\n\n", text)
}

func collect(t *testing.T, frags <-chan Fragment) (string, error) {
	t.Helper()
	var full string
	for f := range frags {
		if f.Err != nil {
			return full, f.Err
		}
		full += f.Text
	}
	return full, nil
}

func TestGeminiStreamsFragmentsInOrder(t *testing.T) {
	var gotReqs []geminiRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))
		assert.Contains(t, r.URL.Path, "models/gemini-2.5-flash")

		var req geminiRequest
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &req))
		gotReqs = append(gotReqs, req)

		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, sseChunk("Hel"))
		io.WriteString(w, sseChunk("lo, "))
		io.WriteString(w, sseChunk("world"))
	}))
	defer srv.Close()

	p := NewGeminiProvider("test-key", srv.URL)
	conv := p.NewConversation("be brief", "gemini-2.5-flash")

	frags, err := conv.Send(context.Background(), "greet")
	require.NoError(t, err)
	full, err := collect(t, frags)
	require.NoError(t, err)
	assert.Equal(t, "Hello, world", full)

	require.Len(t, gotReqs, 1)
	require.NotNil(t, gotReqs[0].SystemInstruction)
	assert.Equal(t, "be brief", gotReqs[0].SystemInstruction.Parts[0].Text)
	require.Len(t, gotReqs[0].Contents, 1)
	assert.Equal(t, "user", gotReqs[0].Contents[0].Role)
	assert.Equal(t, "greet", gotReqs[0].Contents[0].Parts[0].Text)

	// Second send replays the prior exchange.
	frags, err = conv.Send(context.Background(), "again")
	require.NoError(t, err)
	_, err = collect(t, frags)
	require.NoError(t, err)

	require.Len(t, gotReqs, 2)
	contents := gotReqs[1].Contents
	require.Len(t, contents, 3)
	assert.Equal(t, "user", contents[0].Role)
	assert.Equal(t, "model", contents[1].Role)
	assert.Equal(t, "Hello, world", contents[1].Parts[0].Text)
	assert.Equal(t, "again", contents[2].Parts[0].Text)
}

func TestGeminiAPIErrorClassified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		io.WriteString(w, `{"error": {"code": 429, "message": "quota exceeded"}}`)
	}))
	defer srv.Close()

	p := NewGeminiProvider("test-key", srv.URL)
	conv := p.NewConversation("", "gemini-2.5-flash")

	_, err := conv.Send(context.Background(), "hi")
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusTooManyRequests, apiErr.Status)
	assert.Equal(t, "quota exceeded", apiErr.Message)
	assert.Equal(t, transcript.ErrorKindAPI, ClassifyError(err))
}

func TestGeminiFailedSendLeavesNoDanglingMemory(t *testing.T) {
	var gotReqs []geminiRequest
	fail := true
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req geminiRequest
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &req)
		gotReqs = append(gotReqs, req)

		if fail {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, sseChunk("ok"))
	}))
	defer srv.Close()

	p := NewGeminiProvider("test-key", srv.URL)
	conv := p.NewConversation("", "gemini-2.5-flash")

	_, err := conv.Send(context.Background(), "first")
	require.Error(t, err)

	fail = false
	frags, err := conv.Send(context.Background(), "second")
	require.NoError(t, err)
	_, err = collect(t, frags)
	require.NoError(t, err)

	// The failed "first" turn must not be replayed.
	require.Len(t, gotReqs, 2)
	require.Len(t, gotReqs[1].Contents, 1)
	assert.Equal(t, "second", gotReqs[1].Contents[0].Parts[0].Text)
}

func TestGeminiMidStreamGarbageIsUnexpected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, sseChunk("par"))
		io.WriteString(w, "data: {not json\n\n")
	}))
	defer srv.Close()

	p := NewGeminiProvider("test-key", srv.URL)
	conv := p.NewConversation("", "gemini-2.5-flash")

	frags, err := conv.Send(context.Background(), "hi")
	require.NoError(t, err)
	full, err := collect(t, frags)
	require.Error(t, err)
	assert.Equal(t, "par", full)
	assert.Equal(t, transcript.ErrorKindUnexpected, ClassifyError(err))
}

func TestGeminiCloseResetsMemory(t *testing.T) {
	var gotReqs []geminiRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req geminiRequest
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &req)
		gotReqs = append(gotReqs, req)
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, sseChunk("reply"))
	}))
	defer srv.Close()

	p := NewGeminiProvider("test-key", srv.URL)
	conv := p.NewConversation("", "gemini-2.5-flash")

	frags, err := conv.Send(context.Background(), "one")
	require.NoError(t, err)
	_, err = collect(t, frags)
	require.NoError(t, err)

	conv.Close()

	frags, err = conv.Send(context.Background(), "two")
	require.NoError(t, err)
	_, err = collect(t, frags)
	require.NoError(t, err)

	require.Len(t, gotReqs, 2)
	require.Len(t, gotReqs[1].Contents, 1)
	assert.Equal(t, "two", gotReqs[1].Contents[0].Parts[0].Text)
}
