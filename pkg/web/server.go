// Package web serves the single-page chat UI and streams in-progress replies
// to the browser over SSE.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nddang/gemchat/pkg/config"
	"github.com/nddang/gemchat/pkg/logger"
	"github.com/nddang/gemchat/pkg/providers"
	"github.com/nddang/gemchat/pkg/transcript"
)

const sessionCookie = "gemchat_sid"

type Server struct {
	cfg      *config.Config
	store    *transcript.Store
	provider providers.Provider
	server   *http.Server

	// login tokens, only used when auth is configured
	authSessions map[string]time.Time
	mu           sync.RWMutex
}

func NewServer(cfg *config.Config, store *transcript.Store, provider providers.Provider) *Server {
	return &Server{
		cfg:          cfg,
		store:        store,
		provider:     provider,
		authSessions: make(map[string]time.Time),
	}
}

func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.requireAuth(s.handleUI))
	mux.HandleFunc("/api/chat", s.requireAuthAPI(s.handleChat))
	mux.HandleFunc("/api/history", s.requireAuthAPI(s.handleHistory))
	mux.HandleFunc("/api/clear", s.requireAuthAPI(s.handleClear))
	mux.HandleFunc("/login", s.handleLogin)
	mux.HandleFunc("/logout", s.handleLogout)

	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	s.server = &http.Server{Addr: addr, Handler: mux}

	if s.authEnabled() {
		logger.InfoCF("web", "chat server started (auth enabled)", map[string]interface{}{"addr": addr})
	} else {
		logger.InfoCF("web", "chat server started (no auth)", map[string]interface{}{"addr": addr})
	}

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.ErrorCF("web", "chat server error", map[string]interface{}{"error": err.Error()})
		}
	}()

	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// session returns the engine session for the request's cookie, minting the
// cookie and seeding the transcript on first contact.
func (s *Server) session(w http.ResponseWriter, r *http.Request) *transcript.Session {
	sid := ""
	if cookie, err := r.Cookie(sessionCookie); err == nil && cookie.Value != "" {
		sid = cookie.Value
	}
	if sid == "" {
		sid = uuid.NewString()
		http.SetCookie(w, &http.Cookie{
			Name:     sessionCookie,
			Value:    sid,
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteStrictMode,
		})
	}
	sess := s.store.GetOrCreate(sid)
	sess.Initialize(s.cfg.Chat.WelcomeText)
	return sess
}

// conversation returns the model-side handle for the session, creating one on
// first use.
func (s *Server) conversation(sess *transcript.Session) providers.Conversation {
	if conv, ok := sess.Conversation().(providers.Conversation); ok {
		return conv
	}
	conv := s.provider.NewConversation(s.cfg.Chat.SystemPrompt, s.cfg.Chat.Model)
	sess.SetConversation(conv)
	return conv
}

type chatRequest struct {
	Message string `json:"message"`
}

type streamEvent struct {
	Text string `json:"text"`
}

// sseRenderHandle is the render surface for one in-flight reply: every Update
// replaces the browser's in-progress bubble, Notice raises a transient banner.
type sseRenderHandle struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func (h *sseRenderHandle) Update(text string) { h.event("update", text) }
func (h *sseRenderHandle) Notice(text string) { h.event("notice", text) }

func (h *sseRenderHandle) event(name, text string) {
	data, _ := json.Marshal(streamEvent{Text: text})
	fmt.Fprintf(h.w, "event: %s\ndata: %s\n\n", name, data)
	h.flusher.Flush()
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	text := strings.TrimSpace(req.Message)
	if text == "" {
		http.Error(w, "empty message", http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	sess := s.session(w, r)
	handle := &sseRenderHandle{w: w, flusher: flusher}
	acc, err := sess.BeginCycle(text, handle)
	if err != nil {
		if errors.Is(err, transcript.ErrStreamInProgress) {
			http.Error(w, "a reply is already streaming", http.StatusConflict)
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	conv := s.conversation(sess)
	frags, err := conv.Send(r.Context(), text)
	if err != nil {
		logger.WarnCF("web", "send failed", map[string]interface{}{"session": sess.ID, "error": err.Error()})
		turn := acc.FinalizeFailure(providers.ClassifyError(err))
		handle.event("error", turn.Text)
		return
	}

	for frag := range frags {
		if frag.Err != nil {
			logger.WarnCF("web", "stream failed", map[string]interface{}{"session": sess.ID, "error": frag.Err.Error()})
			turn := acc.FinalizeFailure(providers.ClassifyError(frag.Err))
			handle.event("error", turn.Text)
			return
		}
		acc.Append(frag.Text)
	}

	turn := acc.FinalizeSuccess()
	handle.event("done", turn.Text)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sess.RenderAll())
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if cookie, err := r.Cookie(sessionCookie); err == nil && cookie.Value != "" {
		s.store.Clear(cookie.Value)
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleUI(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, chatPageHTML)
}
