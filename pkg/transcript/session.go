package transcript

import (
	"sync"
	"time"
)

// Session holds one user's transcript, streaming-cycle state, and the
// conversation handle the model client keeps for it. All methods are safe for
// concurrent use, but the engine admits only one streaming cycle at a time;
// callers that want a second concurrent reply get ErrStreamInProgress.
type Session struct {
	ID string

	mu         sync.Mutex
	transcript *Transcript
	state      cycleState
	acc        *Accumulator
	conv       interface{ Close() }
	lastSeen   time.Time
	clock      func() time.Time
}

func NewSession(id string) *Session {
	return &Session{ID: id, clock: time.Now, lastSeen: time.Now()}
}

func (s *Session) touchLocked() { s.lastSeen = s.clock() }

// Initialize creates the transcript if the session has none, seeding it with
// one assistant welcome turn when welcome is non-empty. Repeated calls on an
// initialized session are no-ops.
func (s *Session) Initialize(welcome string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchLocked()
	if s.transcript != nil {
		return
	}
	s.transcript = &Transcript{}
	if welcome != "" {
		s.transcript.append(Turn{Speaker: SpeakerAssistant, Text: welcome, At: s.clock()})
	}
}

// AppendUserTurn appends a user turn. Text presence is the caller's problem;
// the engine only rejects the degenerate empty string and out-of-order calls.
func (s *Session) AppendUserTurn(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendUserLocked(text)
}

func (s *Session) appendUserLocked(text string) error {
	s.touchLocked()
	if s.transcript == nil {
		return ErrNoTranscript
	}
	if s.state == stateStreaming {
		return ErrStreamInProgress
	}
	if text == "" {
		return ErrEmptyUserText
	}
	s.transcript.append(Turn{Speaker: SpeakerUser, Text: text, At: s.clock()})
	s.state = stateUserAppended
	return nil
}

// BeginStreamingReply starts the streaming phase of the current cycle and
// returns a fresh accumulator bound to the given render handle. It fails when
// no user turn is awaiting a reply or a stream is already in progress.
func (s *Session) BeginStreamingReply(h RenderHandle) (*Accumulator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.beginStreamingLocked(h)
}

func (s *Session) beginStreamingLocked(h RenderHandle) (*Accumulator, error) {
	s.touchLocked()
	if s.transcript == nil {
		return nil, ErrNoTranscript
	}
	switch s.state {
	case stateStreaming:
		return nil, ErrStreamInProgress
	case stateIdle:
		return nil, ErrNoPendingUser
	}
	if h == nil {
		h = NopRenderHandle{}
	}
	s.acc = &Accumulator{sess: s, handle: h}
	s.state = stateStreaming
	return s.acc, nil
}

// BeginCycle appends the user turn and enters the streaming phase as one
// atomic step. A competing submission is rejected whole: either both the
// user turn and its streaming cycle are committed, or neither is, so no user
// turn can ever be left dangling without an assistant reply.
func (s *Session) BeginCycle(text string, h RenderHandle) (*Accumulator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.appendUserLocked(text); err != nil {
		return nil, err
	}
	return s.beginStreamingLocked(h)
}

// finishCycle commits the terminal assistant turn and returns the session to
// idle. Called exactly once per cycle by the accumulator.
func (s *Session) finishCycle(turn Turn) Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchLocked()
	turn.At = s.clock()
	s.transcript.append(turn)
	s.state = stateIdle
	s.acc = nil
	return turn
}

// Turns returns a snapshot of the transcript. Between BeginStreamingReply and
// the matching finalize it reflects the transcript as it stood before the
// cycle began, never a partial reply.
func (s *Session) Turns() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.transcript == nil {
		return nil
	}
	return s.transcript.Turns()
}

// RenderAll maps the transcript to display lines in order. Pure read.
func (s *Session) RenderAll() []Line {
	turns := s.Turns()
	lines := make([]Line, 0, len(turns))
	for _, t := range turns {
		lines = append(lines, Line{Role: t.Speaker.String(), Text: t.Text, At: t.At})
	}
	return lines
}

// Streaming reports whether a reply cycle is currently between
// BeginStreamingReply and its finalize call.
func (s *Session) Streaming() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == stateStreaming
}

// SetConversation attaches the model-side conversation handle for the
// session's lifetime. Clear closes and drops it.
func (s *Session) SetConversation(c interface{ Close() }) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conv = c
}

func (s *Session) Conversation() interface{ Close() } {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conv
}

// Clear discards the transcript, any in-progress accumulator, and the
// conversation handle. A later Initialize behaves as a fresh session.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchLocked()
	if s.acc != nil {
		s.acc.finalized = true
		s.acc = nil
	}
	if s.conv != nil {
		s.conv.Close()
		s.conv = nil
	}
	s.transcript = nil
	s.state = stateIdle
}

// LastSeen returns the time of the session's most recent engine operation.
func (s *Session) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}
