// Package transcript owns the ordered turn list for one chat session and the
// streaming-append protocol that turns a sequence of model fragments into
// exactly one finalized turn.
package transcript

import (
	"errors"
	"strings"
	"time"
)

// CursorMarker is appended to the in-progress text on every render update and
// removed when the reply is finalized.
const CursorMarker = "▌"

// Fixed reply texts used when a streaming reply fails. The raw error never
// reaches the transcript.
const (
	apiErrorText        = "Sorry, I encountered an API error and couldn't generate a response."
	unexpectedErrorText = "Sorry, something went wrong while generating a response."

	apiErrorNotice        = "API error while generating a response"
	unexpectedErrorNotice = "Unexpected error while generating a response"
)

type Speaker int

const (
	SpeakerUser Speaker = iota
	SpeakerAssistant
)

func (s Speaker) String() string {
	if s == SpeakerUser {
		return "user"
	}
	return "assistant"
}

// ErrorKind classifies a streaming failure for finalizeFailure.
type ErrorKind int

const (
	ErrorKindAPI ErrorKind = iota
	ErrorKindUnexpected
)

// Turn is one message in the conversation. Immutable once appended.
type Turn struct {
	Speaker Speaker   `json:"speaker"`
	Text    string    `json:"text"`
	At      time.Time `json:"at"`
}

// Line is one display row produced by RenderAll.
type Line struct {
	Role string    `json:"role"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// RenderHandle is the display slot for the reply currently being streamed.
// Update replaces the previously displayed text; Notice surfaces a transient
// message that is not part of the transcript.
type RenderHandle interface {
	Update(text string)
	Notice(text string)
}

// NopRenderHandle discards all render output.
type NopRenderHandle struct{}

func (NopRenderHandle) Update(string) {}
func (NopRenderHandle) Notice(string) {}

type cycleState int

const (
	stateIdle cycleState = iota
	stateUserAppended
	stateStreaming
)

var (
	ErrNoTranscript     = errors.New("transcript: session not initialized")
	ErrEmptyUserText    = errors.New("transcript: empty user text")
	ErrStreamInProgress = errors.New("transcript: a reply is already streaming")
	ErrNoPendingUser    = errors.New("transcript: no user turn awaiting a reply")
)

// Transcript is the append-only ordered turn list for one session.
type Transcript struct {
	turns []Turn
}

func (t *Transcript) append(turn Turn) {
	t.turns = append(t.turns, turn)
}

// Turns returns a snapshot copy; mid-stream callers see the transcript as it
// stood before the current cycle began.
func (t *Transcript) Turns() []Turn {
	out := make([]Turn, len(t.turns))
	copy(out, t.turns)
	return out
}

func (t *Transcript) Len() int { return len(t.turns) }

// Accumulator collects streamed fragments for the reply in progress. It is
// bound to the session that created it and to one render handle.
type Accumulator struct {
	sess      *Session
	buf       strings.Builder
	handle    RenderHandle
	finalized bool
	result    Turn
}

// Text returns the fragments accumulated so far, in arrival order.
func (a *Accumulator) Text() string { return a.buf.String() }

// Append concatenates a fragment and re-renders the in-progress text with the
// cursor marker. Fragments are applied strictly in call order.
func (a *Accumulator) Append(fragment string) {
	if a.finalized || fragment == "" {
		return
	}
	a.buf.WriteString(fragment)
	a.handle.Update(a.buf.String() + CursorMarker)
}

// FinalizeSuccess commits the accumulated text as one assistant turn, drops
// the cursor marker from the display, and returns the new turn. Calling it on
// an already finalized accumulator returns the existing turn unchanged.
func (a *Accumulator) FinalizeSuccess() Turn {
	if a.finalized {
		return a.result
	}
	text := a.buf.String()
	a.handle.Update(text)
	a.result = a.sess.finishCycle(Turn{Speaker: SpeakerAssistant, Text: text})
	a.finalized = true
	return a.result
}

// FinalizeFailure discards the partially accumulated text, surfaces a
// transient notice on the render handle, and commits a fixed-text assistant
// turn for the given kind. Exactly one assistant turn is appended per cycle
// whether the outcome was success or failure.
func (a *Accumulator) FinalizeFailure(kind ErrorKind) Turn {
	if a.finalized {
		return a.result
	}
	text := unexpectedErrorText
	notice := unexpectedErrorNotice
	if kind == ErrorKindAPI {
		text = apiErrorText
		notice = apiErrorNotice
	}
	a.handle.Notice(notice)
	a.handle.Update(text)
	a.result = a.sess.finishCycle(Turn{Speaker: SpeakerAssistant, Text: text})
	a.finalized = true
	return a.result
}
