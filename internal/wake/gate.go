// Package wake decides whether a transcript opens an interaction, continues
// one, or is ambient speech to be ignored.
package wake

import (
	"strings"
	"time"
	"unicode"
)

// Decision is the gate's verdict on one transcript.
type Decision int

const (
	// Ignore: no open session and no wake phrase; not directed at us.
	Ignore Decision = iota
	// Ack: the wake phrase arrived with no command; acknowledge and hold a
	// short window for the actual command.
	Ack
	// Command: command text follows; dispatch it.
	Command
)

// Session is the slice of ConversationMemory the gate needs. The memory owns
// the open-session flag and its absolute expiry; the gate only reads and
// rearms it.
type Session interface {
	OpenSession(until time.Time)
	CloseSession()
	SessionOpenAt(now time.Time) bool
}

// Gate gates utterances on the wake phrase and manages the follow-up window.
// The deadline is an absolute timestamp recomputed on every completed turn,
// so it stays correct regardless of processing delays.
type Gate struct {
	phrase    string
	window    time.Duration // follow-up window after a completed turn
	ackWindow time.Duration // immediate-follow window after a bare wake phrase
	session   Session
	now       func() time.Time
}

// New creates a gate for the given wake phrase (matched case-insensitively).
func New(phrase string, window, ackWindow time.Duration, session Session) *Gate {
	return &Gate{
		phrase:    strings.ToLower(strings.TrimSpace(phrase)),
		window:    window,
		ackWindow: ackWindow,
		session:   session,
		now:       time.Now,
	}
}

// SetClock overrides the wall clock. Tests only.
func (g *Gate) SetClock(now func() time.Time) { g.now = now }

// Admit inspects a transcript and returns the command text plus a decision.
//
// With no session open the transcript must contain the wake phrase; the first
// occurrence is authoritative and everything after it is the command. With a
// session open the phrase is optional and the whole transcript is command
// text. Expired sessions are closed on the way through.
func (g *Gate) Admit(text string) (string, Decision) {
	now := g.now()
	open := g.session.SessionOpenAt(now)
	if !open {
		g.session.CloseSession()
	}

	cmd, found := g.split(text)
	if !open && !found {
		return "", Ignore
	}
	if !found {
		cmd = strings.TrimSpace(text)
	}

	if cmd == "" {
		g.session.OpenSession(now.Add(g.ackWindow))
		return "", Ack
	}
	return cmd, Command
}

// Completed rearms the follow-up window after a successfully dispatched turn.
func (g *Gate) Completed() {
	g.session.OpenSession(g.now().Add(g.window))
}

// split finds the wake phrase and returns the text after it. Word boundaries
// are respected so "computerized" does not trigger.
func (g *Gate) split(text string) (string, bool) {
	lower := strings.ToLower(text)
	for i := 0; i+len(g.phrase) <= len(lower); i++ {
		if lower[i:i+len(g.phrase)] != g.phrase {
			continue
		}
		if i > 0 && isWord(rune(lower[i-1])) {
			continue
		}
		end := i + len(g.phrase)
		if end < len(lower) && isWord(rune(lower[end])) {
			continue
		}
		return trimLead(text[end:]), true
	}
	return "", false
}

func isWord(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// trimLead drops leading punctuation and spaces left over from the split.
func trimLead(s string) string {
	return strings.TrimLeft(s, " \t,.:;!?-")
}
