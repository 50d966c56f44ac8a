package wake

import (
	"testing"
	"time"
)

type fakeSession struct {
	until time.Time
}

func (s *fakeSession) OpenSession(until time.Time) { s.until = until }
func (s *fakeSession) CloseSession()               { s.until = time.Time{} }
func (s *fakeSession) SessionOpenAt(now time.Time) bool {
	return now.Before(s.until)
}

func newTestGate(t *testing.T) (*Gate, *fakeSession, *time.Time) {
	t.Helper()
	sess := &fakeSession{}
	g := New("computer", 8*time.Second, 5*time.Second, sess)
	now := time.Date(2263, 4, 5, 12, 0, 0, 0, time.UTC)
	g.SetClock(func() time.Time { return now })
	return g, sess, &now
}

func TestAdmitRequiresWakePhrase(t *testing.T) {
	g, _, _ := newTestGate(t)

	if _, d := g.Admit("turn on the lights"); d != Ignore {
		t.Fatalf("expected Ignore without wake phrase, got %v", d)
	}

	cmd, d := g.Admit("computer, turn on the lights")
	if d != Command {
		t.Fatalf("expected Command, got %v", d)
	}
	if cmd != "turn on the lights" {
		t.Fatalf("unexpected command text: %q", cmd)
	}
}

func TestAdmitWakePhraseMidSentence(t *testing.T) {
	g, _, _ := newTestGate(t)

	cmd, d := g.Admit("hey computer what time is it")
	if d != Command {
		t.Fatalf("expected Command, got %v", d)
	}
	if cmd != "what time is it" {
		t.Fatalf("unexpected command text: %q", cmd)
	}
}

func TestAdmitWordBoundary(t *testing.T) {
	g, _, _ := newTestGate(t)

	if _, d := g.Admit("computerized systems are down"); d != Ignore {
		t.Fatalf("prefix match must not trigger, got %v", d)
	}
	if _, d := g.Admit("the supercomputer hums"); d != Ignore {
		t.Fatalf("suffix match must not trigger, got %v", d)
	}
}

func TestBareWakePhraseAcks(t *testing.T) {
	g, sess, now := newTestGate(t)

	_, d := g.Admit("computer")
	if d != Ack {
		t.Fatalf("expected Ack, got %v", d)
	}
	if !sess.SessionOpenAt(*now) {
		t.Fatal("ack must open the immediate-follow window")
	}

	// Command without the phrase inside the ack window.
	cmd, d := g.Admit("dim the lights")
	if d != Command || cmd != "dim the lights" {
		t.Fatalf("expected follow-up command, got %v %q", d, cmd)
	}
}

func TestFollowUpWindowBoundary(t *testing.T) {
	g, _, now := newTestGate(t)

	if _, d := g.Admit("computer status report"); d != Command {
		t.Fatalf("expected Command, got %v", d)
	}
	g.Completed()

	// One millisecond before expiry: still open.
	*now = now.Add(8*time.Second - time.Millisecond)
	if _, d := g.Admit("and the engines"); d != Command {
		t.Fatalf("window should still be open, got %v", d)
	}
	g.Completed()

	// At expiry: closed, phrase required again.
	*now = now.Add(8 * time.Second)
	if _, d := g.Admit("and the shields"); d != Ignore {
		t.Fatalf("window should be closed, got %v", d)
	}
}

func TestFirstPhraseOccurrenceWins(t *testing.T) {
	g, _, _ := newTestGate(t)

	cmd, d := g.Admit("computer tell the computer to stop")
	if d != Command {
		t.Fatalf("expected Command, got %v", d)
	}
	if cmd != "tell the computer to stop" {
		t.Fatalf("unexpected command text: %q", cmd)
	}
}
