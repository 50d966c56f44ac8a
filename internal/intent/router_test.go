package intent

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"

	"lcars/internal/memory"
)

type fakeClassifier struct {
	calls int
	out   Intent
	err   error
}

func (c *fakeClassifier) Classify(ctx context.Context, text string, turns []memory.Turn) (Intent, error) {
	c.calls++
	return c.out, c.err
}

type fakeSpeaker struct {
	spoken  []string
	stopped int
}

func (s *fakeSpeaker) Speak(ctx context.Context, text string) error {
	s.spoken = append(s.spoken, text)
	return nil
}
func (s *fakeSpeaker) Stop() { s.stopped++ }

type fakeAlert struct {
	triggered int
	err       error
}

func (a *fakeAlert) Trigger(ctx context.Context) error {
	a.triggered++
	return a.err
}

type fakeCommander struct {
	got Intent
	ack string
	err error
}

func (c *fakeCommander) Execute(ctx context.Context, it Intent) (string, error) {
	c.got = it
	return c.ack, c.err
}

func newTestRouter(t *testing.T, cl Classifier, sp Speaker, al AlertTrigger, cmd DeviceCommander) (*Router, *memory.Memory) {
	t.Helper()
	mem, err := memory.New(afero.NewMemMapFs(), "history.jsonl", 50)
	if err != nil {
		t.Fatal(err)
	}
	commanders := map[Category]DeviceCommander{}
	if cmd != nil {
		commanders[HomeAutomation] = cmd
	}
	r := NewRouter(RouterConfig{
		Classifier:   cl,
		Memory:       mem,
		Speaker:      sp,
		Alert:        al,
		Commanders:   commanders,
		ContextTurns: 10,
		CallTimeout:  time.Second,
	})
	return r, mem
}

func TestHandleHomeAutomation(t *testing.T) {
	cl := &fakeClassifier{out: Intent{
		Category:   HomeAutomation,
		Parameters: map[string]string{"device": "desk lamp", "action": "on"},
		Confidence: 0.95,
	}}
	sp := &fakeSpeaker{}
	cmd := &fakeCommander{ack: "desk lamp is on"}
	r, mem := newTestRouter(t, cl, sp, &fakeAlert{}, cmd)

	r.Handle(context.Background(), "turn on the desk lamp")

	if cmd.got.Parameters["device"] != "desk lamp" {
		t.Fatalf("commander got %+v", cmd.got)
	}
	if len(sp.spoken) != 1 || sp.spoken[0] != "desk lamp is on" {
		t.Fatalf("spoken %v", sp.spoken)
	}

	turns := mem.Snapshot()
	if len(turns) != 2 {
		t.Fatalf("expected 2 recorded turns, got %d", len(turns))
	}
	if turns[0].Role != memory.RoleUser || turns[0].Intent != string(HomeAutomation) {
		t.Fatalf("user turn %+v", turns[0])
	}
	if turns[1].Role != memory.RoleSystem || turns[1].Text != "desk lamp is on" {
		t.Fatalf("system turn %+v", turns[1])
	}
}

func TestHandleClassifierFailureSpeaksFallback(t *testing.T) {
	cl := &fakeClassifier{err: errors.New("api down")}
	sp := &fakeSpeaker{}
	r, _ := newTestRouter(t, cl, sp, &fakeAlert{}, nil)

	r.Handle(context.Background(), "do the thing")

	if len(sp.spoken) != 1 {
		t.Fatalf("expected one spoken fallback, got %v", sp.spoken)
	}
	if !strings.Contains(sp.spoken[0], "repeat") {
		t.Fatalf("unexpected fallback text %q", sp.spoken[0])
	}
}

func TestHandleCommandFailureSpeaksNotice(t *testing.T) {
	cl := &fakeClassifier{out: Intent{
		Category:   HomeAutomation,
		Parameters: map[string]string{"device": "airlock", "action": "on"},
	}}
	sp := &fakeSpeaker{}
	cmd := &fakeCommander{err: errors.New("no such accessory")}
	r, _ := newTestRouter(t, cl, sp, &fakeAlert{}, cmd)

	r.Handle(context.Background(), "open the airlock")

	if len(sp.spoken) != 1 || !strings.Contains(sp.spoken[0], "unable") {
		t.Fatalf("spoken %v", sp.spoken)
	}
}

func TestHandleStopIntercept(t *testing.T) {
	cl := &fakeClassifier{}
	sp := &fakeSpeaker{}
	r, _ := newTestRouter(t, cl, sp, &fakeAlert{}, nil)

	r.Handle(context.Background(), "Stop!")

	if sp.stopped != 1 {
		t.Fatalf("expected playback stop, got %d", sp.stopped)
	}
	if cl.calls != 0 {
		t.Fatal("stop must not reach the classifier")
	}
	if len(sp.spoken) != 0 {
		t.Fatalf("stop must be silent, spoke %v", sp.spoken)
	}
}

func TestHandleStatusIntercept(t *testing.T) {
	cl := &fakeClassifier{}
	sp := &fakeSpeaker{}
	r, _ := newTestRouter(t, cl, sp, &fakeAlert{}, nil)

	r.Handle(context.Background(), "status report")

	if cl.calls != 0 {
		t.Fatal("status must not reach the classifier")
	}
	if len(sp.spoken) != 1 || !strings.Contains(sp.spoken[0], "nominal") {
		t.Fatalf("spoken %v", sp.spoken)
	}
}

func TestHandleAlert(t *testing.T) {
	cl := &fakeClassifier{out: Intent{Category: Alert, Parameters: map[string]string{}}}
	sp := &fakeSpeaker{}
	al := &fakeAlert{}
	r, _ := newTestRouter(t, cl, sp, al, nil)

	r.Handle(context.Background(), "red alert")
	if al.triggered != 1 {
		t.Fatalf("trigger count %d", al.triggered)
	}
	if len(sp.spoken) != 1 || !strings.Contains(sp.spoken[0], "battle stations") {
		t.Fatalf("spoken %v", sp.spoken)
	}

	// A second trigger mid-alert gets the in-progress notice.
	al.err = errors.New("already active")
	r.Handle(context.Background(), "red alert")
	if len(sp.spoken) != 2 || !strings.Contains(sp.spoken[1], "in progress") {
		t.Fatalf("spoken %v", sp.spoken)
	}
}
