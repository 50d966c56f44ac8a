package pipeline

import (
	"context"
	"testing"
	"time"

	"lcars/internal/stt"
	"lcars/internal/tts"
	"lcars/internal/wake"
)

type fakeSession struct {
	until time.Time
}

func (s *fakeSession) OpenSession(until time.Time)      { s.until = until }
func (s *fakeSession) CloseSession()                    { s.until = time.Time{} }
func (s *fakeSession) SessionOpenAt(now time.Time) bool { return now.Before(s.until) }

type fakeSpeaker struct {
	spoken []string
	clips  []tts.Clip
}

func (s *fakeSpeaker) Speak(ctx context.Context, text string) error {
	s.spoken = append(s.spoken, text)
	return nil
}

func (s *fakeSpeaker) PlayClip(ctx context.Context, clip tts.Clip, priority bool) error {
	s.clips = append(s.clips, clip)
	return nil
}

type fakeHandler struct {
	handled []string
}

func (h *fakeHandler) Handle(ctx context.Context, text string) {
	h.handled = append(h.handled, text)
}

func runPipeline(t *testing.T, cfg Config, trs ...stt.Transcript) {
	t.Helper()
	in := make(chan stt.Transcript, len(trs))
	for _, tr := range trs {
		in <- tr
	}
	close(in)
	New(cfg).Run(context.Background(), in)
}

func testConfig() (Config, *fakeSpeaker, *fakeHandler, *fakeSession) {
	sess := &fakeSession{}
	sp := &fakeSpeaker{}
	h := &fakeHandler{}
	cfg := Config{
		Gate:    wake.New("computer", 8*time.Second, 5*time.Second, sess),
		Router:  h,
		Speaker: sp,
	}
	return cfg, sp, h, sess
}

func TestAmbientSpeechIgnored(t *testing.T) {
	cfg, sp, h, _ := testConfig()

	runPipeline(t, cfg, stt.Transcript{Seq: 1, Text: "the warp core hums quietly"})

	if len(h.handled) != 0 {
		t.Fatalf("ambient speech was dispatched: %v", h.handled)
	}
	if len(sp.spoken) != 0 {
		t.Fatalf("ambient speech was answered: %v", sp.spoken)
	}
}

func TestWakeCommandDispatched(t *testing.T) {
	cfg, _, h, sess := testConfig()

	runPipeline(t, cfg, stt.Transcript{Seq: 1, Text: "computer turn on the lights"})

	if len(h.handled) != 1 || h.handled[0] != "turn on the lights" {
		t.Fatalf("handled %v", h.handled)
	}
	// A completed turn opens the follow-up window.
	if !sess.SessionOpenAt(time.Now()) {
		t.Fatal("follow-up window must be open after a completed turn")
	}
}

func TestFollowUpSkipsWakePhrase(t *testing.T) {
	cfg, _, h, _ := testConfig()

	runPipeline(t, cfg,
		stt.Transcript{Seq: 1, Text: "computer turn on the lights"},
		stt.Transcript{Seq: 2, Text: "and dim them a little"},
	)

	if len(h.handled) != 2 {
		t.Fatalf("handled %v", h.handled)
	}
	if h.handled[1] != "and dim them a little" {
		t.Fatalf("follow-up text %q", h.handled[1])
	}
}

func TestBareWakePhraseSpeaksAck(t *testing.T) {
	cfg, sp, h, _ := testConfig()

	runPipeline(t, cfg, stt.Transcript{Seq: 1, Text: "computer"})

	if len(h.handled) != 0 {
		t.Fatalf("bare wake phrase must not dispatch, got %v", h.handled)
	}
	if len(sp.spoken) != 1 || sp.spoken[0] != "Yes?" {
		t.Fatalf("spoken %v", sp.spoken)
	}
}

func TestBareWakePhrasePlaysChime(t *testing.T) {
	cfg, sp, _, _ := testConfig()
	cfg.AckClip = &tts.Clip{Audio: []byte("chime"), Format: "wav"}

	runPipeline(t, cfg, stt.Transcript{Seq: 1, Text: "computer"})

	if len(sp.spoken) != 0 {
		t.Fatalf("chime configured but text spoken: %v", sp.spoken)
	}
	if len(sp.clips) != 1 || string(sp.clips[0].Audio) != "chime" {
		t.Fatalf("clips %v", sp.clips)
	}
}

func TestFailedTranscriptApologizes(t *testing.T) {
	cfg, sp, h, _ := testConfig()

	runPipeline(t, cfg, stt.Transcript{Seq: 1, Failed: true})

	if len(h.handled) != 0 {
		t.Fatalf("failure marker must not dispatch, got %v", h.handled)
	}
	if len(sp.spoken) != 1 || sp.spoken[0] != apologyText {
		t.Fatalf("spoken %v", sp.spoken)
	}
}
