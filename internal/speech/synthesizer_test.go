package speech

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"lcars/internal/tts"
)

type echoEngine struct{}

func (echoEngine) Name() string { return "echo" }
func (echoEngine) Synthesize(ctx context.Context, text string) (tts.Clip, error) {
	return tts.Clip{Audio: []byte(text), Format: "mp3"}, nil
}

type fakePlayer struct {
	mu        sync.Mutex
	played    []string
	intervals [][2]time.Time
	delay     time.Duration
	gate      chan struct{} // when non-nil, each Play waits for one tick
	entered   chan struct{} // when non-nil, signalled on each Play entry
}

func (p *fakePlayer) Play(ctx context.Context, clip tts.Clip) error {
	start := time.Now()
	if p.entered != nil {
		p.entered <- struct{}{}
	}
	if p.gate != nil {
		<-p.gate
	}
	if p.delay > 0 {
		time.Sleep(p.delay)
	}
	p.mu.Lock()
	p.played = append(p.played, string(clip.Audio))
	p.intervals = append(p.intervals, [2]time.Time{start, time.Now()})
	p.mu.Unlock()
	return nil
}

func (p *fakePlayer) Stop() {}

func (p *fakePlayer) labels() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.played...)
}

func (s *Synthesizer) queueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestSpeakNeverOverlaps(t *testing.T) {
	player := &fakePlayer{delay: 5 * time.Millisecond}
	s := NewSynthesizer(echoEngine{}, player, nil, 0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.Speak(context.Background(), "hail"); err != nil {
				t.Errorf("speak: %v", err)
			}
		}()
	}
	wg.Wait()

	player.mu.Lock()
	defer player.mu.Unlock()
	if len(player.intervals) != 8 {
		t.Fatalf("expected 8 playbacks, got %d", len(player.intervals))
	}
	ivs := append([][2]time.Time(nil), player.intervals...)
	sort.Slice(ivs, func(i, j int) bool { return ivs[i][0].Before(ivs[j][0]) })
	for i := 1; i < len(ivs); i++ {
		if ivs[i][0].Before(ivs[i-1][1]) {
			t.Fatalf("playback %d started before %d finished", i, i-1)
		}
	}
}

func TestPriorityClipJumpsQueue(t *testing.T) {
	player := &fakePlayer{gate: make(chan struct{}), entered: make(chan struct{}, 4)}
	s := NewSynthesizer(echoEngine{}, player, nil, 0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	done := make(chan struct{}, 3)
	go func() { s.Speak(context.Background(), "first"); done <- struct{}{} }()
	// Wait for "first" to occupy the player before queueing the rest.
	<-player.entered

	go func() { s.Speak(context.Background(), "second"); done <- struct{}{} }()
	waitFor(t, func() bool { return s.queueLen() == 1 })

	go func() {
		s.PlayClip(context.Background(), tts.Clip{Audio: []byte("alert"), Format: "mp3"}, true)
		done <- struct{}{}
	}()
	waitFor(t, func() bool { return s.queueLen() == 2 })

	for i := 0; i < 3; i++ {
		player.gate <- struct{}{}
	}
	for i := 0; i < 3; i++ {
		<-done
	}

	got := player.labels()
	want := []string{"first", "alert", "second"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("play order %v, want %v", got, want)
		}
	}
}

func TestStopClearsQueue(t *testing.T) {
	player := &fakePlayer{gate: make(chan struct{}), entered: make(chan struct{}, 4)}
	s := NewSynthesizer(echoEngine{}, player, nil, 0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	first := make(chan error, 1)
	go func() { first <- s.Speak(context.Background(), "first") }()
	<-player.entered

	second := make(chan error, 1)
	go func() { second <- s.Speak(context.Background(), "second") }()
	waitFor(t, func() bool { return s.queueLen() == 1 })

	s.Stop()

	if err := <-second; !errors.Is(err, ErrStopped) {
		t.Fatalf("queued request must get ErrStopped, got %v", err)
	}

	player.gate <- struct{}{}
	if err := <-first; err != nil {
		t.Fatalf("in-flight request: %v", err)
	}

	if got := player.labels(); len(got) != 1 || got[0] != "first" {
		t.Fatalf("only the in-flight clip should play, got %v", got)
	}
}
