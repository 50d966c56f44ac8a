package tts

import (
	"context"
	"errors"
	"testing"
	"time"
)

type stubEngine struct {
	name  string
	fail  bool
	calls int
}

func (e *stubEngine) Name() string { return e.name }
func (e *stubEngine) Synthesize(ctx context.Context, text string) (Clip, error) {
	e.calls++
	if e.fail {
		return Clip{}, errors.New(e.name + " down")
	}
	return Clip{Audio: []byte(e.name), Format: "mp3"}, nil
}

func TestChainUsesPrimary(t *testing.T) {
	primary := &stubEngine{name: "primary"}
	fallback := &stubEngine{name: "fallback"}
	c := NewChain(time.Second, primary, fallback)

	clip, err := c.Synthesize(context.Background(), "hail")
	if err != nil {
		t.Fatal(err)
	}
	if string(clip.Audio) != "primary" {
		t.Fatalf("expected primary clip, got %q", clip.Audio)
	}
	if fallback.calls != 0 {
		t.Fatal("fallback must not be called when primary succeeds")
	}
}

func TestChainFailsOver(t *testing.T) {
	primary := &stubEngine{name: "primary", fail: true}
	fallback := &stubEngine{name: "fallback"}
	c := NewChain(time.Second, primary, fallback)

	clip, err := c.Synthesize(context.Background(), "hail")
	if err != nil {
		t.Fatal(err)
	}
	if string(clip.Audio) != "fallback" {
		t.Fatalf("expected fallback clip, got %q", clip.Audio)
	}
	if primary.calls != 1 {
		t.Fatalf("primary must be tried first, calls=%d", primary.calls)
	}
}

func TestChainAllEnginesFail(t *testing.T) {
	c := NewChain(time.Second,
		&stubEngine{name: "a", fail: true},
		&stubEngine{name: "b", fail: true})

	_, err := c.Synthesize(context.Background(), "hail")
	if !errors.Is(err, ErrAllEngines) {
		t.Fatalf("expected ErrAllEngines, got %v", err)
	}
}
