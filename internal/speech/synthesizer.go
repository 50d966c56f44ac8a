// Package speech serializes all audible output. Exactly one clip plays at a
// time system-wide; requests queue in FIFO order, alert audio jumps the
// queue, and a stop command clears everything.
package speech

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"lcars/internal/audio"
	"lcars/internal/tts"
)

// ErrStopped is delivered to queued requests discarded by Stop.
var ErrStopped = errors.New("playback stopped")

type request struct {
	text     string
	clip     *tts.Clip // pre-rendered audio; text is ignored when set
	priority bool
	done     chan error
}

// Ducker lowers and restores other audio streams around playback. Optional.
type Ducker interface {
	Duck(ctx context.Context, factor float64) error
	Restore(ctx context.Context) error
}

// Synthesizer is the single-writer owner of the playback device. Speak and
// PlayClip block their caller until the audio has been played (or failed),
// but never block each other's enqueue: a second request simply queues.
type Synthesizer struct {
	engine tts.Engine
	player Player

	ducker     Ducker
	duckFactor float64

	mu     sync.Mutex
	queue  []*request
	wake   chan struct{}
	closed bool
}

// NewSynthesizer creates the playback actor. Call Run to start the worker.
// ducker may be nil.
func NewSynthesizer(engine tts.Engine, player Player, ducker Ducker, duckFactor float64) *Synthesizer {
	return &Synthesizer{
		engine:     engine,
		player:     player,
		ducker:     ducker,
		duckFactor: duckFactor,
		wake:       make(chan struct{}, 1),
	}
}

// Speak synthesizes text and plays it. On total synthesis failure the error
// is logged and returned; the caller decides whether silence is acceptable.
func (s *Synthesizer) Speak(ctx context.Context, text string) error {
	if text == "" {
		return nil
	}
	return s.enqueue(ctx, &request{text: text, done: make(chan error, 1)})
}

// PlayClip plays pre-rendered audio. With priority set the clip is placed at
// the head of the queue (alert audio pre-empts queued speech, but never an
// in-flight playback).
func (s *Synthesizer) PlayClip(ctx context.Context, clip tts.Clip, priority bool) error {
	c := clip
	return s.enqueue(ctx, &request{clip: &c, priority: priority, done: make(chan error, 1)})
}

// Stop discards all queued requests and halts the current playback.
func (s *Synthesizer) Stop() {
	s.mu.Lock()
	dropped := s.queue
	s.queue = nil
	s.mu.Unlock()

	for _, r := range dropped {
		r.done <- ErrStopped
	}
	s.player.Stop()
	slog.Info("playback stopped", "dropped", len(dropped))
}

// Run drains the queue until ctx is cancelled. Playback of the current clip
// is bounded by ctx as well.
func (s *Synthesizer) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			s.drain()
			return
		case <-s.wake:
		}

		for {
			r := s.pop()
			if r == nil {
				break
			}
			r.done <- s.serve(ctx, r)
		}
	}
}

func (s *Synthesizer) serve(ctx context.Context, r *request) error {
	clip := r.clip
	if clip == nil {
		c, err := s.engine.Synthesize(ctx, r.text)
		if err != nil {
			slog.Error("synthesis failed", "err", err)
			return err
		}
		clip = &c
	}

	if s.ducker != nil {
		if err := s.ducker.Duck(ctx, s.duckFactor); err != nil {
			slog.Debug("duck failed", "err", err)
		}
		defer func() {
			if err := s.ducker.Restore(context.WithoutCancel(ctx)); err != nil {
				slog.Debug("unduck failed", "err", err)
			}
		}()
	}

	if err := s.player.Play(ctx, *clip); err != nil {
		slog.Error("playback failed", "err", err)
		return err
	}
	return nil
}

func (s *Synthesizer) enqueue(ctx context.Context, r *request) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrStopped
	}
	if r.priority {
		s.queue = append([]*request{r}, s.queue...)
	} else {
		s.queue = append(s.queue, r)
	}
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}

	select {
	case err := <-r.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Synthesizer) pop() *request {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return nil
	}
	r := s.queue[0]
	s.queue = s.queue[1:]
	return r
}

func (s *Synthesizer) drain() {
	s.mu.Lock()
	s.closed = true
	dropped := s.queue
	s.queue = nil
	s.mu.Unlock()

	for _, r := range dropped {
		r.done <- ErrStopped
	}
}

var _ Ducker = (*audio.Ducker)(nil)
