// Package alert implements the red-alert protocol: an alert tone and a
// lighting change fired in tight synchrony, held for a fixed duration, then
// reverted. One instance exists process-wide.
package alert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"lcars/internal/tts"
)

// State of the protocol. Transitions are monotonic within one activation and
// always come back around to Idle, even on partial failure.
type State int

const (
	Idle State = iota
	SoundTriggered
	LightingTriggered
	Active
	Cooling
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case SoundTriggered:
		return "sound-triggered"
	case LightingTriggered:
		return "lighting-triggered"
	case Active:
		return "active"
	case Cooling:
		return "cooling"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ErrAlreadyActive is returned when a trigger arrives mid-alert.
var ErrAlreadyActive = errors.New("alert already active")

// LightState is the externally visible lamp state.
type LightState struct {
	On         bool
	Hue        int
	Saturation int
	Brightness int
}

// RedAlert is the lighting state requested during an alert.
var RedAlert = LightState{On: true, Hue: 0, Saturation: 100, Brightness: 100}

// Lighting is the external lighting capability.
type Lighting interface {
	State(ctx context.Context) (LightState, error)
	Set(ctx context.Context, state LightState) error
}

// Sound claims the playback slot for the alert tone. Implemented by the
// response synthesizer; priority puts the tone ahead of queued speech.
type Sound interface {
	PlayClip(ctx context.Context, clip tts.Clip, priority bool) error
}

// Config bounds every phase of the protocol.
type Config struct {
	ActiveDuration time.Duration // how long the alert is held
	LightingWait   time.Duration // max wait for the lighting acknowledgment
	CoolingTimeout time.Duration // max wait for the lighting reversion
}

// Protocol is the alert state machine. Trigger starts an activation and
// returns immediately; the machine runs on its own goroutine and is
// guaranteed to reach Idle within ActiveDuration + LightingWait +
// CoolingTimeout plus scheduling slack.
type Protocol struct {
	cfg    Config
	sound  Sound
	lights Lighting
	tone   tts.Clip

	mu    sync.Mutex
	state State

	// onTransition observes state changes. Tests only; may be nil.
	onTransition func(State)
}

func New(cfg Config, sound Sound, lights Lighting, tone tts.Clip) *Protocol {
	return &Protocol{cfg: cfg, sound: sound, lights: lights, tone: tone}
}

// State returns the current protocol state.
func (p *Protocol) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// SetObserver registers a transition hook. Tests only.
func (p *Protocol) SetObserver(fn func(State)) { p.onTransition = fn }

// Trigger begins an activation. Returns ErrAlreadyActive if one is running.
func (p *Protocol) Trigger(ctx context.Context) error {
	p.mu.Lock()
	if p.state != Idle {
		p.mu.Unlock()
		return ErrAlreadyActive
	}
	p.state = SoundTriggered
	p.mu.Unlock()
	p.observe(SoundTriggered)

	slog.Info("red alert initiated")
	go p.run(ctx)
	return nil
}

func (p *Protocol) run(ctx context.Context) {
	// Whatever happens below, the machine ends Idle.
	defer func() {
		p.transition(Idle)
		slog.Info("red alert complete")
	}()

	// Capture the prior lamp state so Cooling can revert. A failed read
	// degrades to reverting to off.
	prior := LightState{}
	func() {
		c, cancel := boundedCtx(ctx, p.cfg.LightingWait)
		defer cancel()
		if st, err := p.lights.State(c); err != nil {
			slog.Warn("could not read prior lighting state", "err", err)
		} else {
			prior = st
		}
	}()

	// Sound and lighting are issued concurrently; lighting must not wait
	// for audio to finish.
	soundDone := make(chan error, 1)
	go func() {
		soundDone <- p.sound.PlayClip(ctx, p.tone, true)
	}()

	lightAck := make(chan error, 1)
	go func() {
		c, cancel := boundedCtx(ctx, p.cfg.LightingWait)
		defer cancel()
		lightAck <- p.lights.Set(c, RedAlert)
	}()
	p.transition(LightingTriggered)

	// Join: lighting ack (or its bounded timeout) gates Active. The tone
	// keeps playing into the active phase.
	select {
	case err := <-lightAck:
		if err != nil {
			slog.Warn("alert lighting failed", "err", err)
		}
	case <-time.After(p.cfg.LightingWait):
		slog.Warn("alert lighting did not acknowledge in time")
	}
	p.transition(Active)

	select {
	case <-time.After(p.cfg.ActiveDuration):
	case <-ctx.Done():
	}

	p.transition(Cooling)
	revert := make(chan error, 1)
	go func() {
		c, cancel := boundedCtx(ctx, p.cfg.CoolingTimeout)
		defer cancel()
		revert <- p.lights.Set(c, prior)
	}()
	select {
	case err := <-revert:
		if err != nil {
			slog.Warn("lighting reversion failed", "err", err)
		}
	case <-time.After(p.cfg.CoolingTimeout):
		slog.Warn("lighting reversion timed out")
	}

	select {
	case err := <-soundDone:
		if err != nil {
			slog.Warn("alert tone playback failed", "err", err)
		}
	default:
		// Tone still playing; it holds the playback slot, not the machine.
	}
}

func (p *Protocol) transition(to State) {
	p.mu.Lock()
	from := p.state
	p.state = to
	p.mu.Unlock()

	slog.Debug("alert transition", "from", from.String(), "to", to.String())
	p.observe(to)
}

func (p *Protocol) observe(s State) {
	if p.onTransition != nil {
		p.onTransition(s)
	}
}

// boundedCtx derives a deadline context that survives parent cancellation
// during shutdown just long enough to revert the lights.
func boundedCtx(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), d)
}
