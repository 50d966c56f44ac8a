// Package tts provides text-to-speech engines and a failover chain across
// them: cloud primary, cloud fallback, offline last resort.
package tts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrAllEngines is returned when every engine in the chain failed.
var ErrAllEngines = errors.New("all tts engines failed")

// Clip is synthesized audio plus its container format ("mp3", "wav", "ogg").
type Clip struct {
	Audio  []byte
	Format string
}

// Engine turns text into an audio clip.
type Engine interface {
	Name() string
	Synthesize(ctx context.Context, text string) (Clip, error)
}

// Chain tries each engine in order with a per-engine timeout. A failed
// engine is logged and the next one tried on the same request; there is no
// trip state, one local user does not generate the call volume that would
// justify a breaker.
type Chain struct {
	engines []Engine
	timeout time.Duration
}

// NewChain builds a chain over the given engines, first is primary.
func NewChain(timeout time.Duration, engines ...Engine) *Chain {
	return &Chain{engines: engines, timeout: timeout}
}

func (c *Chain) Name() string { return "chain" }

// Synthesize returns the first successful engine's clip, or ErrAllEngines
// wrapped with the last failure.
func (c *Chain) Synthesize(ctx context.Context, text string) (Clip, error) {
	var lastErr error
	for _, e := range c.engines {
		ectx, cancel := context.WithTimeout(ctx, c.timeout)
		clip, err := e.Synthesize(ectx, text)
		cancel()
		if err == nil {
			return clip, nil
		}
		lastErr = err
		slog.Warn("tts engine failed, trying next", "engine", e.Name(), "err", err)
	}
	return Clip{}, fmt.Errorf("%w: %v", ErrAllEngines, lastErr)
}
