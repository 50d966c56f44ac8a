package speech

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"
	"github.com/faiface/beep/vorbis"
	"github.com/faiface/beep/wav"

	"lcars/internal/tts"
)

// Player renders one clip at a time on the output device.
type Player interface {
	// Play blocks until the clip finishes, is stopped, or ctx is cancelled.
	Play(ctx context.Context, clip tts.Clip) error
	// Stop aborts the current playback, if any.
	Stop()
}

// BeepPlayer plays clips through the beep speaker. The speaker is initialized
// once at a fixed rate; clips at other rates are resampled on the fly.
type BeepPlayer struct {
	rate beep.SampleRate

	initOnce sync.Once
	initErr  error

	mu   sync.Mutex
	stop chan struct{}
}

// NewBeepPlayer creates a player with the given output sample rate.
func NewBeepPlayer(sampleRate int) *BeepPlayer {
	return &BeepPlayer{rate: beep.SampleRate(sampleRate)}
}

func (p *BeepPlayer) init() error {
	p.initOnce.Do(func() {
		p.initErr = speaker.Init(p.rate, p.rate.N(100*time.Millisecond))
	})
	return p.initErr
}

func (p *BeepPlayer) Play(ctx context.Context, clip tts.Clip) error {
	if err := p.init(); err != nil {
		return fmt.Errorf("init speaker: %w", err)
	}

	streamer, format, err := decode(clip)
	if err != nil {
		return err
	}
	defer streamer.Close()

	var s beep.Streamer = streamer
	if format.SampleRate != p.rate {
		s = beep.Resample(4, format.SampleRate, p.rate, streamer)
	}

	p.mu.Lock()
	p.stop = make(chan struct{})
	stop := p.stop
	p.mu.Unlock()

	done := make(chan struct{})
	speaker.Play(beep.Seq(s, beep.Callback(func() {
		close(done)
	})))

	select {
	case <-done:
		return nil
	case <-stop:
		speaker.Clear()
		return nil
	case <-ctx.Done():
		speaker.Clear()
		return ctx.Err()
	}
}

func (p *BeepPlayer) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stop != nil {
		close(p.stop)
		p.stop = nil
	}
}

func decode(clip tts.Clip) (beep.StreamSeekCloser, beep.Format, error) {
	rc := io.NopCloser(bytes.NewReader(clip.Audio))
	switch clip.Format {
	case "mp3":
		return mp3.Decode(rc)
	case "wav":
		return wav.Decode(rc)
	case "ogg":
		return vorbis.Decode(rc)
	default:
		return nil, beep.Format{}, fmt.Errorf("unsupported clip format %q", clip.Format)
	}
}
