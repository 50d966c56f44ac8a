package audio

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gordonklaus/portaudio"
)

// Source continuously samples the default input device into fixed-size
// frames. Capture never blocks on a slow consumer: when the frame channel is
// full the oldest frame is dropped so memory stays bounded while downstream
// stages stall on external calls.
type Source struct {
	sampleRate int
	frameSize  int
	out        chan Frame
}

// NewSource creates a microphone source. buffer is the frame channel capacity.
func NewSource(sampleRate, frameSize, buffer int) *Source {
	return &Source{
		sampleRate: sampleRate,
		frameSize:  frameSize,
		out:        make(chan Frame, buffer),
	}
}

// Init brings up the audio subsystem. Call Close when done.
func (s *Source) Init() error {
	return portaudio.Initialize()
}

func (s *Source) Close() {
	portaudio.Terminate()
}

// Frames returns the capture channel. It is closed when Run returns.
func (s *Source) Frames() <-chan Frame { return s.out }

// Run reads the microphone until ctx is cancelled or the stream fails.
// A stream error is a capture fault; the caller treats it as fatal.
func (s *Source) Run(ctx context.Context) error {
	defer close(s.out)

	buf := make([]float32, s.frameSize)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(s.sampleRate), len(buf), buf)
	if err != nil {
		return fmt.Errorf("open input stream: %w", err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return fmt.Errorf("start input stream: %w", err)
	}
	defer stream.Stop()

	var seq uint64
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := stream.Read(); err != nil {
			return fmt.Errorf("read input stream: %w", err)
		}

		seq++
		samples := make([]float32, len(buf))
		copy(samples, buf)

		s.push(Frame{
			Seq:     seq,
			Time:    time.Now(),
			Samples: samples,
			RMS:     RMS(samples),
		})
	}
}

func (s *Source) push(f Frame) {
	select {
	case s.out <- f:
		return
	default:
	}

	// Channel full: drop the oldest frame and try once more.
	select {
	case old := <-s.out:
		slog.Debug("capture buffer full, dropping frame", "seq", old.Seq)
	default:
	}
	select {
	case s.out <- f:
	default:
	}
}
