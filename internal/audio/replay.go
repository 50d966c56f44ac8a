package audio

import (
	"context"
	"fmt"
	"time"

	"lcars/pkg/audioconv"
)

// ReplaySource feeds a decoded audio file through the frame channel in place
// of the microphone. Timestamps are synthesized at the frame cadence so the
// detector behaves exactly as it would live. Used for offline runs and for
// reproducing field recordings.
type ReplaySource struct {
	path       string
	sampleRate int
	frameSize  int
	out        chan Frame
}

func NewReplaySource(path string, sampleRate, frameSize, buffer int) *ReplaySource {
	return &ReplaySource{
		path:       path,
		sampleRate: sampleRate,
		frameSize:  frameSize,
		out:        make(chan Frame, buffer),
	}
}

func (r *ReplaySource) Frames() <-chan Frame { return r.out }

// Run decodes the file and emits it frame by frame, then closes the channel.
func (r *ReplaySource) Run(ctx context.Context) error {
	defer close(r.out)

	pcm, err := audioconv.DecodeFile(r.path, r.sampleRate)
	if err != nil {
		return fmt.Errorf("decode %s: %w", r.path, err)
	}

	frameDur := time.Duration(r.frameSize) * time.Second / time.Duration(r.sampleRate)
	now := time.Now()

	var seq uint64
	for off := 0; off < len(pcm); off += r.frameSize {
		end := off + r.frameSize
		if end > len(pcm) {
			end = len(pcm)
		}
		seq++
		samples := pcm[off:end]

		f := Frame{
			Seq:     seq,
			Time:    now.Add(time.Duration(seq) * frameDur),
			Samples: samples,
			RMS:     RMS(samples),
		}

		select {
		case r.out <- f:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
