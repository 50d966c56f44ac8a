package audio

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// ErrCaptureStalled reports that the microphone stopped delivering frames.
// This is the one fatal fault of the pipeline; the operator restarts the
// process (or the service manager does).
var ErrCaptureStalled = errors.New("audio capture stalled")

type detectorState int

const (
	stateIdle detectorState = iota
	stateSpeaking
	stateTrailing
)

// DetectorConfig tunes the energy-based voice activity detector.
type DetectorConfig struct {
	SampleRate      int
	EnergyThreshold float64       // minimum RMS considered speech
	DebounceFrames  int           // consecutive loud frames before Speaking
	GracePeriod     time.Duration // trailing silence folded into the utterance
	MinUtterance    time.Duration // shorter segments are discarded as noise
	LivenessTimeout time.Duration // no frames for this long => ErrCaptureStalled
	NoiseFloorRatio float64       // adaptive threshold = noise floor * ratio
	NoiseFloorAlpha float64       // smoothing for the rolling noise floor
	UtteranceBuffer int
}

// Detector segments the frame stream into utterances.
//
// State machine: Idle (below threshold), Speaking (above), TrailingSilence
// (below, within the grace period). Debounce rejects clicks and pops; the
// rolling noise floor lifts the threshold in noisy rooms. Accumulated frames
// are emitted as one utterance when the grace period elapses, provided the
// speech span beats the minimum-duration floor.
type Detector struct {
	cfg DetectorConfig
	out chan Utterance

	state      detectorState
	seq        uint64
	speechRun  []Frame // loud frames seen while still Idle (debounce window)
	buf        []float32
	start      time.Time
	lastSpeech time.Time
	quietSince time.Time
	floor      float64
}

// NewDetector creates a detector with the given tuning.
func NewDetector(cfg DetectorConfig) *Detector {
	if cfg.DebounceFrames < 1 {
		cfg.DebounceFrames = 1
	}
	if cfg.UtteranceBuffer < 1 {
		cfg.UtteranceBuffer = 1
	}
	return &Detector{
		cfg:   cfg,
		out:   make(chan Utterance, cfg.UtteranceBuffer),
		floor: cfg.EnergyThreshold / 2,
	}
}

// Utterances returns the output channel. It is closed when Run returns.
func (d *Detector) Utterances() <-chan Utterance { return d.out }

// Run consumes frames until ctx is cancelled or the input closes. If no frame
// arrives within the liveness timeout it returns ErrCaptureStalled instead of
// hanging on a dead device. A closed input flushes any trailing utterance and
// returns nil (the replay source ends this way).
func (d *Detector) Run(ctx context.Context, in <-chan Frame) error {
	timeout := d.cfg.LivenessTimeout
	if timeout <= 0 {
		timeout = time.Minute
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			close(d.out)
			return ctx.Err()
		case f, ok := <-in:
			if !ok {
				d.flush()
				close(d.out)
				return nil
			}
			d.step(f)
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(timeout)
		case <-timer.C:
			close(d.out)
			return ErrCaptureStalled
		}
	}
}

func (d *Detector) threshold() float64 {
	adaptive := d.floor * d.cfg.NoiseFloorRatio
	if adaptive > d.cfg.EnergyThreshold {
		return adaptive
	}
	return d.cfg.EnergyThreshold
}

func (d *Detector) step(f Frame) {
	loud := f.RMS > d.threshold()

	switch d.state {
	case stateIdle:
		if !loud {
			d.speechRun = d.speechRun[:0]
			a := d.cfg.NoiseFloorAlpha
			d.floor = a*d.floor + (1-a)*f.RMS
			return
		}
		d.speechRun = append(d.speechRun, f)
		if len(d.speechRun) < d.cfg.DebounceFrames {
			return
		}
		d.state = stateSpeaking
		d.start = d.speechRun[0].Time
		d.buf = d.buf[:0]
		for _, sf := range d.speechRun {
			d.buf = append(d.buf, sf.Samples...)
		}
		d.speechRun = d.speechRun[:0]
		d.lastSpeech = f.Time

	case stateSpeaking:
		d.buf = append(d.buf, f.Samples...)
		if loud {
			d.lastSpeech = f.Time
			return
		}
		d.state = stateTrailing
		d.quietSince = f.Time

	case stateTrailing:
		d.buf = append(d.buf, f.Samples...)
		if loud {
			// Speech resumed inside the grace period: same utterance.
			d.state = stateSpeaking
			d.lastSpeech = f.Time
			return
		}
		if f.Time.Sub(d.quietSince) >= d.cfg.GracePeriod {
			d.emit(d.lastSpeech)
			d.state = stateIdle
		}
	}
}

// flush emits whatever speech is buffered when the input ends.
func (d *Detector) flush() {
	if d.state == stateSpeaking || d.state == stateTrailing {
		d.emit(d.lastSpeech)
		d.state = stateIdle
	}
}

func (d *Detector) emit(end time.Time) {
	dur := end.Sub(d.start)
	if dur < d.cfg.MinUtterance {
		slog.Debug("discarding short segment", "duration", dur)
		d.buf = d.buf[:0]
		return
	}

	d.seq++
	samples := make([]float32, len(d.buf))
	copy(samples, d.buf)
	d.buf = d.buf[:0]

	d.out <- Utterance{
		Seq:        d.seq,
		Start:      d.start,
		End:        end,
		SampleRate: d.cfg.SampleRate,
		Samples:    samples,
	}
}
