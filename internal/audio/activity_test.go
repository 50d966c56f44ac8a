package audio

import (
	"context"
	"errors"
	"testing"
	"time"
)

const testFrameDur = 20 * time.Millisecond

func testDetectorConfig() DetectorConfig {
	return DetectorConfig{
		SampleRate:      16000,
		EnergyThreshold: 0.01,
		DebounceFrames:  2,
		GracePeriod:     100 * time.Millisecond,
		MinUtterance:    60 * time.Millisecond,
		LivenessTimeout: time.Minute,
		NoiseFloorRatio: 2.5,
		NoiseFloorAlpha: 0.95,
		UtteranceBuffer: 8,
	}
}

// frames builds a frame sequence from a loudness pattern: 'L' is speech,
// '.' is silence, spaced at the frame cadence.
func frames(pattern string) []Frame {
	base := time.Date(2263, 4, 5, 12, 0, 0, 0, time.UTC)
	out := make([]Frame, 0, len(pattern))
	for i, c := range pattern {
		rms := 0.001
		if c == 'L' {
			rms = 0.1
		}
		out = append(out, Frame{
			Seq:     uint64(i + 1),
			Time:    base.Add(time.Duration(i) * testFrameDur),
			Samples: make([]float32, 320),
			RMS:     rms,
		})
	}
	return out
}

func runDetector(t *testing.T, cfg DetectorConfig, fs []Frame) []Utterance {
	t.Helper()
	d := NewDetector(cfg)
	in := make(chan Frame, len(fs))
	for _, f := range fs {
		in <- f
	}
	close(in)

	if err := d.Run(context.Background(), in); err != nil {
		t.Fatalf("detector run: %v", err)
	}

	var utts []Utterance
	for u := range d.Utterances() {
		utts = append(utts, u)
	}
	return utts
}

func TestDetectorSegmentsSpeech(t *testing.T) {
	// 6 loud frames (120ms), then silence past the grace period.
	utts := runDetector(t, testDetectorConfig(), frames("LLLLLL........"))
	if len(utts) != 1 {
		t.Fatalf("expected 1 utterance, got %d", len(utts))
	}
	u := utts[0]
	if u.Seq != 1 {
		t.Fatalf("expected seq 1, got %d", u.Seq)
	}
	if u.Duration() < 60*time.Millisecond {
		t.Fatalf("utterance too short: %v", u.Duration())
	}
	if len(u.Samples) == 0 {
		t.Fatal("utterance has no samples")
	}
}

func TestDetectorDebounceRejectsClicks(t *testing.T) {
	// Isolated single loud frames never reach the debounce count.
	utts := runDetector(t, testDetectorConfig(), frames("..L...L...L..."))
	if len(utts) != 0 {
		t.Fatalf("clicks must not produce utterances, got %d", len(utts))
	}
}

func TestDetectorDiscardsShortSegments(t *testing.T) {
	// Two loud frames = 20ms span, below the 60ms floor.
	utts := runDetector(t, testDetectorConfig(), frames("LL............"))
	if len(utts) != 0 {
		t.Fatalf("sub-minimum segment must be discarded, got %d", len(utts))
	}
}

func TestDetectorGracePeriodJoinsPauses(t *testing.T) {
	// 80ms gap, within the 100ms grace: one utterance, not two.
	utts := runDetector(t, testDetectorConfig(), frames("LLLL....LLLL........"))
	if len(utts) != 1 {
		t.Fatalf("pause within grace must join, got %d utterances", len(utts))
	}
}

func TestDetectorSeparateUtterancesIncrementSeq(t *testing.T) {
	utts := runDetector(t, testDetectorConfig(), frames("LLLLLL........LLLLLL........"))
	if len(utts) != 2 {
		t.Fatalf("expected 2 utterances, got %d", len(utts))
	}
	if utts[0].Seq != 1 || utts[1].Seq != 2 {
		t.Fatalf("sequence numbers wrong: %d, %d", utts[0].Seq, utts[1].Seq)
	}
	if !utts[1].Start.After(utts[0].End) {
		t.Fatal("second utterance must start after the first ends")
	}
}

func TestDetectorLivenessFault(t *testing.T) {
	cfg := testDetectorConfig()
	cfg.LivenessTimeout = 20 * time.Millisecond

	d := NewDetector(cfg)
	in := make(chan Frame) // never delivers

	err := d.Run(context.Background(), in)
	if !errors.Is(err, ErrCaptureStalled) {
		t.Fatalf("expected ErrCaptureStalled, got %v", err)
	}
}

func TestDetectorFlushesOnInputClose(t *testing.T) {
	// Input ends while still speaking: trailing speech is emitted.
	utts := runDetector(t, testDetectorConfig(), frames("LLLLLL"))
	if len(utts) != 1 {
		t.Fatalf("expected flushed utterance, got %d", len(utts))
	}
}
