package audio

import (
	"math"
	"time"
)

// Frame is one fixed-duration block of mono samples from the microphone.
// Frames are immutable once produced and consumed exactly once by the detector.
type Frame struct {
	Seq     uint64
	Time    time.Time
	Samples []float32
	RMS     float64
}

// Utterance is one continuous span of detected speech, bounded by silence.
// Sequence numbers are strictly increasing per process lifetime.
type Utterance struct {
	Seq        uint64
	Start      time.Time
	End        time.Time
	SampleRate int
	Samples    []float32
}

// Duration reports the speech span of the utterance.
func (u Utterance) Duration() time.Duration {
	return u.End.Sub(u.Start)
}

// RMS computes the root-mean-square energy of a sample block.
func RMS(f []float32) float64 {
	if len(f) == 0 {
		return 0
	}
	var s float64
	for _, x := range f {
		s += float64(x * x)
	}
	return math.Sqrt(s / float64(len(f)))
}
