package stt

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"lcars/internal/audio"
)

// DispatcherConfig tunes the transcription stage.
type DispatcherConfig struct {
	CallTimeout  time.Duration // per engine call
	RetryBackoff time.Duration // pause before the single retry
	Buffer       int           // transcript channel capacity
}

// Dispatcher invokes the engine once per utterance. Utterances are speech
// from one user and inherently serial, so at most one request is in flight;
// later utterances queue on the input channel. Releases still pass through a
// head-of-line sequencer keyed by sequence number, so the ordering guarantee
// holds even if the in-flight window is ever widened.
type Dispatcher struct {
	cfg    DispatcherConfig
	engine Engine
	out    chan Transcript
	seq    *sequencer
}

func NewDispatcher(engine Engine, cfg DispatcherConfig) *Dispatcher {
	if cfg.Buffer < 1 {
		cfg.Buffer = 1
	}
	return &Dispatcher{
		cfg:    cfg,
		engine: engine,
		out:    make(chan Transcript, cfg.Buffer),
		seq:    newSequencer(),
	}
}

// Transcripts returns the ordered output channel. Closed when Run returns.
func (d *Dispatcher) Transcripts() <-chan Transcript { return d.out }

// Run consumes utterances until ctx is cancelled or the input closes.
func (d *Dispatcher) Run(ctx context.Context, in <-chan audio.Utterance) {
	defer close(d.out)

	for {
		select {
		case <-ctx.Done():
			return
		case utt, ok := <-in:
			if !ok {
				return
			}
			tr := d.transcribe(ctx, utt)
			for _, ready := range d.seq.push(tr) {
				select {
				case d.out <- ready:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

// transcribe calls the engine with one retry on error. Persistent failure
// yields a failure-marker transcript rather than blocking the pipeline.
func (d *Dispatcher) transcribe(ctx context.Context, utt audio.Utterance) Transcript {
	res, err := d.call(ctx, utt)
	if err != nil {
		slog.Warn("transcription failed, retrying", "seq", utt.Seq, "err", err)
		select {
		case <-time.After(d.cfg.RetryBackoff):
		case <-ctx.Done():
		}
		res, err = d.call(ctx, utt)
	}
	if err != nil {
		slog.Error("transcription failed", "seq", utt.Seq, "err", err)
		return Transcript{Seq: utt.Seq, Failed: true}
	}

	if looksHallucinated(res.Text) {
		slog.Debug("discarding repetitive transcript", "seq", utt.Seq, "text", res.Text)
		return Transcript{Seq: utt.Seq}
	}

	slog.Debug("transcribed", "seq", utt.Seq, "text", res.Text)
	return Transcript{
		Seq:        utt.Seq,
		Text:       res.Text,
		Confidence: res.Confidence,
		Language:   res.Language,
	}
}

// looksHallucinated reports whether a transcript is a whisper repetition
// artifact: a short phrase looping for the whole text ("you you you ...",
// "Thank you. Thank you. ..."). Such output comes from silence or steady
// noise, never from speech worth gating. The blanked transcript keeps its
// sequence number, so ordering is unaffected.
func looksHallucinated(text string) bool {
	raw := strings.Fields(strings.ToLower(text))
	if len(raw) < 6 {
		return false
	}
	words := make([]string, len(raw))
	for i, w := range raw {
		words[i] = strings.Trim(w, ".,!?-")
	}

	for size := 1; size <= 3; size++ {
		looping := true
		for i := size; i < len(words); i++ {
			if words[i] != words[i%size] {
				looping = false
				break
			}
		}
		if looping {
			return true
		}
	}
	return false
}

func (d *Dispatcher) call(ctx context.Context, utt audio.Utterance) (Result, error) {
	cctx, cancel := context.WithTimeout(ctx, d.cfg.CallTimeout)
	defer cancel()
	return d.engine.Transcribe(cctx, utt.Samples)
}

// sequencer releases transcripts only when every lower sequence number has
// been released. The first transcript pushed anchors the expected sequence.
type sequencer struct {
	next    uint64
	pending map[uint64]Transcript
}

func newSequencer() *sequencer {
	return &sequencer{pending: make(map[uint64]Transcript)}
}

func (s *sequencer) push(t Transcript) []Transcript {
	if s.next == 0 {
		s.next = t.Seq
	}
	s.pending[t.Seq] = t

	var ready []Transcript
	for {
		tr, ok := s.pending[s.next]
		if !ok {
			return ready
		}
		delete(s.pending, s.next)
		s.next++
		ready = append(ready, tr)
	}
}
