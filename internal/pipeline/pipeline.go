// Package pipeline connects the transcription stream to the wake gate and
// the intent router. It is the daemon's main loop.
package pipeline

import (
	"context"
	"log/slog"

	"lcars/internal/stt"
	"lcars/internal/tts"
	"lcars/internal/wake"
)

// Speaker is the audible-response surface the pipeline drives.
type Speaker interface {
	Speak(ctx context.Context, text string) error
	PlayClip(ctx context.Context, clip tts.Clip, priority bool) error
}

// Handler dispatches one admitted command.
type Handler interface {
	Handle(ctx context.Context, text string)
}

// Config wires the pipeline's collaborators. AckClip, when non-nil, is played
// instead of the spoken acknowledgment.
type Config struct {
	Gate    *wake.Gate
	Router  Handler
	Speaker Speaker
	AckClip *tts.Clip
}

const (
	ackText     = "Yes?"
	apologyText = "I am sorry, I did not understand that."
)

// Pipeline consumes ordered transcripts and turns them into actions.
type Pipeline struct {
	cfg Config
}

func New(cfg Config) *Pipeline {
	return &Pipeline{cfg: cfg}
}

// Run processes transcripts until ctx is cancelled or the channel closes.
// Each transcript is handled to completion before the next is read, so
// responses come out in utterance order.
func (p *Pipeline) Run(ctx context.Context, transcripts <-chan stt.Transcript) {
	for {
		select {
		case <-ctx.Done():
			return
		case tr, ok := <-transcripts:
			if !ok {
				return
			}
			p.handle(ctx, tr)
		}
	}
}

func (p *Pipeline) handle(ctx context.Context, tr stt.Transcript) {
	if tr.Failed {
		// The user addressed us and got nothing back otherwise.
		if err := p.cfg.Speaker.Speak(ctx, apologyText); err != nil {
			slog.Error("apology playback failed", "err", err)
		}
		return
	}
	if tr.Text == "" {
		return
	}

	cmd, decision := p.cfg.Gate.Admit(tr.Text)
	switch decision {
	case wake.Ignore:
		slog.Debug("ambient speech ignored", "seq", tr.Seq)

	case wake.Ack:
		slog.Info("wake phrase, awaiting command", "seq", tr.Seq)
		p.acknowledge(ctx)

	case wake.Command:
		slog.Info("command admitted", "seq", tr.Seq, "text", cmd)
		p.cfg.Router.Handle(ctx, cmd)
		p.cfg.Gate.Completed()
	}
}

func (p *Pipeline) acknowledge(ctx context.Context) {
	if p.cfg.AckClip != nil {
		if err := p.cfg.Speaker.PlayClip(ctx, *p.cfg.AckClip, false); err != nil {
			slog.Error("ack chime failed", "err", err)
		}
		return
	}
	if err := p.cfg.Speaker.Speak(ctx, ackText); err != nil {
		slog.Error("ack playback failed", "err", err)
	}
}
