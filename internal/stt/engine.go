// Package stt feeds utterances to a transcription engine one at a time and
// releases transcripts in strict capture order.
package stt

import (
	"context"
	"errors"
)

// ErrTranscriptionFailed marks a transcript emitted after the engine failed
// persistently. The pipeline speaks an apology instead of hanging.
var ErrTranscriptionFailed = errors.New("transcription failed")

// Result is the raw engine output for one utterance.
type Result struct {
	Text       string
	Confidence float64
	Language   string
}

// Engine is the external speech-to-text capability.
type Engine interface {
	Transcribe(ctx context.Context, pcm []float32) (Result, error)
}

// Transcript derives from exactly one utterance and is read-only once
// emitted. Failed is set when transcription failed after the retry; Text is
// empty in that case.
type Transcript struct {
	Seq        uint64
	Text       string
	Confidence float64
	Language   string
	Failed     bool
}
