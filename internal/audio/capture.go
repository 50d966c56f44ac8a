package audio

import (
	"context"
	"errors"
	"fmt"
)

// FrameSource produces capture frames: the microphone or a replay file.
type FrameSource interface {
	Frames() <-chan Frame
	Run(ctx context.Context) error
}

// RunCapture drives a frame source and the detector together and reports the
// first fault from either stage. A source failure closes the frame channel,
// which the detector reads as a clean end of input, so the source's own error
// is the capture verdict and must not be swallowed.
func RunCapture(ctx context.Context, src FrameSource, det *Detector) error {
	srcErr := make(chan error, 1)
	go func() { srcErr <- src.Run(ctx) }()

	if err := det.Run(ctx, src.Frames()); err != nil {
		return err
	}

	// Input closed, so the source has returned; collect its verdict.
	if err := <-srcErr; err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("capture: %w", err)
	}
	return nil
}
