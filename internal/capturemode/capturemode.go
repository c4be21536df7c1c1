// Package capturemode implements the two CaptureMode strategies —
// Sequence and Stream — as tagged-variant producers of raw frames: each
// mode is its own constructor and runner rather than a single function
// branching on "should I run a detector this tick", so adding a new mode
// never touches the others.
package capturemode

import (
	"context"
	"log"
	"time"

	"xraycore/internal/detector"
	"xraycore/internal/imaging"
)

// RunSequence configures the detector for a fixed frame-count capture,
// triggers it, and streams frames to out as they become available. It
// guarantees GoUnlive is invoked on every exit path, so the detector is
// never left live after the capture is done, win or lose.
func RunSequence(ctx context.Context, dev detector.Detector, frameCount int, logger *log.Logger, out chan<- *imaging.RawImage) error {
	defer func() {
		if err := dev.GoUnlive(true); err != nil {
			logger.Printf("[capturemode] GoUnlive after sequence failed: %v", err)
		}
	}()

	if err := dev.SetExposureMode(imaging.Sequence(frameCount)); err != nil {
		return err
	}
	if err := dev.SetFrameCount(frameCount); err != nil {
		return err
	}
	if err := dev.GoLive(); err != nil {
		return err
	}
	if err := dev.SoftwareTrigger(); err != nil {
		return err
	}

	w, h := dev.ImageDimensions()
	for i := 0; i < frameCount; i++ {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		frame := imaging.NewRawImage(w, h)
		if err := retryReadBuffer(ctx, dev, frame, i, 100); err != nil {
			return err
		}

		select {
		case out <- frame:
		case <-ctx.Done():
			return nil
		}
	}
	return nil
}

func retryReadBuffer(ctx context.Context, dev detector.Detector, dst *imaging.RawImage, frameIndex, timeoutMS int) error {
	for {
		err := dev.ReadBuffer(ctx, dst, frameIndex, timeoutMS)
		if err == nil {
			return nil
		}
		if err == detector.ErrTimeout {
			select {
			case <-ctx.Done():
				return nil
			default:
				continue
			}
		}
		return err
	}
}

// RunStream arms streaming acquisition at expMS and polls for frames until
// ctx is cancelled or duration elapses (duration <= 0 means unbounded).
func RunStream(ctx context.Context, dev detector.Detector, expMS int, duration time.Duration, logger *log.Logger, out chan<- *imaging.RawImage) error {
	defer func() {
		if err := dev.GoUnlive(true); err != nil {
			logger.Printf("[capturemode] GoUnlive after stream failed: %v", err)
		}
	}()

	if err := dev.StartStream(expMS); err != nil {
		return err
	}

	w, h := dev.ImageDimensions()
	start := time.Now()
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		if duration > 0 && time.Since(start) >= duration {
			return nil
		}

		time.Sleep(time.Millisecond)

		frame := imaging.NewRawImage(w, h)
		ok, err := dev.ReadFrame(frame, true)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}

		select {
		case out <- frame:
		case <-ctx.Done():
			return nil
		}
	}
}
