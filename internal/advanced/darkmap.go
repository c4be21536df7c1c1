package advanced

import (
	"context"
	"fmt"
	"log"

	"xraycore/internal/controller"
	"xraycore/internal/correction"
	"xraycore/internal/imaging"
)

// DarkMap is the calibration protocol that captures uncorrected frames at
// each requested exposure time and reduces them to a per-pixel mean, which
// is persisted and installed into the correction registry.
type DarkMap struct {
	ExposureTimesMS  []int
	FramesPerCapture int
	Logger           *log.Logger
}

func (d *DarkMap) Name() string { return "DarkMap" }

func (d *DarkMap) Run(ctx context.Context, ctrl *controller.Controller, maps *correction.Maps, out chan<- CaptureItem) {
	defer close(out)

	total := len(d.ExposureTimesMS)
	var produced []*imaging.RawImage

	for i, exp := range d.ExposureTimesMS {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if !emitProgress(ctx, out, fmt.Sprintf("Capturing dark frames at %dms", exp), i+1, total) {
			return
		}

		stack := imaging.NewFrameStack(d.FramesPerCapture)
		err := runSequenceStage(ctx, ctrl, maps, d.Logger, exp, d.FramesPerCapture, imaging.FullWellHigh, false, func(frame *imaging.RawImage) {
			if err := stack.Push(frame); err != nil {
				d.Logger.Printf("[advanced:darkmap] %v", err)
				return
			}
			emitImage(ctx, out, frame, imaging.ImageMetadata{})
		})
		if err != nil {
			d.Logger.Printf("[advanced:darkmap] stage at %dms failed: %v", exp, err)
			return
		}

		mean, err := stack.Mean()
		if err != nil {
			d.Logger.Printf("[advanced:darkmap] reducing stack at %dms failed: %v", exp, err)
			return
		}
		if err := maps.SetDark(exp, mean); err != nil {
			d.Logger.Printf("[advanced:darkmap] persisting dark map at %dms failed: %v", exp, err)
			return
		}
		produced = append(produced, mean)
	}

	emitResult(ctx, out, produced)
}
