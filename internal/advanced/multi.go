package advanced

import (
	"context"
	"fmt"
	"log"
	"time"

	"xraycore/internal/controller"
	"xraycore/internal/correction"
	"xraycore/internal/imaging"
)

// Multi captures frames_per_capture frames at each requested exposure time
// in turn, emitting every frame and a final Result holding all of them.
type Multi struct {
	ExposureTimesMS  []int
	FramesPerCapture int
	Logger           *log.Logger
}

func (m *Multi) Name() string { return "Multi" }

func (m *Multi) Run(ctx context.Context, ctrl *controller.Controller, maps *correction.Maps, out chan<- CaptureItem) {
	defer close(out)

	var all []*imaging.RawImage
	total := len(m.ExposureTimesMS)

	for i, exp := range m.ExposureTimesMS {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if !emitProgress(ctx, out, fmt.Sprintf("Capturing for %dms", exp), i+1, total) {
			return
		}

		setting := imaging.NewCaptureSettingBuilder(exp).
			WithMode(imaging.Sequence(m.FramesPerCapture)).
			WithCorrected(true).
			Build()

		err := runSequenceStage(ctx, ctrl, maps, m.Logger, exp, m.FramesPerCapture, imaging.FullWellHigh, true, func(frame *imaging.RawImage) {
			all = append(all, frame)
			meta := imaging.ImageMetadata{Setting: &setting, Timestamp: time.Now()}
			emitImage(ctx, out, frame, meta)
		})
		if err != nil {
			m.Logger.Printf("[advanced:multi] stage at %dms failed: %v", exp, err)
			return
		}
	}

	emitResult(ctx, out, all)
}
