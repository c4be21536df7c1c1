package advanced

import (
	"context"
	"log"
	"time"

	"xraycore/internal/controller"
	"xraycore/internal/correction"
	"xraycore/internal/imaging"
)

// Live runs one open-ended Stream capture at a fixed exposure, forwarding
// every corrected frame to the consumer until cancelled. It never emits a
// Result.
type Live struct {
	ExposureMS int
	Logger     *log.Logger
}

func (l *Live) Name() string { return "Live" }

func (l *Live) Run(ctx context.Context, ctrl *controller.Controller, maps *correction.Maps, out chan<- CaptureItem) {
	defer close(out)

	setting := imaging.NewCaptureSettingBuilder(l.ExposureMS).
		WithMode(imaging.Stream(0, true)).
		WithCorrected(true).
		Build()

	frames := make(chan *imaging.RawImage)
	errCh := make(chan error, 1)
	go func() {
		errCh <- ctrl.RunCaptureStream(ctx, setting, maps, frames)
	}()

	for frame := range frames {
		meta := imaging.ImageMetadata{Setting: &setting, Timestamp: time.Now()}
		if !emitImage(ctx, out, frame, meta) {
			break
		}
	}

	if err := <-errCh; err != nil {
		l.Logger.Printf("[advanced:live] stream ended with error: %v", err)
	}
}
