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

// SignalAccumulation synthesizes progressively-accumulated exposures: within
// each exposure-time stage, every new frame is pixel-wise added (saturating
// at MaxPixelValue) to the running accumulation carried over from the
// previous stage.
type SignalAccumulation struct {
	ExposureTimesMS  []int
	FramesPerCapture int
	Logger           *log.Logger
}

func (a *SignalAccumulation) Name() string { return "SignalAccumulation" }

func (a *SignalAccumulation) Run(ctx context.Context, ctrl *controller.Controller, maps *correction.Maps, out chan<- CaptureItem) {
	defer close(out)

	var accumulated *imaging.RawImage
	var all []*imaging.RawImage
	total := len(a.ExposureTimesMS)
	accumulatedExpMS := 0

	for i, exp := range a.ExposureTimesMS {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if !emitProgress(ctx, out, fmt.Sprintf("Accumulating at %dms", exp), i+1, total) {
			return
		}

		setting := imaging.NewCaptureSettingBuilder(exp).
			WithMode(imaging.Sequence(a.FramesPerCapture)).
			WithCorrected(true).
			Build()

		stageErr := runSequenceStage(ctx, ctrl, maps, a.Logger, exp, a.FramesPerCapture, imaging.FullWellHigh, true, func(frame *imaging.RawImage) {
			if accumulated == nil {
				accumulated = frame.Clone()
			} else {
				accumulated = saturatingAdd(accumulated, frame)
			}
			accumulatedExpMS += exp

			meta := imaging.ImageMetadata{
				Setting:   &setting,
				Timestamp: time.Now(),
				Extra: imaging.ExtraData{
					Kind: imaging.ExtraDataSignalAccumulation,
					SignalAccumulation: imaging.SignalAccumulationData{
						AccumulatedExposureMS: accumulatedExpMS,
					},
				},
			}

			snapshot := accumulated.Clone()
			all = append(all, snapshot)
			emitImage(ctx, out, snapshot, meta)
		})
		if stageErr != nil {
			a.Logger.Printf("[advanced:signalaccumulation] stage at %dms failed: %v", exp, stageErr)
			return
		}
	}

	emitResult(ctx, out, all)
}

// saturatingAdd returns a new image whose pixels are a+b, each clamped to
// imaging.MaxPixelValue.
func saturatingAdd(a, b *imaging.RawImage) *imaging.RawImage {
	out := imaging.NewRawImage(a.Width, a.Height)
	for i := range a.Pix {
		sum := int(a.Pix[i]) + int(b.Pix[i])
		if sum > imaging.MaxPixelValue {
			sum = imaging.MaxPixelValue
		}
		out.Pix[i] = uint16(sum)
	}
	return out
}
