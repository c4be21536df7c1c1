package advanced

import (
	"context"
	"fmt"
	"log"
	"time"

	"xraycore/internal/controller"
	"xraycore/internal/correction"
	"xraycore/internal/imaging"
	"xraycore/internal/stats"
)

// SmartCapture captures at each requested exposure time and keeps whichever
// single frame scores the highest signal-to-noise ratio, optionally
// median-filtering each frame before scoring it.
type SmartCapture struct {
	ExposureTimesMS  []int
	FramesPerCapture int
	WindowSize       int
	MedianFiltered   bool
	Logger           *log.Logger
}

func (s *SmartCapture) Name() string { return "SmartCapture" }

func (s *SmartCapture) Run(ctx context.Context, ctrl *controller.Controller, maps *correction.Maps, out chan<- CaptureItem) {
	defer close(out)

	var best *imaging.RawImage
	bestSNR := -1.0
	total := len(s.ExposureTimesMS)

	for i, exp := range s.ExposureTimesMS {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if !emitProgress(ctx, out, fmt.Sprintf("Capturing for %dms", exp), i+1, total) {
			return
		}

		setting := imaging.NewCaptureSettingBuilder(exp).
			WithMode(imaging.Sequence(s.FramesPerCapture)).
			WithCorrected(true).
			Build()

		stageErr := runSequenceStage(ctx, ctrl, maps, s.Logger, exp, s.FramesPerCapture, imaging.FullWellHigh, true, func(frame *imaging.RawImage) {
			scored := frame
			if s.MedianFiltered {
				scored = stats.MedianFilter3x3(frame)
			}

			result, err := stats.ComputeSNR(scored, s.WindowSize)
			if err != nil {
				s.Logger.Printf("[advanced:smartcapture] SNR computation failed: %v", err)
				emitImage(ctx, out, frame, imaging.ImageMetadata{Setting: &setting, Timestamp: time.Now()})
				return
			}

			meta := imaging.ImageMetadata{
				Setting:   &setting,
				Timestamp: time.Now(),
				Extra: imaging.ExtraData{
					Kind: imaging.ExtraDataSmartCapture,
					SmartCapture: imaging.SmartCaptureData{
						SNR:            result.SNR,
						BackgroundRect: result.BackgroundRect,
						ForegroundRect: result.ForegroundRect,
					},
				},
			}
			emitImage(ctx, out, frame, meta)

			if result.SNR > bestSNR {
				bestSNR = result.SNR
				best = frame
			}
		})
		if stageErr != nil {
			s.Logger.Printf("[advanced:smartcapture] stage at %dms failed: %v", exp, stageErr)
			return
		}
	}

	if best != nil {
		emitResult(ctx, out, []*imaging.RawImage{best})
	} else {
		emitResult(ctx, out, nil)
	}
}
