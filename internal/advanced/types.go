// Package advanced implements the six AdvancedCapture protocols composed on
// top of a controller.Controller: Live, Multi, SmartCapture,
// SignalAccumulation, DarkMap, and DefectMap. Each protocol is its own
// struct implementing a shared Protocol interface — a concrete type
// constructed per mode, rather than one function dispatching dynamically
// across every mode.
package advanced

import (
	"context"
	"log"

	"xraycore/internal/controller"
	"xraycore/internal/correction"
	"xraycore/internal/imaging"
)

// ItemKind tags which payload a CaptureItem carries.
type ItemKind int

const (
	ItemImage ItemKind = iota
	ItemProgress
	ItemResult
)

// CaptureItem is one element of the stream an AdvancedCapture protocol
// produces: a corrected frame, a progress update, or (at most once, at the
// end) the protocol's final result set.
type CaptureItem struct {
	Kind     ItemKind
	Image    *imaging.RawImage
	Metadata imaging.ImageMetadata
	Progress imaging.CaptureProgress
	Result   []*imaging.RawImage
}

// Protocol is the shared contract every AdvancedCapture variant implements.
type Protocol interface {
	// Name identifies the protocol for status/logging purposes.
	Name() string
	// Run executes the protocol, emitting CaptureItems on out until
	// completion or ctx cancellation, then closes out.
	Run(ctx context.Context, ctrl *controller.Controller, maps *correction.Maps, out chan<- CaptureItem)
}

func emit(ctx context.Context, out chan<- CaptureItem, item CaptureItem) bool {
	select {
	case out <- item:
		return true
	case <-ctx.Done():
		return false
	}
}

func emitProgress(ctx context.Context, out chan<- CaptureItem, message string, step, total int) bool {
	return emit(ctx, out, CaptureItem{Kind: ItemProgress, Progress: imaging.CaptureProgress{
		Message: message, CurrentStep: step, TotalSteps: total,
	}})
}

func emitImage(ctx context.Context, out chan<- CaptureItem, img *imaging.RawImage, meta imaging.ImageMetadata) bool {
	return emit(ctx, out, CaptureItem{Kind: ItemImage, Image: img, Metadata: meta})
}

func emitResult(ctx context.Context, out chan<- CaptureItem, frames []*imaging.RawImage) bool {
	return emit(ctx, out, CaptureItem{Kind: ItemResult, Result: frames})
}

// runSequenceStage drives ctrl through one Sequence(frameCount) capture at
// the given exposure/fullWell/corrected settings, invoking onFrame for each
// produced frame. It centralizes the setting-builder boilerplate every
// protocol below otherwise repeats.
func runSequenceStage(ctx context.Context, ctrl *controller.Controller, maps *correction.Maps, logger *log.Logger,
	expMS, frameCount int, fullWell imaging.FullWell, corrected bool, onFrame func(*imaging.RawImage)) error {

	setting := imaging.NewCaptureSettingBuilder(expMS).
		WithMode(imaging.Sequence(frameCount)).
		WithFullWell(fullWell).
		WithCorrected(corrected).
		Build()

	frames := make(chan *imaging.RawImage)
	errCh := make(chan error, 1)
	go func() {
		errCh <- ctrl.RunCaptureStream(ctx, setting, maps, frames)
	}()

	for frame := range frames {
		onFrame(frame)
	}
	return <-errCh
}
