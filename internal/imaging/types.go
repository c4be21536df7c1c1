// Package imaging holds the shared data model for raw detector frames and
// the metadata that rides along with them through the capture pipeline.
package imaging

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/stat"
)

// MaxPixelValue is the saturating ceiling for a 14-bit detector pixel.
const MaxPixelValue = 16383

// DarkOffset is the fixed offset the SDK's dark-correction convention adds
// before subtraction, so that corrected pixels never go negative.
const DarkOffset = 300

// RawImage is a single 16-bit grayscale detector frame.
type RawImage struct {
	Width  int
	Height int
	Pix    []uint16
}

// NewRawImage allocates a zeroed frame of the given dimensions.
func NewRawImage(width, height int) *RawImage {
	return &RawImage{Width: width, Height: height, Pix: make([]uint16, width*height)}
}

// Clone returns a deep copy of img.
func (img *RawImage) Clone() *RawImage {
	out := &RawImage{Width: img.Width, Height: img.Height, Pix: make([]uint16, len(img.Pix))}
	copy(out.Pix, img.Pix)
	return out
}

// At returns the pixel at (x, y).
func (img *RawImage) At(x, y int) uint16 {
	return img.Pix[y*img.Width+x]
}

// Set assigns the pixel at (x, y).
func (img *RawImage) Set(x, y int, v uint16) {
	img.Pix[y*img.Width+x] = v
}

// SameDimensions reports whether img and other share width and height.
func (img *RawImage) SameDimensions(other *RawImage) bool {
	return img.Width == other.Width && img.Height == other.Height
}

// FrameStack is an ordered collection of same-sized RawImages, used to
// accumulate calibration captures before reduction.
type FrameStack struct {
	Frames []*RawImage
}

// NewFrameStack allocates a stack with capacity for depth frames.
func NewFrameStack(depth int) *FrameStack {
	return &FrameStack{Frames: make([]*RawImage, 0, depth)}
}

// Push appends a frame, verifying it matches the stack's existing dimensions.
func (s *FrameStack) Push(frame *RawImage) error {
	if len(s.Frames) > 0 && !s.Frames[0].SameDimensions(frame) {
		return fmt.Errorf("imaging: frame stack dimension mismatch: have %dx%d, got %dx%d",
			s.Frames[0].Width, s.Frames[0].Height, frame.Width, frame.Height)
	}
	s.Frames = append(s.Frames, frame)
	return nil
}

// Mean reduces the stack to a single per-pixel arithmetic mean frame, using
// gonum/stat's Mean for the per-pixel reduction across frames.
func (s *FrameStack) Mean() (*RawImage, error) {
	if len(s.Frames) == 0 {
		return nil, fmt.Errorf("imaging: cannot reduce an empty frame stack")
	}
	w, h := s.Frames[0].Width, s.Frames[0].Height
	out := NewRawImage(w, h)

	samples := make([]float64, len(s.Frames))
	for i := range out.Pix {
		for j, f := range s.Frames {
			samples[j] = float64(f.Pix[i])
		}
		out.Pix[i] = uint16(math.Round(stat.Mean(samples, nil)))
	}
	return out, nil
}

// FullWell selects the sensor's capacity mode.
type FullWell int

const (
	FullWellHigh FullWell = iota
	FullWellLow
)

func (f FullWell) String() string {
	if f == FullWellLow {
		return "LFW"
	}
	return "HFW"
}

// Binning selects the pixel-combination factor applied by the sensor.
type Binning int

const (
	Binning1x1 Binning = iota
	Binning2x2
	Binning4x4
)

// ROI is an optional rectangular region of interest.
type ROI struct {
	X, Y, Width, Height int
}

// ExposureModeKind tags which CaptureMode variant a CaptureSetting selects.
type ExposureModeKind int

const (
	ExposureModeSequence ExposureModeKind = iota
	ExposureModeStream
)

// ExposureMode is a tagged union over the two CaptureMode variants: a fixed
// frame-count Sequence, or an (optionally time-bounded) Stream.
type ExposureMode struct {
	Kind            ExposureModeKind
	FrameCount      int           // valid when Kind == ExposureModeSequence
	StreamDuration  time.Duration // valid when Kind == ExposureModeStream; ignored when StreamUnbounded is set
	StreamUnbounded bool
}

// Sequence builds a fixed-count ExposureMode.
func Sequence(frameCount int) ExposureMode {
	return ExposureMode{Kind: ExposureModeSequence, FrameCount: frameCount}
}

// Stream builds an ExposureMode that runs until duration elapses, or forever
// if unbounded is requested.
func Stream(duration time.Duration, unbounded bool) ExposureMode {
	return ExposureMode{Kind: ExposureModeStream, StreamDuration: duration, StreamUnbounded: unbounded}
}

// CaptureSetting is the immutable configuration for one capture run.
type CaptureSetting struct {
	ExposureMS int
	Mode       ExposureMode
	DDS        bool
	FullWell   FullWell
	Binning    Binning
	ROI        *ROI
	Corrected  bool
}

// CaptureSettingBuilder constructs a CaptureSetting incrementally.
type CaptureSettingBuilder struct {
	s CaptureSetting
}

// NewCaptureSettingBuilder starts a builder with the required exposure time.
func NewCaptureSettingBuilder(exposureMS int) *CaptureSettingBuilder {
	return &CaptureSettingBuilder{s: CaptureSetting{ExposureMS: exposureMS, Mode: Sequence(1), Corrected: true}}
}

func (b *CaptureSettingBuilder) WithMode(m ExposureMode) *CaptureSettingBuilder {
	b.s.Mode = m
	return b
}

func (b *CaptureSettingBuilder) WithDDS(dds bool) *CaptureSettingBuilder {
	b.s.DDS = dds
	return b
}

func (b *CaptureSettingBuilder) WithFullWell(fw FullWell) *CaptureSettingBuilder {
	b.s.FullWell = fw
	return b
}

func (b *CaptureSettingBuilder) WithBinning(bin Binning) *CaptureSettingBuilder {
	b.s.Binning = bin
	return b
}

func (b *CaptureSettingBuilder) WithROI(roi *ROI) *CaptureSettingBuilder {
	b.s.ROI = roi
	return b
}

func (b *CaptureSettingBuilder) WithCorrected(corrected bool) *CaptureSettingBuilder {
	b.s.Corrected = corrected
	return b
}

func (b *CaptureSettingBuilder) Build() CaptureSetting {
	return b.s
}

// ExtraDataKind tags which protocol-specific payload an ImageMetadata carries.
type ExtraDataKind int

const (
	ExtraDataNone ExtraDataKind = iota
	ExtraDataSmartCapture
	ExtraDataSignalAccumulation
)

// Rect is an integer window used to mark SmartCapture's scored regions.
type Rect struct {
	X, Y, Width, Height int
}

// SmartCaptureData carries the SNR score and scored windows for one frame.
type SmartCaptureData struct {
	SNR              float64
	BackgroundRect   Rect
	ForegroundRect   Rect
}

// SignalAccumulationData carries the cumulative exposure time represented by
// one synthesized accumulation frame.
type SignalAccumulationData struct {
	AccumulatedExposureMS int
}

// ExtraData is a tagged union of protocol-specific metadata payloads.
type ExtraData struct {
	Kind                   ExtraDataKind
	SmartCapture           SmartCaptureData
	SignalAccumulation     SignalAccumulationData
}

// ImageMetadata accompanies every corrected frame emitted downstream.
type ImageMetadata struct {
	Setting   *CaptureSetting
	Timestamp time.Time
	Extra     ExtraData
}

// CaptureProgress reports one step of a multi-stage capture.
type CaptureProgress struct {
	Message     string
	CurrentStep int
	TotalSteps  int
}
