package advanced

import (
	"context"
	"io"
	"log"
	"sync"
	"testing"

	"xraycore/internal/controller"
	"xraycore/internal/correction"
	"xraycore/internal/detector"
	"xraycore/internal/imaging"
)

func testLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// sequenceDetector is a fully controllable detector.Detector fake: every
// ReadBuffer call returns the next full frame from a fixed, caller-supplied
// sequence, letting tests exercise exact known pixel values instead of
// SimulatedDetector's randomized noise. Frames beyond the supplied sequence
// read back as all-zero.
type sequenceDetector struct {
	mu          sync.Mutex
	width       int
	height      int
	frames      [][]uint16
	next        int
	unliveCalls int
}

// newSequenceDetector builds a detector whose frames are each uniformly one
// value from values (one frame per value).
func newSequenceDetector(width, height int, values []uint16) *sequenceDetector {
	frames := make([][]uint16, len(values))
	for i, v := range values {
		frame := make([]uint16, width*height)
		for j := range frame {
			frame[j] = v
		}
		frames[i] = frame
	}
	return &sequenceDetector{width: width, height: height, frames: frames}
}

// newPatternSequenceDetector builds a detector whose frames are exactly the
// supplied per-pixel arrays, for cases that need non-uniform contrast.
func newPatternSequenceDetector(width, height int, frames [][]uint16) *sequenceDetector {
	return &sequenceDetector{width: width, height: height, frames: frames}
}

func (d *sequenceDetector) Open(int) error                             { return nil }
func (d *sequenceDetector) IsConnected() bool                          { return true }
func (d *sequenceDetector) SetExposureTime(int) error                  { return nil }
func (d *sequenceDetector) SetExposureMode(imaging.ExposureMode) error { return nil }
func (d *sequenceDetector) SetFrameCount(int) error                    { return nil }
func (d *sequenceDetector) SetFullWell(imaging.FullWell) error         { return nil }
func (d *sequenceDetector) SetBinning(imaging.Binning) error           { return nil }
func (d *sequenceDetector) GoLive() error                              { return nil }
func (d *sequenceDetector) SoftwareTrigger() error                     { return nil }
func (d *sequenceDetector) StartStream(int) error                      { return nil }

func (d *sequenceDetector) GoUnlive(bool) error {
	d.mu.Lock()
	d.unliveCalls++
	d.mu.Unlock()
	return nil
}

func (d *sequenceDetector) ReadBuffer(ctx context.Context, dst *imaging.RawImage, frameIndex int, timeoutMS int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	dst.Width, dst.Height = d.width, d.height
	if d.next < len(d.frames) {
		copy(dst.Pix, d.frames[d.next])
	} else {
		for i := range dst.Pix {
			dst.Pix[i] = 0
		}
	}
	d.next++
	return nil
}

func (d *sequenceDetector) ReadFrame(dst *imaging.RawImage, oldestFirst bool) (bool, error) {
	if err := d.ReadBuffer(context.Background(), dst, 0, 0); err != nil {
		return false, err
	}
	return true, nil
}

func (d *sequenceDetector) ImageDimensions() (int, int) { return d.width, d.height }

func newTestController(dev detector.Detector) *controller.Controller {
	return controller.New(dev, testLogger(), nil)
}

func drain(ch <-chan CaptureItem) []CaptureItem {
	var items []CaptureItem
	for item := range ch {
		items = append(items, item)
	}
	return items
}

// Scenario: Multi(exp_times=[100,200], frames_per_capture=3) against a
// connected detector should emit 2 progress events, 6 image items, and one
// final Result carrying all 6 frames.
func TestMultiEmitsProgressImagesAndResult(t *testing.T) {
	dev := newSequenceDetector(1, 1, []uint16{1, 2, 3, 4, 5, 6})
	ctrl := newTestController(dev)
	maps := correction.New(t.TempDir())

	proto := &Multi{ExposureTimesMS: []int{100, 200}, FramesPerCapture: 3, Logger: testLogger()}
	out := make(chan CaptureItem)
	go proto.Run(context.Background(), ctrl, maps, out)
	items := drain(out)

	var progress, images, results int
	var resultFrames int
	for _, item := range items {
		switch item.Kind {
		case ItemProgress:
			progress++
		case ItemImage:
			images++
		case ItemResult:
			results++
			resultFrames = len(item.Result)
		}
	}
	if progress != 2 {
		t.Errorf("progress events = %d, want 2", progress)
	}
	if images != 6 {
		t.Errorf("image items = %d, want 6", images)
	}
	if results != 1 {
		t.Errorf("result items = %d, want 1", results)
	}
	if resultFrames != 6 {
		t.Errorf("result frame count = %d, want 6", resultFrames)
	}
}

// Scenario: SmartCapture should keep whichever exposure's frame scores the
// higher SNR as its single Result frame.
func TestSmartCapturePicksHigherSNRExposure(t *testing.T) {
	width, height := 8, 8

	// A uniform frame has SNR 0: every window reports the same mean, so
	// max-min is zero regardless of the offset. A frame with one bright
	// quadrant against a dim background scores above 0, so it must win.
	flat := make([]uint16, width*height)
	for i := range flat {
		flat[i] = 400
	}
	contrast := make([]uint16, width*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			v := uint16(400)
			if x < 4 && y < 4 {
				v = 8000
			}
			contrast[y*width+x] = v
		}
	}

	dev := newPatternSequenceDetector(width, height, [][]uint16{flat, contrast})
	ctrl := newTestController(dev)
	maps := correction.New(t.TempDir())

	proto := &SmartCapture{
		ExposureTimesMS:  []int{50, 100},
		FramesPerCapture: 1,
		WindowSize:       4,
		Logger:           testLogger(),
	}
	out := make(chan CaptureItem)
	go proto.Run(context.Background(), ctrl, maps, out)
	items := drain(out)

	var result []*imaging.RawImage
	for _, item := range items {
		if item.Kind == ItemResult {
			result = item.Result
		}
	}
	if len(result) != 1 {
		t.Fatalf("expected exactly one result frame, got %d", len(result))
	}
	if result[0].At(0, 0) != 8000 {
		t.Errorf("winning frame pixel(0,0) = %d, want 8000 (the higher-contrast exposure)", result[0].At(0, 0))
	}
}

// Scenario: SignalAccumulation(exp_times=[50,50], frames_per_capture=2) over
// uniform 1000-value source frames must emit pixel values
// 1000,2000,3000,4000 with accumulated_exp_time 50,100,150,200.
func TestSignalAccumulationMatchesSpecScenario(t *testing.T) {
	dev := newSequenceDetector(1, 1, []uint16{1000, 1000, 1000, 1000})
	ctrl := newTestController(dev)
	maps := correction.New(t.TempDir())

	proto := &SignalAccumulation{ExposureTimesMS: []int{50, 50}, FramesPerCapture: 2, Logger: testLogger()}
	out := make(chan CaptureItem)
	go proto.Run(context.Background(), ctrl, maps, out)
	items := drain(out)

	var pixelValues []uint16
	var accumulatedExpMS []int
	for _, item := range items {
		if item.Kind != ItemImage {
			continue
		}
		pixelValues = append(pixelValues, item.Image.At(0, 0))
		accumulatedExpMS = append(accumulatedExpMS, item.Metadata.Extra.SignalAccumulation.AccumulatedExposureMS)
	}

	wantPixels := []uint16{1000, 2000, 3000, 4000}
	wantExpMS := []int{50, 100, 150, 200}
	if len(pixelValues) != len(wantPixels) {
		t.Fatalf("got %d image items, want %d", len(pixelValues), len(wantPixels))
	}
	for i := range wantPixels {
		if pixelValues[i] != wantPixels[i] {
			t.Errorf("pixel[%d] = %d, want %d", i, pixelValues[i], wantPixels[i])
		}
		if accumulatedExpMS[i] != wantExpMS[i] {
			t.Errorf("accumulated_exp_time[%d] = %d, want %d", i, accumulatedExpMS[i], wantExpMS[i])
		}
	}
}

// Scenario: DarkMapCapture([100], frames_per_capture=4) over frames
// 1000,1002,1004,1006 must persist a mean dark map of all-1003.
func TestDarkMapCaptureComputesMean(t *testing.T) {
	dev := newSequenceDetector(1, 1, []uint16{1000, 1002, 1004, 1006})
	ctrl := newTestController(dev)
	maps := correction.New(t.TempDir())

	proto := &DarkMap{ExposureTimesMS: []int{100}, FramesPerCapture: 4, Logger: testLogger()}
	out := make(chan CaptureItem)
	go proto.Run(context.Background(), ctrl, maps, out)
	items := drain(out)

	var result []*imaging.RawImage
	for _, item := range items {
		if item.Kind == ItemResult {
			result = item.Result
		}
	}
	if len(result) != 1 {
		t.Fatalf("expected one produced dark map, got %d", len(result))
	}
	if got := result[0].At(0, 0); got != 1003 {
		t.Errorf("dark map mean = %d, want 1003", got)
	}
	if !maps.HasDark(100) {
		t.Error("expected the dark map to be installed into the registry")
	}
}

// Cancelling the context during an unbounded Live stream must still
// terminate the stream and invoke GoUnlive exactly once.
func TestLiveRunStopsOnContextCancel(t *testing.T) {
	dev := newSequenceDetector(1, 1, nil)
	ctrl := newTestController(dev)
	maps := correction.New(t.TempDir())

	proto := &Live{ExposureMS: 100, Logger: testLogger()}
	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan CaptureItem)
	go proto.Run(ctx, ctrl, maps, out)

	// Observe at least one frame, then stop the capture.
	<-out
	cancel()
	drain(out) // Run must close out once it observes cancellation.

	dev.mu.Lock()
	calls := dev.unliveCalls
	dev.mu.Unlock()
	if calls != 1 {
		t.Errorf("GoUnlive called %d times, want 1", calls)
	}
}
