package detector

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"xraycore/internal/imaging"
)

// SimulatedDetector synthesizes deterministic-enough frames for development
// and tests, in the absence of attached hardware. It is a mutex-guarded
// status plus a handful of plain fields, rather than a dynamic-dispatch
// device abstraction.
type SimulatedDetector struct {
	mu sync.Mutex

	connected bool
	width     int
	height    int

	exposureMS  int
	mode        imaging.ExposureMode
	frameCount  int
	fullWell    imaging.FullWell
	binning     imaging.Binning

	live       bool
	streaming  bool
	buffer     []*imaging.RawImage
	streamQ    []*imaging.RawImage

	rng *rand.Rand

	// Pattern, when set, overrides synthetic noise with a fixed per-pixel
	// value, used by tests that need deterministic frame contents.
	Pattern *uint16
}

// NewSimulatedDetector constructs a detector that reports width x height
// frames once opened.
func NewSimulatedDetector(width, height int) *SimulatedDetector {
	return &SimulatedDetector{
		width:  width,
		height: height,
		mode:   imaging.Sequence(1),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (d *SimulatedDetector) Open(bufferDepth int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connected = true
	d.buffer = make([]*imaging.RawImage, bufferDepth)
	return nil
}

func (d *SimulatedDetector) IsConnected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connected
}

// Disconnect simulates a cable pull, for heartbeat-recovery tests.
func (d *SimulatedDetector) Disconnect() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connected = false
}

func (d *SimulatedDetector) SetExposureTime(ms int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.connected {
		return ErrNotConnected
	}
	d.exposureMS = ms
	return nil
}

func (d *SimulatedDetector) SetExposureMode(mode imaging.ExposureMode) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.connected {
		return ErrNotConnected
	}
	d.mode = mode
	return nil
}

func (d *SimulatedDetector) SetFrameCount(n int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.connected {
		return ErrNotConnected
	}
	d.frameCount = n
	return nil
}

func (d *SimulatedDetector) SetFullWell(fw imaging.FullWell) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.connected {
		return ErrNotConnected
	}
	d.fullWell = fw
	return nil
}

func (d *SimulatedDetector) SetBinning(b imaging.Binning) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.connected {
		return ErrNotConnected
	}
	d.binning = b
	return nil
}

func (d *SimulatedDetector) GoLive() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.connected {
		return ErrNotConnected
	}
	d.live = true
	for i := range d.buffer {
		d.buffer[i] = nil
	}
	return nil
}

func (d *SimulatedDetector) GoUnlive(wipeBuffers bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.live = false
	d.streaming = false
	if wipeBuffers {
		for i := range d.buffer {
			d.buffer[i] = nil
		}
		d.streamQ = nil
	}
	return nil
}

func (d *SimulatedDetector) SoftwareTrigger() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.connected {
		return ErrNotConnected
	}
	if !d.live || d.mode.Kind != imaging.ExposureModeSequence {
		return ErrInvalidState
	}
	n := d.frameCount
	if n <= 0 {
		n = d.mode.FrameCount
	}
	for i := 0; i < n && i < len(d.buffer); i++ {
		d.buffer[i] = d.synthesizeLocked()
	}
	return nil
}

func (d *SimulatedDetector) ReadBuffer(ctx context.Context, dst *imaging.RawImage, frameIndex int, timeoutMS int) error {
	deadline := time.Now().Add(time.Duration(timeoutMS) * time.Millisecond)
	for {
		d.mu.Lock()
		if frameIndex < len(d.buffer) && d.buffer[frameIndex] != nil {
			src := d.buffer[frameIndex]
			copy(dst.Pix, src.Pix)
			dst.Width, dst.Height = src.Width, src.Height
			d.mu.Unlock()
			return nil
		}
		d.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if time.Now().After(deadline) {
			return ErrTimeout
		}
		time.Sleep(time.Millisecond)
	}
}

func (d *SimulatedDetector) StartStream(expMS int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.connected {
		return ErrNotConnected
	}
	d.exposureMS = expMS
	d.streaming = true
	d.live = true
	return nil
}

func (d *SimulatedDetector) ReadFrame(dst *imaging.RawImage, oldestFirst bool) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.streaming {
		return false, ErrInvalidState
	}
	// Synthesize on demand so a polling consumer always eventually sees a
	// frame, instead of requiring a separate producer goroutine.
	frame := d.synthesizeLocked()
	copy(dst.Pix, frame.Pix)
	dst.Width, dst.Height = frame.Width, frame.Height
	return true, nil
}

func (d *SimulatedDetector) ImageDimensions() (int, int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.width, d.height
}

// synthesizeLocked builds one frame; caller must hold d.mu.
func (d *SimulatedDetector) synthesizeLocked() *imaging.RawImage {
	img := imaging.NewRawImage(d.width, d.height)
	if d.Pattern != nil {
		for i := range img.Pix {
			img.Pix[i] = *d.Pattern
		}
		return img
	}
	base := uint16(1000 + d.exposureMS*2)
	for i := range img.Pix {
		noise := int(d.rng.Int31n(64)) - 32
		v := int(base) + noise
		if v < 0 {
			v = 0
		}
		if v > imaging.MaxPixelValue {
			v = imaging.MaxPixelValue
		}
		img.Pix[i] = uint16(v)
	}
	return img
}
