// Package controller implements the DetectorController: one goroutine that
// keeps a Detector connected via a 100ms heartbeat, plus the capture-stream
// wrapper that applies dark/defect correction to every frame a CaptureMode
// strategy produces. The heartbeat is a standing ticker rather than an
// on-demand connectivity probe.
package controller

import (
	"context"
	"log"
	"sync"
	"time"

	"xraycore/internal/capturemode"
	"xraycore/internal/correction"
	"xraycore/internal/detector"
	"xraycore/internal/imaging"
)

const (
	heartbeatInterval = 100 * time.Millisecond
	detectorBufferDepth = 100
)

// StatusCallback is invoked after every heartbeat tick with the detector's
// current status.
type StatusCallback func(detector.Status)

// Controller owns a Detector and runs its reconnect heartbeat.
type Controller struct {
	dev    detector.Detector
	logger *log.Logger

	mu     sync.RWMutex
	status detector.Status

	onStatus StatusCallback

	stopHeartbeat chan struct{}
	heartbeatDone chan struct{}
}

// New constructs a Controller around dev and immediately starts its
// heartbeat loop.
func New(dev detector.Detector, logger *log.Logger, onStatus StatusCallback) *Controller {
	c := &Controller{
		dev:           dev,
		logger:        logger,
		onStatus:      onStatus,
		stopHeartbeat: make(chan struct{}),
		heartbeatDone: make(chan struct{}),
	}
	go c.heartbeatLoop()
	return c
}

// Close stops the heartbeat goroutine.
func (c *Controller) Close() {
	close(c.stopHeartbeat)
	<-c.heartbeatDone
}

// Status returns the controller's last-observed detector status.
func (c *Controller) Status() detector.Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// SetCapturing marks the controller as actively capturing, so the heartbeat
// doesn't race a running capture's own detector calls.
func (c *Controller) SetCapturing(capturing bool) {
	c.mu.Lock()
	if capturing {
		c.status = detector.StatusCapturing
	} else if c.status == detector.StatusCapturing {
		c.status = detector.StatusAvailable
	}
	cb := c.onStatus
	s := c.status
	c.mu.Unlock()
	if cb != nil {
		cb(s)
	}
}

func (c *Controller) heartbeatLoop() {
	defer close(c.heartbeatDone)
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopHeartbeat:
			return
		case <-ticker.C:
			c.tick()
		}
	}
}

func (c *Controller) tick() {
	c.mu.Lock()
	current := c.status
	c.mu.Unlock()

	var next detector.Status
	switch current {
	case detector.StatusDisconnected:
		if err := c.dev.Open(detectorBufferDepth); err != nil {
			next = detector.StatusDisconnected
		} else {
			next = detector.StatusAvailable
		}
	case detector.StatusAvailable, detector.StatusCapturing:
		if !c.dev.IsConnected() {
			next = detector.StatusDisconnected
			c.logger.Printf("[controller] detector connection lost")
		} else {
			next = current
		}
	}

	c.mu.Lock()
	c.status = next
	cb := c.onStatus
	c.mu.Unlock()

	// Invoked after every tick, not just on transitions, so the Manager can
	// recompute its derived status on the same cadence the heartbeat runs at.
	if cb != nil {
		cb(next)
	}
}

// RunCaptureStream configures the detector per setting, runs the selected
// CaptureMode strategy, and wraps every produced frame with correction
// (when setting.Corrected is set) before forwarding it on out. Missing
// correction maps degrade to a logged warning rather than aborting the
// capture.
func (c *Controller) RunCaptureStream(ctx context.Context, setting imaging.CaptureSetting, maps *correction.Maps, out chan<- *imaging.RawImage) error {
	if err := c.dev.SetExposureTime(setting.ExposureMS); err != nil {
		return err
	}
	if err := c.dev.SetFullWell(setting.FullWell); err != nil {
		return err
	}
	if err := c.dev.SetBinning(setting.Binning); err != nil {
		return err
	}

	raw := make(chan *imaging.RawImage)
	errCh := make(chan error, 1)

	go func() {
		defer close(raw)
		var err error
		switch setting.Mode.Kind {
		case imaging.ExposureModeSequence:
			err = capturemode.RunSequence(ctx, c.dev, setting.Mode.FrameCount, c.logger, raw)
		case imaging.ExposureModeStream:
			// RunStream treats a duration <= 0 as unbounded, so a bounded
			// zero-length stream gets the smallest positive bound instead.
			duration := setting.Mode.StreamDuration
			if setting.Mode.StreamUnbounded {
				duration = 0
			} else if duration <= 0 {
				duration = time.Nanosecond
			}
			err = capturemode.RunStream(ctx, c.dev, setting.ExposureMS, duration, c.logger, raw)
		}
		errCh <- err
	}()

	for frame := range raw {
		corrected := frame
		if setting.Corrected {
			corrected = c.applyCorrection(frame, setting.ExposureMS, maps)
		}
		select {
		case out <- corrected:
		case <-ctx.Done():
		}
	}

	return <-errCh
}

func (c *Controller) applyCorrection(frame *imaging.RawImage, exp int, maps *correction.Maps) *imaging.RawImage {
	result := frame
	if darkCorrected, err := maps.DarkCorrect(result, exp); err == nil {
		result = darkCorrected
	} else if err != correction.ErrNotFound {
		c.logger.Printf("[controller] dark correction failed: %v", err)
	} else {
		c.logger.Printf("[controller] no dark map for %dms, skipping dark correction", exp)
	}

	if defectCorrected, err := maps.DefectCorrect(result); err == nil {
		result = defectCorrected
	} else if err != correction.ErrNotFound {
		c.logger.Printf("[controller] defect correction failed: %v", err)
	} else {
		c.logger.Printf("[controller] no defect map loaded, skipping defect correction")
	}

	return result
}

// Detector exposes the underlying device. Calibration captures do not go
// through it; they run uncorrected via RunCaptureStream.
func (c *Controller) Detector() detector.Detector {
	return c.dev
}
