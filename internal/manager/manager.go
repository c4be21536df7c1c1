// Package manager implements the CaptureManager: the process-wide
// orchestrator that ensures exactly one AdvancedCapture protocol runs at a
// time, derives the user-visible status, and fans frames/events out to the
// live buffer and Event Gateway. It tracks a single active run rather than
// one-per-key, since this Core drives exactly one detector.
package manager

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/google/uuid"

	"xraycore/internal/advanced"
	"xraycore/internal/controller"
	"xraycore/internal/correction"
	"xraycore/internal/detector"
	"xraycore/internal/eventbus"
	"xraycore/internal/livebuffer"
)

// ErrBusy is returned by StartCapture when a capture is already running.
var ErrBusy = errors.New("manager: a capture is already running")

// ErrDisconnected is returned when the detector isn't ready to start a
// capture.
var ErrDisconnected = errors.New("manager: detector is not available")

// Status is the Capture Manager's derived, user-visible state.
type Status int

const (
	StatusDetectorDisconnected Status = iota
	StatusDarkMapsRequired
	StatusDefectMapsRequired
	StatusAvailable
	StatusCapturing
)

func (s Status) String() string {
	switch s {
	case StatusDarkMapsRequired:
		return "dark_maps_required"
	case StatusDefectMapsRequired:
		return "defect_maps_required"
	case StatusAvailable:
		return "available"
	case StatusCapturing:
		return "capturing"
	default:
		return "detector_disconnected"
	}
}

// Manager is the CaptureManager.
type Manager struct {
	ctrl   *controller.Controller
	maps   *correction.Maps
	hub    *eventbus.Hub
	live   *livebuffer.Buffer
	logger *log.Logger

	mu             sync.Mutex
	status         Status
	activeProtocol string
	cancelActive   context.CancelFunc
	runID          uuid.UUID
}

// New constructs a Manager and attaches it as the controller's status
// callback, so every heartbeat tick recomputes the derived status.
func New(dev detector.Detector, maps *correction.Maps, hub *eventbus.Hub, live *livebuffer.Buffer, logger *log.Logger) *Manager {
	m := &Manager{maps: maps, hub: hub, live: live, logger: logger}
	m.ctrl = controller.New(dev, logger, m.onDetectorStatus)
	return m
}

// Close releases the underlying controller's heartbeat goroutine.
func (m *Manager) Close() {
	m.ctrl.Close()
}

func (m *Manager) onDetectorStatus(s detector.Status) {
	m.mu.Lock()
	var next Status
	switch {
	case s == detector.StatusDisconnected:
		next = StatusDetectorDisconnected
	case m.status == StatusCapturing && s == detector.StatusCapturing:
		next = StatusCapturing
	case len(m.maps.DarkExposureTimes()) == 0:
		next = StatusDarkMapsRequired
	case !m.maps.HasDefect():
		next = StatusDefectMapsRequired
	default:
		next = StatusAvailable
	}
	m.status = next
	m.publishStatusLocked()
	m.mu.Unlock()
}

// publishStatusLocked emits a CaptureManagerEvent; caller must hold m.mu.
func (m *Manager) publishStatusLocked() {
	var runID *uuid.UUID
	if m.status == StatusCapturing {
		id := m.runID
		runID = &id
	}
	event := eventbus.NewCaptureManagerEvent(m.status.String(), m.activeProtocol, m.maps.DarkExposureTimes(), m.maps.HasDefect(), runID)
	m.hub.Publish(event)
}

// Status returns the manager's current derived status.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// StartCapture begins running proto, returning the run ID stamped on every
// event/frame this run produces. It fails with ErrBusy if a capture is
// already running, or ErrDisconnected if the detector isn't Available.
func (m *Manager) StartCapture(proto advanced.Protocol) (uuid.UUID, <-chan advanced.CaptureItem, error) {
	m.mu.Lock()
	if m.status == StatusCapturing {
		m.mu.Unlock()
		return uuid.UUID{}, nil, ErrBusy
	}
	if m.status == StatusDetectorDisconnected {
		m.mu.Unlock()
		return uuid.UUID{}, nil, ErrDisconnected
	}

	runID := uuid.New()
	ctx, cancel := context.WithCancel(context.Background())
	m.runID = runID
	m.cancelActive = cancel
	m.activeProtocol = proto.Name()
	m.status = StatusCapturing
	m.mu.Unlock()

	// SetCapturing invokes onDetectorStatus, which takes m.mu itself — it
	// must run outside the section above to avoid locking m.mu twice.
	m.ctrl.SetCapturing(true)

	out := make(chan advanced.CaptureItem)
	go proto.Run(ctx, m.ctrl, m.maps, out)

	forwarded := make(chan advanced.CaptureItem)
	go m.forward(runID, out, forwarded)

	return runID, forwarded, nil
}

// forward relays items from the protocol's raw channel to both the caller's
// channel and the live buffer / Event Gateway, and clears Capturing status
// on completion.
func (m *Manager) forward(runID uuid.UUID, in <-chan advanced.CaptureItem, out chan<- advanced.CaptureItem) {
	defer close(out)
	for item := range in {
		switch item.Kind {
		case advanced.ItemImage:
			m.live.Push(livebuffer.Item{Image: item.Image, Metadata: item.Metadata})
			m.hub.Publish(eventbus.NewStreamCaptureEvent(runID))
		case advanced.ItemProgress:
			m.hub.Publish(eventbus.NewCaptureProgressEvent(runID, item.Progress))
		}
		out <- item
	}
	m.finishCapture()
}

func (m *Manager) finishCapture() {
	m.mu.Lock()
	m.activeProtocol = ""
	m.cancelActive = nil
	m.mu.Unlock()

	// SetCapturing invokes onDetectorStatus, which recomputes and publishes
	// the manager's derived status now that the detector is free again.
	m.ctrl.SetCapturing(false)
}

// StopCapture cancels the active capture, if any, and clears the live
// buffer. If nothing is running, only the live buffer is cleared.
func (m *Manager) StopCapture() {
	m.mu.Lock()
	cancel := m.cancelActive
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	m.live.Clear()
}

// GenerateDarkMaps runs the DarkMap calibration protocol synchronously,
// draining its item stream and returning once complete.
func (m *Manager) GenerateDarkMaps(expMS []int, framesPerCapture int) error {
	proto := &advanced.DarkMap{ExposureTimesMS: expMS, FramesPerCapture: framesPerCapture, Logger: m.logger}
	return m.runToCompletion(proto)
}

// GenerateDefectMap runs the DefectMap calibration protocol synchronously.
func (m *Manager) GenerateDefectMap(expMS []int, framesPerCapture int) error {
	proto := &advanced.DefectMap{ExposureTimesMS: expMS, FramesPerCapture: framesPerCapture, Logger: m.logger}
	return m.runToCompletion(proto)
}

func (m *Manager) runToCompletion(proto advanced.Protocol) error {
	_, items, err := m.StartCapture(proto)
	if err != nil {
		return err
	}
	for range items {
	}
	return nil
}

// Pull returns the next live frame, if any is buffered.
func (m *Manager) Pull() (livebuffer.Item, bool) {
	return m.live.Pull()
}

// LiveBuffer exposes the underlying buffer for renderer wiring.
func (m *Manager) LiveBuffer() *livebuffer.Buffer {
	return m.live
}
