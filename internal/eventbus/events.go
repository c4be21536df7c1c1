// Package eventbus carries the Capture Manager's one-way, JSON-serializable
// UI events and fans them out to subscribed WebSocket clients: a map of
// connections behind a lock, with best-effort dispatch to each, where every
// write is bounded by a write deadline.
package eventbus

import (
	"xraycore/internal/imaging"

	"github.com/google/uuid"
)

// CaptureManagerEvent reports the Capture Manager's current status. Status
// carries all five CaptureManager status values (detector_disconnected,
// dark_maps_required, defect_maps_required, available, capturing) — the
// full range the control surface needs, not just the detector's own
// three-valued connectivity status.
type CaptureManagerEvent struct {
	Type                   string     `json:"type"`
	Status                 string     `json:"status"`
	ActiveProtocol         string     `json:"active_protocol,omitempty"`
	DarkMapExposureTimesMS []int      `json:"dark_map_exposure_times_ms"`
	HasDefectMap           bool       `json:"has_defect_map"`
	RunID                  *uuid.UUID `json:"run_id,omitempty"`
}

// NewCaptureManagerEvent builds a CaptureManagerEvent. status is the
// caller's own String() rendering of its 5-valued status type, kept as a
// plain string here so this package doesn't need to depend on the
// manager package's status type.
func NewCaptureManagerEvent(status string, activeProtocol string, darkExposures []int, hasDefect bool, runID *uuid.UUID) CaptureManagerEvent {
	return CaptureManagerEvent{
		Type:                   "capture_manager",
		Status:                 status,
		ActiveProtocol:         activeProtocol,
		DarkMapExposureTimesMS: darkExposures,
		HasDefectMap:           hasDefect,
		RunID:                  runID,
	}
}

// CaptureProgressEvent wraps a CaptureProgress update for the wire.
type CaptureProgressEvent struct {
	Type     string                  `json:"type"`
	RunID    uuid.UUID               `json:"run_id"`
	Progress imaging.CaptureProgress `json:"progress"`
}

// NewCaptureProgressEvent builds a CaptureProgressEvent.
func NewCaptureProgressEvent(runID uuid.UUID, progress imaging.CaptureProgress) CaptureProgressEvent {
	return CaptureProgressEvent{Type: "capture_progress", RunID: runID, Progress: progress}
}

// StreamCaptureEvent is fired once per frame pushed to the live buffer; it
// carries no payload beyond the run it belongs to.
type StreamCaptureEvent struct {
	Type  string    `json:"type"`
	RunID uuid.UUID `json:"run_id"`
}

// NewStreamCaptureEvent builds a StreamCaptureEvent.
func NewStreamCaptureEvent(runID uuid.UUID) StreamCaptureEvent {
	return StreamCaptureEvent{Type: "stream_capture", RunID: runID}
}
