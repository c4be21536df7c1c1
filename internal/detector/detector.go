// Package detector defines the facade used to drive one physical (or
// simulated) X-ray flat-panel detector. Every backend the Core talks to —
// vendor SDK wrapper or SimulatedDetector — is consumed through this one
// interface, so callers never branch on which device backend is attached.
package detector

import (
	"context"
	"errors"

	"xraycore/internal/imaging"
)

// Sentinel errors normalizing every backend's failure modes into one set,
// mirroring authguard.ErrInvalidToken/ErrExpiredToken's plain sentinel style.
var (
	ErrNoDevice       = errors.New("detector: no device available")
	ErrBusy           = errors.New("detector: device is busy")
	ErrRequiresAdmin  = errors.New("detector: operation requires elevated privileges")
	ErrNotConnected   = errors.New("detector: not connected")
	ErrInvalidState   = errors.New("detector: invalid state for operation")
	ErrTimeout        = errors.New("detector: read timed out")
	ErrSDK            = errors.New("detector: sdk error")
)

// Status is the coarse connectivity state the heartbeat drives.
type Status int

const (
	StatusDisconnected Status = iota
	StatusAvailable
	StatusCapturing
)

func (s Status) String() string {
	switch s {
	case StatusAvailable:
		return "available"
	case StatusCapturing:
		return "capturing"
	default:
		return "disconnected"
	}
}

// Detector is the hardware facade contract described by the Core's capture
// pipeline. All setters return a structured error; callers must abort the
// enclosing capture on any non-nil result.
type Detector interface {
	Open(bufferDepth int) error
	IsConnected() bool

	SetExposureTime(ms int) error
	SetExposureMode(mode imaging.ExposureMode) error
	SetFrameCount(n int) error
	SetFullWell(fw imaging.FullWell) error
	SetBinning(b imaging.Binning) error

	GoLive() error
	GoUnlive(wipeBuffers bool) error
	SoftwareTrigger() error

	ReadBuffer(ctx context.Context, dst *imaging.RawImage, frameIndex int, timeoutMS int) error
	ReadFrame(dst *imaging.RawImage, oldestFirst bool) (bool, error)
	StartStream(expMS int) error

	ImageDimensions() (width, height int)
}
