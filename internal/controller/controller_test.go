package controller

import (
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"xraycore/internal/correction"
	"xraycore/internal/detector"
	"xraycore/internal/imaging"
)

func testLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

type statusRecorder struct {
	mu   sync.Mutex
	seen []detector.Status
}

func (r *statusRecorder) record(s detector.Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, s)
}

func (r *statusRecorder) last() detector.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.seen) == 0 {
		return detector.StatusDisconnected
	}
	return r.seen[len(r.seen)-1]
}

func (r *statusRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.seen)
}

func TestHeartbeatConnectsAndInvokesCallbackEveryTick(t *testing.T) {
	dev := detector.NewSimulatedDetector(2, 2)
	rec := &statusRecorder{}
	c := New(dev, testLogger(), rec.record)
	defer c.Close()

	deadline := time.Now().Add(2 * time.Second)
	for rec.last() != detector.StatusAvailable && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if rec.last() != detector.StatusAvailable {
		t.Fatalf("controller never reached StatusAvailable, last status = %v", rec.last())
	}
	// The first tick both connects and reports; wait for a later tick too.
	for rec.count() < 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if rec.count() < 2 {
		t.Errorf("expected the callback to fire on more than one tick, got %d calls", rec.count())
	}
}

func TestHeartbeatDetectsDisconnectAndRecovers(t *testing.T) {
	dev := detector.NewSimulatedDetector(2, 2)
	rec := &statusRecorder{}
	c := New(dev, testLogger(), rec.record)
	defer c.Close()

	deadline := time.Now().Add(2 * time.Second)
	for rec.last() != detector.StatusAvailable && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if rec.last() != detector.StatusAvailable {
		t.Fatalf("controller never reached StatusAvailable")
	}

	dev.Disconnect()

	deadline = time.Now().Add(2 * time.Second)
	for rec.last() != detector.StatusDisconnected && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if rec.last() != detector.StatusDisconnected {
		t.Fatalf("controller never observed the simulated disconnect")
	}

	// The next tick should reconnect it automatically, since
	// SimulatedDetector.Open never fails.
	deadline = time.Now().Add(2 * time.Second)
	for rec.last() != detector.StatusAvailable && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if rec.last() != detector.StatusAvailable {
		t.Fatalf("controller never recovered from the simulated disconnect")
	}
}

func TestApplyCorrectionDegradesGracefullyWithoutMaps(t *testing.T) {
	dev := detector.NewSimulatedDetector(2, 2)
	c := New(dev, testLogger(), nil)
	defer c.Close()

	maps := correction.New(t.TempDir())
	frame := imaging.NewRawImage(2, 2)
	for i := range frame.Pix {
		frame.Pix[i] = 500
	}

	out := c.applyCorrection(frame, 100, maps)
	for i, v := range out.Pix {
		if v != frame.Pix[i] {
			t.Errorf("pixel %d = %d, want %d (no maps means no correction applied)", i, v, frame.Pix[i])
		}
	}
}
