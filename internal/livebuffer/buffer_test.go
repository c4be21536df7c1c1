package livebuffer

import (
	"testing"

	"xraycore/internal/imaging"
)

func itemWithValue(v uint16) Item {
	img := imaging.NewRawImage(1, 1)
	img.Set(0, 0, v)
	return Item{Image: img}
}

func TestBufferPushPullOrder(t *testing.T) {
	b := New(3)
	b.Push(itemWithValue(1))
	b.Push(itemWithValue(2))
	b.Push(itemWithValue(3))

	for _, want := range []uint16{1, 2, 3} {
		item, ok := b.Pull()
		if !ok {
			t.Fatalf("Pull() ok = false, want true")
		}
		if got := item.Image.At(0, 0); got != want {
			t.Errorf("Pull() = %d, want %d", got, want)
		}
	}
	if _, ok := b.Pull(); ok {
		t.Error("expected empty buffer after draining all pushed items")
	}
}

func TestBufferDropsOldestWhenFull(t *testing.T) {
	b := New(2)
	b.Push(itemWithValue(1))
	b.Push(itemWithValue(2))
	b.Push(itemWithValue(3)) // should evict 1

	first, _ := b.Pull()
	second, _ := b.Pull()
	if first.Image.At(0, 0) != 2 || second.Image.At(0, 0) != 3 {
		t.Errorf("got %d, %d; want 2, 3 (oldest item dropped)", first.Image.At(0, 0), second.Image.At(0, 0))
	}
}

func TestBufferClear(t *testing.T) {
	b := New(4)
	b.Push(itemWithValue(1))
	b.Push(itemWithValue(2))
	b.Clear()

	if b.Len() != 0 {
		t.Errorf("Len() after Clear = %d, want 0", b.Len())
	}
	if _, ok := b.Pull(); ok {
		t.Error("expected empty buffer after Clear")
	}
}

func TestRenderGrayscaleMapping(t *testing.T) {
	img := imaging.NewRawImage(2, 1)
	img.Set(0, 0, 0)
	img.Set(1, 0, imaging.MaxPixelValue)

	frame := Render(img, RenderOptions{})
	if frame.Width != 2 || frame.Height != 1 {
		t.Fatalf("rendered dimensions = %dx%d, want 2x1", frame.Width, frame.Height)
	}
	if len(frame.RGBA8) != 2*1*4 {
		t.Fatalf("RGBA8 length = %d, want %d", len(frame.RGBA8), 2*1*4)
	}
	// Darkest pixel should render near-black, brightest near-white.
	if frame.RGBA8[0] != 0 {
		t.Errorf("pixel 0 red channel = %d, want 0", frame.RGBA8[0])
	}
	if frame.RGBA8[4] < 250 {
		t.Errorf("pixel 1 red channel = %d, want near 255", frame.RGBA8[4])
	}
}
