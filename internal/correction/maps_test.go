package correction

import (
	"path/filepath"
	"testing"

	"xraycore/internal/imaging"
)

func TestTIFFRoundTrip(t *testing.T) {
	img := imaging.NewRawImage(4, 3)
	for i := range img.Pix {
		img.Pix[i] = uint16(i * 137 % imaging.MaxPixelValue)
	}

	path := filepath.Join(t.TempDir(), "roundtrip.tif")
	if err := EncodeFile(path, img); err != nil {
		t.Fatalf("EncodeFile: %v", err)
	}

	got, err := DecodeFile(path)
	if err != nil {
		t.Fatalf("DecodeFile: %v", err)
	}
	if got.Width != img.Width || got.Height != img.Height {
		t.Fatalf("dimensions mismatch: got %dx%d, want %dx%d", got.Width, got.Height, img.Width, img.Height)
	}
	for i := range img.Pix {
		if got.Pix[i] != img.Pix[i] {
			t.Errorf("pixel %d = %d, want %d", i, got.Pix[i], img.Pix[i])
		}
	}
}

func TestDarkCorrectZeroMapIsIdentityPlusOffset(t *testing.T) {
	maps := New(t.TempDir())

	img := imaging.NewRawImage(2, 2)
	for i := range img.Pix {
		img.Pix[i] = 5000
	}
	zeroDark := imaging.NewRawImage(2, 2)
	if err := maps.SetDark(100, zeroDark); err != nil {
		t.Fatalf("SetDark: %v", err)
	}

	corrected, err := maps.DarkCorrect(img, 100)
	if err != nil {
		t.Fatalf("DarkCorrect: %v", err)
	}
	for i, v := range corrected.Pix {
		want := img.Pix[i] + imaging.DarkOffset
		if v != want {
			t.Errorf("pixel %d = %d, want %d", i, v, want)
		}
	}
}

func TestDarkCorrectNotFound(t *testing.T) {
	maps := New(t.TempDir())
	img := imaging.NewRawImage(2, 2)
	if _, err := maps.DarkCorrect(img, 999); err != ErrNotFound {
		t.Errorf("DarkCorrect() error = %v, want ErrNotFound", err)
	}
}

func TestDefectCorrectInterpolatesFlaggedPixels(t *testing.T) {
	maps := New(t.TempDir())

	defect := imaging.NewRawImage(3, 1)
	defect.Pix = []uint16{1, 0, 1} // middle pixel is defective
	if err := maps.SetDefect(defect); err != nil {
		t.Fatalf("SetDefect: %v", err)
	}

	img := imaging.NewRawImage(3, 1)
	img.Pix = []uint16{100, 9999, 200}

	corrected, err := maps.DefectCorrect(img)
	if err != nil {
		t.Fatalf("DefectCorrect: %v", err)
	}
	if got := corrected.At(1, 0); got != 150 {
		t.Errorf("defective pixel interpolated to %d, want 150", got)
	}
	if corrected.At(0, 0) != 100 || corrected.At(2, 0) != 200 {
		t.Errorf("non-defective pixels were modified: %v", corrected.Pix)
	}
}

func TestDarkExposureTimesSorted(t *testing.T) {
	maps := New(t.TempDir())
	for _, exp := range []int{200, 50, 100} {
		if err := maps.SetDark(exp, imaging.NewRawImage(1, 1)); err != nil {
			t.Fatalf("SetDark(%d): %v", exp, err)
		}
	}

	got := maps.DarkExposureTimes()
	want := []int{50, 100, 200}
	if len(got) != len(want) {
		t.Fatalf("DarkExposureTimes() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("DarkExposureTimes()[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestLoadFromDiskParsesDarkMapFilenames(t *testing.T) {
	dir := t.TempDir()
	maps := New(dir)
	if err := maps.SetDark(150, imaging.NewRawImage(2, 2)); err != nil {
		t.Fatalf("SetDark: %v", err)
	}

	reloaded := New(dir)
	if err := reloaded.LoadFromDisk(); err != nil {
		t.Fatalf("LoadFromDisk: %v", err)
	}
	if !reloaded.HasDark(150) {
		t.Error("expected reloaded registry to have a dark map for 150ms")
	}
}
