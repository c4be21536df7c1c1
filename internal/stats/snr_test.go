package stats

import (
	"testing"

	"xraycore/internal/imaging"
)

func TestComputeSNRWindowExceedsImage(t *testing.T) {
	img := imaging.NewRawImage(4, 4)
	if _, err := ComputeSNR(img, 8); err == nil {
		t.Error("expected error when window size exceeds image dimensions")
	}
}

func TestComputeSNRNonPositiveWindow(t *testing.T) {
	img := imaging.NewRawImage(4, 4)
	if _, err := ComputeSNR(img, 0); err == nil {
		t.Error("expected error for a non-positive window size")
	}
}

func TestComputeSNRUniformImageIsZero(t *testing.T) {
	img := imaging.NewRawImage(8, 8)
	for i := range img.Pix {
		img.Pix[i] = 1000
	}

	result, err := ComputeSNR(img, 4)
	if err != nil {
		t.Fatalf("ComputeSNR: %v", err)
	}
	if result.SNR != 0 {
		t.Errorf("SNR = %v, want 0 for a uniform image", result.SNR)
	}
	if result.BackgroundRect != result.ForegroundRect {
		t.Errorf("BackgroundRect %v != ForegroundRect %v for a uniform image", result.BackgroundRect, result.ForegroundRect)
	}
}

func TestComputeSNRHigherContrastYieldsHigherSNR(t *testing.T) {
	low := imaging.NewRawImage(8, 8)
	for i := range low.Pix {
		low.Pix[i] = 1000
	}
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			low.Set(x, y, 1100)
		}
	}

	high := imaging.NewRawImage(8, 8)
	for i := range high.Pix {
		high.Pix[i] = 1000
	}
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			high.Set(x, y, 3000)
		}
	}

	lowResult, err := ComputeSNR(low, 4)
	if err != nil {
		t.Fatalf("ComputeSNR(low): %v", err)
	}
	highResult, err := ComputeSNR(high, 4)
	if err != nil {
		t.Fatalf("ComputeSNR(high): %v", err)
	}
	if highResult.SNR <= lowResult.SNR {
		t.Errorf("expected higher-contrast image to score a higher SNR: low=%v high=%v", lowResult.SNR, highResult.SNR)
	}
}
