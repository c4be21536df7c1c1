package stats

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"xraycore/internal/imaging"
)

// SNRResult carries the scalar SNR figure plus the windows that produced it,
// matching the SmartCaptureData payload attached to each scored frame.
type SNRResult struct {
	SNR            float64
	BackgroundRect imaging.Rect // window with the minimum mean
	ForegroundRect imaging.Rect // window with the maximum mean
}

// ComputeSNR slides a windowSize x windowSize window over every position in
// img (via its precomputed integral image) and returns
// (max window mean - min window mean) / |min window mean - DarkOffset|,
// along with the windows that produced the extremes.
//
// A windowSize larger than either image dimension is a structured error.
func ComputeSNR(img *imaging.RawImage, windowSize int) (SNRResult, error) {
	if windowSize <= 0 {
		return SNRResult{}, fmt.Errorf("stats: window size must be positive, got %d", windowSize)
	}
	if windowSize > img.Width || windowSize > img.Height {
		return SNRResult{}, fmt.Errorf("stats: window size %d exceeds image dimensions %dx%d", windowSize, img.Width, img.Height)
	}

	ii := BuildIntegralImage(img)

	var means []float64
	var rects []imaging.Rect
	for y := 0; y+windowSize <= img.Height; y++ {
		for x := 0; x+windowSize <= img.Width; x++ {
			mean, err := ii.WindowMean(x, y, windowSize)
			if err != nil {
				return SNRResult{}, err
			}
			means = append(means, mean)
			rects = append(rects, imaging.Rect{X: x, Y: y, Width: windowSize, Height: windowSize})
		}
	}
	if len(means) == 0 {
		return SNRResult{}, fmt.Errorf("stats: no windows fit in image")
	}

	minIdx := floats.MinIdx(means)
	maxIdx := floats.MaxIdx(means)

	minMean, maxMean := means[minIdx], means[maxIdx]
	denom := math.Abs(minMean - imaging.DarkOffset)

	var snr float64
	if denom == 0 {
		snr = 0
	} else {
		snr = (maxMean - minMean) / denom
	}

	return SNRResult{
		SNR:            snr,
		BackgroundRect: rects[minIdx],
		ForegroundRect: rects[maxIdx],
	}, nil
}
