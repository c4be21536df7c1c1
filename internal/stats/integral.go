// Package stats implements the per-frame signal statistics SmartCapture is
// built on: an integral-image precomputation for O(1) windowed mean
// queries, the SNR figure of merit derived from it, and the 3x3 median
// filter SmartCapture optionally runs before scoring.
package stats

import (
	"fmt"
	"runtime"
	"sync"

	"xraycore/internal/imaging"
)

// IntegralImage is a 2-D prefix sum over a RawImage's pixels, enabling
// O(1) rectangle-sum queries after an O(W*H) precomputation pass.
type IntegralImage struct {
	width, height int
	sum           []float64 // (width+1) x (height+1), row-major
}

// BuildIntegralImage precomputes the prefix sums of img, parallelizing the
// row-wise accumulation pass across a worker pool sized to the host's CPU
// count — the same fan-out shape the Core uses for the median filter.
func BuildIntegralImage(img *imaging.RawImage) *IntegralImage {
	w, h := img.Width, img.Height
	ii := &IntegralImage{width: w, height: h, sum: make([]float64, (w+1)*(h+1))}

	workers := runtime.NumCPU()
	if workers < 1 {
		workers = 1
	}
	if workers > h {
		workers = h
	}
	if workers <= 1 {
		ii.accumulateRows(img, 0, h)
		return ii
	}

	// Each worker computes independent row-wise running sums; the final
	// column-wise prefix pass is then a cheap single-threaded sweep, since
	// it depends on every row's partial result.
	rowSums := make([][]float64, h)
	var wg sync.WaitGroup
	chunk := (h + workers - 1) / workers
	for start := 0; start < h; start += chunk {
		end := start + chunk
		if end > h {
			end = h
		}
		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			for y := start; y < end; y++ {
				running := 0.0
				row := make([]float64, w)
				for x := 0; x < w; x++ {
					running += float64(img.At(x, y))
					row[x] = running
				}
				rowSums[y] = row
			}
		}(start, end)
	}
	wg.Wait()

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			above := ii.sum[y*(w+1)+(x+1)]
			ii.sum[(y+1)*(w+1)+(x+1)] = above + rowSums[y][x]
		}
	}
	return ii
}

func (ii *IntegralImage) accumulateRows(img *imaging.RawImage, start, end int) {
	w := ii.width
	for y := start; y < end; y++ {
		rowSum := 0.0
		for x := 0; x < w; x++ {
			rowSum += float64(img.At(x, y))
			above := ii.sum[y*(w+1)+(x+1)]
			ii.sum[(y+1)*(w+1)+(x+1)] = above + rowSum
		}
	}
}

// RectSum returns the sum of pixels in [x, x+width) x [y, y+height).
func (ii *IntegralImage) RectSum(x, y, width, height int) (float64, error) {
	if x < 0 || y < 0 || width <= 0 || height <= 0 || x+width > ii.width || y+height > ii.height {
		return 0, fmt.Errorf("stats: window [%d,%d,%d,%d] out of bounds for %dx%d image", x, y, width, height, ii.width, ii.height)
	}
	x1, y1 := x+width, y+height
	w1 := ii.width + 1
	return ii.sum[y1*w1+x1] - ii.sum[y*w1+x1] - ii.sum[y1*w1+x] + ii.sum[y*w1+x], nil
}

// WindowMean returns the arithmetic mean of the window at (x, y).
func (ii *IntegralImage) WindowMean(x, y, windowSize int) (float64, error) {
	sum, err := ii.RectSum(x, y, windowSize, windowSize)
	if err != nil {
		return 0, err
	}
	return sum / float64(windowSize*windowSize), nil
}
