package stats

import (
	"runtime"
	"sort"
	"sync"

	"xraycore/internal/imaging"
)

// MedianFilter3x3 returns a new image with every pixel replaced by the
// median of its 3x3 neighborhood (edge pixels use whatever in-bounds
// neighbors exist). Rows are processed by a bounded worker pool, the same
// fan-out shape BuildIntegralImage uses.
func MedianFilter3x3(img *imaging.RawImage) *imaging.RawImage {
	out := imaging.NewRawImage(img.Width, img.Height)

	workers := runtime.NumCPU()
	if workers < 1 {
		workers = 1
	}
	if workers > img.Height {
		workers = img.Height
	}

	var wg sync.WaitGroup
	chunk := (img.Height + workers - 1) / workers
	for start := 0; start < img.Height; start += chunk {
		end := start + chunk
		if end > img.Height {
			end = img.Height
		}
		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			medianFilterRows(img, out, start, end)
		}(start, end)
	}
	wg.Wait()
	return out
}

func medianFilterRows(img, out *imaging.RawImage, startY, endY int) {
	w, h := img.Width, img.Height
	neighborhood := make([]uint16, 0, 9)
	for y := startY; y < endY; y++ {
		for x := 0; x < w; x++ {
			neighborhood = neighborhood[:0]
			for dy := -1; dy <= 1; dy++ {
				ny := y + dy
				if ny < 0 || ny >= h {
					continue
				}
				for dx := -1; dx <= 1; dx++ {
					nx := x + dx
					if nx < 0 || nx >= w {
						continue
					}
					neighborhood = append(neighborhood, img.At(nx, ny))
				}
			}
			sort.Slice(neighborhood, func(i, j int) bool { return neighborhood[i] < neighborhood[j] })
			out.Set(x, y, neighborhood[len(neighborhood)/2])
		}
	}
}
