package livebuffer

import "xraycore/internal/imaging"

// RenderedFrame is the pull-format the UI's live view reads, per the
// spec's §6 wire contract.
type RenderedFrame struct {
	Width  uint32
	Height uint32
	RGBA8  []byte
}

// RenderOptions controls the grayscale-to-RGBA8 mapping.
type RenderOptions struct {
	// SaturatedPixelThreshold, when non-nil, causes any source pixel
	// exceeding it to render as pure red instead of grayscale.
	SaturatedPixelThreshold *uint16
	Invert                  bool
}

// Render converts img to an RGBA8 frame per RenderOptions: saturated pixels
// (if a threshold is set) become (255,0,0,255); everything else maps
// linearly from the 14-bit source range to 8-bit grayscale, inverted if
// requested.
func Render(img *imaging.RawImage, opts RenderOptions) RenderedFrame {
	out := RenderedFrame{
		Width:  uint32(img.Width),
		Height: uint32(img.Height),
		RGBA8:  make([]byte, img.Width*img.Height*4),
	}

	for i, v := range img.Pix {
		var r, g, b, a byte
		if opts.SaturatedPixelThreshold != nil && v > *opts.SaturatedPixelThreshold {
			r, g, b, a = 255, 0, 0, 255
		} else {
			gray := byte((uint32(v) * 255) / imaging.MaxPixelValue)
			if opts.Invert {
				gray = 255 - gray
			}
			r, g, b, a = gray, gray, gray, 255
		}
		off := i * 4
		out.RGBA8[off], out.RGBA8[off+1], out.RGBA8[off+2], out.RGBA8[off+3] = r, g, b, a
	}
	return out
}
