package correction

import (
	"bufio"
	"image"
	"image/color"
	"os"

	ximage_tiff "golang.org/x/image/tiff"

	"xraycore/internal/imaging"
)

// EncodeFile writes img to path as a 16-bit grayscale TIFF.
func EncodeFile(path string, img *imaging.RawImage) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if err := Encode(w, img); err != nil {
		return err
	}
	return w.Flush()
}

// Encode writes img as a 16-bit grayscale TIFF via toGray16 + x/image/tiff's
// own encoder.
func Encode(w *bufio.Writer, img *imaging.RawImage) error {
	return ximage_tiff.Encode(w, toGray16(img), nil)
}

// toGray16 copies img into the standard library's image.Gray16, the pixel
// format x/image/tiff's encoder writes natively.
func toGray16(img *imaging.RawImage) *image.Gray16 {
	g := image.NewGray16(image.Rect(0, 0, img.Width, img.Height))
	for y := 0; y < img.Height; y++ {
		for x := 0; x < img.Width; x++ {
			g.SetGray16(x, y, color.Gray16{Y: img.At(x, y)})
		}
	}
	return g
}

// DecodeFile reads a TIFF (any encoder, via x/image/tiff) and converts it to
// a RawImage. A 16-bit grayscale image is copied as is; any other image keeps
// only its red channel (which equals the gray level for grayscale inputs).
func DecodeFile(path string) (*imaging.RawImage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, err := ximage_tiff.Decode(bufio.NewReader(f))
	if err != nil {
		return nil, err
	}
	return fromImage(img), nil
}

func fromImage(img image.Image) *imaging.RawImage {
	b := img.Bounds()
	out := imaging.NewRawImage(b.Dx(), b.Dy())
	if g16, ok := img.(*image.Gray16); ok {
		for y := 0; y < b.Dy(); y++ {
			for x := 0; x < b.Dx(); x++ {
				out.Set(x, y, g16.Gray16At(b.Min.X+x, b.Min.Y+y).Y)
			}
		}
		return out
	}
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			r, _, _, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			out.Set(x, y, uint16(r))
		}
	}
	return out
}
