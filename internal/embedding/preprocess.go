package embedding

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // register decoder
	_ "image/jpeg" // register decoder
	_ "image/png"  // register decoder

	"github.com/hyperjump/ruiji/internal/models"
)

// ImageInputSize is the square input resolution of the image feature extractor.
const ImageInputSize = 224

// ImageNet channel statistics used to normalize inputs.
var (
	imageMean = [3]float32{0.485, 0.456, 0.406}
	imageStd  = [3]float32{0.229, 0.224, 0.225}
)

// ImageTensor decodes data, resizes it to ImageInputSize squared with bilinear sampling
// and returns normalized RGB values in CHW order. Undecodable input is models.ErrInvalidArgument.
func ImageTensor(data []byte) ([]float32, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: decode image: %v", models.ErrInvalidArgument, err)
	}
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, fmt.Errorf("%w: decode image: empty bounds %v", models.ErrInvalidArgument, b)
	}

	const n = ImageInputSize
	out := make([]float32, 3*n*n)
	sx := float64(b.Dx()) / n
	sy := float64(b.Dy()) / n
	for y := 0; y < n; y++ {
		fy := (float64(y)+0.5)*sy - 0.5
		y0, wy := split(fy, b.Dy())
		for x := 0; x < n; x++ {
			fx := (float64(x)+0.5)*sx - 0.5
			x0, wx := split(fx, b.Dx())
			var rgb [3]float64
			for _, s := range [4]struct {
				dx, dy int
				w      float64
			}{
				{0, 0, (1 - wx) * (1 - wy)},
				{1, 0, wx * (1 - wy)},
				{0, 1, (1 - wx) * wy},
				{1, 1, wx * wy},
			} {
				px := min(x0+s.dx, b.Dx()-1)
				py := min(y0+s.dy, b.Dy()-1)
				r, g, bl, _ := img.At(b.Min.X+px, b.Min.Y+py).RGBA()
				rgb[0] += s.w * float64(r) / 0xffff
				rgb[1] += s.w * float64(g) / 0xffff
				rgb[2] += s.w * float64(bl) / 0xffff
			}
			for c := 0; c < 3; c++ {
				out[c*n*n+y*n+x] = (float32(rgb[c]) - imageMean[c]) / imageStd[c]
			}
		}
	}
	return out, nil
}

// split returns the integer source coordinate at or below f, clamped to [0, size), and the fractional weight.
func split(f float64, size int) (int, float64) {
	if f <= 0 {
		return 0, 0
	}
	i := int(f)
	if i >= size-1 {
		return size - 1, 0
	}
	return i, f - float64(i)
}
