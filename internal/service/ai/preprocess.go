package ai

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"

	"github.com/nfnt/resize"
)

// preprocessImage decodes an encoded frame and lays it out as CHW float32
// values in [0,1], resized to size x size.
func preprocessImage(data []byte, size int) ([]float32, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode frame: %w", err)
	}

	resized := resize.Resize(uint(size), uint(size), img, resize.Bilinear)
	bounds := resized.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	plane := width * height

	values := make([]float32, 3*plane)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, b, _ := resized.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			i := y*width + x
			values[i] = float32(r) / 65535.0
			values[plane+i] = float32(g) / 65535.0
			values[2*plane+i] = float32(b) / 65535.0
		}
	}
	return values, nil
}

// checkInputSize rejects preprocessed values that do not fill the model's
// input tensor, e.g. an image_size that disagrees with input_shape.
func checkInputSize(meta *Metadata, values []float32) error {
	if want := meta.InputSize(); len(values) != want {
		return fmt.Errorf("expected %d input values for shape %v, got %d", want, meta.InputShape, len(values))
	}
	return nil
}
