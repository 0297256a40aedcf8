package media

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	// MaxCompressedSize is the compression target.
	MaxCompressedSize = 1 << 20

	// MaxDimension bounds the longest edge after compression.
	MaxDimension = 1024
)

// ErrCompression is returned when an image cannot be brought under the
// compression target.
var ErrCompression = errors.New("image compression failed")

var qualitySteps = []int{90, 80, 70, 60, 50, 40}

// Compress decodes data, scales it so the longest edge is at most
// MaxDimension and re-encodes it as JPEG, lowering quality and then size
// until the result fits MaxCompressedSize.
func Compress(data []byte) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCompression, err)
	}

	limit := MaxDimension
	for attempt := 0; attempt < 4; attempt++ {
		img := scale(src, limit)
		for _, q := range qualitySteps {
			var buf bytes.Buffer
			if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: q}); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrCompression, err)
			}
			if buf.Len() <= MaxCompressedSize {
				return buf.Bytes(), nil
			}
		}
		limit = limit * 3 / 4
	}
	return nil, fmt.Errorf("%w: cannot fit %d bytes", ErrCompression, MaxCompressedSize)
}

// scale returns src resized so neither edge exceeds limit. Images already
// within the limit are copied onto an opaque canvas unchanged in size.
func scale(src image.Image, limit int) image.Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w > limit || h > limit {
		if w >= h {
			h = max(1, h*limit/w)
			w = limit
		} else {
			w = max(1, w*limit/h)
			h = limit
		}
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	return dst
}
