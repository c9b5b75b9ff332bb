package renovation

import (
	"bytes"
	"fmt"
	"image"
	"math"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
)

type aspectOption struct {
	label string
	value float64
}

// Candidate set supported by the image model. Order matters: on a
// distance tie the earlier candidate wins (a later one replaces the
// current best only on strictly smaller distance).
var aspectOptions = []aspectOption{
	{label: "1:1", value: 1},
	{label: "3:4", value: 3.0 / 4},
	{label: "4:3", value: 4.0 / 3},
	{label: "9:16", value: 9.0 / 16},
	{label: "16:9", value: 16.0 / 9},
}

// ResolveAspectRatio maps pixel dimensions to the nearest supported
// output aspect ratio. height must be positive.
func ResolveAspectRatio(width, height int) string {
	ratio := float64(width) / float64(height)

	best := aspectOptions[0]
	for _, opt := range aspectOptions[1:] {
		if math.Abs(opt.value-ratio) < math.Abs(best.value-ratio) {
			best = opt
		}
	}
	return best.label
}

// DecodeDimensions reads the pixel dimensions from an encoded image
// without decoding the full pixel data.
func DecodeDimensions(data []byte) (width, height int, err error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, fmt.Errorf("decode image dimensions: %w", err)
	}
	return cfg.Width, cfg.Height, nil
}
