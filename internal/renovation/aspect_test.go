package renovation

import (
	"bytes"
	"image"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveAspectRatioExactMatches(t *testing.T) {
	assert.Equal(t, "1:1", ResolveAspectRatio(512, 512))
	assert.Equal(t, "3:4", ResolveAspectRatio(600, 800))
	assert.Equal(t, "4:3", ResolveAspectRatio(1024, 768))
	assert.Equal(t, "9:16", ResolveAspectRatio(1080, 1920))
	assert.Equal(t, "16:9", ResolveAspectRatio(1920, 1080))
}

func TestResolveAspectRatioNearest(t *testing.T) {
	// 3000/2000 = 1.5 sits between 4:3 (1.333) and 16:9 (1.778);
	// 4:3 is closer.
	assert.Equal(t, "4:3", ResolveAspectRatio(3000, 2000))
	// Extreme panoramas clamp to the widest candidate.
	assert.Equal(t, "16:9", ResolveAspectRatio(4000, 1000))
	// Extreme portrait clamps to the tallest candidate.
	assert.Equal(t, "9:16", ResolveAspectRatio(1000, 4000))
}

func TestResolveAspectRatioScaleInvariant(t *testing.T) {
	for _, k := range []int{1, 2, 3, 7, 50} {
		assert.Equal(t, "4:3", ResolveAspectRatio(1024*k, 768*k), "scale %d", k)
		assert.Equal(t, "9:16", ResolveAspectRatio(90*k, 160*k), "scale %d", k)
	}
}

func TestResolveAspectRatioTieKeepsEarlierCandidate(t *testing.T) {
	// 7/8 = 0.875 is equidistant from 1:1 (1.0) and 3:4 (0.75); the
	// earlier candidate in the option order wins.
	assert.Equal(t, "1:1", ResolveAspectRatio(7, 8))
}

func TestDecodeDimensions(t *testing.T) {
	var buf bytes.Buffer
	img := image.NewRGBA(image.Rect(0, 0, 40, 30))
	require.NoError(t, png.Encode(&buf, img))

	w, h, err := DecodeDimensions(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, 40, w)
	assert.Equal(t, 30, h)
}

func TestDecodeDimensionsRejectsGarbage(t *testing.T) {
	_, _, err := DecodeDimensions([]byte("not an image"))
	assert.Error(t, err)
}
