package orb

import (
	"image"
	"image/color"
	"image/png"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"scene-splitter/internal/features"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func writeBlockImage(t *testing.T, path string, w, h int, seed int64) {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	img := image.NewGray(image.Rect(0, 0, w, h))
	const block = 20
	for by := 0; by < h; by += block {
		for bx := 0; bx < w; bx += block {
			v := uint8(rng.Intn(256))
			for y := by; y < by+block && y < h; y++ {
				for x := bx; x < bx+block && x < w; x++ {
					img.SetGray(x, y, color.Gray{Y: v})
				}
			}
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func TestExtractMissingFile(t *testing.T) {
	ex := NewExtractor(0)
	_, err := ex.Extract(filepath.Join(t.TempDir(), "missing.jpg"))
	require.Error(t, err)
	assert.ErrorIs(t, err, features.ErrDecode)

	var decErr *features.DecodeError
	require.ErrorAs(t, err, &decErr)
	assert.Contains(t, decErr.Path, "missing.jpg")
}

func TestExtractCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corrupt.jpg")
	require.NoError(t, os.WriteFile(path, []byte("not an image"), 0o644))

	_, err := NewExtractor(0).Extract(path)
	assert.ErrorIs(t, err, features.ErrDecode)
}

func TestExtractTexturedImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frame.png")
	writeBlockImage(t, path, 1000, 750, 7)

	set, err := NewExtractor(500).Extract(path)
	require.NoError(t, err)
	require.NotEmpty(t, set.Keypoints)
	require.Len(t, set.Descriptors, len(set.Keypoints))

	for i, d := range set.Descriptors {
		assert.Len(t, d, 32, "descriptor %d", i)
	}
	for _, kp := range set.Keypoints {
		assert.Less(t, kp.X, 500.0)
		assert.Less(t, kp.Y, 375.0)
	}
}

func TestExtractIsRepeatable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frame.png")
	writeBlockImage(t, path, 640, 480, 3)

	ex := NewExtractor(500)
	a, err := ex.Extract(path)
	require.NoError(t, err)
	b, err := ex.Extract(path)
	require.NoError(t, err)
	assert.Equal(t, a.Keypoints, b.Keypoints)
	assert.Equal(t, a.Descriptors, b.Descriptors)
}

func TestResizeToWidth(t *testing.T) {
	tests := []struct {
		name         string
		w, h         int
		maxWidth     int
		wantW, wantH int
	}{
		{"Wide", 1000, 300, 500, 500, 150},
		{"Narrow", 400, 300, 500, 400, 300},
		{"Exact", 500, 200, 500, 500, 200},
		{"NoCap", 1200, 800, 0, 1200, 800},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := gocv.NewMatWithSize(tt.h, tt.w, gocv.MatTypeCV8U)
			defer src.Close()

			dst := ResizeToWidth(src, tt.maxWidth)
			defer dst.Close()
			assert.Equal(t, tt.wantW, dst.Cols())
			assert.Equal(t, tt.wantH, dst.Rows())
		})
	}
}
