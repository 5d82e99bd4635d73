// Package orb computes ORB keypoints and descriptors with OpenCV.
package orb

import (
	"fmt"
	"image"
	"os"

	"scene-splitter/internal/features"
	"scene-splitter/pkg/geometry"

	"gocv.io/x/gocv"
)

// DefaultMaxWidth is the width cap applied before detection.
const DefaultMaxWidth = 500

// Extractor detects ORB keypoints on a grayscale, width-capped copy of
// each image. It holds no OpenCV state between calls and is safe for
// concurrent use.
type Extractor struct {
	MaxWidth int
}

var _ features.Extractor = (*Extractor)(nil)

// NewExtractor returns an extractor that resizes images wider than maxWidth.
func NewExtractor(maxWidth int) *Extractor {
	if maxWidth <= 0 {
		maxWidth = DefaultMaxWidth
	}
	return &Extractor{MaxWidth: maxWidth}
}

// Extract loads the image at path and computes its features.
func (e *Extractor) Extract(path string) (features.Set, error) {
	if _, err := os.Stat(path); err != nil {
		return features.Set{}, &features.DecodeError{Path: path, Err: err}
	}

	img := gocv.IMRead(path, gocv.IMReadGrayScale)
	defer img.Close()
	if img.Empty() {
		return features.Set{}, &features.DecodeError{Path: path}
	}

	set, err := e.ExtractMat(img)
	if err != nil {
		return features.Set{}, fmt.Errorf("%s: %w", path, err)
	}
	set.Path = path
	return set, nil
}

// ExtractMat computes features from an already decoded single-channel image.
func (e *Extractor) ExtractMat(gray gocv.Mat) (features.Set, error) {
	if gray.Empty() {
		return features.Set{}, &features.DecodeError{}
	}

	small := ResizeToWidth(gray, e.MaxWidth)
	defer small.Close()

	orb := gocv.NewORB()
	defer orb.Close()

	mask := gocv.NewMat()
	defer mask.Close()

	kps, desc := orb.DetectAndCompute(small, mask)
	defer desc.Close()

	if len(kps) == 0 || desc.Empty() {
		return features.Set{}, nil
	}
	if desc.Rows() != len(kps) {
		return features.Set{}, fmt.Errorf("descriptor rows %d do not match %d keypoints", desc.Rows(), len(kps))
	}

	set := features.Set{
		Keypoints:   make([]geometry.Point2D, len(kps)),
		Descriptors: make([][]byte, len(kps)),
	}
	for i, kp := range kps {
		set.Keypoints[i] = geometry.NewPoint2D(kp.X, kp.Y)
	}

	// ToBytes copies the Mat data, so the rows stay valid after Close.
	raw := desc.ToBytes()
	width := desc.Cols()
	for i := range set.Descriptors {
		set.Descriptors[i] = raw[i*width : (i+1)*width : (i+1)*width]
	}
	return set, nil
}

// ResizeToWidth returns a copy of img scaled so its width does not exceed
// maxWidth, keeping the aspect ratio. Narrower images are cloned unchanged.
// The caller owns the returned Mat.
func ResizeToWidth(img gocv.Mat, maxWidth int) gocv.Mat {
	w, h := img.Cols(), img.Rows()
	if maxWidth <= 0 || w <= maxWidth {
		return img.Clone()
	}

	scale := float64(maxWidth) / float64(w)
	size := image.Pt(int(float64(w)*scale), int(float64(h)*scale))
	if size.Y < 1 {
		size.Y = 1
	}

	dst := gocv.NewMat()
	gocv.Resize(img, &dst, size, 0, 0, gocv.InterpolationLinear)
	return dst
}
