// Package features extracts keypoints and binary descriptors from camera
// frames and collects them per run in sequence order.
package features

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"

	"scene-splitter/pkg/geometry"

	"golang.org/x/sync/errgroup"
)

// ErrDecode is returned when an image cannot be read or is empty.
var ErrDecode = errors.New("decode image")

// DecodeError records the path of an image that could not be decoded.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%v %s", ErrDecode, e.Path)
	}
	return fmt.Sprintf("%v %s: %v", ErrDecode, e.Path, e.Err)
}

// Unwrap lets errors.Is match ErrDecode and the underlying cause.
func (e *DecodeError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrDecode}
	}
	return []error{ErrDecode, e.Err}
}

// Set holds the features of one image. Keypoints and Descriptors are
// index-aligned. A Set is never modified after extraction.
type Set struct {
	Index       int               // Position in the input sequence
	Path        string            // Source file
	Keypoints   []geometry.Point2D
	Descriptors [][]byte
}

// Empty reports whether the set carries no descriptors.
func (s Set) Empty() bool {
	return len(s.Descriptors) == 0
}

// Len returns the number of keypoints.
func (s Set) Len() int {
	return len(s.Keypoints)
}

// Extractor computes the features of a single image file.
type Extractor interface {
	Extract(path string) (Set, error)
}

// ExtractAll runs the extractor over every path with at most workers
// concurrent calls and returns the sets in input order. A failed extraction
// yields an empty set for that image. The only error returned is the
// context's.
func ExtractAll(ctx context.Context, ex Extractor, paths []string, workers int, logger *slog.Logger) ([]Set, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	sets := make([]Set, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, path := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			set, err := ex.Extract(path)
			if err != nil {
				logger.Warn("feature extraction failed", "path", path, "error", err)
				set = Set{}
			}
			set.Index = i
			set.Path = path
			sets[i] = set
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return sets, nil
}
