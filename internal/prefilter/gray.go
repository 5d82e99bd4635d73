// Package prefilter removes frames that are not worth clustering.
package prefilter

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"os"
	"runtime"

	"scene-splitter/pkg/colorutil"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
	"golang.org/x/sync/errgroup"
)

// IsGray reports whether the bottom half of img carries no colour, judged
// by blue == green on every pixel. The top half is skipped because overlays
// and timestamps are often coloured.
func IsGray(img image.Image) bool {
	switch img.(type) {
	case *image.Gray, *image.Gray16:
		return true
	}

	b := img.Bounds()
	top := b.Min.Y + b.Dy()/2
	for y := top; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if !colorutil.BlueEqualsGreen(img.At(x, y)) {
				return false
			}
		}
	}
	return true
}

// IsGrayFile decodes the image at path and applies IsGray.
func IsGrayFile(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return false, fmt.Errorf("decode %s: %w", path, err)
	}
	return IsGray(img), nil
}

// RemoveGray deletes gray and unreadable frames and returns the remaining
// paths in their original order. Checks run on up to workers goroutines.
func RemoveGray(ctx context.Context, paths []string, workers int, logger *slog.Logger) ([]string, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	drop := make([]bool, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, path := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			gray, err := IsGrayFile(path)
			switch {
			case err != nil:
				logger.Warn("removing unreadable frame", "path", path, "error", err)
			case gray:
				logger.Info("removing gray frame", "path", path)
			default:
				return nil
			}
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("remove %s: %w", path, err)
			}
			drop[i] = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	kept := make([]string, 0, len(paths))
	for i, path := range paths {
		if !drop[i] {
			kept = append(kept, path)
		}
	}
	return kept, nil
}
