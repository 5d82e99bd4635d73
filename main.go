// Package main splits camera/day frame folders into scene groups.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"scene-splitter/internal/config"
	"scene-splitter/internal/logging"
	"scene-splitter/internal/orb"
	"scene-splitter/internal/pipeline"
	"scene-splitter/internal/version"

	_ "golang.org/x/image/tiff"
	"golang.org/x/sync/errgroup"
)

const appName = "scene-splitter"

func main() {
	src := flag.String("src", "dl_frames", "Frames root holding <day>/<camera> folders")
	dst := flag.String("dst", "", "Output root (default: src with dl_frames renamed to dl_frames_splitted)")
	cfgPath := flag.String("config", "", "JSON options file")
	savePath := flag.String("save-config", "", "Write the effective options to this file and exit")
	parallel := flag.Int("parallel", 1, "Folders processed concurrently")
	workers := flag.Int("workers", 0, "Extraction and relocation workers per folder (0 keeps the configured value)")
	matches := flag.Int("match-threshold", -1, "Minimum correspondences, exclusive (-1 keeps the configured value)")
	inliers := flag.Int("inlier-threshold", -1, "Minimum homography inliers, exclusive (-1 keeps the configured value)")
	removeGray := flag.Bool("remove-gray", false, "Delete gray frames before clustering")
	noClean := flag.Bool("no-clean", false, "Keep source folders after materialization")
	verbose := flag.Bool("v", false, "Debug logging")
	jsonLog := flag.Bool("json", false, "JSON log output")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String(appName))
		return
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := logging.New(os.Stderr, logging.Options{Level: level, JSON: *jsonLog})

	opts, err := config.Load(*cfgPath)
	if err != nil {
		logger.Error("load config", "path", *cfgPath, "error", err)
		os.Exit(1)
	}
	if *matches >= 0 {
		opts.MatchThreshold = *matches
	}
	if *inliers >= 0 {
		opts.InlierThreshold = *inliers
	}
	if *workers > 0 {
		opts = opts.WithWorkers(*workers)
	}
	if *removeGray {
		opts.RemoveGray = true
	}
	if *noClean {
		opts.Clean = false
	}
	if err := opts.Validate(); err != nil {
		logger.Error("invalid options", "error", err)
		os.Exit(1)
	}

	if *savePath != "" {
		if err := opts.Save(*savePath); err != nil {
			logger.Error("save config", "path", *savePath, "error", err)
			os.Exit(1)
		}
		logger.Info("saved config", "path", *savePath)
		return
	}

	dstRoot := *dst
	if dstRoot == "" {
		dstRoot = pipeline.DefaultDestRoot(*src)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *src, dstRoot, *parallel, opts, logger); err != nil {
		logger.Error("split failed", "error", err)
		os.Exit(1)
	}
}

// run splits every camera/day folder under src. A failing folder is logged
// and does not stop the others.
func run(ctx context.Context, src, dst string, parallel int, opts config.Options, logger *slog.Logger) error {
	folders, err := pipeline.Folders(src)
	if err != nil {
		return err
	}
	logger.Info("starting", "version", version.Version, "src", src, "dst", dst, "folders", len(folders))

	p := pipeline.New(opts, orb.NewExtractor(opts.MaxFeatureWidth), logger)

	var failed atomic.Int32
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(parallel, 1))
	for _, f := range folders {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			flog := logger.With("day", f.Day, "camera", f.Camera)
			flog.Info("processing folder", "dir", f.Dir)
			if _, err := p.Run(gctx, f.Dir, f.Dest(dst)); err != nil {
				if errors.Is(err, context.Canceled) {
					return err
				}
				flog.Error("folder failed", "dir", f.Dir, "error", err)
				failed.Add(1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if n := failed.Load(); n > 0 {
		return fmt.Errorf("%d of %d folders failed", n, len(folders))
	}
	logger.Info("done", "folders", len(folders))
	return nil
}
