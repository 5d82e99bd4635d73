// Command clustertest clusters one folder of frames and prints the result
// without moving anything.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"scene-splitter/internal/config"
	"scene-splitter/internal/logging"
	"scene-splitter/internal/orb"
	"scene-splitter/internal/pipeline"
	"scene-splitter/internal/scene"
)

func main() {
	dir := flag.String("d", "", "Folder of frames")
	cfgPath := flag.String("config", "", "JSON options file")
	matches := flag.Int("match-threshold", -1, "Override the correspondence gate")
	inliers := flag.Int("inlier-threshold", -1, "Override the inlier gate")
	verbose := flag.Bool("v", false, "Debug logging")
	flag.Parse()

	if *dir == "" {
		fmt.Println("Usage: clustertest -d <folder> [-config <file>] [-match-threshold N] [-inlier-threshold N] [-v]")
		os.Exit(1)
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := logging.New(os.Stderr, logging.Options{Level: level})

	opts, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *matches >= 0 {
		opts.MatchThreshold = *matches
	}
	if *inliers >= 0 {
		opts.InlierThreshold = *inliers
	}

	paths, err := pipeline.ListImages(*dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list images: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("=== %s: %d images ===\n", *dir, len(paths))

	start := time.Now()
	p := pipeline.New(opts, orb.NewExtractor(opts.MaxFeatureWidth), logger)
	a, err := p.Cluster(context.Background(), paths)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Clustering failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Clustered in %s (match > %d, inliers > %d)\n\n",
		time.Since(start).Round(time.Millisecond), opts.MatchThreshold, opts.InlierThreshold)

	plan, err := scene.NewMaterializer("<dst>", opts.SceneOptions(*dir), logger).Plan(a, paths)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Planning failed: %v\n", err)
		os.Exit(1)
	}
	groupOf := make(map[int]scene.Group, len(plan.Groups))
	for _, g := range plan.Groups {
		groupOf[g.ClusterID] = g
	}

	for _, c := range a.Clusters {
		status := "rejected"
		if g, ok := groupOf[c.ID]; ok {
			status = "-> " + g.Dir
		}
		fmt.Printf("Cluster %d (%d images) %s\n", c.ID, c.Size(), status)
		for _, m := range c.Members {
			fmt.Printf("  %s\n", filepath.Base(paths[m]))
		}
	}

	fmt.Printf("\n%d clusters, %d groups, %d images discarded\n", a.Len(), len(plan.Groups), plan.Discarded)
}
