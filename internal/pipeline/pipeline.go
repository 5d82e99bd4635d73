// Package pipeline runs the scene split for a single camera/day folder.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"scene-splitter/internal/alignment"
	"scene-splitter/internal/cluster"
	"scene-splitter/internal/config"
	"scene-splitter/internal/features"
	"scene-splitter/internal/logging"
	"scene-splitter/internal/match"
	"scene-splitter/internal/prefilter"
	"scene-splitter/internal/scene"
)

var imageExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".tif":  true,
	".tiff": true,
	".bmp":  true,
	".webp": true,
}

// IsImage reports whether name has a supported image extension.
func IsImage(name string) bool {
	return imageExts[strings.ToLower(filepath.Ext(name))]
}

// ListImages returns the image files directly inside dir, sorted by name.
// Hidden files and subdirectories are skipped.
func ListImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}

	var paths []string
	for _, e := range entries {
		name := e.Name()
		if !e.Type().IsRegular() || strings.HasPrefix(name, ".") || !IsImage(name) {
			continue
		}
		paths = append(paths, filepath.Join(dir, name))
	}
	sort.Strings(paths)
	return paths, nil
}

// Report summarises one run.
type Report struct {
	Source    string
	Dest      string
	Images    int // Frames clustered, after the gray prefilter
	Removed   int // Frames dropped by the gray prefilter
	Clusters  int
	Groups    int // Clusters promoted to group directories
	Promoted  int // Images moved into groups
	Discarded int // Images in rejected clusters
}

// LogValue implements slog.LogValuer.
func (r Report) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("dir", r.Source),
		slog.Int("images", r.Images),
		slog.Int("removed", r.Removed),
		slog.Int("clusters", r.Clusters),
		slog.Int("groups", r.Groups),
		slog.Int("promoted", r.Promoted),
		slog.Int("discarded", r.Discarded),
	)
}

// Pipeline wires the extractor, matcher, estimator, builder and
// materializer for one set of options. Each Run is independent; a Pipeline
// may serve several folders concurrently.
type Pipeline struct {
	Options   config.Options
	Extractor features.Extractor
	Matcher   match.Matcher
	Logger    *slog.Logger
}

// New creates a Pipeline using the brute-force Hamming matcher.
func New(opts config.Options, ex features.Extractor, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Pipeline{
		Options:   opts,
		Extractor: ex,
		Matcher:   match.BruteForce{},
		Logger:    logger,
	}
}

func (p *Pipeline) builder() *cluster.Builder {
	return cluster.NewBuilder(
		p.Options.ClusterParams(),
		p.Matcher,
		alignment.NewEstimator(p.Options.HomographyParams()),
		p.Logger,
	)
}

// Cluster extracts features for paths and groups them. The returned
// assignment indexes into paths.
func (p *Pipeline) Cluster(ctx context.Context, paths []string) (cluster.Assignment, error) {
	if err := p.Options.Validate(); err != nil {
		return cluster.Assignment{}, err
	}

	sets, err := features.ExtractAll(ctx, p.Extractor, paths, p.Options.Workers, p.Logger)
	if err != nil {
		return cluster.Assignment{}, err
	}

	a := p.builder().Build(sets)
	if err := a.Verify(len(paths)); err != nil {
		return cluster.Assignment{}, err
	}
	p.Logger.Debug("clustered", "images", len(paths), "clusters", a.Len())
	return a, nil
}

// Run splits the frames in srcDir into group directories under dstDir.
func (p *Pipeline) Run(ctx context.Context, srcDir, dstDir string) (Report, error) {
	rep := Report{Source: srcDir, Dest: dstDir}
	if err := p.Options.Validate(); err != nil {
		return rep, err
	}

	paths, err := ListImages(srcDir)
	if err != nil {
		return rep, err
	}

	if p.Options.RemoveGray {
		kept, err := prefilter.RemoveGray(ctx, paths, p.Options.Workers, p.Logger)
		if err != nil {
			return rep, err
		}
		rep.Removed = len(paths) - len(kept)
		paths = kept
	}
	rep.Images = len(paths)

	a, err := p.Cluster(ctx, paths)
	if err != nil {
		return rep, err
	}
	rep.Clusters = a.Len()

	m := scene.NewMaterializer(dstDir, p.Options.SceneOptions(srcDir), p.Logger)
	res, err := m.Materialize(ctx, a, paths)
	if err != nil {
		return rep, fmt.Errorf("materialize %s: %w", srcDir, err)
	}
	rep.Groups = len(res.Groups)
	for _, g := range res.Groups {
		rep.Promoted += len(g.Files)
	}
	rep.Discarded = res.Discarded

	p.Logger.Info("run complete", "report", rep)
	return rep, nil
}
