// Package config provides the JSON-backed run configuration.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"scene-splitter/internal/alignment"
	"scene-splitter/internal/cluster"
	"scene-splitter/internal/scene"
)

// Options holds every tunable of a clustering run. A run receives its own
// copy; nothing here is global.
type Options struct {
	MaxFeatureWidth int `json:"max_feature_width"` // Frames wider than this are downscaled before detection

	MatchThreshold  int `json:"match_threshold"`  // Correspondences must exceed this
	InlierThreshold int `json:"inlier_threshold"` // Homography inliers must exceed this
	MinSceneSize    int `json:"min_scene_size"`   // Clusters must have more members than this

	RansacReprojThreshold float64 `json:"ransac_reprojection_threshold"`
	RansacMaxIterations   int     `json:"ransac_max_iterations"`
	RansacConfidence      float64 `json:"ransac_confidence"`
	RansacSeed            int64   `json:"ransac_seed"`

	Workers     int  `json:"workers"`      // Extraction and relocation concurrency
	RemoveGray  bool `json:"remove_gray"`  // Drop gray frames before clustering
	Clean       bool `json:"clean"`        // Remove the source directory after materialization
	GroupDigits int  `json:"group_digits"` // Zero padding of group directory names
}

// Default returns the default options.
func Default() Options {
	h := alignment.DefaultParams()
	c := cluster.DefaultParams()
	s := scene.DefaultOptions()
	return Options{
		MaxFeatureWidth:       500,
		MatchThreshold:        c.MatchThreshold,
		InlierThreshold:       c.InlierThreshold,
		MinSceneSize:          s.MinSceneSize,
		RansacReprojThreshold: h.ReprojThreshold,
		RansacMaxIterations:   h.MaxIterations,
		RansacConfidence:      h.Confidence,
		RansacSeed:            h.Seed,
		Workers:               runtime.NumCPU(),
		RemoveGray:            false,
		Clean:                 s.Clean,
		GroupDigits:           s.GroupDigits,
	}
}

// Load reads options from a JSON file on top of the defaults. An empty path
// or a missing file yields the defaults.
func Load(path string) (Options, error) {
	opts := Default()
	if path == "" {
		return opts, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return opts, nil
	}
	if err != nil {
		return Options{}, fmt.Errorf("read config: %w", err)
	}
	if err := json.Unmarshal(data, &opts); err != nil {
		return Options{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := opts.Validate(); err != nil {
		return Options{}, fmt.Errorf("config %s: %w", path, err)
	}
	return opts, nil
}

// Save writes the options as indented JSON.
func (o Options) Save(path string) error {
	data, err := json.MarshalIndent(o, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate rejects values that make a run meaningless.
func (o Options) Validate() error {
	var errs []error
	if o.MaxFeatureWidth <= 0 {
		errs = append(errs, fmt.Errorf("max_feature_width must be positive, got %d", o.MaxFeatureWidth))
	}
	if o.MatchThreshold < 0 {
		errs = append(errs, fmt.Errorf("match_threshold must not be negative, got %d", o.MatchThreshold))
	}
	if o.InlierThreshold < 0 {
		errs = append(errs, fmt.Errorf("inlier_threshold must not be negative, got %d", o.InlierThreshold))
	}
	if o.MinSceneSize < 0 {
		errs = append(errs, fmt.Errorf("min_scene_size must not be negative, got %d", o.MinSceneSize))
	}
	if o.RansacReprojThreshold <= 0 {
		errs = append(errs, fmt.Errorf("ransac_reprojection_threshold must be positive, got %g", o.RansacReprojThreshold))
	}
	if o.RansacMaxIterations <= 0 {
		errs = append(errs, fmt.Errorf("ransac_max_iterations must be positive, got %d", o.RansacMaxIterations))
	}
	if o.RansacConfidence <= 0 || o.RansacConfidence > 1 {
		errs = append(errs, fmt.Errorf("ransac_confidence must be in (0, 1], got %g", o.RansacConfidence))
	}
	if o.GroupDigits < 0 {
		errs = append(errs, fmt.Errorf("group_digits must not be negative, got %d", o.GroupDigits))
	}
	return errors.Join(errs...)
}

// WithThresholds returns a copy with the two similarity gates replaced.
func (o Options) WithThresholds(matches, inliers int) Options {
	o.MatchThreshold = matches
	o.InlierThreshold = inliers
	return o
}

// WithWorkers returns a copy with the given concurrency; n <= 0 means NumCPU.
func (o Options) WithWorkers(n int) Options {
	if n <= 0 {
		n = runtime.NumCPU()
	}
	o.Workers = n
	return o
}

// ClusterParams returns the gates for cluster.Builder.
func (o Options) ClusterParams() cluster.Params {
	return cluster.Params{
		MatchThreshold:  o.MatchThreshold,
		InlierThreshold: o.InlierThreshold,
	}
}

// HomographyParams returns the RANSAC parameters for alignment.Estimator.
func (o Options) HomographyParams() alignment.Params {
	return alignment.Params{
		ReprojThreshold: o.RansacReprojThreshold,
		MaxIterations:   o.RansacMaxIterations,
		Confidence:      o.RansacConfidence,
		Seed:            o.RansacSeed,
	}
}

// SceneOptions returns the materialization options for a source directory.
func (o Options) SceneOptions(sourceDir string) scene.Options {
	return scene.Options{
		MinSceneSize: o.MinSceneSize,
		GroupDigits:  o.GroupDigits,
		SourceDir:    sourceDir,
		Clean:        o.Clean,
		Workers:      o.Workers,
	}
}
