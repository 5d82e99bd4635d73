// Package cluster groups a time-ordered image sequence into scenes.
//
// Images are visited once, in order. Each image is compared against the
// most recent member (the tail) of every existing cluster, in creation
// order, and joins the first cluster whose tail passes both the match-count
// gate and the homography-inlier gate. Otherwise it starts a new cluster.
// Decisions are final: clusters only grow and are never merged.
package cluster

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"scene-splitter/internal/alignment"
	"scene-splitter/internal/features"
	"scene-splitter/internal/match"
	"scene-splitter/pkg/geometry"

	"github.com/RoaringBitmap/roaring/v2"
)

// ErrInvalidAssignment is returned by Verify when an assignment does not
// place every image in exactly one cluster.
var ErrInvalidAssignment = errors.New("invalid cluster assignment")

// Params holds the similarity gates. Both comparisons are strict.
type Params struct {
	MatchThreshold  int // Correspondences must exceed this count
	InlierThreshold int // Homography inliers must exceed this count
}

// DefaultParams returns the default gates.
func DefaultParams() Params {
	return Params{
		MatchThreshold:  125,
		InlierThreshold: 50,
	}
}

// Estimator fits a homography between two keypoint sets.
type Estimator interface {
	Fit(query, train []geometry.Point2D, corr []match.Correspondence) (alignment.HomographyResult, error)
}

// Cluster is an append-only list of sequence indices.
type Cluster struct {
	ID      int
	Members []int // In insertion order
}

// Tail returns the most recently added member.
func (c Cluster) Tail() int {
	return c.Members[len(c.Members)-1]
}

// Size returns the number of members.
func (c Cluster) Size() int {
	return len(c.Members)
}

// Assignment is the final set of clusters. Clusters[k].ID == k.
type Assignment struct {
	Clusters []Cluster
}

// Len returns the number of clusters.
func (a Assignment) Len() int {
	return len(a.Clusters)
}

// Labels returns, for each of the n images, the id of its cluster, or -1
// for images not present in the assignment.
func (a Assignment) Labels(n int) []int {
	labels := make([]int, n)
	for i := range labels {
		labels[i] = -1
	}
	for _, c := range a.Clusters {
		for _, m := range c.Members {
			if m >= 0 && m < n {
				labels[m] = c.ID
			}
		}
	}
	return labels
}

// Verify checks that the clusters are numbered by position, none is empty,
// and their members are exactly {0, ..., n-1} with no repeats.
func (a Assignment) Verify(n int) error {
	seen := roaring.New()
	for k, c := range a.Clusters {
		if c.ID != k {
			return fmt.Errorf("%w: cluster at position %d has id %d", ErrInvalidAssignment, k, c.ID)
		}
		if len(c.Members) == 0 {
			return fmt.Errorf("%w: cluster %d is empty", ErrInvalidAssignment, k)
		}
		for _, m := range c.Members {
			if m < 0 || m >= n {
				return fmt.Errorf("%w: cluster %d member %d out of range [0, %d)", ErrInvalidAssignment, k, m, n)
			}
			if !seen.CheckedAdd(uint32(m)) {
				return fmt.Errorf("%w: image %d assigned more than once", ErrInvalidAssignment, m)
			}
		}
	}
	if seen.GetCardinality() != uint64(n) {
		missing := roaring.Flip(seen, 0, uint64(n))
		return fmt.Errorf("%w: image %d not assigned", ErrInvalidAssignment, missing.Minimum())
	}
	return nil
}

// Builder runs the sequential clustering. It keeps no state between Build
// calls, so separate runs may share a Builder when its Matcher and
// Estimator are safe for concurrent use.
type Builder struct {
	Params    Params
	Matcher   match.Matcher
	Estimator Estimator
	Logger    *slog.Logger
}

// NewBuilder creates a Builder. A nil logger discards output.
func NewBuilder(p Params, m match.Matcher, e Estimator, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = discard
	}
	return &Builder{Params: p, Matcher: m, Estimator: e, Logger: logger}
}

// Build assigns every set to a cluster. sets must be in sequence order;
// the position in the slice is the sequence index.
func (b *Builder) Build(sets []features.Set) Assignment {
	var clusters []Cluster

	for i := range sets {
		k := b.firstFit(sets, clusters, i)
		if k < 0 {
			clusters = append(clusters, Cluster{ID: len(clusters), Members: []int{i}})
			b.logger().Debug("new cluster", "image", i, "cluster", len(clusters)-1)
			continue
		}
		clusters[k].Members = append(clusters[k].Members, i)
		b.logger().Debug("joined cluster", "image", i, "cluster", k, "size", clusters[k].Size())
	}

	return Assignment{Clusters: clusters}
}

// firstFit returns the first cluster, by creation order, whose tail accepts
// image i, or -1.
func (b *Builder) firstFit(sets []features.Set, clusters []Cluster, i int) int {
	for k := range clusters {
		if b.Similar(sets[i], sets[clusters[k].Tail()]) {
			return k
		}
	}
	return -1
}

// Similar applies the two gates to a query image and a cluster tail.
func (b *Builder) Similar(query, tail features.Set) bool {
	corr := b.Matcher.Match(query.Descriptors, tail.Descriptors)
	if len(corr) <= b.Params.MatchThreshold {
		return false
	}

	res, err := b.Estimator.Fit(query.Keypoints, tail.Keypoints, corr)
	if err != nil {
		b.logger().Debug("homography failed", "query", query.Index, "tail", tail.Index, "error", err)
		return false
	}
	return res.InlierCount() > b.Params.InlierThreshold
}

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func (b *Builder) logger() *slog.Logger {
	if b.Logger != nil {
		return b.Logger
	}
	return discard
}
