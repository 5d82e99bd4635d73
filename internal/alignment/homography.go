// Package alignment estimates planar homographies between two frames from
// matched keypoints.
package alignment

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"slices"

	"scene-splitter/internal/match"
	"scene-splitter/pkg/geometry"

	"gonum.org/v1/gonum/mat"
)

// minCorrespondences is the number of point pairs that determine a homography.
const minCorrespondences = 4

var (
	// ErrInsufficientCorrespondences is returned when fewer than four point
	// pairs are available.
	ErrInsufficientCorrespondences = errors.New("insufficient correspondences for homography")

	// ErrNoModel is returned when every sample was degenerate.
	ErrNoModel = errors.New("no homography found")

	errDegenerate = errors.New("degenerate point configuration")
)

// Params configures RANSAC homography estimation.
type Params struct {
	ReprojThreshold float64 // Max reprojection error in pixels for an inlier
	MaxIterations   int     // Upper bound on RANSAC iterations
	Confidence      float64 // Stops early once this probability of an outlier-free sample is reached
	Seed            int64   // Sampling seed; equal inputs and seed give equal results
}

// DefaultParams returns the parameters used for scene clustering.
func DefaultParams() Params {
	return Params{
		ReprojThreshold: 5.0,
		MaxIterations:   2000,
		Confidence:      0.995,
		Seed:            1,
	}
}

// HomographyResult holds the best homography and its supporting pairs.
type HomographyResult struct {
	Matrix  geometry.Homography
	Inliers []int // Indices of the input pairs within the reprojection threshold
}

// InlierCount returns the number of inliers.
func (r HomographyResult) InlierCount() int {
	return len(r.Inliers)
}

// Estimator fits homographies between matched keypoint sets.
type Estimator struct {
	Params Params
}

// NewEstimator creates an Estimator with the given parameters.
func NewEstimator(p Params) *Estimator {
	return &Estimator{Params: p}
}

// Fit estimates the homography mapping query keypoints onto train keypoints
// through the given correspondences.
func (e *Estimator) Fit(query, train []geometry.Point2D, corr []match.Correspondence) (HomographyResult, error) {
	if len(corr) < minCorrespondences {
		return HomographyResult{}, fmt.Errorf("%w: got %d", ErrInsufficientCorrespondences, len(corr))
	}

	src := make([]geometry.Point2D, len(corr))
	dst := make([]geometry.Point2D, len(corr))
	for i, c := range corr {
		if c.QueryIdx < 0 || c.QueryIdx >= len(query) || c.TrainIdx < 0 || c.TrainIdx >= len(train) {
			return HomographyResult{}, fmt.Errorf("correspondence %d out of range: query %d/%d, train %d/%d",
				i, c.QueryIdx, len(query), c.TrainIdx, len(train))
		}
		src[i] = query[c.QueryIdx]
		dst[i] = train[c.TrainIdx]
	}

	return FitHomography(src, dst, e.Params)
}

// FitHomography computes a homography from src to dst using RANSAC over
// minimal four-point samples, then refits on the inliers with least squares.
func FitHomography(src, dst []geometry.Point2D, p Params) (HomographyResult, error) {
	if len(src) != len(dst) {
		return HomographyResult{}, fmt.Errorf("point count mismatch: %d vs %d", len(src), len(dst))
	}
	n := len(src)
	if n < minCorrespondences {
		return HomographyResult{}, fmt.Errorf("%w: got %d", ErrInsufficientCorrespondences, n)
	}

	thresholdSq := p.ReprojThreshold * p.ReprojThreshold
	maxIter := p.MaxIterations
	if maxIter <= 0 {
		maxIter = DefaultParams().MaxIterations
	}

	rng := rand.New(rand.NewSource(p.Seed))
	var (
		bestInliers []int
		bestH       geometry.Homography
		sample      [minCorrespondences]int
		sampleSrc   = make([]geometry.Point2D, minCorrespondences)
		sampleDst   = make([]geometry.Point2D, minCorrespondences)
	)

	for iter := 0; iter < maxIter; iter++ {
		pickSample(rng, n, sample[:])
		for i, idx := range sample {
			sampleSrc[i] = src[idx]
			sampleDst[i] = dst[idx]
		}
		if degenerateSample(sampleSrc) || degenerateSample(sampleDst) {
			continue
		}

		h, err := solveDLT(sampleSrc, sampleDst)
		if err != nil {
			continue
		}

		inliers := findInliers(h, src, dst, thresholdSq)
		if len(inliers) > len(bestInliers) {
			bestInliers = inliers
			bestH = h
			maxIter = updateIterations(p.Confidence, len(bestInliers), n, maxIter)
		}
	}

	if len(bestInliers) < minCorrespondences {
		return HomographyResult{}, ErrNoModel
	}

	// Refit on all inliers
	inlierSrc := make([]geometry.Point2D, len(bestInliers))
	inlierDst := make([]geometry.Point2D, len(bestInliers))
	for i, idx := range bestInliers {
		inlierSrc[i] = src[idx]
		inlierDst[i] = dst[idx]
	}
	if refined, err := solveDLT(inlierSrc, inlierDst); err == nil {
		if inliers := findInliers(refined, src, dst, thresholdSq); len(inliers) >= len(bestInliers) {
			return HomographyResult{Matrix: refined, Inliers: inliers}, nil
		}
	}

	return HomographyResult{Matrix: bestH, Inliers: bestInliers}, nil
}

// pickSample fills out with distinct indices in [0, n).
func pickSample(rng *rand.Rand, n int, out []int) {
	for i := 0; i < len(out); {
		idx := rng.Intn(n)
		if slices.Contains(out[:i], idx) {
			continue
		}
		out[i] = idx
		i++
	}
}

// degenerateSample reports whether any three of the four points are collinear.
func degenerateSample(pts []geometry.Point2D) bool {
	const tolerance = 1e-6
	for i := 0; i < len(pts); i++ {
		for j := i + 1; j < len(pts); j++ {
			for k := j + 1; k < len(pts); k++ {
				if geometry.Collinear(pts[i], pts[j], pts[k], tolerance) {
					return true
				}
			}
		}
	}
	return false
}

func findInliers(h geometry.Homography, src, dst []geometry.Point2D, thresholdSq float64) []int {
	var inliers []int
	for i := range src {
		projected, ok := h.Apply(src[i])
		if ok && projected.DistanceSq(dst[i]) <= thresholdSq {
			inliers = append(inliers, i)
		}
	}
	return inliers
}

// updateIterations shrinks the iteration budget once the inlier ratio makes
// an all-inlier sample likely enough.
func updateIterations(confidence float64, inliers, total, maxIter int) int {
	if confidence <= 0 || confidence >= 1 || total == 0 {
		return maxIter
	}
	inlierRatio := float64(inliers) / float64(total)
	num := math.Log(1 - confidence)
	denom := math.Log(1 - math.Pow(inlierRatio, minCorrespondences))
	if denom >= 0 || -num >= float64(maxIter)*(-denom) {
		return maxIter
	}
	return int(math.Round(num / denom))
}

// solveDLT solves for the homography with the normalized direct linear
// transform. With more than four pairs this is the algebraic least-squares fit.
func solveDLT(src, dst []geometry.Point2D) (geometry.Homography, error) {
	srcNorm, srcT, err := normalizePoints(src)
	if err != nil {
		return geometry.Homography{}, err
	}
	dstNorm, dstTInv, err := normalizePointsInverse(dst)
	if err != nil {
		return geometry.Homography{}, err
	}

	// Two rows per pair: A * h = 0
	A := mat.NewDense(2*len(src), 9, nil)
	for i := range srcNorm {
		x, y := srcNorm[i].X, srcNorm[i].Y
		u, v := dstNorm[i].X, dstNorm[i].Y

		A.SetRow(2*i, []float64{-x, -y, -1, 0, 0, 0, u * x, u * y, u})
		A.SetRow(2*i+1, []float64{0, 0, 0, -x, -y, -1, v * x, v * y, v})
	}

	// The null vector of A is the right singular vector of A^T A with the
	// smallest singular value.
	var ata mat.Dense
	ata.Mul(A.T(), A)

	var svd mat.SVD
	if !svd.Factorize(&ata, mat.SVDFullV) {
		return geometry.Homography{}, errDegenerate
	}
	var v mat.Dense
	svd.VTo(&v)

	var hn geometry.Homography
	for k := range hn {
		hn[k] = v.At(k, 8)
	}

	h := dstTInv.Mul(hn).Mul(srcT)
	if math.Abs(h[8]) < 1e-12 {
		return geometry.Homography{}, errDegenerate
	}
	return h.Normalized(), nil
}

// normalizePoints translates the centroid to the origin and scales the mean
// distance to sqrt(2). It returns the normalized points and the transform.
func normalizePoints(pts []geometry.Point2D) ([]geometry.Point2D, geometry.Homography, error) {
	cx, cy, s, err := normalization(pts)
	if err != nil {
		return nil, geometry.Homography{}, err
	}
	out := make([]geometry.Point2D, len(pts))
	for i, p := range pts {
		out[i] = geometry.Point2D{X: (p.X - cx) * s, Y: (p.Y - cy) * s}
	}
	return out, geometry.Homography{s, 0, -s * cx, 0, s, -s * cy, 0, 0, 1}, nil
}

// normalizePointsInverse is normalizePoints returning the inverse transform.
func normalizePointsInverse(pts []geometry.Point2D) ([]geometry.Point2D, geometry.Homography, error) {
	out, t, err := normalizePoints(pts)
	if err != nil {
		return nil, geometry.Homography{}, err
	}
	s := t[0]
	cx, cy := -t[2]/s, -t[5]/s
	return out, geometry.Homography{1 / s, 0, cx, 0, 1 / s, cy, 0, 0, 1}, nil
}

func normalization(pts []geometry.Point2D) (cx, cy, scale float64, err error) {
	n := float64(len(pts))
	for _, p := range pts {
		cx += p.X
		cy += p.Y
	}
	cx /= n
	cy /= n

	var meanDist float64
	for _, p := range pts {
		meanDist += math.Hypot(p.X-cx, p.Y-cy)
	}
	meanDist /= n
	if meanDist < 1e-9 {
		return 0, 0, 0, errDegenerate
	}
	return cx, cy, math.Sqrt2 / meanDist, nil
}
