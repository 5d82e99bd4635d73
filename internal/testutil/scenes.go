// Package testutil builds synthetic feature sets for clustering tests.
package testutil

import (
	"math/rand"

	"scene-splitter/internal/features"
	"scene-splitter/pkg/geometry"
)

// DescriptorSize matches the ORB descriptor length in bytes.
const DescriptorSize = 32

// Scene is a fixed set of landmarks, each with a position and a descriptor.
type Scene struct {
	Points      []geometry.Point2D
	Descriptors [][]byte
}

// NewScene creates n landmarks spread over a w x h frame.
func NewScene(rng *rand.Rand, n int, w, h float64) Scene {
	s := Scene{
		Points:      make([]geometry.Point2D, n),
		Descriptors: RandomDescriptors(rng, n),
	}
	for i := range s.Points {
		s.Points[i] = geometry.NewPoint2D(rng.Float64()*w, rng.Float64()*h)
	}
	return s
}

// View returns the features of a frame that observes landmarks [from, to)
// shifted by offset. Identical descriptors make observed landmarks match
// exactly between views of the same scene.
func (s Scene) View(from, to int, offset geometry.Point2D) features.Set {
	set := features.Set{
		Keypoints:   make([]geometry.Point2D, 0, to-from),
		Descriptors: make([][]byte, 0, to-from),
	}
	for i := from; i < to; i++ {
		set.Keypoints = append(set.Keypoints, s.Points[i].Add(offset))
		set.Descriptors = append(set.Descriptors, s.Descriptors[i])
	}
	return set
}

// RandomDescriptors returns n random ORB-sized descriptors.
func RandomDescriptors(rng *rand.Rand, n int) [][]byte {
	out := make([][]byte, n)
	for i := range out {
		d := make([]byte, DescriptorSize)
		rng.Read(d)
		out[i] = d
	}
	return out
}

// Indexed sets Index on each set to its position.
func Indexed(sets ...features.Set) []features.Set {
	for i := range sets {
		sets[i].Index = i
	}
	return sets
}
