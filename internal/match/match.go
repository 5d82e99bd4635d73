// Package match pairs binary descriptors between two images using
// brute-force Hamming distance with a mutual nearest-neighbour check.
package match

import (
	"encoding/binary"
	"math"
	"math/bits"
	"sort"
)

// Correspondence links a query keypoint to a train keypoint.
type Correspondence struct {
	QueryIdx int // Index into the query image's keypoints
	TrainIdx int // Index into the train image's keypoints
	Distance int // Hamming distance between the two descriptors
}

// Matcher matches a query descriptor set against a train set.
type Matcher interface {
	Match(query, train [][]byte) []Correspondence
}

// BruteForce is the cross-checked Hamming matcher.
type BruteForce struct{}

// Match implements Matcher.
func (BruteForce) Match(query, train [][]byte) []Correspondence {
	return Match(query, train)
}

// Match returns the cross-checked correspondences between query and train,
// best first. A pair is kept only when each descriptor is the other's
// nearest neighbour. Either set being empty yields no correspondences.
func Match(query, train [][]byte) []Correspondence {
	if len(query) == 0 || len(train) == 0 {
		return nil
	}

	// Nearest train descriptor for each query and vice versa. Ties keep the
	// lowest index.
	bestTrain := make([]int, len(query))
	bestTrainDist := make([]int, len(query))
	bestQuery := make([]int, len(train))
	bestQueryDist := make([]int, len(train))
	for j := range bestQueryDist {
		bestQuery[j] = -1
		bestQueryDist[j] = math.MaxInt
	}

	for i, q := range query {
		bestTrain[i] = -1
		bestTrainDist[i] = math.MaxInt
		for j, t := range train {
			d := Hamming(q, t)
			if d < bestTrainDist[i] {
				bestTrain[i] = j
				bestTrainDist[i] = d
			}
			if d < bestQueryDist[j] {
				bestQuery[j] = i
				bestQueryDist[j] = d
			}
		}
	}

	var out []Correspondence
	for i, j := range bestTrain {
		if j >= 0 && bestQuery[j] == i {
			out = append(out, Correspondence{QueryIdx: i, TrainIdx: j, Distance: bestTrainDist[i]})
		}
	}

	sort.SliceStable(out, func(a, b int) bool {
		return out[a].Distance < out[b].Distance
	})
	return out
}

// Hamming returns the number of differing bits between a and b. Only the
// common prefix is compared.
func Hamming(a, b []byte) int {
	n := min(len(a), len(b))
	d := 0
	i := 0
	for ; i+8 <= n; i += 8 {
		d += bits.OnesCount64(binary.LittleEndian.Uint64(a[i:]) ^ binary.LittleEndian.Uint64(b[i:]))
	}
	for ; i < n; i++ {
		d += bits.OnesCount8(a[i] ^ b[i])
	}
	return d
}
