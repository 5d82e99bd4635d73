package cluster

import (
	"math/rand"
	"testing"

	"scene-splitter/internal/alignment"
	"scene-splitter/internal/features"
	"scene-splitter/internal/match"
	"scene-splitter/internal/testutil"
	"scene-splitter/pkg/geometry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pairScores scripts the gates for fake images identified by id. Scores are
// symmetric; unlisted pairs score zero.
type pairScores struct {
	matches map[[2]int]int
	inliers map[[2]int]int
	fits    int
}

func newPairScores() *pairScores {
	return &pairScores{matches: map[[2]int]int{}, inliers: map[[2]int]int{}}
}

func (p *pairScores) link(a, b, matches, inliers int) *pairScores {
	p.matches[[2]int{a, b}] = matches
	p.matches[[2]int{b, a}] = matches
	p.inliers[[2]int{a, b}] = inliers
	p.inliers[[2]int{b, a}] = inliers
	return p
}

func (p *pairScores) Match(query, train [][]byte) []match.Correspondence {
	if len(query) == 0 || len(train) == 0 {
		return nil
	}
	return make([]match.Correspondence, p.matches[[2]int{int(query[0][0]), int(train[0][0])}])
}

func (p *pairScores) Fit(query, train []geometry.Point2D, corr []match.Correspondence) (alignment.HomographyResult, error) {
	p.fits++
	if len(corr) < 4 {
		return alignment.HomographyResult{}, alignment.ErrInsufficientCorrespondences
	}
	n := p.inliers[[2]int{int(query[0].X), int(train[0].X)}]
	return alignment.HomographyResult{Inliers: make([]int, n)}, nil
}

// fakeSet returns a set whose single keypoint and descriptor encode id.
func fakeSet(id int) features.Set {
	return features.Set{
		Index:       id,
		Keypoints:   []geometry.Point2D{{X: float64(id)}},
		Descriptors: [][]byte{{byte(id)}},
	}
}

func fakeSets(n int) []features.Set {
	sets := make([]features.Set, n)
	for i := range sets {
		sets[i] = fakeSet(i)
	}
	return sets
}

func build(scores *pairScores, sets []features.Set) Assignment {
	return NewBuilder(DefaultParams(), scores, scores, nil).Build(sets)
}

func members(a Assignment) [][]int {
	out := make([][]int, a.Len())
	for i, c := range a.Clusters {
		out[i] = c.Members
	}
	return out
}

func TestThresholdBoundary(t *testing.T) {
	tests := []struct {
		name    string
		matches int
		inliers int
		want    [][]int
	}{
		{"MatchesAtThreshold", 125, 200, [][]int{{0}, {1}}},
		{"InliersAtThreshold", 300, 50, [][]int{{0}, {1}}},
		{"BothAbove", 126, 51, [][]int{{0, 1}}},
		{"NoMatches", 0, 0, [][]int{{0}, {1}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scores := newPairScores().link(0, 1, tt.matches, tt.inliers)
			got := build(scores, fakeSets(2))
			assert.Equal(t, tt.want, members(got))
			require.NoError(t, got.Verify(2))
		})
	}
}

func TestCoarseGateSkipsHomography(t *testing.T) {
	scores := newPairScores().link(0, 1, 125, 500)
	build(scores, fakeSets(2))
	assert.Zero(t, scores.fits)
}

func TestFirstFitNotBestFit(t *testing.T) {
	// 0 and 1 start separate clusters; 2 matches both tails, 1 far better.
	scores := newPairScores().
		link(0, 2, 130, 60).
		link(1, 2, 500, 400)

	got := build(scores, fakeSets(3))
	assert.Equal(t, [][]int{{0, 2}, {1}}, members(got))
}

func TestOnlyTailIsCompared(t *testing.T) {
	// 2 matches 0 but the tail of cluster 0 is 1.
	scores := newPairScores().
		link(0, 1, 200, 100).
		link(0, 2, 200, 100)

	got := build(scores, fakeSets(3))
	assert.Equal(t, [][]int{{0, 1}, {2}}, members(got))
}

func TestTrailingChain(t *testing.T) {
	// A-B and B-C match, A-C do not.
	scores := newPairScores().
		link(0, 1, 200, 100).
		link(1, 2, 200, 100)

	got := build(scores, fakeSets(3))
	assert.Equal(t, [][]int{{0, 1, 2}}, members(got))
}

func TestEmptyFeaturesStaySingleton(t *testing.T) {
	sets := fakeSets(4)
	sets[1] = features.Set{Index: 1}
	sets[3] = features.Set{Index: 3}

	scores := newPairScores().link(0, 2, 200, 100)
	got := build(scores, sets)

	assert.Equal(t, [][]int{{0, 2}, {1}, {3}}, members(got))
	require.NoError(t, got.Verify(4))
}

func TestHomographyErrorFailsGate(t *testing.T) {
	// Matcher claims 200 matches but a broken estimator always errors.
	scores := newPairScores().link(0, 1, 200, 100)
	b := NewBuilder(DefaultParams(), scores, failingEstimator{}, nil)

	got := b.Build(fakeSets(2))
	assert.Equal(t, [][]int{{0}, {1}}, members(got))
}

type failingEstimator struct{}

func (failingEstimator) Fit([]geometry.Point2D, []geometry.Point2D, []match.Correspondence) (alignment.HomographyResult, error) {
	return alignment.HomographyResult{}, alignment.ErrNoModel
}

func TestCompletenessAndDeterminism(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	const n = 60
	scores := newPairScores()
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if rng.Intn(4) == 0 {
				scores.link(i, j, 100+rng.Intn(60), 30+rng.Intn(40))
			}
		}
	}

	first := build(scores, fakeSets(n))
	require.NoError(t, first.Verify(n))
	for k, c := range first.Clusters {
		assert.Equal(t, k, c.ID)
	}

	for run := 0; run < 3; run++ {
		again := build(scores, fakeSets(n))
		assert.Equal(t, first, again)
	}
}

func TestVerify(t *testing.T) {
	tests := []struct {
		name     string
		clusters []Cluster
		n        int
		wantErr  bool
	}{
		{"Valid", []Cluster{{ID: 0, Members: []int{0, 2}}, {ID: 1, Members: []int{1}}}, 3, false},
		{"Empty", nil, 0, false},
		{"Missing", []Cluster{{ID: 0, Members: []int{0, 2}}}, 3, true},
		{"Duplicate", []Cluster{{ID: 0, Members: []int{0, 1}}, {ID: 1, Members: []int{1}}}, 2, true},
		{"OutOfRange", []Cluster{{ID: 0, Members: []int{0, 5}}}, 2, true},
		{"BadID", []Cluster{{ID: 3, Members: []int{0}}}, 1, true},
		{"EmptyCluster", []Cluster{{ID: 0, Members: []int{0}}, {ID: 1}}, 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Assignment{Clusters: tt.clusters}.Verify(tt.n)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidAssignment)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLabels(t *testing.T) {
	a := Assignment{Clusters: []Cluster{{ID: 0, Members: []int{0, 2}}, {ID: 1, Members: []int{1}}}}
	assert.Equal(t, []int{0, 1, 0, -1}, a.Labels(4))
}

// The remaining tests run the real matcher and estimator on synthetic views.

func realBuilder() *Builder {
	return NewBuilder(DefaultParams(), match.BruteForce{}, alignment.NewEstimator(alignment.DefaultParams()), nil)
}

func chainViews() (a, b, c features.Set) {
	rng := rand.New(rand.NewSource(7))
	scene := testutil.NewScene(rng, 600, 500, 375)
	a = scene.View(0, 300, geometry.NewPoint2D(0, 0))
	b = scene.View(150, 450, geometry.NewPoint2D(2, 1))
	c = scene.View(300, 600, geometry.NewPoint2D(4, 2))
	return a, b, c
}

func TestRealChainMergesInOrder(t *testing.T) {
	a, b, c := chainViews()

	got := realBuilder().Build(testutil.Indexed(a, b, c))
	assert.Equal(t, [][]int{{0, 1, 2}}, members(got))
}

func TestRealChainOrderSensitive(t *testing.T) {
	a, b, c := chainViews()

	// A, C, B: C cannot join A directly, B then joins A's cluster.
	got := realBuilder().Build(testutil.Indexed(a, c, b))
	assert.Equal(t, [][]int{{0, 2}, {1}}, members(got))
}

func TestRealDistinctScenes(t *testing.T) {
	rng := rand.New(rand.NewSource(8))
	p := testutil.NewScene(rng, 300, 500, 375)
	q := testutil.NewScene(rng, 300, 500, 375)

	sets := testutil.Indexed(
		p.View(0, 300, geometry.NewPoint2D(0, 0)),
		q.View(0, 300, geometry.NewPoint2D(0, 0)),
		p.View(0, 300, geometry.NewPoint2D(1, -1)),
		q.View(0, 300, geometry.NewPoint2D(-2, 3)),
	)

	got := realBuilder().Build(sets)
	assert.Equal(t, [][]int{{0, 2}, {1, 3}}, members(got))
}
