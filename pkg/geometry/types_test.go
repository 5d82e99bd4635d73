package geometry

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHomographyApply(t *testing.T) {
	p := NewPoint2D(3, 4)

	got, ok := IdentityHomography().Apply(p)
	assert.True(t, ok)
	assert.Equal(t, p, got)

	got, ok = TranslationHomography(2, -1).Apply(p)
	assert.True(t, ok)
	assert.Equal(t, NewPoint2D(5, 3), got)

	// w = 0 for every point
	_, ok = Homography{1, 0, 0, 0, 1, 0, 0, 0, 0}.Apply(p)
	assert.False(t, ok)
}

func TestHomographyMul(t *testing.T) {
	a := TranslationHomography(1, 2)
	b := TranslationHomography(10, 20)
	assert.Equal(t, TranslationHomography(11, 22), a.Mul(b))
	assert.Equal(t, a, a.Mul(IdentityHomography()))
}

func TestHomographyNormalized(t *testing.T) {
	h := Homography{2, 0, 4, 0, 2, 6, 0, 0, 2}
	assert.Equal(t, TranslationHomography(2, 3), h.Normalized())
	assert.Equal(t, 2.0, h.At(0, 0))
}

func TestCollinear(t *testing.T) {
	assert.True(t, Collinear(NewPoint2D(0, 0), NewPoint2D(1, 1), NewPoint2D(5, 5), 1e-9))
	assert.False(t, Collinear(NewPoint2D(0, 0), NewPoint2D(1, 0), NewPoint2D(0, 1), 1e-9))
}

func TestDistance(t *testing.T) {
	assert.Equal(t, 5.0, NewPoint2D(0, 0).Distance(NewPoint2D(3, 4)))
	assert.Equal(t, 25.0, NewPoint2D(0, 0).DistanceSq(NewPoint2D(3, 4)))
}
