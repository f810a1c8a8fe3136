package generaldata

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRectContainsIsEdgeExclusive(t *testing.T) {
	r := NewRect(10, 10, 20, 20)
	assert.True(t, r.Contains(Point{X: 10, Y: 10}))
	assert.True(t, r.Contains(Point{X: 29.9, Y: 29.9}))
	assert.False(t, r.Contains(Point{X: 30, Y: 15}))
	assert.False(t, r.Contains(Point{X: 15, Y: 30}))
	assert.False(t, r.Contains(Point{X: 9.9, Y: 15}))
}

func TestRectIntersectAndMerge(t *testing.T) {
	a := NewRect(0, 0, 10, 10)
	b := NewRect(5, 5, 10, 10)
	assert.Equal(t, NewRect(5, 5, 5, 5), a.Intersect(b))
	assert.Equal(t, NewRect(0, 0, 15, 15), a.Merge(b))
	assert.True(t, a.Intersect(NewRect(20, 20, 1, 1)).IsEmpty())
	assert.Equal(t, a, Rect{}.Merge(a))
}

func TestTransformSize(t *testing.T) {
	size := Vector2i{X: 800, Y: 600}
	assert.Equal(t, size, TransformNormal.TransformSize(size))
	assert.Equal(t, size, TransformFlipped180.TransformSize(size))
	assert.Equal(t, Vector2i{X: 600, Y: 800}, Transform90.TransformSize(size))
	assert.Equal(t, Vector2i{X: 600, Y: 800}, TransformFlipped270.TransformSize(size))
}

func TestTransformNormalized(t *testing.T) {
	p := Point{X: 0.25, Y: 0.75}
	assert.Equal(t, p, TransformNormal.TransformNormalized(p))
	assert.Equal(t, Point{X: 0.75, Y: 0.25}, Transform180.TransformNormalized(p))
	assert.Equal(t, Point{X: 0.25, Y: 0.25}, TransformFlipped180.TransformNormalized(p))
	assert.Equal(t, Point{X: 0.75, Y: 0.75}, TransformFlipped.TransformNormalized(p))
}

func TestParseTransform(t *testing.T) {
	tr, err := ParseTransform("Flipped-180")
	assert.NoError(t, err)
	assert.Equal(t, TransformFlipped180, tr)

	tr, err = ParseTransform("")
	assert.NoError(t, err)
	assert.Equal(t, TransformNormal, tr)

	_, err = ParseTransform("sideways")
	assert.Error(t, err)
}

func TestSerialWrapAround(t *testing.T) {
	assert.True(t, Serial(5).IsNoOlderThan(3))
	assert.False(t, Serial(3).IsNoOlderThan(5))
	assert.True(t, Serial(3).IsNoOlderThan(3))
	// 2 was produced after the counter wrapped past 0xfffffff0
	assert.True(t, Serial(2).IsNoOlderThan(0xfffffff0))

	c := SerialCounter{last: 0xffffffff}
	assert.Equal(t, Serial(1), c.Next())
	assert.Equal(t, Serial(1), c.Last())
}
