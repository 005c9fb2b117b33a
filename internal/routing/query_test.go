package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"railhaul/internal/domain"
)

func TestDistanceUsesShorterArc(t *testing.T) {
	g := newRing(t, [4]float64{1, 2, 3, 10})

	assert.Equal(t, 0.0, g.Distance(2, 2))
	assert.Equal(t, 3.0, g.Distance(0, 2))
	assert.Equal(t, 6.0, g.Distance(0, 3))
	assert.Equal(t, []float64{0, 1, 3, 6}, g.Distances(0))
}

func TestDistanceCacheIsPerSource(t *testing.T) {
	g := newRing(t, [4]float64{1, 1, 1, 1})

	require.Nil(t, g.trees[1])
	g.Distance(1, 3)
	require.NotNil(t, g.trees[1])
	assert.Nil(t, g.trees[0])
}

func TestDistanceAvoidingDisconnectedReportsNoPath(t *testing.T) {
	g := newRing(t, [4]float64{1, 1, 1, 1})
	// Warm the cache so a stale answer would be visible.
	require.Equal(t, 2.0, g.Distance(0, 2))

	c := Constraints{Vertices: map[int]struct{}{1: {}, 3: {}}}
	_, ok := g.DistanceAvoiding(AtVertex(0), 2, c)
	assert.False(t, ok)

	_, ok = g.NextHop(AtVertex(0), 2, c)
	assert.False(t, ok)
}

func TestDistanceAvoidingNeverSkipsSourceOrTarget(t *testing.T) {
	g := newRing(t, [4]float64{1, 1, 1, 1})
	c := Constraints{Vertices: map[int]struct{}{0: {}, 1: {}}}

	d, ok := g.DistanceAvoiding(AtVertex(0), 1, c)
	require.True(t, ok)
	assert.Equal(t, 1.0, d)
}

func TestArcBlacklistIsDirectional(t *testing.T) {
	g := newRing(t, [4]float64{1, 1, 1, 1})
	c := Constraints{Arcs: map[Arc]struct{}{{From: 0, To: 1}: {}}}

	d, ok := g.DistanceAvoiding(AtVertex(0), 1, c)
	require.True(t, ok)
	assert.Equal(t, 3.0, d, "forbidden 0->1 forces the long way round")

	d, ok = g.DistanceAvoiding(AtVertex(1), 0, c)
	require.True(t, ok)
	assert.Equal(t, 1.0, d, "reverse direction stays open")
}

func TestNextHopWalksToFirstStep(t *testing.T) {
	g := newRing(t, [4]float64{1, 2, 3, 10})

	r, ok := g.NextHop(AtVertex(0), 2, Constraints{})
	require.True(t, ok)
	assert.Equal(t, 1, r.Next)
	assert.Equal(t, 0, r.Origin)
	assert.Equal(t, 3.0, r.Length)

	r, ok = g.NextHop(AtVertex(0), 1, Constraints{})
	require.True(t, ok)
	assert.Equal(t, 1, r.Next)

	r, ok = g.NextHop(AtVertex(2), 2, Constraints{})
	require.True(t, ok)
	assert.Equal(t, 2, r.Next)
}

func TestNextHopAvoidsForbiddenVertex(t *testing.T) {
	g := newRing(t, [4]float64{1, 1, 1, 1})
	c := Constraints{Vertices: map[int]struct{}{1: {}}}

	r, ok := g.NextHop(AtVertex(0), 2, c)
	require.True(t, ok)
	assert.Equal(t, 3, r.Next)
	assert.Equal(t, 2.0, r.Length)
}

func TestSplitEdgePicksShorterEndpoint(t *testing.T) {
	// Train on line 10 (0-1, length 4), 3 units away from vertex 0.
	g := newRing(t, [4]float64{4, 1, 1, 1})

	line, _ := g.Edge(10)
	start := OnEdge(line, 0, 3)
	r, ok := g.NextHop(start, 2, Constraints{})
	require.True(t, ok)
	assert.Equal(t, 1, r.Origin, "continuing to vertex 1 is shorter")
	assert.Equal(t, 2, r.Next)
	assert.Equal(t, 10, r.Line)
	assert.Equal(t, 2.0, r.Length)

	start = OnEdge(line, 0, 1)
	d, ok := g.DistanceAvoiding(start, 3, Constraints{})
	require.True(t, ok)
	assert.Equal(t, 2.0, d)
}

func TestSplitEdgeSkipsForbiddenContinuation(t *testing.T) {
	g := newRing(t, [4]float64{4, 1, 1, 1})
	c := Constraints{Arcs: map[Arc]struct{}{{From: 0, To: 1}: {}}}

	line, _ := g.Edge(10)
	r, ok := g.NextHop(OnEdge(line, 0, 3), 2, c)
	require.True(t, ok)
	assert.Equal(t, 0, r.Origin)
	assert.Equal(t, 5.0, r.Length)
	assert.Equal(t, 3, r.Next)
}

func TestNextHopWhenTargetIsStartVertex(t *testing.T) {
	g := newRing(t, [4]float64{4, 1, 1, 1})

	line, _ := g.Edge(10)
	r, ok := g.NextHop(OnEdge(line, 1, 2), 1, Constraints{})
	require.True(t, ok)
	assert.Equal(t, Route{Next: 1, Origin: 1, Line: 10, Length: 2}, r)
}

// parallelMap has two lines between points 1 and 2: the long line 5 and the
// short line 7, then line 8 on to point 3.
func parallelMap() domain.StaticMap {
	return domain.StaticMap{
		Points: []domain.Point{{ID: 1}, {ID: 2}, {ID: 3}},
		Lines: []domain.Line{
			{ID: 5, Points: [2]int{1, 2}, Length: 10},
			{ID: 7, Points: [2]int{1, 2}, Length: 2},
			{ID: 8, Points: [2]int{2, 3}, Length: 1},
		},
	}
}

func TestNextHopTakesShorterParallelLine(t *testing.T) {
	g, err := New(parallelMap(), nil)
	require.NoError(t, err)

	r, ok := g.NextHop(AtVertex(0), 2, Constraints{})
	require.True(t, ok)
	assert.Equal(t, Route{Next: 1, Origin: 0, Line: 7, Length: 3}, r)

	r, ok = g.NextHop(AtVertex(2), 0, Constraints{})
	require.True(t, ok)
	assert.Equal(t, Route{Next: 1, Origin: 2, Line: 8, Length: 3}, r)
}

func TestSplitEdgeUsesOwnLineLength(t *testing.T) {
	g, err := New(parallelMap(), nil)
	require.NoError(t, err)
	long, _ := g.Edge(5)

	// 2 units into the long line: back to point 1 and over the short line
	// beats the 8 units left ahead.
	start := OnEdge(long, 0, 2)
	d, ok := g.DistanceAvoiding(start, 1, Constraints{})
	require.True(t, ok)
	assert.Equal(t, 4.0, d)

	r, ok := g.NextHop(start, 1, Constraints{})
	require.True(t, ok)
	assert.Equal(t, Route{Next: 1, Origin: 0, Line: 5, Length: 4}, r)

	// Near the far end the remaining stretch of the long line wins.
	r, ok = g.NextHop(OnEdge(long, 0, 9), 2, Constraints{})
	require.True(t, ok)
	assert.Equal(t, Route{Next: 2, Origin: 1, Line: 5, Length: 2}, r)
}
