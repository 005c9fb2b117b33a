package valuation

import (
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"railhaul/internal/domain"
	"railhaul/internal/routing"
	"railhaul/internal/world"
)

// newRingWorld is a four-point ring 1-2-3-4-1 of length-2 lines with the home
// town on point 1.
func newRingWorld(t *testing.T, posts ...domain.Post) *world.World {
	t.Helper()
	g, err := routing.New(domain.StaticMap{
		Points: []domain.Point{{ID: 1}, {ID: 2}, {ID: 3}, {ID: 4}},
		Lines: []domain.Line{
			{ID: 10, Points: [2]int{1, 2}, Length: 2},
			{ID: 11, Points: [2]int{2, 3}, Length: 2},
			{ID: 12, Points: [2]int{3, 4}, Length: 2},
			{ID: 13, Points: [2]int{4, 1}, Length: 2},
		},
	}, nil)
	require.NoError(t, err)
	w, err := world.New(g, 1)
	require.NoError(t, err)

	home := domain.Post{ID: 1, Kind: domain.PostKindTown, PointID: 1, Population: 2}
	require.NoError(t, w.Refresh(domain.Snapshot{Posts: append([]domain.Post{home}, posts...)}))
	return w
}

func TestScoreStorage(t *testing.T) {
	w := newRingWorld(t,
		domain.Post{ID: 2, Kind: domain.PostKindStorage, PointID: 2, Armor: 5, ArmorCapacity: 20, Replenishment: 2},
	)
	m := New(w)

	c, ok := m.Score(1, Request{Start: routing.AtVertex(0), Capacity: 10})
	require.True(t, ok)
	assert.Equal(t, 2.0, c.DistanceTo)
	assert.Equal(t, 2.0, c.DistanceFrom)
	assert.Equal(t, 0.5, c.Wait)
	assert.InDelta(t, 10/4.5, c.Score, 1e-9)
}

func TestScoreMarketAvoidsStoragesAndChargesPopulation(t *testing.T) {
	w := newRingWorld(t,
		domain.Post{ID: 2, Kind: domain.PostKindStorage, PointID: 2, ArmorCapacity: 20, Replenishment: 1},
		domain.Post{ID: 3, Kind: domain.PostKindMarket, PointID: 3, Goods: 10, GoodsCapacity: 10, Replenishment: 1},
	)
	m := New(w)

	c, ok := m.BestMarket(Request{Start: routing.AtVertex(0), Capacity: 10})
	require.True(t, ok)
	assert.Equal(t, 2, c.Vertex)
	assert.Equal(t, 4.0, c.DistanceTo, "route goes round through point 4")
	assert.Equal(t, 0.0, c.Wait)
	assert.InDelta(t, (10-2*8)/8.0, c.Score, 1e-9)
}

func TestBestStorageHonoursAvoidSet(t *testing.T) {
	w := newRingWorld(t,
		domain.Post{ID: 2, Kind: domain.PostKindStorage, PointID: 2, Armor: 5, ArmorCapacity: 20, Replenishment: 2},
		domain.Post{ID: 4, Kind: domain.PostKindStorage, PointID: 4, ArmorCapacity: 100, Replenishment: 1},
	)
	m := New(w)

	c, ok := m.BestStorage(Request{Start: routing.AtVertex(0), Capacity: 10})
	require.True(t, ok)
	assert.Equal(t, 1, c.Vertex)

	c, ok = m.BestStorage(Request{Start: routing.AtVertex(0), Capacity: 10, Avoid: map[int]struct{}{1: {}}})
	require.True(t, ok)
	assert.Equal(t, 3, c.Vertex)

	_, ok = m.BestStorage(Request{Start: routing.AtVertex(0), Capacity: 10, Avoid: map[int]struct{}{1: {}, 3: {}}})
	assert.False(t, ok)
}

func TestBestBreaksTiesByPostID(t *testing.T) {
	w := newRingWorld(t,
		domain.Post{ID: 32, Kind: domain.PostKindStorage, PointID: 2, Armor: 5, ArmorCapacity: 20, Replenishment: 2},
		domain.Post{ID: 31, Kind: domain.PostKindStorage, PointID: 4, Armor: 5, ArmorCapacity: 20, Replenishment: 2},
	)
	m := New(w)

	c, ok := m.BestStorage(Request{Start: routing.AtVertex(0), Capacity: 10})
	require.True(t, ok)
	assert.Equal(t, 3, c.Vertex, "equal scores keep the lower post id")
}

func TestScoreEmptyPostWithoutRefillIsWorst(t *testing.T) {
	w := newRingWorld(t,
		domain.Post{ID: 2, Kind: domain.PostKindStorage, PointID: 2, ArmorCapacity: 20},
	)
	m := New(w)

	c, ok := m.Score(1, Request{Start: routing.AtVertex(0), Capacity: 10})
	require.True(t, ok)
	assert.True(t, math.IsInf(c.Wait, 1))
	assert.True(t, math.IsInf(c.Score, -1))
}

func TestScoreRejectsNonCandidates(t *testing.T) {
	w := newRingWorld(t)
	m := New(w)

	_, ok := m.Score(0, Request{Start: routing.AtVertex(0), Capacity: 10})
	assert.False(t, ok, "towns are not scored")
	_, ok = m.Score(2, Request{Start: routing.AtVertex(0), Capacity: 10})
	assert.False(t, ok)
}

// pairWorld is a single line of the given length from the home town (point 1)
// to a post on point 2.
func pairWorld(length float64, post domain.Post) *world.World {
	g, err := routing.New(domain.StaticMap{
		Points: []domain.Point{{ID: 1}, {ID: 2}},
		Lines:  []domain.Line{{ID: 1, Points: [2]int{1, 2}, Length: length}},
	}, nil)
	if err != nil {
		panic(err)
	}
	w, err := world.New(g, 1)
	if err != nil {
		panic(err)
	}
	post.PointID = 2
	home := domain.Post{ID: 1, Kind: domain.PostKindTown, PointID: 1, Population: 1}
	if err := w.Refresh(domain.Snapshot{Posts: []domain.Post{home, post}}); err != nil {
		panic(err)
	}
	return w
}

func TestValuationProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("more stock never lowers a storage score", prop.ForAll(
		func(length, load, extra, rate, capacity float64) bool {
			score := func(armor float64) float64 {
				w := pairWorld(length, domain.Post{
					ID: 2, Kind: domain.PostKindStorage, Armor: armor, ArmorCapacity: 60, Replenishment: rate,
				})
				c, ok := New(w).Score(1, Request{Start: routing.AtVertex(0), Capacity: capacity})
				if !ok {
					return math.NaN()
				}
				return c.Score
			}
			low, high := score(load), score(load+extra)
			return high+1e-9 >= low
		},
		gen.Float64Range(0.5, 20),
		gen.Float64Range(0, 30),
		gen.Float64Range(0, 30),
		gen.Float64Range(0.5, 5),
		gen.Float64Range(1, 80),
	))

	properties.Property("a farther market never scores higher", prop.ForAll(
		func(length, extra, goods, rate, capacity float64) bool {
			score := func(l float64) float64 {
				w := pairWorld(l, domain.Post{
					ID: 2, Kind: domain.PostKindMarket, Goods: goods, GoodsCapacity: 60, Replenishment: rate,
				})
				c, ok := New(w).Score(1, Request{Start: routing.AtVertex(0), Capacity: capacity})
				if !ok {
					return math.NaN()
				}
				return c.Score
			}
			near, far := score(length), score(length+extra)
			return near+1e-9 >= far
		},
		gen.Float64Range(0.5, 20),
		gen.Float64Range(0, 20),
		gen.Float64Range(0, 60),
		gen.Float64Range(0.5, 5),
		gen.Float64Range(1, 80),
	))

	properties.TestingRun(t)
}
