// Package valuation scores markets and storages for a train by the amount of
// cargo it can bring home per unit of time.
package valuation

import (
	"math"

	"railhaul/internal/domain"
	"railhaul/internal/routing"
	"railhaul/internal/world"
)

type Request struct {
	Start    routing.Start
	Capacity float64
	// Avoid lists vertices that may not be chosen and may not be crossed
	// on the way to a candidate.
	Avoid map[int]struct{}
	Arcs  map[routing.Arc]struct{}
}

type Candidate struct {
	Vertex       int
	Score        float64
	DistanceTo   float64
	DistanceFrom float64
	Wait         float64
}

type Model struct {
	world *world.World
}

func New(w *world.World) *Model {
	return &Model{world: w}
}

func (m *Model) BestMarket(req Request) (Candidate, bool) {
	return m.Best(domain.PostKindMarket, req)
}

func (m *Model) BestStorage(req Request) (Candidate, bool) {
	return m.Best(domain.PostKindStorage, req)
}

// Best returns the highest scoring post of kind. A later candidate replaces
// the leader only with a strictly larger score.
func (m *Model) Best(kind domain.PostKind, req Request) (Candidate, bool) {
	var best Candidate
	found := false
	for _, v := range m.world.OfKind(kind) {
		if _, skip := req.Avoid[v]; skip {
			continue
		}
		c, ok := m.Score(v, req)
		if !ok {
			continue
		}
		if !found || c.Score > best.Score {
			best = c
			found = true
		}
	}
	return best, found
}

// Score values a single market or storage. It reports false when the
// candidate cannot be reached or cannot reach home.
func (m *Model) Score(v int, req Request) (Candidate, bool) {
	post := m.world.Post(v)
	var opposite []int
	var load, capacity float64
	switch post.Kind {
	case domain.PostKindMarket:
		opposite = m.world.Storages()
		load, capacity = post.Goods, post.GoodsCapacity
	case domain.PostKindStorage:
		opposite = m.world.Markets()
		load, capacity = post.Armor, post.ArmorCapacity
	default:
		return Candidate{}, false
	}

	forbidden := make(map[int]struct{}, len(opposite)+len(req.Avoid))
	for _, o := range opposite {
		forbidden[o] = struct{}{}
	}
	for a := range req.Avoid {
		forbidden[a] = struct{}{}
	}

	g := m.world.Graph()
	distanceTo, ok := g.DistanceAvoiding(req.Start, v, routing.Constraints{Vertices: forbidden, Arcs: req.Arcs})
	if !ok {
		return Candidate{}, false
	}
	distanceFrom := g.Distance(v, m.world.Home())
	if distanceFrom == routing.Unreachable {
		return Candidate{}, false
	}

	wait := waitTime(req.Capacity, load, capacity, post.Replenishment, distanceTo)
	total := distanceTo + distanceFrom + wait

	gain := req.Capacity
	if post.Kind == domain.PostKindMarket {
		gain -= m.world.HomePost().Population * total
	}

	return Candidate{
		Vertex:       v,
		Score:        perUnitTime(gain, total),
		DistanceTo:   distanceTo,
		DistanceFrom: distanceFrom,
		Wait:         wait,
	}, true
}

// waitTime is how long a train of the given capacity waits at a post that
// holds load of capacity and refills at rate, arriving after travel.
func waitTime(want, load, capacity, rate, travel float64) float64 {
	free := want - math.Min(load+rate*travel, capacity)
	if free <= 0 {
		return 0
	}
	if rate <= 0 {
		return math.Inf(1)
	}
	return free / rate
}

func perUnitTime(gain, total float64) float64 {
	switch {
	case math.IsInf(total, 1):
		return math.Inf(-1)
	case total <= 0:
		return math.Inf(1)
	default:
		return gain / total
	}
}
