// Package world keeps the dynamic post and train state on top of the static
// rail graph. All state is replaced wholesale on every refresh.
package world

import (
	"fmt"
	"sort"

	"railhaul/internal/domain"
	"railhaul/internal/routing"
)

type World struct {
	graph *routing.Graph
	home  int

	posts    []domain.Post
	towns    []int
	markets  []int
	storages []int
	trains   []domain.Train
}

// New binds a graph to the home town identified by its server point id.
func New(graph *routing.Graph, homePoint int) (*World, error) {
	home, ok := graph.VertexIndex(homePoint)
	if !ok {
		return nil, fmt.Errorf("home point %d is not on the map", homePoint)
	}
	return &World{
		graph: graph,
		home:  home,
		posts: make([]domain.Post, graph.Len()),
	}, nil
}

func (w *World) Graph() *routing.Graph {
	return w.graph
}

// Home is the local vertex index of the controlled town.
func (w *World) Home() int {
	return w.home
}

// Refresh replaces posts and trains from a snapshot. On error the previous
// state is left untouched.
func (w *World) Refresh(snap domain.Snapshot) error {
	posts := make([]domain.Post, w.graph.Len())
	for _, p := range snap.Posts {
		idx, ok := w.graph.VertexIndex(p.PointID)
		if !ok {
			return fmt.Errorf("%w: post %d on unknown point %d", domain.ErrMalformedSnapshot, p.ID, p.PointID)
		}
		switch p.Kind {
		case domain.PostKindTown, domain.PostKindMarket, domain.PostKindStorage:
		default:
			return fmt.Errorf("%w: post %d has unknown type %d", domain.ErrMalformedSnapshot, p.ID, p.Kind)
		}
		posts[idx] = p
	}

	trains := make([]domain.Train, 0, len(snap.Trains))
	for _, t := range snap.Trains {
		edge, ok := w.graph.Edge(t.LineID)
		if !ok {
			return fmt.Errorf("%w: train %d on unknown line %d", domain.ErrMalformedSnapshot, t.ID, t.LineID)
		}
		if t.Position < 0 || t.Position > edge.Length {
			return fmt.Errorf("%w: train %d position %v outside line %d of length %v",
				domain.ErrMalformedSnapshot, t.ID, t.Position, t.LineID, edge.Length)
		}
		trains = append(trains, t)
	}

	w.posts = posts
	w.trains = trains
	w.towns, w.markets, w.storages = nil, nil, nil
	for i, p := range posts {
		switch p.Kind {
		case domain.PostKindTown:
			w.towns = append(w.towns, i)
		case domain.PostKindMarket:
			w.markets = append(w.markets, i)
		case domain.PostKindStorage:
			w.storages = append(w.storages, i)
		}
	}
	// Candidates are visited in ascending post id so score ties resolve the
	// same way every run.
	byPostID := func(list []int) {
		sort.SliceStable(list, func(a, b int) bool {
			return posts[list[a]].ID < posts[list[b]].ID
		})
	}
	byPostID(w.markets)
	byPostID(w.storages)
	return nil
}

func (w *World) Post(v int) domain.Post {
	return w.posts[v]
}

func (w *World) Kind(v int) domain.PostKind {
	return w.posts[v].Kind
}

func (w *World) HomePost() domain.Post {
	return w.posts[w.home]
}

func (w *World) Towns() []int    { return w.towns }
func (w *World) Markets() []int  { return w.markets }
func (w *World) Storages() []int { return w.storages }

// OfKind returns the vertices holding posts of the given kind.
func (w *World) OfKind(kind domain.PostKind) []int {
	switch kind {
	case domain.PostKindTown:
		return w.towns
	case domain.PostKindMarket:
		return w.markets
	case domain.PostKindStorage:
		return w.storages
	default:
		return nil
	}
}

// Posts returns a copy of every non-empty post, for rendering.
func (w *World) Posts() []domain.Post {
	out := make([]domain.Post, 0, len(w.towns)+len(w.markets)+len(w.storages))
	for _, p := range w.posts {
		if p.Kind != domain.PostKindNone {
			out = append(out, p)
		}
	}
	return out
}

func (w *World) Trains() []domain.Train {
	out := make([]domain.Train, len(w.trains))
	copy(out, w.trains)
	return out
}

// Score is the game rating of the home town given the armor spent so far.
func (w *World) Score(spentArmor float64) float64 {
	home := w.posts[w.home]
	return home.Population*1000 + spentArmor*4 + home.Armor + home.Goods
}
