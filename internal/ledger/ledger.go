// Package ledger tracks per-tick track occupancy, directional blacklists and
// claimed targets. It is rebuilt from every snapshot and mutated by a single
// scheduling goroutine.
package ledger

import (
	"fmt"

	"railhaul/internal/domain"
	"railhaul/internal/routing"
)

type holders map[int]struct{}

func (h holders) others(trainID int) bool {
	for id := range h {
		if id != trainID {
			return true
		}
	}
	return false
}

type Ledger struct {
	graph        *routing.Graph
	owner        string
	conservative bool

	white  map[int]struct{}
	cells  map[Cell]holders
	arcs   map[routing.Arc]holders
	points map[int]holders
	claims map[int]int
}

// New returns an empty ledger for the player owner. With conservative set a
// stationary foreign train reserves both cells it could step into.
func New(graph *routing.Graph, owner string, conservative bool) *Ledger {
	l := &Ledger{graph: graph, owner: owner, conservative: conservative}
	l.reset()
	return l
}

func (l *Ledger) reset() {
	l.white = map[int]struct{}{}
	l.cells = map[Cell]holders{}
	l.arcs = map[routing.Arc]holders{}
	l.points = map[int]holders{}
	l.claims = map[int]int{}
}

// Rebuild discards all state and derives it again from the trains on the
// map, the town vertices and the current target assignments.
func (l *Ledger) Rebuild(trains []domain.Train, towns []int, targets map[int]int) error {
	l.reset()
	for _, v := range towns {
		l.white[v] = struct{}{}
	}
	for trainID, v := range targets {
		l.claims[trainID] = v
	}

	for _, t := range trains {
		edge, ok := l.graph.Edge(t.LineID)
		if !ok {
			return fmt.Errorf("%w: train %d on unknown line %d", domain.ErrMalformedSnapshot, t.ID, t.LineID)
		}

		l.Reserve(CellAt(edge, t.Position), t.ID)
		if t.Owner != l.owner {
			switch {
			case t.Speed != 0:
				l.Reserve(NextCell(edge, t.Position, t.Speed), t.ID)
			case l.conservative:
				l.Reserve(NextCell(edge, t.Position, 1), t.ID)
				l.Reserve(NextCell(edge, t.Position, -1), t.ID)
			}
		}

		switch {
		case t.Speed < 0:
			add(l.arcs, routing.Arc{From: edge.From, To: edge.To}, t.ID)
		case t.Speed > 0:
			add(l.arcs, routing.Arc{From: edge.To, To: edge.From}, t.ID)
		case t.Position <= 0:
			l.blockPoint(edge.From, t.ID)
		case t.Position >= edge.Length:
			l.blockPoint(edge.To, t.ID)
		default:
			add(l.arcs, routing.Arc{From: edge.From, To: edge.To}, t.ID)
			add(l.arcs, routing.Arc{From: edge.To, To: edge.From}, t.ID)
		}
	}
	return nil
}

func add[K comparable](m map[K]holders, key K, trainID int) {
	h, ok := m[key]
	if !ok {
		h = holders{}
		m[key] = h
	}
	h[trainID] = struct{}{}
}

func (l *Ledger) blockPoint(v, trainID int) {
	if _, ok := l.white[v]; ok {
		return
	}
	add(l.points, v, trainID)
}

// Reserve marks c as held by trainID. Town vertices are never reserved.
func (l *Ledger) Reserve(c Cell, trainID int) {
	if l.isWhite(c) {
		return
	}
	add(l.cells, c, trainID)
}

// Release drops trainID's hold on c, leaving other holders in place.
func (l *Ledger) Release(c Cell, trainID int) {
	h, ok := l.cells[c]
	if !ok {
		return
	}
	delete(h, trainID)
	if len(h) == 0 {
		delete(l.cells, c)
	}
}

// Move frees from and reserves to on behalf of trainID.
func (l *Ledger) Move(trainID int, from, to Cell) {
	l.Release(from, trainID)
	l.Reserve(to, trainID)
}

func (l *Ledger) Taken(c Cell) bool {
	return len(l.cells[c]) > 0
}

// TakenByOther reports whether any train other than trainID holds c.
func (l *Ledger) TakenByOther(c Cell, trainID int) bool {
	return l.cells[c].others(trainID)
}

func (l *Ledger) isWhite(c Cell) bool {
	if c.Kind != CellVertex {
		return false
	}
	_, ok := l.white[c.Vertex]
	return ok
}

// Blocked reports whether a cell strictly between a train at position on
// edge and the endpoint toward is held by another train.
func (l *Ledger) Blocked(edge routing.Edge, position float64, toward, trainID int) bool {
	if position <= 0 || position >= edge.Length {
		return false
	}
	own := int(position)
	switch toward {
	case edge.From:
		if l.TakenByOther(VertexCell(edge.From), trainID) {
			return true
		}
		for k := 0; k < own; k++ {
			if l.TakenByOther(EdgeCell(edge.ID, k), trainID) {
				return true
			}
		}
	case edge.To:
		for k := own + 1; float64(k) < edge.Length; k++ {
			if l.TakenByOther(EdgeCell(edge.ID, k), trainID) {
				return true
			}
		}
		if l.TakenByOther(VertexCell(edge.To), trainID) {
			return true
		}
	}
	return false
}

// Constraints returns the blacklists contributed by every train except
// trainID.
func (l *Ledger) Constraints(trainID int) routing.Constraints {
	c := routing.Constraints{
		Vertices: map[int]struct{}{},
		Arcs:     map[routing.Arc]struct{}{},
	}
	for v, h := range l.points {
		if h.others(trainID) {
			c.Vertices[v] = struct{}{}
		}
	}
	for a, h := range l.arcs {
		if h.others(trainID) {
			c.Arcs[a] = struct{}{}
		}
	}
	return c
}

// Claim records v as trainID's target, replacing any earlier claim.
func (l *Ledger) Claim(trainID, v int) {
	l.claims[trainID] = v
}

func (l *Ledger) Unclaim(trainID int) {
	delete(l.claims, trainID)
}

// Claimed returns the targets of every train except trainID.
func (l *Ledger) Claimed(trainID int) map[int]struct{} {
	out := make(map[int]struct{}, len(l.claims))
	for id, v := range l.claims {
		if id != trainID {
			out[v] = struct{}{}
		}
	}
	return out
}

// Reserved lists every held cell, for diagnostics.
func (l *Ledger) Reserved() []Cell {
	out := make([]Cell, 0, len(l.cells))
	for c := range l.cells {
		out = append(out, c)
	}
	return out
}
