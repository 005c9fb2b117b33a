// Package routing holds the static rail graph and answers shortest-path
// queries over it, optionally under per-query vertex and arc blacklists.
package routing

import (
	"fmt"
	"math"
	"sort"

	"railhaul/internal/domain"
)

const (
	layoutCenterX = 400.0
	layoutCenterY = 300.0
	layoutRadius  = 270.0
)

type Vertex struct {
	PointID int
	PostID  int
	HasPost bool
	X       float64
	Y       float64
}

// Edge is stored once per line with endpoints in document order.
type Edge struct {
	ID     int
	From   int
	To     int
	Length float64
}

// Other returns the endpoint opposite to v.
func (e Edge) Other(v int) int {
	if e.From == v {
		return e.To
	}
	return e.From
}

type arc struct {
	edge   int
	to     int
	length float64
}

// Graph is immutable after New. The shortest-path tree cache is not
// safe for concurrent use.
type Graph struct {
	vertices  []Vertex
	adjacency [][]arc
	edges     map[int]Edge
	index     map[int]int
	width     float64
	height    float64
	maxLength float64

	trees [][]Step
}

func New(static domain.StaticMap, coords *domain.Coordinates) (*Graph, error) {
	if len(static.Points) == 0 {
		return nil, fmt.Errorf("build graph: static map has no points")
	}
	g := &Graph{
		vertices:  make([]Vertex, 0, len(static.Points)),
		adjacency: make([][]arc, len(static.Points)),
		edges:     make(map[int]Edge, len(static.Lines)),
		index:     make(map[int]int, len(static.Points)),
		trees:     make([][]Step, len(static.Points)),
		width:     2 * layoutCenterX,
		height:    2 * layoutCenterY,
	}

	phiStep := 2 * math.Pi / float64(len(static.Points))
	for i, p := range static.Points {
		if _, dup := g.index[p.ID]; dup {
			return nil, fmt.Errorf("build graph: duplicate point %d", p.ID)
		}
		g.index[p.ID] = len(g.vertices)
		v := Vertex{
			PointID: p.ID,
			X:       layoutCenterX + layoutRadius*math.Cos(phiStep*float64(i)),
			Y:       layoutCenterY + layoutRadius*math.Sin(phiStep*float64(i)),
		}
		if p.PostID != nil {
			v.PostID = *p.PostID
			v.HasPost = true
		}
		g.vertices = append(g.vertices, v)
	}

	for _, line := range static.Lines {
		if _, dup := g.edges[line.ID]; dup {
			return nil, fmt.Errorf("build graph: duplicate line %d", line.ID)
		}
		if line.Length < 0 {
			return nil, fmt.Errorf("build graph: line %d has negative length %v", line.ID, line.Length)
		}
		from, ok := g.index[line.Points[0]]
		if !ok {
			return nil, fmt.Errorf("build graph: line %d references unknown point %d", line.ID, line.Points[0])
		}
		to, ok := g.index[line.Points[1]]
		if !ok {
			return nil, fmt.Errorf("build graph: line %d references unknown point %d", line.ID, line.Points[1])
		}
		g.edges[line.ID] = Edge{ID: line.ID, From: from, To: to, Length: line.Length}
		g.adjacency[from] = append(g.adjacency[from], arc{edge: line.ID, to: to, length: line.Length})
		g.adjacency[to] = append(g.adjacency[to], arc{edge: line.ID, to: from, length: line.Length})
		g.maxLength = math.Max(g.maxLength, line.Length)
	}
	for i := range g.adjacency {
		arcs := g.adjacency[i]
		sort.SliceStable(arcs, func(a, b int) bool {
			if arcs[a].to != arcs[b].to {
				return arcs[a].to < arcs[b].to
			}
			return arcs[a].edge < arcs[b].edge
		})
	}

	if coords != nil {
		for _, c := range coords.Points {
			idx, ok := g.index[c.ID]
			if !ok {
				return nil, fmt.Errorf("build graph: coordinates reference unknown point %d", c.ID)
			}
			g.vertices[idx].X = c.X
			g.vertices[idx].Y = c.Y
		}
		g.width = coords.Size[0]
		g.height = coords.Size[1]
	}
	return g, nil
}

func (g *Graph) Len() int {
	return len(g.vertices)
}

func (g *Graph) Vertex(i int) Vertex {
	return g.vertices[i]
}

// VertexIndex translates a server point id into a local vertex index.
func (g *Graph) VertexIndex(pointID int) (int, bool) {
	idx, ok := g.index[pointID]
	return idx, ok
}

func (g *Graph) Edge(id int) (Edge, bool) {
	e, ok := g.edges[id]
	return e, ok
}

// EdgeBetween returns the line joining a and b, preferring the lowest id
// when several lines are parallel.
func (g *Graph) EdgeBetween(a, b int) (Edge, bool) {
	for _, item := range g.adjacency[a] {
		if item.to == b {
			return g.edges[item.edge], true
		}
	}
	return Edge{}, false
}

func (g *Graph) Neighbors(v int) []int {
	out := make([]int, 0, len(g.adjacency[v]))
	for _, item := range g.adjacency[v] {
		out = append(out, item.to)
	}
	return out
}

func (g *Graph) Edges() []Edge {
	out := make([]Edge, 0, len(g.edges))
	for _, e := range g.edges {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (g *Graph) Size() (float64, float64) {
	return g.width, g.height
}

func (g *Graph) MaxLength() float64 {
	return g.maxLength
}
