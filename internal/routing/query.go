package routing

// Arc is a directed traversal of a line between two local vertices.
type Arc struct {
	From int
	To   int
}

func (a Arc) Reverse() Arc {
	return Arc{From: a.To, To: a.From}
}

// Constraints is a per-query blacklist. A nil map forbids nothing.
type Constraints struct {
	Vertices map[int]struct{}
	Arcs     map[Arc]struct{}
}

func (c Constraints) forbidsVertex(v int) bool {
	_, ok := c.Vertices[v]
	return ok
}

func (c Constraints) forbidsArc(from, to int) bool {
	_, ok := c.Arcs[Arc{From: from, To: to}]
	return ok
}

// Start is a query origin. A train sitting on a vertex has Offset 0; a train
// partway along a line is Offset away from Vertex and the line continues to
// Other. Line and Length describe that line, since parallel lines may join
// the same pair of vertices.
type Start struct {
	Vertex int
	Other  int
	Offset float64
	Line   int
	Length float64
}

func AtVertex(v int) Start {
	return Start{Vertex: v, Other: v, Line: -1}
}

// OnEdge places a start offset units along e from its endpoint near.
func OnEdge(e Edge, near int, offset float64) Start {
	return Start{Vertex: near, Other: e.Other(near), Offset: offset, Line: e.ID, Length: e.Length}
}

func (s Start) midEdge() bool {
	return s.Offset != 0 && s.Other != s.Vertex
}

// Route is the answer to a next-hop query. Origin is the endpoint whose
// evaluation produced the route, which for a mid-edge start tells the caller
// which way to head first. Line carries the first step: the start's own line
// when it is mid-edge, otherwise the line from Origin to Next.
type Route struct {
	Next   int
	Origin int
	Line   int
	Length float64
}

// Distance is the unconstrained shortest distance, served from the per-source
// tree cache. It returns Unreachable when no path exists.
func (g *Graph) Distance(from, to int) float64 {
	if from == to {
		return 0
	}
	return g.cachedTree(from)[to].Length
}

// Distances returns the unconstrained distance from from to every vertex.
func (g *Graph) Distances(from int) []float64 {
	tree := g.cachedTree(from)
	out := make([]float64, len(tree))
	for i, step := range tree {
		out[i] = step.Length
	}
	return out
}

// DistanceAvoiding answers a constrained distance query. The cache is never
// consulted. The second result is false when the blacklist disconnects start
// from to.
func (g *Graph) DistanceAvoiding(start Start, to int, c Constraints) (float64, bool) {
	_, _, length, ok := g.evaluate(start, to, c)
	return length, ok
}

// NextHop returns the first vertex on a shortest constrained path from start
// toward to.
func (g *Graph) NextHop(start Start, to int, c Constraints) (Route, bool) {
	if start.Vertex == to {
		return Route{Next: to, Origin: to, Line: start.Line, Length: start.Offset}, true
	}
	steps, root, length, ok := g.evaluate(start, to, c)
	if !ok {
		return Route{}, false
	}
	next := nextOnPath(steps, root, to)
	line := start.Line
	if !start.midEdge() {
		line = steps[next].Line
	}
	return Route{Next: next, Origin: root, Line: line, Length: length}, true
}

func (g *Graph) evaluate(start Start, to int, c Constraints) ([]Step, int, float64, bool) {
	steps := g.buildTree(start.Vertex, to, c)
	root := start.Vertex
	length := steps[to].Length
	if length != Unreachable {
		length += start.Offset
	}

	if start.midEdge() && !c.forbidsArc(start.Vertex, start.Other) {
		alt := g.buildTree(start.Other, to, c)
		altLength := alt[to].Length
		if altLength != Unreachable {
			altLength += start.Length - start.Offset
			if length == Unreachable || altLength < length {
				steps, root, length = alt, start.Other, altLength
			}
		}
	}

	if length == Unreachable {
		return nil, -1, Unreachable, false
	}
	return steps, root, length, true
}
