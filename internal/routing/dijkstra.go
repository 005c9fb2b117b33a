package routing

import "container/heap"

// Step is one entry of a shortest-path tree. Line is the line used to
// reach the vertex from Prev. Length is Unreachable when the vertex was
// never settled.
type Step struct {
	Prev   int
	Line   int
	Length float64
}

const Unreachable = -1.0

type queueItem struct {
	vertex int
	prev   int
	line   int
	length float64
}

type queue []queueItem

func (q queue) Len() int { return len(q) }

func (q queue) Less(i, j int) bool {
	if q[i].length != q[j].length {
		return q[i].length < q[j].length
	}
	if q[i].vertex != q[j].vertex {
		return q[i].vertex < q[j].vertex
	}
	return q[i].line < q[j].line
}

func (q queue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *queue) Push(x any) { *q = append(*q, x.(queueItem)) }

func (q *queue) Pop() any {
	old := *q
	item := old[len(old)-1]
	*q = old[:len(old)-1]
	return item
}

// buildTree runs Dijkstra from origin. Vertices in c.Vertices are never
// settled unless they are the origin or target; arcs in c.Arcs are never
// relaxed. Pass target < 0 when there is no explicit target.
func (g *Graph) buildTree(origin, target int, c Constraints) []Step {
	steps := make([]Step, len(g.vertices))
	for i := range steps {
		steps[i] = Step{Prev: -1, Line: -1, Length: Unreachable}
	}
	settled := make([]bool, len(g.vertices))

	pq := &queue{{vertex: origin, prev: -1, line: -1, length: 0}}
	for pq.Len() > 0 {
		cur := heap.Pop(pq).(queueItem)
		if settled[cur.vertex] {
			continue
		}
		settled[cur.vertex] = true
		steps[cur.vertex] = Step{Prev: cur.prev, Line: cur.line, Length: cur.length}

		for _, item := range g.adjacency[cur.vertex] {
			if settled[item.to] {
				continue
			}
			if item.to != origin && item.to != target && c.forbidsVertex(item.to) {
				continue
			}
			if c.forbidsArc(cur.vertex, item.to) {
				continue
			}
			heap.Push(pq, queueItem{vertex: item.to, prev: cur.vertex, line: item.edge, length: cur.length + item.length})
		}
	}
	return steps
}

// cachedTree returns the unconstrained tree rooted at origin. Topology never
// changes after New, so entries stay valid for the graph's lifetime.
func (g *Graph) cachedTree(origin int) []Step {
	if g.trees[origin] == nil {
		g.trees[origin] = g.buildTree(origin, -1, Constraints{})
	}
	return g.trees[origin]
}

// nextOnPath walks predecessors back from to until the vertex right after
// root. It returns to itself when to is the root or unreachable.
func nextOnPath(steps []Step, root, to int) int {
	cur := to
	for steps[cur].Prev != root && steps[cur].Prev != -1 {
		cur = steps[cur].Prev
	}
	return cur
}
