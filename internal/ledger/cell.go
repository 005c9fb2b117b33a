package ledger

import (
	"fmt"
	"math"

	"railhaul/internal/routing"
)

type CellKind uint8

const (
	CellVertex CellKind = iota
	CellEdge
)

// Cell is one reservable unit of track: a vertex, or an integer offset along
// a line. Cells are comparable and used directly as map keys.
type Cell struct {
	Kind   CellKind
	Vertex int
	Line   int
	Offset int
}

func VertexCell(v int) Cell {
	return Cell{Kind: CellVertex, Vertex: v}
}

func EdgeCell(line, offset int) Cell {
	return Cell{Kind: CellEdge, Line: line, Offset: offset}
}

func (c Cell) String() string {
	if c.Kind == CellVertex {
		return fmt.Sprintf("v%d", c.Vertex)
	}
	return fmt.Sprintf("l%d+%d", c.Line, c.Offset)
}

// CellAt maps a train position onto its cell. Positions 0 and the line length
// are the line's endpoint vertices.
func CellAt(edge routing.Edge, position float64) Cell {
	switch {
	case position <= 0:
		return VertexCell(edge.From)
	case position >= edge.Length:
		return VertexCell(edge.To)
	default:
		return EdgeCell(edge.ID, int(position))
	}
}

// NextCell is the cell a train reaches after one step at speed, clamped to
// the line's ends.
func NextCell(edge routing.Edge, position float64, speed int) Cell {
	next := math.Max(0, math.Min(position+float64(speed), edge.Length))
	return CellAt(edge, next)
}

// EntryPosition is the position on edge of a train standing on vertex v.
func EntryPosition(edge routing.Edge, v int) (float64, bool) {
	switch v {
	case edge.From:
		return 0, true
	case edge.To:
		return edge.Length, true
	default:
		return 0, false
	}
}
