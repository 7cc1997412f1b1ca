package cluster

import "github.com/Faultbox/resin-slicer/pkg/raster"

// RunKey identifies a foreground run: its layer, its row and its position
// among that row's foreground runs.
type RunKey struct {
	Layer int
	Row   int
	Index int
}

// Row is the foreground spans of one raster row.
type Row struct {
	Layer int
	Row   int
	Spans []raster.Span
}

// Key returns the key of span i of the row.
func (r Row) Key(i int) RunKey {
	return RunKey{Layer: r.Layer, Row: r.Row, Index: i}
}

// ForegroundRow keeps the non-background spans of a row.
func ForegroundRow(layer, row int, spans []raster.Span) Row {
	out := Row{Layer: layer, Row: row}
	for _, s := range spans {
		if s.Value != raster.Background {
			out.Spans = append(out.Spans, s)
		}
	}
	return out
}

// RowAdjacency marks every pair of horizontally overlapping spans between
// two vertically adjacent rows. Both rows must be sorted by column.
func RowAdjacency(reg *Registry[RunKey], upper, lower Row) {
	i, j := 0, 0
	for i < len(upper.Spans) && j < len(lower.Spans) {
		u, l := upper.Spans[i], lower.Spans[j]
		if u.Overlaps(l) {
			reg.MarkAdjacency(upper.Key(i), lower.Key(j))
		}
		if u.End < l.End {
			i++
		} else {
			j++
		}
	}
}

// rowTouching links spans in the same row that touch end to start, which
// happens when differently shaded pixels sit next to each other.
func rowTouching(reg *Registry[RunKey], row Row) {
	for i := 1; i < len(row.Spans); i++ {
		if row.Spans[i-1].End == row.Spans[i].Start {
			reg.MarkAdjacency(row.Key(i-1), row.Key(i))
		}
	}
}
