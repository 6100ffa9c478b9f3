package live

import (
	"sort"

	"doc-scanner/pkg/geometry"

	"gonum.org/v1/gonum/stat"
)

// smoother damps overlay jitter with a sliding per-coordinate median over
// the last few detections. The busy flag serializes access, so no locking
// is needed here.
type smoother struct {
	window int
	hist   []geometry.Quad
}

func newSmoother(window int) *smoother {
	return &smoother{window: window}
}

// apply pushes a detection into the window and returns the per-coordinate
// median quad.
func (m *smoother) apply(q geometry.Quad) geometry.Quad {
	m.hist = append(m.hist, q)
	if len(m.hist) > m.window {
		m.hist = m.hist[1:]
	}
	if len(m.hist) == 1 {
		return q
	}

	xs := make([]float64, len(m.hist))
	ys := make([]float64, len(m.hist))
	var out [4]geometry.Point2D
	for corner := 0; corner < 4; corner++ {
		for i, h := range m.hist {
			pts := h.Points()
			xs[i] = pts[corner].X
			ys[i] = pts[corner].Y
		}
		sort.Float64s(xs)
		sort.Float64s(ys)
		out[corner] = geometry.Point2D{
			X: stat.Quantile(0.5, stat.LinInterp, xs, nil),
			Y: stat.Quantile(0.5, stat.LinInterp, ys, nil),
		}
	}

	return geometry.Quad{
		TopLeft:     out[0],
		TopRight:    out[1],
		BottomRight: out[2],
		BottomLeft:  out[3],
	}
}

// reset clears the window after the document leaves the frame, so stale
// corners cannot drag the next detection.
func (m *smoother) reset() {
	m.hist = m.hist[:0]
}
