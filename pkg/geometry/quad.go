package geometry

// Quad is a convex quadrilateral with corners in canonical order:
// top-left, top-right, bottom-right, bottom-left.
type Quad struct {
	TopLeft     Point2D `json:"top_left"`
	TopRight    Point2D `json:"top_right"`
	BottomRight Point2D `json:"bottom_right"`
	BottomLeft  Point2D `json:"bottom_left"`
}

// CanonicalQuad labels four unordered points as a Quad. The top-left corner
// minimizes x+y, the bottom-right maximizes x+y, the top-right maximizes x-y
// and the bottom-left minimizes x-y. The labeling assumes the camera looks
// roughly down at the page; it is deterministic and idempotent, but rotations
// beyond about 45 degrees swap labels. Downstream warping tolerates that: the
// output is then rotated, not distorted.
func CanonicalQuad(pts [4]Point2D) Quad {
	tl, br := pts[0], pts[0]
	tr, bl := pts[0], pts[0]

	for _, p := range pts[1:] {
		if p.X+p.Y < tl.X+tl.Y {
			tl = p
		}
		if p.X+p.Y > br.X+br.Y {
			br = p
		}
		if p.X-p.Y > tr.X-tr.Y {
			tr = p
		}
		if p.X-p.Y < bl.X-bl.Y {
			bl = p
		}
	}

	return Quad{TopLeft: tl, TopRight: tr, BottomRight: br, BottomLeft: bl}
}

// Points returns the corners in canonical order: TL, TR, BR, BL.
func (q Quad) Points() [4]Point2D {
	return [4]Point2D{q.TopLeft, q.TopRight, q.BottomRight, q.BottomLeft}
}

// Centroid returns the average of the four corners.
func (q Quad) Centroid() Point2D {
	pts := q.Points()
	return Centroid(pts[:])
}

// EdgeLengths returns the four edge lengths: top, right, bottom, left.
func (q Quad) EdgeLengths() (top, right, bottom, left float64) {
	top = q.TopLeft.Distance(q.TopRight)
	right = q.TopRight.Distance(q.BottomRight)
	bottom = q.BottomRight.Distance(q.BottomLeft)
	left = q.BottomLeft.Distance(q.TopLeft)
	return
}

// Width returns the longer of the top and bottom edge lengths.
func (q Quad) Width() float64 {
	top, _, bottom, _ := q.EdgeLengths()
	if top > bottom {
		return top
	}
	return bottom
}

// Height returns the longer of the left and right edge lengths.
func (q Quad) Height() float64 {
	_, right, _, left := q.EdgeLengths()
	if left > right {
		return left
	}
	return right
}

// AspectRatio returns the ratio of the longer to the shorter side,
// always >= 1. Returns 0 for a degenerate quad.
func (q Quad) AspectRatio() float64 {
	w, h := q.Width(), q.Height()
	if w <= 0 || h <= 0 {
		return 0
	}
	if w > h {
		return w / h
	}
	return h / w
}

// Area returns the quad's area via the shoelace formula.
func (q Quad) Area() float64 {
	pts := q.Points()
	return PolygonArea(pts[:])
}

// IsConvex reports whether the corners, in canonical order, form a convex
// polygon.
func (q Quad) IsConvex() bool {
	pts := q.Points()
	return IsConvex(pts[:])
}

// InteriorAngles returns the interior angles in degrees at TL, TR, BR, BL.
func (q Quad) InteriorAngles() [4]float64 {
	pts := q.Points()
	angles := InteriorAngles(pts[:])
	return [4]float64{angles[0], angles[1], angles[2], angles[3]}
}

// Scale returns the quad with every corner scaled by the factor. Scaling by
// 1/s maps working-resolution corners back to source resolution.
func (q Quad) Scale(factor float64) Quad {
	return Quad{
		TopLeft:     q.TopLeft.Scale(factor),
		TopRight:    q.TopRight.Scale(factor),
		BottomRight: q.BottomRight.Scale(factor),
		BottomLeft:  q.BottomLeft.Scale(factor),
	}
}

// Canonical re-labels the quad's own corners. A quad already in canonical
// order is returned unchanged.
func (q Quad) Canonical() Quad {
	return CanonicalQuad(q.Points())
}
