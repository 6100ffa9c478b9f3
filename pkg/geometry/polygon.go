package geometry

import "math"

// IsConvex returns true if the polygon vertices form a convex polygon.
// The polygon is assumed to be simple (non-self-intersecting).
func IsConvex(polygon []Point2D) bool {
	if len(polygon) < 3 {
		return false
	}

	n := len(polygon)
	var sign int

	for i := 0; i < n; i++ {
		cross := crossProduct(
			polygon[i],
			polygon[(i+1)%n],
			polygon[(i+2)%n],
		)

		if cross != 0 {
			currentSign := 1
			if cross < 0 {
				currentSign = -1
			}

			if sign == 0 {
				sign = currentSign
			} else if currentSign != sign {
				return false
			}
		}
	}

	return true
}

// InteriorAngles returns the interior angle at each vertex in degrees,
// computed from the dot product of the two adjacent edge vectors.
// Degenerate vertices (zero-length edges) report an angle of 0.
func InteriorAngles(polygon []Point2D) []float64 {
	n := len(polygon)
	if n < 3 {
		return nil
	}

	angles := make([]float64, n)
	for i := 0; i < n; i++ {
		prev := polygon[(i+n-1)%n]
		curr := polygon[i]
		next := polygon[(i+1)%n]

		v1 := prev.Sub(curr)
		v2 := next.Sub(curr)

		len1 := math.Hypot(v1.X, v1.Y)
		len2 := math.Hypot(v2.X, v2.Y)
		if len1 < 1e-9 || len2 < 1e-9 {
			angles[i] = 0
			continue
		}

		cos := (v1.X*v2.X + v1.Y*v2.Y) / (len1 * len2)
		cos = math.Max(-1, math.Min(1, cos))
		angles[i] = math.Acos(cos) * 180 / math.Pi
	}

	return angles
}

// PolygonArea computes the area of a simple polygon via the shoelace formula.
func PolygonArea(polygon []Point2D) float64 {
	n := len(polygon)
	if n < 3 {
		return 0
	}

	var sum float64
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		sum += polygon[i].X*polygon[j].Y - polygon[j].X*polygon[i].Y
	}
	return math.Abs(sum) / 2
}

// crossProduct computes the cross product of vectors OA and OB.
func crossProduct(o, a, b Point2D) float64 {
	return (a.X-o.X)*(b.Y-o.Y) - (a.Y-o.Y)*(b.X-o.X)
}
