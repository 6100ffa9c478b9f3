package detect

import "math"

// Shape names a paper shape by its long-to-short aspect ratio.
type Shape struct {
	Name   string
	Aspect float64
}

// DefaultShapes returns the paper shapes the scorer targets: the ISO A
// series, US Letter, and square stock (stickers, photos).
func DefaultShapes() []Shape {
	return []Shape{
		{Name: "A-series", Aspect: math.Sqrt2},
		{Name: "US Letter", Aspect: 11.0 / 8.5},
		{Name: "Square", Aspect: 1.0},
	}
}

// NearestShape returns the shape whose aspect target is closest to the given
// ratio, along with the absolute distance to it.
func NearestShape(aspect float64, shapes []Shape) (Shape, float64) {
	if len(shapes) == 0 {
		return Shape{}, math.Inf(1)
	}

	best := shapes[0]
	bestDelta := math.Abs(aspect - best.Aspect)
	for _, s := range shapes[1:] {
		if d := math.Abs(aspect - s.Aspect); d < bestDelta {
			best = s
			bestDelta = d
		}
	}
	return best, bestDelta
}
