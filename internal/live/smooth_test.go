package live

import (
	"testing"

	"doc-scanner/pkg/geometry"
)

func offsetQuad(v float64) geometry.Quad {
	return geometry.Quad{
		TopLeft:     geometry.Point2D{X: v, Y: v},
		TopRight:    geometry.Point2D{X: v + 100, Y: v},
		BottomRight: geometry.Point2D{X: v + 100, Y: v + 100},
		BottomLeft:  geometry.Point2D{X: v, Y: v + 100},
	}
}

func TestSmootherRejectsSpike(t *testing.T) {
	m := newSmoother(5)
	for i := 0; i < 3; i++ {
		m.apply(offsetQuad(10))
	}

	// One wild detection among three steady ones must not move the median.
	got := m.apply(offsetQuad(300))
	want := offsetQuad(10)
	for i, p := range got.Points() {
		if p.Distance(want.Points()[i]) > 1e-9 {
			t.Errorf("corner %d = %+v, want %+v", i, p, want.Points()[i])
		}
	}
}

func TestSmootherWindowSlides(t *testing.T) {
	m := newSmoother(3)
	for _, v := range []float64{10, 20, 30} {
		m.apply(offsetQuad(v))
	}
	// After three more pushes the old values are fully evicted.
	var got geometry.Quad
	for i := 0; i < 3; i++ {
		got = m.apply(offsetQuad(90))
	}
	if got.TopLeft.Distance(geometry.Point2D{X: 90, Y: 90}) > 1e-9 {
		t.Errorf("TopLeft = %+v, want (90, 90)", got.TopLeft)
	}
}

func TestSmootherResetDropsHistory(t *testing.T) {
	m := newSmoother(5)
	for i := 0; i < 5; i++ {
		m.apply(offsetQuad(10))
	}
	m.reset()

	got := m.apply(offsetQuad(200))
	if got.TopLeft.Distance(geometry.Point2D{X: 200, Y: 200}) > 1e-9 {
		t.Errorf("TopLeft = %+v, want (200, 200) after reset", got.TopLeft)
	}
}
