package detect

import (
	"errors"
	"image"
	"image/color"
	"testing"

	"doc-scanner/pkg/geometry"

	"gocv.io/x/gocv"
)

var (
	white = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	gray  = color.RGBA{R: 128, G: 128, B: 128, A: 255}
)

// newScene builds a black BGR working image.
func newScene(w, h int) gocv.Mat {
	return gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), h, w, gocv.MatTypeCV8UC3)
}

func fillRect(img *gocv.Mat, x0, y0, x1, y1 int, c color.RGBA) {
	gocv.Rectangle(img, image.Rect(x0, y0, x1, y1), c, -1)
}

func fillQuad(img *gocv.Mat, pts [4]image.Point, c color.RGBA) {
	poly := gocv.NewPointsVectorFromPoints([][]image.Point{pts[:]})
	defer poly.Close()
	gocv.FillPoly(img, poly, c)
}

func TestFindDocumentAxisAligned(t *testing.T) {
	scene := newScene(480, 640)
	defer scene.Close()
	fillRect(&scene, 80, 80, 400, 560, white)

	result, err := New(DefaultParams()).FindDocument(scene)
	if err != nil {
		t.Fatalf("FindDocument: %v", err)
	}

	want := geometry.Quad{
		TopLeft:     geometry.Point2D{X: 80, Y: 80},
		TopRight:    geometry.Point2D{X: 400, Y: 80},
		BottomRight: geometry.Point2D{X: 400, Y: 560},
		BottomLeft:  geometry.Point2D{X: 80, Y: 560},
	}

	got := result.Best.Quad
	for i, p := range got.Points() {
		if p.Distance(want.Points()[i]) > 3 {
			t.Errorf("corner %d = %+v, want near %+v", i, p, want.Points()[i])
		}
	}
	if result.Best.Score.Total() <= 0 || result.Best.Score.Total() > 100 {
		t.Errorf("best score = %.2f", result.Best.Score.Total())
	}
}

func TestFindDocumentTiltedPage(t *testing.T) {
	scene := newScene(480, 640)
	defer scene.Close()
	fillQuad(&scene, [4]image.Point{
		{X: 100, Y: 70},
		{X: 410, Y: 110},
		{X: 380, Y: 560},
		{X: 70, Y: 520},
	}, white)

	result, err := New(DefaultParams()).FindDocument(scene)
	if err != nil {
		t.Fatalf("FindDocument: %v", err)
	}

	// The winner's corners must land near the drawn quad.
	wantTL := geometry.Point2D{X: 100, Y: 70}
	if result.Best.Quad.TopLeft.Distance(wantTL) > 6 {
		t.Errorf("TopLeft = %+v, want near %+v", result.Best.Quad.TopLeft, wantTL)
	}
}

// Every candidate any strategy emits must be a convex quad whose interior
// angles sit inside the configured bounds.
func TestCandidatesSatisfyQuadFilters(t *testing.T) {
	params := DefaultParams()

	scenes := map[string]func(*gocv.Mat){
		"axis aligned": func(m *gocv.Mat) { fillRect(m, 80, 80, 400, 560, white) },
		"tilted": func(m *gocv.Mat) {
			fillQuad(m, [4]image.Point{{120, 90}, {420, 140}, {390, 550}, {90, 500}}, white)
		},
		"two pages": func(m *gocv.Mat) {
			fillRect(m, 30, 100, 220, 380, white)
			fillRect(m, 260, 120, 450, 400, gray)
		},
	}

	for name, draw := range scenes {
		t.Run(name, func(t *testing.T) {
			scene := newScene(480, 640)
			defer scene.Close()
			draw(&scene)

			result, err := New(params).FindDocument(scene)
			if err != nil {
				t.Fatalf("FindDocument: %v", err)
			}

			for _, c := range result.Candidates {
				if !geometry.IsConvex(c.Corners[:]) {
					t.Errorf("%s candidate not convex: %+v", c.Strategy, c.Corners)
				}
				for _, a := range geometry.InteriorAngles(c.Corners[:]) {
					if a < params.AngleMin || a > params.AngleMax {
						t.Errorf("%s candidate angle %.1f outside [%.0f, %.0f]",
							c.Strategy, a, params.AngleMin, params.AngleMax)
					}
				}
				if c.Area <= 0 {
					t.Errorf("%s candidate area %.1f", c.Strategy, c.Area)
				}
			}
		})
	}
}

func TestFindDocumentEmptyScene(t *testing.T) {
	scene := newScene(480, 640)
	defer scene.Close()

	result, err := New(DefaultParams()).FindDocument(scene)
	if !errors.Is(err, ErrNoDocument) {
		t.Fatalf("err = %v, want ErrNoDocument", err)
	}
	if result == nil || len(result.Candidates) != 0 {
		t.Errorf("expected empty candidate list, got %+v", result)
	}
}

func TestFindDocumentIgnoresTinyBlobs(t *testing.T) {
	scene := newScene(480, 640)
	defer scene.Close()
	// 40x40 = 0.5% of the working area, well under the 4% gate.
	fillRect(&scene, 200, 300, 240, 340, white)

	_, err := New(DefaultParams()).FindDocument(scene)
	if !errors.Is(err, ErrNoDocument) {
		t.Fatalf("err = %v, want ErrNoDocument", err)
	}
}

func TestMasksCoverStrategyMatrix(t *testing.T) {
	scene := newScene(480, 640)
	defer scene.Close()
	fillRect(&scene, 80, 80, 400, 560, white)

	params := DefaultParams()
	masks, err := Masks(scene, params)
	if err != nil {
		t.Fatalf("Masks: %v", err)
	}
	defer func() {
		for _, m := range masks {
			m.Mat.Close()
		}
	}()

	// Canny pairs + adaptive settings + otsu + heavy blur.
	want := len(params.CannyPairs) + len(params.AdaptiveSettings) + 2
	if len(masks) != want {
		t.Fatalf("got %d masks, want %d", len(masks), want)
	}
	seen := map[string]bool{}
	for _, m := range masks {
		if m.Mat.Empty() {
			t.Errorf("mask %s is empty", m.Name)
		}
		if seen[m.Name] {
			t.Errorf("duplicate mask name %s", m.Name)
		}
		seen[m.Name] = true
	}
}
