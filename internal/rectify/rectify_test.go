package rectify

import (
	"errors"
	"image"
	"image/color"
	"testing"

	"doc-scanner/pkg/geometry"

	"gocv.io/x/gocv"
)

var white = color.RGBA{R: 255, G: 255, B: 255, A: 255}

func quadFrom(pts [4][2]float64) geometry.Quad {
	return geometry.Quad{
		TopLeft:     geometry.Point2D{X: pts[0][0], Y: pts[0][1]},
		TopRight:    geometry.Point2D{X: pts[1][0], Y: pts[1][1]},
		BottomRight: geometry.Point2D{X: pts[2][0], Y: pts[2][1]},
		BottomLeft:  geometry.Point2D{X: pts[3][0], Y: pts[3][1]},
	}
}

func TestOutputSize(t *testing.T) {
	axis := quadFrom([4][2]float64{{0, 0}, {400, 0}, {400, 600}, {0, 600}})
	w, h := OutputSize(axis)
	if w != 400 || h != 600 {
		t.Errorf("axis-aligned size = %dx%d, want 400x600", w, h)
	}

	// Trapezoid: the longer of each opposing edge pair wins.
	trap := quadFrom([4][2]float64{{20, 0}, {380, 0}, {400, 600}, {0, 600}})
	w, h = OutputSize(trap)
	if w != 400 || h < 600 {
		t.Errorf("trapezoid size = %dx%d, want 400 wide and at least 600 tall", w, h)
	}
}

func TestComputeHomographyMapsCorners(t *testing.T) {
	quad := quadFrom([4][2]float64{{120, 100}, {420, 140}, {390, 560}, {90, 520}})
	const width, height = 303, 421

	transform, err := ComputeHomography(quad, width, height)
	if err != nil {
		t.Fatalf("ComputeHomography: %v", err)
	}

	want := [4]geometry.Point2D{
		{X: 0, Y: 0},
		{X: width, Y: 0},
		{X: width, Y: height},
		{X: 0, Y: height},
	}
	for i, src := range quad.Points() {
		got := transform.Apply(src)
		if got.Distance(want[i]) > 1e-6 {
			t.Errorf("corner %d maps to %+v, want %+v", i, got, want[i])
		}
	}
}

func TestRectifyAxisAligned(t *testing.T) {
	scene := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), 640, 480, gocv.MatTypeCV8UC3)
	defer scene.Close()
	gocv.Rectangle(&scene, image.Rect(80, 80, 400, 560), white, -1)

	quad := quadFrom([4][2]float64{{80, 80}, {400, 80}, {400, 560}, {80, 560}})
	out, err := Rectify(scene, quad, DefaultParams())
	if err != nil {
		t.Fatalf("Rectify: %v", err)
	}
	defer out.Close()

	if out.Cols() != 320 || out.Rows() != 480 {
		t.Errorf("output = %dx%d, want 320x480", out.Cols(), out.Rows())
	}
	if v := out.GetUCharAt(240, 160*3); v < 250 {
		t.Errorf("center pixel = %d, want white", v)
	}
}

func TestRectifyPerspective(t *testing.T) {
	scene := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), 640, 480, gocv.MatTypeCV8UC3)
	defer scene.Close()

	corners := [4]image.Point{{120, 100}, {420, 140}, {390, 560}, {90, 520}}
	poly := gocv.NewPointsVectorFromPoints([][]image.Point{corners[:]})
	gocv.FillPoly(&scene, poly, white)
	poly.Close()

	quad := quadFrom([4][2]float64{{120, 100}, {420, 140}, {390, 560}, {90, 520}})
	out, err := Rectify(scene, quad, DefaultParams())
	if err != nil {
		t.Fatalf("Rectify: %v", err)
	}
	defer out.Close()

	wantW, wantH := OutputSize(quad)
	if out.Cols() != wantW || out.Rows() != wantH {
		t.Errorf("output = %dx%d, want %dx%d", out.Cols(), out.Rows(), wantW, wantH)
	}

	// Every inset corner must land on document content, not background.
	probes := []image.Point{
		{X: 10, Y: 10},
		{X: wantW - 10, Y: 10},
		{X: wantW - 10, Y: wantH - 10},
		{X: 10, Y: wantH - 10},
		{X: wantW / 2, Y: wantH / 2},
	}
	for _, pt := range probes {
		if v := out.GetUCharAt(pt.Y, pt.X*3); v < 250 {
			t.Errorf("probe %+v = %d, want white", pt, v)
		}
	}
}

func TestRectifyRejectsTinyOutput(t *testing.T) {
	scene := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), 640, 480, gocv.MatTypeCV8UC3)
	defer scene.Close()

	quad := quadFrom([4][2]float64{{10, 10}, {40, 10}, {40, 40}, {10, 40}})
	_, err := Rectify(scene, quad, DefaultParams())
	if !errors.Is(err, ErrOutputTooSmall) {
		t.Fatalf("err = %v, want ErrOutputTooSmall", err)
	}
}

func TestRectifyEmptyImage(t *testing.T) {
	empty := gocv.NewMat()
	defer empty.Close()

	quad := quadFrom([4][2]float64{{0, 0}, {100, 0}, {100, 100}, {0, 100}})
	if _, err := Rectify(empty, quad, DefaultParams()); err == nil {
		t.Fatal("expected error for empty image")
	}
}

func TestHomographyDegenerateQuad(t *testing.T) {
	// All four corners collinear: the system has no unique solution.
	quad := quadFrom([4][2]float64{{0, 0}, {100, 100}, {200, 200}, {300, 300}})
	if _, err := ComputeHomography(quad, 100, 100); err == nil {
		t.Fatal("expected error for collinear corners")
	}
}

func TestOutputSizeRounding(t *testing.T) {
	quad := quadFrom([4][2]float64{{0, 0}, {100.4, 0}, {100.4, 200.6}, {0, 200.6}})
	w, h := OutputSize(quad)
	if w != 100 || h != 201 {
		t.Errorf("size = %dx%d, want 100x201", w, h)
	}
}
