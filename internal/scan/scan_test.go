package scan

import (
	"context"
	"errors"
	"image"
	"image/color"
	"math"
	"testing"

	"doc-scanner/internal/detect"
	"doc-scanner/internal/frame"
	"doc-scanner/pkg/geometry"

	"github.com/rs/zerolog"
	"gocv.io/x/gocv"
)

var white = color.RGBA{R: 255, G: 255, B: 255, A: 255}

func testFrame(t *testing.T, w, h int, draw func(*gocv.Mat)) *frame.Frame {
	t.Helper()
	m := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), h, w, gocv.MatTypeCV8UC3)
	if draw != nil {
		draw(&m)
	}
	f, err := frame.FromMat(m, 1)
	if err != nil {
		t.Fatalf("FromMat: %v", err)
	}
	return f
}

func newPipeline() *Pipeline {
	return New(DefaultConfig(), zerolog.Nop())
}

func TestDetectAndCropEndToEnd(t *testing.T) {
	f := testFrame(t, 600, 800, func(m *gocv.Mat) {
		gocv.Rectangle(m, image.Rect(100, 100, 500, 700), white, -1)
	})
	defer f.Close()

	result, err := newPipeline().DetectAndCrop(f)
	if err != nil {
		t.Fatalf("DetectAndCrop: %v", err)
	}
	defer result.Output.Close()

	// Corners come back in source coordinates despite detection running
	// on a downscaled raster.
	want := [4]geometry.Point2D{
		{X: 100, Y: 100},
		{X: 500, Y: 100},
		{X: 500, Y: 700},
		{X: 100, Y: 700},
	}
	for i, p := range result.Quad.Points() {
		if p.Distance(want[i]) > 3 {
			t.Errorf("corner %d = %+v, want near %+v", i, p, want[i])
		}
	}

	if math.Abs(float64(result.Output.Width()-400)) > 3 || math.Abs(float64(result.Output.Height()-600)) > 3 {
		t.Errorf("output = %dx%d, want near 400x600", result.Output.Width(), result.Output.Height())
	}

	if result.Debug == nil {
		t.Fatal("missing debug info")
	}
	if result.Debug.WorkingWidth != 480 || result.Debug.WorkingHeight != 640 {
		t.Errorf("working raster = %dx%d, want 480x640",
			result.Debug.WorkingWidth, result.Debug.WorkingHeight)
	}
	if math.Abs(result.Debug.Scale-0.8) > 1e-9 {
		t.Errorf("working scale = %f, want 0.8", result.Debug.Scale)
	}
}

func TestDetectAndCropNoDocument(t *testing.T) {
	f := testFrame(t, 600, 800, nil)
	defer f.Close()

	_, err := newPipeline().DetectAndCrop(f)
	if !errors.Is(err, detect.ErrNoDocument) {
		t.Fatalf("err = %v, want ErrNoDocument", err)
	}
}

func TestDetectAndCropInvalidFrame(t *testing.T) {
	if _, err := newPipeline().DetectAndCrop(nil); !errors.Is(err, frame.ErrInvalidFrame) {
		t.Fatalf("err = %v, want ErrInvalidFrame", err)
	}
}

func TestDetectQuadLive(t *testing.T) {
	f := testFrame(t, 600, 800, func(m *gocv.Mat) {
		gocv.Rectangle(m, image.Rect(100, 100, 500, 700), white, -1)
	})
	defer f.Close()

	p := newPipeline()

	live, err := p.DetectQuad(f)
	if err != nil {
		t.Fatalf("DetectQuad: %v", err)
	}
	if live.Quad == nil {
		t.Fatal("expected a quad")
	}
	if live.Quad.TopLeft.Distance(geometry.Point2D{X: 100, Y: 100}) > 5 {
		t.Errorf("TopLeft = %+v, want near (100, 100)", live.Quad.TopLeft)
	}

	// No document in view is a normal live outcome, not an error.
	blank := testFrame(t, 600, 800, nil)
	defer blank.Close()

	live, err = p.DetectQuad(blank)
	if err != nil {
		t.Fatalf("DetectQuad on blank: %v", err)
	}
	if live.Quad != nil {
		t.Errorf("expected nil quad, got %+v", live.Quad)
	}
	if live.Debug == nil {
		t.Error("blank result should still carry debug info")
	}
}

func TestCropManualCorners(t *testing.T) {
	f := testFrame(t, 600, 800, func(m *gocv.Mat) {
		gocv.Rectangle(m, image.Rect(100, 100, 500, 700), white, -1)
	})
	defer f.Close()

	// Corners arrive scrambled, as a UI drag handler might send them.
	corners := geometry.Quad{
		TopLeft:     geometry.Point2D{X: 500, Y: 700},
		TopRight:    geometry.Point2D{X: 100, Y: 100},
		BottomRight: geometry.Point2D{X: 100, Y: 700},
		BottomLeft:  geometry.Point2D{X: 500, Y: 100},
	}

	out, err := newPipeline().Crop(f, corners)
	if err != nil {
		t.Fatalf("Crop: %v", err)
	}
	defer out.Close()

	if out.Width() != 400 || out.Height() != 600 {
		t.Errorf("output = %dx%d, want 400x600", out.Width(), out.Height())
	}
}

func TestPipelineLoad(t *testing.T) {
	if err := newPipeline().Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := newPipeline().Load(ctx); err == nil {
		t.Fatal("expected error for canceled context")
	}
}
