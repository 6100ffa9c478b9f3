// Package overlay renders detection diagnostics onto frames: candidate
// outlines colored per strategy, the winning quad, and corner labels.
package overlay

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"doc-scanner/internal/detect"
	"doc-scanner/pkg/geometry"

	colorful "github.com/lucasb-eyer/go-colorful"
	"gocv.io/x/gocv"
)

// Options configures overlay rendering.
type Options struct {
	CandidateThickness int  // outline width for losing candidates
	WinnerThickness    int  // outline width for the winning quad
	CornerRadius       int  // corner marker radius
	LabelCorners       bool // draw TL/TR/BR/BL next to the markers
	ShowScore          bool // print the winner's score and paper match
}

// DefaultOptions returns the rendering defaults for debug output.
func DefaultOptions() Options {
	return Options{
		CandidateThickness: 1,
		WinnerThickness:    3,
		CornerRadius:       6,
		LabelCorners:       true,
		ShowScore:          true,
	}
}

var winnerColor = color.RGBA{R: 0, G: 220, B: 60, A: 255}

var cornerLabels = [4]string{"TL", "TR", "BR", "BL"}

// StrategyPalette assigns each strategy a stable, high-contrast color by
// spacing hues evenly around the wheel.
func StrategyPalette(names []string) map[string]color.RGBA {
	palette := make(map[string]color.RGBA, len(names))
	for i, name := range names {
		hue := float64(i) * 360.0 / float64(len(names))
		c := colorful.Hsv(hue, 0.9, 0.95)
		r, g, b := c.RGB255()
		palette[name] = color.RGBA{R: r, G: g, B: b, A: 255}
	}
	return palette
}

// Draw renders every candidate and, when found, the winner onto a copy of
// img. The input is left untouched; the caller owns the returned Mat.
func Draw(img gocv.Mat, result *detect.Result, found bool, opts Options) gocv.Mat {
	out := img.Clone()
	if result == nil {
		return out
	}

	names := make([]string, 0, len(result.Strategies))
	for _, s := range result.Strategies {
		names = append(names, s.Name)
	}
	palette := StrategyPalette(names)

	// Losing candidates first, the winner on top
	for _, c := range result.Candidates {
		drawQuad(&out, c.Quad, palette[c.Strategy], opts.CandidateThickness)
	}

	if found {
		drawQuad(&out, result.Best.Quad, winnerColor, opts.WinnerThickness)
		drawCorners(&out, result.Best.Quad, opts)

		if opts.ShowScore {
			label := fmt.Sprintf("%.1f %s", result.Best.Score.Total(), result.Best.Paper)
			anchor := pt(result.Best.Quad.TopLeft)
			gocv.PutText(&out, label, image.Pt(anchor.X, anchor.Y-10),
				gocv.FontHersheySimplex, 0.5, winnerColor, 1)
		}
	}

	return out
}

func drawQuad(img *gocv.Mat, q geometry.Quad, c color.RGBA, thickness int) {
	pts := q.Points()
	for i := 0; i < 4; i++ {
		gocv.Line(img, pt(pts[i]), pt(pts[(i+1)%4]), c, thickness)
	}
}

func drawCorners(img *gocv.Mat, q geometry.Quad, opts Options) {
	for i, p := range q.Points() {
		center := pt(p)
		gocv.Circle(img, center, opts.CornerRadius, winnerColor, -1)
		if opts.LabelCorners {
			gocv.PutText(img, cornerLabels[i],
				image.Pt(center.X+opts.CornerRadius+2, center.Y+4),
				gocv.FontHersheySimplex, 0.4, winnerColor, 1)
		}
	}
}

func pt(p geometry.Point2D) image.Point {
	return image.Pt(int(math.Round(p.X)), int(math.Round(p.Y)))
}
