// Package rectify warps detected document quads onto flat, axis-aligned
// rasters.
package rectify

import (
	"errors"
	"fmt"
	"image"
	"math"

	"doc-scanner/pkg/geometry"

	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/mat"
)

// ErrOutputTooSmall reports a quad whose rectified raster would come out
// below the configured minimum edge length.
var ErrOutputTooSmall = errors.New("rectified output too small")

// Params controls output sizing.
type Params struct {
	// MinOutputPx is the smallest acceptable output edge in pixels. Quads
	// that rectify below this are rejected as noise rather than warped
	// into unusable thumbnails.
	MinOutputPx int
}

// DefaultParams returns sizing parameters suited to handheld document shots.
func DefaultParams() Params {
	return Params{MinOutputPx: 50}
}

// OutputSize derives the rectified raster dimensions from the quad: the
// longer of the two horizontal edges by the longer of the two vertical
// edges, rounded to whole pixels. Taking the max preserves detail from the
// edge closest to the camera.
func OutputSize(quad geometry.Quad) (width, height int) {
	return int(math.Round(quad.Width())), int(math.Round(quad.Height()))
}

// ComputeHomography solves for the projective transform mapping the quad's
// corners onto an axis-aligned width x height rectangle.
func ComputeHomography(quad geometry.Quad, width, height float64) (geometry.Homography, error) {
	src := quad.Points()
	dst := [4]geometry.Point2D{
		{X: 0, Y: 0},
		{X: width, Y: 0},
		{X: width, Y: height},
		{X: 0, Y: height},
	}

	// Each corner pair contributes two rows to an 8x8 system in the
	// coefficients [a b c d e f g h]:
	//   xp = a*x + b*y + c - g*x*xp - h*y*xp
	//   yp = d*x + e*y + f - g*x*yp - h*y*yp
	// Four corners pin all eight degrees of freedom exactly.
	A := mat.NewDense(8, 8, nil)
	B := mat.NewVecDense(8, nil)

	for i := 0; i < 4; i++ {
		x, y := src[i].X, src[i].Y
		xp, yp := dst[i].X, dst[i].Y

		A.Set(i*2, 0, x)
		A.Set(i*2, 1, y)
		A.Set(i*2, 2, 1)
		A.Set(i*2, 6, -x*xp)
		A.Set(i*2, 7, -y*xp)
		B.SetVec(i*2, xp)

		A.Set(i*2+1, 3, x)
		A.Set(i*2+1, 4, y)
		A.Set(i*2+1, 5, 1)
		A.Set(i*2+1, 6, -x*yp)
		A.Set(i*2+1, 7, -y*yp)
		B.SetVec(i*2+1, yp)
	}

	// Solve A * params = B
	var params mat.VecDense
	if err := params.SolveVec(A, B); err != nil {
		return geometry.Homography{}, fmt.Errorf("degenerate corner geometry: %w", err)
	}

	return geometry.Homography{
		{params.AtVec(0), params.AtVec(1), params.AtVec(2)},
		{params.AtVec(3), params.AtVec(4), params.AtVec(5)},
		{params.AtVec(6), params.AtVec(7), 1},
	}, nil
}

// Rectify crops the document bounded by quad out of img and warps it flat.
// Corners must be in canonical order and in img's coordinate space.
func Rectify(img gocv.Mat, quad geometry.Quad, p Params) (gocv.Mat, error) {
	if img.Empty() {
		return gocv.NewMat(), fmt.Errorf("empty image")
	}

	width, height := OutputSize(quad)
	if width < p.MinOutputPx || height < p.MinOutputPx {
		return gocv.NewMat(), fmt.Errorf("%dx%d: %w", width, height, ErrOutputTooSmall)
	}

	transform, err := ComputeHomography(quad, float64(width), float64(height))
	if err != nil {
		return gocv.NewMat(), err
	}

	// Create transform matrix for GoCV
	transformMat := gocv.NewMatWithSize(3, 3, gocv.MatTypeCV64F)
	for row := 0; row < 3; row++ {
		for col := 0; col < 3; col++ {
			transformMat.SetDoubleAt(row, col, transform[row][col])
		}
	}
	defer transformMat.Close()

	dst := gocv.NewMat()
	gocv.WarpPerspective(img, &dst, transformMat, image.Point{X: width, Y: height})
	return dst, nil
}
