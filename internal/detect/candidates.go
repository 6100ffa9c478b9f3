package detect

import (
	"sort"

	"doc-scanner/pkg/geometry"

	"gocv.io/x/gocv"
)

// Candidate is a convex quadrilateral proposal in working-resolution
// coordinates. Corners keep the approximation's winding order; Area is the
// source contour's pixel area. Strategy and Epsilon identify what produced
// the candidate and are used only for diagnostics.
type Candidate struct {
	Corners  [4]geometry.Point2D
	Area     float64
	Strategy string
	Epsilon  float64
}

// quadsFromMask extracts candidate quads from one strategy's binary raster.
// External contours below the area gate are dropped; the largest survivors
// walk the epsilon ladder until one approximation passes the quad filters.
func quadsFromMask(mask gocv.Mat, name string, p Params) []Candidate {
	contours := gocv.FindContours(mask, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	workingArea := float64(mask.Cols() * mask.Rows())
	minArea := p.MinAreaRatio * workingArea

	// Rank by area so the cap keeps the most document-like blobs.
	type ranked struct {
		idx  int
		area float64
	}
	kept := make([]ranked, 0, contours.Size())
	for i := 0; i < contours.Size(); i++ {
		area := gocv.ContourArea(contours.At(i))
		if area < minArea {
			continue
		}
		kept = append(kept, ranked{idx: i, area: area})
	}
	sort.Slice(kept, func(i, j int) bool { return kept[i].area > kept[j].area })
	if len(kept) > p.MaxContours {
		kept = kept[:p.MaxContours]
	}

	var out []Candidate
	for _, r := range kept {
		contour := contours.At(r.idx)
		perimeter := gocv.ArcLength(contour, true)
		if perimeter <= 0 {
			continue
		}

		for _, eps := range p.EpsilonLadder {
			approx := gocv.ApproxPolyDP(contour, eps*perimeter, true)
			corners, ok := quadCorners(approx)
			approx.Close()
			if !ok {
				continue
			}
			if !acceptQuad(corners, p) {
				continue
			}

			out = append(out, Candidate{
				Corners:  corners,
				Area:     r.area,
				Strategy: name,
				Epsilon:  eps,
			})
			break
		}
	}

	return out
}

// quadCorners converts a 4-vertex approximation into corner points,
// preserving winding order.
func quadCorners(approx gocv.PointVector) ([4]geometry.Point2D, bool) {
	var corners [4]geometry.Point2D
	if approx.Size() != 4 {
		return corners, false
	}
	for i := 0; i < 4; i++ {
		pt := approx.At(i)
		corners[i] = geometry.Point2D{X: float64(pt.X), Y: float64(pt.Y)}
	}
	return corners, true
}

// acceptQuad applies the convexity and interior-angle filters. The angle
// check runs on the winding order, so slivers with paired near-0 and
// near-180 corners cannot sneak through.
func acceptQuad(corners [4]geometry.Point2D, p Params) bool {
	if !geometry.IsConvex(corners[:]) {
		return false
	}
	for _, a := range geometry.InteriorAngles(corners[:]) {
		if a < p.AngleMin || a > p.AngleMax {
			return false
		}
	}
	return true
}
