package detect

import (
	"math"

	"doc-scanner/pkg/geometry"
)

// Scoring rubric weights. The three terms are independently bounded so the
// total always lands in [0, 100].
const (
	centerWeight = 40.0
	sizeWeight   = 35.0
	aspectWeight = 25.0
)

// Score breaks a candidate's total into the rubric terms.
type Score struct {
	Center float64 `json:"center"`
	Size   float64 `json:"size"`
	Aspect float64 `json:"aspect"`
}

// Total returns the summed score in [0, 100].
func (s Score) Total() float64 {
	return s.Center + s.Size + s.Aspect
}

// ScoredCandidate is a Candidate with its canonical corner labeling and
// rubric score. Paper names the nearest shape target, for diagnostics only.
type ScoredCandidate struct {
	Candidate
	Quad  geometry.Quad
	Score Score
	Paper string
}

// scoreCandidate rates one candidate against a working raster of the given
// dimensions.
func scoreCandidate(c Candidate, width, height int, shapes []Shape) ScoredCandidate {
	quad := geometry.CanonicalQuad(c.Corners)
	img := geometry.NewRect(0, 0, float64(width), float64(height))

	// Center proximity: linear falloff from the image center over half the
	// diagonal, so even a corner-hugging candidate keeps a sliver of score.
	d := quad.Centroid().Distance(img.Center())
	half := img.Diagonal() / 2
	center := math.Max(0, 1-d/half) * centerWeight

	// Size sweet spot: documents usually fill 10-70% of a framed shot,
	// peaking around 35%. Near-whole-frame blobs are almost always the
	// table or a wall, so they earn at most a token score.
	r := c.Area / (img.Width * img.Height)
	var size float64
	switch {
	case r >= 0.10 && r <= 0.70:
		size = (1 - math.Abs(r-0.35)/0.35) * sizeWeight
	case r > 0.70:
		size = math.Max(0, 1-(r-0.70)/0.30) * 10
	default:
		size = r / 0.10 * 15
	}

	// Paper aspect: distance to the nearest known paper shape.
	shape, delta := NearestShape(quad.AspectRatio(), shapes)
	aspect := math.Max(0, 1-delta/0.8) * aspectWeight

	return ScoredCandidate{
		Candidate: c,
		Quad:      quad,
		Score:     Score{Center: center, Size: size, Aspect: aspect},
		Paper:     shape.Name,
	}
}

// selectBest returns the strictly highest-scoring candidate. Ties keep the
// earliest candidate, which makes selection deterministic across runs.
func selectBest(cands []ScoredCandidate) (ScoredCandidate, bool) {
	if len(cands) == 0 {
		return ScoredCandidate{}, false
	}

	best := cands[0]
	for _, c := range cands[1:] {
		if c.Score.Total() > best.Score.Total() {
			best = c
		}
	}
	return best, true
}
