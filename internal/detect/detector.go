// Package detect locates document boundaries in a working-resolution frame.
//
// Several independent binarization and edge strategies each propose convex
// quadrilaterals; a common rubric scores every proposal and the single best
// one wins. Strategies that find nothing cost little, so the full matrix
// runs on every frame.
package detect

import (
	"errors"
	"fmt"
	"time"

	"gocv.io/x/gocv"
)

// ErrNoDocument reports that no candidate survived the filters and scoring.
// Recoverable: callers fall back to a manual crop region.
var ErrNoDocument = errors.New("no document found")

// StrategyStats records what one strategy contributed, for diagnostics.
type StrategyStats struct {
	Name       string
	Candidates int
	Elapsed    time.Duration
}

// Result holds the winning candidate plus everything considered on the way.
type Result struct {
	Best       ScoredCandidate
	Candidates []ScoredCandidate
	Strategies []StrategyStats
}

// Detector finds the best document quad in working-resolution images.
type Detector struct {
	params Params
}

// New creates a Detector with the given parameters.
func New(params Params) *Detector {
	return &Detector{params: params}
}

// Params returns the detector's configuration.
func (d *Detector) Params() Params {
	return d.params
}

// FindDocument runs the full strategy matrix over a BGR working image and
// returns the best-scoring quad candidate. Returns ErrNoDocument when no
// strategy produces an acceptable quad.
func (d *Detector) FindDocument(img gocv.Mat) (*Result, error) {
	if img.Empty() {
		return nil, fmt.Errorf("empty image")
	}

	width, height := img.Cols(), img.Rows()

	// Step 1: shared preparation - grayscale plus standard blur
	gray, blurred := prepare(img, d.params)
	defer gray.Close()
	defer blurred.Close()

	// Step 2: every strategy proposes quads independently
	result := &Result{}
	for _, s := range d.params.strategies() {
		start := time.Now()

		mask := s.mask(gray, blurred)
		quads := quadsFromMask(mask, s.name, d.params)
		mask.Close()

		for _, c := range quads {
			result.Candidates = append(result.Candidates,
				scoreCandidate(c, width, height, d.params.PaperShapes))
		}

		result.Strategies = append(result.Strategies, StrategyStats{
			Name:       s.name,
			Candidates: len(quads),
			Elapsed:    time.Since(start),
		})
	}

	// Step 3: the strictly highest total wins, first seen on ties
	best, ok := selectBest(result.Candidates)
	if !ok {
		return result, ErrNoDocument
	}
	result.Best = best

	return result, nil
}
