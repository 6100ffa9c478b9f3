// Package scan wires detection and rectification into the end-to-end
// document scanning pipeline: bound the frame to a working size, find the
// best quad, map it back to source coordinates, and warp the source flat.
package scan

import (
	"context"
	"errors"
	"fmt"
	"time"

	"doc-scanner/internal/detect"
	"doc-scanner/internal/frame"
	"doc-scanner/internal/rectify"
	"doc-scanner/pkg/geometry"

	"github.com/rs/zerolog"
	"gocv.io/x/gocv"
)

// Config sizes the pipeline's working rasters.
type Config struct {
	// DetectMaxDim bounds the long edge of the working raster used for
	// one-shot detection.
	DetectMaxDim int
	// LiveMaxDim bounds the long edge for live preview detection, which
	// trades accuracy for rate.
	LiveMaxDim int
	// MinOutputPx rejects rectified outputs smaller than this per edge.
	MinOutputPx int
}

// DefaultConfig returns working sizes balanced for handheld phone shots.
func DefaultConfig() Config {
	return Config{
		DetectMaxDim: 640,
		LiveMaxDim:   480,
		MinOutputPx:  50,
	}
}

// Debug carries per-scan diagnostics for the CLI and overlay layers.
// Candidate coordinates are in working-raster space.
type Debug struct {
	WorkingWidth  int
	WorkingHeight int
	// Scale is working pixels per submitted-frame pixel.
	Scale      float64
	Paper      string
	Score      detect.Score
	Candidates []detect.ScoredCandidate
	Strategies []detect.StrategyStats
}

// Result is a completed detect-and-crop: the winning quad in the submitted
// frame's coordinates plus the rectified output raster.
type Result struct {
	Quad   geometry.Quad
	Output *frame.Frame
	Debug  *Debug
}

// LiveResult is a lightweight detection outcome for preview overlays.
// Quad is nil when no document was found, which is a normal outcome.
type LiveResult struct {
	Quad  *geometry.Quad
	Debug *Debug
}

// Pipeline runs document detection and rectification. Calls must be
// serialized; the background host takes care of that.
type Pipeline struct {
	cfg       Config
	detector  *detect.Detector
	rectifier rectify.Params
	log       zerolog.Logger
}

// New builds a Pipeline around a detector with default strategy parameters.
// Zero config fields fall back to DefaultConfig values.
func New(cfg Config, logger zerolog.Logger) *Pipeline {
	def := DefaultConfig()
	if cfg.DetectMaxDim <= 0 {
		cfg.DetectMaxDim = def.DetectMaxDim
	}
	if cfg.LiveMaxDim <= 0 {
		cfg.LiveMaxDim = def.LiveMaxDim
	}
	if cfg.MinOutputPx <= 0 {
		cfg.MinOutputPx = def.MinOutputPx
	}

	return &Pipeline{
		cfg:       cfg,
		detector:  detect.New(detect.DefaultParams()),
		rectifier: rectify.Params{MinOutputPx: cfg.MinOutputPx},
		log:       logger.With().Str("component", "scan").Logger(),
	}
}

// Load probes the OpenCV path once so environment problems surface during
// host startup instead of on the first user request.
func (p *Pipeline) Load(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	probe := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), 32, 32, gocv.MatTypeCV8UC3)
	defer probe.Close()

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(probe, &gray, gocv.ColorBGRToGray)
	if gray.Empty() {
		return fmt.Errorf("opencv probe produced no output")
	}

	p.log.Debug().Msg("scan engine ready")
	return nil
}

// DetectAndCrop finds the document in f and returns it flattened at the
// frame's full resolution. Returns detect.ErrNoDocument when nothing
// usable is in view.
func (p *Pipeline) DetectAndCrop(f *frame.Frame) (*Result, error) {
	if f == nil || f.Empty() {
		return nil, frame.ErrInvalidFrame
	}
	start := time.Now()

	// Step 1: detect on a bounded working raster
	working, err := f.Downscale(p.cfg.DetectMaxDim)
	if err != nil {
		return nil, fmt.Errorf("downscaling frame: %w", err)
	}
	defer working.Close()

	det, err := p.detector.FindDocument(working.Mat())
	if err != nil {
		return nil, err
	}

	// Step 2: map the winner back onto the submitted frame
	quad := det.Best.Quad.Scale(f.Scale() / working.Scale())

	// Step 3: warp the full-resolution frame flat
	out, err := rectify.Rectify(f.Mat(), quad, p.rectifier)
	if err != nil {
		return nil, err
	}
	output, err := frame.FromMat(out, 1)
	if err != nil {
		return nil, fmt.Errorf("wrapping rectified output: %w", err)
	}

	p.log.Debug().
		Int("candidates", len(det.Candidates)).
		Str("strategy", det.Best.Strategy).
		Str("paper", det.Best.Paper).
		Float64("score", det.Best.Score.Total()).
		Dur("elapsed", time.Since(start)).
		Msg("document detected")

	return &Result{Quad: quad, Output: output, Debug: p.debugFor(f, working, det)}, nil
}

// DetectQuad runs detection only, on the smaller live working size. A frame
// with no document yields a LiveResult with a nil Quad, not an error.
func (p *Pipeline) DetectQuad(f *frame.Frame) (*LiveResult, error) {
	if f == nil || f.Empty() {
		return nil, frame.ErrInvalidFrame
	}

	working, err := f.Downscale(p.cfg.LiveMaxDim)
	if err != nil {
		return nil, fmt.Errorf("downscaling frame: %w", err)
	}
	defer working.Close()

	det, err := p.detector.FindDocument(working.Mat())
	if errors.Is(err, detect.ErrNoDocument) {
		return &LiveResult{Debug: p.debugFor(f, working, det)}, nil
	}
	if err != nil {
		return nil, err
	}

	quad := det.Best.Quad.Scale(f.Scale() / working.Scale())
	return &LiveResult{Quad: &quad, Debug: p.debugFor(f, working, det)}, nil
}

// Crop warps f flat using caller-provided corners, typically the detected
// quad after manual adjustment. Corners may arrive in any order.
func (p *Pipeline) Crop(f *frame.Frame, corners geometry.Quad) (*frame.Frame, error) {
	if f == nil || f.Empty() {
		return nil, frame.ErrInvalidFrame
	}

	quad := corners.Canonical()

	out, err := rectify.Rectify(f.Mat(), quad, p.rectifier)
	if err != nil {
		return nil, err
	}
	return frame.FromMat(out, 1)
}

// Close satisfies the engine contract. The pipeline keeps no Mats between
// calls, so there is nothing to release.
func (p *Pipeline) Close() {}

func (p *Pipeline) debugFor(f, working *frame.Frame, det *detect.Result) *Debug {
	return &Debug{
		WorkingWidth:  working.Width(),
		WorkingHeight: working.Height(),
		Scale:         working.Scale() / f.Scale(),
		Paper:         det.Best.Paper,
		Score:         det.Best.Score,
		Candidates:    det.Candidates,
		Strategies:    det.Strategies,
	}
}
