package detect

// CannyPair is a low/high threshold pair for edge detection.
type CannyPair struct {
	Low  float32
	High float32
}

// AdaptiveSetting pairs an adaptive-threshold block size with the constant
// subtracted from the local mean.
type AdaptiveSetting struct {
	Block int
	C     float32
}

// Params configures document boundary detection.
type Params struct {
	// BlurKernel is the Gaussian kernel size applied to the grayscale
	// before the standard strategies. Must be odd.
	BlurKernel int

	// CannyPairs lists the threshold pairs for the edge strategies.
	// Each pair runs independently and is followed by a close-then-dilate
	// pass to bridge broken edges.
	CannyPairs []CannyPair

	// HeavyBlurKernel is the Gaussian kernel for the heavy-blur edge
	// strategy, used against textured or noisy backgrounds. Must be odd.
	HeavyBlurKernel int

	// HeavyCanny is the threshold pair for the heavy-blur strategy.
	HeavyCanny CannyPair

	// AdaptiveSettings lists the local-contrast threshold configurations.
	AdaptiveSettings []AdaptiveSetting

	// MinAreaRatio rejects contours whose area is below this fraction of
	// the working raster area. Small blobs are never documents.
	MinAreaRatio float64

	// MaxContours caps how many contours per strategy are carried into
	// polygon approximation, largest area first.
	MaxContours int

	// EpsilonLadder lists polygon-approximation tolerances as fractions of
	// the contour perimeter. The first tolerance yielding an acceptable
	// quad wins for that contour.
	EpsilonLadder []float64

	// AngleMin and AngleMax bound the interior angles of accepted quads,
	// in degrees. The filter rejects slivers that pass the vertex-count
	// and convexity checks.
	AngleMin float64
	AngleMax float64

	// PaperShapes are the aspect-ratio targets the scorer compares
	// candidates against.
	PaperShapes []Shape
}

// DefaultParams returns detection parameters tuned for handheld photographs
// of paper documents on arbitrary backgrounds.
func DefaultParams() Params {
	return Params{
		BlurKernel: 5,

		CannyPairs: []CannyPair{
			{Low: 50, High: 150},
			{Low: 30, High: 100},
			{Low: 75, High: 200},
		},

		HeavyBlurKernel: 9,
		HeavyCanny:      CannyPair{Low: 30, High: 100},

		AdaptiveSettings: []AdaptiveSetting{
			{Block: 15, C: 10},
			{Block: 25, C: 10},
			{Block: 11, C: 5},
		},

		MinAreaRatio: 0.04,
		MaxContours:  12,

		EpsilonLadder: []float64{0.02, 0.03, 0.04, 0.05, 0.06, 0.08},

		// Rejects near-degenerate shapes that survive the convexity check
		AngleMin: 45,
		AngleMax: 135,

		PaperShapes: DefaultShapes(),
	}
}

// WithAngleBounds returns a copy of params with custom interior-angle bounds.
func (p Params) WithAngleBounds(minDeg, maxDeg float64) Params {
	p.AngleMin = minDeg
	p.AngleMax = maxDeg
	return p
}

// WithMinAreaRatio returns a copy of params with a custom contour area gate.
func (p Params) WithMinAreaRatio(ratio float64) Params {
	p.MinAreaRatio = ratio
	return p
}
