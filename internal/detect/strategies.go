package detect

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// strategy produces one binary or edge raster for contour extraction.
// gray is the raw grayscale; blurred has the standard Gaussian applied.
type strategy struct {
	name string
	mask func(gray, blurred gocv.Mat) gocv.Mat
}

// strategies expands the params into the full strategy matrix, in scoring
// tie-break order: Canny pairs, adaptive thresholds, Otsu, heavy-blur Canny.
func (p Params) strategies() []strategy {
	var out []strategy

	for _, pair := range p.CannyPairs {
		pair := pair
		out = append(out, strategy{
			name: fmt.Sprintf("canny-%.0f-%.0f", pair.Low, pair.High),
			mask: func(gray, blurred gocv.Mat) gocv.Mat {
				return cannyMask(blurred, pair)
			},
		})
	}

	for _, as := range p.AdaptiveSettings {
		as := as
		out = append(out, strategy{
			name: fmt.Sprintf("adaptive-%d", as.Block),
			mask: func(gray, blurred gocv.Mat) gocv.Mat {
				return adaptiveMask(blurred, as)
			},
		})
	}

	out = append(out, strategy{
		name: "otsu",
		mask: func(gray, blurred gocv.Mat) gocv.Mat {
			return otsuMask(blurred)
		},
	})

	out = append(out, strategy{
		name: "canny-heavy",
		mask: func(gray, blurred gocv.Mat) gocv.Mat {
			return heavyCannyMask(gray, p.HeavyBlurKernel, p.HeavyCanny)
		},
	})

	return out
}

// cannyMask runs edge detection followed by a close-then-dilate pass so
// broken page edges still form closed contours.
func cannyMask(blurred gocv.Mat, pair CannyPair) gocv.Mat {
	edges := gocv.NewMat()
	gocv.Canny(blurred, &edges, pair.Low, pair.High)
	bridgeEdges(&edges)
	return edges
}

// adaptiveMask thresholds against the local mean, inverted so regions darker
// than their neighborhood (the background around a bright page) turn white
// and trace the page boundary.
func adaptiveMask(blurred gocv.Mat, as AdaptiveSetting) gocv.Mat {
	mask := gocv.NewMat()
	gocv.AdaptiveThreshold(blurred, &mask, 255, gocv.AdaptiveThresholdMean,
		gocv.ThresholdBinaryInv, as.Block, as.C)
	return mask
}

// otsuMask applies a global automatic threshold, then closes small holes so
// text on the page does not break the page blob apart.
func otsuMask(blurred gocv.Mat) gocv.Mat {
	mask := gocv.NewMat()
	gocv.Threshold(blurred, &mask, 0, 255, gocv.ThresholdBinary+gocv.ThresholdOtsu)

	kernel := gocv.GetStructuringElement(gocv.MorphRect, image.Point{X: 5, Y: 5})
	defer kernel.Close()
	gocv.MorphologyEx(mask, &mask, gocv.MorphClose, kernel)

	return mask
}

// heavyCannyMask blurs hard before edge detection to suppress background
// texture (wood grain, fabric) that confuses the standard pairs.
func heavyCannyMask(gray gocv.Mat, kernel int, pair CannyPair) gocv.Mat {
	heavy := gocv.NewMat()
	defer heavy.Close()
	gocv.GaussianBlur(gray, &heavy, image.Point{X: kernel, Y: kernel}, 0, 0, gocv.BorderDefault)

	edges := gocv.NewMat()
	gocv.Canny(heavy, &edges, pair.Low, pair.High)
	bridgeEdges(&edges)
	return edges
}

// bridgeEdges closes then dilates in place with a 3x3 kernel.
func bridgeEdges(edges *gocv.Mat) {
	kernel := gocv.GetStructuringElement(gocv.MorphRect, image.Point{X: 3, Y: 3})
	defer kernel.Close()
	gocv.MorphologyEx(*edges, edges, gocv.MorphClose, kernel)
	gocv.Dilate(*edges, edges, kernel)
}

// NamedMask pairs a strategy name with its binary raster, for harness
// inspection. The caller owns the Mat.
type NamedMask struct {
	Name string
	Mat  gocv.Mat
}

// Masks runs every strategy over a BGR image and returns the intermediate
// rasters. Used by offline tooling to inspect what each strategy sees.
func Masks(img gocv.Mat, p Params) ([]NamedMask, error) {
	if img.Empty() {
		return nil, fmt.Errorf("empty image")
	}

	gray, blurred := prepare(img, p)
	defer gray.Close()
	defer blurred.Close()

	all := p.strategies()
	masks := make([]NamedMask, 0, len(all))
	for _, s := range all {
		masks = append(masks, NamedMask{Name: s.name, Mat: s.mask(gray, blurred)})
	}
	return masks, nil
}

// prepare converts to grayscale and applies the standard blur.
func prepare(img gocv.Mat, p Params) (gray, blurred gocv.Mat) {
	gray = gocv.NewMat()
	if img.Channels() == 1 {
		img.CopyTo(&gray)
	} else {
		gocv.CvtColor(img, &gray, gocv.ColorBGRToGray)
	}

	blurred = gocv.NewMat()
	gocv.GaussianBlur(gray, &blurred, image.Point{X: p.BlurKernel, Y: p.BlurKernel}, 0, 0, gocv.BorderDefault)
	return gray, blurred
}
