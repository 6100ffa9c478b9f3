// Package frame owns the raster frames moving through the scan pipeline.
//
// A Frame wraps an OpenCV Mat in BGR order together with the scale factor
// relating it to the original full-resolution capture. Frames have exclusive
// ownership semantics: whoever holds the Frame must Close it exactly once,
// and submitting a Frame to the execution host transfers ownership.
package frame

import (
	"errors"
	"fmt"
	"image"
	"image/draw"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"os"

	"doc-scanner/pkg/geometry"

	"gocv.io/x/gocv"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
)

// ErrInvalidFrame reports zero dimensions or a pixel buffer that does not
// match the declared dimensions. Callers see it before any dispatch happens.
var ErrInvalidFrame = errors.New("invalid frame")

// Frame is a BGR raster plus the compound scale factor back to the original
// capture. Scale is 1.0 for originals; Downscale multiplies it. Dividing a
// working-resolution coordinate by Scale recovers the source coordinate.
type Frame struct {
	mat    gocv.Mat
	scale  float64
	closed bool
}

// FromMat wraps an existing Mat. Gray and BGRA inputs are converted to BGR;
// the input Mat is owned by the returned Frame (or closed on error).
func FromMat(m gocv.Mat, scale float64) (*Frame, error) {
	if m.Empty() || scale <= 0 {
		m.Close()
		return nil, fmt.Errorf("%w: empty mat or scale %v", ErrInvalidFrame, scale)
	}

	switch m.Channels() {
	case 3:
		return &Frame{mat: m, scale: scale}, nil
	case 4:
		bgr := gocv.NewMat()
		gocv.CvtColor(m, &bgr, gocv.ColorBGRAToBGR)
		m.Close()
		return &Frame{mat: bgr, scale: scale}, nil
	case 1:
		bgr := gocv.NewMat()
		gocv.CvtColor(m, &bgr, gocv.ColorGrayToBGR)
		m.Close()
		return &Frame{mat: bgr, scale: scale}, nil
	default:
		n := m.Channels()
		m.Close()
		return nil, fmt.Errorf("%w: unsupported channel count %d", ErrInvalidFrame, n)
	}
}

// FromImage converts a decoded image into a full-resolution Frame.
func FromImage(img image.Image) (*Frame, error) {
	if img == nil {
		return nil, fmt.Errorf("%w: nil image", ErrInvalidFrame)
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w == 0 || h == 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidFrame, w, h)
	}

	rgba, ok := img.(*image.RGBA)
	if !ok || rgba.Stride != w*4 || bounds.Min != image.Pt(0, 0) {
		tmp := image.NewRGBA(image.Rect(0, 0, w, h))
		draw.Draw(tmp, tmp.Bounds(), img, bounds.Min, draw.Src)
		rgba = tmp
	}

	mat, err := gocv.NewMatFromBytes(h, w, gocv.MatTypeCV8UC4, rgba.Pix)
	if err != nil {
		return nil, fmt.Errorf("mat from pixels: %w", err)
	}

	// OpenCV works in BGR order
	bgr := gocv.NewMat()
	gocv.CvtColor(mat, &bgr, gocv.ColorRGBAToBGR)
	mat.Close()

	return &Frame{mat: bgr, scale: 1.0}, nil
}

// FromRGBA builds a full-resolution Frame from a raw RGBA pixel buffer, the
// shape frames arrive in over the host boundary. The buffer length must be
// exactly width*height*4.
func FromRGBA(data []byte, width, height int) (*Frame, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidFrame, width, height)
	}
	if len(data) != width*height*4 {
		return nil, fmt.Errorf("%w: %d bytes for %dx%d", ErrInvalidFrame, len(data), width, height)
	}

	mat, err := gocv.NewMatFromBytes(height, width, gocv.MatTypeCV8UC4, data)
	if err != nil {
		return nil, fmt.Errorf("mat from pixels: %w", err)
	}

	bgr := gocv.NewMat()
	gocv.CvtColor(mat, &bgr, gocv.ColorRGBAToBGR)
	mat.Close()

	return &Frame{mat: bgr, scale: 1.0}, nil
}

// Load decodes an image file into a full-resolution Frame. PNG, JPEG, TIFF
// and BMP are supported.
func Load(path string) (*Frame, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	return FromImage(img)
}

// Mat exposes the underlying pixel data. The Frame keeps ownership.
func (f *Frame) Mat() gocv.Mat {
	return f.mat
}

// Scale returns the compound factor from original capture to this Frame.
func (f *Frame) Scale() float64 {
	return f.scale
}

// Width returns the frame width in pixels.
func (f *Frame) Width() int {
	return f.mat.Cols()
}

// Height returns the frame height in pixels.
func (f *Frame) Height() int {
	return f.mat.Rows()
}

// Empty reports whether the frame has no pixels. A closed frame is empty;
// the released Mat is never consulted.
func (f *Frame) Empty() bool {
	return f == nil || f.closed || f.mat.Empty()
}

// Clone deep-copies the frame.
func (f *Frame) Clone() *Frame {
	return &Frame{mat: f.mat.Clone(), scale: f.scale}
}

// Close releases the underlying Mat. Safe to call on a nil Frame, and
// idempotent.
func (f *Frame) Close() {
	if f == nil || f.closed {
		return
	}
	f.closed = true
	f.mat.Close()
}

// Downscale produces a working copy whose long edge is at most maxDim,
// never upscaling. The result is always a new Frame, carrying the compound
// scale back to the original capture.
func (f *Frame) Downscale(maxDim int) (*Frame, error) {
	w, h := f.Width(), f.Height()
	if w == 0 || h == 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidFrame, w, h)
	}
	if maxDim <= 0 {
		return nil, fmt.Errorf("downscale: max dimension %d", maxDim)
	}

	longEdge := w
	if h > longEdge {
		longEdge = h
	}

	s := math.Min(1, float64(maxDim)/float64(longEdge))
	if s == 1 {
		return f.Clone(), nil
	}

	dw := int(math.Round(float64(w) * s))
	dh := int(math.Round(float64(h) * s))

	dst := gocv.NewMat()
	gocv.Resize(f.mat, &dst, image.Point{X: dw, Y: dh}, 0, 0, gocv.InterpolationArea)

	return &Frame{mat: dst, scale: f.scale * s}, nil
}

// ToSource maps a point in this frame's coordinates back to the original
// capture by dividing out the scale.
func (f *Frame) ToSource(p geometry.Point2D) geometry.Point2D {
	return p.Scale(1 / f.scale)
}

// QuadToSource maps a quad in this frame's coordinates back to the original
// capture.
func (f *Frame) QuadToSource(q geometry.Quad) geometry.Quad {
	return q.Scale(1 / f.scale)
}

// ToImage converts the BGR pixels into an image.RGBA.
func (f *Frame) ToImage() (image.Image, error) {
	if f.Empty() {
		return nil, fmt.Errorf("%w: empty frame", ErrInvalidFrame)
	}

	data, err := f.mat.ToBytes()
	if err != nil {
		return nil, fmt.Errorf("mat bytes: %w", err)
	}

	w, h := f.Width(), f.Height()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		srcRow := y * w * 3
		dstRow := y * img.Stride
		for x := 0; x < w; x++ {
			src := srcRow + x*3
			dst := dstRow + x*4
			img.Pix[dst+0] = data[src+2] // R
			img.Pix[dst+1] = data[src+1] // G
			img.Pix[dst+2] = data[src+0] // B
			img.Pix[dst+3] = 255
		}
	}

	return img, nil
}

// EncodePNG returns the frame encoded as PNG bytes.
func (f *Frame) EncodePNG() ([]byte, error) {
	return f.encode(gocv.PNGFileExt)
}

// EncodeJPEG returns the frame encoded as JPEG bytes.
func (f *Frame) EncodeJPEG() ([]byte, error) {
	return f.encode(gocv.JPEGFileExt)
}

func (f *Frame) encode(ext gocv.FileExt) ([]byte, error) {
	if f.Empty() {
		return nil, fmt.Errorf("%w: empty frame", ErrInvalidFrame)
	}

	buf, err := gocv.IMEncode(ext, f.mat)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", ext, err)
	}
	defer buf.Close()

	// The buffer is backed by native memory; copy before it is released.
	data := make([]byte, len(buf.GetBytes()))
	copy(data, buf.GetBytes())
	return data, nil
}

// Save writes the frame to disk; the format follows the file extension.
func (f *Frame) Save(path string) error {
	if f.Empty() {
		return fmt.Errorf("%w: empty frame", ErrInvalidFrame)
	}
	if ok := gocv.IMWrite(path, f.mat); !ok {
		return fmt.Errorf("failed to write %s", path)
	}
	return nil
}
