// Package capture provides raster sources for the scan pipeline: a live
// camera device and a fixed still image.
package capture

import (
	"fmt"
	"sync"

	"doc-scanner/internal/frame"

	"github.com/disintegration/imaging"
	"gocv.io/x/gocv"
)

// maxStillDim bounds pathological inputs; phone panoramas can exceed the
// warp's comfortable working size.
const maxStillDim = 4096

// Source supplies frame snapshots with known pixel dimensions. Every
// Snapshot returns a frame the caller owns and must close.
type Source interface {
	Snapshot() (*frame.Frame, error)
	Dims() (width, height int)
	Close() error
}

// Camera captures frames from a video device through OpenCV.
type Camera struct {
	mu  sync.Mutex
	vc  *gocv.VideoCapture
	buf gocv.Mat
}

// OpenCamera opens a capture device. The argument takes whatever OpenCV
// accepts: a device index like "0", a file path, or a stream URL.
func OpenCamera(device string) (*Camera, error) {
	vc, err := gocv.OpenVideoCapture(device)
	if err != nil {
		return nil, fmt.Errorf("opening capture device %q: %w", device, err)
	}
	return &Camera{vc: vc, buf: gocv.NewMat()}, nil
}

// Snapshot grabs the next frame. Safe for concurrent use.
func (c *Camera) Snapshot() (*frame.Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.vc.Read(&c.buf) || c.buf.Empty() {
		return nil, fmt.Errorf("no frame from capture device")
	}
	return frame.FromMat(c.buf.Clone(), 1)
}

// Dims reports the device frame size, or zeros before the device has one.
func (c *Camera) Dims() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return int(c.vc.Get(gocv.VideoCaptureFrameWidth)),
		int(c.vc.Get(gocv.VideoCaptureFrameHeight))
}

// Close releases the device and the read buffer.
func (c *Camera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buf.Close()
	return c.vc.Close()
}

// Still serves one fixed image as a capture source, for file-based scans
// and tests.
type Still struct {
	mu sync.Mutex
	f  *frame.Frame
}

// OpenStill loads an image file, honoring EXIF orientation and bounding
// oversized inputs.
func OpenStill(path string) (*Still, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("opening still %q: %w", path, err)
	}

	b := img.Bounds()
	if b.Dx() > maxStillDim || b.Dy() > maxStillDim {
		img = imaging.Fit(img, maxStillDim, maxStillDim, imaging.Lanczos)
	}

	f, err := frame.FromImage(img)
	if err != nil {
		return nil, err
	}
	return &Still{f: f}, nil
}

// FromFrame wraps an existing frame as a source, taking ownership of it.
func FromFrame(f *frame.Frame) *Still {
	return &Still{f: f}
}

// Snapshot returns a copy; the held frame survives for the next caller.
func (s *Still) Snapshot() (*frame.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f.Empty() {
		return nil, frame.ErrInvalidFrame
	}
	return s.f.Clone(), nil
}

// Dims reports the still's pixel size.
func (s *Still) Dims() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.f.Width(), s.f.Height()
}

// Close releases the held frame.
func (s *Still) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.f.Close()
	return nil
}
