// Package vision finds and follows the ball. The detector does the
// expensive full-frame search; the tracker keeps a lock cheap once a ball
// is found. Both operate on Frames owned by the camera loop.
package vision

import (
	"fmt"
	"image"
	"time"

	"gocv.io/x/gocv"
)

// Frame is one captured image. The Mat is owned by whoever holds the Frame
// and must be released with Close exactly once; pipeline stages that keep
// pixels past the frame's lifetime clone the region they need.
type Frame struct {
	Mat       gocv.Mat
	Width     int
	Height    int
	Seq       uint64
	Timestamp time.Time
}

// NewFrame wraps a Mat. The Frame takes ownership.
func NewFrame(m gocv.Mat, seq uint64, ts time.Time) *Frame {
	return &Frame{
		Mat:       m,
		Width:     m.Cols(),
		Height:    m.Rows(),
		Seq:       seq,
		Timestamp: ts,
	}
}

// Close releases the underlying Mat.
func (f *Frame) Close() error {
	return f.Mat.Close()
}

// Bounds returns the frame rectangle.
func (f *Frame) Bounds() image.Rectangle {
	return image.Rect(0, 0, f.Width, f.Height)
}

// gray returns a single-channel view of the frame. When the frame is
// already single-channel the returned Mat aliases it and owned is false;
// otherwise a converted copy is returned with owned true and the caller
// must close it.
func (f *Frame) gray() (m gocv.Mat, owned bool, err error) {
	switch f.Mat.Channels() {
	case 1:
		return f.Mat, false, nil
	case 3:
		out := gocv.NewMat()
		gocv.CvtColor(f.Mat, &out, gocv.ColorBGRToGray)
		return out, true, nil
	default:
		return gocv.Mat{}, false, fmt.Errorf("unsupported channel count %d", f.Mat.Channels())
	}
}

// clampRect shifts and shrinks r so it fits inside bounds.
func clampRect(r, bounds image.Rectangle) image.Rectangle {
	return r.Intersect(bounds)
}
