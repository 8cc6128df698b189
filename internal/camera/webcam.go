package camera

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"gocv.io/x/gocv"

	"github.com/fairway-data/launch.report/internal/monitoring"
	"github.com/fairway-data/launch.report/internal/vision"
)

// Webcam is a FrameSource over a V4L/UVC device through gocv. Shutter and
// gain map onto the driver's exposure/gain properties; drivers that ignore
// them still produce frames, they just fall back to auto exposure.
type Webcam struct {
	device  string
	cap     *gocv.VideoCapture
	config  StreamConfig
	running bool
	seq     atomic.Uint64
}

// NewWebcam creates an unopened Webcam for the given device (an index like
// "0" or a path like /dev/video0).
func NewWebcam(device string) *Webcam {
	return &Webcam{device: device}
}

// Configure stores the configuration and pushes it to the driver when the
// device is open.
func (w *Webcam) Configure(cfg StreamConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	w.config = cfg
	if w.cap == nil {
		return nil
	}
	return w.apply()
}

// apply pushes the stored config to the open device.
func (w *Webcam) apply() error {
	w.cap.Set(gocv.VideoCaptureFrameWidth, float64(w.config.Width))
	w.cap.Set(gocv.VideoCaptureFrameHeight, float64(w.config.Height))
	w.cap.Set(gocv.VideoCaptureFPS, w.config.FPS)
	if w.config.ShutterMicros > 0 {
		// Most UVC drivers take exposure in 100µs units.
		w.cap.Set(gocv.VideoCaptureExposure, w.config.ShutterMicros/100)
	}
	if w.config.Gain > 0 {
		w.cap.Set(gocv.VideoCaptureGain, w.config.Gain)
	}
	return nil
}

// Start opens the device and applies the stored configuration.
func (w *Webcam) Start() error {
	if w.running {
		return nil
	}
	cap, err := gocv.OpenVideoCapture(w.device)
	if err != nil {
		return fmt.Errorf("failed to open camera %q: %w", w.device, err)
	}
	w.cap = cap
	if err := w.apply(); err != nil {
		cap.Close()
		w.cap = nil
		return err
	}
	w.running = true
	monitoring.Logf("camera: opened %q at %dx%d @%.0ffps", w.device, w.config.Width, w.config.Height, w.config.FPS)
	return nil
}

// Stop closes the device.
func (w *Webcam) Stop() error {
	if !w.running {
		return nil
	}
	w.running = false
	err := w.cap.Close()
	w.cap = nil
	return err
}

// Capture blocks on the next frame from the driver.
func (w *Webcam) Capture(ctx context.Context) (*vision.Frame, error) {
	if !w.running {
		return nil, fmt.Errorf("camera %q not started", w.device)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m := gocv.NewMat()
	if ok := w.cap.Read(&m); !ok || m.Empty() {
		m.Close()
		return nil, fmt.Errorf("failed to read frame from camera %q", w.device)
	}
	return vision.NewFrame(m, w.seq.Add(1), time.Now()), nil
}
