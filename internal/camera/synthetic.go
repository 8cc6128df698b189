package camera

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/fairway-data/launch.report/internal/vision"
)

// BallScript positions the synthetic ball for a frame. visible=false
// renders an empty mat, which the tracker sees as an occlusion.
type BallScript func(seq uint64) (x, y, r float64, visible bool)

// RestingBall is the default script: a ball sitting low in the frame, the
// pose the detector's vertical-position weighting expects.
func RestingBall(width, height int) BallScript {
	return func(uint64) (float64, float64, float64, bool) {
		return float64(width) / 2, float64(height) * 0.8, 26, true
	}
}

// LaunchedBall rests until launchSeq, then leaves along a rising diagonal
// at speed pixels per frame. It scripts the burst path in dev mode.
func LaunchedBall(width, height int, launchSeq uint64, speed float64) BallScript {
	rest := RestingBall(width, height)
	return func(seq uint64) (float64, float64, float64, bool) {
		x, y, r, _ := rest(seq)
		if seq <= launchSeq {
			return x, y, r, true
		}
		n := float64(seq - launchSeq)
		x += speed * n
		y -= speed * 0.4 * n
		if x+r >= float64(width) || y-r <= 0 {
			return 0, 0, 0, false
		}
		return x, y, r, true
	}
}

// Synthetic renders scripted frames at the configured rate. It paces
// Capture with a real timer so loop behavior matches hardware, and draws
// the same matte-ball-with-highlight shape the detector tests use.
type Synthetic struct {
	mu      sync.Mutex
	config  StreamConfig
	script  BallScript
	running bool
	seq     uint64
	last    time.Time
	now     time.Time // synthetic clock, advanced per frame
}

// NewSynthetic creates a stopped synthetic source with a resting ball.
func NewSynthetic(cfg StreamConfig) *Synthetic {
	return &Synthetic{
		config: cfg,
		script: RestingBall(cfg.Width, cfg.Height),
		now:    time.Now(),
	}
}

// SetScript replaces the ball script.
func (s *Synthetic) SetScript(script BallScript) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.script = script
}

// Configure updates the stream parameters.
func (s *Synthetic) Configure(cfg StreamConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config = cfg
	return nil
}

// Config returns the current stream configuration.
func (s *Synthetic) Config() StreamConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.config
}

// Start marks the source running.
func (s *Synthetic) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = true
	s.last = time.Time{}
	return nil
}

// Stop marks the source stopped.
func (s *Synthetic) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	return nil
}

// Capture renders the next scripted frame, pacing to the configured rate.
func (s *Synthetic) Capture(ctx context.Context) (*vision.Frame, error) {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil, fmt.Errorf("synthetic source not started")
	}
	cfg := s.config
	script := s.script
	s.seq++
	seq := s.seq
	interval := time.Duration(float64(time.Second) / cfg.FPS)
	s.now = s.now.Add(interval)
	ts := s.now
	wait := time.Duration(0)
	if !s.last.IsZero() {
		if elapsed := time.Since(s.last); elapsed < interval {
			wait = interval - elapsed
		}
	}
	s.last = time.Now().Add(wait)
	s.mu.Unlock()

	if wait > 0 {
		t := time.NewTimer(wait)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.C:
		}
	}

	m := gocv.NewMatWithSize(cfg.Height, cfg.Width, gocv.MatTypeCV8UC1)
	m.SetTo(gocv.NewScalar(40, 0, 0, 0))

	if x, y, r, visible := script(seq); visible {
		gocv.Circle(&m, image.Pt(int(x), int(y)), int(r), color.RGBA{R: 210, G: 210, B: 210}, -1)
		gocv.Circle(&m, image.Pt(int(x-r/3), int(y-r/3)), int(r/4), color.RGBA{R: 255, G: 255, B: 255}, -1)
	}

	return vision.NewFrame(m, seq, ts), nil
}
