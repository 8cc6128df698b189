package vision

import (
	"image"
	"math"
	"time"

	"gocv.io/x/gocv"

	"github.com/fairway-data/launch.report/internal/monitoring"
)

// TrackerParams holds the tracker's tuning.
type TrackerParams struct {
	// TemplateSize is the side length of the square patch cloned at lock
	// time.
	TemplateSize int
	// SearchRadius bounds the match window around the predicted position.
	SearchRadius int
	// StrongMatchScore resets the failure budget; WeakMatchScore is the
	// floor below which a match does not correct the filter at all.
	StrongMatchScore float64
	WeakMatchScore   float64
	// OcclusionBudget is how many consecutive frames without a strong
	// match are tolerated before the lock is dropped. This survives a
	// club or hand briefly crossing the ball.
	OcclusionBudget int

	ProcessNoisePos  float64
	ProcessNoiseVel  float64
	MeasurementNoise float64
}

// DefaultTrackerParams returns the tuning the defaults file ships with.
func DefaultTrackerParams() TrackerParams {
	return TrackerParams{
		TemplateSize:     48,
		SearchRadius:     40,
		StrongMatchScore: 0.70,
		WeakMatchScore:   0.35,
		OcclusionBudget:  5,
		ProcessNoisePos:  4.0,
		ProcessNoiseVel:  16.0,
		MeasurementNoise: 2.0,
	}
}

// Position is a tracked ball position for one frame.
type Position struct {
	X          float64   `json:"x"`
	Y          float64   `json:"y"`
	Radius     float64   `json:"radius"`
	Confidence float64   `json:"confidence"`
	Time       time.Time `json:"time"`
}

// Tracker follows a locked ball with template matching plus a
// constant-velocity filter. This is far cheaper than the full detector and
// is the steady state; when a lock drops the caller decides when to re-run
// detection. A Tracker is confined to the camera loop goroutine; other
// goroutines read it through the SnapshotHolder.
type Tracker struct {
	params TrackerParams

	state      TrackState
	template   gocv.Mat
	filter     *kalman
	radius     float64
	confidence float64
	misses     int // consecutive frames without a strong match
	lastSeq    uint64
	lastTime   time.Time
}

// NewTracker creates an unlocked Tracker.
func NewTracker(params TrackerParams) *Tracker {
	return &Tracker{params: params, state: StateUnlocked, template: gocv.NewMat()}
}

// State returns the current lock state.
func (t *Tracker) State() TrackState {
	return t.state
}

// Lock captures a template centered on (x, y) and starts following it. Any
// prior lock is overwritten. The filter starts at rest: velocity is
// learned from the first corrections.
func (t *Tracker) Lock(f *Frame, x, y, radius float64) error {
	gray, owned, err := f.gray()
	if err != nil {
		return err
	}
	if owned {
		defer gray.Close()
	}

	half := t.params.TemplateSize / 2
	roi := clampRect(image.Rect(int(x)-half, int(y)-half, int(x)+half, int(y)+half), f.Bounds())
	if roi.Empty() {
		t.Reset()
		return nil
	}

	t.releaseTemplate()
	region := gray.Region(roi)
	t.template = region.Clone()
	region.Close()

	t.filter = newKalman(x, y, t.params.ProcessNoisePos, t.params.ProcessNoiseVel, t.params.MeasurementNoise)
	t.state = StateLocked
	t.radius = radius
	t.confidence = 1.0
	t.misses = 0
	t.lastSeq = f.Seq
	t.lastTime = f.Timestamp
	return nil
}

// Track advances the lock by one frame. It returns false while Unlocked or
// when this frame exhausts the occlusion budget and drops the lock. The
// returned position is the filter's corrected estimate, always inside the
// frame.
func (t *Tracker) Track(f *Frame) (Position, bool) {
	if t.state != StateLocked {
		return Position{}, false
	}
	if t.template.Empty() {
		panic("vision: tracker locked with empty template")
	}

	dt := f.Timestamp.Sub(t.lastTime).Seconds()
	t.lastTime = f.Timestamp
	t.lastSeq = f.Seq

	predX, predY := t.filter.Predict(dt)

	score, matchX, matchY, ok := t.match(f, predX, predY)
	if !ok {
		// The search window was clamped entirely away: the prediction has
		// left the frame. Treated the same as a failed match.
		score = 0
	}

	var x, y float64
	switch {
	case score >= t.params.StrongMatchScore:
		t.misses = 0
		x, y = t.filter.Update(matchX, matchY)
	case score >= t.params.WeakMatchScore:
		// Tolerated: likely partial occlusion. Still correct the filter,
		// but burn budget.
		t.misses++
		x, y = t.filter.Update(matchX, matchY)
	default:
		// Nothing credible anywhere in the window; coast on the
		// prediction alone.
		t.misses++
		x, y = predX, predY
	}

	if t.misses > t.params.OcclusionBudget {
		monitoring.Debugf("vision: lock lost after %d weak frames (last score %.2f)", t.misses, score)
		t.Reset()
		return Position{}, false
	}

	t.confidence = math.Max(0, math.Min(score, 1))

	x = math.Max(0, math.Min(x, float64(f.Width-1)))
	y = math.Max(0, math.Min(y, float64(f.Height-1)))

	return Position{
		X:          x,
		Y:          y,
		Radius:     t.radius,
		Confidence: t.confidence,
		Time:       f.Timestamp,
	}, true
}

// match runs normalized cross-correlation of the template over the search
// window around (predX, predY). ok is false when the clamped window is too
// small to contain the template.
func (t *Tracker) match(f *Frame, predX, predY float64) (score, x, y float64, ok bool) {
	gray, owned, err := f.gray()
	if err != nil {
		return 0, 0, 0, false
	}
	if owned {
		defer gray.Close()
	}

	half := t.params.TemplateSize / 2
	reach := half + t.params.SearchRadius
	window := clampRect(image.Rect(int(predX)-reach, int(predY)-reach, int(predX)+reach, int(predY)+reach), f.Bounds())
	if window.Dx() < t.template.Cols() || window.Dy() < t.template.Rows() {
		return 0, 0, 0, false
	}

	region := gray.Region(window)
	defer region.Close()

	result := gocv.NewMat()
	defer result.Close()
	mask := gocv.NewMat()
	defer mask.Close()
	gocv.MatchTemplate(region, t.template, &result, gocv.TmCcoeffNormed, mask)

	_, maxVal, _, maxLoc := gocv.MinMaxLoc(result)

	// maxLoc is the template's top-left inside the window.
	cx := float64(window.Min.X+maxLoc.X) + float64(t.template.Cols())/2
	cy := float64(window.Min.Y+maxLoc.Y) + float64(t.template.Rows())/2
	return float64(maxVal), cx, cy, true
}

// Reset drops any lock and releases the template.
func (t *Tracker) Reset() {
	t.releaseTemplate()
	t.state = StateUnlocked
	t.filter = nil
	t.confidence = 0
	t.misses = 0
	t.radius = 0
}

func (t *Tracker) releaseTemplate() {
	t.template.Close()
	t.template = gocv.NewMat()
}

// Snapshot returns an immutable copy of the tracker state for publication.
func (t *Tracker) Snapshot() TrackSnapshot {
	s := TrackSnapshot{
		State:      t.state,
		Confidence: t.confidence,
		Seq:        t.lastSeq,
		Time:       t.lastTime,
	}
	if t.state == StateLocked && t.filter != nil {
		s.X, s.Y = t.filter.Position()
		s.Radius = t.radius
	}
	return s
}
