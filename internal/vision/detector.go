package vision

import (
	"image"
	"math"
	"sort"

	"gocv.io/x/gocv"
)

// Candidate is one plausible ball found in a frame. Score is in [0, 1];
// the brightness fields carry the raw measurements the score was built
// from so callers can log or re-rank.
type Candidate struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Radius float64 `json:"radius"`
	Score  float64 `json:"score"`

	PeakBrightness float64 `json:"peak_brightness"`
	MeanBrightness float64 `json:"mean_brightness"`
	Contrast       float64 `json:"contrast"`
}

// DetectorParams holds the detector's tuning. Zero values are not usable;
// build from DefaultDetectorParams or from the config accessors.
type DetectorParams struct {
	// CLAHEClipLimit and CLAHETileSize control the local contrast
	// equalization pass.
	CLAHEClipLimit float64
	CLAHETileSize  int

	// BrightnessFloor is the threshold for the brightness mask.
	BrightnessFloor float64
	// CannyLow and CannyHigh bound the edge map hysteresis.
	CannyLow  float64
	CannyHigh float64

	MorphKernelSize int
	BlurKernelSize  int

	// HoughDP and HoughMinDist parameterize the circle search.
	HoughDP      float64
	HoughMinDist float64
	// Param2Ladder is tried in order until a level yields circles. The
	// ladder must strictly descend: early levels are conservative, later
	// ones increasingly permissive.
	Param2Ladder []float64

	RadiusMin float64
	RadiusMax float64
	// DedupeRadius collapses concentric Hough echoes: circles whose
	// centers fall within this distance of an already-kept circle are
	// dropped.
	DedupeRadius float64
	// EdgeMargin rejects circles whose extent leaves the frame by more
	// than this many pixels.
	EdgeMargin int

	MeanBrightnessMin float64
	ContrastMin       float64
}

// DefaultDetectorParams returns the tuning the defaults file ships with.
func DefaultDetectorParams() DetectorParams {
	return DetectorParams{
		CLAHEClipLimit:    2.0,
		CLAHETileSize:     8,
		BrightnessFloor:   180,
		CannyLow:          50,
		CannyHigh:         150,
		MorphKernelSize:   3,
		BlurKernelSize:    5,
		HoughDP:           1.5,
		HoughMinDist:      40,
		Param2Ladder:      []float64{110, 85, 60, 40, 28},
		RadiusMin:         8,
		RadiusMax:         60,
		DedupeRadius:      10,
		EdgeMargin:        2,
		MeanBrightnessMin: 120,
		ContrastMin:       25,
	}
}

// Detector is the stateless full-frame ball search. A nil result set means
// no plausible ball this frame, which is a normal outcome, not an error.
type Detector struct {
	params DetectorParams
}

// NewDetector creates a Detector with the given tuning.
func NewDetector(params DetectorParams) *Detector {
	return &Detector{params: params}
}

// Detect searches the frame and returns candidates sorted best-first. The
// slice is empty when nothing survives the filters; Detect never invents a
// result to avoid returning empty.
func (d *Detector) Detect(f *Frame) ([]Candidate, error) {
	gray, owned, err := f.gray()
	if err != nil {
		return nil, err
	}
	if owned {
		defer gray.Close()
	}

	prepared := d.prepare(gray)
	defer prepared.Close()

	circles := d.houghLadder(prepared)
	if len(circles) == 0 {
		return nil, nil
	}

	circles = d.dedupe(circles)

	var out []Candidate
	for _, c := range circles {
		cand, ok := d.measure(gray, c)
		if !ok {
			continue
		}
		out = append(out, cand)
	}
	if len(out) == 0 {
		return nil, nil
	}

	d.score(out, f.Height)
	sort.SliceStable(out, func(i, j int) bool {
		return betterCandidate(out[i], out[j])
	})
	return out, nil
}

// betterCandidate orders candidates best-first. Equal scores break toward
// the candidate lower in the frame, then the leftmost, so ranking never
// depends on the order the circle search happened to emit.
func betterCandidate(a, b Candidate) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.Y != b.Y {
		return a.Y > b.Y
	}
	return a.X < b.X
}

type circle struct {
	x, y, r float64
}

// prepare runs the contrast/mask/cleanup stages and returns the Mat the
// circle search consumes. Caller closes it.
func (d *Detector) prepare(gray gocv.Mat) gocv.Mat {
	p := d.params

	// Local contrast equalization keeps a uniformly bright or dark scene
	// from swallowing the ball.
	equalized := gocv.NewMat()
	clahe := gocv.NewCLAHEWithParams(p.CLAHEClipLimit, image.Pt(p.CLAHETileSize, p.CLAHETileSize))
	clahe.Apply(gray, &equalized)
	clahe.Close()
	defer equalized.Close()

	// Two independent masks, unioned: motion blur destroys edges while
	// the highlight survives, partial shadow destroys brightness while
	// the rim edge survives.
	bright := gocv.NewMat()
	gocv.Threshold(equalized, &bright, float32(p.BrightnessFloor), 255, gocv.ThresholdBinary)
	defer bright.Close()

	edges := gocv.NewMat()
	gocv.Canny(equalized, &edges, float32(p.CannyLow), float32(p.CannyHigh))
	defer edges.Close()

	union := gocv.NewMat()
	gocv.BitwiseOr(bright, edges, &union)
	defer union.Close()

	// Open to drop salt noise, close to bridge small gaps. The circle
	// search is noise-sensitive, so blur last.
	kernel := gocv.GetStructuringElement(gocv.MorphEllipse, image.Pt(p.MorphKernelSize, p.MorphKernelSize))
	defer kernel.Close()

	opened := gocv.NewMat()
	gocv.MorphologyEx(union, &opened, gocv.MorphOpen, kernel)
	defer opened.Close()

	closed := gocv.NewMat()
	gocv.MorphologyEx(opened, &closed, gocv.MorphClose, kernel)
	defer closed.Close()

	blurred := gocv.NewMat()
	gocv.GaussianBlur(closed, &blurred, image.Pt(p.BlurKernelSize, p.BlurKernelSize), 0, 0, gocv.BorderDefault)
	return blurred
}

// houghLadder walks the descending sensitivity ladder and returns the
// circles of the first level that finds any.
func (d *Detector) houghLadder(prepared gocv.Mat) []circle {
	p := d.params
	for _, param2 := range p.Param2Ladder {
		found := gocv.NewMat()
		gocv.HoughCirclesWithParams(prepared, &found, gocv.HoughGradient,
			p.HoughDP, p.HoughMinDist, p.CannyHigh, param2,
			int(p.RadiusMin), int(p.RadiusMax))

		var circles []circle
		for i := 0; i < found.Cols(); i++ {
			v := found.GetVecfAt(0, i)
			circles = append(circles, circle{x: float64(v[0]), y: float64(v[1]), r: float64(v[2])})
		}
		found.Close()

		if len(circles) > 0 {
			return circles
		}
	}
	return nil
}

// dedupe collapses near-identical centers, keeping the first seen.
func (d *Detector) dedupe(circles []circle) []circle {
	kept := circles[:0]
	for _, c := range circles {
		echo := false
		for _, k := range kept {
			if math.Hypot(c.x-k.x, c.y-k.y) < d.params.DedupeRadius {
				echo = true
				break
			}
		}
		if !echo {
			kept = append(kept, c)
		}
	}
	return kept
}

// measure applies the geometric and photometric filters and returns the
// measured candidate for a surviving circle.
func (d *Detector) measure(gray gocv.Mat, c circle) (Candidate, bool) {
	p := d.params

	bounds := image.Rect(0, 0, gray.Cols(), gray.Rows())
	margin := p.EdgeMargin
	if c.x-c.r < float64(-margin) || c.y-c.r < float64(-margin) ||
		c.x+c.r > float64(bounds.Dx()+margin) || c.y+c.r > float64(bounds.Dy()+margin) {
		return Candidate{}, false
	}
	if c.r < p.RadiusMin || c.r > p.RadiusMax {
		return Candidate{}, false
	}

	roi := clampRect(image.Rect(int(c.x-c.r), int(c.y-c.r), int(c.x+c.r)+1, int(c.y+c.r)+1), bounds)
	if roi.Empty() {
		return Candidate{}, false
	}
	region := gray.Region(roi)
	defer region.Close()

	mean := region.Mean().Val1
	_, peak, _, _ := gocv.MinMaxLoc(region)
	contrast := float64(peak) - mean

	// Uniform gray blobs are not balls; a real ball carries a specular
	// highlight well above its mean.
	if mean < p.MeanBrightnessMin || contrast < p.ContrastMin {
		return Candidate{}, false
	}

	return Candidate{
		X:              c.x,
		Y:              c.y,
		Radius:         c.r,
		PeakBrightness: float64(peak),
		MeanBrightness: mean,
		Contrast:       contrast,
	}, true
}

// score fills in the weighted quality score for each candidate.
func (d *Detector) score(cands []Candidate, frameHeight int) {
	p := d.params
	idealRadius := (p.RadiusMin + p.RadiusMax) / 2
	radiusSpan := (p.RadiusMax - p.RadiusMin) / 2

	for i := range cands {
		c := &cands[i]

		peak := c.PeakBrightness / 255
		contrast := math.Min(c.Contrast/128, 1)
		mean := c.MeanBrightness / 255
		// The ball rests near the bottom of the frame, so lower is more
		// plausible.
		vertical := c.Y / float64(frameHeight)
		radiusFit := 1 - math.Min(math.Abs(c.Radius-idealRadius)/radiusSpan, 1)

		c.Score = 0.30*peak + 0.25*contrast + 0.15*mean + 0.15*vertical + 0.15*radiusFit
	}
}
