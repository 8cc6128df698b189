package report

import (
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/fairway-data/launch.report/internal/capture"
)

// SaveTrajectoryPNG renders one shot's tracked trajectory as a PNG.
// Pixel Y grows downward in camera frames, so the Y axis is flipped to
// show launch height increasing upward.
func SaveTrajectoryPNG(shot capture.Shot, path string) error {
	if len(shot.Trajectory) == 0 {
		return fmt.Errorf("shot %s has no trajectory", shot.ID)
	}

	maxY := 0.0
	for _, p := range shot.Trajectory {
		if p.Y > maxY {
			maxY = p.Y
		}
	}

	pts := make(plotter.XYs, 0, len(shot.Trajectory))
	for _, p := range shot.Trajectory {
		pts = append(pts, plotter.XY{X: p.X, Y: maxY - p.Y})
	}

	pl := plot.New()
	pl.Title.Text = fmt.Sprintf("Shot %s (%.1f mph, %.1f° launch)", shortID(shot.ID), shot.BallSpeedMph, shot.LaunchAngleDeg)
	pl.X.Label.Text = "X (px)"
	pl.Y.Label.Text = "Height (px)"

	line, err := plotter.NewLine(pts)
	if err != nil {
		return err
	}
	line.Color = color.RGBA{R: 0x1f, G: 0x77, B: 0xb4, A: 255}
	line.Width = vg.Points(1.5)
	pl.Add(line)

	scatter, err := plotter.NewScatter(pts)
	if err != nil {
		return err
	}
	scatter.GlyphStyle.Radius = vg.Points(2)
	pl.Add(scatter)

	if err := pl.Save(8*vg.Inch, 6*vg.Inch, path); err != nil {
		return fmt.Errorf("save trajectory plot: %w", err)
	}
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
