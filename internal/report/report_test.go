package report

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairway-data/launch.report/internal/capture"
)

func sessionShots(n int) []capture.Shot {
	base := time.Date(2026, 8, 14, 10, 0, 0, 0, time.UTC)
	shots := make([]capture.Shot, 0, n)
	for i := 0; i < n; i++ {
		shots = append(shots, capture.Shot{
			ID:             uuid.NewString(),
			Club:           "driver",
			CapturedAt:     base.Add(time.Duration(i) * time.Minute),
			BallSpeedMph:   90 + float64(i)*3,
			LaunchAngleDeg: 12.5,
		})
	}
	return shots
}

func TestRenderSessionHTML(t *testing.T) {
	var buf bytes.Buffer
	err := RenderSessionHTML(&buf, sessionShots(5))
	require.NoError(t, err)

	html := buf.String()
	assert.Contains(t, html, "Ball Speed by Shot")
	assert.Contains(t, html, "Ball Speed Distribution")
	assert.Contains(t, html, "echarts")
}

func TestRenderSessionHTMLEmpty(t *testing.T) {
	var buf bytes.Buffer
	err := RenderSessionHTML(&buf, nil)
	assert.Error(t, err)
}

func TestSaveTrajectoryPNG(t *testing.T) {
	shot := capture.Shot{
		ID:             uuid.NewString(),
		BallSpeedMph:   105.2,
		LaunchAngleDeg: 14.8,
	}
	start := time.Now()
	for i := 0; i < 12; i++ {
		shot.Trajectory = append(shot.Trajectory, capture.TrajectoryPoint{
			Time:       start.Add(time.Duration(i) * 5 * time.Millisecond),
			X:          320 + float64(i)*18,
			Y:          400 - float64(i)*9,
			Radius:     24,
			Confidence: 0.9,
		})
	}

	path := filepath.Join(t.TempDir(), "shot.png")
	require.NoError(t, SaveTrajectoryPNG(shot, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "\x89PNG"), "expected PNG magic")
}

func TestSaveTrajectoryPNGNoPoints(t *testing.T) {
	err := SaveTrajectoryPNG(capture.Shot{ID: "x"}, filepath.Join(t.TempDir(), "shot.png"))
	assert.Error(t, err)
}
