// Package report renders offline session reports from stored shot
// history: an HTML page of session charts and a PNG of a single shot's
// trajectory.
package report

import (
	"fmt"
	"io"
	"sort"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/fairway-data/launch.report/internal/capture"
)

// speedHistogramBucketMph is the bucket width for the speed histogram.
const speedHistogramBucketMph = 10.0

// RenderSessionHTML writes an HTML report for a set of shots: ball speed
// per shot in session order and a speed histogram.
func RenderSessionHTML(w io.Writer, shots []capture.Shot) error {
	if len(shots) == 0 {
		return fmt.Errorf("no shots to report")
	}

	// Shots arrive newest-first from the store; charts read better in
	// session order.
	ordered := make([]capture.Shot, len(shots))
	copy(ordered, shots)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].CapturedAt.Before(ordered[j].CapturedAt)
	})

	page := components.NewPage()
	page.AddCharts(speedScatter(ordered), speedHistogram(ordered))
	return page.Render(w)
}

// speedScatter charts ball speed per shot in capture order.
func speedScatter(shots []capture.Shot) *charts.Scatter {
	data := make([]opts.ScatterData, 0, len(shots))
	for i, s := range shots {
		data = append(data, opts.ScatterData{Value: []interface{}{i + 1, s.BallSpeedMph}})
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Session Ball Speed", Width: "900px", Height: "500px"}),
		charts.WithTitleOpts(opts.Title{Title: "Ball Speed by Shot", Subtitle: fmt.Sprintf("%d shots", len(shots))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Shot"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Ball speed (mph)"}),
	)
	scatter.AddSeries("ball speed", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 10}))
	return scatter
}

// speedHistogram buckets ball speeds into fixed-width bins.
func speedHistogram(shots []capture.Shot) *charts.Bar {
	counts := make(map[int]int)
	maxBucket := 0
	for _, s := range shots {
		b := int(s.BallSpeedMph / speedHistogramBucketMph)
		counts[b]++
		if b > maxBucket {
			maxBucket = b
		}
	}

	labels := make([]string, 0, maxBucket+1)
	values := make([]opts.BarData, 0, maxBucket+1)
	for b := 0; b <= maxBucket; b++ {
		labels = append(labels, fmt.Sprintf("%d-%d", int(float64(b)*speedHistogramBucketMph), int(float64(b+1)*speedHistogramBucketMph)))
		values = append(values, opts.BarData{Value: counts[b]})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "900px", Height: "500px"}),
		charts.WithTitleOpts(opts.Title{Title: "Ball Speed Distribution"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "mph"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Shots"}),
	)
	bar.SetXAxis(labels)
	bar.AddSeries("shots", values)
	return bar
}
