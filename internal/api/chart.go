package api

import (
	"fmt"
	"io"

	"github.com/banshee-data/navfusion/internal/session"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// renderTrajectoryChart writes an interactive x-y chart of the estimated
// track with the GPS fixes overlaid.
func renderTrajectoryChart(w io.Writer, runID string, points []session.Point) error {
	track := make([]opts.LineData, 0, len(points))
	fixes := make([]opts.ScatterData, 0, len(points))
	for _, p := range points {
		track = append(track, opts.LineData{Value: []interface{}{p.State[0], p.State[1]}})
		if p.GPSFix != nil {
			fixes = append(fixes, opts.ScatterData{Value: []interface{}{p.GPSFix[0], p.GPSFix[1]}})
		}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "navfusion trajectory", Width: "900px", Height: "900px"}),
		charts.WithTitleOpts(opts.Title{Title: "Estimated trajectory", Subtitle: fmt.Sprintf("run=%s points=%d fixes=%d", runID, len(track), len(fixes))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Type: "value", Name: "x (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Type: "value", Name: "y (m)", NameLocation: "middle", NameGap: 30}),
	)
	line.AddSeries("estimate", track, charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))

	scatter := charts.NewScatter()
	scatter.AddSeries("gps fix", fixes, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 4}))
	line.Overlap(scatter)

	return line.Render(w)
}
