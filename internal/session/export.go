package session

import (
	"encoding/csv"
	"fmt"
	"image/color"
	"io"
	"math"
	"strconv"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// TrajectoryHeader is the CSV header written by WriteCSV.
var TrajectoryHeader = []string{"time", "x", "y", "z", "vx", "vy", "vz"}

// WriteCSV writes the retained trajectory as CSV, one row per step.
func (s *Session) WriteCSV(w io.Writer) error {
	return WriteTrajectoryCSV(w, s.History())
}

// WriteTrajectoryCSV writes points with the TrajectoryHeader layout.
func WriteTrajectoryCSV(w io.Writer, points []Point) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(TrajectoryHeader); err != nil {
		return err
	}
	row := make([]string, len(TrajectoryHeader))
	for _, p := range points {
		row[0] = formatFloat(p.Time)
		for i, v := range p.State {
			row[1+i] = formatFloat(v)
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Plot colours.
var (
	trackColor = color.RGBA{R: 0x0b, G: 0x74, B: 0xd1, A: 0xff}
	fixColor   = color.RGBA{R: 0x99, G: 0x99, B: 0x99, A: 0xff}
	posColor   = color.RGBA{R: 0xd1, G: 0x2b, B: 0x2b, A: 0xff}
)

// minPlotHalfSpan keeps small trajectories from being zoomed into noise.
const minPlotHalfSpan = 5.0

// WritePlot renders the horizontal (x-y) trajectory with GPS fixes and the
// current position to path. The image format follows the extension
// (.png, .svg, .pdf).
func (s *Session) WritePlot(path string) error {
	p, err := TrajectoryPlot(s.History())
	if err != nil {
		return err
	}
	if err := p.Save(8*vg.Inch, 8*vg.Inch, path); err != nil {
		return fmt.Errorf("save plot %s: %w", path, err)
	}
	logf("wrote trajectory plot to %s", path)
	return nil
}

// TrajectoryPlot builds the x-y trajectory plot for points.
func TrajectoryPlot(points []Point) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = "Estimated trajectory"
	p.X.Label.Text = "x (m)"
	p.Y.Label.Text = "y (m)"
	p.Add(plotter.NewGrid())

	track := make(plotter.XYs, 0, len(points))
	fixes := make(plotter.XYs, 0, len(points))
	for _, pt := range points {
		track = append(track, plotter.XY{X: pt.State[0], Y: pt.State[1]})
		if pt.GPSFix != nil {
			fixes = append(fixes, plotter.XY{X: pt.GPSFix[0], Y: pt.GPSFix[1]})
		}
	}

	if len(fixes) > 0 {
		sc, err := plotter.NewScatter(fixes)
		if err != nil {
			return nil, err
		}
		sc.GlyphStyle.Color = fixColor
		sc.GlyphStyle.Radius = vg.Points(1.5)
		p.Add(sc)
		p.Legend.Add("GPS fix", sc)
	}

	if len(track) > 0 {
		line, err := plotter.NewLine(track)
		if err != nil {
			return nil, err
		}
		line.Color = trackColor
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add("estimate", line)

		cur, err := plotter.NewScatter(track[len(track)-1:])
		if err != nil {
			return nil, err
		}
		cur.GlyphStyle.Color = posColor
		cur.GlyphStyle.Radius = vg.Points(4)
		cur.GlyphStyle.Shape = draw.CircleGlyph{}
		p.Add(cur)
		p.Legend.Add("current", cur)
	}

	p.X.Min = math.Min(p.X.Min, -minPlotHalfSpan)
	p.X.Max = math.Max(p.X.Max, minPlotHalfSpan)
	p.Y.Min = math.Min(p.Y.Min, -minPlotHalfSpan)
	p.Y.Max = math.Max(p.Y.Max, minPlotHalfSpan)

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
	return p, nil
}
