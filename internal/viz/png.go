// Package viz draws street map snapshots: a static PNG for reports and the
// command line, and an interactive HTML chart for the admin server.
package viz

import (
	"fmt"
	"image/color"
	"io"
	"math"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/banshee-data/gridrunner/internal/streetmap"
)

// Size is the edge length of rendered PNGs.
const Size = 6 * vg.Inch

var statusColor = map[streetmap.StreetStatus]color.RGBA{
	streetmap.Connected:  {R: 0x20, G: 0x20, B: 0x20, A: 0xff},
	streetmap.Unexplored: {R: 0x31, G: 0x68, B: 0x8e, A: 0xff},
	streetmap.DeadEnd:    {R: 0xd6, G: 0x27, B: 0x28, A: 0xff},
}

var (
	blockedColor = color.RGBA{R: 0xff, G: 0x7f, B: 0x0e, A: 0xff}
	routeColor   = color.RGBA{R: 0x35, G: 0xb7, B: 0x79, A: 0xff}
	poseColor    = color.RGBA{R: 0x2c, G: 0xa0, B: 0x2c, A: 0xff}
	goalColor    = color.RGBA{R: 0x94, G: 0x67, B: 0xbd, A: 0xff}
)

// Segment is one drawn street stub from an intersection toward a heading.
type Segment struct {
	From, To plotter.XY
	Status   streetmap.StreetStatus
	Blocked  bool
}

// Segments returns the visible street stubs of snap, skipping unknown and
// nonexistent streets. Stubs reach halfway to the neighbor so that a
// connected street is drawn by its two ends meeting.
func Segments(snap streetmap.Snapshot) []Segment {
	var out []Segment
	for _, rec := range snap.Intersections {
		for h := 0; h < streetmap.NumHeadings; h++ {
			st := rec.Streets[h]
			if st == streetmap.Unknown || st == streetmap.Nonexistent {
				continue
			}
			dx, dy := streetmap.Heading(h).PlotVector()
			x, y := float64(rec.X), float64(rec.Y)
			out = append(out, Segment{
				From:    plotter.XY{X: x, Y: y},
				To:      plotter.XY{X: x + dx, Y: y + dy},
				Status:  st,
				Blocked: rec.Blocked[h],
			})
		}
	}
	return out
}

// bounds returns the square plot extent around every intersection, the
// pose and the goal.
func bounds(snap streetmap.Snapshot) (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	grow := func(x, y int) {
		lo = math.Min(lo, math.Min(float64(x), float64(y)))
		hi = math.Max(hi, math.Max(float64(x), float64(y)))
	}
	for _, rec := range snap.Intersections {
		grow(rec.X, rec.Y)
	}
	grow(snap.Pose.X, snap.Pose.Y)
	if snap.Goal != nil {
		grow(snap.Goal.X, snap.Goal.Y)
	}
	return lo - 1, hi + 1
}

// NewPlot builds the map plot. route may be nil.
func NewPlot(snap streetmap.Snapshot, route []streetmap.Coord) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Street map - %d intersections, robot at %v", len(snap.Intersections), snap.Pose)
	p.X.Label.Text = "x"
	p.Y.Label.Text = "y"
	p.Add(plotter.NewGrid())

	legend := map[string]bool{}
	for _, seg := range Segments(snap) {
		l, err := plotter.NewLine(plotter.XYs{seg.From, seg.To})
		if err != nil {
			return nil, err
		}
		l.Color = statusColor[seg.Status]
		l.Width = vg.Points(2)
		label := strings.ToLower(seg.Status.String())
		if seg.Blocked {
			l.Color = blockedColor
			l.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
			label = "blocked"
		}
		p.Add(l)
		if !legend[label] {
			p.Legend.Add(label, l)
			legend[label] = true
		}
	}

	if len(route) > 1 {
		pts := make(plotter.XYs, len(route))
		for i, c := range route {
			pts[i] = plotter.XY{X: float64(c.X), Y: float64(c.Y)}
		}
		l, err := plotter.NewLine(pts)
		if err != nil {
			return nil, err
		}
		l.Color = routeColor
		l.Width = vg.Points(4)
		p.Add(l)
		p.Legend.Add("route", l)
	}

	if len(snap.Intersections) > 0 {
		pts := make(plotter.XYs, len(snap.Intersections))
		for i, rec := range snap.Intersections {
			pts[i] = plotter.XY{X: float64(rec.X), Y: float64(rec.Y)}
		}
		s, err := plotter.NewScatter(pts)
		if err != nil {
			return nil, err
		}
		s.GlyphStyle = draw.GlyphStyle{Color: color.Black, Radius: vg.Points(3), Shape: draw.CircleGlyph{}}
		p.Add(s)
	}

	pose, err := plotter.NewScatter(plotter.XYs{{X: float64(snap.Pose.X), Y: float64(snap.Pose.Y)}})
	if err != nil {
		return nil, err
	}
	pose.GlyphStyle = draw.GlyphStyle{Color: poseColor, Radius: vg.Points(6), Shape: draw.PyramidGlyph{}}
	p.Add(pose)
	p.Legend.Add(fmt.Sprintf("robot %s", snap.Pose.Heading), pose)

	if snap.Goal != nil {
		goal, err := plotter.NewScatter(plotter.XYs{{X: float64(snap.Goal.X), Y: float64(snap.Goal.Y)}})
		if err != nil {
			return nil, err
		}
		goal.GlyphStyle = draw.GlyphStyle{Color: goalColor, Radius: vg.Points(6), Shape: draw.BoxGlyph{}}
		p.Add(goal)
		p.Legend.Add("goal", goal)
	}

	lo, hi := bounds(snap)
	p.X.Min, p.X.Max = lo, hi
	p.Y.Min, p.Y.Max = lo, hi
	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
	return p, nil
}

// RenderPNG writes snap as a PNG image to w.
func RenderPNG(w io.Writer, snap streetmap.Snapshot, route []streetmap.Coord) error {
	p, err := NewPlot(snap, route)
	if err != nil {
		return fmt.Errorf("failed to build map plot: %w", err)
	}
	wt, err := p.WriterTo(Size, Size, "png")
	if err != nil {
		return fmt.Errorf("failed to create png writer: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write png: %w", err)
	}
	return nil
}
