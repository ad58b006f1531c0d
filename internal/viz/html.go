package viz

import (
	"fmt"
	"io"
	"strings"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/gridrunner/internal/streetmap"
)

// AssetsHost is where the rendered page loads the echarts scripts from.
// An empty value keeps the go-echarts default CDN.
var AssetsHost = ""

func hexColor(s streetmap.StreetStatus) string {
	c := statusColor[s]
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// RenderHTML writes an interactive chart of snap to w. Intersections carry
// their street summary as a tooltip.
func RenderHTML(w io.Writer, snap streetmap.Snapshot, route []streetmap.Coord) error {
	lo, hi := bounds(snap)

	scatter := charts.NewScatter()
	initOpts := opts.Initialization{PageTitle: "Street map", Width: "800px", Height: "800px"}
	if AssetsHost != "" {
		initOpts.AssetsHost = AssetsHost
	}
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(initOpts),
		charts.WithTitleOpts(opts.Title{
			Title:    "Street map",
			Subtitle: fmt.Sprintf("intersections=%d robot=%v", len(snap.Intersections), snap.Pose),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Type: "value", Min: lo, Max: hi, Name: "x", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Type: "value", Min: lo, Max: hi, Name: "y", NameLocation: "middle", NameGap: 30}),
	)

	nodes := make([]opts.ScatterData, 0, len(snap.Intersections))
	for _, rec := range snap.Intersections {
		nodes = append(nodes, opts.ScatterData{
			Name:  fmt.Sprintf("(%d,%d) %s", rec.X, rec.Y, summary(rec)),
			Value: []interface{}{rec.X, rec.Y},
		})
	}
	scatter.AddSeries("intersections", nodes,
		charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 10}),
		charts.WithItemStyleOpts(opts.ItemStyle{Color: "#202020"}),
	)
	scatter.AddSeries("robot", []opts.ScatterData{{
		Name:   fmt.Sprintf("robot %v", snap.Pose),
		Value:  []interface{}{snap.Pose.X, snap.Pose.Y},
		Symbol: "triangle",
	}},
		charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 22}),
		charts.WithItemStyleOpts(opts.ItemStyle{Color: "#2ca02c"}),
	)
	if snap.Goal != nil {
		scatter.AddSeries("goal", []opts.ScatterData{{
			Name:   fmt.Sprintf("goal %v", *snap.Goal),
			Value:  []interface{}{snap.Goal.X, snap.Goal.Y},
			Symbol: "rect",
		}},
			charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 18}),
			charts.WithItemStyleOpts(opts.ItemStyle{Color: "#9467bd"}),
		)
	}

	// Street stubs become one line series per status; a "-" point breaks
	// the polyline between stubs.
	stubs := map[string][]opts.LineData{}
	colors := map[string]string{}
	var order []string
	for _, seg := range Segments(snap) {
		name := strings.ToLower(seg.Status.String())
		colors[name] = hexColor(seg.Status)
		if seg.Blocked {
			name = "blocked"
			colors[name] = "#ff7f0e"
		}
		if _, ok := stubs[name]; !ok {
			order = append(order, name)
		}
		stubs[name] = append(stubs[name],
			opts.LineData{Value: []interface{}{seg.From.X, seg.From.Y}},
			opts.LineData{Value: []interface{}{seg.To.X, seg.To.Y}},
			opts.LineData{Value: "-"},
		)
	}
	streets := charts.NewLine()
	for _, name := range order {
		streets.AddSeries(name, stubs[name],
			charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
			charts.WithLineStyleOpts(opts.LineStyle{Color: colors[name], Width: 3}),
		)
	}
	if len(route) > 1 {
		pts := make([]opts.LineData, len(route))
		for i, c := range route {
			pts[i] = opts.LineData{Value: []interface{}{c.X, c.Y}}
		}
		streets.AddSeries("route", pts,
			charts.WithLineStyleOpts(opts.LineStyle{Color: "#35b779", Width: 6}),
		)
	}
	scatter.Overlap(streets)

	if err := scatter.Render(w); err != nil {
		return fmt.Errorf("failed to render map chart: %w", err)
	}
	return nil
}

// summary lists the non-unknown streets of rec as "heading:status" pairs.
func summary(rec streetmap.IntersectionRecord) string {
	var parts []string
	for h := 0; h < streetmap.NumHeadings; h++ {
		st := rec.Streets[h]
		if st == streetmap.Unknown {
			continue
		}
		p := fmt.Sprintf("%s:%s", streetmap.Heading(h), strings.ToLower(st.String()))
		if rec.Blocked[h] {
			p += "(blocked)"
		}
		parts = append(parts, p)
	}
	return strings.Join(parts, " ")
}
