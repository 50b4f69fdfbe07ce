package report

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/copresence/internal/meeting"
	"github.com/banshee-data/copresence/internal/security"
)

// DistanceChart builds an interactive scatter of distance over time for the
// staleness-filtered candidates of a pair.
func DistanceChart(uid1, uid2 string, cands []meeting.Candidate, maxDistance float64) *charts.Scatter {
	if maxDistance <= 0 {
		maxDistance = meeting.DefaultMaxDistance
	}
	st := Stats(cands, maxDistance)

	near := make([]opts.ScatterData, 0, len(cands))
	far := make([]opts.ScatterData, 0, len(cands))
	for _, c := range cands {
		pt := opts.ScatterData{
			Name:  c.UserID,
			Value: []interface{}{c.Timestamp.UnixMilli(), Round3(c.Distance), Round3(c.ElapsedSeconds())},
		}
		if c.Distance < maxDistance {
			near = append(near, pt)
		} else {
			far = append(far, pt)
		}
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Distance over time", Width: "1200px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    fmt.Sprintf("Distance %s / %s", uid1, uid2),
			Subtitle: fmt.Sprintf("candidates=%d within %.1f m=%d min=%.3f m mean=%.3f m", st.Count, maxDistance, st.WithinCutoff, st.MinDistance, st.MeanDistance),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Right: "10%"}),
		charts.WithXAxisOpts(opts.XAxis{Type: "time", Name: "Time", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Name: "Distance (m)", NameLocation: "middle", NameGap: 30}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", XAxisIndex: []int{0}}),
	)
	scatter.AddSeries("within threshold", near, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 6}))
	scatter.AddSeries("beyond threshold", far,
		charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 4}),
		charts.WithMarkLineNameYAxisItemOpts(opts.MarkLineNameYAxisItem{
			Name:  fmt.Sprintf("cut-off %.1f m", maxDistance),
			YAxis: maxDistance,
		}),
		charts.WithMarkLineStyleOpts(opts.MarkLineStyle{
			Symbol:    []string{"none", "none"},
			LineStyle: &opts.LineStyle{Color: "red", Type: "dashed"},
		}),
	)
	return scatter
}

// RenderDistanceChart writes the HTML page for DistanceChart to w.
func RenderDistanceChart(w io.Writer, uid1, uid2 string, cands []meeting.Candidate, maxDistance float64) error {
	var buf bytes.Buffer
	if err := DistanceChart(uid1, uid2, cands, maxDistance).Render(&buf); err != nil {
		return fmt.Errorf("render distance chart: %w", err)
	}
	_, err := w.Write(buf.Bytes())
	return err
}

// HTMLPlotter writes an HTML distance chart per queried pair. It implements
// meeting.DistancePlotter.
type HTMLPlotter struct {
	Dir         string
	MaxDistance float64
	Written     []string
}

// NewHTMLPlotter creates a plotter writing into dir.
func NewHTMLPlotter(dir string, maxDistance float64) *HTMLPlotter {
	return &HTMLPlotter{Dir: dir, MaxDistance: maxDistance}
}

// PlotDistance renders cands to an HTML file.
func (hp *HTMLPlotter) PlotDistance(uid1, uid2 string, cands []meeting.Candidate) error {
	if err := os.MkdirAll(hp.Dir, 0755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}
	path := ChartPath(hp.Dir, uid1, uid2, "html")
	if err := security.ValidatePathWithinDirectory(path, hp.Dir); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create chart file: %w", err)
	}
	if err := RenderDistanceChart(f, uid1, uid2, cands, hp.MaxDistance); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close chart file: %w", err)
	}
	hp.Written = append(hp.Written, path)
	return nil
}

// Plotters fans a query's candidates out to several plotters.
type Plotters []meeting.DistancePlotter

// PlotDistance calls every plotter in order, stopping at the first error.
func (ps Plotters) PlotDistance(uid1, uid2 string, cands []meeting.Candidate) error {
	for _, p := range ps {
		if err := p.PlotDistance(uid1, uid2, cands); err != nil {
			return err
		}
	}
	return nil
}
