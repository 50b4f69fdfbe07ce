package report

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/banshee-data/copresence/internal/meeting"
	"github.com/banshee-data/copresence/internal/security"
)

var (
	colorNear      = color.RGBA{R: 0x35, G: 0xb7, B: 0x79, A: 255}
	colorFar       = color.RGBA{R: 0x3e, G: 0x49, B: 0x89, A: 255}
	colorThreshold = color.RGBA{R: 0xd6, G: 0x27, B: 0x28, A: 255}
)

// ChartPath returns the file a chart for uid1/uid2 is written to inside dir.
func ChartPath(dir, uid1, uid2, ext string) string {
	name := fmt.Sprintf("distance_%s_%s.%s", security.SanitizeFilename(uid1), security.SanitizeFilename(uid2), ext)
	return filepath.Join(dir, name)
}

// PNGPlotter writes a distance-over-time scatter plot per queried pair.
// It implements meeting.DistancePlotter.
type PNGPlotter struct {
	Dir         string
	MaxDistance float64
	Width       vg.Length
	Height      vg.Length

	// Written lists the files produced, in order.
	Written []string
}

// NewPNGPlotter creates a plotter writing into dir.
func NewPNGPlotter(dir string, maxDistance float64) *PNGPlotter {
	return &PNGPlotter{
		Dir:         dir,
		MaxDistance: maxDistance,
		Width:       14 * vg.Inch,
		Height:      6 * vg.Inch,
	}
}

// PlotDistance renders cands and saves the PNG.
func (pp *PNGPlotter) PlotDistance(uid1, uid2 string, cands []meeting.Candidate) error {
	if err := os.MkdirAll(pp.Dir, 0755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}
	path := ChartPath(pp.Dir, uid1, uid2, "png")
	if err := security.ValidatePathWithinDirectory(path, pp.Dir); err != nil {
		return err
	}

	p, err := pp.build(uid1, uid2, cands)
	if err != nil {
		return err
	}
	if err := p.Save(pp.Width, pp.Height, path); err != nil {
		return fmt.Errorf("save distance plot: %w", err)
	}
	pp.Written = append(pp.Written, path)
	return nil
}

func (pp *PNGPlotter) build(uid1, uid2 string, cands []meeting.Candidate) (*plot.Plot, error) {
	maxDist := pp.MaxDistance
	if maxDist <= 0 {
		maxDist = meeting.DefaultMaxDistance
	}
	st := Stats(cands, maxDist)

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Distance %s / %s (n=%d, within %.1f m: %d)", uid1, uid2, st.Count, maxDist, st.WithinCutoff)
	p.X.Label.Text = "Time (UTC)"
	p.Y.Label.Text = "Distance (m)"
	p.X.Tick.Marker = plot.TimeTicks{Format: "01-02 15:04:05"}
	p.Y.Min = 0
	p.Add(plotter.NewGrid())

	near := make(plotter.XYs, 0, len(cands))
	far := make(plotter.XYs, 0, len(cands))
	for _, c := range cands {
		pt := plotter.XY{X: unixSeconds(c), Y: c.Distance}
		if c.Distance < maxDist {
			near = append(near, pt)
		} else {
			far = append(far, pt)
		}
	}

	for _, series := range []struct {
		label string
		pts   plotter.XYs
		color color.Color
	}{
		{"within threshold", near, colorNear},
		{"beyond threshold", far, colorFar},
	} {
		if len(series.pts) == 0 {
			continue
		}
		sc, err := plotter.NewScatter(series.pts)
		if err != nil {
			return nil, err
		}
		sc.GlyphStyle.Color = series.color
		sc.GlyphStyle.Radius = vg.Points(2)
		sc.GlyphStyle.Shape = draw.CircleGlyph{}
		p.Add(sc)
		p.Legend.Add(series.label, sc)
	}

	threshold := plotter.NewFunction(func(float64) float64 { return maxDist })
	threshold.Color = colorThreshold
	threshold.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
	p.Add(threshold)
	p.Legend.Add(fmt.Sprintf("%.1f m", maxDist), threshold)

	if len(cands) > 0 {
		p.X.Min = unixSeconds(cands[0])
		p.X.Max = unixSeconds(cands[len(cands)-1])
		if p.X.Max == p.X.Min {
			p.X.Max = p.X.Min + 1
		}
	}
	if p.Y.Max < maxDist*1.2 {
		p.Y.Max = maxDist * 1.2
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
	return p, nil
}

func unixSeconds(c meeting.Candidate) float64 {
	return float64(c.Timestamp.UnixNano()) / 1e9
}
