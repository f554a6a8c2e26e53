// Package plot renders the trace of every trial to a PNG file: commanded and actual
// position on top, following error below.
package plot

import (
	"bufio"
	"context"
	"fmt"
	"image/color"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/aretw0/pidtune/internal/logging"
	"github.com/aretw0/pidtune/pkg/ports"
	"github.com/aretw0/pidtune/pkg/runner"
	"github.com/aretw0/pidtune/pkg/trace"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

var (
	commandedColor = color.RGBA{R: 0x81, G: 0x8c, B: 0xf8, A: 0xff}
	actualColor    = color.RGBA{R: 0xf4, G: 0x72, B: 0xb6, A: 0xff}
	errorColor     = color.RGBA{R: 0xef, G: 0x44, B: 0x44, A: 0xff}
)

// Sink implements ports.ReportSink by writing one PNG per trial into a directory.
type Sink struct {
	dir    string
	unit   runner.DisplayUnit
	width  vg.Length
	height vg.Length
	dpi    int
	logger *slog.Logger
}

type Option func(*Sink)

// WithUnit sets the unit of the position axes.
func WithUnit(u runner.DisplayUnit) Option {
	return func(s *Sink) {
		if u.Meters > 0 {
			s.unit = u
		}
	}
}

// WithSize sets the image size in inches.
func WithSize(width, height float64) Option {
	return func(s *Sink) {
		s.width = vg.Length(width) * vg.Inch
		s.height = vg.Length(height) * vg.Inch
	}
}

// WithDPI sets the image resolution.
func WithDPI(dpi int) Option {
	return func(s *Sink) {
		s.dpi = dpi
	}
}

// WithLogger configures the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Sink) {
		s.logger = logger
	}
}

// New creates a plot sink writing into dir, which is created on first use.
func New(dir string, opts ...Option) *Sink {
	s := &Sink{
		dir:    dir,
		unit:   runner.Micrometer,
		width:  8 * vg.Inch,
		height: 6 * vg.Inch,
		dpi:    150,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ ports.ReportSink = (*Sink)(nil)

// Path is the file the plot of report is written to.
func (s *Sink) Path(report *ports.TrialReport) string {
	return filepath.Join(s.dir, fmt.Sprintf("trial-%03d-axis-%s.png", report.Trial, report.Axis.ID))
}

// Publish renders the report. Reports without samples are skipped.
func (s *Sink) Publish(ctx context.Context, report *ports.TrialReport) error {
	if report.Trace == nil {
		return nil
	}
	samples := trace.Collect(report.Trace.Samples())
	if len(samples) == 0 {
		s.logger.Debug("no samples to plot", "trial", report.Trial)
		return nil
	}

	commanded := make(plotter.XYs, len(samples))
	actual := make(plotter.XYs, len(samples))
	errs := make(plotter.XYs, len(samples))
	for i, sm := range samples {
		ms := float64(sm.Time.Microseconds()) / 1000
		commanded[i] = plotter.XY{X: ms, Y: s.unit.FromMeters(sm.Commanded)}
		actual[i] = plotter.XY{X: ms, Y: s.unit.FromMeters(sm.Actual)}
		errs[i] = plotter.XY{X: ms, Y: s.unit.FromMeters(sm.Error)}
	}

	position := plot.New()
	position.Title.Text = fmt.Sprintf("Trial %d, axis %s: %s (P=%g I=%g D=%g)",
		report.Trial, report.Axis.ID, report.Outcome, report.Gains.P, report.Gains.I, report.Gains.D)
	position.Y.Label.Text = fmt.Sprintf("position (%s)", s.unit.Name)
	position.Add(plotter.NewGrid())
	if err := addLine(position, "commanded", commanded, commandedColor); err != nil {
		return err
	}
	if err := addLine(position, "actual", actual, actualColor); err != nil {
		return err
	}
	position.Legend.Top = true

	following := plot.New()
	following.X.Label.Text = "time (ms)"
	following.Y.Label.Text = fmt.Sprintf("error (%s)", s.unit.Name)
	following.Add(plotter.NewGrid())
	if err := addLine(following, "", errs, errorColor); err != nil {
		return err
	}

	path := s.Path(report)
	if err := s.save([][]*plot.Plot{{position}, {following}}, path); err != nil {
		return err
	}
	s.logger.Info("trial plotted", "trial", report.Trial, "path", path)
	return nil
}

func addLine(p *plot.Plot, name string, pts plotter.XYs, c color.Color) error {
	line, err := plotter.NewLine(pts)
	if err != nil {
		return fmt.Errorf("plot %s: %w", name, err)
	}
	line.LineStyle.Color = c
	line.LineStyle.Width = vg.Points(1.2)
	p.Add(line)
	if name != "" {
		p.Legend.Add(name, line)
	}
	return nil
}

func (s *Sink) save(plots [][]*plot.Plot, path string) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("cannot create plot directory: %w", err)
	}

	img := vgimg.NewWith(vgimg.UseWH(s.width, s.height), vgimg.UseDPI(s.dpi))
	dc := draw.New(img)
	tiles := draw.Tiles{
		Rows:      len(plots),
		Cols:      1,
		PadX:      vg.Millimeter,
		PadY:      2 * vg.Millimeter,
		PadTop:    2 * vg.Millimeter,
		PadBottom: 2 * vg.Millimeter,
		PadLeft:   2 * vg.Millimeter,
		PadRight:  2 * vg.Millimeter,
	}
	canvases := plot.Align(plots, tiles, dc)
	for i := range plots {
		plots[i][0].Draw(canvases[i][0])
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("cannot create png: %w", err)
	}
	defer f.Close()

	bw := bufio.NewWriter(f)
	if _, err := (vgimg.PngCanvas{Canvas: img}).WriteTo(bw); err != nil {
		return fmt.Errorf("cannot write png: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("cannot write png: %w", err)
	}
	return nil
}
