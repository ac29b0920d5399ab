package heatmap

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/kjstillabower/temperature-heatmap-service/internal/models"
	"github.com/kjstillabower/temperature-heatmap-service/internal/validation"
)

// DatasetFetcher resolves a dataset source (URL or path) to a decoded Dataset.
// Implemented by the service layer; the renderer never touches the network.
type DatasetFetcher interface {
	GetDataset(ctx context.Context, source string) (models.Dataset, error)
}

// Renderer turns datasets into positioned, classified charts for one Config.
type Renderer struct {
	cfg Config
}

// New validates cfg and returns a Renderer bound to a private copy of it.
func New(cfg Config) (*Renderer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Renderer{cfg: cfg.clone()}, nil
}

// Config returns a copy of the renderer's configuration.
func (r *Renderer) Config() Config {
	return r.cfg.clone()
}

// Load fetches the dataset behind source and builds its chart. A fetch or
// validation failure is returned as-is and no chart is produced.
func (r *Renderer) Load(ctx context.Context, fetcher DatasetFetcher, source string) (*Chart, error) {
	ds, err := fetcher.GetDataset(ctx, source)
	if err != nil {
		return nil, fmt.Errorf("load dataset %s: %w", source, err)
	}
	return r.Build(ds)
}

// Build validates ds, derives extrema, geometry and the color scale, and lays
// out every cell, both axes and the legend.
func (r *Renderer) Build(ds models.Dataset) (*Chart, error) {
	if err := validation.ValidateDataset(ds); err != nil {
		return nil, fmt.Errorf("build chart: %w", err)
	}
	scale, err := NewColorScale(ds.Temperatures(), r.cfg.Colors)
	if err != nil {
		return nil, fmt.Errorf("build chart: %w", err)
	}

	c := &Chart{
		Config:   r.cfg.clone(),
		Dataset:  ds,
		Extrema:  ComputeExtrema(ds),
		Geometry: ComputeGeometry(ds, r.cfg.PlotWidth(), r.cfg.PlotHeight()),
		Scale:    scale,
	}
	c.Cells = make([]Cell, len(ds.MonthlyVariance))
	for i, rec := range ds.MonthlyVariance {
		c.Cells[i] = c.RenderCell(rec)
	}
	c.Axes = r.RenderAxes(c.Extrema.MinYear, c.Extrema.MaxYear)
	c.Legend = r.RenderLegend(scale.Quantiles())
	return c, nil
}

// Cell is one positioned grid rectangle.
type Cell struct {
	Record          models.TemperatureRecord `json:"record"`
	Temperature     float64                  `json:"temperature"`
	Bucket          int                      `json:"bucket"`
	X               float64                  `json:"x"`
	Y               float64                  `json:"y"`
	Width           float64                  `json:"width"`
	Height          float64                  `json:"height"`
	Fill            string                   `json:"fill"`
	PlaceholderFill string                   `json:"placeholderFill,omitempty"`
	Delay           time.Duration            `json:"delay,omitempty"`
}

// Tick is one x-axis tick mark.
type Tick struct {
	Year  int     `json:"year"`
	X     float64 `json:"x"`
	Label string  `json:"label"`
}

// RowLabel is one y-axis month label, centred in its row.
type RowLabel struct {
	Text string  `json:"text"`
	Y    float64 `json:"y"`
}

// AxisTitle is a free-standing axis caption. Rotate is in degrees.
type AxisTitle struct {
	Text   string  `json:"text"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Rotate float64 `json:"rotate"`
}

// Axes holds both axes in plot coordinates.
type Axes struct {
	XTicks   []Tick     `json:"xTicks"`
	Baseline float64    `json:"baseline"` // y of the year axis line
	Width    float64    `json:"width"`
	YLabels  []RowLabel `json:"yLabels"`
	XTitle   AxisTitle  `json:"xTitle"`
	YTitle   AxisTitle  `json:"yTitle"`
}

// LegendEntry is one swatch and its lower-boundary label.
type LegendEntry struct {
	Color    string  `json:"color"`
	Boundary float64 `json:"boundary"`
	Label    string  `json:"label"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
	LabelY   float64 `json:"labelY"`
}

// Legend lists one entry per color bucket, coldest first.
type Legend struct {
	Entries []LegendEntry `json:"entries"`
}

// RenderAxes lays out the year axis on a linear time scale from January 1 of
// minYear to January 1 of maxYear, and the twelve month rows. It depends only on
// its arguments and the config.
func (r *Renderer) RenderAxes(minYear, maxYear int) Axes {
	pw, ph := r.cfg.PlotWidth(), r.cfg.PlotHeight()
	rowHeight := ph / monthRows

	start := time.Date(minYear, time.January, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(maxYear, time.January, 1, 0, 0, 0, 0, time.UTC)
	span := end.Sub(start)
	xOf := func(year int) float64 {
		if span <= 0 {
			return 0
		}
		t := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
		return pw * float64(t.Sub(start)) / float64(span)
	}

	step := r.cfg.TickIntervalYears
	first := ceilToMultiple(minYear, step)
	var ticks []Tick
	for y := first; y <= maxYear; y += step {
		ticks = append(ticks, Tick{Year: y, X: xOf(y), Label: strconv.Itoa(y)})
	}

	labels := make([]RowLabel, monthRows)
	for i := range labels {
		labels[i] = RowLabel{Text: r.cfg.MonthNames[i], Y: float64(i)*rowHeight + rowHeight/2}
	}

	return Axes{
		XTicks:   ticks,
		Baseline: ph + 1,
		Width:    pw,
		YLabels:  labels,
		XTitle:   AxisTitle{Text: "Years", X: pw / 2, Y: ph + 45},
		YTitle:   AxisTitle{Text: "Months", X: -65, Y: ph / 2, Rotate: -90},
	}
}

func ceilToMultiple(v, step int) int {
	q := v / step
	if q*step < v {
		q++
	}
	return q * step
}

// RenderLegend lays out one swatch per bucket, right-aligned under the plot.
// Each label is the bucket's lower boundary rounded to one decimal; the first
// bucket has no computed boundary and shows 0, or the first quantile when that is
// negative so labels never decrease.
func (r *Renderer) RenderLegend(quantiles []float64) Legend {
	n := r.cfg.BucketCount
	w := r.cfg.LegendSwatchWidth
	pw, ph := r.cfg.PlotWidth(), r.cfg.PlotHeight()
	left := pw - w*float64(n)

	entries := make([]LegendEntry, n)
	boundary := 0.0
	if len(quantiles) > 0 && quantiles[0] < 0 {
		boundary = quantiles[0]
	}
	for i := 0; i < n; i++ {
		if i > 0 && i-1 < len(quantiles) {
			boundary = quantiles[i-1]
		}
		entries[i] = LegendEntry{
			Color:    r.cfg.Colors[i],
			Boundary: boundary,
			Label:    formatNumber(roundTo(boundary, 1)),
			X:        left + w*float64(i),
			Y:        ph + 50,
			Width:    w,
			Height:   r.cfg.LegendSwatchHeight,
			LabelY:   ph + 80,
		}
	}
	return Legend{Entries: entries}
}

// Chart is a fully laid-out heat map. Its fields are written once by Build and
// read-only afterwards; only hover handler registration mutates it.
type Chart struct {
	Config   Config
	Dataset  models.Dataset
	Extrema  Extrema
	Geometry Geometry
	Scale    *ColorScale
	Cells    []Cell
	Axes     Axes
	Legend   Legend

	hover hoverRegistry
}

// RenderCell positions and colors one record on the chart's grid.
func (c *Chart) RenderCell(rec models.TemperatureRecord) Cell {
	temp := c.Dataset.Temperature(rec)
	cell := Cell{
		Record:      rec,
		Temperature: temp,
		Bucket:      c.Scale.Classify(temp),
		X:           float64(rec.Year-c.Extrema.MinYear) * c.Geometry.CellWidth,
		Y:           float64(rec.Month-1) * c.Geometry.CellHeight,
		Width:       c.Geometry.CellWidth,
		Height:      c.Geometry.CellHeight,
		Fill:        c.Scale.Color(temp),
	}
	if c.Config.EntranceDelay > 0 {
		cell.PlaceholderFill = c.Config.PlaceholderColor
		cell.Delay = c.Config.EntranceDelay
	}
	return cell
}

// FindCell returns the index of the first cell for (year, month).
func (c *Chart) FindCell(year, month int) (int, bool) {
	for i, cell := range c.Cells {
		if cell.Record.Year == year && cell.Record.Month == month {
			return i, true
		}
	}
	return -1, false
}

// roundTo rounds v to the given number of decimals and normalises negative zero.
func roundTo(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	r := math.Round(v*p) / p
	if r == 0 {
		return 0
	}
	return r
}

// formatNumber prints the shortest decimal representation of v.
func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
