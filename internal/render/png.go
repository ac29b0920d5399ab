package render

import (
	"fmt"
	"io"
	"math"
	"strings"

	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/kjstillabower/temperature-heatmap-service/internal/heatmap"
)

const (
	pngFontSize      = 10
	pngTitleFontSize = 12
)

// WritePNG rasterises c with go-chart's PNG renderer. The raster has no hover
// behaviour and no entrance animation: cells are drawn in their final colors.
func WritePNG(w io.Writer, c *heatmap.Chart) error {
	width, height := int(math.Round(c.Config.Width)), int(math.Round(c.Config.Height))
	r, err := chart.PNG(width, height)
	if err != nil {
		return fmt.Errorf("render png: %w", err)
	}
	font, err := chart.GetDefaultFont()
	if err != nil {
		return fmt.Errorf("render png: load font: %w", err)
	}
	r.SetFont(font)

	p := plotter{r: r, ox: c.Config.Margin.Left, oy: c.Config.Margin.Top}
	p.fillRect(-p.ox, -p.oy, c.Config.Width, c.Config.Height, drawing.ColorWhite)

	for _, cell := range c.Cells {
		p.fillRect(cell.X, cell.Y, cell.Width, cell.Height, ParseColor(cell.Fill))
	}

	r.SetFontColor(drawing.ColorBlack)
	r.SetFontSize(pngFontSize)
	for _, l := range c.Axes.YLabels {
		box := r.MeasureText(l.Text)
		p.text(l.Text, -6-float64(box.Width()), l.Y+float64(box.Height())/2)
	}

	base := c.Axes.Baseline
	p.line(0, base, c.Axes.Width, base)
	for _, tk := range c.Axes.XTicks {
		p.line(tk.X, base, tk.X, base+6)
		box := r.MeasureText(tk.Label)
		p.text(tk.Label, tk.X-float64(box.Width())/2, base+9+float64(box.Height()))
	}

	r.SetFontSize(pngTitleFontSize)
	xt := c.Axes.XTitle
	box := r.MeasureText(xt.Text)
	p.text(xt.Text, xt.X-float64(box.Width())/2, xt.Y)

	yt := c.Axes.YTitle
	box = r.MeasureText(yt.Text)
	r.SetTextRotation(yt.Rotate * math.Pi / 180)
	p.text(yt.Text, yt.X, yt.Y+float64(box.Width())/2)
	r.ClearTextRotation()

	r.SetFontSize(pngFontSize)
	for _, e := range c.Legend.Entries {
		p.fillRect(e.X, e.Y, e.Width, e.Height, ParseColor(e.Color))
		r.SetFontColor(drawing.ColorBlack)
		p.text(e.Label, e.X, e.LabelY)
	}

	if err := r.Save(w); err != nil {
		return fmt.Errorf("render png: %w", err)
	}
	return nil
}

// plotter draws in plot coordinates, offset by the chart margins.
type plotter struct {
	r      chart.Renderer
	ox, oy float64
}

func (p plotter) px(x, y float64) (int, int) {
	return int(math.Round(x + p.ox)), int(math.Round(y + p.oy))
}

func (p plotter) fillRect(x, y, w, h float64, col drawing.Color) {
	x0, y0 := p.px(x, y)
	x1, y1 := p.px(x+w, y+h)
	p.r.SetFillColor(col)
	p.r.SetStrokeColor(col)
	p.r.SetStrokeWidth(0)
	p.r.MoveTo(x0, y0)
	p.r.LineTo(x1, y0)
	p.r.LineTo(x1, y1)
	p.r.LineTo(x0, y1)
	p.r.Close()
	p.r.Fill()
}

func (p plotter) line(x0, y0, x1, y1 float64) {
	ax, ay := p.px(x0, y0)
	bx, by := p.px(x1, y1)
	p.r.SetStrokeColor(drawing.ColorBlack)
	p.r.SetStrokeWidth(1)
	p.r.MoveTo(ax, ay)
	p.r.LineTo(bx, by)
	p.r.Stroke()
}

func (p plotter) text(s string, x, y float64) {
	tx, ty := p.px(x, y)
	p.r.Text(s, tx, ty)
}

// ParseColor converts "#rrggbb", "#rgb", "white" or "black" to a drawing color.
// Anything else renders as opaque black.
func ParseColor(s string) drawing.Color {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "white":
		return drawing.ColorWhite
	case "black", "":
		return drawing.ColorBlack
	}
	hex := strings.TrimPrefix(s, "#")
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) != 6 || strings.Trim(hex, "0123456789abcdef") != "" {
		return drawing.ColorBlack
	}
	return drawing.ColorFromHex(hex)
}
