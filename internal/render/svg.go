package render

import (
	"fmt"
	"html/template"
	"io"
	"strconv"
	"time"

	"github.com/kjstillabower/temperature-heatmap-service/internal/heatmap"
)

var funcs = template.FuncMap{
	"num": formatFloat,
	"seconds": func(d time.Duration) string {
		return strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
	},
}

var svgTemplate = template.Must(template.New("svg").Funcs(funcs).Parse(
	`<svg xmlns="http://www.w3.org/2000/svg" class="heatmap" width="{{num .Config.Width}}" height="{{num .Config.Height}}" viewBox="0 0 {{num .Config.Width}} {{num .Config.Height}}" font-family="sans-serif" font-size="11">
<g transform="translate({{num .Config.Margin.Left}},{{num .Config.Margin.Top}})">
{{- range .Axes.YLabels}}
<text class="monthLabel scales axis axis-months" x="-6" y="{{num .Y}}" text-anchor="end" dominant-baseline="middle">{{.Text}}</text>
{{- end}}
<g class="axis axis-years" transform="translate(0,{{num .Axes.Baseline}})">
<line class="domain" x1="0" y1="0" x2="{{num .Axes.Width}}" y2="0" stroke="#000"/>
{{- range .Axes.XTicks}}
<g class="tick" transform="translate({{num .X}},0)"><line y2="6" stroke="#000"/><text y="18" text-anchor="middle">{{.Label}}</text></g>
{{- end}}
</g>
<g transform="translate({{num .Axes.YTitle.X}},{{num .Axes.YTitle.Y}})"><text class="axislabel" text-anchor="middle" transform="rotate({{num .Axes.YTitle.Rotate}})">{{.Axes.YTitle.Text}}</text></g>
<g transform="translate({{num .Axes.XTitle.X}},{{num .Axes.XTitle.Y}})"><text class="axislabel" text-anchor="middle">{{.Axes.XTitle.Text}}</text></g>
<g class="cells">
{{- range .Cells}}
<rect class="cell" x="{{num .X}}" y="{{num .Y}}" width="{{num .Width}}" height="{{num .Height}}" fill="{{.Fill}}" data-year="{{.Record.Year}}" data-month="{{.Record.Month}}" data-temperature="{{num .Temperature}}" data-variance="{{num .Record.Variance}}" data-bucket="{{.Bucket}}"
{{- with .Tooltip.Lines}} data-tip-year="{{(index . 0).Text}}" data-tip-temperature="{{(index . 1).Text}}" data-tip-variance="{{(index . 2).Text}}"{{end}}><title>{{.Tooltip.String}}</title>
{{- if .PlaceholderFill}}<animate attributeName="fill" from="{{.PlaceholderFill}}" to="{{.Fill}}" dur="{{seconds .Delay}}s" fill="freeze"/>{{end -}}
</rect>
{{- end}}
</g>
{{- range .Legend.Entries}}
<g class="legend"><rect x="{{num .X}}" y="{{num .Y}}" width="{{num .Width}}" height="{{num .Height}}" fill="{{.Color}}"/><text class="legendText" x="{{num .X}}" y="{{num .LabelY}}">{{.Label}}</text></g>
{{- end}}
</g>
</svg>
`))

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// svgCell is a cell plus the tooltip lines the page script reads back.
type svgCell struct {
	heatmap.Cell
	Tooltip heatmap.TooltipContent
}

type svgView struct {
	Config heatmap.Config
	Axes   heatmap.Axes
	Legend heatmap.Legend
	Cells  []svgCell
}

func newSVGView(c *heatmap.Chart) svgView {
	cells := make([]svgCell, len(c.Cells))
	for i, cell := range c.Cells {
		cells[i] = svgCell{
			Cell:    cell,
			Tooltip: heatmap.NewTooltipContent(cell.Record, c.Dataset.BaseTemperature, c.Config.MonthNames),
		}
	}
	return svgView{Config: c.Config, Axes: c.Axes, Legend: c.Legend, Cells: cells}
}

// WriteSVG writes c as a standalone SVG document. Every cell carries its record
// as data attributes and a <title> with the tooltip text.
func WriteSVG(w io.Writer, c *heatmap.Chart) error {
	if err := svgTemplate.Execute(w, newSVGView(c)); err != nil {
		return fmt.Errorf("render svg: %w", err)
	}
	return nil
}
