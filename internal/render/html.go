package render

import (
	"bytes"
	"fmt"
	"html/template"
	"io"

	"github.com/kjstillabower/temperature-heatmap-service/internal/heatmap"
)

// DefaultTitle heads the HTML page when HTMLOptions.Title is empty.
const DefaultTitle = "Monthly Global Land-Surface Temperature"

// HTMLOptions customises the host page around the chart.
type HTMLOptions struct {
	Title       string
	Description string
}

// The script mirrors heatmap.Tooltip: enter resets content and position and
// fades in, leave fades out. Nothing is queued.
var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: sans-serif; margin: 20px; }
#chart { position: relative; }
.tooltip { position: absolute; pointer-events: none; padding: 6px 8px; background: #222; color: #fff; border-radius: 4px; font-size: 12px; text-align: center; }
.tooltip .year { font-weight: bold; }
.axislabel { font-size: 14px; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
{{if .Description}}<p class="description">{{.Description}}</p>{{end}}
<div id="chart">
{{.SVG}}
<div class="tooltip" style="opacity: 0"></div>
</div>
<script>
(function () {
  var cfg = {opacity: {{.Opacity}}, show: {{.ShowMillis}}, hide: {{.HideMillis}}, dx: {{.OffsetX}}, dy: {{.OffsetY}}};
  var chart = document.getElementById("chart");
  var tip = chart.querySelector(".tooltip");
  var classes = ["year", "temperature", "variance"];
  chart.querySelectorAll("rect.cell").forEach(function (cell) {
    cell.addEventListener("mouseenter", function (ev) {
      tip.innerHTML = "";
      classes.forEach(function (cls, i) {
        if (i > 0) { tip.appendChild(document.createElement("br")); }
        var span = document.createElement("span");
        span.className = cls;
        span.textContent = cell.getAttribute("data-tip-" + cls);
        tip.appendChild(span);
      });
      tip.style.transition = "opacity " + cfg.show + "ms";
      tip.style.opacity = cfg.opacity;
      var box = chart.getBoundingClientRect();
      tip.style.left = (ev.clientX - box.left + cfg.dx) + "px";
      tip.style.top = (ev.clientY - box.top + cfg.dy) + "px";
    });
    cell.addEventListener("mouseleave", function () {
      tip.style.transition = "opacity " + cfg.hide + "ms";
      tip.style.opacity = 0;
    });
  });
})();
</script>
</body>
</html>
`))

type pageView struct {
	Title       string
	Description string
	SVG         template.HTML
	Opacity     float64
	ShowMillis  int64
	HideMillis  int64
	OffsetX     float64
	OffsetY     float64
}

// WriteHTML writes the host document: a #chart container holding the SVG and a
// hidden tooltip wired to every cell.
func WriteHTML(w io.Writer, c *heatmap.Chart, opts HTMLOptions) error {
	var svg bytes.Buffer
	if err := WriteSVG(&svg, c); err != nil {
		return err
	}
	title := opts.Title
	if title == "" {
		title = DefaultTitle
	}
	description := opts.Description
	if description == "" {
		ext := c.Extrema
		description = fmt.Sprintf("%d - %d: base temperature %s℃", ext.MinYear, ext.MaxYear,
			formatFloat(c.Dataset.BaseTemperature))
	}
	tc := c.Config.Tooltip
	view := pageView{
		Title:       title,
		Description: description,
		// Produced by svgTemplate, which escapes every interpolated value.
		SVG:        template.HTML(svg.String()),
		Opacity:    tc.Opacity,
		ShowMillis: tc.ShowDuration.Milliseconds(),
		HideMillis: tc.HideDuration.Milliseconds(),
		OffsetX:    tc.OffsetX,
		OffsetY:    tc.OffsetY,
	}
	if err := pageTemplate.Execute(w, view); err != nil {
		return fmt.Errorf("render html: %w", err)
	}
	return nil
}
