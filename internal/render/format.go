// Package render draws a laid-out heatmap.Chart onto concrete surfaces: a
// standalone SVG document, an interactive HTML host page, or a PNG raster.
package render

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/kjstillabower/temperature-heatmap-service/internal/heatmap"
)

// ErrUnknownFormat is returned by ParseFormat for unsupported output formats.
var ErrUnknownFormat = errors.New("unknown render format")

// Format is an output encoding for a chart.
type Format string

const (
	FormatHTML Format = "html"
	FormatSVG  Format = "svg"
	FormatPNG  Format = "png"
)

// ParseFormat accepts html, svg or png, case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatHTML, FormatSVG, FormatPNG:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

// ContentType is the HTTP media type for f.
func (f Format) ContentType() string {
	switch f {
	case FormatSVG:
		return "image/svg+xml"
	case FormatPNG:
		return "image/png"
	default:
		return "text/html; charset=utf-8"
	}
}

// Extension is the file extension for f, with the leading dot.
func (f Format) Extension() string {
	return "." + string(f)
}

// Write encodes c to w in format f.
func Write(w io.Writer, c *heatmap.Chart, f Format) error {
	switch f {
	case FormatSVG:
		return WriteSVG(w, c)
	case FormatPNG:
		return WritePNG(w, c)
	case FormatHTML:
		return WriteHTML(w, c, HTMLOptions{})
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, string(f))
	}
}
