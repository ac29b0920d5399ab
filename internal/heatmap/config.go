package heatmap

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidConfig is returned by Config.Validate and New for unusable chart settings.
var ErrInvalidConfig = errors.New("invalid heatmap config")

// DefaultColors is the 11-class spectral palette, coldest first.
var DefaultColors = []string{
	"#5e4fa2", "#3288bd", "#66c2a5", "#abdda4", "#e6f598", "#ffffbf",
	"#fee08b", "#fdae61", "#f46d43", "#d53e4f", "#9e0142",
}

// DefaultMonthNames are the y-axis row labels, top to bottom.
var DefaultMonthNames = []string{
	"January", "February", "March", "April", "May", "June",
	"July", "August", "September", "October", "November", "December",
}

// Margin is the inset applied to the canvas before plotting.
type Margin struct {
	Top    float64 `json:"top"`
	Right  float64 `json:"right"`
	Bottom float64 `json:"bottom"`
	Left   float64 `json:"left"`
}

// TooltipConfig controls the hover tooltip transitions and placement.
type TooltipConfig struct {
	Opacity      float64       `json:"opacity"`
	ShowDuration time.Duration `json:"showDuration"`
	HideDuration time.Duration `json:"hideDuration"`
	// Offset from the pointer so the tooltip does not cover the cursor.
	OffsetX float64 `json:"offsetX"`
	OffsetY float64 `json:"offsetY"`
}

// Config holds the visual constants of a chart. It is passed to New by value and
// never mutated afterwards.
type Config struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Margin Margin  `json:"margin"`

	BucketCount int      `json:"bucketCount"`
	Colors      []string `json:"colors"`

	LegendSwatchWidth  float64 `json:"legendSwatchWidth"`
	LegendSwatchHeight float64 `json:"legendSwatchHeight"`
	TickIntervalYears  int     `json:"tickIntervalYears"`

	PlaceholderColor string        `json:"placeholderColor"`
	EntranceDelay    time.Duration `json:"entranceDelay"` // 0 renders the final fill immediately

	Tooltip    TooltipConfig `json:"tooltip"`
	MonthNames []string      `json:"monthNames"`
}

// DefaultConfig returns the 1200x550 chart with the spectral palette.
func DefaultConfig() Config {
	return Config{
		Width:              1200,
		Height:             550,
		Margin:             Margin{Top: 5, Right: 0, Bottom: 90, Left: 100},
		BucketCount:        len(DefaultColors),
		Colors:             append([]string(nil), DefaultColors...),
		LegendSwatchWidth:  35,
		LegendSwatchHeight: 20,
		TickIntervalYears:  10,
		PlaceholderColor:   "white",
		EntranceDelay:      time.Second,
		Tooltip: TooltipConfig{
			Opacity:      0.8,
			ShowDuration: 100 * time.Millisecond,
			HideDuration: 200 * time.Millisecond,
			OffsetX:      -60,
			OffsetY:      -75,
		},
		MonthNames: append([]string(nil), DefaultMonthNames...),
	}
}

// PlotWidth is the canvas width minus the horizontal margins.
func (c Config) PlotWidth() float64 {
	return c.Width - c.Margin.Left - c.Margin.Right
}

// PlotHeight is the canvas height minus the vertical margins.
func (c Config) PlotHeight() float64 {
	return c.Height - c.Margin.Top - c.Margin.Bottom
}

// Validate reports the first unusable setting.
func (c Config) Validate() error {
	switch {
	case c.PlotWidth() <= 0:
		return fmt.Errorf("%w: plot width %.1f must be positive", ErrInvalidConfig, c.PlotWidth())
	case c.PlotHeight() <= 0:
		return fmt.Errorf("%w: plot height %.1f must be positive", ErrInvalidConfig, c.PlotHeight())
	case c.BucketCount < 1:
		return fmt.Errorf("%w: bucket count must be at least 1", ErrInvalidConfig)
	case len(c.Colors) != c.BucketCount:
		return fmt.Errorf("%w: %d colors for %d buckets", ErrInvalidConfig, len(c.Colors), c.BucketCount)
	case c.LegendSwatchWidth <= 0 || c.LegendSwatchHeight <= 0:
		return fmt.Errorf("%w: legend swatch size must be positive", ErrInvalidConfig)
	case c.TickIntervalYears < 1:
		return fmt.Errorf("%w: tick interval must be at least one year", ErrInvalidConfig)
	case len(c.MonthNames) != 12:
		return fmt.Errorf("%w: need 12 month names, got %d", ErrInvalidConfig, len(c.MonthNames))
	case c.Tooltip.Opacity <= 0 || c.Tooltip.Opacity > 1:
		return fmt.Errorf("%w: tooltip opacity %.2f outside (0,1]", ErrInvalidConfig, c.Tooltip.Opacity)
	case c.EntranceDelay < 0:
		return fmt.Errorf("%w: entrance delay must not be negative", ErrInvalidConfig)
	}
	return nil
}

// clone copies the slices so callers cannot mutate a Renderer's config.
func (c Config) clone() Config {
	c.Colors = append([]string(nil), c.Colors...)
	c.MonthNames = append([]string(nil), c.MonthNames...)
	return c
}
