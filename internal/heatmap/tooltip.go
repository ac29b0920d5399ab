package heatmap

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/kjstillabower/temperature-heatmap-service/internal/models"
)

// TooltipState is the visibility state of the hover tooltip.
type TooltipState int

const (
	TooltipHidden TooltipState = iota
	TooltipVisible
)

func (s TooltipState) String() string {
	if s == TooltipVisible {
		return "visible"
	}
	return "hidden"
}

// degreeSuffix is appended to temperatures in tooltip lines.
const degreeSuffix = " ℃"

// TooltipLine is one line of tooltip text tagged with a class for styling.
type TooltipLine struct {
	Class string `json:"class"`
	Text  string `json:"text"`
}

// TooltipContent is the text shown for one record: year and month name, the
// absolute temperature rounded to three decimals, and the raw variance.
type TooltipContent struct {
	Lines []TooltipLine `json:"lines"`
}

// NewTooltipContent formats the tooltip for r. months must hold 12 names.
func NewTooltipContent(r models.TemperatureRecord, base float64, months []string) TooltipContent {
	month := ""
	if r.Month >= 1 && r.Month <= len(months) {
		month = months[r.Month-1]
	}
	return TooltipContent{Lines: []TooltipLine{
		{Class: "year", Text: fmt.Sprintf("%d - %s", r.Year, month)},
		{Class: "temperature", Text: formatNumber(roundTo(r.Variance+base, 3)) + degreeSuffix},
		{Class: "variance", Text: formatNumber(r.Variance) + degreeSuffix},
	}}
}

// String joins the lines with newlines.
func (c TooltipContent) String() string {
	parts := make([]string, len(c.Lines))
	for i, l := range c.Lines {
		parts[i] = l.Text
	}
	return strings.Join(parts, "\n")
}

// TooltipView is a snapshot of the tooltip for rendering or inspection.
type TooltipView struct {
	State      TooltipState   `json:"-"`
	StateName  string         `json:"state"`
	Opacity    float64        `json:"opacity"`
	Left       float64        `json:"left"`
	Top        float64        `json:"top"`
	Transition time.Duration  `json:"transition"`
	Content    TooltipContent `json:"content"`
}

// Tooltip is the two-state hover tooltip. Every enter replaces content and
// position immediately; there is no queue of pending hovers.
type Tooltip struct {
	mu     sync.Mutex
	cfg    TooltipConfig
	months []string
	base   float64
	view   TooltipView
}

// NewTooltip returns a hidden tooltip for charts with the given base temperature.
func NewTooltip(cfg Config, base float64) *Tooltip {
	return &Tooltip{
		cfg:    cfg.Tooltip,
		months: append([]string(nil), cfg.MonthNames...),
		base:   base,
		view:   TooltipView{State: TooltipHidden, StateName: TooltipHidden.String()},
	}
}

// Bind registers the tooltip on c for both hover kinds.
func (t *Tooltip) Bind(c HoverTarget) {
	c.OnHoverEnter(t.Enter)
	c.OnHoverLeave(func(HoverEvent) { t.Leave() })
}

// Enter shows the tooltip for ev.Record near the pointer.
func (t *Tooltip) Enter(ev HoverEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.view = TooltipView{
		State:      TooltipVisible,
		StateName:  TooltipVisible.String(),
		Opacity:    t.cfg.Opacity,
		Left:       ev.Pointer.X + t.cfg.OffsetX,
		Top:        ev.Pointer.Y + t.cfg.OffsetY,
		Transition: t.cfg.ShowDuration,
		Content:    NewTooltipContent(ev.Record, t.base, t.months),
	}
}

// Leave fades the tooltip out. Content and position are kept until the next Enter.
func (t *Tooltip) Leave() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.view.State = TooltipHidden
	t.view.StateName = TooltipHidden.String()
	t.view.Opacity = 0
	t.view.Transition = t.cfg.HideDuration
}

// View returns the current snapshot.
func (t *Tooltip) View() TooltipView {
	t.mu.Lock()
	defer t.mu.Unlock()
	v := t.view
	v.Content.Lines = append([]TooltipLine(nil), t.view.Content.Lines...)
	return v
}
