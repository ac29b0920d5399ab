package heatmap

import (
	"fmt"
	"sync"

	"github.com/kjstillabower/temperature-heatmap-service/internal/models"
)

// HoverKind distinguishes pointer-enter from pointer-leave.
type HoverKind int

const (
	HoverEnter HoverKind = iota
	HoverLeave
)

func (k HoverKind) String() string {
	switch k {
	case HoverEnter:
		return "enter"
	case HoverLeave:
		return "leave"
	default:
		return "unknown"
	}
}

// Point is a pointer position in page coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// HoverEvent is delivered to handlers when the pointer enters or leaves a cell.
type HoverEvent struct {
	Kind    HoverKind
	Record  models.TemperatureRecord
	Pointer Point
}

// HoverHandler reacts to a hover event. Handlers run synchronously on the
// dispatching goroutine and must not block.
type HoverHandler func(HoverEvent)

// HoverTarget accepts hover handler registrations. Both *Chart and
// *HoverSession implement it.
type HoverTarget interface {
	OnHoverEnter(h HoverHandler)
	OnHoverLeave(h HoverHandler)
}

// hoverRegistry holds handlers per kind in registration order.
type hoverRegistry struct {
	mu    sync.RWMutex
	enter []HoverHandler
	leave []HoverHandler
}

func (r *hoverRegistry) add(kind HoverKind, h HoverHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if kind == HoverEnter {
		r.enter = append(r.enter, h)
	} else {
		r.leave = append(r.leave, h)
	}
}

func (r *hoverRegistry) dispatch(ev HoverEvent) {
	r.mu.RLock()
	var hs []HoverHandler
	if ev.Kind == HoverEnter {
		hs = append(hs, r.enter...)
	} else {
		hs = append(hs, r.leave...)
	}
	r.mu.RUnlock()
	for _, h := range hs {
		h(ev)
	}
}

func hoverCell(cells []Cell, kind HoverKind, index int, pointer Point) (HoverEvent, error) {
	if index < 0 || index >= len(cells) {
		return HoverEvent{}, fmt.Errorf("cell index %d out of range [0,%d)", index, len(cells))
	}
	return HoverEvent{Kind: kind, Record: cells[index].Record, Pointer: pointer}, nil
}

// OnHoverEnter registers h for pointer-enter events on any cell.
func (c *Chart) OnHoverEnter(h HoverHandler) { c.hover.add(HoverEnter, h) }

// OnHoverLeave registers h for pointer-leave events on any cell.
func (c *Chart) OnHoverLeave(h HoverHandler) { c.hover.add(HoverLeave, h) }

// Dispatch delivers ev to the handlers registered for its kind, in
// registration order.
func (c *Chart) Dispatch(ev HoverEvent) { c.hover.dispatch(ev) }

// Hover dispatches an event of kind for the cell at index.
func (c *Chart) Hover(kind HoverKind, index int, pointer Point) error {
	ev, err := hoverCell(c.Cells, kind, index, pointer)
	if err != nil {
		return err
	}
	c.Dispatch(ev)
	return nil
}

// HoverSession is a hover dispatcher over a chart's cells with its own
// handlers. Handlers bound to a session never reach the chart, so a shared
// chart can serve concurrent viewers.
type HoverSession struct {
	chart *Chart
	hover hoverRegistry
}

// Session returns a new HoverSession over c.
func (c *Chart) Session() *HoverSession {
	return &HoverSession{chart: c}
}

// OnHoverEnter registers h for pointer-enter events in this session.
func (s *HoverSession) OnHoverEnter(h HoverHandler) { s.hover.add(HoverEnter, h) }

// OnHoverLeave registers h for pointer-leave events in this session.
func (s *HoverSession) OnHoverLeave(h HoverHandler) { s.hover.add(HoverLeave, h) }

// Hover dispatches an event of kind for the chart cell at index to this
// session's handlers.
func (s *HoverSession) Hover(kind HoverKind, index int, pointer Point) error {
	ev, err := hoverCell(s.chart.Cells, kind, index, pointer)
	if err != nil {
		return err
	}
	s.hover.dispatch(ev)
	return nil
}
