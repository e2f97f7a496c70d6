// Package debug captures estimator internals (predicted states and
// measurement innovations) for inspection over the monitor API.
package debug

import "github.com/banshee-data/navfusion/internal/fusion"

// Pre-allocation capacity for innovations: one GPS and one baro per step.
const defaultInnovationCapacity = 2

// Collector accumulates debug artifacts during a single step and keeps a
// bounded ring of the most recent emitted steps.
//
// The collector is stateful: call BeginStep, let the estimator call the
// Record methods, then Emit at step completion. It is not safe for
// concurrent use; the session serialises access.
type Collector struct {
	enabled bool
	current *Step
	ring    []Step
	next    int
	full    bool
}

// Step contains the debug artifacts for one estimator step.
type Step struct {
	Index       uint64       `json:"index"`
	Prediction  *Prediction  `json:"prediction,omitempty"`
	Innovations []Innovation `json:"innovations"`
}

// Prediction is the state after the predict phase, before any update.
type Prediction struct {
	State fusion.Vec6 `json:"state"`
	Dt    float64     `json:"dt"`
}

// Innovation is the residual z − H·x for one attempted update. Residual
// is empty when the update was not applied; Outcome then says whether the
// measurement was malformed or S was singular.
type Innovation struct {
	Model    string         `json:"model"`
	Residual []float64      `json:"residual,omitempty"`
	Outcome  fusion.Outcome `json:"outcome"`
	Applied  bool           `json:"applied"`
}

// NewCollector creates a collector retaining up to history emitted steps.
// A history of zero disables collection.
func NewCollector(history int) *Collector {
	if history <= 0 {
		return &Collector{}
	}
	return &Collector{enabled: true, ring: make([]Step, history)}
}

// SetEnabled controls whether the collector records artifacts.
func (c *Collector) SetEnabled(enabled bool) {
	c.enabled = enabled && len(c.ring) > 0
	if !c.enabled {
		c.current = nil
	}
}

// IsEnabled returns true if the collector is actively recording.
func (c *Collector) IsEnabled() bool {
	return c.enabled && c.current != nil
}

// BeginStep starts collection for a new step.
func (c *Collector) BeginStep(index uint64) {
	if !c.enabled {
		return
	}
	c.current = &Step{
		Index:       index,
		Innovations: make([]Innovation, 0, defaultInnovationCapacity),
	}
}

// RecordPrediction implements fusion.DebugCollector.
func (c *Collector) RecordPrediction(x fusion.Vec6, dt float64) {
	if !c.IsEnabled() {
		return
	}
	c.current.Prediction = &Prediction{State: x, Dt: dt}
}

// RecordInnovation implements fusion.DebugCollector.
func (c *Collector) RecordInnovation(model string, residual []float64, outcome fusion.Outcome) {
	if !c.IsEnabled() {
		return
	}
	c.current.Innovations = append(c.current.Innovations, Innovation{
		Model:    model,
		Residual: residual,
		Outcome:  outcome,
		Applied:  outcome == fusion.OutcomeApplied,
	})
}

// Emit stores the current step in the ring and returns it. Returns nil if
// collection is disabled or no step was begun.
func (c *Collector) Emit() *Step {
	if !c.IsEnabled() {
		return nil
	}
	step := c.current
	c.current = nil
	c.ring[c.next] = *step
	c.next = (c.next + 1) % len(c.ring)
	if c.next == 0 {
		c.full = true
	}
	return step
}

// Discard drops the current step without emitting it.
func (c *Collector) Discard() {
	c.current = nil
}

// Recent returns the retained steps, oldest first.
func (c *Collector) Recent() []Step {
	if len(c.ring) == 0 {
		return nil
	}
	var out []Step
	if c.full {
		out = append(out, c.ring[c.next:]...)
	}
	return append(out, c.ring[:c.next]...)
}

// Clear forgets all retained steps.
func (c *Collector) Clear() {
	c.current = nil
	c.next = 0
	c.full = false
	for i := range c.ring {
		c.ring[i] = Step{}
	}
}
