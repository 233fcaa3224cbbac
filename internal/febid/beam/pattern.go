package beam

import (
	"github.com/banshee-data/febid/internal/febid"
)

// Dwell is one stop of a scan pattern: the beam rests at (X, Y) for
// Duration seconds.
type Dwell struct {
	X        float64
	Y        float64
	Duration float64
}

// Pattern is an ordered list of dwell points, traversed Repeats times.
// An empty pattern holds the beam at a fixed position forever.
type Pattern struct {
	Points  []Dwell
	Repeats int
}

// Validate rejects non-positive dwell times and negative repeat counts.
func (p Pattern) Validate() error {
	if p.Repeats < 0 {
		return febid.NewConfigurationError("pattern.repeats", "must be non-negative, got %d", p.Repeats)
	}
	for i, d := range p.Points {
		if d.Duration <= 0 {
			return febid.NewConfigurationError("pattern", "dwell %d has non-positive duration %g", i, d.Duration)
		}
	}
	return nil
}

// Cycle returns the time of one pass over the points.
func (p Pattern) Cycle() float64 {
	t := 0.0
	for _, d := range p.Points {
		t += d.Duration
	}
	return t
}

// Total returns the time of all passes. Zero for an empty pattern.
func (p Pattern) Total() float64 {
	reps := p.Repeats
	if reps < 1 {
		reps = 1
	}
	return p.Cycle() * float64(reps)
}

// At returns the dwell point active at simulated time t and its index.
// ok is false for an empty pattern or once the pattern has finished.
func (p Pattern) At(t float64) (d Dwell, index int, ok bool) {
	if len(p.Points) == 0 || t < 0 || t >= p.Total() {
		return Dwell{}, -1, false
	}
	cycle := p.Cycle()
	local := t - float64(int(t/cycle))*cycle
	for i, pt := range p.Points {
		if local < pt.Duration {
			return pt, i, true
		}
		local -= pt.Duration
	}
	last := len(p.Points) - 1
	return p.Points[last], last, true
}
