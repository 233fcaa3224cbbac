package process

import (
	"sync/atomic"

	"github.com/banshee-data/febid/internal/febid/grid"
	"github.com/banshee-data/febid/internal/monitoring"
)

// Snapshot is a deep copy of the simulation state at the end of a step.
type Snapshot struct {
	Step     int
	Time     float64
	Nx       int
	Ny       int
	Nz       int
	CellSize float64
	ZTop     int
	Yield    float64 // nm³ deposited since start
	BeamX    float64
	BeamY    float64

	Precursor   []float64
	Deposit     []float64
	Surface     []bool
	SemiSurface []bool
	Ghost       []bool
}

// Heights returns the deposit height of every column in cells, row-major
// by y then x. The partially filled cell above the top solid cell adds its
// fill fraction.
func (s *Snapshot) Heights() []float64 {
	h := make([]float64, s.Nx*s.Ny)
	layer := s.Nx * s.Ny
	for i := range h {
		top := 0.0
		for z := s.Nz - 1; z >= 0; z-- {
			if grid.IsFull(s.Deposit[z*layer+i]) {
				top = float64(z + 1)
				if z+1 < s.Nz {
					top += s.Deposit[(z+1)*layer+i]
				}
				break
			}
		}
		h[i] = top
	}
	return h
}

// InitialState turns the snapshot into a starting point for a new run.
func (s *Snapshot) InitialState() *InitialState {
	return &InitialState{
		Density: append([]float64(nil), s.Precursor...),
		Deposit: append([]float64(nil), s.Deposit...),
	}
}

// InitialState seeds a run. Either field may be nil: a nil Deposit keeps the
// flat substrate and a nil Density fills active cells with n0.
type InitialState struct {
	Density []float64
	Deposit []float64
}

// Stats summarises the state at a step.
type Stats struct {
	Step          int
	Time          float64
	FilledCells   int
	Volume        float64 // nm³
	GrowthRate    float64 // nm³/s since the previous record
	MinPrecursor  float64
	MeanPrecursor float64
	StdPrecursor  float64
	ActiveCells   int
	ZTop          int
}

// Publisher hands snapshots and statistics to a consumer without ever
// blocking the simulation loop. When a buffer is full the record is dropped
// and counted.
type Publisher struct {
	snapshots chan *Snapshot
	stats     chan Stats

	published atomic.Uint64
	dropped   atomic.Uint64
	closed    atomic.Bool
}

// NewPublisher creates a publisher with the given buffer depth per channel.
func NewPublisher(buffer int) *Publisher {
	if buffer < 1 {
		buffer = 1
	}
	return &Publisher{
		snapshots: make(chan *Snapshot, buffer),
		stats:     make(chan Stats, buffer*4),
	}
}

// Publish queues a snapshot. It returns false when the snapshot was dropped.
func (p *Publisher) Publish(s *Snapshot) bool {
	if p.closed.Load() {
		return false
	}
	select {
	case p.snapshots <- s:
		p.published.Add(1)
		return true
	default:
		dropped := p.dropped.Add(1)
		monitoring.Logf("[process] DROPPED snapshot at step %d (total dropped: %d), channel full", s.Step, dropped)
		return false
	}
}

// PublishStats queues a statistics record under the same drop policy.
func (p *Publisher) PublishStats(s Stats) bool {
	if p.closed.Load() {
		return false
	}
	select {
	case p.stats <- s:
		return true
	default:
		p.dropped.Add(1)
		return false
	}
}

// Snapshots returns the snapshot channel. It is closed by Close.
func (p *Publisher) Snapshots() <-chan *Snapshot { return p.snapshots }

// Stats returns the statistics channel. It is closed by Close.
func (p *Publisher) Stats() <-chan Stats { return p.stats }

// Close closes both channels. It must be called by the producer after its
// last Publish; later calls are no-ops.
func (p *Publisher) Close() {
	if p.closed.CompareAndSwap(false, true) {
		close(p.snapshots)
		close(p.stats)
	}
}

// Published returns the number of snapshots queued.
func (p *Publisher) Published() uint64 { return p.published.Load() }

// Dropped returns the number of records dropped on full buffers.
func (p *Publisher) Dropped() uint64 { return p.dropped.Load() }
