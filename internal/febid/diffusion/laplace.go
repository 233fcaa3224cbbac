// Package diffusion evaluates the discrete Laplacian of a precursor field
// over the semi-surface cells of a grid.
//
// Two evaluation forms are provided. The stencil form walks the active index
// and reads the six face neighbours of each cell. The rolling form builds
// shifted copies of the whole field along each axis and masks the sum to the
// active cells. Both treat reads outside the array as reflections of the
// centre value and agree to round-off.
//
// Ghost cells must hold current boundary values (grid.RefreshGhosts) before
// either form runs. Output is written only at active indices and the output
// buffer must not alias the input.
package diffusion

import (
	"errors"
	"fmt"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"

	"github.com/banshee-data/febid/internal/febid"
	"github.com/banshee-data/febid/internal/febid/grid"
)

// ErrAliasedBuffers is returned when the output buffer shares storage with
// the input field.
var ErrAliasedBuffers = errors.New("diffusion: output buffer aliases input field")

// Kernel is a symmetric face-neighbour stencil. Each of the 2·Dims face
// neighbours carries Weight and the centre carries -2·Dims·Weight, so the
// kernel sums to zero.
type Kernel struct {
	Dims   int
	Weight float64
}

// DefaultKernel returns the 3D unit Laplacian.
func DefaultKernel() Kernel { return Kernel{Dims: 3, Weight: 1} }

// Centre returns the centre weight.
func (k Kernel) Centre() float64 { return -2 * float64(k.Dims) * k.Weight }

// Validate accepts 1, 2 or 3 dimensions.
func (k Kernel) Validate() error {
	if k.Dims < 1 || k.Dims > 3 {
		return febid.NewConfigurationError("kernel.dims", "must be 1, 2 or 3, got %d", k.Dims)
	}
	return nil
}

// LaplaceTerm evaluates the kernel at a single cell.
func LaplaceTerm(field []float64, g *grid.Grid, k Kernel, idx int) float64 {
	c := g.Coord(idx)
	centre := field[idx]
	sum := k.Centre() * centre
	sum += k.Weight * (at(field, g, c.X+1, c.Y, c.Z, centre) + at(field, g, c.X-1, c.Y, c.Z, centre))
	if k.Dims >= 2 {
		sum += k.Weight * (at(field, g, c.X, c.Y+1, c.Z, centre) + at(field, g, c.X, c.Y-1, c.Z, centre))
	}
	if k.Dims >= 3 {
		sum += k.Weight * (at(field, g, c.X, c.Y, c.Z+1, centre) + at(field, g, c.X, c.Y, c.Z-1, centre))
	}
	return sum
}

func at(field []float64, g *grid.Grid, x, y, z int, centre float64) float64 {
	if !g.InBounds(x, y, z) {
		return centre
	}
	return field[g.Idx(x, y, z)]
}

// KernelConvolution evaluates the stencil at every active cell, split over
// workers goroutines. workers <= 0 selects runtime.NumCPU.
func KernelConvolution(dst, field []float64, g *grid.Grid, k Kernel, workers int) error {
	if err := checkBuffers(dst, field, g); err != nil {
		return err
	}
	active := g.Active
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers == 1 || len(active) < 2*workers {
		for _, idx := range active {
			dst[idx] = LaplaceTerm(field, g, k, idx)
		}
		return nil
	}

	per := (len(active) + workers - 1) / workers
	var eg errgroup.Group
	for start := 0; start < len(active); start += per {
		end := start + per
		if end > len(active) {
			end = len(active)
		}
		chunk := active[start:end]
		eg.Go(func() error {
			for _, idx := range chunk {
				dst[idx] = LaplaceTerm(field, g, k, idx)
			}
			return nil
		})
	}
	return eg.Wait()
}

// LaplaceTermRolling evaluates the kernel over the whole array by summing
// shifted copies of field along each axis, then copies the result into dst
// at active cells.
func LaplaceTermRolling(dst, field []float64, g *grid.Grid, k Kernel) error {
	if err := checkBuffers(dst, field, g); err != nil {
		return err
	}
	return rolling(dst, field, g, k, make([]float64, len(field)), make([]float64, len(field)))
}

func rolling(dst, field []float64, g *grid.Grid, k Kernel, acc, shifted []float64) error {
	copy(acc, field)
	floats.Scale(k.Centre(), acc)

	strides := [3]int{1, g.Nx, g.Nx * g.Ny}
	extents := [3]int{g.Nx, g.Ny, g.Nz}
	for axis := 0; axis < k.Dims; axis++ {
		for _, dir := range [2]int{1, -1} {
			shift(shifted, field, strides[axis], extents[axis], dir)
			floats.AddScaled(acc, k.Weight, shifted)
		}
	}
	for _, idx := range g.Active {
		dst[idx] = acc[idx]
	}
	return nil
}

// shift writes into out the neighbour value of every cell one step along an
// axis. Cells on the boundary face of that axis see themselves.
func shift(out, field []float64, stride, extent, dir int) {
	span := stride * extent
	for i := range field {
		pos := (i % span) / stride
		j := pos + dir
		if j < 0 || j >= extent {
			out[i] = field[i]
			continue
		}
		out[i] = field[i+dir*stride]
	}
}

func checkBuffers(dst, field []float64, g *grid.Grid) error {
	if len(dst) != g.Len() || len(field) != g.Len() {
		return fmt.Errorf("diffusion: buffer length %d/%d does not match grid %d", len(dst), len(field), g.Len())
	}
	if len(dst) > 0 && &dst[0] == &field[0] {
		return ErrAliasedBuffers
	}
	return nil
}

// Strategy selects the Laplacian evaluation form.
type Strategy int

const (
	Stencil Strategy = iota
	Rolling
)

func (s Strategy) String() string {
	switch s {
	case Stencil:
		return "stencil"
	case Rolling:
		return "rolling"
	default:
		return fmt.Sprintf("Strategy(%d)", int(s))
	}
}

// ParseStrategy accepts "stencil" or "rolling"; empty selects stencil.
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "stencil":
		return Stencil, nil
	case "rolling":
		return Rolling, nil
	default:
		return 0, febid.NewConfigurationError("laplacian_strategy", "unknown strategy %q", s)
	}
}

// Operator bundles a kernel with its evaluation strategy. The rolling form
// keeps its scratch buffers between calls; an Operator is not safe for
// concurrent Compute calls.
type Operator struct {
	Kernel   Kernel
	Strategy Strategy
	Workers  int

	acc, shifted []float64
}

// NewOperator returns an operator for the given kernel and strategy.
func NewOperator(k Kernel, s Strategy, workers int) *Operator {
	return &Operator{Kernel: k, Strategy: s, Workers: workers}
}

// Compute writes the Laplacian of field into dst at active cells.
func (op *Operator) Compute(dst, field []float64, g *grid.Grid) error {
	switch op.Strategy {
	case Rolling:
		if err := checkBuffers(dst, field, g); err != nil {
			return err
		}
		if len(op.acc) != len(field) {
			op.acc = make([]float64, len(field))
			op.shifted = make([]float64, len(field))
		}
		return rolling(dst, field, g, op.Kernel, op.acc, op.shifted)
	default:
		return KernelConvolution(dst, field, g, op.Kernel, op.Workers)
	}
}
