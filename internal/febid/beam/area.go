// Package beam maps the electron beam onto the growing surface.
//
// DefineIrradiatedArea projects a disk footprint onto the top active layer
// of the grid; PEFlux evaluates a Gaussian flux density over that footprint.
package beam

import (
	"fmt"
	"math"
	"strings"

	"github.com/banshee-data/febid/internal/febid"
	"github.com/banshee-data/febid/internal/febid/grid"
)

// Policy selects how footprint distance is measured on a non-flat surface.
type Policy int

const (
	// ProjectVertical measures distance in the xy plane and drops each
	// column straight down onto its top active cell.
	ProjectVertical Policy = iota
	// ProjectSurface measures straight-line (Euclidean) 3D distance from
	// the beam hit point to the top active cell of each column. It is not
	// a path length along the surface. PEFlux still normalises over the
	// planar lattice disk, so on a non-flat surface the delivered current
	// falls below the beam current.
	ProjectSurface
)

func (p Policy) String() string {
	switch p {
	case ProjectVertical:
		return "vertical"
	case ProjectSurface:
		return "surface"
	default:
		return fmt.Sprintf("Policy(%d)", int(p))
	}
}

// ParsePolicy accepts "vertical" or "surface"; empty selects vertical.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "vertical":
		return ProjectVertical, nil
	case "surface":
		return ProjectSurface, nil
	default:
		return 0, febid.NewConfigurationError("projection", "unknown policy %q", s)
	}
}

// Area is the ordered set of irradiated cells. Coords are sorted by y then x;
// Dist is the distance of each cell from the beam centre in cells.
type Area struct {
	Centre     febid.Point
	Radius     float64
	Coords     []febid.Coord
	Index      []int
	Dist       []float64
	Degenerate bool // footprint collapsed to the nearest cell
}

// Len returns the number of irradiated cells.
func (a Area) Len() int { return len(a.Index) }

// DefineIrradiatedArea selects the columns within radius of centre and maps
// each to its top active cell. A radius that rounds to zero cells selects the
// single nearest column. A footprint that misses the grid returns an
// InvalidGeometry error.
func DefineIrradiatedArea(g *grid.Grid, centre febid.Point, radius float64, policy Policy) (Area, error) {
	area := Area{Centre: centre, Radius: radius}
	cx, cy := int(math.Round(centre.X)), int(math.Round(centre.Y))

	if math.Round(radius) < 1 {
		if cx < 0 || cx >= g.Nx || cy < 0 || cy >= g.Ny {
			return Area{}, &febid.GeometryError{Coord: febid.Coord{X: cx, Y: cy}, Reason: "beam centre outside grid"}
		}
		z, ok := g.TopActive(cx, cy)
		if !ok {
			return Area{}, &febid.GeometryError{Coord: febid.Coord{X: cx, Y: cy}, Reason: "no active cell under beam"}
		}
		area.Degenerate = true
		area.append(g, febid.Coord{X: cx, Y: cy, Z: z}, math.Hypot(float64(cx)-centre.X, float64(cy)-centre.Y))
		return area, nil
	}

	hitZ := 0
	if policy == ProjectSurface {
		hx, hy := clamp(cx, 0, g.Nx-1), clamp(cy, 0, g.Ny-1)
		if z, ok := g.TopActive(hx, hy); ok {
			hitZ = z
		}
	}

	r2 := radius*radius + 1e-9
	y0, y1 := int(math.Floor(centre.Y-radius)), int(math.Ceil(centre.Y+radius))
	x0, x1 := int(math.Floor(centre.X-radius)), int(math.Ceil(centre.X+radius))
	for y := y0; y <= y1; y++ {
		if y < 0 || y >= g.Ny {
			continue
		}
		for x := x0; x <= x1; x++ {
			if x < 0 || x >= g.Nx {
				continue
			}
			dx, dy := float64(x)-centre.X, float64(y)-centre.Y
			d2 := dx*dx + dy*dy
			if d2 > r2 {
				continue
			}
			z, ok := g.TopActive(x, y)
			if !ok {
				continue
			}
			if policy == ProjectSurface {
				dz := float64(z - hitZ)
				d2 += dz * dz
				if d2 > r2 {
					continue
				}
			}
			area.append(g, febid.Coord{X: x, Y: y, Z: z}, math.Sqrt(d2))
		}
	}

	if area.Len() == 0 {
		return Area{}, &febid.GeometryError{Coord: febid.Coord{X: cx, Y: cy}, Reason: "beam footprint outside grid"}
	}
	return area, nil
}

func (a *Area) append(g *grid.Grid, c febid.Coord, d float64) {
	a.Coords = append(a.Coords, c)
	a.Index = append(a.Index, g.Idx(c.X, c.Y, c.Z))
	a.Dist = append(a.Dist, d)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
