package febid

import "fmt"

// Coord is a cell position in grid index space.
type Coord struct {
	X, Y, Z int
}

func (c Coord) String() string {
	return fmt.Sprintf("(%d,%d,%d)", c.X, c.Y, c.Z)
}

// Point is a position in fractional cell units, used for beam centres.
type Point struct {
	X, Y float64
}
