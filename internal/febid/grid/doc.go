// Package grid owns the cell-state arrays of the FEBID simulation.
//
// Responsibilities: precursor density and deposit volume storage, the
// solid / surface / semi-surface / ghost classification, and the ghost
// refresh that gives diffusion stencils a reflecting boundary.
// Key types: Grid.
//
// Classification model:
//
//   - solid: deposit volume at the full-cell threshold (substrate included)
//   - surface: solid cell with a non-solid face neighbour
//   - semi-surface: non-solid cell with a solid face neighbour; holds
//     precursor, diffuses and grows
//   - ghost: non-semi-surface cell with a semi-surface face neighbour;
//     holds the mean density of those neighbours
//
// Domain edges behave as ghost padding: stencil reads past the array
// return the centre value.
package grid
