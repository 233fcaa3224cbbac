// Package febid holds the types shared by the FEBID simulation layers.
//
// Responsibilities: cell coordinates and the error taxonomy used by every
// engine package (grid, beam, diffusion, rk4, growth, process).
//
// Dependency rule: this package imports nothing from the engine. Engine
// packages may import febid and the layers beneath them, never the
// process loop.
package febid
