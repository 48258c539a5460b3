package collage

import "github.com/google/uuid"

// Default grid geometry.
const (
	DefaultGridSize   = 9
	DefaultColumns    = 3
	DefaultCellWidth  = 1024
	DefaultCellHeight = 600
)

// Option applies a configuration option to a Packer.
type Option func(*Packer)

// WithGridSize sets the number of cells per grid.
func WithGridSize(n int) Option {
	return func(p *Packer) {
		if n > 0 {
			p.size = n
		}
	}
}

// WithColumns sets the number of grid columns.
func WithColumns(n int) Option {
	return func(p *Packer) {
		if n > 0 {
			p.cols = n
		}
	}
}

// WithCellSize sets the pixel size every crop is scaled to.
func WithCellSize(w, h int) Option {
	return func(p *Packer) {
		if w > 0 && h > 0 {
			p.cellW, p.cellH = w, h
		}
	}
}

// WithIDGenerator replaces the grid id source.
func WithIDGenerator(gen func() string) Option {
	return func(p *Packer) {
		if gen != nil {
			p.newID = gen
		}
	}
}

func shortID() string { return uuid.NewString()[:8] }
