// Package collage packs per-label answer crops of many submissions into
// grid images and scatters the per-cell grades back to their owners.
package collage

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"

	xdraw "golang.org/x/image/draw"
)

// Cell is one grid slot.
type Cell struct {
	Index      int    `json:"index"`
	IsEmpty    bool   `json:"is_empty"`
	Submission string `json:"submission,omitempty"`
}

// Manifest records which submission owns each cell of a grid.
type Manifest struct {
	GridID string `json:"grid_id"`
	Label  string `json:"label"`
	Cells  []Cell `json:"cells"`
}

// Populated returns the indices of non-empty cells.
func (m Manifest) Populated() []int {
	out := make([]int, 0, len(m.Cells))
	for _, c := range m.Cells {
		if !c.IsEmpty {
			out = append(out, c.Index)
		}
	}
	return out
}

// Crop is one submission's answer region for a label.
type Crop struct {
	Submission string
	Image      image.Image
}

// Grid is a packed image with its manifest.
type Grid struct {
	Manifest Manifest
	Image    *image.RGBA
}

// PNG encodes the grid image.
func (g Grid) PNG() ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, g.Image); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncode, err)
	}
	return buf.Bytes(), nil
}

// Packer lays crops out row-major on a white canvas.
type Packer struct {
	size, cols   int
	cellW, cellH int
	newID        func() string
}

// NewPacker creates a packer with configuration options.
func NewPacker(opts ...Option) *Packer {
	p := &Packer{
		size:  DefaultGridSize,
		cols:  DefaultColumns,
		cellW: DefaultCellWidth,
		cellH: DefaultCellHeight,
		newID: shortID,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Size returns the number of cells per grid.
func (p *Packer) Size() int { return p.size }

// Pack splits crops into grids of Size cells. Every grid has a full cell
// list; cells past the last crop are empty.
func (p *Packer) Pack(label string, crops []Crop) []Grid {
	var out []Grid
	for start := 0; start < len(crops); start += p.size {
		end := start + p.size
		if end > len(crops) {
			end = len(crops)
		}
		out = append(out, p.pack(label, crops[start:end]))
	}
	return out
}

func (p *Packer) pack(label string, crops []Crop) Grid {
	rows := (p.size + p.cols - 1) / p.cols
	canvas := image.NewRGBA(image.Rect(0, 0, p.cols*p.cellW, rows*p.cellH))
	xdraw.Draw(canvas, canvas.Bounds(), image.NewUniform(color.White), image.Point{}, xdraw.Src)

	m := Manifest{GridID: p.newID(), Label: label, Cells: make([]Cell, p.size)}
	for i := 0; i < p.size; i++ {
		m.Cells[i] = Cell{Index: i, IsEmpty: true}
		if i >= len(crops) || crops[i].Image == nil {
			continue
		}
		r, c := i/p.cols, i%p.cols
		dst := image.Rect(c*p.cellW, r*p.cellH, (c+1)*p.cellW, (r+1)*p.cellH)
		src := crops[i].Image
		xdraw.CatmullRom.Scale(canvas, dst, src, src.Bounds(), xdraw.Src, nil)
		m.Cells[i].IsEmpty = false
		m.Cells[i].Submission = crops[i].Submission
	}
	return Grid{Manifest: m, Image: canvas}
}
