package layout

import (
	"context"
	"fmt"
	"image"
)

// DefaultScanLimit bounds how many submissions are probed for a template.
const DefaultScanLimit = 20

// Detector finds candidate answer boxes on one page, in reading order.
// page is zero based; page 0 carries the identity header.
type Detector interface {
	Detect(ctx context.Context, page int, img image.Image) ([]Box, error)
}

// DetectorFunc adapts a function to Detector.
type DetectorFunc func(ctx context.Context, page int, img image.Image) ([]Box, error)

// Detect implements Detector.
func (f DetectorFunc) Detect(ctx context.Context, page int, img image.Image) ([]Box, error) {
	return f(ctx, page, img)
}

// PageBoxes lists the boxes of one page of a precomputed layout map.
type PageBoxes struct {
	Page  int   `json:"page"`
	Boxes []Box `json:"boxes"`
}

// FixedDetector answers from a precomputed layout map regardless of the
// image content.
type FixedDetector struct {
	pages map[int][]Box
}

// NewFixedDetector builds a detector from a layout map.
func NewFixedDetector(layoutMap []PageBoxes) *FixedDetector {
	d := &FixedDetector{pages: make(map[int][]Box, len(layoutMap))}
	for _, p := range layoutMap {
		d.pages[p.Page] = append(d.pages[p.Page], p.Boxes...)
	}
	return d
}

// Detect implements Detector.
func (d *FixedDetector) Detect(_ context.Context, page int, _ image.Image) ([]Box, error) {
	boxes := d.pages[page]
	out := make([]Box, len(boxes))
	copy(out, boxes)
	return out, nil
}

// Region is a labelled answer box on a page.
type Region struct {
	Page  int    `json:"page"`
	Box   Box    `json:"box"`
	Label string `json:"label"`
}

// Template assigns every answer box of the exam layout to a rubric label.
type Template []Region

// ExtraLabel names the n-th box beyond the rubric's label list.
func ExtraLabel(n int) string { return fmt.Sprintf("Extra_%d", n) }

// Assign labels boxes in reading order. Boxes past the label list become
// Extra_{n} where n is the running box position.
func Assign(labels []string, pages []PageBoxes) Template {
	var out Template
	ptr := 0
	for _, p := range pages {
		for _, b := range p.Boxes {
			lbl := ExtraLabel(ptr)
			if ptr < len(labels) {
				lbl = labels[ptr]
			}
			out = append(out, Region{Page: p.Page, Box: b, Label: lbl})
			ptr++
		}
	}
	return out
}

// FromMap labels a precomputed layout map.
func FromMap(labels []string, layoutMap []PageBoxes) Template {
	return Assign(labels, layoutMap)
}

// Count returns the number of boxes across pages.
func Count(pages []PageBoxes) int {
	n := 0
	for _, p := range pages {
		n += len(p.Boxes)
	}
	return n
}

// Options controls template probing.
type Options struct {
	ScanLimit   int
	IgnoreFirst bool // drop the first box of page 0, usually the name field
}

// DetectPages runs det over every page of one submission.
func DetectPages(ctx context.Context, det Detector, pages []image.Image, ignoreFirst bool) ([]PageBoxes, error) {
	out := make([]PageBoxes, 0, len(pages))
	for i, img := range pages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		boxes, err := det.Detect(ctx, i, img)
		if err != nil {
			return nil, fmt.Errorf("detect page %d: %w", i, err)
		}
		if ignoreFirst && i == 0 && len(boxes) > 0 {
			boxes = boxes[1:]
		}
		out = append(out, PageBoxes{Page: i, Boxes: boxes})
	}
	return out, nil
}

// Result is a determined template.
type Result struct {
	Template Template
	// Source is the submission position the template was read from, -1 for
	// a precomputed map.
	Source int
	// Fallback is set when no probed submission matched the label count and
	// the first submission's layout was used anyway.
	Fallback bool
	// Errors lists detection failures met while probing.
	Errors []error
}

// Determine finds the exam template. Up to ScanLimit submissions are probed
// for one whose box count equals the label count; when none matches, the
// first submission's layout is used and Fallback is set. Determine never
// blocks the batch on a bad layout; it only fails when ctx is done.
func Determine(ctx context.Context, det Detector, submissions [][]image.Image, labels []string, opts Options) (Result, error) {
	if det == nil {
		return Result{}, ErrNoDetector
	}
	limit := opts.ScanLimit
	if limit <= 0 {
		limit = DefaultScanLimit
	}

	res := Result{Source: -1}
	for i, pages := range submissions {
		if i >= limit {
			break
		}
		if len(pages) == 0 {
			continue
		}
		detected, err := DetectPages(ctx, det, pages, opts.IgnoreFirst)
		if err != nil {
			if ctx.Err() != nil {
				return Result{}, ctx.Err()
			}
			res.Errors = append(res.Errors, fmt.Errorf("submission %d: %w", i, err))
			continue
		}
		if Count(detected) == len(labels) {
			res.Template = Assign(labels, detected)
			res.Source = i
			return res, nil
		}
	}

	res.Fallback = true
	if len(submissions) == 0 || len(submissions[0]) == 0 {
		return res, nil
	}
	detected, err := DetectPages(ctx, det, submissions[0], opts.IgnoreFirst)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		res.Errors = append(res.Errors, fmt.Errorf("submission 0: %w", err))
		return res, nil
	}
	res.Template = Assign(labels, detected)
	res.Source = 0
	return res, nil
}
