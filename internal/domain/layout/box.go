// Package layout maps answer regions on scanned pages to rubric labels.
// Region detection itself is an external collaborator behind Detector.
package layout

import (
	"encoding/json"
	"fmt"
	"image"
	"image/draw"
)

// Crop margins around a detected box. The generous top margin keeps the
// question text printed above an answer box.
const (
	cropTop    = 150
	cropSide   = 10
	cropBottom = 20
	minHeader  = 50
)

// Box is an answer region in page pixels, serialized as [x, y, w, h].
type Box struct {
	X, Y, W, H int
}

// MarshalJSON implements json.Marshaler.
func (b Box) MarshalJSON() ([]byte, error) {
	return json.Marshal([4]int{b.X, b.Y, b.W, b.H})
}

// UnmarshalJSON implements json.Unmarshaler.
func (b *Box) UnmarshalJSON(data []byte) error {
	var v []int
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("%w: %v", ErrBadBox, err)
	}
	if len(v) != 4 {
		return ErrBadBox
	}
	*b = Box{X: v[0], Y: v[1], W: v[2], H: v[3]}
	return nil
}

// Rect returns the box as a rectangle.
func (b Box) Rect() image.Rectangle { return image.Rect(b.X, b.Y, b.X+b.W, b.Y+b.H) }

// CropRect returns the region cut for b, padded and clipped to bounds.
func CropRect(b Box, bounds image.Rectangle) image.Rectangle {
	r := image.Rect(b.X-cropSide, b.Y-cropTop, b.X+b.W+cropSide, b.Y+b.H+cropBottom)
	return r.Intersect(bounds)
}

type subImager interface {
	SubImage(r image.Rectangle) image.Image
}

// Crop cuts the padded box out of page. ok is false when nothing remains.
func Crop(page image.Image, b Box) (image.Image, bool) {
	r := CropRect(b, page.Bounds())
	if r.Empty() {
		return nil, false
	}
	return sub(page, r), true
}

// HeaderCutoff is the y coordinate ending the identity header of a first
// page, ratio of the page height.
func HeaderCutoff(bounds image.Rectangle, ratio float64) int {
	return int(float64(bounds.Dy()) * ratio)
}

// Header returns the identity header of a first page. ok is false when the
// header would be too thin to read.
func Header(page image.Image, ratio float64) (image.Image, bool) {
	b := page.Bounds()
	cut := HeaderCutoff(b, ratio)
	if cut < minHeader {
		return nil, false
	}
	return sub(page, image.Rect(b.Min.X, b.Min.Y, b.Max.X, b.Min.Y+cut)), true
}

func sub(img image.Image, r image.Rectangle) image.Image {
	if s, ok := img.(subImager); ok {
		return s.SubImage(r)
	}
	out := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(out, out.Bounds(), img, r.Min, draw.Src)
	return out
}
