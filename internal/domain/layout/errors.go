package layout

import "errors"

var (
	// ErrBadBox indicates a layout box that is not [x, y, w, h].
	ErrBadBox = errors.New("layout: box must be [x, y, w, h]")
	// ErrNoDetector indicates template probing without a detector.
	ErrNoDetector = errors.New("layout: no detector")
)
