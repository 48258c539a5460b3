package collage

import "errors"

// ErrEncode indicates a grid image could not be encoded.
var ErrEncode = errors.New("collage: encode grid")
