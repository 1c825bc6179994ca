package datasets

import "github.com/pkg/errors"

// Error kinds returned by the annotation reader, the dataset and the transforms.
// They are always wrapped with context, so test for them with errors.Is.
var (
	ErrNotFound    = errors.New("not found")
	ErrFormat      = errors.New("malformed annotation")
	ErrIndex       = errors.New("index out of range")
	ErrDecode      = errors.New("cannot decode image")
	ErrInvalidCrop = errors.New("crop does not fit in image")
)
