package transforms

import (
	"fmt"
	"image"

	"github.com/Noofbiz/faceLandmarks/datasets"
	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
)

// RandomCrop cuts a fixed size window at a random position and moves the
// landmarks into the window's coordinates.
type RandomCrop struct {
	height, width int
}

// NewRandomCrop crops a size x size square.
func NewRandomCrop(size int) *RandomCrop {
	return NewRandomCropTo(size, size)
}

// NewRandomCropTo crops a height x width window.
func NewRandomCropTo(height, width int) *RandomCrop {
	return &RandomCrop{height: height, width: width}
}

func (c *RandomCrop) String() string {
	if c.height == c.width {
		return fmt.Sprintf("RandomCrop(%d)", c.height)
	}
	return fmt.Sprintf("RandomCrop(%d, %d)", c.height, c.width)
}

// Apply implements datasets.Transform. The vertical offset is drawn first,
// uniformly from [0, h-height], then the horizontal one from [0, w-width].
func (c *RandomCrop) Apply(s datasets.Sample, rng datasets.RandSource) (datasets.Sample, error) {
	if err := c.check(s); err != nil {
		return datasets.Sample{}, err
	}
	if rng == nil {
		return datasets.Sample{}, fmt.Errorf("%s: no random source", c)
	}
	h, w := s.Size()
	top := rng.Intn(h - c.height + 1)
	left := rng.Intn(w - c.width + 1)
	return c.CropAt(s, top, left)
}

// CropAt crops the window whose top-left corner is at (left, top).
func (c *RandomCrop) CropAt(s datasets.Sample, top, left int) (datasets.Sample, error) {
	if err := c.check(s); err != nil {
		return datasets.Sample{}, err
	}
	h, w := s.Size()
	if top < 0 || left < 0 || top+c.height > h || left+c.width > w {
		return datasets.Sample{}, errors.Wrapf(datasets.ErrInvalidCrop, "%s at top=%d left=%d on a %dx%d image",
			c, top, left, h, w)
	}

	b := s.Image.Bounds()
	rect := image.Rect(b.Min.X+left, b.Min.Y+top, b.Min.X+left+c.width, b.Min.Y+top+c.height)
	img := imaging.Crop(s.Image, rect)

	landmarks := make([]datasets.Point, len(s.Landmarks))
	for i, p := range s.Landmarks {
		landmarks[i] = datasets.Point{X: p.X - float64(left), Y: p.Y - float64(top)}
	}

	return datasets.Sample{Index: s.Index, Image: img, Landmarks: landmarks}, nil
}

func (c *RandomCrop) check(s datasets.Sample) error {
	if c.height <= 0 || c.width <= 0 {
		return errors.Wrapf(datasets.ErrInvalidCrop, "%s: crop size must be positive", c)
	}
	if err := requireImage(s, c.String()); err != nil {
		return err
	}
	h, w := s.Size()
	if h < c.height || w < c.width {
		return errors.Wrapf(datasets.ErrInvalidCrop, "%s on a %dx%d image", c, h, w)
	}
	return nil
}
