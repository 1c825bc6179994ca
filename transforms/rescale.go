package transforms

import (
	"fmt"

	"github.com/Noofbiz/faceLandmarks/datasets"
	"github.com/disintegration/imaging"
)

// Rescale resizes the image and scales the landmarks with it.
type Rescale struct {
	// size is the target for the shorter edge; zero when height and width are explicit.
	size          int
	height, width int
	filter        imaging.ResampleFilter
}

// NewRescale scales the shorter image edge to size and the longer one in
// proportion, preserving the aspect ratio.
func NewRescale(size int) *Rescale {
	return &Rescale{size: size, filter: imaging.Linear}
}

// NewRescaleTo resizes to exactly height x width.
func NewRescaleTo(height, width int) *Rescale {
	return &Rescale{height: height, width: width, filter: imaging.Linear}
}

// WithFilter sets the resampling filter. The default is imaging.Linear.
func (r *Rescale) WithFilter(filter imaging.ResampleFilter) *Rescale {
	r.filter = filter
	return r
}

func (r *Rescale) String() string {
	if r.size > 0 {
		return fmt.Sprintf("Rescale(%d)", r.size)
	}
	return fmt.Sprintf("Rescale(%d, %d)", r.height, r.width)
}

// OutputSize returns the size an h x w image is resized to. Sizes are
// truncated to integers and never drop below 1.
func (r *Rescale) OutputSize(h, w int) (newH, newW int) {
	if r.size <= 0 {
		return r.height, r.width
	}
	if h > w {
		newH, newW = int(float64(r.size)*float64(h)/float64(w)), r.size
	} else {
		newH, newW = r.size, int(float64(r.size)*float64(w)/float64(h))
	}
	return max(newH, 1), max(newW, 1)
}

// Apply implements datasets.Transform.
func (r *Rescale) Apply(s datasets.Sample, _ datasets.RandSource) (datasets.Sample, error) {
	if r.size <= 0 && (r.height <= 0 || r.width <= 0) {
		return datasets.Sample{}, fmt.Errorf("%s: output size must be positive", r)
	}
	if err := requireImage(s, r.String()); err != nil {
		return datasets.Sample{}, err
	}

	h, w := s.Size()
	newH, newW := r.OutputSize(h, w)
	img := imaging.Resize(s.Image, newW, newH, r.filter)

	// x follows the width and y the height.
	sx := float64(newW) / float64(w)
	sy := float64(newH) / float64(h)
	landmarks := make([]datasets.Point, len(s.Landmarks))
	for i, p := range s.Landmarks {
		landmarks[i] = datasets.Point{X: p.X * sx, Y: p.Y * sy}
	}

	return datasets.Sample{Index: s.Index, Image: img, Landmarks: landmarks}, nil
}
