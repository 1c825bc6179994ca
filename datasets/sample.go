package datasets

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"github.com/gomlx/gomlx/pkg/core/tensors"
)

// DefaultNumLandmarks is the number of landmark points per face in the
// annotation files this package was written for.
const DefaultNumLandmarks = 68

// Point is a landmark location in image pixel coordinates.
type Point struct {
	X float64
	Y float64
}

// RandSource is the only randomness a Transform may use. *math/rand.Rand
// satisfies it.
type RandSource interface {
	Intn(n int) int
}

// Transform maps one Sample to a new Sample. Implementations keep only the
// parameters they were built with; all randomness comes from rng.
type Transform interface {
	Apply(s Sample, rng RandSource) (Sample, error)
}

// Sample is one (image, landmarks) pair.
//
// Pixels stays nil until a layout conversion step (transforms.ToTensor) ran.
// Image is kept afterwards so samples can still be previewed.
type Sample struct {
	// Index is the annotation row the sample was built from.
	Index     int
	Image     image.Image
	Landmarks []Point
	Pixels    *Pixels
}

// Size returns the spatial size of the sample, from the image if present and
// from the pixel array otherwise.
func (s Sample) Size() (height, width int) {
	if s.Image != nil {
		b := s.Image.Bounds()
		return b.Dy(), b.Dx()
	}
	if s.Pixels != nil {
		return s.Pixels.Height, s.Pixels.Width
	}
	return 0, 0
}

// LandmarksFlat returns the landmarks as a contiguous [x0, y0, x1, y1, ...]
// buffer, i.e. a row-major [L, 2] array.
func (s Sample) LandmarksFlat() []float32 {
	flat := make([]float32, 2*len(s.Landmarks))
	for i, p := range s.Landmarks {
		flat[2*i] = float32(p.X)
		flat[2*i+1] = float32(p.Y)
	}
	return flat
}

// ToGomlxTensors converts the sample to gomlx tensors: the image shaped as the
// pixel array layout (normally [C, H, W]) and the landmarks shaped [L, 2].
func (s Sample) ToGomlxTensors() (img *tensors.Tensor, landmarks *tensors.Tensor, err error) {
	if s.Pixels == nil {
		return nil, nil, fmt.Errorf("sample %d has no pixel array, apply ToTensor first", s.Index)
	}
	img = s.Pixels.ToGomlxTensor()
	landmarks = tensors.FromFlatDataAndDimensions(s.LandmarksFlat(), len(s.Landmarks), 2)
	return img, landmarks, nil
}

// ClonePoints returns a copy of pts so transforms never alias their input.
func ClonePoints(pts []Point) []Point {
	out := make([]Point, len(pts))
	copy(out, pts)
	return out
}

// Layout is the axis order of a Pixels array.
type Layout int

const (
	// ChannelsLast is (height, width, channels), the order images are decoded in.
	ChannelsLast Layout = iota
	// ChannelsFirst is (channels, height, width), the order tensor models expect.
	ChannelsFirst
)

func (l Layout) String() string {
	if l == ChannelsFirst {
		return "CHW"
	}
	return "HWC"
}

// Pixels is a dense float32 image array with values in [0, 1].
type Pixels struct {
	Data     []float32
	Channels int
	Height   int
	Width    int
	Layout   Layout
}

// PixelsFromImage converts img to a ChannelsLast array with 3 (RGB) or 4
// (RGBA, non premultiplied) channels.
func PixelsFromImage(img image.Image, channels int) *Pixels {
	if channels != 4 {
		channels = 3
	}
	nrgba := imaging.Clone(img)
	h, w := nrgba.Bounds().Dy(), nrgba.Bounds().Dx()
	p := &Pixels{
		Data:     make([]float32, h*w*channels),
		Channels: channels,
		Height:   h,
		Width:    w,
		Layout:   ChannelsLast,
	}
	i := 0
	for y := range h {
		row := nrgba.Pix[y*nrgba.Stride : y*nrgba.Stride+4*w]
		for x := range w {
			for c := range channels {
				p.Data[i] = float32(row[4*x+c]) / 255
				i++
			}
		}
	}
	return p
}

// Dims returns the array dimensions in storage order.
func (p *Pixels) Dims() []int {
	if p.Layout == ChannelsFirst {
		return []int{p.Channels, p.Height, p.Width}
	}
	return []int{p.Height, p.Width, p.Channels}
}

// ChannelsFirst returns a (C, H, W) copy of the array.
func (p *Pixels) ChannelsFirst() *Pixels {
	out := p.emptyLike(ChannelsFirst)
	if p.Layout == ChannelsFirst {
		copy(out.Data, p.Data)
		return out
	}
	plane := p.Height * p.Width
	for y := range p.Height {
		for x := range p.Width {
			src := (y*p.Width + x) * p.Channels
			for c := range p.Channels {
				out.Data[c*plane+y*p.Width+x] = p.Data[src+c]
			}
		}
	}
	return out
}

// ChannelsLast returns a (H, W, C) copy of the array. It is the inverse of
// ChannelsFirst.
func (p *Pixels) ChannelsLast() *Pixels {
	out := p.emptyLike(ChannelsLast)
	if p.Layout == ChannelsLast {
		copy(out.Data, p.Data)
		return out
	}
	plane := p.Height * p.Width
	for c := range p.Channels {
		for y := range p.Height {
			for x := range p.Width {
				out.Data[(y*p.Width+x)*p.Channels+c] = p.Data[c*plane+y*p.Width+x]
			}
		}
	}
	return out
}

func (p *Pixels) emptyLike(layout Layout) *Pixels {
	return &Pixels{
		Data:     make([]float32, len(p.Data)),
		Channels: p.Channels,
		Height:   p.Height,
		Width:    p.Width,
		Layout:   layout,
	}
}

// Image converts the array back to an 8 bit image. Missing alpha is opaque.
func (p *Pixels) Image() *image.NRGBA {
	hwc := p
	if p.Layout != ChannelsLast {
		hwc = p.ChannelsLast()
	}
	img := image.NewNRGBA(image.Rect(0, 0, p.Width, p.Height))
	for y := range p.Height {
		for x := range p.Width {
			src := (y*p.Width + x) * p.Channels
			dst := y*img.Stride + 4*x
			img.Pix[dst+3] = 255
			for c := 0; c < p.Channels && c < 4; c++ {
				img.Pix[dst+c] = toByte(hwc.Data[src+c])
			}
		}
	}
	return img
}

// ToGomlxTensor converts the array to a float32 gomlx tensor with Dims().
func (p *Pixels) ToGomlxTensor() *tensors.Tensor {
	return tensors.FromFlatDataAndDimensions(p.Data, p.Dims()...)
}

func toByte(v float32) uint8 {
	v = v*255 + 0.5
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v)
}
