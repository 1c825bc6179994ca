// Package preview renders samples with their landmarks drawn on top, for
// checking annotations and transforms by eye.
package preview

import (
	"image"
	"image/color"
	"os"
	"path/filepath"

	"github.com/Noofbiz/faceLandmarks/datasets"
	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// LandmarkColor is the color landmarks are scattered in.
var LandmarkColor = color.RGBA{R: 220, G: 20, B: 20, A: 255}

// pointsPerPixel sets the saved plot size from the image size. Plots are
// never smaller than minSide on either side so the title still fits.
const (
	pointsPerPixel = 2
	minSide        = 3 * vg.Inch
)

// Landmarks returns a plot with img as background and pts scattered over it.
// Plot y grows upwards, so y is flipped to keep points on their pixels.
func Landmarks(img image.Image, pts []datasets.Point, title string) (*plot.Plot, error) {
	if img == nil {
		return nil, errors.New("no image to preview")
	}
	b := img.Bounds()
	w, h := float64(b.Dx()), float64(b.Dy())

	p := plot.New()
	p.Title.Text = title
	p.HideAxes()
	p.X.Min, p.X.Max = 0, w
	p.Y.Min, p.Y.Max = 0, h
	p.Add(plotter.NewImage(img, 0, 0, w, h))

	if len(pts) > 0 {
		xys := make(plotter.XYs, len(pts))
		for i, pt := range pts {
			xys[i] = plotter.XY{X: pt.X, Y: h - pt.Y}
		}
		sc, err := plotter.NewScatter(xys)
		if err != nil {
			return nil, err
		}
		sc.GlyphStyle.Color = LandmarkColor
		sc.GlyphStyle.Radius = vg.Points(1.5)
		p.Add(sc)
	}
	return p, nil
}

// SaveLandmarks writes a PNG (or any format gonum plot infers from the
// extension) of the sample with its landmarks.
func SaveLandmarks(path string, s datasets.Sample, title string) error {
	p, err := Landmarks(sampleImage(s), s.Landmarks, title)
	if err != nil {
		return errors.WithMessagef(err, "sample %d", s.Index)
	}
	h, w := s.Size()
	return save(p, path, w, h)
}

// Grid lays the samples out left to right, border pixels apart, and returns
// the combined image along with every landmark moved into its coordinates.
func Grid(samples []datasets.Sample, border int) (image.Image, []datasets.Point) {
	border = max(border, 0)
	width, height := border, 0
	for _, s := range samples {
		h, w := s.Size()
		width += w + border
		height = max(height, h)
	}
	height += 2 * border

	grid := imaging.New(width, height, color.White)
	var pts []datasets.Point
	x := border
	for _, s := range samples {
		img := sampleImage(s)
		if img == nil {
			continue
		}
		grid = imaging.Paste(grid, img, image.Pt(x, border))
		for _, pt := range s.Landmarks {
			pts = append(pts, datasets.Point{X: pt.X + float64(x), Y: pt.Y + float64(border)})
		}
		x += img.Bounds().Dx() + border
	}
	return grid, pts
}

// SaveGrid writes a preview of a whole batch.
func SaveGrid(path string, samples []datasets.Sample, border int) error {
	if len(samples) == 0 {
		return errors.New("no samples to preview")
	}
	img, pts := Grid(samples, border)
	p, err := Landmarks(img, pts, "Batch from dataloader")
	if err != nil {
		return err
	}
	b := img.Bounds()
	return save(p, path, b.Dx(), b.Dy())
}

// sampleImage returns the image of s, rebuilding it from the pixel array
// when only that is left.
func sampleImage(s datasets.Sample) image.Image {
	if s.Image != nil {
		return s.Image
	}
	if s.Pixels != nil {
		return s.Pixels.Image()
	}
	return nil
}

func save(p *plot.Plot, path string, w, h int) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrapf(err, "failed to create %s", dir)
		}
	}
	width := max(vg.Length(w*pointsPerPixel), minSide)
	height := max(vg.Length(h*pointsPerPixel), minSide)
	if err := p.Save(width, height, path); err != nil {
		return errors.Wrapf(err, "failed to save preview %s", path)
	}
	return nil
}
