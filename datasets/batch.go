package datasets

import (
	"fmt"

	"github.com/gomlx/gomlx/pkg/core/tensors"
)

// LandmarkBatchFlat stores a batch in flat contiguous buffers.
//
// Images is [BatchSize, Channels, Height, Width] and Landmarks is
// [BatchSize, NumLandmarks, 2], both row-major.
type LandmarkBatchFlat struct {
	Images    []float32
	Landmarks []float32
	Indices   []int

	BatchSize    int
	Channels     int
	Height       int
	Width        int
	NumLandmarks int
}

// Collate flattens samples into one batch. Samples that have not been through
// ToTensor are converted to RGB channels-first on the fly. Every sample must
// have the same image and landmark shapes.
func Collate(samples []Sample) (*LandmarkBatchFlat, error) {
	if len(samples) == 0 {
		return &LandmarkBatchFlat{}, nil
	}

	pixels := make([]*Pixels, len(samples))
	for i, s := range samples {
		p := s.Pixels
		if p == nil {
			if s.Image == nil {
				return nil, fmt.Errorf("sample %d (batch position %d) has neither image nor pixels", s.Index, i)
			}
			p = PixelsFromImage(s.Image, 3)
		}
		if p.Layout != ChannelsFirst {
			p = p.ChannelsFirst()
		}
		pixels[i] = p
	}

	first := pixels[0]
	b := &LandmarkBatchFlat{
		Indices:      make([]int, len(samples)),
		BatchSize:    len(samples),
		Channels:     first.Channels,
		Height:       first.Height,
		Width:        first.Width,
		NumLandmarks: len(samples[0].Landmarks),
	}
	imageSize := b.Channels * b.Height * b.Width
	landmarkSize := 2 * b.NumLandmarks
	b.Images = make([]float32, b.BatchSize*imageSize)
	b.Landmarks = make([]float32, b.BatchSize*landmarkSize)

	for i, s := range samples {
		p := pixels[i]
		if p.Channels != b.Channels || p.Height != b.Height || p.Width != b.Width {
			return nil, fmt.Errorf("inconsistent image shape at example %d: expected %v, got %v",
				i, first.Dims(), p.Dims())
		}
		if len(s.Landmarks) != b.NumLandmarks {
			return nil, fmt.Errorf("inconsistent landmark count at example %d: expected %d, got %d",
				i, b.NumLandmarks, len(s.Landmarks))
		}
		copy(b.Images[i*imageSize:], p.Data)
		copy(b.Landmarks[i*landmarkSize:], s.LandmarksFlat())
		b.Indices[i] = s.Index
	}

	return b, nil
}

// ToGomlxTensors converts the batch to gomlx tensors shaped
// [B, C, H, W] and [B, L, 2].
func (b *LandmarkBatchFlat) ToGomlxTensors() (images *tensors.Tensor, landmarks *tensors.Tensor, err error) {
	if b.BatchSize == 0 {
		return nil, nil, fmt.Errorf("cannot convert an empty batch to tensors")
	}
	images = tensors.FromFlatDataAndDimensions(b.Images, b.BatchSize, b.Channels, b.Height, b.Width)
	landmarks = tensors.FromFlatDataAndDimensions(b.Landmarks, b.BatchSize, b.NumLandmarks, 2)
	return images, landmarks, nil
}
