package transforms

import (
	"github.com/Noofbiz/faceLandmarks/datasets"
)

// ToTensor converts the image to a channels-first float32 array, the layout
// gomlx image models take. Landmarks are unchanged; they become a [L, 2]
// tensor in datasets.Sample.ToGomlxTensors.
type ToTensor struct {
	withAlpha bool
}

// NewToTensor converts to 3 channels (RGB).
func NewToTensor() *ToTensor {
	return &ToTensor{}
}

// WithAlpha keeps the alpha channel, producing 4 channels.
func (t *ToTensor) WithAlpha() *ToTensor {
	t.withAlpha = true
	return t
}

func (t *ToTensor) String() string {
	if t.withAlpha {
		return "ToTensor(RGBA)"
	}
	return "ToTensor"
}

// Apply implements datasets.Transform.
func (t *ToTensor) Apply(s datasets.Sample, _ datasets.RandSource) (datasets.Sample, error) {
	if err := requireImage(s, t.String()); err != nil {
		return datasets.Sample{}, err
	}
	channels := 3
	if t.withAlpha {
		channels = 4
	}
	return datasets.Sample{
		Index:     s.Index,
		Image:     s.Image,
		Landmarks: datasets.ClonePoints(s.Landmarks),
		Pixels:    datasets.PixelsFromImage(s.Image, channels).ChannelsFirst(),
	}, nil
}
