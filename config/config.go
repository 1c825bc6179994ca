// Package config holds the JSON settings of the landmarks pipeline: where the
// data lives, which transforms run and how the loader batches.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Noofbiz/faceLandmarks/datasets"
	"github.com/Noofbiz/faceLandmarks/loader"
	"github.com/Noofbiz/faceLandmarks/transforms"
	"github.com/disintegration/imaging"
)

// Config is the whole settings file.
type Config struct {
	Data       DataConfig      `json:"data"`
	Transforms TransformConfig `json:"transforms"`
	Loader     LoaderConfig    `json:"loader"`
	Output     OutputConfig    `json:"output"`
}

// DataConfig locates the annotations and images.
type DataConfig struct {
	CSVFile      string `json:"csv_file"`
	RootDir      string `json:"root_dir"`
	NumLandmarks int    `json:"num_landmarks"`
}

// TransformConfig describes the Rescale, RandomCrop, ToTensor chain. A zero
// size skips that step.
type TransformConfig struct {
	RescaleSize int    `json:"rescale_size"`
	CropSize    int    `json:"crop_size"`
	Filter      string `json:"filter"`
	ToTensor    bool   `json:"to_tensor"`
	WithAlpha   bool   `json:"with_alpha"`
}

// LoaderConfig mirrors loader.Config.
type LoaderConfig struct {
	BatchSize  int   `json:"batch_size"`
	Shuffle    bool  `json:"shuffle"`
	NumWorkers int   `json:"num_workers"`
	Prefetch   int   `json:"prefetch"`
	DropLast   bool  `json:"drop_last"`
	Seed       int64 `json:"seed"`
}

// OutputConfig controls where previews are written.
type OutputConfig struct {
	PreviewDir string `json:"preview_dir"`
	GridBorder int    `json:"grid_border"`
}

// Default returns the settings of the faces tutorial dataset.
func Default() *Config {
	return &Config{
		Data: DataConfig{
			CSVFile:      "data/faces/face_landmarks.csv",
			RootDir:      "data/faces/",
			NumLandmarks: datasets.DefaultNumLandmarks,
		},
		Transforms: TransformConfig{
			RescaleSize: 256,
			CropSize:    224,
			Filter:      "linear",
			ToTensor:    true,
		},
		Loader: LoaderConfig{
			BatchSize:  4,
			Shuffle:    true,
			NumWorkers: 4,
		},
		Output: OutputConfig{
			PreviewDir: "previews",
			GridBorder: 2,
		},
	}
}

// LoadFromFile reads a config. Fields missing from the file keep their
// Default values.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// SaveToFile writes the config as indented JSON, creating parent directories.
func (c *Config) SaveToFile(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

// Validate reports the first setting that cannot work.
func (c *Config) Validate() error {
	switch {
	case c.Data.CSVFile == "":
		return fmt.Errorf("data.csv_file is empty")
	case c.Data.NumLandmarks < 0:
		return fmt.Errorf("data.num_landmarks must be >= 0, got %d", c.Data.NumLandmarks)
	case c.Transforms.RescaleSize < 0:
		return fmt.Errorf("transforms.rescale_size must be >= 0, got %d", c.Transforms.RescaleSize)
	case c.Transforms.CropSize < 0:
		return fmt.Errorf("transforms.crop_size must be >= 0, got %d", c.Transforms.CropSize)
	case c.Transforms.RescaleSize > 0 && c.Transforms.CropSize > c.Transforms.RescaleSize:
		return fmt.Errorf("transforms.crop_size %d is larger than rescale_size %d",
			c.Transforms.CropSize, c.Transforms.RescaleSize)
	case c.Loader.BatchSize <= 0:
		return fmt.Errorf("loader.batch_size must be > 0, got %d", c.Loader.BatchSize)
	case c.Loader.NumWorkers < 0:
		return fmt.Errorf("loader.num_workers must be >= 0, got %d", c.Loader.NumWorkers)
	case c.Loader.Prefetch < 0:
		return fmt.Errorf("loader.prefetch must be >= 0, got %d", c.Loader.Prefetch)
	case c.Output.GridBorder < 0:
		return fmt.Errorf("output.grid_border must be >= 0, got %d", c.Output.GridBorder)
	}
	if _, err := c.Transforms.ResampleFilter(); err != nil {
		return err
	}
	return nil
}

var filters = map[string]imaging.ResampleFilter{
	"nearest":  imaging.NearestNeighbor,
	"box":      imaging.Box,
	"linear":   imaging.Linear,
	"cubic":    imaging.CatmullRom,
	"lanczos":  imaging.Lanczos,
	"gaussian": imaging.Gaussian,
}

// ResampleFilter maps Filter to an imaging filter. Empty means linear.
func (t TransformConfig) ResampleFilter() (imaging.ResampleFilter, error) {
	name := strings.ToLower(strings.TrimSpace(t.Filter))
	if name == "" {
		return imaging.Linear, nil
	}
	f, ok := filters[name]
	if !ok {
		return imaging.ResampleFilter{}, fmt.Errorf("transforms.filter: unknown filter %q", t.Filter)
	}
	return f, nil
}

// Chain builds the configured transforms in Rescale, RandomCrop, ToTensor
// order.
func (t TransformConfig) Chain() (transforms.Chain, error) {
	filter, err := t.ResampleFilter()
	if err != nil {
		return nil, err
	}
	var steps []datasets.Transform
	if t.RescaleSize > 0 {
		steps = append(steps, transforms.NewRescale(t.RescaleSize).WithFilter(filter))
	}
	if t.CropSize > 0 {
		steps = append(steps, transforms.NewRandomCrop(t.CropSize))
	}
	if t.ToTensor {
		tt := transforms.NewToTensor()
		if t.WithAlpha {
			tt = tt.WithAlpha()
		}
		steps = append(steps, tt)
	}
	return transforms.Compose(steps...), nil
}

// Options converts the section to a loader.Config named name.
func (l LoaderConfig) Options(name string) loader.Config {
	return loader.Config{
		Name:       name,
		BatchSize:  l.BatchSize,
		Shuffle:    l.Shuffle,
		NumWorkers: l.NumWorkers,
		Prefetch:   l.Prefetch,
		DropLast:   l.DropLast,
		Seed:       l.Seed,
	}
}
