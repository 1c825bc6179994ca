// Command landmarks walks through the face landmarks pipeline: it reads the
// annotations, previews raw and transformed samples and iterates a few batches
// of the parallel loader, writing PNG previews along the way.
package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/Noofbiz/faceLandmarks/config"
	"github.com/Noofbiz/faceLandmarks/datasets"
	"github.com/Noofbiz/faceLandmarks/loader"
	"github.com/Noofbiz/faceLandmarks/preview"
	"github.com/Noofbiz/faceLandmarks/transforms"
	"github.com/akamensky/argparse"
	"github.com/cyclopcam/logs"
	"github.com/dustin/go-humanize"
	mldatasets "github.com/gomlx/gomlx/pkg/ml/datasets"
	"github.com/gomlx/gomlx/pkg/ml/train"
	"github.com/schollz/progressbar/v3"
)

func main() {
	logger, err := logs.NewLog()
	if err != nil {
		panic(err)
	}

	parser := argparse.NewParser("landmarks", "Load, transform and batch a face landmarks dataset")
	configFile := parser.String("c", "config", &argparse.Options{Help: "JSON config file (written with defaults if missing)", Default: ""})
	csvFile := parser.String("f", "csv", &argparse.Options{Help: "Landmarks CSV, or a directory holding one, overrides data.csv_file", Default: ""})
	rootDir := parser.String("r", "root", &argparse.Options{Help: "Image directory, overrides data.root_dir", Default: ""})
	outDir := parser.String("o", "out", &argparse.Options{Help: "Preview directory, overrides output.preview_dir", Default: ""})
	numBatches := parser.Int("b", "batches", &argparse.Options{Help: "Number of loader batches to iterate", Default: 4})
	workers := parser.Int("w", "workers", &argparse.Options{Help: "Loader workers, overrides loader.num_workers (-1 keeps the config value)", Default: -1})
	seed := parser.Int("s", "seed", &argparse.Options{Help: "Seed for the dataset and loader, 0 uses the config value", Default: 0})
	index := parser.Int("i", "index", &argparse.Options{Help: "Annotation row to print and preview", Default: 65})
	err = parser.Parse(os.Args)
	if err != nil {
		logger.Errorf("%v", parser.Usage(err))
		os.Exit(1)
	}

	cfg, err := loadConfig(logger, *configFile)
	if err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
	if *csvFile != "" {
		cfg.Data.CSVFile = *csvFile
	}
	if *rootDir != "" {
		cfg.Data.RootDir = *rootDir
	}
	if *outDir != "" {
		cfg.Output.PreviewDir = *outDir
	}
	if *workers >= 0 {
		cfg.Loader.NumWorkers = *workers
	}
	if *seed != 0 {
		cfg.Loader.Seed = int64(*seed)
	}
	if err := cfg.Validate(); err != nil {
		logger.Errorf("Invalid settings: %v", err)
		os.Exit(1)
	}

	if err := run(logger, cfg, *index, *numBatches); err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
}

func loadConfig(logger logs.Log, path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := config.Default()
		if err := cfg.SaveToFile(path); err != nil {
			return nil, err
		}
		logger.Infof("Wrote default config to %v", path)
		return cfg, nil
	}
	return config.LoadFromFile(path)
}

func run(logger logs.Log, cfg *config.Config, index, numBatches int) error {
	out := cfg.Output.PreviewDir
	withSeed := []datasets.Option{datasets.WithNumLandmarks(cfg.Data.NumLandmarks), datasets.WithLogger(logger)}
	if cfg.Loader.Seed != 0 {
		withSeed = append(withSeed, datasets.WithSeed(cfg.Loader.Seed))
	}

	// Annotations as read from the CSV.
	raw, err := datasets.NewFaceLandmarksDataset(cfg.Data.CSVFile, cfg.Data.RootDir, withSeed...)
	if err != nil {
		return err
	}
	ann, err := raw.Annotations().At(index)
	if err != nil {
		return err
	}
	fmt.Printf("Image name: %s\n", ann.Filename)
	fmt.Printf("Landmarks shape: (%d, 2)\n", len(ann.Landmarks))
	for i, p := range ann.Landmarks[:min(4, len(ann.Landmarks))] {
		fmt.Printf("Landmark %d: (%.1f, %.1f)\n", i, p.X, p.Y)
	}

	// The first few raw samples.
	for i := range min(4, raw.Len()) {
		s, err := raw.Example(i)
		if err != nil {
			return err
		}
		h, w := s.Size()
		fmt.Printf("%d (%d, %d, 3) (%d, 2)\n", i, h, w, len(s.Landmarks))
		if err := preview.SaveLandmarks(filepath.Join(out, fmt.Sprintf("sample_%d.png", i)), s, fmt.Sprintf("Sample #%d", i)); err != nil {
			return err
		}
	}

	// Each transform, and their composition, on the same sample.
	if err := previewTransforms(raw, index, cfg, out); err != nil {
		return err
	}

	// The fully transformed dataset through the loader.
	chain, err := cfg.Transforms.Chain()
	if err != nil {
		return err
	}
	logger.Infof("Transforms: %v", chain)
	ds, err := datasets.NewFaceLandmarksDataset(cfg.Data.CSVFile, cfg.Data.RootDir, append(withSeed, datasets.WithTransform(chain))...)
	if err != nil {
		return err
	}
	for i := range min(4, ds.Len()) {
		s, err := ds.Example(i)
		if err != nil {
			return err
		}
		if s.Pixels != nil {
			fmt.Printf("%d %v %v\n", i, s.Pixels.Dims(), []int{len(s.Landmarks), 2})
		} else {
			h, w := s.Size()
			fmt.Printf("%d [%d %d 3] %v\n", i, h, w, []int{len(s.Landmarks), 2})
		}
	}

	opts := cfg.Loader.Options("faces")
	if err := previewBatches(logger, ds, opts, numBatches, cfg.Output.GridBorder, out); err != nil {
		return err
	}
	batches, err := loader.New(ds, opts, logger)
	if err != nil {
		return err
	}
	return iterate(batches, numBatches)
}

func previewTransforms(ds *datasets.FaceLandmarksDataset, index int, cfg *config.Config, out string) error {
	s, err := ds.Example(index)
	if err != nil {
		return err
	}
	filter, err := cfg.Transforms.ResampleFilter()
	if err != nil {
		return err
	}
	rescale, crop := cfg.Transforms.RescaleSize, cfg.Transforms.CropSize
	if rescale == 0 {
		rescale = 256
	}
	if crop == 0 {
		crop = 128
	}
	steps := []datasets.Transform{
		transforms.NewRescale(rescale).WithFilter(filter),
		transforms.NewRandomCrop(crop),
		transforms.Compose(transforms.NewRescale(rescale).WithFilter(filter), transforms.NewRandomCrop(crop)),
	}
	rng := ds.Rand()
	for i, step := range steps {
		ts, err := step.Apply(s, rng)
		if err != nil {
			// RandomCrop alone fails on images smaller than the crop.
			fmt.Printf("%s: %v\n", transforms.Name(step), err)
			continue
		}
		path := filepath.Join(out, fmt.Sprintf("transform_%d.png", i))
		if err := preview.SaveLandmarks(path, ts, transforms.Name(step)); err != nil {
			return err
		}
	}
	return nil
}

// previewBatches reads batches in order and writes a grid of the last one.
func previewBatches(logger logs.Log, ds datasets.Dataset, opts loader.Config, numBatches, border int, out string) error {
	ld, err := loader.NewLoader(ds, opts, nil)
	if err != nil {
		return err
	}
	numBatches = min(numBatches, ld.NumBatches())
	bar := progressbar.Default(int64(numBatches), "Loading batches")
	for i := range numBatches {
		b, err := ld.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		_ = bar.Add(1)
		if i == numBatches-1 {
			path := filepath.Join(out, "batch.png")
			if err := preview.SaveGrid(path, b.Samples, border); err != nil {
				return err
			}
			logger.Infof("Batch %d (indices %v) written to %v", i, b.Indices, path)
		}
	}
	return nil
}

// iterate drives the loader as a gomlx train.Dataset, in parallel when
// workers are configured.
func iterate(ds train.Dataset, numBatches int) error {
	ds = mldatasets.Take(ds, numBatches)
	for {
		_, inputs, labels, err := ds.Yield()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		images, landmarks := inputs[0], labels[0]
		fmt.Printf("images %s (%s), landmarks %s (%s)\n",
			images.Shape(), humanize.Bytes(uint64(images.Shape().Memory())),
			landmarks.Shape(), humanize.Bytes(uint64(landmarks.Shape().Memory())))
	}
	return nil
}
