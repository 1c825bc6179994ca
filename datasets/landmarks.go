package datasets

import (
	"math/rand"
	"path/filepath"
	"sync"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/pkg/errors"
)

// FaceLandmarksDataset pairs the rows of a landmarks CSV with the images they
// name. Only the annotations are held in memory: every Example call reads and
// decodes its image from disk, so memory use does not grow with the dataset.
//
// All configuration is fixed at construction, which makes Example and
// ExampleRand safe to call from any number of goroutines.
type FaceLandmarksDataset struct {
	// CSVFile is the annotation file the dataset was built from.
	CSVFile string

	// RootDir is the directory image filenames are relative to.
	RootDir string

	table        *AnnotationTable
	transform    Transform
	numLandmarks int
	log          logs.Log

	// muRand protects rand, which only hands out per-call seeds.
	muRand sync.Mutex
	rand   *rand.Rand
}

// Option configures a FaceLandmarksDataset.
type Option func(*FaceLandmarksDataset)

// WithTransform applies t to every sample before it is returned.
func WithTransform(t Transform) Option {
	return func(d *FaceLandmarksDataset) { d.transform = t }
}

// WithNumLandmarks sets the expected number of points per row. Zero or less
// infers it from the CSV header.
func WithNumLandmarks(n int) Option {
	return func(d *FaceLandmarksDataset) { d.numLandmarks = n }
}

// WithSeed seeds the generator Example draws per-call seeds from.
func WithSeed(seed int64) Option {
	return func(d *FaceLandmarksDataset) { d.rand = rand.New(rand.NewSource(seed)) }
}

// WithLogger sets the logger. Without it the dataset is silent.
func WithLogger(log logs.Log) Option {
	return func(d *FaceLandmarksDataset) { d.log = log }
}

// NewFaceLandmarksDataset loads the annotations in csvFile, which may also be
// a directory holding the CSV. Images are looked up under rootDir.
func NewFaceLandmarksDataset(csvFile, rootDir string, opts ...Option) (*FaceLandmarksDataset, error) {
	ds := &FaceLandmarksDataset{
		CSVFile:      csvFile,
		RootDir:      rootDir,
		numLandmarks: DefaultNumLandmarks,
		rand:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(ds)
	}

	resolved, err := ResolveAnnotationFile(csvFile)
	if err != nil {
		return nil, err
	}
	ds.CSVFile = resolved

	table, err := LoadAnnotations(resolved, ds.numLandmarks)
	if err != nil {
		return nil, err
	}
	ds.table = table
	ds.numLandmarks = table.NumLandmarks()

	if ds.log != nil {
		ds.log.Infof("Loaded %d annotations with %d landmarks each from %s", table.Len(), ds.numLandmarks, resolved)
	}
	return ds, nil
}

// Name returns the name of the dataset
func (d *FaceLandmarksDataset) Name() string {
	return "FaceLandmarksDataset"
}

// Len returns the number of samples, the number of rows in the CSV.
func (d *FaceLandmarksDataset) Len() int {
	return d.table.Len()
}

// NumLandmarks returns the number of points in every sample.
func (d *FaceLandmarksDataset) NumLandmarks() int {
	return d.numLandmarks
}

// Annotations returns the parsed CSV.
func (d *FaceLandmarksDataset) Annotations() *AnnotationTable {
	return d.table
}

// Example loads sample idx. Randomized transforms draw from a generator seeded
// from the dataset's own seed sequence.
func (d *FaceLandmarksDataset) Example(idx int) (Sample, error) {
	return d.ExampleRand(idx, d.Rand())
}

// Rand returns a new generator seeded from the dataset's seed sequence, for
// callers that apply transforms themselves.
func (d *FaceLandmarksDataset) Rand() *rand.Rand {
	d.muRand.Lock()
	seed := d.rand.Int63()
	d.muRand.Unlock()
	return rand.New(rand.NewSource(seed))
}

// ExampleRand loads sample idx, passing rng to the transform. It touches no
// state shared with other calls, so concurrent callers each supply their own
// rng.
func (d *FaceLandmarksDataset) ExampleRand(idx int, rng RandSource) (Sample, error) {
	ann, err := d.table.At(idx)
	if err != nil {
		return Sample{}, err
	}

	img, err := LoadImage(filepath.Join(d.RootDir, ann.Filename))
	if err != nil {
		return Sample{}, errors.WithMessagef(err, "sample %d", idx)
	}

	sample := Sample{Index: idx, Image: img, Landmarks: ann.Landmarks}
	if d.transform == nil {
		return sample, nil
	}
	sample, err = d.transform.Apply(sample, rng)
	if err != nil {
		return Sample{}, errors.WithMessagef(err, "sample %d (%s)", idx, ann.Filename)
	}
	sample.Index = idx
	return sample, nil
}

// Batch loads the samples at indices, in order.
func (d *FaceLandmarksDataset) Batch(indices []int) ([]Sample, error) {
	samples := make([]Sample, len(indices))
	for i, idx := range indices {
		s, err := d.Example(idx)
		if err != nil {
			return nil, err
		}
		samples[i] = s
	}
	return samples, nil
}
