// Package loader groups the samples of a datasets.Dataset into batches,
// optionally shuffled per epoch, and serves them as a gomlx train.Dataset.
// Parallel prefetch is delegated to gomlx's datasets.Parallel.
package loader

import (
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/Noofbiz/faceLandmarks/datasets"
	"github.com/cyclopcam/logs"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	mldatasets "github.com/gomlx/gomlx/pkg/ml/datasets"
	"github.com/gomlx/gomlx/pkg/ml/train"
	"github.com/pkg/errors"
)

// Config controls batching. Zero values are replaced by defaults.
type Config struct {
	// Name is returned by Name. Defaults to "loader".
	Name string

	// BatchSize is the number of samples per batch. Defaults to 4.
	BatchSize int

	// Shuffle draws a new permutation of the samples at every epoch.
	Shuffle bool

	// NumWorkers is the parallelism New asks of datasets.Parallel. Zero
	// yields batches synchronously in the caller goroutine.
	NumWorkers int

	// Prefetch is the extra buffer, in batches, of datasets.Parallel.
	Prefetch int

	// DropLast drops the final batch of an epoch when it is short.
	DropLast bool

	// Seed determines the permutations and every sample's random source.
	// Zero uses the current time.
	Seed int64
}

func (c *Config) setDefaults() {
	if c.Name == "" {
		c.Name = "loader"
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 4
	}
	if c.NumWorkers < 0 {
		c.NumWorkers = 0
	}
	if c.Prefetch < 0 {
		c.Prefetch = 0
	}
	if c.Seed == 0 {
		c.Seed = time.Now().UnixNano()
	}
}

// Batch is one group of samples.
type Batch struct {
	// Epoch counts Reset calls, starting at 0.
	Epoch int

	// Position is the batch number within the epoch.
	Position int

	Indices []int
	Samples []datasets.Sample
}

// Len returns the number of samples in the batch.
func (b *Batch) Len() int {
	return len(b.Samples)
}

// Collate flattens the batch into contiguous buffers.
func (b *Batch) Collate() (*datasets.LandmarkBatchFlat, error) {
	return datasets.Collate(b.Samples)
}

// Loader yields batches of samples from a datasets.Dataset.
//
// Only the choice of the next batch is serialized; samples are loaded outside
// the lock, so Next and Yield may be called from many goroutines at once, as
// datasets.Parallel does. Sample idx of epoch e is always built with a random
// source seeded from (Config.Seed, e, idx), so a batch's contents never depend
// on which goroutine loaded it.
type Loader struct {
	ds  datasets.Dataset
	cfg Config
	log logs.Log

	// mu protects epoch, order and next.
	mu    sync.Mutex
	epoch int
	order []int
	next  int
}

var _ train.Dataset = (*Loader)(nil)

// NewLoader creates a sequential Loader over ds and starts its first epoch.
// logger may be nil.
func NewLoader(ds datasets.Dataset, cfg Config, logger logs.Log) (*Loader, error) {
	if ds == nil {
		return nil, errors.New("dataset cannot be nil")
	}
	if ds.Len() == 0 {
		return nil, errors.New("dataset is empty")
	}
	cfg.setDefaults()

	l := &Loader{
		ds:    ds,
		cfg:   cfg,
		log:   logger,
		epoch: -1,
	}
	l.Reset()
	return l, nil
}

// New creates a Loader over ds and returns it as a train.Dataset. With
// NumWorkers > 0 it is wrapped in datasets.Parallel, which calls Yield from
// NumWorkers goroutines and buffers Prefetch extra batches. The parallel
// reader delivers batches in completion order.
func New(ds datasets.Dataset, cfg Config, logger logs.Log) (train.Dataset, error) {
	l, err := NewLoader(ds, cfg, logger)
	if err != nil {
		return nil, err
	}
	if l.log != nil {
		l.log.Infof("Loader %q: %d samples, batch size %d, shuffle=%v, workers=%d, prefetch=%d",
			l.cfg.Name, ds.Len(), l.cfg.BatchSize, l.cfg.Shuffle, l.cfg.NumWorkers, l.cfg.Prefetch)
	}
	if l.cfg.NumWorkers == 0 {
		return l, nil
	}
	return mldatasets.CustomParallel(l).Parallelism(l.cfg.NumWorkers).Buffer(l.cfg.Prefetch).Start(), nil
}

// Config returns the configuration with defaults filled in.
func (l *Loader) Config() Config {
	return l.cfg
}

// NumBatches returns the number of batches per epoch.
func (l *Loader) NumBatches() int {
	n := l.ds.Len()
	if l.cfg.DropLast {
		return n / l.cfg.BatchSize
	}
	return (n + l.cfg.BatchSize - 1) / l.cfg.BatchSize
}

// Name implements train.Dataset.
func (l *Loader) Name() string {
	return l.cfg.Name
}

// Reset implements train.Dataset. It starts the next epoch, with a new
// permutation when Shuffle is set.
func (l *Loader) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.epoch++
	l.next = 0
	n := l.ds.Len()
	if l.cfg.Shuffle {
		l.order = rand.New(rand.NewSource(mixSeed(l.cfg.Seed, l.epoch, -1))).Perm(n)
		return
	}
	l.order = make([]int, n)
	for i := range l.order {
		l.order[i] = i
	}
}

// nextIndices reserves the next batch of the epoch.
func (l *Loader) nextIndices() (epoch, position int, indices []int, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	start := l.next * l.cfg.BatchSize
	if start >= len(l.order) {
		return l.epoch, l.next, nil, io.EOF
	}
	end := min(start+l.cfg.BatchSize, len(l.order))
	if end-start < l.cfg.BatchSize && l.cfg.DropLast {
		return l.epoch, l.next, nil, io.EOF
	}
	position = l.next
	l.next++
	return l.epoch, position, append([]int(nil), l.order[start:end]...), nil
}

// Next returns the next batch of the epoch, or io.EOF once the epoch is
// exhausted. A sample that fails to load fails its whole batch; the following
// call moves on to the next batch.
func (l *Loader) Next() (*Batch, error) {
	epoch, position, indices, err := l.nextIndices()
	if err != nil {
		return nil, err
	}

	b := &Batch{
		Epoch:    epoch,
		Position: position,
		Indices:  indices,
		Samples:  make([]datasets.Sample, len(indices)),
	}
	for i, idx := range indices {
		rng := rand.New(rand.NewSource(mixSeed(l.cfg.Seed, epoch, idx)))
		s, err := l.ds.ExampleRand(idx, rng)
		if err != nil {
			return nil, errors.WithMessagef(err, "loader %q epoch %d batch %d", l.cfg.Name, epoch, position)
		}
		b.Samples[i] = s
	}
	return b, nil
}

// Yield implements train.Dataset. Inputs hold one [B, C, H, W] float32 image
// tensor and labels one [B, L, 2] landmark tensor. Samples that skipped
// ToTensor are converted to RGB on the fly.
func (l *Loader) Yield() (spec any, inputs []*tensors.Tensor, labels []*tensors.Tensor, err error) {
	b, err := l.Next()
	if err != nil {
		return nil, nil, nil, err
	}
	flat, err := b.Collate()
	if err != nil {
		return nil, nil, nil, errors.WithMessagef(err, "loader %q", l.cfg.Name)
	}
	images, landmarks, err := flat.ToGomlxTensors()
	if err != nil {
		return nil, nil, nil, err
	}
	return l, []*tensors.Tensor{images}, []*tensors.Tensor{landmarks}, nil
}

// mixSeed derives an independent seed for sample idx of an epoch
// (splitmix64 finalizer). idx -1 seeds the epoch permutation.
func mixSeed(seed int64, epoch, idx int) int64 {
	x := uint64(seed) ^ uint64(epoch+1)*0x9e3779b97f4a7c15 ^ uint64(idx+1)*0xc2b2ae3d27d4eb4f
	x ^= x >> 30
	x *= 0xbf58476d1ce4e5b9
	x ^= x >> 27
	x *= 0x94d049bb133111eb
	x ^= x >> 31
	return int64(x)
}
