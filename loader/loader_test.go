package loader

import (
	"image"
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/Noofbiz/faceLandmarks/datasets"
	"github.com/cyclopcam/logs"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

var errBroken = errors.New("broken sample")

// memDataset serves 4x3 images whose single landmark is (idx, draw), where
// draw is taken from the rng the loader passes in.
type memDataset struct {
	n      int
	broken int
	delay  func(idx int) time.Duration
}

func (d *memDataset) Len() int { return d.n }

func (d *memDataset) ExampleRand(idx int, rng datasets.RandSource) (datasets.Sample, error) {
	if d.delay != nil {
		time.Sleep(d.delay(idx))
	}
	if idx == d.broken {
		return datasets.Sample{}, errors.Wrapf(errBroken, "sample %d", idx)
	}
	return datasets.Sample{
		Index:     idx,
		Image:     image.NewNRGBA(image.Rect(0, 0, 4, 3)),
		Landmarks: []datasets.Point{{X: float64(idx), Y: float64(rng.Intn(1 << 20))}},
	}, nil
}

func newMem(n int) *memDataset {
	return &memDataset{n: n, broken: -1}
}

// drain reads one epoch with Next, returning the batches' indices in order
// and the rng draw of every sample.
func drain(t *testing.T, l *Loader) (indices [][]int, draws map[int]float64) {
	t.Helper()
	draws = make(map[int]float64)
	for {
		b, err := l.Next()
		if err == io.EOF {
			return indices, draws
		}
		require.NoError(t, err)
		require.Equal(t, len(indices), b.Position)
		indices = append(indices, b.Indices)
		for i, s := range b.Samples {
			require.Equal(t, b.Indices[i], s.Index)
			require.Equal(t, float64(s.Index), s.Landmarks[0].X)
			draws[s.Index] = s.Landmarks[0].Y
		}
	}
}

func TestLoaderSequential(t *testing.T) {
	l, err := NewLoader(newMem(10), Config{BatchSize: 4}, logs.NewTestingLog(t))
	require.NoError(t, err)

	require.Equal(t, 3, l.NumBatches())
	indices, _ := drain(t, l)
	require.Equal(t, [][]int{{0, 1, 2, 3}, {4, 5, 6, 7}, {8, 9}}, indices)

	// Exhausted until Reset.
	_, err = l.Next()
	require.Equal(t, io.EOF, err)
	l.Reset()
	indices, _ = drain(t, l)
	require.Len(t, indices, 3)
}

func TestLoaderDropLast(t *testing.T) {
	l, err := NewLoader(newMem(10), Config{BatchSize: 4, DropLast: true}, nil)
	require.NoError(t, err)
	require.Equal(t, 2, l.NumBatches())
	indices, _ := drain(t, l)
	require.Equal(t, [][]int{{0, 1, 2, 3}, {4, 5, 6, 7}}, indices)
}

func TestLoaderDefaults(t *testing.T) {
	l, err := NewLoader(newMem(5), Config{NumWorkers: -2, Prefetch: -1}, nil)
	require.NoError(t, err)
	cfg := l.Config()
	require.Equal(t, "loader", cfg.Name)
	require.Equal(t, 4, cfg.BatchSize)
	require.Equal(t, 0, cfg.NumWorkers)
	require.Equal(t, 0, cfg.Prefetch)
	require.NotZero(t, cfg.Seed)

	_, err = NewLoader(newMem(0), Config{}, nil)
	require.Error(t, err)
	_, err = New(nil, Config{}, nil)
	require.Error(t, err)

	// Without workers New returns the loader itself.
	ds, err := New(newMem(5), Config{}, nil)
	require.NoError(t, err)
	_, ok := ds.(*Loader)
	require.True(t, ok)
}

func TestLoaderShuffleCoversEveryIndexOnce(t *testing.T) {
	l, err := NewLoader(newMem(23), Config{BatchSize: 5, Shuffle: true, Seed: 3}, nil)
	require.NoError(t, err)

	var epochs [][]int
	for range 2 {
		indices, _ := drain(t, l)
		var all []int
		for _, b := range indices {
			all = append(all, b...)
		}
		epochs = append(epochs, all)
		l.Reset()
	}
	for _, all := range epochs {
		sorted := append([]int(nil), all...)
		sort.Ints(sorted)
		for i, idx := range sorted {
			require.Equal(t, i, idx)
		}
	}
	require.NotEqual(t, epochs[0], epochs[1], "each epoch draws a new permutation")
}

func TestLoaderSeed(t *testing.T) {
	run := func(seed int64) ([][]int, map[int]float64) {
		l, err := NewLoader(newMem(17), Config{BatchSize: 3, Shuffle: true, Seed: seed}, nil)
		require.NoError(t, err)
		return drain(t, l)
	}
	idxA, drawsA := run(99)
	idxB, drawsB := run(99)
	require.Equal(t, idxA, idxB)
	require.Equal(t, drawsA, drawsB)

	idxC, drawsC := run(100)
	require.NotEqual(t, idxA, idxC)
	require.NotEqual(t, drawsA, drawsC)
}

// Concurrent callers get every batch exactly once, with the same contents a
// single caller sees, whatever order the loads finish in.
func TestLoaderConcurrentNext(t *testing.T) {
	cfg := Config{BatchSize: 3, Shuffle: true, Seed: 7}
	seq, err := NewLoader(newMem(20), cfg, nil)
	require.NoError(t, err)
	wantIdx, wantDraws := drain(t, seq)

	ds := newMem(20)
	// Later indices finish first.
	ds.delay = func(idx int) time.Duration { return time.Duration(20-idx) * 100 * time.Microsecond }
	l, err := NewLoader(ds, cfg, nil)
	require.NoError(t, err)

	var mu sync.Mutex
	got := make(map[int]*Batch)
	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				b, err := l.Next()
				if err != nil {
					return
				}
				mu.Lock()
				got[b.Position] = b
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Len(t, got, len(wantIdx))
	for pos, indices := range wantIdx {
		b := got[pos]
		require.NotNil(t, b, "batch %d", pos)
		require.Equal(t, indices, b.Indices)
		for _, s := range b.Samples {
			require.Equal(t, wantDraws[s.Index], s.Landmarks[0].Y)
		}
	}
}

// landmarkDraws reads (idx, draw) pairs out of a [B, 1, 2] landmark tensor.
func landmarkDraws(t *testing.T, landmarks *tensors.Tensor, draws map[int]float64) {
	t.Helper()
	require.Equal(t, 3, landmarks.Shape().Rank())
	tensors.MustConstFlatData[float32](landmarks, func(flat []float32) {
		for i := 0; i+1 < len(flat); i += 2 {
			draws[int(flat[i])] = float64(flat[i+1])
		}
	})
}

func TestLoaderParallel(t *testing.T) {
	cfg := Config{Name: "faces", BatchSize: 4, Shuffle: true, Seed: 11}
	seq, err := NewLoader(newMem(26), cfg, nil)
	require.NoError(t, err)
	_, wantDraws := drain(t, seq)

	cfg.NumWorkers = 4
	cfg.Prefetch = 2
	ds, err := New(newMem(26), cfg, logs.NewTestingLog(t))
	require.NoError(t, err)

	draws := make(map[int]float64)
	batches := 0
	for {
		_, inputs, labels, err := ds.Yield()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		require.Equal(t, 4, inputs[0].Shape().Rank())
		landmarkDraws(t, labels[0], draws)
		batches++
	}
	require.Equal(t, 7, batches)
	require.Len(t, draws, 26)
	for idx, want := range wantDraws {
		// float32 holds integers below 2^24 exactly.
		require.Equal(t, want, draws[idx], "sample %d", idx)
	}
}

func TestLoaderSampleError(t *testing.T) {
	ds := newMem(8)
	ds.broken = 5
	l, err := NewLoader(ds, Config{BatchSize: 4}, nil)
	require.NoError(t, err)

	b, err := l.Next()
	require.NoError(t, err)
	require.Equal(t, []int{0, 1, 2, 3}, b.Indices)

	_, err = l.Next()
	require.True(t, errors.Is(err, errBroken), "got %v", err)

	_, err = l.Next()
	require.Equal(t, io.EOF, err)

	// The parallel reader surfaces the failure too.
	pds, err := New(ds, Config{BatchSize: 4, NumWorkers: 2}, nil)
	require.NoError(t, err)
	for {
		_, _, _, err = pds.Yield()
		if err != nil {
			break
		}
	}
	require.ErrorContains(t, err, "broken sample")
}

func TestLoaderYield(t *testing.T) {
	l, err := NewLoader(newMem(6), Config{Name: "faces", BatchSize: 4}, nil)
	require.NoError(t, err)
	require.Equal(t, "faces", l.Name())

	spec, inputs, labels, err := l.Yield()
	require.NoError(t, err)
	require.Equal(t, l, spec)
	require.Len(t, inputs, 1)
	require.Len(t, labels, 1)
	require.Equal(t, []int{4, 3, 3, 4}, inputs[0].Shape().Dimensions)
	require.Equal(t, []int{4, 1, 2}, labels[0].Shape().Dimensions)

	_, inputs, _, err = l.Yield()
	require.NoError(t, err)
	require.Equal(t, []int{2, 3, 3, 4}, inputs[0].Shape().Dimensions)

	_, _, _, err = l.Yield()
	require.Equal(t, io.EOF, err)
}

func TestLoaderResetMidEpoch(t *testing.T) {
	l, err := NewLoader(newMem(40), Config{BatchSize: 2}, nil)
	require.NoError(t, err)

	b, err := l.Next()
	require.NoError(t, err)
	require.Equal(t, 0, b.Epoch)
	l.Reset()
	indices, _ := drain(t, l)
	require.Len(t, indices, 20)
	require.Equal(t, []int{0, 1}, indices[0])
}
