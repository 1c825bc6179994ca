// Package datasets reads face landmark annotations and serves (image,
// landmarks) samples from them.
//
// The layout on disk is one CSV with a header row and one row per image:
//
//	image_name,part_0_x,part_0_y,...,part_67_x,part_67_y
//	0805personali01.jpg,27,83,27,98,...
//
// Images are resolved relative to a root directory. The datasets use lazy
// loading: only the annotations are kept in memory and every image is read
// and decoded when its sample is requested, then optionally passed through a
// Transform.
//
// Samples convert to gomlx tensors with Sample.ToGomlxTensors, and whole
// batches with Collate and LandmarkBatchFlat.ToGomlxTensors.
package datasets

// Dataset is the contract batching code relies on: a fixed length and one
// independently computed sample per index. ExampleRand must be safe to call
// from several goroutines at once, each passing its own rng.
// FaceLandmarksDataset implements it, and the loader package batches any
// Dataset.
type Dataset interface {
	// Len returns the number of samples.
	Len() int

	// ExampleRand returns sample idx, drawing any randomness from rng.
	ExampleRand(idx int, rng RandSource) (Sample, error)
}

var _ Dataset = (*FaceLandmarksDataset)(nil)
