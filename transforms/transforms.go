// Package transforms holds the preprocessing and augmentation steps applied to
// face landmark samples, and Compose to chain them.
//
// Every step implements datasets.Transform. Steps keep only the parameters
// they were built with, so one chain can serve any number of goroutines as
// long as each passes its own random source.
package transforms

import (
	"fmt"

	"github.com/Noofbiz/faceLandmarks/datasets"
	"github.com/pkg/errors"
)

// Func adapts a plain function to datasets.Transform.
type Func func(s datasets.Sample, rng datasets.RandSource) (datasets.Sample, error)

// Apply implements datasets.Transform.
func (f Func) Apply(s datasets.Sample, rng datasets.RandSource) (datasets.Sample, error) {
	return f(s, rng)
}

// Chain applies its steps in order, feeding each step the previous output.
type Chain []datasets.Transform

// Compose returns a Chain of steps. The order is fixed and no step is skipped.
func Compose(steps ...datasets.Transform) Chain {
	return append(Chain(nil), steps...)
}

// Apply implements datasets.Transform. The first failing step stops the chain.
func (c Chain) Apply(s datasets.Sample, rng datasets.RandSource) (datasets.Sample, error) {
	for i, step := range c {
		var err error
		s, err = step.Apply(s, rng)
		if err != nil {
			return datasets.Sample{}, errors.WithMessagef(err, "transform %d (%s)", i, Name(step))
		}
	}
	return s, nil
}

func (c Chain) String() string {
	s := "Compose("
	for i, step := range c {
		if i > 0 {
			s += ", "
		}
		s += Name(step)
	}
	return s + ")"
}

// Name describes a transform for logs and plot titles.
func Name(t datasets.Transform) string {
	if s, ok := t.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%T", t)
}

func requireImage(s datasets.Sample, step string) error {
	if s.Image == nil {
		return fmt.Errorf("%s: sample %d has no image", step, s.Index)
	}
	b := s.Image.Bounds()
	if b.Dx() < 1 || b.Dy() < 1 {
		return fmt.Errorf("%s: sample %d has an empty %dx%d image", step, s.Index, b.Dx(), b.Dy())
	}
	return nil
}
