// Package toy builds small deterministic decoders for tests and smoke runs.
package toy

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/samcharles93/phigo/internal/model"
	"github.com/samcharles93/phigo/internal/tensor"
)

// Config returns a tiny decoder geometry with a byte-level vocabulary.
func Config() model.Config {
	return model.Config{
		MaxSequenceLength: 128,
		VocabSize:         VocabSize,
		HiddenDim:         32,
		NumHeads:          4,
		NumLayers:         2,
		RotaryDim:         4,
		FFNDim:            128,
		RopeBase:          10000,
		LayerNormEps:      1e-5,
	}
}

// Weights is an in-memory model.WeightSource.
type Weights struct {
	shapes  map[string][]int
	tensors map[string][]float32
}

// NewWeights fills every tensor cfg requires with values derived from seed.
// Norm gains sit near one and everything else near zero, scaled by fan-in so
// activations stay bounded through the stack.
func NewWeights(cfg model.Config, seed int64) *Weights {
	w := &Weights{
		shapes:  make(map[string][]int),
		tensors: make(map[string][]float32),
	}
	for i, spec := range model.RequiredTensors(cfg) {
		n := 1
		for _, d := range spec.Shape {
			n *= d
		}
		data := make([]float32, n)
		s := seed*7919 + int64(i)
		switch {
		case strings.HasSuffix(spec.Name, "ln.weight"):
			tensor.FillRandSlice(data, s, 0.2)
			for j := range data {
				data[j] += 1
			}
		case len(spec.Shape) == 2:
			tensor.FillRandSlice(data, s, float32(4/math.Sqrt(float64(spec.Shape[1]))))
		default:
			tensor.FillRandSlice(data, s, 0.1)
		}
		w.Set(spec.Name, spec.Shape, data)
	}
	return w
}

// Set stores a tensor, replacing any previous one with that name.
func (w *Weights) Set(name string, shape []int, data []float32) {
	w.shapes[name] = slices.Clone(shape)
	w.tensors[name] = data
}

// Delete drops a tensor.
func (w *Weights) Delete(name string) {
	delete(w.shapes, name)
	delete(w.tensors, name)
}

// Rename moves a tensor to a new name.
func (w *Weights) Rename(from, to string) {
	w.Set(to, w.shapes[from], w.tensors[from])
	w.Delete(from)
}

func (w *Weights) Names() []string {
	names := make([]string, 0, len(w.shapes))
	for name := range w.shapes {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (w *Weights) Shape(name string) ([]int, bool) {
	s, ok := w.shapes[name]
	return slices.Clone(s), ok
}

func (w *Weights) ReadF32(name string) ([]float32, error) {
	data, ok := w.tensors[name]
	if !ok {
		return nil, fmt.Errorf("tensor not found: %s", name)
	}
	return slices.Clone(data), nil
}

// NewModel binds freshly generated weights into a LanguageModel.
func NewModel(cfg model.Config, seed int64) (*model.LanguageModel, error) {
	weights, err := model.Bind(cfg, NewWeights(cfg, seed))
	if err != nil {
		return nil, err
	}
	return model.New(cfg, weights)
}
