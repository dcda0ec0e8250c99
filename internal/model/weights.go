package model

import (
	"fmt"
	"slices"

	"github.com/samcharles93/phigo/internal/tensor"
)

// WeightSource is a read-only named tensor store.
type WeightSource interface {
	Names() []string
	Shape(name string) ([]int, bool)
	ReadF32(name string) ([]float32, error)
}

// TensorSpec names one required parameter and its expected shape.
type TensorSpec struct {
	Name    string
	Aliases []string
	Shape   []int
}

// LinearWeights is a projection stored [out, in] with a bias of length out.
type LinearWeights struct {
	W tensor.Mat
	B []float32
}

// NormWeights is an affine LayerNorm.
type NormWeights struct {
	Weight []float32
	Bias   []float32
}

// LayerWeights holds one parallel residual block.
type LayerWeights struct {
	Norm    NormWeights
	QKV     LinearWeights
	OutProj LinearWeights
	FC1     LinearWeights
	FC2     LinearWeights
}

// Weights is the fully bound parameter set.
type Weights struct {
	Embedding tensor.Mat
	Layers    []LayerWeights
	HeadNorm  NormWeights
	Head      LinearWeights
}

const (
	nameEmbedding = "wte.weight"
	aliasEmbed    = "transformer.embd.wte.weight"
	nameHeadNorm  = "lm_head.ln"
	nameHead      = "lm_head.linear"
)

func layerPrefix(i int) string {
	return fmt.Sprintf("transformer.h.%d", i)
}

// RequiredTensors lists every parameter the decoder binds, in binding order.
func RequiredTensors(cfg Config) []TensorSpec {
	d, v, f := cfg.HiddenDim, cfg.VocabSize, cfg.FFNDim
	specs := make([]TensorSpec, 0, 1+10*cfg.NumLayers+4)
	specs = append(specs, TensorSpec{Name: nameEmbedding, Aliases: []string{aliasEmbed}, Shape: []int{v, d}})
	for i := 0; i < cfg.NumLayers; i++ {
		p := layerPrefix(i)
		specs = append(specs,
			TensorSpec{Name: p + ".ln.weight", Shape: []int{d}},
			TensorSpec{Name: p + ".ln.bias", Shape: []int{d}},
			TensorSpec{Name: p + ".mixer.Wqkv.weight", Shape: []int{3 * d, d}},
			TensorSpec{Name: p + ".mixer.Wqkv.bias", Shape: []int{3 * d}},
			TensorSpec{Name: p + ".mixer.out_proj.weight", Shape: []int{d, d}},
			TensorSpec{Name: p + ".mixer.out_proj.bias", Shape: []int{d}},
			TensorSpec{Name: p + ".fc1.weight", Shape: []int{f, d}},
			TensorSpec{Name: p + ".fc1.bias", Shape: []int{f}},
			TensorSpec{Name: p + ".fc2.weight", Shape: []int{d, f}},
			TensorSpec{Name: p + ".fc2.bias", Shape: []int{d}},
		)
	}
	specs = append(specs,
		TensorSpec{Name: nameHeadNorm + ".weight", Shape: []int{d}},
		TensorSpec{Name: nameHeadNorm + ".bias", Shape: []int{d}},
		TensorSpec{Name: nameHead + ".weight", Shape: []int{v, d}},
		TensorSpec{Name: nameHead + ".bias", Shape: []int{v}},
	)
	return specs
}

// UnusedTensors returns the names in src that no required parameter claims.
func UnusedTensors(cfg Config, src WeightSource) []string {
	claimed := make(map[string]struct{})
	for _, spec := range RequiredTensors(cfg) {
		claimed[spec.Name] = struct{}{}
		for _, a := range spec.Aliases {
			claimed[a] = struct{}{}
		}
	}
	var out []string
	for _, name := range src.Names() {
		if _, ok := claimed[name]; !ok {
			out = append(out, name)
		}
	}
	slices.Sort(out)
	return out
}

type bindOptions struct {
	progress func(name string)
}

// BindOption customises Bind.
type BindOption func(*bindOptions)

// WithProgress reports every bound tensor name.
func WithProgress(fn func(name string)) BindOption {
	return func(o *bindOptions) { o.progress = fn }
}

// Bind resolves every required parameter from src, checks its shape against
// cfg and copies it into float32 storage. The first missing or misshapen
// tensor aborts binding with an error wrapping ErrConfigMismatch.
func Bind(cfg Config, src WeightSource, opts ...BindOption) (*Weights, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var o bindOptions
	for _, opt := range opts {
		opt(&o)
	}

	bound := make(map[string][]float32)
	for _, spec := range RequiredTensors(cfg) {
		data, err := bindOne(src, spec)
		if err != nil {
			return nil, err
		}
		bound[spec.Name] = data
		if o.progress != nil {
			o.progress(spec.Name)
		}
	}

	d, v, f := cfg.HiddenDim, cfg.VocabSize, cfg.FFNDim
	w := &Weights{
		Embedding: tensor.NewMatFromData(v, d, bound[nameEmbedding]),
		Layers:    make([]LayerWeights, cfg.NumLayers),
		HeadNorm: NormWeights{
			Weight: bound[nameHeadNorm+".weight"],
			Bias:   bound[nameHeadNorm+".bias"],
		},
		Head: LinearWeights{
			W: tensor.NewMatFromData(v, d, bound[nameHead+".weight"]),
			B: bound[nameHead+".bias"],
		},
	}
	for i := range w.Layers {
		p := layerPrefix(i)
		w.Layers[i] = LayerWeights{
			Norm: NormWeights{
				Weight: bound[p+".ln.weight"],
				Bias:   bound[p+".ln.bias"],
			},
			QKV: LinearWeights{
				W: tensor.NewMatFromData(3*d, d, bound[p+".mixer.Wqkv.weight"]),
				B: bound[p+".mixer.Wqkv.bias"],
			},
			OutProj: LinearWeights{
				W: tensor.NewMatFromData(d, d, bound[p+".mixer.out_proj.weight"]),
				B: bound[p+".mixer.out_proj.bias"],
			},
			FC1: LinearWeights{
				W: tensor.NewMatFromData(f, d, bound[p+".fc1.weight"]),
				B: bound[p+".fc1.bias"],
			},
			FC2: LinearWeights{
				W: tensor.NewMatFromData(d, f, bound[p+".fc2.weight"]),
				B: bound[p+".fc2.bias"],
			},
		}
	}
	return w, nil
}

func bindOne(src WeightSource, spec TensorSpec) ([]float32, error) {
	name := spec.Name
	shape, ok := src.Shape(name)
	if !ok {
		for _, alias := range spec.Aliases {
			if s, found := src.Shape(alias); found {
				name, shape, ok = alias, s, true
				break
			}
		}
	}
	if !ok {
		return nil, &MismatchError{Name: spec.Name, Msg: "missing tensor"}
	}
	if !slices.Equal(shape, spec.Shape) {
		return nil, &MismatchError{Name: name, Want: spec.Shape, Got: shape}
	}
	data, err := src.ReadF32(name)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	if want := numElements(spec.Shape); len(data) != want {
		return nil, &MismatchError{Name: name, Msg: fmt.Sprintf("%d elements, want %d", len(data), want)}
	}
	return data, nil
}

func numElements(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}
