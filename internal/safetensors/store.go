package safetensors

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/cespare/xxhash/v2"
	"github.com/goccy/go-json"
)

const (
	singleFile = "model.safetensors"
	indexFile  = "model.safetensors.index.json"
)

// Store is a read-only view over one or more safetensors shards that
// together hold a checkpoint. Tensor names are unique across shards.
type Store struct {
	files []*File
	owner map[string]*File
}

type shardIndex struct {
	WeightMap map[string]string `json:"weight_map"`
}

// OpenDir opens the checkpoint in dir. A model.safetensors.index.json
// selects the shard set; otherwise model.safetensors is used, and failing
// that every *.safetensors file in the directory.
func OpenDir(dir string) (*Store, error) {
	paths, err := shardPaths(dir)
	if err != nil {
		return nil, err
	}
	return OpenFiles(paths...)
}

func shardPaths(dir string) ([]string, error) {
	data, err := os.ReadFile(filepath.Join(dir, indexFile))
	switch {
	case err == nil:
		var idx shardIndex
		if err := json.Unmarshal(data, &idx); err != nil {
			return nil, fmt.Errorf("parse %s: %w", indexFile, err)
		}
		var names []string
		for _, shard := range idx.WeightMap {
			if !slices.Contains(names, shard) {
				names = append(names, shard)
			}
		}
		if len(names) == 0 {
			return nil, fmt.Errorf("%s: empty weight_map", indexFile)
		}
		slices.Sort(names)
		paths := make([]string, len(names))
		for i, n := range names {
			paths[i] = filepath.Join(dir, n)
		}
		return paths, nil
	case !errors.Is(err, os.ErrNotExist):
		return nil, err
	}

	single := filepath.Join(dir, singleFile)
	if _, err := os.Stat(single); err == nil {
		return []string{single}, nil
	}
	paths, err := filepath.Glob(filepath.Join(dir, "*.safetensors"))
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no safetensors files in %s", dir)
	}
	slices.Sort(paths)
	return paths, nil
}

// OpenFiles opens the given shards as one store.
func OpenFiles(paths ...string) (*Store, error) {
	s := &Store{owner: make(map[string]*File)}
	for _, p := range paths {
		f, err := Open(p)
		if err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("open %s: %w", p, err)
		}
		s.files = append(s.files, f)
		for name := range f.Tensors {
			if prev, dup := s.owner[name]; dup {
				_ = s.Close()
				return nil, fmt.Errorf("tensor %s present in both %s and %s", name, prev.Path, f.Path)
			}
			s.owner[name] = f
		}
	}
	return s, nil
}

// Close unmaps every shard.
func (s *Store) Close() error {
	var errs []error
	for _, f := range s.files {
		errs = append(errs, f.Close())
	}
	s.files = nil
	s.owner = nil
	return errors.Join(errs...)
}

// Files returns the shard paths in open order.
func (s *Store) Files() []string {
	out := make([]string, len(s.files))
	for i, f := range s.files {
		out[i] = f.Path
	}
	return out
}

func (s *Store) Names() []string {
	names := make([]string, 0, len(s.owner))
	for name := range s.owner {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (s *Store) Info(name string) (TensorInfo, bool) {
	f, ok := s.owner[name]
	if !ok {
		return TensorInfo{}, false
	}
	return f.Tensor(name)
}

func (s *Store) Shape(name string) ([]int, bool) {
	info, ok := s.Info(name)
	if !ok {
		return nil, false
	}
	return slices.Clone(info.Shape), true
}

func (s *Store) ReadF32(name string) ([]float32, error) {
	f, ok := s.owner[name]
	if !ok {
		return nil, fmt.Errorf("tensor not found: %s", name)
	}
	out, _, err := f.ReadTensorF32(name)
	return out, err
}

// Fingerprint hashes the sorted tensor directory (names, dtypes and
// shapes). Two checkpoints with the same layout share a fingerprint.
func (s *Store) Fingerprint() string {
	h := xxhash.New()
	var buf [8]byte
	for _, name := range s.Names() {
		info, _ := s.Info(name)
		_, _ = h.WriteString(name)
		_, _ = h.Write([]byte{0})
		_, _ = h.WriteString(info.DType)
		for _, d := range info.Shape {
			binary.LittleEndian.PutUint64(buf[:], uint64(d))
			_, _ = h.Write(buf[:])
		}
	}
	return fmt.Sprintf("fp_%016x", h.Sum64())
}
