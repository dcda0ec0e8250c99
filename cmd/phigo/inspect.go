package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/phigo/internal/inference"
	"github.com/samcharles93/phigo/internal/model"
	"github.com/samcharles93/phigo/internal/safetensors"
)

func inspectCmd() *cli.Command {
	var (
		showTensors  bool
		tensorFilter string
		tensorLimit  int
	)

	return &cli.Command{
		Name:  "inspect",
		Usage: "Describe a checkpoint and check it against the model geometry",
		Flags: append(modelFlags(),
			&cli.BoolFlag{Name: "tensors", Usage: "list tensor index", Destination: &showTensors},
			&cli.StringFlag{Name: "tensor-filter", Usage: "substring filter for tensor listing", Destination: &tensorFilter},
			&cli.IntFlag{Name: "tensors-limit", Usage: "limit tensor listing (0 = no limit)", Value: 50, Destination: &tensorLimit},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			applyModelConfig(cmd, fileConfig)
			if modelPath == "" {
				return fmt.Errorf("--model is required")
			}

			store, dir, err := inference.OpenWeights(modelPath)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			loader := inference.Loader{ConfigPath: modelConfigPath}
			cfg, err := loader.LoadConfig(dir)
			if err != nil {
				return err
			}
			source := loader.ConfigPath
			if source == "" {
				source = filepath.Join(dir, "config.json")
				if _, err := os.Stat(source); err != nil {
					source = "built-in phi-2"
				}
			}

			w := stdout(cmd)
			printSummary(w, store, cfg, source)
			if showTensors {
				printTensors(w, store, tensorFilter, tensorLimit)
			}
			if unused := model.UnusedTensors(cfg, store); len(unused) > 0 {
				_, _ = fmt.Fprintf(w, "\nunused:       %s\n", strings.Join(unused, ", "))
			}
			problems := checkBinding(cfg, store)
			if len(problems) == 0 {
				_, _ = fmt.Fprintln(w, "\nbinding:      ok")
				return nil
			}
			_, _ = fmt.Fprintf(w, "\nbinding:      %d problem(s)\n", len(problems))
			for _, p := range problems {
				_, _ = fmt.Fprintf(w, "  %s\n", p)
			}
			return fmt.Errorf("%w: %d tensor(s) do not match", model.ErrConfigMismatch, len(problems))
		},
	}
}

func printSummary(w io.Writer, store *safetensors.Store, cfg model.Config, source string) {
	dtypes := make(map[string]int)
	var params int64
	for _, name := range store.Names() {
		info, _ := store.Info(name)
		dtypes[info.DType]++
		n := int64(1)
		for _, d := range info.Shape {
			n *= int64(d)
		}
		params += n
	}
	kinds := make([]string, 0, len(dtypes))
	for dt, n := range dtypes {
		kinds = append(kinds, fmt.Sprintf("%s×%d", dt, n))
	}
	slices.Sort(kinds)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(tw, "files:\t%s\n", strings.Join(store.Files(), ", "))
	_, _ = fmt.Fprintf(tw, "tensors:\t%d (%s)\n", len(store.Names()), strings.Join(kinds, ", "))
	_, _ = fmt.Fprintf(tw, "parameters:\t%d\n", params)
	_, _ = fmt.Fprintf(tw, "fingerprint:\t%s\n", store.Fingerprint())
	_, _ = fmt.Fprintf(tw, "config:\t%s\n", source)
	_, _ = fmt.Fprintf(tw, "  layers:\t%d\n", cfg.NumLayers)
	_, _ = fmt.Fprintf(tw, "  hidden:\t%d\n", cfg.HiddenDim)
	_, _ = fmt.Fprintf(tw, "  heads:\t%d (head dim %d, rotary %d)\n", cfg.NumHeads, cfg.HeadDim(), cfg.RotaryDim)
	_, _ = fmt.Fprintf(tw, "  ffn:\t%d\n", cfg.FFNDim)
	_, _ = fmt.Fprintf(tw, "  vocab:\t%d\n", cfg.VocabSize)
	_, _ = fmt.Fprintf(tw, "  context:\t%d\n", cfg.MaxSequenceLength)
	_ = tw.Flush()
}

func printTensors(w io.Writer, store *safetensors.Store, filter string, limit int) {
	_, _ = fmt.Fprintln(w, "\ntensors:")
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	shown := 0
	for _, name := range store.Names() {
		if filter != "" && !strings.Contains(name, filter) {
			continue
		}
		if limit > 0 && shown == limit {
			_, _ = fmt.Fprintf(tw, "  ...\t\t\n")
			break
		}
		info, _ := store.Info(name)
		_, _ = fmt.Fprintf(tw, "  %s\t%s\t%v\n", name, info.DType, info.Shape)
		shown++
	}
	_ = tw.Flush()
}

// checkBinding compares shapes without reading tensor data.
func checkBinding(cfg model.Config, store *safetensors.Store) []string {
	var problems []string
	for _, spec := range model.RequiredTensors(cfg) {
		shape, ok := store.Shape(spec.Name)
		for _, alias := range spec.Aliases {
			if ok {
				break
			}
			shape, ok = store.Shape(alias)
		}
		switch {
		case !ok:
			problems = append(problems, spec.Name+": missing")
		case !slices.Equal(shape, spec.Shape):
			problems = append(problems, fmt.Sprintf("%s: shape %v, want %v", spec.Name, shape, spec.Shape))
		}
	}
	return problems
}
