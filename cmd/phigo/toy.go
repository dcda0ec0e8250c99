package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/phigo/internal/logger"
	"github.com/samcharles93/phigo/internal/toy"
)

// toyCmd writes a tiny random-weight checkpoint that every other command
// accepts, for smoke testing without downloading Phi-2.
func toyCmd() *cli.Command {
	var (
		out  string
		seed int64
	)
	return &cli.Command{
		Name:  "toy",
		Usage: "Write a small random-weight checkpoint for smoke tests",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "out",
				Aliases:     []string{"o"},
				Usage:       "output directory",
				Required:    true,
				Destination: &out,
			},
			&cli.Int64Flag{
				Name:        "seed",
				Usage:       "weight seed",
				Value:       1,
				Destination: &seed,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg := toy.Config()
			if err := toy.WriteCheckpoint(out, cfg, seed); err != nil {
				return fmt.Errorf("write toy checkpoint: %w", err)
			}
			logger.FromContext(ctx).Info("toy checkpoint written",
				"dir", out,
				"layers", cfg.NumLayers,
				"hidden", cfg.HiddenDim,
				"vocab", cfg.VocabSize,
			)
			return nil
		},
	}
}
