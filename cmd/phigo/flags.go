package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/phigo/internal/inference"
	"github.com/samcharles93/phigo/internal/logger"
)

var (
	modelPath         string
	modelConfigPath   string
	tokenizerJSONPath string
	tokenizerConfig   string
	configFile        string
	logLevel          string
	logFormat         string
	debug             bool

	// fileConfig is the parsed config file, loaded before any command runs.
	fileConfig Config
)

func modelFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "model",
			Usage:       "checkpoint directory or .safetensors file",
			Sources:     cli.EnvVars("PHIGO_MODEL"),
			Destination: &modelPath,
		},
		&cli.StringFlag{
			Name:        "model-config",
			Usage:       "override path to config.json",
			Destination: &modelConfigPath,
		},
		&cli.StringFlag{
			Name:        "tokenizer-json",
			Usage:       "override path to tokenizer.json",
			Destination: &tokenizerJSONPath,
		},
		&cli.StringFlag{
			Name:        "tokenizer-config",
			Usage:       "override path to tokenizer_config.json",
			Destination: &tokenizerConfig,
		},
	}
}

func loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (pretty, json, text)",
			Value:       "pretty",
			Destination: &logFormat,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Destination: &debug,
		},
	}
}

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:        "config",
		Usage:       "path to config.yaml",
		Value:       defaultConfigPath(),
		Destination: &configFile,
	}
}

// setup loads the config file and installs the logger on the context every
// command receives.
func setup(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	cfg, err := LoadConfig(configFile, cmd.IsSet("config"))
	if err != nil {
		return ctx, err
	}
	fileConfig = cfg
	applyLoggingConfig(cmd, cfg)

	level := logger.ParseLevel(logLevel)
	if debug {
		level = slog.LevelDebug
	}
	log := logger.ForFormat(logFormat, os.Stderr, level)
	return logger.WithContext(ctx, log), nil
}

type samplingOptions struct {
	temp        float64
	maxTokens   int64
	seed        int64
	decodeChunk int64
}

func samplingFlags(s *samplingOptions, defaultTemp float64) []cli.Flag {
	return []cli.Flag{
		&cli.FloatFlag{
			Name:        "temp",
			Aliases:     []string{"temperature", "t"},
			Usage:       "sampling temperature (0 = greedy)",
			Value:       defaultTemp,
			Destination: &s.temp,
		},
		&cli.Int64Flag{
			Name:        "max-tokens",
			Aliases:     []string{"m"},
			Usage:       "maximum number of generated tokens",
			Value:       inference.DefaultMaxTokens,
			Destination: &s.maxTokens,
		},
		&cli.Int64Flag{
			Name:        "seed",
			Usage:       "random seed",
			Destination: &s.seed,
		},
		&cli.Int64Flag{
			Name:        "decode-chunk",
			Usage:       "tokens decoded and streamed at a time",
			Value:       inference.DefaultDecodeChunk,
			Destination: &s.decodeChunk,
		},
	}
}

// loadModel binds the checkpoint named by the model flags.
func loadModel(ctx context.Context, progress bool, opts ...inference.EngineOption) (*inference.LoadResult, error) {
	if modelPath == "" {
		return nil, fmt.Errorf("--model is required (or set model in %s)", configFile)
	}
	loader := inference.Loader{
		ConfigPath:          modelConfigPath,
		TokenizerJSONPath:   tokenizerJSONPath,
		TokenizerConfigPath: tokenizerConfig,
	}
	if progress {
		loader.Progress = os.Stderr
	}
	return loader.Load(ctx, modelPath, opts...)
}
