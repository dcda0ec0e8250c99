package main

import (
	"context"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/phigo/internal/api"
	"github.com/samcharles93/phigo/internal/inference"
	"github.com/samcharles93/phigo/internal/logger"
	"github.com/samcharles93/phigo/internal/metrics"
)

type serveOptions struct {
	addr           string
	readTimeout    time.Duration
	modelName      string
	assistantLabel string
	maxSessions    int64
	requestTimeout time.Duration
	rateLimit      float64
	rateBurst      int64
}

func serveCmd() *cli.Command {
	var (
		sampling samplingOptions
		opts     serveOptions
	)

	flags := append(modelFlags(), samplingFlags(&sampling, inference.DefaultTemperature)...)
	flags = append(flags,
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "listen address",
			Value:       "127.0.0.1:8080",
			Destination: &opts.addr,
		},
		&cli.DurationFlag{
			Name:        "read-timeout",
			Usage:       "read header timeout",
			Value:       30 * time.Second,
			Destination: &opts.readTimeout,
		},
		&cli.StringFlag{
			Name:        "model-name",
			Usage:       "model id reported by the API (default: checkpoint directory name)",
			Destination: &opts.modelName,
		},
		&cli.StringFlag{
			Name:        "assistant-label",
			Usage:       "speaker label that ends every prompt",
			Value:       inference.DefaultAssistantLabel,
			Destination: &opts.assistantLabel,
		},
		&cli.Int64Flag{
			Name:        "max-sessions",
			Usage:       "maximum concurrent generations",
			Value:       1,
			Destination: &opts.maxSessions,
		},
		&cli.DurationFlag{
			Name:        "request-timeout",
			Usage:       "deadline for one request including queueing (0 = none)",
			Value:       5 * time.Minute,
			Destination: &opts.requestTimeout,
		},
		&cli.FloatFlag{
			Name:        "rate-limit",
			Usage:       "sustained requests per second across all clients (0 = unlimited)",
			Destination: &opts.rateLimit,
		},
		&cli.Int64Flag{
			Name:        "rate-burst",
			Usage:       "requests allowed above the rate limit in a burst",
			Destination: &opts.rateBurst,
		},
	)

	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the OpenAI-compatible chat completions API",
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			applyModelConfig(cmd, fileConfig)
			applySamplingConfig(cmd, fileConfig, &sampling)
			applyServeConfig(cmd, fileConfig, &opts)
			log := logger.FromContext(ctx)

			m := metrics.New()
			res, err := loadModel(ctx, false,
				inference.WithDecodeChunk(int(sampling.decodeChunk)),
				inference.WithMetrics(m),
			)
			if err != nil {
				return err
			}
			defer func() { _ = res.Engine.Close() }()

			if opts.modelName == "" {
				opts.modelName = modelNameFromPath(modelPath)
			}
			provider := api.NewBoundedEngineProvider(res.Engine, api.EngineProviderConfig{
				MaxSessions:    opts.maxSessions,
				RequestTimeout: opts.requestTimeout,
			})
			server := api.NewServer(provider, api.Config{
				ModelName:      opts.modelName,
				AssistantLabel: opts.assistantLabel,
				Defaults: inference.Defaults{
					Temperature: sampling.temp,
					MaxTokens:   int(sampling.maxTokens),
					Seeds:       inference.NewSeedSource(sampling.seed),
				},
				Fingerprint: res.Fingerprint,
				RateLimit:   opts.rateLimit,
				RateBurst:   int(opts.rateBurst),
				Metrics:     m,
				Logger:      log,
			})

			e := echo.New()
			e.Use(middleware.RequestLogger())
			e.Use(middleware.Recover())
			server.Register(e)
			log.Info("starting server",
				"address", opts.addr,
				"model", opts.modelName,
				"max_tokens", sampling.maxTokens,
				"max_sessions", opts.maxSessions,
			)
			sc := echo.StartConfig{
				Address: opts.addr,
				BeforeServeFunc: func(srv *http.Server) error {
					srv.ReadHeaderTimeout = opts.readTimeout
					return nil
				},
			}
			return sc.Start(ctx, e)
		},
	}
}

func modelNameFromPath(path string) string {
	name := filepath.Base(filepath.Clean(path))
	if strings.HasSuffix(name, ".safetensors") {
		name = filepath.Base(filepath.Dir(filepath.Clean(path)))
	}
	return strings.ToLower(name)
}
