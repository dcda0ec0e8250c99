package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/phigo/internal/inference"
	"github.com/samcharles93/phigo/internal/logger"
)

const defaultPrompt = "Write a detailed analogy between mathematics and a lighthouse."

func generateCmd() *cli.Command {
	var (
		sampling       samplingOptions
		prompt         string
		raw            bool
		assistantLabel string
	)

	flags := append(modelFlags(), samplingFlags(&sampling, 0)...)
	flags = append(flags,
		&cli.StringFlag{
			Name:        "prompt",
			Aliases:     []string{"p"},
			Usage:       "the message to be processed by the model",
			Value:       defaultPrompt,
			Destination: &prompt,
		},
		&cli.BoolFlag{
			Name:        "raw",
			Usage:       "send the prompt as is instead of as a user turn",
			Destination: &raw,
		},
		&cli.StringFlag{
			Name:        "assistant-label",
			Usage:       "speaker label that ends the prompt",
			Value:       inference.DefaultAssistantLabel,
			Destination: &assistantLabel,
		},
	)

	return &cli.Command{
		Name:  "generate",
		Usage: "Generate one completion and stream it to stdout",
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			applyModelConfig(cmd, fileConfig)
			applySamplingConfig(cmd, fileConfig, &sampling)
			log := logger.FromContext(ctx)

			res, err := loadModel(ctx, true, inference.WithDecodeChunk(int(sampling.decodeChunk)))
			if err != nil {
				return err
			}
			defer func() { _ = res.Engine.Close() }()

			text := prompt
			if !raw {
				text = inference.FormatPrompt("user", prompt, assistantLabel)
			}
			req, err := inference.ResolveRequest(inference.RequestOptions{
				Prompt:      text,
				MaxTokens:   ptr(int(sampling.maxTokens)),
				Temperature: ptr(sampling.temp),
				Seed:        ptr(sampling.seed),
			}, inference.Defaults{MaxTokens: int(sampling.maxTokens)})
			if err != nil {
				return err
			}

			result, err := runGeneration(ctx, res.Engine, req, stdout(cmd))
			if err != nil {
				return err
			}
			log.Info("generation complete",
				"prompt_tokens", result.Stats.PromptTokens,
				"generated_tokens", result.Stats.TokensGenerated,
				"elapsed", result.Stats.Duration.Round(time.Millisecond).String(),
				"tps", fmt.Sprintf("%.2f", result.Stats.TPS),
			)
			return nil
		},
	}
}

// runGeneration streams the completion to w, ending with a newline.
func runGeneration(ctx context.Context, engine inference.Engine, req inference.Request, w io.Writer) (*inference.Result, error) {
	var writeErr error
	result, err := engine.Generate(ctx, &req, func(text string) {
		if writeErr == nil {
			_, writeErr = io.WriteString(w, text)
		}
	})
	if err != nil {
		return nil, err
	}
	if writeErr == nil {
		_, writeErr = io.WriteString(w, "\n")
	}
	return result, writeErr
}

func ptr[T any](v T) *T { return &v }

func stdout(cmd *cli.Command) io.Writer {
	if w := cmd.Root().Writer; w != nil {
		return w
	}
	return os.Stdout
}
