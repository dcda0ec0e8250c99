package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/labstack/echo/v5"

	"github.com/samcharles93/phigo/internal/inference"
	"github.com/samcharles93/phigo/internal/logger"
)

// ChatCompletionRequest is the accepted subset of an OpenAI chat completion
// request. Unknown fields are ignored.
type ChatCompletionRequest struct {
	Model               string        `json:"model"`
	Messages            []ChatMessage `json:"messages"`
	Temperature         *float64      `json:"temperature,omitempty"`
	MaxTokens           *int          `json:"max_tokens,omitempty"`
	MaxCompletionTokens *int          `json:"max_completion_tokens,omitempty"`
	Seed                *int64        `json:"seed,omitempty"`
	Stream              *bool         `json:"stream,omitempty"`
	User                string        `json:"user,omitempty"`
}

type ChatMessage struct {
	Role    string `json:"role,omitempty"`
	Content any    `json:"content,omitempty"`
	Name    string `json:"name,omitempty"`
}

// ChatCompletionResponse is the response for non-streaming chat completions.
type ChatCompletionResponse struct {
	ID                string       `json:"id"`
	Object            string       `json:"object"`
	Created           int64        `json:"created"`
	Model             string       `json:"model"`
	Choices           []ChatChoice `json:"choices"`
	Usage             ChatUsage    `json:"usage"`
	SystemFingerprint string       `json:"system_fingerprint,omitempty"`
}

type ChatChoice struct {
	Index        int          `json:"index"`
	Message      *ChatMessage `json:"message,omitempty"`
	Delta        *ChatMessage `json:"delta,omitempty"`
	FinishReason *string      `json:"finish_reason"`
}

type ChatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatCompletionChunk is a streaming SSE chunk.
type ChatCompletionChunk struct {
	ID                string       `json:"id"`
	Object            string       `json:"object"`
	Created           int64        `json:"created"`
	Model             string       `json:"model"`
	Choices           []ChatChoice `json:"choices"`
	SystemFingerprint string       `json:"system_fingerprint,omitempty"`
}

const finishReasonStop = "stop"

// completion carries what the sync and stream paths share.
type completion struct {
	id      string
	created int64
	req     inference.Request
}

func (s *Server) handleChatCompletions(c *echo.Context) error {
	if s.provider == nil {
		return s.writeFailure(c, ErrEngineUnavailable)
	}

	body, err := decodeJSON[ChatCompletionRequest](c.Request().Body)
	if err != nil {
		return s.writeFailure(c, err)
	}
	req, err := s.buildRequest(&body)
	if err != nil {
		return s.writeFailure(c, err)
	}

	comp := completion{
		id:      "chatcmpl-" + uuid.NewString(),
		created: s.clock().Unix(),
		req:     req,
	}
	ctx := logger.WithContext(c.Request().Context(), s.log.With("completion_id", comp.id))

	if body.Stream != nil && *body.Stream {
		return s.handleChatCompletionsStream(ctx, c, comp)
	}
	return s.handleChatCompletionsSync(ctx, c, comp)
}

// buildRequest validates the body and resolves it against the server
// defaults. Only the first message forms the prompt.
func (s *Server) buildRequest(body *ChatCompletionRequest) (inference.Request, error) {
	if len(body.Messages) == 0 {
		return inference.Request{}, newInvalidRequest("messages is required and must not be empty")
	}
	first := body.Messages[0]
	if first.Role == "" {
		return inference.Request{}, newInvalidRequest("messages[0].role is required")
	}
	content, err := messageText(first.Content)
	if err != nil {
		return inference.Request{}, err
	}

	maxTokens := body.MaxTokens
	if body.MaxCompletionTokens != nil {
		maxTokens = body.MaxCompletionTokens
	}
	return inference.ResolveRequest(inference.RequestOptions{
		Prompt:      inference.FormatPrompt(first.Role, content, s.cfg.AssistantLabel),
		MaxTokens:   maxTokens,
		Temperature: body.Temperature,
		Seed:        body.Seed,
	}, s.cfg.Defaults)
}

func (s *Server) handleChatCompletionsSync(ctx context.Context, c *echo.Context, comp completion) error {
	var result *inference.Result
	err := s.provider.WithEngine(ctx, func(ctx context.Context, engine inference.Engine) error {
		res, err := engine.Generate(ctx, &comp.req, nil)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		return s.writeFailure(c, err)
	}

	finishReason := finishReasonStop
	resp := ChatCompletionResponse{
		ID:      comp.id,
		Object:  "chat.completion",
		Created: comp.created,
		Model:   s.cfg.ModelName,
		Choices: []ChatChoice{
			{
				Index: 0,
				Message: &ChatMessage{
					Role:    "assistant",
					Content: result.Text,
				},
				FinishReason: &finishReason,
			},
		},
		Usage: ChatUsage{
			PromptTokens:     result.Stats.PromptTokens,
			CompletionTokens: result.Stats.TokensGenerated,
			TotalTokens:      result.Stats.PromptTokens + result.Stats.TokensGenerated,
		},
		SystemFingerprint: s.cfg.Fingerprint,
	}

	s.cfg.Metrics.ObserveRequest(strconv.Itoa(http.StatusOK))
	return c.JSON(http.StatusOK, resp)
}

// handleChatCompletionsStream defers the SSE headers until the first text
// arrives, so failures before generation starts still get a JSON error
// with a proper status.
func (s *Server) handleChatCompletionsStream(ctx context.Context, c *echo.Context, comp completion) error {
	res := c.Response()
	flusher, ok := res.(interface{ Flush() })
	if !ok {
		return writeBadRequest(c, "streaming unsupported")
	}

	chunk := func(delta ChatMessage, finish *string) ChatCompletionChunk {
		return ChatCompletionChunk{
			ID:                comp.id,
			Object:            "chat.completion.chunk",
			Created:           comp.created,
			Model:             s.cfg.ModelName,
			Choices:           []ChatChoice{{Index: 0, Delta: &delta, FinishReason: finish}},
			SystemFingerprint: s.cfg.Fingerprint,
		}
	}

	started := false
	var writeErr error
	send := func(v any) {
		if writeErr == nil {
			writeErr = sendSSEChunk(res, v)
			flusher.Flush()
		}
	}
	start := func() {
		if started {
			return
		}
		started = true
		res.Header().Set(echo.HeaderContentType, "text/event-stream")
		res.Header().Set("Cache-Control", "no-cache")
		res.Header().Set("Connection", "keep-alive")
		res.WriteHeader(http.StatusOK)
		send(chunk(ChatMessage{Role: "assistant"}, nil))
	}

	err := s.provider.WithEngine(ctx, func(ctx context.Context, engine inference.Engine) error {
		_, err := engine.Generate(ctx, &comp.req, func(text string) {
			start()
			send(chunk(ChatMessage{Content: text}, nil))
		})
		return err
	})
	if err != nil && !started {
		return s.writeFailure(c, err)
	}
	start()

	if err != nil {
		ae := classify(err)
		s.cfg.Metrics.ObserveRequest(strconv.Itoa(ae.status))
		if ae.status == StatusClientClosedRequest {
			return nil
		}
		send(map[string]any{"error": ResponseError{Message: err.Error(), Type: ae.errType, Code: ae.code}})
	} else {
		s.cfg.Metrics.ObserveRequest(strconv.Itoa(http.StatusOK))
		finishReason := finishReasonStop
		send(chunk(ChatMessage{}, &finishReason))
	}
	if writeErr == nil {
		_, writeErr = fmt.Fprint(res, "data: [DONE]\n\n")
		flusher.Flush()
	}
	if writeErr != nil {
		s.log.Debug("stream write failed", "completion_id", comp.id, "error", writeErr)
	}
	return nil
}

func sendSSEChunk(w io.Writer, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", b)
	return err
}
