package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"

	"github.com/samcharles93/phigo/internal/inference"
	"github.com/samcharles93/phigo/internal/model"
	"github.com/samcharles93/phigo/internal/toy"
)

func TestChatCompletionsBasic(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{chunks: []string{" ok "}, stats: inference.Stats{PromptTokens: 7, TokensGenerated: 3}}
	e := newTestEcho(engine, testConfig())
	rec := doJSON(t, e, http.MethodPost, "/v1/chat/completions", `{"messages":[{"role":"user","content":"hello"}]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp ChatCompletionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "chat.completion", resp.Object)
	require.True(t, strings.HasPrefix(resp.ID, "chatcmpl-"), resp.ID)
	require.Equal(t, defaultModelName, resp.Model)
	require.Equal(t, "fp_test", resp.SystemFingerprint)
	require.NotZero(t, resp.Created)
	require.Len(t, resp.Choices, 1)

	choice := resp.Choices[0]
	require.Equal(t, 0, choice.Index)
	require.NotNil(t, choice.Message)
	require.Equal(t, "assistant", choice.Message.Role)
	require.Equal(t, "ok", choice.Message.Content)
	require.NotNil(t, choice.FinishReason)
	require.Equal(t, "stop", *choice.FinishReason)
	require.Equal(t, ChatUsage{PromptTokens: 7, CompletionTokens: 3, TotalTokens: 10}, resp.Usage)

	require.Equal(t, "user: hello\nAssistance: ", engine.lastRequest().Prompt)
}

func TestChatCompletionsResolvesDefaults(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		want func(t *testing.T, req inference.Request)
	}{
		{
			name: "server defaults",
			body: `{"messages":[{"role":"user","content":"hi"}]}`,
			want: func(t *testing.T, req inference.Request) {
				require.Equal(t, inference.DefaultTemperature, req.Temperature)
				require.Equal(t, 16, req.MaxTokens)
				require.NotZero(t, req.Seed)
			},
		},
		{
			name: "explicit values",
			body: `{"messages":[{"role":"user","content":"hi"}],"temperature":0,"max_tokens":4,"seed":99}`,
			want: func(t *testing.T, req inference.Request) {
				require.Equal(t, 0.0, req.Temperature)
				require.Equal(t, 4, req.MaxTokens)
				require.Equal(t, int64(99), req.Seed)
			},
		},
		{
			name: "max tokens clamped",
			body: `{"messages":[{"role":"user","content":"hi"}],"max_tokens":100000}`,
			want: func(t *testing.T, req inference.Request) {
				require.Equal(t, 16, req.MaxTokens)
			},
		},
		{
			name: "max completion tokens wins",
			body: `{"messages":[{"role":"user","content":"hi"}],"max_tokens":2,"max_completion_tokens":3}`,
			want: func(t *testing.T, req inference.Request) {
				require.Equal(t, 3, req.MaxTokens)
			},
		},
		{
			name: "text parts and custom role",
			body: `{"messages":[{"role":"system","content":[{"type":"text","text":"a"},{"type":"text","text":"b"}]},{"role":"user","content":"ignored"}]}`,
			want: func(t *testing.T, req inference.Request) {
				require.Equal(t, "system: a\nb\nAssistance: ", req.Prompt)
			},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			engine := &fakeEngine{chunks: []string{"ok"}}
			rec := doJSON(t, newTestEcho(engine, testConfig()), http.MethodPost, "/v1/chat/completions", tc.body)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			tc.want(t, engine.lastRequest())
		})
	}
}

func TestChatCompletionsAssistantLabel(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.AssistantLabel = "Assistant"
	engine := &fakeEngine{chunks: []string{"ok"}}
	rec := doJSON(t, newTestEcho(engine, cfg), http.MethodPost, "/v1/chat/completions", `{"messages":[{"role":"user","content":"hi"}]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "user: hi\nAssistant: ", engine.lastRequest().Prompt)
}

func TestChatCompletionsBadRequests(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		code string
	}{
		{name: "invalid json", body: `{"messages":`},
		{name: "missing messages", body: `{}`},
		{name: "empty messages", body: `{"messages":[]}`},
		{name: "missing role", body: `{"messages":[{"content":"hi"}]}`},
		{name: "image part", body: `{"messages":[{"role":"user","content":[{"type":"image_url"}]}]}`},
		{name: "numeric content", body: `{"messages":[{"role":"user","content":5}]}`},
		{name: "negative temperature", body: `{"messages":[{"role":"user","content":"hi"}],"temperature":-1}`, code: "invalid_sampling_parameter"},
		{name: "zero max tokens", body: `{"messages":[{"role":"user","content":"hi"}],"max_tokens":0}`, code: "invalid_max_tokens"},
		{name: "negative max completion tokens", body: `{"messages":[{"role":"user","content":"hi"}],"max_completion_tokens":-1}`, code: "invalid_max_tokens"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			engine := &fakeEngine{chunks: []string{"ok"}}
			rec := doJSON(t, newTestEcho(engine, testConfig()), http.MethodPost, "/v1/chat/completions", tc.body)
			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			apiErr := decodeError(t, rec)
			require.Equal(t, "invalid_request_error", apiErr.Type)
			require.Equal(t, tc.code, apiErr.Code)
			require.NotEmpty(t, apiErr.Message)
			require.Zero(t, engine.calls)
		})
	}
}

func TestChatCompletionsEngineErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		err     error
		status  int
		errType string
		code    string
	}{
		{
			name:    "tokenization",
			err:     &inference.TokenizationError{Op: "encode", Err: errors.New("bad input")},
			status:  http.StatusBadRequest,
			errType: "invalid_request_error",
			code:    "tokenization_failure",
		},
		{
			name:    "context overflow",
			err:     fmt.Errorf("%w: prompt too long", model.ErrContextOverflow),
			status:  http.StatusBadRequest,
			errType: "invalid_request_error",
			code:    "context_length_exceeded",
		},
		{
			name:    "deadline",
			err:     context.DeadlineExceeded,
			status:  http.StatusGatewayTimeout,
			errType: "timeout_error",
			code:    "request_timeout",
		},
		{
			name:    "internal",
			err:     errors.New("panic in Forward: boom"),
			status:  http.StatusInternalServerError,
			errType: "server_error",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			e := newTestEcho(&fakeEngine{err: tc.err}, testConfig())
			rec := doJSON(t, e, http.MethodPost, "/v1/chat/completions", `{"messages":[{"role":"user","content":"hi"}]}`)
			require.Equal(t, tc.status, rec.Code, rec.Body.String())
			apiErr := decodeError(t, rec)
			require.Equal(t, tc.errType, apiErr.Type)
			require.Equal(t, tc.code, apiErr.Code)
		})
	}
}

func TestChatCompletionsRequestTimeout(t *testing.T) {
	t.Parallel()

	provider := NewBoundedEngineProvider(&fakeEngine{block: true}, EngineProviderConfig{RequestTimeout: 20 * time.Millisecond})
	server := NewServer(provider, testConfig())
	e := echoFor(server)

	rec := doJSON(t, e, http.MethodPost, "/v1/chat/completions", `{"messages":[{"role":"user","content":"hi"}]}`)
	require.Equal(t, http.StatusGatewayTimeout, rec.Code)
	require.Equal(t, "timeout_error", decodeError(t, rec).Type)
}

type sseEvent struct {
	raw   string
	chunk ChatCompletionChunk
}

func readSSE(t *testing.T, body string) []sseEvent {
	t.Helper()
	var events []sseEvent
	for _, block := range strings.Split(strings.TrimSpace(body), "\n\n") {
		data, ok := strings.CutPrefix(block, "data: ")
		require.True(t, ok, "malformed event %q", block)
		ev := sseEvent{raw: data}
		if data != "[DONE]" && !strings.HasPrefix(data, `{"error"`) {
			require.NoError(t, json.Unmarshal([]byte(data), &ev.chunk))
		}
		events = append(events, ev)
	}
	return events
}

func TestChatCompletionsStreaming(t *testing.T) {
	t.Parallel()

	e := newTestEcho(&fakeEngine{chunks: []string{"he", "llo"}}, testConfig())
	rec := doJSON(t, e, http.MethodPost, "/v1/chat/completions", `{"messages":[{"role":"user","content":"hi"}],"stream":true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	events := readSSE(t, rec.Body.String())
	require.Len(t, events, 5)
	require.Equal(t, "[DONE]", events[4].raw)

	first := events[0].chunk
	require.Equal(t, "chat.completion.chunk", first.Object)
	require.True(t, strings.HasPrefix(first.ID, "chatcmpl-"))
	require.Equal(t, "assistant", first.Choices[0].Delta.Role)

	var text strings.Builder
	for _, ev := range events[1:3] {
		require.Equal(t, first.ID, ev.chunk.ID)
		require.Nil(t, ev.chunk.Choices[0].FinishReason)
		text.WriteString(ev.chunk.Choices[0].Delta.Content.(string))
	}
	require.Equal(t, "hello", text.String())

	last := events[3].chunk.Choices[0]
	require.NotNil(t, last.FinishReason)
	require.Equal(t, "stop", *last.FinishReason)
}

func TestChatCompletionsStreamingEmptyOutput(t *testing.T) {
	t.Parallel()

	e := newTestEcho(&fakeEngine{}, testConfig())
	rec := doJSON(t, e, http.MethodPost, "/v1/chat/completions", `{"messages":[{"role":"user","content":"hi"}],"stream":true}`)
	require.Equal(t, http.StatusOK, rec.Code)

	events := readSSE(t, rec.Body.String())
	require.Len(t, events, 3)
	require.Equal(t, "stop", *events[1].chunk.Choices[0].FinishReason)
}

func TestChatCompletionsStreamingEarlyErrorIsJSON(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{err: &inference.TokenizationError{Op: "encode", Err: errors.New("bad")}}
	rec := doJSON(t, newTestEcho(engine, testConfig()), http.MethodPost, "/v1/chat/completions", `{"messages":[{"role":"user","content":"hi"}],"stream":true}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "tokenization_failure", decodeError(t, rec).Code)
}

func TestChatCompletionsToyModel(t *testing.T) {
	t.Parallel()

	m, err := toy.NewModel(toy.Config(), 5)
	require.NoError(t, err)
	engine := inference.NewEngine(m, toy.Tokenizer{})
	e := newTestEcho(engine, testConfig())

	rec := doJSON(t, e, http.MethodPost, "/v1/chat/completions", `{"messages":[{"role":"user","content":"hi"}]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp ChatCompletionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, len("user: hi\nAssistance: "), resp.Usage.PromptTokens)
	require.Positive(t, resp.Usage.CompletionTokens)
	require.LessOrEqual(t, resp.Usage.CompletionTokens, 16)
	require.Equal(t, resp.Usage.PromptTokens+resp.Usage.CompletionTokens, resp.Usage.TotalTokens)
	require.Equal(t, "stop", *resp.Choices[0].FinishReason)
	require.NotContains(t, resp.Choices[0].Message.Content, "<|endoftext|>")

	// a fixed seed replays the same completion
	body := `{"messages":[{"role":"user","content":"hi"}],"temperature":0.9,"seed":3,"max_tokens":8}`
	a := doJSON(t, e, http.MethodPost, "/v1/chat/completions", body)
	b := doJSON(t, e, http.MethodPost, "/v1/chat/completions", body)
	var ra, rb ChatCompletionResponse
	require.NoError(t, json.Unmarshal(a.Body.Bytes(), &ra))
	require.NoError(t, json.Unmarshal(b.Body.Bytes(), &rb))
	require.Equal(t, ra.Choices[0].Message.Content, rb.Choices[0].Message.Content)
	require.Equal(t, ra.Usage, rb.Usage)
}
