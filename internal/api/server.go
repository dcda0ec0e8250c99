package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v5"

	"github.com/samcharles93/phigo/internal/inference"
	"github.com/samcharles93/phigo/internal/logger"
	"github.com/samcharles93/phigo/internal/metrics"
)

const defaultModelName = "phi-2"

type Config struct {
	// ModelName is reported in responses and by /v1/models.
	ModelName string
	// AssistantLabel ends every prompt. Empty means inference.DefaultAssistantLabel.
	AssistantLabel string
	// Defaults fill request fields the client leaves out.
	Defaults inference.Defaults
	// Fingerprint identifies the loaded weights as system_fingerprint.
	Fingerprint string
	// RateLimit is the sustained request rate per second. Zero disables it.
	RateLimit float64
	RateBurst int
	Metrics   *metrics.Metrics
	Logger    logger.Logger
}

// Server exposes a loaded engine over an OpenAI-compatible HTTP surface.
type Server struct {
	cfg      Config
	provider EngineProvider
	log      logger.Logger
	clock    func() time.Time
	started  time.Time
}

func NewServer(provider EngineProvider, cfg Config) *Server {
	if cfg.ModelName == "" {
		cfg.ModelName = defaultModelName
	}
	if cfg.AssistantLabel == "" {
		cfg.AssistantLabel = inference.DefaultAssistantLabel
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Default()
	}
	return &Server{
		cfg:      cfg,
		provider: provider,
		log:      log,
		clock:    time.Now,
		started:  time.Now(),
	}
}

func (s *Server) Register(e *echo.Echo) {
	api := e.Group("/v1")
	if s.cfg.RateLimit > 0 {
		api.Use(rateLimit(s.cfg.RateLimit, s.cfg.RateBurst, s.cfg.Metrics))
	}
	api.POST("/chat/completions", s.handleChatCompletions)
	api.GET("/models", s.handleListModels)

	e.GET("/healthz", s.handleHealth)
	if s.cfg.Metrics != nil {
		e.GET("/metrics", s.handleMetrics)
	}
}

func (s *Server) handleHealth(c *echo.Context) error {
	if s.provider == nil {
		return writeError(c, http.StatusServiceUnavailable, "server_error", ErrEngineUnavailable.Error(), "", "engine_unavailable")
	}
	return c.JSON(http.StatusOK, map[string]any{
		"status": "ok",
		"model":  s.cfg.ModelName,
	})
}

func (s *Server) handleListModels(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"object": "list",
		"data": []map[string]any{{
			"id":       s.cfg.ModelName,
			"object":   "model",
			"created":  s.started.Unix(),
			"owned_by": "local",
		}},
	})
}

func (s *Server) handleMetrics(c *echo.Context) error {
	s.cfg.Metrics.Handler().ServeHTTP(c.Response(), c.Request())
	return nil
}
