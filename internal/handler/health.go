package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/park285/clarification-agent-go/internal/config"
	"github.com/park285/clarification-agent-go/internal/health"
)

// RuntimeConfigResponse: 에이전트 실행 설정 응답입니다. 비밀 값은 포함하지 않습니다.
type RuntimeConfigResponse struct {
	Mode            string  `json:"mode"`
	Chain           string  `json:"chain"`
	Model           string  `json:"model"`
	Temperature     float64 `json:"temperature"`
	ThinkingLevel   string  `json:"thinking_level"`
	TimeoutSeconds  int     `json:"timeout_seconds"`
	MaxRetries      int     `json:"max_retries"`
	MaxQuestions    int     `json:"max_questions"`
	MaxInputRunes   int     `json:"max_input_runes"`
	DefaultLanguage string  `json:"default_language"`
	CacheEnabled    bool    `json:"cache_enabled"`
	CacheBackend    string  `json:"cache_backend"`
	TransportMode   string  `json:"transport_mode"`
	GRPCEnabled     bool    `json:"grpc_enabled"`
}

// RegisterHealthRoutes: 상태 확인 라우트와 Prometheus 노출 경로를 등록합니다.
func RegisterHealthRoutes(router gin.IRouter, cfg *config.Config, checker *health.Checker, agent Runner) {
	router.GET("/health", func(c *gin.Context) {
		// Liveness 는 외부 저장소 상태에 끌려 내려가지 않도록 shallow 로 유지한다.
		c.JSON(http.StatusOK, checker.Collect(c.Request.Context(), false))
	})

	router.GET("/health/ready", func(c *gin.Context) {
		payload := checker.Collect(c.Request.Context(), true)
		status := http.StatusOK
		if payload.Status != "ok" {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, payload)
	})

	router.GET("/health/config", func(c *gin.Context) {
		c.JSON(http.StatusOK, runtimeConfig(cfg, agent))
	})

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

func runtimeConfig(cfg *config.Config, agent Runner) RuntimeConfigResponse {
	model := cfg.Gemini.ModelForTask("clarify")
	transportMode := "h1"
	if cfg.HTTP.HTTP2Enabled {
		transportMode = "h2c"
	}
	chain := ""
	if agent != nil {
		chain = agent.Chain()
	}
	return RuntimeConfigResponse{
		Mode:            cfg.Clarify.NormalizedMode(),
		Chain:           chain,
		Model:           model,
		Temperature:     cfg.Gemini.TemperatureForModel(model),
		ThinkingLevel:   cfg.Gemini.ThinkingLevel,
		TimeoutSeconds:  cfg.Gemini.TimeoutSeconds,
		MaxRetries:      cfg.Gemini.MaxRetries,
		MaxQuestions:    cfg.Clarify.MaxQuestions,
		MaxInputRunes:   cfg.Clarify.MaxInputRunes,
		DefaultLanguage: cfg.Clarify.DefaultLanguage,
		CacheEnabled:    cfg.Clarify.CacheEnabled,
		CacheBackend:    cfg.Clarify.CacheBackend,
		TransportMode:   transportMode,
		GRPCEnabled:     cfg.GRPC.Enabled,
	}
}
