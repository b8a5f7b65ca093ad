package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/park285/clarification-agent-go/internal/cache"
	"github.com/park285/clarification-agent-go/internal/clarify"
	"github.com/park285/clarification-agent-go/internal/httperror"
	"github.com/park285/clarification-agent-go/internal/metrics"
	"github.com/park285/clarification-agent-go/internal/middleware"
)

// ClarifyRequest 는 명확화 요청 본문이다.
// user_input 은 빈 문자열이어도 되지만 필드 자체는 있어야 한다.
type ClarifyRequest struct {
	UserInput *string        `json:"user_input" binding:"required"`
	Context   map[string]any `json:"context"`
}

// Runner 는 HTTP/gRPC 가 공유하는 에이전트 호출 인터페이스다.
type Runner interface {
	Run(ctx context.Context, req clarify.Request) (*clarify.Result, error)
	Configured() bool
	Chain() string
}

// CacheStats 는 결과 캐시 통계 조회 인터페이스다.
type CacheStats interface {
	Backend() string
	Stats() cache.Stats
}

// ClarifyHandler 는 명확화 API 핸들러다.
type ClarifyHandler struct {
	agent  Runner
	stats  *metrics.ClarifyStats
	llm    *metrics.Store
	cache  CacheStats
	logger *slog.Logger
}

// NewClarifyHandler 는 명확화 핸들러를 생성한다. cache 는 nil 일 수 있다.
func NewClarifyHandler(
	agent Runner,
	stats *metrics.ClarifyStats,
	llmStats *metrics.Store,
	cacheStats CacheStats,
	logger *slog.Logger,
) *ClarifyHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ClarifyHandler{agent: agent, stats: stats, llm: llmStats, cache: cacheStats, logger: logger}
}

// RegisterRoutes 는 명확화 라우트를 등록한다.
func (h *ClarifyHandler) RegisterRoutes(router gin.IRouter) {
	group := router.Group("/api/clarify")
	group.POST("", h.handleRun)
	group.GET("/metrics", h.handleMetrics)
}

func (h *ClarifyHandler) handleRun(c *gin.Context) {
	var req ClarifyRequest
	if !bindJSON(c, &req) {
		return
	}

	ctx := c.Request.Context()
	workflow, unused, err := clarify.DecodeContext(req.Context)
	if err != nil {
		writeError(c, httperror.NewInvalidInput(err.Error()))
		return
	}
	if len(unused) > 0 {
		h.logger.DebugContext(ctx, "clarify_context_unused_keys",
			"request_id", middleware.GetRequestID(c),
			"keys", unused,
		)
	}

	result, err := h.agent.Run(ctx, clarify.Request{UserInput: *req.UserInput, Context: workflow})
	if err != nil {
		logRequestError(c, h.logger, "clarify_request_failed", err)
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *ClarifyHandler) handleMetrics(c *gin.Context) {
	payload := gin.H{
		"agent": gin.H{
			"configured": h.agent.Configured(),
			"chain":      h.agent.Chain(),
		},
		"runs": h.stats.Snapshot(),
	}
	if h.llm != nil {
		payload["llm"] = h.llm.Snapshot()
	}
	if h.cache != nil {
		stats := h.cache.Stats()
		payload["cache"] = gin.H{
			"backend":   h.cache.Backend(),
			"hits":      stats.Hits,
			"misses":    stats.Misses,
			"evictions": stats.Evictions,
			"size":      stats.Size,
		}
	}
	c.JSON(http.StatusOK, payload)
}
