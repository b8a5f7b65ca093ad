package handler

import (
	"log/slog"
	"strings"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/park285/clarification-agent-go/internal/config"
	"github.com/park285/clarification-agent-go/internal/health"
	"github.com/park285/clarification-agent-go/internal/httperror"
	"github.com/park285/clarification-agent-go/internal/middleware"
)

// Handlers 는 라우터에 연결할 API 핸들러 묶음이다.
type Handlers struct {
	Clarify *ClarifyHandler
	Guard   *GuardHandler
	Usage   *UsageHandler
	Health  *health.Checker
}

// NewRouter 는 HTTP 라우터를 구성한다.
func NewRouter(cfg *config.Config, logger *slog.Logger, handlers Handlers) *gin.Engine {
	setGinMode(cfg.Logging.Level)

	router := gin.New()

	// OTel 미들웨어는 가장 앞에 둔다.
	if cfg.Telemetry.Enabled {
		serviceName := cfg.Telemetry.ServiceName
		if serviceName == "" {
			serviceName = "clarification-agent"
		}
		router.Use(otelgin.Middleware(serviceName))
	}

	router.Use(
		middleware.RequestID(),
		middleware.RequestLogger(logger),
		gin.Recovery(),
	)
	if cfg.HTTP.GzipEnabled {
		router.Use(newGzipMiddleware())
	}
	router.Use(
		middleware.APIKeyAuth(cfg),
		middleware.RateLimit(cfg),
	)

	RegisterHealthRoutes(router, cfg, handlers.Health, handlers.Clarify.agent)
	handlers.Clarify.RegisterRoutes(router)
	handlers.Guard.RegisterRoutes(router)
	handlers.Usage.RegisterRoutes(router)

	router.NoRoute(func(c *gin.Context) {
		writeError(c, httperror.NewNotFound("route "+c.Request.URL.Path))
	})

	return router
}

// newGzipMiddleware: 헬스/메트릭 폴링 응답은 압축하지 않습니다.
func newGzipMiddleware() gin.HandlerFunc {
	return gzip.Gzip(gzip.DefaultCompression, gzip.WithCustomShouldCompressFn(func(c *gin.Context) bool {
		path := c.Request.URL.Path
		return !strings.HasPrefix(path, "/health") && path != "/metrics"
	}))
}

func setGinMode(level string) {
	if strings.EqualFold(strings.TrimSpace(level), "debug") {
		gin.SetMode(gin.DebugMode)
		return
	}
	gin.SetMode(gin.ReleaseMode)
}
