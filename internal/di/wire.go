//go:build wireinject

package di

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/wire"

	"github.com/park285/clarification-agent-go/internal/config"
	"github.com/park285/clarification-agent-go/internal/guard"
	"github.com/park285/clarification-agent-go/internal/handler"
	"github.com/park285/clarification-agent-go/internal/metrics"
	"github.com/park285/clarification-agent-go/internal/server"
)

func InitializeApp() (*App, error) {
	wire.Build(
		config.ProvideConfig,
		ProvideLogger,
		ProvideTelemetry,
		metrics.NewStore,
		metrics.NewClarifyStats,
		guard.NewGuard,
		wire.Bind(new(guard.Guard), new(*guard.InjectionGuard)),
		ProvideUsageRepository,
		ProvideUsageRecorder,
		ProvideGeminiClient,
		ProvideAnalyzers,
		ProvideResultCache,
		ProvideAgent,
		ProvideHealthChecker,
		ProvideClarifyHandler,
		handler.NewGuardHandler,
		ProvideUsageHandler,
		ProvideHandlers,
		handler.NewRouter,
		wire.Bind(new(http.Handler), new(*gin.Engine)),
		server.NewHTTPServer,
		ProvideGRPCEndpoint,
		NewApp,
	)
	return nil, nil
}
