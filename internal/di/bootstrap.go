//go:build !wireinject

package di

import (
	"fmt"
	"log/slog"

	"github.com/park285/clarification-agent-go/internal/clarify"
	"github.com/park285/clarification-agent-go/internal/config"
	"github.com/park285/clarification-agent-go/internal/guard"
	"github.com/park285/clarification-agent-go/internal/handler"
	"github.com/park285/clarification-agent-go/internal/metrics"
	"github.com/park285/clarification-agent-go/internal/resultcache"
	"github.com/park285/clarification-agent-go/internal/server"
	"github.com/park285/clarification-agent-go/internal/usage"
)

// InitializeApp 은 애플리케이션 의존성을 초기화하고 App 인스턴스를 반환한다.
// wire.go 의 그래프와 같은 순서로 조립한다.
func InitializeApp() (*App, error) {
	cfg, err := config.ProvideConfig()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	logger, err := ProvideLogger(cfg)
	if err != nil {
		return nil, err
	}

	provider, err := ProvideTelemetry(cfg)
	if err != nil {
		return nil, err
	}

	core, err := buildCore(cfg, logger)
	if err != nil {
		return nil, err
	}

	checker := ProvideHealthChecker(cfg, core.Agent, core.ResultCache, core.UsageRepository)
	clarifyHandler := ProvideClarifyHandler(core.Agent, core.Stats, core.MetricsStore, core.ResultCache, logger)
	guardHandler := handler.NewGuardHandler(core.Guard)
	usageHandler := ProvideUsageHandler(cfg, core.UsageRepository, logger)
	handlers := ProvideHandlers(clarifyHandler, guardHandler, usageHandler, checker)

	router := handler.NewRouter(cfg, logger, handlers)
	httpServer := server.NewHTTPServer(cfg, router)

	grpcEndpoint, err := ProvideGRPCEndpoint(cfg, core.Agent, logger)
	if err != nil {
		core.close()
		return nil, err
	}

	return NewApp(
		httpServer,
		grpcEndpoint,
		logger,
		cfg,
		provider,
		core.ResultCache,
		core.UsageRepository,
		core.UsageRecorder,
	), nil
}

// Core 는 서버 없이 에이전트를 돌리는 데 필요한 구성 요소 묶음이다.
type Core struct {
	Agent           *clarify.Agent
	Guard           *guard.InjectionGuard
	Stats           *metrics.ClarifyStats
	MetricsStore    *metrics.Store
	ResultCache     *resultcache.Store
	UsageRepository *usage.Repository
	UsageRecorder   *usage.Recorder
}

// InitializeCore: CLI 처럼 서버가 필요 없는 진입점용 구성입니다. 반환된 cleanup 은 항상 호출해야 합니다.
func InitializeCore(cfg *config.Config, logger *slog.Logger) (*Core, func(), error) {
	core, err := buildCore(cfg, logger)
	if err != nil {
		return nil, func() {}, err
	}
	return core, core.close, nil
}

func buildCore(cfg *config.Config, logger *slog.Logger) (*Core, error) {
	metricsStore := metrics.NewStore()
	stats := metrics.NewClarifyStats()

	injectionGuard, err := guard.NewGuard(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("guard: %w", err)
	}

	usageRepository := ProvideUsageRepository(cfg, logger)
	usageRecorder := ProvideUsageRecorder(cfg, usageRepository, logger)
	core := &Core{
		Guard:           injectionGuard,
		Stats:           stats,
		MetricsStore:    metricsStore,
		UsageRepository: usageRepository,
		UsageRecorder:   usageRecorder,
	}

	geminiClient, err := ProvideGeminiClient(cfg, metricsStore, usageRecorder, logger)
	if err != nil {
		core.close()
		return nil, err
	}

	analyzers, err := ProvideAnalyzers(cfg, geminiClient, logger)
	if err != nil {
		core.close()
		return nil, err
	}

	resultCache, err := ProvideResultCache(cfg)
	if err != nil {
		core.close()
		return nil, err
	}
	core.ResultCache = resultCache

	core.Agent = ProvideAgent(cfg, analyzers, injectionGuard, resultCache, stats, logger)
	return core, nil
}

func (c *Core) close() {
	if c.ResultCache != nil {
		c.ResultCache.Close()
	}
	if c.UsageRecorder != nil {
		c.UsageRecorder.Close()
	}
	if c.UsageRepository != nil {
		c.UsageRepository.Close()
	}
}
