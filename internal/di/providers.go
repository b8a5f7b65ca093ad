package di

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"

	"github.com/park285/clarification-agent-go/internal/clarify"
	"github.com/park285/clarification-agent-go/internal/config"
	"github.com/park285/clarification-agent-go/internal/gemini"
	"github.com/park285/clarification-agent-go/internal/grpcserver"
	"github.com/park285/clarification-agent-go/internal/guard"
	"github.com/park285/clarification-agent-go/internal/handler"
	"github.com/park285/clarification-agent-go/internal/health"
	"github.com/park285/clarification-agent-go/internal/logging"
	"github.com/park285/clarification-agent-go/internal/metrics"
	"github.com/park285/clarification-agent-go/internal/resultcache"
	"github.com/park285/clarification-agent-go/internal/telemetry"
	"github.com/park285/clarification-agent-go/internal/usage"
)

// 아래 provider 들은 비활성 구성 요소를 nil 포인터로 돌려준다.
// 인터페이스로 넘길 때 typed-nil 이 되지 않도록 변환은 이 파일에서만 한다.

// ProvideLogger: 로거를 구성해 반환합니다.
// OTel 이 활성화된 경우 로그에 trace_id/span_id 가 자동으로 추가됩니다.
func ProvideLogger(cfg *config.Config) (*slog.Logger, error) {
	logger, err := logging.NewLogger(cfg.Logging, cfg.Telemetry.Enabled)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return logger, nil
}

// ProvideTelemetry: 트레이서 provider 를 초기화합니다.
func ProvideTelemetry(cfg *config.Config) (*telemetry.Provider, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	provider, err := telemetry.NewProvider(ctx, cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}
	return provider, nil
}

// ProvideUsageRepository: DB 가 꺼져 있으면 nil 입니다.
func ProvideUsageRepository(cfg *config.Config, logger *slog.Logger) *usage.Repository {
	if !cfg.Database.Enabled {
		return nil
	}
	return usage.NewRepository(cfg.Database, logger)
}

// ProvideUsageRecorder: 저장소가 없으면 기록을 버리는 Recorder 를 돌려줍니다.
func ProvideUsageRecorder(cfg *config.Config, repo *usage.Repository, logger *slog.Logger) *usage.Recorder {
	var store usage.Store
	if repo != nil {
		store = repo
	}
	return usage.NewRecorder(cfg.Database, store, logger)
}

// ProvideGeminiClient: LLM 을 쓰지 않는 모드면 nil 입니다.
func ProvideGeminiClient(
	cfg *config.Config,
	metricsStore *metrics.Store,
	recorder *usage.Recorder,
	logger *slog.Logger,
) (*gemini.Client, error) {
	switch cfg.Clarify.NormalizedMode() {
	case config.ModeLLM, config.ModeHybrid:
	default:
		return nil, nil
	}
	client, err := gemini.NewClient(cfg, metricsStore, recorder, logger)
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return client, nil
}

// ProvideAnalyzers: 모드에 맞는 분석기 체인을 구성합니다. disabled 면 빈 체인입니다.
func ProvideAnalyzers(cfg *config.Config, client *gemini.Client, logger *slog.Logger) ([]clarify.Analyzer, error) {
	mode := cfg.Clarify.NormalizedMode()
	if mode == config.ModeDisabled {
		return nil, nil
	}

	var rules *clarify.RuleAnalyzer
	if mode == config.ModeRules || mode == config.ModeHybrid {
		analyzer, err := clarify.NewRuleAnalyzer(cfg.Clarify.RulepacksDir, cfg.Clarify.DefaultLanguage, logger)
		if err != nil {
			return nil, fmt.Errorf("rule analyzer: %w", err)
		}
		rules = analyzer
	}

	var llmAnalyzer *clarify.LLMAnalyzer
	if client != nil {
		analyzer, err := clarify.NewLLMAnalyzer(client, clarify.LLMOptions{
			Model:        cfg.Gemini.ModelForTask("clarify"),
			MaxRetries:   cfg.Gemini.MaxRetries,
			RetryInitial: time.Duration(cfg.Gemini.RetryInitialMs) * time.Millisecond,
			Logger:       logger,
		})
		if err != nil {
			return nil, fmt.Errorf("llm analyzer: %w", err)
		}
		llmAnalyzer = analyzer
	}

	return clarify.AnalyzersForMode(mode, rules, llmAnalyzer), nil
}

// ProvideResultCache: 캐시가 꺼져 있으면 nil 입니다.
func ProvideResultCache(cfg *config.Config) (*resultcache.Store, error) {
	store, err := resultcache.New(cfg.Clarify)
	if errors.Is(err, resultcache.ErrDisabled) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("result cache: %w", err)
	}
	return store, nil
}

// ProvideAgent: 명확화 에이전트를 조립합니다.
func ProvideAgent(
	cfg *config.Config,
	analyzers []clarify.Analyzer,
	injectionGuard *guard.InjectionGuard,
	resultCache *resultcache.Store,
	stats *metrics.ClarifyStats,
	logger *slog.Logger,
) *clarify.Agent {
	opts := clarify.Options{
		Analyzers:     analyzers,
		MaxQuestions:  cfg.Clarify.MaxQuestions,
		MaxInputRunes: cfg.Clarify.MaxInputRunes,
		Stats:         stats,
		Logger:        logger,
	}
	if injectionGuard != nil {
		opts.Guard = injectionGuard
	}
	if resultCache != nil {
		opts.Cache = resultCache
	}
	return clarify.NewAgent(opts)
}

// ProvideHealthChecker: 헬스 체커를 구성합니다.
func ProvideHealthChecker(
	cfg *config.Config,
	agent *clarify.Agent,
	resultCache *resultcache.Store,
	repo *usage.Repository,
) *health.Checker {
	var cachePinger, dbPinger health.Pinger
	if resultCache != nil {
		cachePinger = resultCache
	}
	if repo != nil {
		dbPinger = repo
	}
	return health.NewChecker(cfg, agent, cachePinger, dbPinger)
}

// ProvideClarifyHandler: 명확화 HTTP 핸들러를 구성합니다.
func ProvideClarifyHandler(
	agent *clarify.Agent,
	stats *metrics.ClarifyStats,
	metricsStore *metrics.Store,
	resultCache *resultcache.Store,
	logger *slog.Logger,
) *handler.ClarifyHandler {
	var cacheStats handler.CacheStats
	if resultCache != nil {
		cacheStats = resultCache
	}
	return handler.NewClarifyHandler(agent, stats, metricsStore, cacheStats, logger)
}

// ProvideUsageHandler: 사용량 HTTP 핸들러를 구성합니다.
func ProvideUsageHandler(cfg *config.Config, repo *usage.Repository, logger *slog.Logger) *handler.UsageHandler {
	var reader handler.UsageReader
	if repo != nil {
		reader = repo
	}
	return handler.NewUsageHandler(cfg, reader, logger)
}

// ProvideHandlers: 라우터에 연결할 핸들러 묶음을 만듭니다.
func ProvideHandlers(
	clarifyHandler *handler.ClarifyHandler,
	guardHandler *handler.GuardHandler,
	usageHandler *handler.UsageHandler,
	checker *health.Checker,
) handler.Handlers {
	return handler.Handlers{Clarify: clarifyHandler, Guard: guardHandler, Usage: usageHandler, Health: checker}
}

// GRPCEndpoint 는 gRPC 서버와 리스너 묶음이다. 비활성이면 둘 다 nil 이다.
type GRPCEndpoint struct {
	Server   *grpc.Server
	Listener net.Listener
}

// ProvideGRPCEndpoint: gRPC 서버를 만들고 명확화 서비스를 등록합니다.
func ProvideGRPCEndpoint(cfg *config.Config, agent *clarify.Agent, logger *slog.Logger) (GRPCEndpoint, error) {
	server, lis, err := grpcserver.NewServer(cfg, logger)
	if err != nil {
		return GRPCEndpoint{}, fmt.Errorf("grpc server: %w", err)
	}
	if server == nil {
		return GRPCEndpoint{}, nil
	}
	grpcserver.RegisterClarificationServer(server, grpcserver.NewClarifyService(agent, logger))
	return GRPCEndpoint{Server: server, Listener: lis}, nil
}
