package di

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/park285/clarification-agent-go/internal/config"
	"github.com/park285/clarification-agent-go/internal/resultcache"
	"github.com/park285/clarification-agent-go/internal/telemetry"
	"github.com/park285/clarification-agent-go/internal/usage"
)

// App: 애플리케이션 구성 요소를 묶는다.
type App struct {
	Server          *http.Server
	GRPC            GRPCEndpoint
	Logger          *slog.Logger
	Config          *config.Config
	Telemetry       *telemetry.Provider
	ResultCache     *resultcache.Store
	UsageRepository *usage.Repository
	UsageRecorder   *usage.Recorder
}

// NewApp: App 인스턴스를 생성합니다.
func NewApp(
	server *http.Server,
	grpcEndpoint GRPCEndpoint,
	logger *slog.Logger,
	cfg *config.Config,
	provider *telemetry.Provider,
	resultCache *resultcache.Store,
	usageRepository *usage.Repository,
	usageRecorder *usage.Recorder,
) *App {
	return &App{
		Server:          server,
		GRPC:            grpcEndpoint,
		Logger:          logger,
		Config:          cfg,
		Telemetry:       provider,
		ResultCache:     resultCache,
		UsageRepository: usageRepository,
		UsageRecorder:   usageRecorder,
	}
}

// Close: 앱 리소스를 정리합니다. 사용량 Recorder 는 저장소보다 먼저 닫아 남은 배치를 흘려보낸다.
func (a *App) Close(ctx context.Context) {
	if a.GRPC.Server != nil {
		a.GRPC.Server.Stop()
	}
	if a.GRPC.Listener != nil {
		_ = a.GRPC.Listener.Close()
	}
	if a.ResultCache != nil {
		a.ResultCache.Close()
	}
	if a.UsageRecorder != nil {
		a.UsageRecorder.Close()
	}
	if a.UsageRepository != nil {
		a.UsageRepository.Close()
	}
	if err := a.Telemetry.Shutdown(ctx); err != nil && a.Logger != nil {
		a.Logger.Warn("telemetry_shutdown_failed", "err", err)
	}
}
