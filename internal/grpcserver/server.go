package grpcserver

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/park285/clarification-agent-go/internal/config"
	"github.com/park285/clarification-agent-go/internal/middleware"
)

const (
	defaultHost = "127.0.0.1"
	defaultPort = 40528

	requestIDHeader = "x-request-id"

	maxRecvMsgSizeBytes = 4 * 1024 * 1024
)

// NewServer: gRPC 서버를 생성합니다. 비활성화되어 있으면 모두 nil 입니다.
// 리스너는 호출자가 Serve 로 넘깁니다.
func NewServer(cfg *config.Config, logger *slog.Logger) (*grpc.Server, net.Listener, error) {
	if cfg == nil || !cfg.GRPC.Enabled {
		return nil, nil, nil
	}

	host := strings.TrimSpace(cfg.GRPC.Host)
	if host == "" {
		host = defaultHost
	}
	port := cfg.GRPC.Port
	if port <= 0 {
		port = defaultPort
	}

	var lc net.ListenConfig
	listenCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	lis, err := lc.Listen(listenCtx, "tcp", fmt.Sprintf("%s:%d", host, port))
	if err != nil {
		return nil, nil, fmt.Errorf("listen: %w", err)
	}

	return newGRPCServer(cfg, logger), lis, nil
}

func newGRPCServer(cfg *config.Config, logger *slog.Logger) *grpc.Server {
	opts := []grpc.ServerOption{
		grpc.MaxRecvMsgSize(maxRecvMsgSizeBytes),
		grpc.ChainUnaryInterceptor(
			unaryInterceptor(logger, strings.TrimSpace(cfg.HTTPAuth.APIKey), cfg.HTTPAuth.Required),
			errorMapperInterceptor(),
		),
	}
	if cfg.Telemetry.Enabled {
		opts = append(opts, grpc.StatsHandler(otelgrpc.NewServerHandler()))
	}

	server := grpc.NewServer(opts...)
	healthServer := health.NewServer()
	healthServer.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(server, healthServer)
	return server
}

// Serve: ctx 가 끝날 때까지 서비스하고 GracefulStop 합니다.
func Serve(ctx context.Context, server *grpc.Server, lis net.Listener, logger *slog.Logger) error {
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Serve(lis)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("grpc server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	stopped := make(chan struct{})
	go func() {
		server.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(10 * time.Second):
		logger.Warn("grpc_server_force_stop")
		server.Stop()
	}
	<-serveErr
	return nil
}

func unaryInterceptor(logger *slog.Logger, apiKey string, apiKeyRequired bool) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		start := time.Now()

		requestID := resolveRequestID(ctx)
		ctx = middleware.WithRequestID(ctx, requestID)
		_ = grpc.SetHeader(ctx, metadata.Pairs(requestIDHeader, requestID))

		// 헬스 체크는 인증 없이 허용한다.
		if !strings.HasPrefix(info.FullMethod, "/grpc.health.v1.") {
			if err := authorize(ctx, apiKey, apiKeyRequired); err != nil {
				logGRPCRequest(logger, info, requestID, time.Since(start), err)
				return nil, err
			}
		}

		resp, err := handler(ctx, req)
		logGRPCRequest(logger, info, requestID, time.Since(start), err)
		return resp, err
	}
}

func logGRPCRequest(logger *slog.Logger, info *grpc.UnaryServerInfo, requestID string, latency time.Duration, err error) {
	if logger == nil {
		return
	}

	fields := []any{
		"request_id", requestID,
		"method", info.FullMethod,
		"latency", latency,
	}
	if err != nil {
		fields = append(fields, "err", err)
		logger.Warn("grpc_request_failed", fields...)
		return
	}
	logger.Debug("grpc_request", fields...)
}

func authorize(ctx context.Context, expected string, required bool) error {
	if expected == "" {
		if required {
			return status.Error(codes.Unauthenticated, "api key required but not configured")
		}
		return nil
	}
	if !middleware.MatchAPIKey(expected, extractAPIKey(ctx)) {
		return status.Error(codes.Unauthenticated, "invalid api key")
	}
	return nil
}

func firstMetadata(ctx context.Context, key string) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if values := md.Get(key); len(values) > 0 {
		return strings.TrimSpace(values[0])
	}
	return ""
}

func extractAPIKey(ctx context.Context) string {
	if value := firstMetadata(ctx, "x-api-key"); value != "" {
		return value
	}
	return middleware.BearerToken(firstMetadata(ctx, "authorization"))
}

func resolveRequestID(ctx context.Context) string {
	if value := firstMetadata(ctx, requestIDHeader); value != "" && len(value) <= 128 {
		return value
	}
	return middleware.NewRequestID()
}
