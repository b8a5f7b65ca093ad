package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/park285/clarification-agent-go/internal/config"
)

// ShutdownTimeout 는 graceful shutdown 최대 대기 시간이다.
const ShutdownTimeout = 10 * time.Second

// NewHTTPServer 는 HTTP 서버를 생성한다. HTTP2Enabled 면 TLS 없는 h2c 를 함께 받는다.
// 쓰기 타임아웃은 LLM 호출 타임아웃보다 길게 잡는다.
func NewHTTPServer(cfg *config.Config, handler http.Handler) *http.Server {
	writeTimeout := time.Duration(cfg.Gemini.TimeoutSeconds+15) * time.Second
	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       120 * time.Second,
	}

	if cfg.HTTP.HTTP2Enabled {
		server.Handler = h2c.NewHandler(handler, &http2.Server{})
	}

	return server
}

// Serve: ctx 가 끝날 때까지 서버를 돌리고 끝나면 graceful shutdown 합니다.
// 정상 종료면 nil 을 반환합니다.
func Serve(ctx context.Context, srv *http.Server, logger *slog.Logger) error {
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http_server_shutdown_failed", "err", err)
		_ = srv.Close()
	}
	if err := <-serveErr; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}
