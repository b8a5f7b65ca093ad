package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/park285/clarification-agent-go/internal/config"
	"github.com/park285/clarification-agent-go/internal/di"
	"github.com/park285/clarification-agent-go/internal/grpcserver"
	"github.com/park285/clarification-agent-go/internal/server"
)

func main() {
	app, err := di.InitializeApp()
	if err != nil {
		log.Fatalf("failed to initialize app: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	config.LogEnvStatus(app.Config, app.Logger)
	app.Logger.Info(
		"http_server_start",
		"host", app.Config.HTTP.Host,
		"port", app.Config.HTTP.Port,
		"http2", app.Config.HTTP.HTTP2Enabled,
		"clarify_mode", app.Config.Clarify.NormalizedMode(),
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return server.Serve(groupCtx, app.Server, app.Logger)
	})
	if app.GRPC.Server != nil {
		app.Logger.Info("grpc_server_start", "addr", app.GRPC.Listener.Addr().String())
		group.Go(func() error {
			return grpcserver.Serve(groupCtx, app.GRPC.Server, app.GRPC.Listener, app.Logger)
		})
	}

	runErr := group.Wait()
	app.Logger.Info("server_shutdown")

	closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	app.Close(closeCtx)
	cancel()

	if runErr != nil {
		app.Logger.Error("server_failed", "err", runErr)
		os.Exit(1)
	}
}
