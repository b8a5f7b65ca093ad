package server

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/park285/clarification-agent-go/internal/config"
)

func TestNewHTTPServer(t *testing.T) {
	handler := http.NewServeMux()
	cfg := &config.Config{
		HTTP:   config.HTTPConfig{Host: "127.0.0.1", Port: 8080},
		Gemini: config.GeminiConfig{TimeoutSeconds: 60},
	}

	server := NewHTTPServer(cfg, handler)
	if server.Addr != "127.0.0.1:8080" {
		t.Fatalf("unexpected addr: %s", server.Addr)
	}
	if server.Handler != http.Handler(handler) {
		t.Fatalf("expected plain handler")
	}
	if server.WriteTimeout != 75*time.Second {
		t.Fatalf("unexpected write timeout: %s", server.WriteTimeout)
	}

	cfg.HTTP.HTTP2Enabled = true
	server = NewHTTPServer(cfg, handler)
	if server.Handler == http.Handler(handler) {
		t.Fatalf("expected h2c wrapped handler")
	}
}

func freePort(t *testing.T) int {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer lis.Close()
	return lis.Addr().(*net.TCPAddr).Port
}

func TestServeStopsOnContextCancel(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	cfg := &config.Config{HTTP: config.HTTPConfig{Host: "127.0.0.1", Port: freePort(t)}}
	srv := NewHTTPServer(cfg, mux)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, srv, slog.New(slog.NewTextHandler(io.Discard, nil))) }()

	url := "http://" + srv.Addr + "/health"
	deadline := time.Now().Add(2 * time.Second)
	for {
		resp, err := http.Get(url)
		if err == nil {
			resp.Body.Close()
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("server did not start: %v", err)
		}
		time.Sleep(20 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected clean shutdown, got %v", err)
		}
	case <-time.After(ShutdownTimeout):
		t.Fatalf("serve did not return after cancel")
	}
}

func TestServeReportsListenError(t *testing.T) {
	cfg := &config.Config{HTTP: config.HTTPConfig{Host: "256.0.0.1", Port: 1}}
	err := Serve(context.Background(), NewHTTPServer(cfg, http.NewServeMux()), slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err == nil {
		t.Fatalf("expected listen error")
	}
}
