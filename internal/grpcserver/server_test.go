package grpcserver

import (
	"context"
	"io"
	"log/slog"
	"net"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/park285/clarification-agent-go/internal/clarify"
	"github.com/park285/clarification-agent-go/internal/config"
	"github.com/park285/clarification-agent-go/internal/middleware"
)

type recordingRunner struct {
	result    *clarify.Result
	err       error
	got       clarify.Request
	requestID string
}

func (r *recordingRunner) Run(ctx context.Context, req clarify.Request) (*clarify.Result, error) {
	r.got = req
	r.requestID = middleware.RequestIDFromContext(ctx)
	return r.result, r.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startBufServer(t *testing.T, cfg *config.Config, agent Runner) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	server := newGRPCServer(cfg, discardLogger())
	RegisterClarificationServer(server, NewClarifyService(agent, discardLogger()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, server, lis, discardLogger()) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() {
		conn.Close()
		cancel()
		<-done
	})
	return conn
}

func mustStruct(t *testing.T, fields map[string]any) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(fields)
	if err != nil {
		t.Fatalf("struct: %v", err)
	}
	return s
}

func TestClarifyServiceWithRuleAgent(t *testing.T) {
	rules, err := clarify.NewRuleAnalyzer("", "en", discardLogger())
	if err != nil {
		t.Fatalf("rule analyzer: %v", err)
	}
	agent := clarify.NewAgent(clarify.Options{Analyzers: []clarify.Analyzer{rules}, MaxQuestions: 5})
	conn := startBufServer(t, &config.Config{}, agent)

	out, err := NewClarificationClient(conn).Run(context.Background(), mustStruct(t, map[string]any{
		"user_input": "Build me a login page",
	}))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	result := out.AsMap()
	if result["needs_clarification"] != true || result["source"] != "rules" {
		t.Fatalf("unexpected result: %v", result)
	}
	questions, ok := result["questions"].([]any)
	if !ok || len(questions) == 0 {
		t.Fatalf("expected questions, got %v", result["questions"])
	}
}

func TestClarifyServicePassesContextAndRequestID(t *testing.T) {
	runner := &recordingRunner{result: &clarify.Result{Questions: []clarify.Question{}, Source: clarify.SourceRules, Language: "en"}}
	conn := startBufServer(t, &config.Config{}, runner)

	ctx := metadata.AppendToOutgoingContext(context.Background(), "x-request-id", "grpc-req-1")
	var header metadata.MD
	_, err := NewClarificationClient(conn).Run(ctx, mustStruct(t, map[string]any{
		"user_input": "",
		"context":    map[string]any{"project": "checkout", "max_questions": 2},
	}), grpc.Header(&header))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if runner.got.Context == nil || runner.got.Context.Project != "checkout" || runner.got.Context.MaxQuestions != 2 {
		t.Fatalf("unexpected context: %+v", runner.got.Context)
	}
	if runner.requestID != "grpc-req-1" {
		t.Fatalf("expected propagated request id, got %q", runner.requestID)
	}
	if got := header.Get("x-request-id"); len(got) != 1 || got[0] != "grpc-req-1" {
		t.Fatalf("expected request id header, got %v", got)
	}
}

func TestClarifyServiceErrors(t *testing.T) {
	tests := []struct {
		name   string
		fields map[string]any
		err    error
		code   codes.Code
	}{
		{"missing input", map[string]any{}, nil, codes.InvalidArgument},
		{"input not string", map[string]any{"user_input": 3}, nil, codes.InvalidArgument},
		{"context not object", map[string]any{"user_input": "x", "context": "nope"}, nil, codes.InvalidArgument},
		{"not implemented", map[string]any{"user_input": "x"}, clarify.ErrNotImplemented, codes.Unimplemented},
		{"input too long", map[string]any{"user_input": "x"}, clarify.ErrInputTooLong, codes.InvalidArgument},
		{"deadline", map[string]any{"user_input": "x"}, context.DeadlineExceeded, codes.DeadlineExceeded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := startBufServer(t, &config.Config{}, &recordingRunner{err: tt.err})
			_, err := NewClarificationClient(conn).Run(context.Background(), mustStruct(t, tt.fields))
			if status.Code(err) != tt.code {
				t.Fatalf("expected %s, got %v", tt.code, err)
			}
		})
	}
}

func TestAuthInterceptor(t *testing.T) {
	cfg := &config.Config{HTTPAuth: config.HTTPAuthConfig{APIKey: "secret"}}
	runner := &recordingRunner{result: &clarify.Result{Questions: []clarify.Question{}}}
	conn := startBufServer(t, cfg, runner)
	client := NewClarificationClient(conn)
	req := mustStruct(t, map[string]any{"user_input": "x"})

	if _, err := client.Run(context.Background(), req); status.Code(err) != codes.Unauthenticated {
		t.Fatalf("expected unauthenticated, got %v", err)
	}

	authed := metadata.AppendToOutgoingContext(context.Background(), "authorization", "Bearer secret")
	if _, err := client.Run(authed, req); err != nil {
		t.Fatalf("expected authorized call, got %v", err)
	}

	// 헬스 체크는 키 없이 통과한다.
	resp, err := healthpb.NewHealthClient(conn).Check(context.Background(), &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil || resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("expected serving health, got %v %v", resp, err)
	}
}

func TestNewServerDisabled(t *testing.T) {
	server, lis, err := NewServer(&config.Config{}, discardLogger())
	if server != nil || lis != nil || err != nil {
		t.Fatalf("expected nil server when disabled")
	}
}
