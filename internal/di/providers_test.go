package di

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/park285/clarification-agent-go/internal/clarify"
	"github.com/park285/clarification-agent-go/internal/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(mode string) *config.Config {
	return &config.Config{
		Clarify: config.ClarifyConfig{
			Mode:            mode,
			MaxQuestions:    3,
			MaxInputRunes:   4000,
			DefaultLanguage: "en",
			CacheEnabled:    true,
			CacheBackend:    config.CacheBackendMemory,
			CacheMaxSize:    16,
			CacheTTLSeconds: 60,
		},
	}
}

func TestProvideAnalyzersByMode(t *testing.T) {
	tests := []struct {
		mode string
		want int
	}{
		{mode: config.ModeDisabled, want: 0},
		{mode: config.ModeRules, want: 1},
		// 클라이언트가 없으면 llm 모드는 분석기가 없고 hybrid 는 규칙만 남는다.
		{mode: config.ModeLLM, want: 0},
		{mode: config.ModeHybrid, want: 1},
	}
	for _, tc := range tests {
		t.Run(tc.mode, func(t *testing.T) {
			analyzers, err := ProvideAnalyzers(testConfig(tc.mode), nil, testLogger())
			if err != nil {
				t.Fatalf("provide analyzers: %v", err)
			}
			if len(analyzers) != tc.want {
				t.Fatalf("expected %d analyzers, got %d", tc.want, len(analyzers))
			}
		})
	}
}

func TestProvideGeminiClientSkippedForRules(t *testing.T) {
	client, err := ProvideGeminiClient(testConfig(config.ModeRules), nil, nil, testLogger())
	if err != nil || client != nil {
		t.Fatalf("expected no client, got %v %v", client, err)
	}
}

func TestProvideResultCacheDisabled(t *testing.T) {
	cfg := testConfig(config.ModeRules)
	cfg.Clarify.CacheEnabled = false
	store, err := ProvideResultCache(cfg)
	if err != nil || store != nil {
		t.Fatalf("expected nil cache, got %v %v", store, err)
	}
}

func TestProvideHandlersWithoutOptionalStores(t *testing.T) {
	cfg := testConfig(config.ModeRules)
	agent := ProvideAgent(cfg, nil, nil, nil, nil, testLogger())
	if agent.Configured() {
		t.Fatal("agent without analyzers must not be configured")
	}

	checker := ProvideHealthChecker(cfg, agent, nil, nil)
	resp := checker.Collect(context.Background(), true)
	if resp.Components["result_cache"].Status != "ok" {
		t.Fatalf("disabled cache should be ok, got %+v", resp.Components["result_cache"])
	}
	if ProvideClarifyHandler(agent, nil, nil, nil, testLogger()) == nil {
		t.Fatal("expected clarify handler")
	}
	if ProvideUsageHandler(cfg, nil, testLogger()) == nil {
		t.Fatal("expected usage handler")
	}
}

func TestInitializeCoreRunsRules(t *testing.T) {
	core, cleanup, err := InitializeCore(testConfig(config.ModeRules), testLogger())
	if err != nil {
		t.Fatalf("initialize core: %v", err)
	}
	defer cleanup()

	if core.ResultCache == nil || core.ResultCache.Backend() != config.CacheBackendMemory {
		t.Fatalf("expected memory cache")
	}
	if core.UsageRepository != nil {
		t.Fatal("database is disabled")
	}

	result, err := core.Agent.Run(context.Background(), clarify.Request{UserInput: "Build me a login page"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !result.NeedsClarification || !result.HasAspect("platform") {
		t.Fatalf("unexpected result: %+v", result)
	}
	if len(result.Questions) > 3 {
		t.Fatalf("max questions exceeded: %d", len(result.Questions))
	}
}
