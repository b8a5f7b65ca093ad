package health

import (
	"context"
	"errors"
	"testing"

	"github.com/park285/clarification-agent-go/internal/config"
)

type fakeAgent struct {
	configured bool
	chain      string
}

func (a fakeAgent) Configured() bool { return a.configured }
func (a fakeAgent) Chain() string    { return a.chain }

type fakePinger struct {
	err   error
	calls int
}

func (p *fakePinger) Ping(context.Context) error {
	p.calls++
	return p.err
}

func testConfig(mode string, keys ...string) *config.Config {
	return &config.Config{
		Gemini:  config.GeminiConfig{APIKeys: keys, DefaultModel: "gemini-3-flash-preview", TimeoutSeconds: 10, MaxRetries: 2},
		Clarify: config.ClarifyConfig{Mode: mode, CacheBackend: config.CacheBackendValkey, CacheTTLSeconds: 60},
	}
}

func TestCollectStatus(t *testing.T) {
	tests := []struct {
		name      string
		cfg       *config.Config
		agent     Agent
		cache     *fakePinger
		deep      bool
		want      string
		degraded  string
		cachePing int
	}{
		{
			name:  "rules only without key",
			cfg:   testConfig(config.ModeRules),
			agent: fakeAgent{configured: true, chain: "rules"},
			want:  statusOK,
		},
		{
			name:     "hybrid without key",
			cfg:      testConfig(config.ModeHybrid),
			agent:    fakeAgent{configured: true, chain: "rules"},
			want:     statusDegraded,
			degraded: "gemini",
		},
		{
			name:  "disabled agent is intended",
			cfg:   testConfig(config.ModeDisabled),
			agent: fakeAgent{},
			want:  statusOK,
		},
		{
			name:     "unconfigured agent in rules mode",
			cfg:      testConfig(config.ModeRules),
			agent:    fakeAgent{},
			want:     statusDegraded,
			degraded: "agent",
		},
		{
			name:      "shallow check skips ping",
			cfg:       testConfig(config.ModeLLM, "key"),
			agent:     fakeAgent{configured: true, chain: "llm"},
			cache:     &fakePinger{err: errors.New("down")},
			want:      statusOK,
			cachePing: 0,
		},
		{
			name:      "deep check reports unreachable cache",
			cfg:       testConfig(config.ModeLLM, "key"),
			agent:     fakeAgent{configured: true, chain: "llm"},
			cache:     &fakePinger{err: errors.New("down")},
			deep:      true,
			want:      statusDegraded,
			degraded:  "result_cache",
			cachePing: 1,
		},
		{
			name:      "deep check healthy cache",
			cfg:       testConfig(config.ModeLLM, "key"),
			agent:     fakeAgent{configured: true, chain: "llm"},
			cache:     &fakePinger{},
			deep:      true,
			want:      statusOK,
			cachePing: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cache Pinger
			if tt.cache != nil {
				cache = tt.cache
			}
			resp := NewChecker(tt.cfg, tt.agent, cache, nil).Collect(context.Background(), tt.deep)
			if resp.Status != tt.want {
				t.Fatalf("expected %s, got %s (%+v)", tt.want, resp.Status, resp.Components)
			}
			if tt.degraded != "" && resp.Components[tt.degraded].Status != statusDegraded {
				t.Fatalf("expected %s degraded, got %+v", tt.degraded, resp.Components[tt.degraded])
			}
			if tt.cache != nil && tt.cache.calls != tt.cachePing {
				t.Fatalf("expected %d pings, got %d", tt.cachePing, tt.cache.calls)
			}
			if resp.Components["usage_db"].Detail["enabled"] != false {
				t.Fatalf("expected usage_db disabled")
			}
		})
	}
}

func TestCollectNilConfig(t *testing.T) {
	resp := NewChecker(nil, nil, nil, nil).Collect(context.Background(), true)
	if resp.Status != statusOK {
		t.Fatalf("expected ok for nil config, got %+v", resp)
	}
}
