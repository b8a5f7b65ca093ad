package health

import (
	"context"
	"time"

	"github.com/park285/clarification-agent-go/internal/config"
)

const (
	statusOK       = "ok"
	statusDegraded = "degraded"
	deepCheckLimit = 2 * time.Second
)

var startTime = time.Now()

// Component 는 상태 구성 요소다.
type Component struct {
	Status string         `json:"status"`
	Detail map[string]any `json:"detail"`
}

// Response 는 상태 응답 본문이다.
type Response struct {
	Status     string               `json:"status"`
	Components map[string]Component `json:"components"`
}

// Agent 는 헬스 체크가 보는 에이전트 상태다.
type Agent interface {
	Configured() bool
	Chain() string
}

// Pinger 는 외부 저장소 연결 확인 인터페이스다.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Checker 는 구성 요소별 상태를 모은다. 저장소가 nil 이면 비활성으로 보고한다.
type Checker struct {
	cfg         *config.Config
	agent       Agent
	resultCache Pinger
	usageDB     Pinger
}

// NewChecker 는 헬스 체커를 생성한다.
func NewChecker(cfg *config.Config, agent Agent, resultCache Pinger, usageDB Pinger) *Checker {
	return &Checker{cfg: cfg, agent: agent, resultCache: resultCache, usageDB: usageDB}
}

// Collect 는 헬스 상태를 수집한다. deep 이면 저장소에 실제로 ping 한다.
func (h *Checker) Collect(ctx context.Context, deep bool) Response {
	if ctx == nil {
		ctx = context.Background()
	}

	components := map[string]Component{
		"app":          buildAppStatus(),
		"agent":        h.buildAgentStatus(),
		"gemini":       h.buildGeminiStatus(),
		"result_cache": buildStoreStatus(ctx, h.resultCache, deep, h.cacheDetail()),
		"usage_db":     buildStoreStatus(ctx, h.usageDB, deep, h.databaseDetail()),
	}

	overall := statusOK
	for _, component := range components {
		if component.Status != statusOK {
			overall = statusDegraded
			break
		}
	}

	return Response{Status: overall, Components: components}
}

func buildAppStatus() Component {
	return Component{
		Status: statusOK,
		Detail: map[string]any{"uptime_seconds": int(time.Since(startTime).Seconds())},
	}
}

func (h *Checker) mode() string {
	if h.cfg == nil {
		return config.ModeDisabled
	}
	return h.cfg.Clarify.NormalizedMode()
}

// buildAgentStatus: 분석기가 없더라도 disabled 모드라면 의도된 상태이므로 ok 로 봅니다.
func (h *Checker) buildAgentStatus() Component {
	configured := false
	chain := ""
	if h.agent != nil {
		configured = h.agent.Configured()
		chain = h.agent.Chain()
	}
	mode := h.mode()

	status := statusOK
	if !configured && mode != config.ModeDisabled {
		status = statusDegraded
	}
	return Component{
		Status: status,
		Detail: map[string]any{"mode": mode, "configured": configured, "chain": chain},
	}
}

func (h *Checker) buildGeminiStatus() Component {
	mode := h.mode()
	inUse := mode == config.ModeLLM || mode == config.ModeHybrid
	detail := map[string]any{"in_use": inUse}
	if h.cfg == nil {
		return Component{Status: statusOK, Detail: detail}
	}

	apiKeyPresent := h.cfg.Gemini.PrimaryKey() != ""
	detail["api_key_present"] = apiKeyPresent
	detail["api_key_count"] = len(h.cfg.Gemini.APIKeys)
	detail["model"] = h.cfg.Gemini.ModelForTask("clarify")
	detail["timeout_seconds"] = h.cfg.Gemini.TimeoutSeconds
	detail["max_retries"] = h.cfg.Gemini.MaxRetries

	status := statusOK
	if inUse && !apiKeyPresent {
		status = statusDegraded
	}
	return Component{Status: status, Detail: detail}
}

func (h *Checker) cacheDetail() map[string]any {
	if h.cfg == nil {
		return map[string]any{}
	}
	return map[string]any{
		"backend":     h.cfg.Clarify.CacheBackend,
		"ttl_seconds": h.cfg.Clarify.CacheTTLSeconds,
	}
}

func (h *Checker) databaseDetail() map[string]any {
	if h.cfg == nil {
		return map[string]any{}
	}
	return map[string]any{"driver": h.cfg.Database.Driver}
}

func buildStoreStatus(ctx context.Context, store Pinger, deep bool, detail map[string]any) Component {
	detail["enabled"] = store != nil
	detail["deep_checked"] = deep && store != nil
	if store == nil || !deep {
		return Component{Status: statusOK, Detail: detail}
	}

	checkCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), deepCheckLimit)
	defer cancel()

	if err := store.Ping(checkCtx); err != nil {
		detail["connected"] = false
		detail["error"] = err.Error()
		return Component{Status: statusDegraded, Detail: detail}
	}
	detail["connected"] = true
	return Component{Status: statusOK, Detail: detail}
}
