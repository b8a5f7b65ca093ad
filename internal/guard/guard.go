package guard

import (
	"errors"
	"log/slog"
	"math"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/park285/clarification-agent-go/internal/cache"
	"github.com/park285/clarification-agent-go/internal/config"
	"github.com/park285/clarification-agent-go/internal/textnorm"
)

const fallbackThreshold = 0.7

// InjectionGuard: 명확화 요청 입력을 에이전트에 넘기기 전에 검사하는 보안 가드입니다.
type InjectionGuard struct {
	cfg    config.GuardConfig
	logger *slog.Logger
	packs  []compiledPack
	cache  *cache.TTLCache[string, Evaluation]
	group  singleflight.Group
}

// NewGuard: 입력 검증 가드를 생성합니다.
func NewGuard(cfg *config.Config, logger *slog.Logger) (*InjectionGuard, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}

	cacheTTL := time.Duration(cfg.Guard.CacheTTLSeconds) * time.Second
	guard := &InjectionGuard{
		cfg:    cfg.Guard,
		logger: logger,
		cache:  cache.NewTTLCache[string, Evaluation](cfg.Guard.CacheMaxSize, cacheTTL),
	}

	if cfg.Guard.Enabled {
		guard.packs = loadRulepacks(cfg.Guard.RulepacksDir, logger)
		if logger != nil {
			logger.Info("guard_ready", "packs", len(guard.packs), "threshold", guard.threshold())
		}
	}

	return guard, nil
}

// Evaluate: 입력 문자열을 평가합니다.
func (g *InjectionGuard) Evaluate(input string) Evaluation {
	if g == nil || !g.cfg.Enabled {
		return Evaluation{Score: 0, Hits: nil, Threshold: math.Inf(1)}
	}

	if cached, ok := g.cache.Get(input); ok {
		return cached
	}

	value, _, _ := g.group.Do(input, func() (any, error) {
		result := g.evaluateInternal(input)
		g.cache.Set(input, result)
		return result, nil
	})

	if evaluation, ok := value.(Evaluation); ok {
		return evaluation
	}
	return Evaluation{Score: 0, Hits: nil, Threshold: g.threshold()}
}

// EnsureSafe: 위험 입력을 오류로 반환합니다.
func (g *InjectionGuard) EnsureSafe(input string) error {
	evaluation := g.Evaluate(input)
	if evaluation.Malicious() {
		return &BlockedError{Score: evaluation.Score, Threshold: evaluation.Threshold, Hits: evaluation.Hits}
	}
	return nil
}

// IsMalicious: 입력이 위험한지 여부를 반환합니다.
func (g *InjectionGuard) IsMalicious(input string) bool {
	return g.Evaluate(input).Malicious()
}

// PackCount: 로드된 rulepack 수를 반환합니다.
func (g *InjectionGuard) PackCount() int {
	if g == nil {
		return 0
	}
	return len(g.packs)
}

func (g *InjectionGuard) threshold() float64 {
	if g.cfg.Threshold > 0 {
		return g.cfg.Threshold
	}

	maxThreshold := 0.0
	for _, pack := range g.packs {
		maxThreshold = math.Max(maxThreshold, pack.Threshold)
	}
	if maxThreshold > 0 {
		return maxThreshold
	}
	return fallbackThreshold
}

// block: 단일 신호로 차단하는 평가 결과를 만듭니다.
func (g *InjectionGuard) block(id string, input string, threshold float64) Evaluation {
	if g.logger != nil {
		g.logger.Warn("guard_blocked", "signal", id, "input", textnorm.Truncate(input, 50))
	}
	return Evaluation{
		Score:     threshold,
		Hits:      []Match{{ID: id, Weight: threshold}},
		Threshold: threshold,
	}
}

func (g *InjectionGuard) evaluateInternal(input string) Evaluation {
	threshold := g.threshold()

	switch {
	case textnorm.IsJamoOnly(input):
		return g.block("jamo_only", input, threshold)
	case containsSuspiciousBase64(input):
		return g.block("base64_payload", input, threshold)
	}

	// 자모 조합 후 homoglyph 정규화
	normalized := textnorm.Normalize(textnorm.ComposeJamo(input))
	score, hits := g.evaluatePacks(normalized)
	return Evaluation{Score: score, Hits: hits, Threshold: threshold}
}

func (g *InjectionGuard) evaluatePacks(text string) (float64, []Match) {
	total := 0.0
	hits := make([]Match, 0)
	textLower := strings.ToLower(text)

	for _, pack := range g.packs {
		for _, rule := range pack.RegexRules {
			if rule.Pattern.MatchString(text) {
				total += rule.Weight
				hits = append(hits, Match{ID: rule.ID, Weight: rule.Weight})
			}
		}

		if pack.PhraseMatcher == nil {
			continue
		}
		for _, index := range pack.PhraseMatcher.MatchThreadSafe([]byte(textLower)) {
			if index < 0 || index >= len(pack.Phrases) {
				continue
			}
			phrase := pack.Phrases[index]
			weight := pack.PhraseWeights[phrase]
			if weight <= 0 {
				continue
			}
			total += weight
			hits = append(hits, Match{ID: "phrase:" + phrase, Weight: weight})
		}
	}

	return total, hits
}
