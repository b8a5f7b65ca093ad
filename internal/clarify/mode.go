package clarify

import "github.com/park285/clarification-agent-go/internal/config"

// AnalyzersForMode: 실행 모드에 맞는 분석기 순서를 구성합니다.
// hybrid 는 LLM 을 먼저 시도하고 규칙 분석기로 폴백합니다. LLM 이 없으면 규칙만 사용합니다.
func AnalyzersForMode(mode string, rules *RuleAnalyzer, llm *LLMAnalyzer) []Analyzer {
	analyzers := make([]Analyzer, 0, 2)
	switch (config.ClarifyConfig{Mode: mode}).NormalizedMode() {
	case config.ModeDisabled:
		return nil
	case config.ModeRules:
		if rules != nil {
			analyzers = append(analyzers, rules)
		}
	case config.ModeLLM:
		if llm != nil {
			analyzers = append(analyzers, llm)
		}
	default:
		if llm != nil {
			analyzers = append(analyzers, llm)
		}
		if rules != nil {
			analyzers = append(analyzers, rules)
		}
	}
	if len(analyzers) == 0 {
		return nil
	}
	return analyzers
}
