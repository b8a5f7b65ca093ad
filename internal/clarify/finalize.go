package clarify

import (
	"sort"
	"strings"
)

const (
	defaultMaxQuestions = 5
	generalAspect       = "general"
)

// effectiveLimit: 에이전트 상한과 컨텍스트 상한 중 작은 값을 사용합니다.
func effectiveLimit(agentMax int, wc *WorkflowContext) int {
	limit := agentMax
	if limit <= 0 {
		limit = defaultMaxQuestions
	}
	if wc != nil && wc.MaxQuestions > 0 && wc.MaxQuestions < limit {
		limit = wc.MaxQuestions
	}
	return limit
}

// finalize: 분석기 출력에 결과 불변식을 적용합니다.
// 측면별 중복 제거, 우선순위 정렬(동순위는 발견 순서), 상한 적용, 플래그 동기화를 수행합니다.
func finalize(result *Result, limit int) *Result {
	if result == nil {
		result = &Result{}
	}

	questions := make([]Question, 0, len(result.Questions))
	seen := make(map[string]struct{}, len(result.Questions))
	for _, q := range result.Questions {
		text := strings.TrimSpace(q.Text)
		if text == "" {
			continue
		}
		aspect := normalizeAspect(q.Aspect)
		if _, dup := seen[aspect]; dup {
			continue
		}
		seen[aspect] = struct{}{}
		questions = append(questions, Question{
			Aspect:   aspect,
			Text:     text,
			Priority: ParsePriority(string(q.Priority)),
			Options:  cleanOptions(q.Options),
		})
	}

	sort.SliceStable(questions, func(i, j int) bool {
		return questions[i].Priority.rank() < questions[j].Priority.rank()
	})
	if limit > 0 && len(questions) > limit {
		questions = questions[:limit]
	}

	return &Result{
		NeedsClarification: len(questions) > 0,
		Questions:          questions,
		Summary:            strings.TrimSpace(result.Summary),
		Source:             result.Source,
		Model:              result.Model,
		Language:           result.Language,
	}
}

func normalizeAspect(aspect string) string {
	aspect = strings.ToLower(strings.TrimSpace(aspect))
	aspect = strings.Join(strings.Fields(aspect), "_")
	if aspect == "" {
		return generalAspect
	}
	return aspect
}

func cleanOptions(options []string) []string {
	if len(options) == 0 {
		return nil
	}
	cleaned := make([]string, 0, len(options))
	seen := make(map[string]struct{}, len(options))
	for _, option := range options {
		option = strings.TrimSpace(option)
		if option == "" {
			continue
		}
		key := strings.ToLower(option)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		cleaned = append(cleaned, option)
	}
	if len(cleaned) == 0 {
		return nil
	}
	return cleaned
}
