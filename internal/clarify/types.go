// Package clarify 는 사용자 요청의 모호함을 판단하고 되물을 질문을 만드는 명확화 에이전트를 제공한다.
package clarify

import (
	"context"
	"strings"
)

// Priority: 질문 우선순위입니다.
type Priority string

// 우선순위 값
const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// ParsePriority: 알 수 없는 값은 medium 으로 취급합니다.
func ParsePriority(value string) Priority {
	switch Priority(strings.ToLower(strings.TrimSpace(value))) {
	case PriorityHigh:
		return PriorityHigh
	case PriorityLow:
		return PriorityLow
	default:
		return PriorityMedium
	}
}

func (p Priority) rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	default:
		return 2
	}
}

// Source: 결과를 만든 분석기 종류입니다.
type Source string

// 분석기 종류
const (
	SourceRules Source = "rules"
	SourceLLM   Source = "llm"
)

// Question: 사용자에게 되물을 질문 하나입니다.
type Question struct {
	Aspect   string   `json:"aspect" mapstructure:"aspect"`
	Text     string   `json:"text" mapstructure:"text"`
	Priority Priority `json:"priority" mapstructure:"priority"`
	Options  []string `json:"options,omitempty" mapstructure:"options"`
}

// Result: 명확화 판단 결과입니다.
// 성공 시 항상 non-nil 이며 NeedsClarification 은 len(Questions) > 0 과 같습니다.
type Result struct {
	NeedsClarification bool       `json:"needs_clarification"`
	Questions          []Question `json:"questions"`
	Summary            string     `json:"summary,omitempty"`
	Source             Source     `json:"source"`
	Model              string     `json:"model,omitempty"`
	Language           string     `json:"language"`
}

// QuestionTexts: 질문 문장만 순서대로 반환합니다.
func (r *Result) QuestionTexts() []string {
	if r == nil {
		return nil
	}
	texts := make([]string, 0, len(r.Questions))
	for _, q := range r.Questions {
		texts = append(texts, q.Text)
	}
	return texts
}

// HasAspect: 해당 측면의 질문이 있는지 확인합니다.
func (r *Result) HasAspect(aspect string) bool {
	if r == nil {
		return false
	}
	for _, q := range r.Questions {
		if q.Aspect == aspect {
			return true
		}
	}
	return false
}

// WorkflowContext: 워크플로 단계 간에 공유되는 보조 정보입니다.
type WorkflowContext struct {
	Project      string            `json:"project,omitempty" mapstructure:"project"`
	Platform     string            `json:"platform,omitempty" mapstructure:"platform"`
	Audience     string            `json:"audience,omitempty" mapstructure:"audience"`
	AuthMethod   string            `json:"auth_method,omitempty" mapstructure:"auth_method"`
	Location     string            `json:"location,omitempty" mapstructure:"location"`
	Language     string            `json:"language,omitempty" mapstructure:"language"`
	Answers      map[string]string `json:"answers,omitempty" mapstructure:"answers"`
	MaxQuestions int               `json:"max_questions,omitempty" mapstructure:"max_questions"`
}

// Value: 규칙 팩의 context_keys 이름으로 값을 조회합니다.
func (c *WorkflowContext) Value(key string) string {
	if c == nil {
		return ""
	}
	switch key {
	case "project":
		return strings.TrimSpace(c.Project)
	case "platform":
		return strings.TrimSpace(c.Platform)
	case "audience":
		return strings.TrimSpace(c.Audience)
	case "auth_method":
		return strings.TrimSpace(c.AuthMethod)
	case "location":
		return strings.TrimSpace(c.Location)
	case "language":
		return strings.TrimSpace(c.Language)
	default:
		return ""
	}
}

// Answered: 해당 측면에 이미 답이 있는지 확인합니다.
func (c *WorkflowContext) Answered(aspect string) bool {
	if c == nil || len(c.Answers) == 0 {
		return false
	}
	return strings.TrimSpace(c.Answers[aspect]) != ""
}

// Fields: 비어 있지 않은 값만 담은 맵을 반환합니다. 프롬프트와 캐시 키에 사용합니다.
func (c *WorkflowContext) Fields() map[string]any {
	fields := make(map[string]any)
	if c == nil {
		return fields
	}
	for _, key := range []string{"project", "platform", "audience", "auth_method", "location", "language"} {
		if value := c.Value(key); value != "" {
			fields[key] = value
		}
	}
	if len(c.Answers) > 0 {
		answers := make(map[string]any, len(c.Answers))
		for aspect, answer := range c.Answers {
			if strings.TrimSpace(answer) != "" {
				answers[aspect] = strings.TrimSpace(answer)
			}
		}
		if len(answers) > 0 {
			fields["answers"] = answers
		}
	}
	if c.MaxQuestions > 0 {
		fields["max_questions"] = c.MaxQuestions
	}
	return fields
}

// Request: 한 번의 호출에 쓰이는 불변 입력입니다.
type Request struct {
	UserInput string
	Context   *WorkflowContext
}

// Analyzer 는 요청을 분석해 결과를 만드는 전략이다.
// limit 는 호출에 적용되는 최대 질문 수다.
type Analyzer interface {
	Name() string
	Analyze(ctx context.Context, req Request, limit int) (*Result, error)
}

// Cache 는 직렬화된 결과를 저장하는 캐시 인터페이스다.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
}
