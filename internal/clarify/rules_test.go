package clarify

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRuleAnalyzerKorean(t *testing.T) {
	rules := newRulesAnalyzer(t)

	result, err := rules.Analyze(context.Background(), Request{UserInput: "로그인 페이지 만들어줘"}, 5)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if result.Language != "ko" {
		t.Fatalf("expected korean pack, got %s", result.Language)
	}
	if !result.HasAspect("platform") || !result.HasAspect("auth") {
		t.Fatalf("expected platform and auth questions, got %v", result.QuestionTexts())
	}

	answered, err := rules.Analyze(context.Background(), Request{
		UserInput: "카카오 로그인으로 웹 로그인 페이지 만들어줘",
	}, 5)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if answered.HasAspect("platform") || answered.HasAspect("auth") {
		t.Fatalf("expected platform and auth to be satisfied, got %v", answered.QuestionTexts())
	}
}

func TestRuleAnalyzerContextLanguageWins(t *testing.T) {
	rules := newRulesAnalyzer(t)
	result, err := rules.Analyze(context.Background(), Request{
		UserInput: "Build me a login page",
		Context:   &WorkflowContext{Language: "ko-KR"},
	}, 5)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if result.Language != "ko" {
		t.Fatalf("expected context language to select korean pack, got %s", result.Language)
	}
}

func TestRuleAnalyzerVagueAndShort(t *testing.T) {
	rules := newRulesAnalyzer(t)

	tests := []struct {
		name       string
		input      string
		wantAspect string
		wantAbsent string
		wantText   string
	}{
		{name: "vague term", input: "Make the checkout flow faster", wantAspect: "specificity", wantText: `"faster"`},
		{name: "measurable target", input: "Make the checkout flow faster, under 200ms at p95", wantAbsent: "specificity"},
		{name: "percent target", input: "make it 50% faster", wantAbsent: "specificity"},
		{name: "percent at end", input: "Make the checkout flow faster by 30 %", wantAbsent: "specificity"},
		{name: "multiplier target", input: "Make the checkout flow 2x faster", wantAbsent: "specificity"},
		{name: "unit needs boundary", input: "Make the checkout flow faster than 5seconds2", wantAspect: "specificity"},
		{name: "short request", input: "hmm ok", wantAspect: "goal"},
		{name: "word boundary", input: "Rebuild the quiz generator internals completely", wantAbsent: "platform"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result, err := rules.Analyze(context.Background(), Request{UserInput: tc.input}, 5)
			if err != nil {
				t.Fatalf("analyze: %v", err)
			}
			if tc.wantAspect != "" && !result.HasAspect(tc.wantAspect) {
				t.Fatalf("expected %s question, got %v", tc.wantAspect, result.Questions)
			}
			if tc.wantAbsent != "" && result.HasAspect(tc.wantAbsent) {
				t.Fatalf("did not expect %s question, got %v", tc.wantAbsent, result.Questions)
			}
			if tc.wantText != "" && !strings.Contains(strings.Join(result.QuestionTexts(), "\n"), tc.wantText) {
				t.Fatalf("expected question text containing %s, got %v", tc.wantText, result.QuestionTexts())
			}
		})
	}
}

func TestRuleAnalyzerAnsweredAspect(t *testing.T) {
	rules := newRulesAnalyzer(t)
	result, err := rules.Analyze(context.Background(), Request{
		UserInput: "Build me a login page",
		Context:   &WorkflowContext{Answers: map[string]string{"auth": "magic link"}},
	}, 5)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if result.HasAspect("auth") {
		t.Fatalf("expected answered aspect to be skipped")
	}
}

func TestRuleAnalyzerDirectoryOverride(t *testing.T) {
	dir := t.TempDir()
	custom := `language: en
min_words: 1
empty_question:
  text: "Tell me what you need."
short_question:
  text: "More detail please."
aspects:
  - id: deadline
    priority: high
    triggers:
      phrases: [report*]
    satisfied_by:
      patterns: ['\bby (monday|tuesday|wednesday|thursday|friday)\b']
    question: "When is this due?"
`
	if err := os.WriteFile(filepath.Join(dir, "en.yml"), []byte(custom), 0o600); err != nil {
		t.Fatalf("write rulepack: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte("language: [\n"), 0o600); err != nil {
		t.Fatalf("write broken rulepack: %v", err)
	}

	rules, err := NewRuleAnalyzer(dir, "en", nil)
	if err != nil {
		t.Fatalf("new rule analyzer: %v", err)
	}
	if langs := rules.Languages(); len(langs) != 2 {
		t.Fatalf("expected embedded ko and custom en, got %v", langs)
	}

	result, err := rules.Analyze(context.Background(), Request{UserInput: "Build the weekly sales report"}, 5)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if len(result.Questions) != 1 || result.Questions[0].Aspect != "deadline" {
		t.Fatalf("expected custom deadline question, got %+v", result.Questions)
	}

	satisfied, err := rules.Analyze(context.Background(), Request{UserInput: "Build the weekly sales report by Friday"}, 5)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if len(satisfied.Questions) != 0 {
		t.Fatalf("expected no questions, got %+v", satisfied.Questions)
	}

	empty, err := rules.Analyze(context.Background(), Request{}, 5)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if len(empty.Questions) != 1 || empty.Questions[0].Text != "Tell me what you need." {
		t.Fatalf("expected custom empty question, got %+v", empty.Questions)
	}
}

func TestParseRulepackRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{name: "missing language", yaml: "empty_question: {text: a}\nshort_question: {text: b}\n"},
		{name: "missing empty question", yaml: "language: en\nshort_question: {text: b}\n"},
		{name: "unknown context key", yaml: "language: en\nempty_question: {text: a}\nshort_question: {text: b}\naspects:\n  - {id: x, question: q, context_keys: [color]}\n"},
		{name: "duplicate aspect", yaml: "language: en\nempty_question: {text: a}\nshort_question: {text: b}\naspects:\n  - {id: x, question: q}\n  - {id: X, question: q}\n"},
		{name: "bad pattern", yaml: "language: en\nempty_question: {text: a}\nshort_question: {text: b}\naspects:\n  - id: x\n    question: q\n    triggers: {patterns: ['(']}\n"},
		{name: "bad vague template", yaml: "language: en\nempty_question: {text: a}\nshort_question: {text: b}\nvague_terms: [better]\nvague_question: {text: 'what {term'}\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := parseRulepack([]byte(tc.yaml)); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestRuleAnalyzerHonorsCancellation(t *testing.T) {
	rules := newRulesAnalyzer(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := rules.Analyze(ctx, Request{UserInput: "Build me a login page"}, 5); err == nil {
		t.Fatalf("expected cancellation error")
	}
}
