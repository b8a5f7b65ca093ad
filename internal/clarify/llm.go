package clarify

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/mitchellh/mapstructure"

	"github.com/park285/clarification-agent-go/internal/gemini"
	"github.com/park285/clarification-agent-go/internal/prompt"
	"github.com/park285/clarification-agent-go/internal/textnorm"
	"github.com/park285/clarification-agent-go/internal/toon"
)

//go:embed prompts/*.yml
var embeddedPrompts embed.FS

const (
	llmTask          = "clarify"
	promptName       = "clarify"
	retryMaxInterval = 8 * time.Second
)

// LLMOptions: LLM 분석기 옵션입니다.
type LLMOptions struct {
	Model        string
	MaxRetries   int
	RetryInitial time.Duration
	Logger       *slog.Logger
}

// LLMAnalyzer 는 Gemini structured output 으로 질문을 만드는 분석기다.
type LLMAnalyzer struct {
	client gemini.LLM
	tmpl   prompt.Template
	opts   LLMOptions
}

// NewLLMAnalyzer: 내장 프롬프트를 로드해 LLM 분석기를 생성합니다.
func NewLLMAnalyzer(client gemini.LLM, opts LLMOptions) (*LLMAnalyzer, error) {
	if client == nil {
		return nil, errors.New("llm client is nil")
	}
	bundle, err := prompt.LoadBundle(embeddedPrompts, "prompts")
	if err != nil {
		return nil, fmt.Errorf("load clarify prompts: %w", err)
	}
	tmpl, err := bundle.Template(promptName)
	if err != nil {
		return nil, err
	}

	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 1
	}
	if opts.RetryInitial <= 0 {
		opts.RetryInitial = 500 * time.Millisecond
	}
	return &LLMAnalyzer{client: client, tmpl: tmpl, opts: opts}, nil
}

// Name: 분석기 이름입니다.
func (a *LLMAnalyzer) Name() string {
	return string(SourceLLM)
}

// Analyze: Gemini 를 호출해 결과를 만듭니다. 일시적 오류는 지수 백오프로 재시도합니다.
func (a *LLMAnalyzer) Analyze(ctx context.Context, req Request, limit int) (*Result, error) {
	language := questionLanguage(req, textnorm.LangEnglish)
	userPrompt, err := a.renderUserPrompt(req, limit, language)
	if err != nil {
		return nil, err
	}

	llmReq := gemini.Request{
		Prompt:       userPrompt,
		SystemPrompt: a.tmpl.System,
		Model:        a.opts.Model,
		Task:         llmTask,
	}
	schema := responseSchema(limit)

	retryBackoff := backoff.NewExponentialBackOff()
	retryBackoff.InitialInterval = a.opts.RetryInitial
	retryBackoff.MaxInterval = retryMaxInterval
	retryBackoff.Multiplier = 2.0
	retryBackoff.RandomizationFactor = 0.2
	policy := backoff.WithContext(backoff.WithMaxRetries(retryBackoff, uint64(a.opts.MaxRetries-1)), ctx)

	attempt := 0
	operation := func() (*Result, error) {
		attempt++
		payload, model, err := a.client.Structured(ctx, llmReq, schema)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, backoff.Permanent(ctxErr)
			}
			if gemini.IsPermanent(err) {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		result, err := decodeLLMResult(payload)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		result.Model = model
		result.Language = language
		return result, nil
	}
	notify := func(err error, wait time.Duration) {
		if a.opts.Logger != nil {
			a.opts.Logger.Warn("clarify_llm_retry", "attempt", attempt, "err", err, "retry_in", wait.Round(time.Millisecond))
		}
	}

	result, err := backoff.RetryNotifyWithData(operation, policy, notify)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (a *LLMAnalyzer) renderUserPrompt(req Request, limit int, language string) (string, error) {
	contextText := "(none)"
	if fields := req.Context.Fields(); len(fields) > 0 {
		contextText = toon.Encode(fields)
	}
	rendered, err := a.tmpl.Render(map[string]string{
		"request":       prompt.EscapeXML(req.UserInput),
		"context":       prompt.EscapeXML(contextText),
		"max_questions": strconv.Itoa(limit),
		"language":      language,
	})
	if err != nil {
		return "", fmt.Errorf("render clarify prompt: %w", err)
	}
	return rendered, nil
}

// questionLanguage: 컨텍스트 언어 힌트가 없으면 입력에서 추정합니다.
func questionLanguage(req Request, fallback string) string {
	if req.Context != nil {
		if lang := normalizeLanguage(req.Context.Language); lang != "" {
			return lang
		}
	}
	return textnorm.DetectLanguage(req.UserInput, fallback)
}

func responseSchema(limit int) map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"needs_clarification": map[string]any{"type": "boolean"},
			"summary":             map[string]any{"type": "string"},
			"questions": map[string]any{
				"type":     "array",
				"maxItems": limit,
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"aspect":   map[string]any{"type": "string"},
						"text":     map[string]any{"type": "string"},
						"priority": map[string]any{"type": "string", "enum": []string{"high", "medium", "low"}},
						"options": map[string]any{
							"type":  "array",
							"items": map[string]any{"type": "string"},
						},
					},
					"required": []string{"aspect", "text", "priority"},
				},
			},
		},
		"required": []string{"needs_clarification", "questions"},
	}
}

type llmPayload struct {
	NeedsClarification bool       `mapstructure:"needs_clarification"`
	Summary            string     `mapstructure:"summary"`
	Questions          []Question `mapstructure:"questions"`
}

// decodeLLMResult: structured 응답을 결과로 변환합니다.
// needs_clarification 값은 질문 목록으로 다시 계산되므로 신뢰하지 않습니다.
func decodeLLMResult(payload map[string]any) (*Result, error) {
	if payload == nil {
		return nil, fmt.Errorf("%w: empty payload", ErrMalformedResponse)
	}
	if _, ok := payload["questions"]; !ok {
		return nil, fmt.Errorf("%w: questions missing", ErrMalformedResponse)
	}

	var decoded llmPayload
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &decoded,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create llm decoder: %w", err)
	}
	if err := decoder.Decode(payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	questions := decoded.Questions
	if questions == nil {
		questions = []Question{}
	}
	return &Result{
		NeedsClarification: len(questions) > 0,
		Questions:          questions,
		Summary:            decoded.Summary,
		Source:             SourceLLM,
	}, nil
}
