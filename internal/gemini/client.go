package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"google.golang.org/genai"

	"github.com/park285/clarification-agent-go/internal/config"
	"github.com/park285/clarification-agent-go/internal/llm"
	"github.com/park285/clarification-agent-go/internal/metrics"
)

var (
	// ErrMissingAPIKey 는 Gemini API 키가 없을 때 반환된다.
	ErrMissingAPIKey = errors.New("missing gemini api key")
	// ErrInvalidModel 는 지원하지 않는 모델일 때 반환된다.
	ErrInvalidModel = errors.New("invalid model")
	// ErrEmptyResponse 는 structured 응답 본문이 비어 있을 때 반환된다.
	ErrEmptyResponse = errors.New("empty structured response")
	// ErrDecodeResponse 는 structured 응답이 JSON 객체가 아닐 때 반환된다.
	ErrDecodeResponse = errors.New("decode structured response")
)

// Request 는 Gemini 요청 데이터다.
type Request struct {
	Prompt       string
	SystemPrompt string
	Model        string
	Task         string
}

// Client 는 Gemini 호출을 담당한다.
type Client struct {
	cfg           config.GeminiConfig
	metrics       *metrics.Store
	usageRecorder UsageRecorder
	logger        *slog.Logger
	mu            sync.Mutex
	clients       map[string]*genai.Client
	apiKeyIdx     int
}

// NewClient 는 Gemini 클라이언트를 생성한다. usageRecorder 는 nil 일 수 있다.
func NewClient(cfg *config.Config, metricsStore *metrics.Store, usageRecorder UsageRecorder, logger *slog.Logger) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if metricsStore == nil {
		return nil, errors.New("metrics store is nil")
	}
	return &Client{
		cfg:           cfg.Gemini,
		metrics:       metricsStore,
		usageRecorder: usageRecorder,
		logger:        logger,
		clients:       make(map[string]*genai.Client),
	}, nil
}

// Structured 는 JSON 스키마 기반 응답을 반환한다.
// 일시적 오류가 나면 다음 API 키로 FailoverAttempts 회까지 넘긴다.
func (c *Client) Structured(ctx context.Context, req Request, schema map[string]any) (map[string]any, string, error) {
	model, err := c.resolveModel(req.Model, req.Task)
	if err != nil {
		return nil, model, err
	}

	attempts := max(1, min(c.cfg.FailoverAttempts, len(c.cfg.APIKeys)))
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		parsed, err := c.structuredOnce(ctx, req, model, schema)
		if err == nil {
			return parsed, model, nil
		}
		lastErr = err
		if IsPermanent(err) || ctx.Err() != nil {
			break
		}
		if attempt < attempts && c.logger != nil {
			c.logger.Warn("gemini_key_failover", "attempt", attempt, "model", model, "err", err)
		}
	}
	return nil, model, lastErr
}

func (c *Client) structuredOnce(ctx context.Context, req Request, model string, schema map[string]any) (map[string]any, error) {
	start := time.Now()
	client, err := c.selectClient(ctx)
	if err != nil {
		return nil, err
	}

	response, err := client.Models.GenerateContent(ctx, model, buildContents(req.Prompt), c.buildGenerateConfig(req.SystemPrompt, model, schema))
	if err != nil {
		c.metrics.RecordError(time.Since(start))
		return nil, fmt.Errorf("generate content: %w", err)
	}

	usage := extractUsage(response)
	c.metrics.RecordSuccess(time.Since(start), usage)
	c.recordUsage(ctx, usage)

	texts, _ := extractParts(response)
	return parseStructured(strings.Join(texts, ""))
}

func parseStructured(payload string) (map[string]any, error) {
	if strings.TrimSpace(payload) == "" {
		return nil, ErrEmptyResponse
	}
	var parsed map[string]any
	if err := json.Unmarshal([]byte(payload), &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecodeResponse, err)
	}
	if parsed == nil {
		return nil, fmt.Errorf("%w: null payload", ErrDecodeResponse)
	}
	return parsed, nil
}

// IsPermanent: 재시도해도 결과가 바뀌지 않는 오류인지 판단합니다.
// 설정 오류와 429 를 제외한 4xx 응답이 해당합니다.
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrMissingAPIKey) || errors.Is(err, ErrInvalidModel) {
		return true
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code >= 400 && apiErr.Code < 500 && apiErr.Code != http.StatusTooManyRequests
	}
	return false
}

func (c *Client) recordUsage(ctx context.Context, usage llm.Usage) {
	if c.usageRecorder == nil {
		return
	}
	c.usageRecorder.Record(ctx, int64(usage.InputTokens), int64(usage.OutputTokens), int64(usage.ReasoningTokens))
}

func (c *Client) selectClient(ctx context.Context) (*genai.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.cfg.APIKeys) == 0 {
		return nil, ErrMissingAPIKey
	}

	key := c.cfg.APIKeys[c.apiKeyIdx%len(c.cfg.APIKeys)]
	c.apiKeyIdx++
	if client, ok := c.clients[key]; ok {
		return client, nil
	}

	timeout := time.Duration(c.cfg.TimeoutSeconds) * time.Second
	client, err := genai.NewClient(context.WithoutCancel(ctx), &genai.ClientConfig{
		APIKey:  key,
		Backend: genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{
			Timeout: genai.Ptr(timeout),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	c.clients[key] = client
	return client, nil
}

func (c *Client) resolveModel(modelOverride string, task string) (string, error) {
	model := modelOverride
	if model == "" {
		model = c.cfg.ModelForTask(task)
	}
	if model == "" {
		return "", ErrInvalidModel
	}
	if !isGemini3(model) {
		return model, ErrInvalidModel
	}
	return model, nil
}

func (c *Client) buildGenerateConfig(systemPrompt string, model string, responseSchema map[string]any) *genai.GenerateContentConfig {
	temperature := float32(c.cfg.TemperatureForModel(model))
	config := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(temperature),
		MaxOutputTokens:  int32(c.cfg.MaxOutputTokens),
		ResponseMIMEType: "application/json",
	}

	if systemPrompt != "" {
		config.SystemInstruction = genai.NewContentFromText(systemPrompt, genai.RoleUser)
	}
	if responseSchema != nil {
		config.ResponseJsonSchema = responseSchema
	}
	if thinkingLevel, ok := normalizeThinkingLevel(c.cfg.ThinkingLevel); ok {
		config.ThinkingConfig = &genai.ThinkingConfig{ThinkingLevel: thinkingLevel}
	}

	return config
}

func buildContents(prompt string) []*genai.Content {
	return []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}
}

func normalizeThinkingLevel(level string) (genai.ThinkingLevel, bool) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "low":
		return genai.ThinkingLevelLow, true
	case "medium":
		return genai.ThinkingLevelMedium, true
	case "high":
		return genai.ThinkingLevelHigh, true
	case "minimal":
		return genai.ThinkingLevelMinimal, true
	default:
		return "", false
	}
}

// extractParts: 첫 후보의 본문과 thought 파트를 분리합니다.
func extractParts(response *genai.GenerateContentResponse) ([]string, []string) {
	if response == nil || len(response.Candidates) == 0 {
		return nil, nil
	}
	content := response.Candidates[0].Content
	if content == nil || len(content.Parts) == 0 {
		return nil, nil
	}

	texts := make([]string, 0)
	thoughts := make([]string, 0)
	for _, part := range content.Parts {
		if part == nil || part.Text == "" {
			continue
		}
		if part.Thought {
			thoughts = append(thoughts, part.Text)
			continue
		}
		texts = append(texts, part.Text)
	}
	return texts, thoughts
}

func extractUsage(response *genai.GenerateContentResponse) llm.Usage {
	if response == nil || response.UsageMetadata == nil {
		return llm.Usage{}
	}
	usage := response.UsageMetadata
	return llm.Usage{
		InputTokens:     int(usage.PromptTokenCount),
		OutputTokens:    int(usage.CandidatesTokenCount) + int(usage.ThoughtsTokenCount),
		TotalTokens:     int(usage.TotalTokenCount),
		ReasoningTokens: int(usage.ThoughtsTokenCount),
		CachedTokens:    int(usage.CachedContentTokenCount),
	}
}

func isGemini3(model string) bool {
	return strings.Contains(strings.ToLower(model), "gemini-3")
}
