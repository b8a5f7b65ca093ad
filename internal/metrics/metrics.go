// Package metrics 는 LLM 호출과 명확화 실행 통계를 집계한다.
// 누적값은 원자 연산으로 보관하고 같은 값을 Prometheus 수집기에도 반영한다.
package metrics

import (
	"sync/atomic"
	"time"

	"github.com/park285/clarification-agent-go/internal/llm"
)

// Store 는 LLM 호출 통계를 저장한다.
type Store struct {
	totalCalls           atomic.Int64
	totalErrors          atomic.Int64
	totalInputTokens     atomic.Int64
	totalOutputTokens    atomic.Int64
	totalReasoningTokens atomic.Int64
	totalDurationMs      atomic.Int64
}

// NewStore 는 통계 저장소를 생성한다.
func NewStore() *Store {
	return &Store{}
}

// RecordSuccess 는 성공 호출 통계를 기록한다.
func (s *Store) RecordSuccess(duration time.Duration, usage llm.Usage) {
	s.totalCalls.Add(1)
	s.totalInputTokens.Add(int64(usage.InputTokens))
	s.totalOutputTokens.Add(int64(usage.OutputTokens))
	s.totalReasoningTokens.Add(int64(usage.ReasoningTokens))
	s.totalDurationMs.Add(duration.Milliseconds())

	llmCalls.WithLabelValues("success").Inc()
	llmDuration.Observe(duration.Seconds())
	llmTokens.WithLabelValues("input").Add(float64(usage.InputTokens))
	llmTokens.WithLabelValues("output").Add(float64(usage.OutputTokens))
	llmTokens.WithLabelValues("reasoning").Add(float64(usage.ReasoningTokens))
}

// RecordError 는 실패 호출 통계를 기록한다.
func (s *Store) RecordError(duration time.Duration) {
	s.totalCalls.Add(1)
	s.totalErrors.Add(1)
	s.totalDurationMs.Add(duration.Milliseconds())

	llmCalls.WithLabelValues("error").Inc()
	llmDuration.Observe(duration.Seconds())
}

// UsageTotals 는 누적 사용량을 반환한다.
func (s *Store) UsageTotals() llm.Usage {
	input := s.totalInputTokens.Load()
	output := s.totalOutputTokens.Load()
	return llm.Usage{
		InputTokens:     int(input),
		OutputTokens:    int(output),
		TotalTokens:     int(input + output),
		ReasoningTokens: int(s.totalReasoningTokens.Load()),
	}
}

// Snapshot 는 통계 스냅샷을 반환한다.
func (s *Store) Snapshot() map[string]float64 {
	totalCalls := s.totalCalls.Load()
	durationMs := s.totalDurationMs.Load()
	input := s.totalInputTokens.Load()
	output := s.totalOutputTokens.Load()

	avgDuration := 0.0
	if totalCalls > 0 {
		avgDuration = float64(durationMs) / float64(totalCalls)
	}

	return map[string]float64{
		"total_calls":            float64(totalCalls),
		"total_errors":           float64(s.totalErrors.Load()),
		"total_input_tokens":     float64(input),
		"total_output_tokens":    float64(output),
		"total_reasoning_tokens": float64(s.totalReasoningTokens.Load()),
		"total_tokens":           float64(input + output),
		"total_duration_ms":      float64(durationMs),
		"avg_duration_ms":        avgDuration,
	}
}
