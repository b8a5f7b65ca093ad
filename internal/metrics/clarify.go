package metrics

import (
	"sync/atomic"
	"time"
)

// 실행 결과 분류
const (
	OutcomeClarify        = "clarify"
	OutcomeClear          = "clear"
	OutcomeCached         = "cached"
	OutcomeBlocked        = "blocked"
	OutcomeInvalid        = "invalid"
	OutcomeError          = "error"
	OutcomeCanceled       = "canceled"
	OutcomeNotImplemented = "not_implemented"
)

// ClarifyStats 는 명확화 실행 통계를 저장한다.
type ClarifyStats struct {
	runs           atomic.Int64
	needsClarify   atomic.Int64
	clear          atomic.Int64
	failures       atomic.Int64
	blocked        atomic.Int64
	cacheHits      atomic.Int64
	fallbacks      atomic.Int64
	questionsTotal atomic.Int64
	durationMs     atomic.Int64
}

// NewClarifyStats 는 통계 저장소를 생성한다.
func NewClarifyStats() *ClarifyStats {
	return &ClarifyStats{}
}

// RecordRun: 한 번의 실행 결과를 기록합니다. nil 수신자는 무시합니다.
func (s *ClarifyStats) RecordRun(source string, outcome string, questions int, duration time.Duration) {
	if s == nil {
		return
	}
	if source == "" {
		source = "none"
	}
	s.runs.Add(1)
	s.durationMs.Add(duration.Milliseconds())

	switch outcome {
	case OutcomeClarify:
		s.needsClarify.Add(1)
		s.questionsTotal.Add(int64(questions))
	case OutcomeClear:
		s.clear.Add(1)
	case OutcomeCached:
		s.cacheHits.Add(1)
		if questions > 0 {
			s.needsClarify.Add(1)
		} else {
			s.clear.Add(1)
		}
		s.questionsTotal.Add(int64(questions))
	case OutcomeBlocked:
		s.blocked.Add(1)
		s.failures.Add(1)
	default:
		s.failures.Add(1)
	}

	clarifyRuns.WithLabelValues(source, outcome).Inc()
	if outcome == OutcomeNotImplemented {
		return
	}
	clarifyDuration.WithLabelValues(source).Observe(duration.Seconds())
	if outcome == OutcomeClarify || outcome == OutcomeClear || outcome == OutcomeCached {
		clarifyQuestions.Observe(float64(questions))
	}
}

// RecordFallback: 분석기 전환을 기록합니다.
func (s *ClarifyStats) RecordFallback(from string, to string) {
	if s == nil {
		return
	}
	s.fallbacks.Add(1)
	clarifyFallbacks.WithLabelValues(from, to).Inc()
}

// RecordCacheLookup: 캐시 조회 결과(hit, miss, error)를 기록합니다.
func (s *ClarifyStats) RecordCacheLookup(result string) {
	if s == nil {
		return
	}
	clarifyCacheLookups.WithLabelValues(result).Inc()
}

// Snapshot 는 통계 스냅샷을 반환한다.
func (s *ClarifyStats) Snapshot() map[string]float64 {
	if s == nil {
		return map[string]float64{}
	}
	runs := s.runs.Load()
	needs := s.needsClarify.Load()
	avgDuration := 0.0
	if runs > 0 {
		avgDuration = float64(s.durationMs.Load()) / float64(runs)
	}
	avgQuestions := 0.0
	if needs > 0 {
		avgQuestions = float64(s.questionsTotal.Load()) / float64(needs)
	}

	return map[string]float64{
		"total_runs":                float64(runs),
		"needs_clarification":       float64(needs),
		"clear_requests":            float64(s.clear.Load()),
		"failures":                  float64(s.failures.Load()),
		"guard_blocked":             float64(s.blocked.Load()),
		"cache_hits":                float64(s.cacheHits.Load()),
		"analyzer_fallbacks":        float64(s.fallbacks.Load()),
		"avg_duration_ms":           avgDuration,
		"avg_questions_per_clarify": avgQuestions,
	}
}
