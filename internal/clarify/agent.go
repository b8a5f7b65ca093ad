package clarify

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/goccy/go-json"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/park285/clarification-agent-go/internal/guard"
	"github.com/park285/clarification-agent-go/internal/metrics"
	"github.com/park285/clarification-agent-go/internal/textnorm"
)

const tracerName = "clarification-agent/clarify"

// Options: 에이전트 구성 요소입니다. Analyzers 가 비어 있으면 에이전트는 미구현 상태로 동작합니다.
type Options struct {
	Analyzers     []Analyzer
	Guard         guard.Guard
	Cache         Cache
	MaxQuestions  int
	MaxInputRunes int
	Stats         *metrics.ClarifyStats
	Logger        *slog.Logger
}

// Agent 는 명확화 에이전트다. 영값도 사용할 수 있으며 이 경우 모든 호출이 ErrNotImplemented 로 실패한다.
type Agent struct {
	analyzers     []Analyzer
	guard         guard.Guard
	cache         Cache
	maxQuestions  int
	maxInputRunes int
	stats         *metrics.ClarifyStats
	logger        *slog.Logger
	chain         string
	group         singleflight.Group
}

// NewAgent: 옵션으로 에이전트를 생성합니다. nil 분석기는 건너뜁니다.
func NewAgent(opts Options) *Agent {
	analyzers := make([]Analyzer, 0, len(opts.Analyzers))
	names := make([]string, 0, len(opts.Analyzers))
	for _, analyzer := range opts.Analyzers {
		if analyzer == nil {
			continue
		}
		analyzers = append(analyzers, analyzer)
		names = append(names, analyzer.Name())
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Agent{
		analyzers:     analyzers,
		guard:         opts.Guard,
		cache:         opts.Cache,
		maxQuestions:  opts.MaxQuestions,
		maxInputRunes: opts.MaxInputRunes,
		stats:         opts.Stats,
		logger:        logger,
		chain:         strings.Join(names, ">"),
	}
}

// Configured: 분석기가 하나 이상 연결되어 있는지 여부입니다.
func (a *Agent) Configured() bool {
	return a != nil && len(a.analyzers) > 0
}

// Chain: 분석기 실행 순서(예: "llm>rules")입니다.
func (a *Agent) Chain() string {
	if a == nil {
		return ""
	}
	return a.chain
}

// Run: 사용자 입력과 워크플로 컨텍스트를 분석해 명확화 결과를 반환합니다.
// 성공하면 결과는 항상 non-nil 이고 호출자마다 독립된 복사본입니다.
func (a *Agent) Run(ctx context.Context, req Request) (*Result, error) {
	if !a.Configured() {
		if a != nil {
			a.stats.RecordRun("", metrics.OutcomeNotImplemented, 0, 0)
		}
		return nil, ErrNotImplemented
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "clarify.Run",
		trace.WithAttributes(
			attribute.Int("clarify.input_runes", utf8.RuneCountInString(req.UserInput)),
			attribute.String("clarify.chain", a.chain),
		),
	)
	defer span.End()

	start := time.Now()
	result, outcome, err := a.run(ctx, req)
	elapsed := time.Since(start)

	if err != nil {
		a.stats.RecordRun("", outcome, 0, elapsed)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		a.logger.WarnContext(ctx, "clarify_run_failed", "outcome", outcome, "err", err)
		return nil, err
	}

	a.stats.RecordRun(string(result.Source), outcome, len(result.Questions), elapsed)
	span.SetAttributes(
		attribute.String("clarify.source", string(result.Source)),
		attribute.String("clarify.outcome", outcome),
		attribute.Int("clarify.questions", len(result.Questions)),
	)
	span.SetStatus(codes.Ok, "")
	return result, nil
}

func (a *Agent) run(ctx context.Context, req Request) (*Result, string, error) {
	if a.maxInputRunes > 0 {
		if n := utf8.RuneCountInString(req.UserInput); n > a.maxInputRunes {
			return nil, metrics.OutcomeInvalid, fmt.Errorf("%w: %d runes (max %d)", ErrInputTooLong, n, a.maxInputRunes)
		}
	}
	if a.guard != nil && strings.TrimSpace(req.UserInput) != "" {
		if err := a.guard.EnsureSafe(req.UserInput); err != nil {
			return nil, metrics.OutcomeBlocked, err
		}
	}

	limit := effectiveLimit(a.maxQuestions, req.Context)
	key := a.cacheKey(req, limit)
	if cached, ok := a.lookup(ctx, key); ok {
		return cached, metrics.OutcomeCached, nil
	}

	ch := a.group.DoChan(key, func() (any, error) {
		return a.analyze(ctx, req, limit, key)
	})

	var result *Result
	select {
	case <-ctx.Done():
		return nil, metrics.OutcomeCanceled, ctx.Err()
	case res := <-ch:
		switch {
		case res.Err == nil:
			result = cloneResult(res.Val.(*Result))
		case isCancellation(res.Err) && ctx.Err() == nil:
			// 먼저 들어온 호출이 취소되었을 뿐이므로 직접 분석합니다.
			direct, err := a.analyze(ctx, req, limit, key)
			if err != nil {
				return nil, outcomeOf(err), err
			}
			result = direct
		default:
			return nil, outcomeOf(res.Err), res.Err
		}
	}

	if result.NeedsClarification {
		return result, metrics.OutcomeClarify, nil
	}
	return result, metrics.OutcomeClear, nil
}

// analyze: 분석기를 순서대로 실행하고 첫 성공 결과를 확정해 캐시에 저장합니다.
func (a *Agent) analyze(ctx context.Context, req Request, limit int, key string) (*Result, error) {
	var lastErr error
	for i, analyzer := range a.analyzers {
		raw, err := analyzer.Analyze(ctx, req, limit)
		if err == nil {
			result := finalize(raw, limit)
			if result.Source == "" {
				result.Source = Source(analyzer.Name())
			}
			a.store(ctx, key, result)
			return result, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		lastErr = fmt.Errorf("%s analyzer: %w", analyzer.Name(), err)
		if i+1 < len(a.analyzers) {
			next := a.analyzers[i+1].Name()
			a.logger.WarnContext(ctx, "clarify_analyzer_fallback", "from", analyzer.Name(), "to", next, "err", err)
			a.stats.RecordFallback(analyzer.Name(), next)
		}
	}
	return nil, lastErr
}

func (a *Agent) lookup(ctx context.Context, key string) (*Result, bool) {
	if a.cache == nil {
		return nil, false
	}
	payload, ok, err := a.cache.Get(ctx, key)
	if err != nil {
		a.stats.RecordCacheLookup("error")
		a.logger.DebugContext(ctx, "clarify_cache_get_failed", "err", err)
		return nil, false
	}
	if !ok {
		a.stats.RecordCacheLookup("miss")
		return nil, false
	}

	var result Result
	if err := json.Unmarshal(payload, &result); err != nil {
		a.stats.RecordCacheLookup("error")
		a.logger.DebugContext(ctx, "clarify_cache_decode_failed", "err", err)
		return nil, false
	}
	a.stats.RecordCacheLookup("hit")
	if result.Questions == nil {
		result.Questions = []Question{}
	}
	return &result, true
}

func (a *Agent) store(ctx context.Context, key string, result *Result) {
	if a.cache == nil {
		return
	}
	payload, err := json.Marshal(result)
	if err != nil {
		a.logger.WarnContext(ctx, "clarify_cache_encode_failed", "err", err)
		return
	}
	if err := a.cache.Set(ctx, key, payload); err != nil {
		a.logger.WarnContext(ctx, "clarify_cache_set_failed", "err", err)
	}
}

// cacheKey: 정규화된 입력, 컨텍스트, 상한, 분석기 순서로 키를 만듭니다.
func (a *Agent) cacheKey(req Request, limit int) string {
	contextJSON, err := json.Marshal(req.Context.Fields())
	if err != nil {
		contextJSON = nil
	}
	h := sha256.New()
	h.Write([]byte(textnorm.Fold(req.UserInput)))
	h.Write([]byte{0})
	h.Write(contextJSON)
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(limit)))
	h.Write([]byte{0})
	h.Write([]byte(a.chain))
	return hex.EncodeToString(h.Sum(nil))
}

func cloneResult(result *Result) *Result {
	if result == nil {
		return nil
	}
	clone := *result
	clone.Questions = make([]Question, len(result.Questions))
	for i, q := range result.Questions {
		if q.Options != nil {
			q.Options = append([]string(nil), q.Options...)
		}
		clone.Questions[i] = q
	}
	return &clone
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func outcomeOf(err error) string {
	var blocked *guard.BlockedError
	switch {
	case errors.Is(err, ErrNotImplemented):
		return metrics.OutcomeNotImplemented
	case errors.Is(err, ErrInputTooLong):
		return metrics.OutcomeInvalid
	case errors.As(err, &blocked):
		return metrics.OutcomeBlocked
	case isCancellation(err):
		return metrics.OutcomeCanceled
	default:
		return metrics.OutcomeError
	}
}
