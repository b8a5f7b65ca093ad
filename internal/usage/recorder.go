package usage

import (
	"context"
	"log/slog"
	"time"

	"github.com/park285/clarification-agent-go/internal/config"
)

// Recorder 는 요청별 토큰 사용량을 저장하거나 배치로 적재한다.
type Recorder struct {
	store   Store
	batcher *batcher
	logger  *slog.Logger
}

// NewRecorder 는 설정에 따라 배치 사용 여부를 결정해 Recorder를 생성한다.
func NewRecorder(cfg config.DatabaseConfig, store Store, logger *slog.Logger) *Recorder {
	recorder := &Recorder{store: store, logger: logger}
	if store == nil || !cfg.UsageBatchEnabled {
		return recorder
	}

	opts := newBatchOptions(cfg)
	recorder.batcher = newBatcher(store, opts, logger)
	recorder.batcher.start()
	if logger != nil {
		logger.Info("usage_db_batch_enabled",
			"flush_interval", opts.flushInterval,
			"flush_timeout", opts.flushTimeout,
			"max_pending_requests", opts.maxPendingRequests,
			"max_backoff", opts.maxBackoff,
		)
	}
	return recorder
}

// Record 는 1회 LLM 호출의 토큰 사용량을 기록한다.
func (r *Recorder) Record(ctx context.Context, inputTokens int64, outputTokens int64, reasoningTokens int64) {
	if r == nil || r.store == nil {
		return
	}
	delta := Delta{InputTokens: inputTokens, OutputTokens: outputTokens, ReasoningTokens: reasoningTokens, RequestCount: 1}
	if inputTokens <= 0 && outputTokens <= 0 {
		return
	}

	if r.batcher != nil {
		r.batcher.add(delta)
		return
	}
	if err := r.store.RecordUsage(ctx, delta, time.Time{}); err != nil && r.logger != nil {
		r.logger.Warn("usage_db_save_failed", "err", err)
	}
}

// Close 는 배치 플러셔를 중지하고 남은 사용량을 플러시한다.
func (r *Recorder) Close() {
	if r == nil || r.batcher == nil {
		return
	}
	r.batcher.stop()
}
