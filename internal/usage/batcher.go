package usage

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/park285/clarification-agent-go/internal/config"
)

const defaultFlushTimeout = 5 * time.Second

// batchOptions 는 DatabaseConfig 에서 정규화한 배치 설정이다.
type batchOptions struct {
	flushInterval       time.Duration
	flushTimeout        time.Duration
	maxPendingRequests  int
	maxBackoff          time.Duration
	errorLogMaxInterval time.Duration
}

func newBatchOptions(cfg config.DatabaseConfig) batchOptions {
	opts := batchOptions{
		flushInterval:       time.Duration(cfg.UsageBatchFlushIntervalSeconds) * time.Second,
		flushTimeout:        time.Duration(cfg.UsageBatchFlushTimeoutSeconds) * time.Second,
		maxPendingRequests:  cfg.UsageBatchMaxPendingRequests,
		maxBackoff:          time.Duration(cfg.UsageBatchMaxBackoffSeconds) * time.Second,
		errorLogMaxInterval: time.Duration(cfg.UsageBatchErrorLogMaxIntervalSeconds) * time.Second,
	}
	if opts.flushInterval <= 0 {
		opts.flushInterval = time.Second
	}
	if opts.flushTimeout <= 0 {
		opts.flushTimeout = defaultFlushTimeout
	}
	if opts.maxPendingRequests <= 0 {
		opts.maxPendingRequests = 1
	}
	if opts.maxBackoff < opts.flushInterval {
		opts.maxBackoff = opts.flushInterval
	}
	return opts
}

// batcher 는 토큰 사용량을 일자별로 모아 주기적으로 DB에 플러시한다.
// 실패한 증분은 다시 대기열에 넣고 지수 백오프 동안 플러시를 쉰다. 종료 시 실패분은 버린다.
type batcher struct {
	store  Store
	logger *slog.Logger
	opts   batchOptions

	mu              sync.Mutex
	pending         map[time.Time]*Delta
	pendingRequests int

	wakeup chan struct{}
	stopCh chan struct{}
	doneCh chan struct{}

	// 아래 필드는 loop 고루틴에서만 접근한다.
	retry             *backoff.ExponentialBackOff
	failures          int
	nextFlushAt       time.Time
	lastErrorLoggedAt time.Time
	stats             batchStats
}

type batchStats struct {
	flushed  int
	failed   int
	requeued int
	dropped  int
}

func newBatcher(store Store, opts batchOptions, logger *slog.Logger) *batcher {
	retry := backoff.NewExponentialBackOff()
	retry.InitialInterval = opts.flushInterval
	retry.MaxInterval = opts.maxBackoff
	retry.Multiplier = 2
	retry.RandomizationFactor = 0
	retry.MaxElapsedTime = 0
	retry.Reset()

	return &batcher{
		store:   store,
		logger:  logger,
		opts:    opts,
		pending: make(map[time.Time]*Delta),
		wakeup:  make(chan struct{}, 1),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
		retry:   retry,
	}
}

func (b *batcher) start() {
	go b.loop()
}

func (b *batcher) stop() {
	close(b.stopCh)
	<-b.doneCh
}

func (b *batcher) add(delta Delta) {
	if delta.InputTokens <= 0 && delta.OutputTokens <= 0 {
		return
	}
	b.enqueue(todayDate(), delta)
}

func (b *batcher) enqueue(date time.Time, delta Delta) {
	b.mu.Lock()
	existing := b.pending[date]
	if existing == nil {
		existing = &Delta{}
		b.pending[date] = existing
	}
	existing.add(delta)
	b.pendingRequests += int(delta.RequestCount)
	full := b.pendingRequests >= b.opts.maxPendingRequests
	b.mu.Unlock()

	if full {
		select {
		case b.wakeup <- struct{}{}:
		default:
		}
	}
}

func (b *batcher) loop() {
	ticker := time.NewTicker(b.opts.flushInterval)
	defer func() {
		ticker.Stop()
		close(b.doneCh)
	}()

	for {
		select {
		case <-ticker.C:
			b.flush(false)
		case <-b.wakeup:
			b.flush(false)
		case <-b.stopCh:
			b.flush(true)
			return
		}
	}
}

func (b *batcher) flush(shutdown bool) {
	if !shutdown && !b.nextFlushAt.IsZero() && time.Now().Before(b.nextFlushAt) {
		return
	}

	snapshot := b.drain()
	var firstErr error
	for date, delta := range snapshot {
		ctx, cancel := context.WithTimeout(context.Background(), b.opts.flushTimeout)
		err := b.store.RecordUsage(ctx, delta, date)
		cancel()
		if err == nil {
			b.stats.flushed++
			continue
		}
		b.stats.failed++
		if firstErr == nil {
			firstErr = err
		}
		if shutdown {
			b.stats.dropped++
			continue
		}
		b.enqueue(date, delta)
		b.stats.requeued++
	}

	if firstErr != nil {
		b.registerFailure(firstErr)
		return
	}
	if len(snapshot) > 0 {
		b.failures = 0
		b.nextFlushAt = time.Time{}
		b.retry.Reset()
	}
}

func (b *batcher) drain() map[time.Time]Delta {
	b.mu.Lock()
	defer b.mu.Unlock()

	snapshot := make(map[time.Time]Delta, len(b.pending))
	for date, delta := range b.pending {
		snapshot[date] = *delta
	}
	b.pending = make(map[time.Time]*Delta)
	b.pendingRequests = 0
	return snapshot
}

func (b *batcher) registerFailure(err error) {
	b.failures++
	wait := b.retry.NextBackOff()
	if wait == backoff.Stop || wait <= 0 {
		wait = b.opts.maxBackoff
	}
	b.nextFlushAt = time.Now().Add(wait)

	if !b.shouldLogFailure() {
		return
	}
	b.lastErrorLoggedAt = time.Now()
	if b.logger != nil {
		b.mu.Lock()
		pending := b.pendingRequests
		b.mu.Unlock()
		b.logger.Warn("usage_db_batch_flush_failed",
			"failures", b.failures,
			"backoff", wait,
			"pending_requests", pending,
			"err", err,
		)
	}
}

// shouldLogFailure: 연속 실패 횟수가 2의 거듭제곱이거나 마지막 로그 후 충분히 지났을 때만 남깁니다.
func (b *batcher) shouldLogFailure() bool {
	if b.failures <= 0 {
		return false
	}
	if isPowerOfTwo(b.failures) {
		return true
	}
	if b.opts.errorLogMaxInterval <= 0 {
		return false
	}
	return time.Since(b.lastErrorLoggedAt) >= b.opts.errorLogMaxInterval
}

func isPowerOfTwo(value int) bool {
	return value > 0 && (value&(value-1)) == 0
}
