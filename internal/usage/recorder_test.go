package usage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/park285/clarification-agent-go/internal/config"
)

type fakeStore struct {
	mu      sync.Mutex
	err     error
	records []Delta
}

func (s *fakeStore) RecordUsage(_ context.Context, delta Delta, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.records = append(s.records, delta)
	return nil
}

func (s *fakeStore) GetDailyUsage(context.Context, time.Time) (*DailyUsage, error) { return nil, nil }

func (s *fakeStore) GetRecentUsage(context.Context, int) ([]DailyUsage, error) { return nil, nil }

func (s *fakeStore) GetTotalUsage(context.Context, int) (DailyUsage, error) {
	return DailyUsage{}, nil
}

func (s *fakeStore) Close() {}

func (s *fakeStore) total() Delta {
	s.mu.Lock()
	defer s.mu.Unlock()
	var sum Delta
	for _, record := range s.records {
		sum.add(record)
	}
	return sum
}

func (s *fakeStore) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func TestRecorderDirect(t *testing.T) {
	store := &fakeStore{}
	recorder := NewRecorder(config.DatabaseConfig{}, store, nil)
	defer recorder.Close()

	recorder.Record(context.Background(), 10, 5, 1)
	recorder.Record(context.Background(), 0, 0, 0)
	if got := store.total(); got.InputTokens != 10 || got.RequestCount != 1 {
		t.Fatalf("unexpected records: %+v", got)
	}

	var nilRecorder *Recorder
	nilRecorder.Record(context.Background(), 1, 1, 1)
	nilRecorder.Close()
}

func TestRecorderBatchesAndFlushesOnClose(t *testing.T) {
	store := &fakeStore{}
	recorder := NewRecorder(config.DatabaseConfig{
		UsageBatchEnabled:              true,
		UsageBatchFlushIntervalSeconds: 3600,
		UsageBatchMaxPendingRequests:   100,
	}, store, nil)

	for range 3 {
		recorder.Record(context.Background(), 10, 2, 1)
	}
	if got := store.total(); got.RequestCount != 0 {
		t.Fatalf("expected nothing flushed yet, got %+v", got)
	}

	recorder.Close()
	got := store.total()
	if got.InputTokens != 30 || got.OutputTokens != 6 || got.ReasoningTokens != 3 || got.RequestCount != 3 {
		t.Fatalf("unexpected flushed totals: %+v", got)
	}
	if len(store.records) != 1 {
		t.Fatalf("expected a single aggregated write, got %d", len(store.records))
	}
}

func TestBatcherFlushesWhenFull(t *testing.T) {
	store := &fakeStore{}
	b := newBatcher(store, newBatchOptions(config.DatabaseConfig{
		UsageBatchFlushIntervalSeconds: 3600,
		UsageBatchMaxPendingRequests:   2,
	}), nil)
	b.start()
	defer b.stop()

	b.add(Delta{InputTokens: 1, RequestCount: 1})
	b.add(Delta{InputTokens: 1, RequestCount: 1})

	deadline := time.Now().Add(2 * time.Second)
	for store.total().RequestCount < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := store.total(); got.RequestCount != 2 {
		t.Fatalf("expected wakeup flush, got %+v", got)
	}
}

func TestBatcherRequeuesOnFailure(t *testing.T) {
	store := &fakeStore{err: errors.New("db down")}
	b := newBatcher(store, newBatchOptions(config.DatabaseConfig{
		UsageBatchFlushIntervalSeconds: 1,
		UsageBatchMaxBackoffSeconds:    4,
	}), nil)

	b.add(Delta{InputTokens: 5, OutputTokens: 1, RequestCount: 1})
	b.flush(false)
	if b.failures != 1 || b.stats.requeued != 1 {
		t.Fatalf("expected requeue after failure, failures=%d stats=%+v", b.failures, b.stats)
	}
	if b.pendingRequests != 1 {
		t.Fatalf("expected pending delta to be kept, got %d", b.pendingRequests)
	}

	// 백오프 중에는 플러시를 건너뜁니다.
	store.setErr(nil)
	b.flush(false)
	if got := store.total(); got.RequestCount != 0 {
		t.Fatalf("expected flush to be skipped during backoff")
	}

	b.nextFlushAt = time.Time{}
	b.flush(false)
	if got := store.total(); got.InputTokens != 5 {
		t.Fatalf("expected requeued delta to be flushed, got %+v", got)
	}
	if b.failures != 0 || !b.nextFlushAt.IsZero() {
		t.Fatalf("expected failure state reset")
	}
}

func TestBatcherDropsOnShutdownFailure(t *testing.T) {
	store := &fakeStore{err: errors.New("db down")}
	b := newBatcher(store, newBatchOptions(config.DatabaseConfig{}), nil)
	b.add(Delta{InputTokens: 5, RequestCount: 1})
	b.flush(true)
	if b.stats.dropped != 1 || b.pendingRequests != 0 {
		t.Fatalf("expected delta to be dropped, stats=%+v pending=%d", b.stats, b.pendingRequests)
	}
}

func TestBatcherBackoffGrowsToCap(t *testing.T) {
	b := newBatcher(&fakeStore{}, newBatchOptions(config.DatabaseConfig{
		UsageBatchFlushIntervalSeconds: 1,
		UsageBatchMaxBackoffSeconds:    4,
	}), nil)

	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 4 * time.Second}
	for i, expected := range want {
		before := time.Now()
		b.registerFailure(errors.New("boom"))
		wait := b.nextFlushAt.Sub(before)
		if wait < expected || wait > expected+100*time.Millisecond {
			t.Fatalf("failure %d: expected backoff about %v, got %v", i+1, expected, wait)
		}
	}
}

func TestShouldLogFailure(t *testing.T) {
	b := &batcher{opts: batchOptions{errorLogMaxInterval: time.Hour}}
	b.failures = 1
	if !b.shouldLogFailure() {
		t.Fatalf("expected log on first failure")
	}

	b.failures = 3
	b.lastErrorLoggedAt = time.Now()
	if b.shouldLogFailure() {
		t.Fatalf("did not expect log for non power-of-two")
	}
}

func TestIsPowerOfTwo(t *testing.T) {
	if !isPowerOfTwo(1) || !isPowerOfTwo(2) || !isPowerOfTwo(4) {
		t.Fatalf("expected power of two")
	}
	if isPowerOfTwo(3) || isPowerOfTwo(0) {
		t.Fatalf("unexpected power of two")
	}
}
