package usage

import (
	"context"
	"time"
)

// Store: 사용량 저장소 인터페이스입니다.
// 핸들러 테스트에서 mock 구현을 주입할 수 있도록 합니다.
type Store interface {
	RecordUsage(ctx context.Context, delta Delta, usageDate time.Time) error
	GetDailyUsage(ctx context.Context, usageDate time.Time) (*DailyUsage, error)
	GetRecentUsage(ctx context.Context, days int) ([]DailyUsage, error)
	GetTotalUsage(ctx context.Context, days int) (DailyUsage, error)
	Close()
}

// Delta: 한 번에 누적할 사용량입니다.
type Delta struct {
	InputTokens     int64
	OutputTokens    int64
	ReasoningTokens int64
	RequestCount    int64
}

func (d *Delta) add(other Delta) {
	d.InputTokens += other.InputTokens
	d.OutputTokens += other.OutputTokens
	d.ReasoningTokens += other.ReasoningTokens
	d.RequestCount += other.RequestCount
}

func (d Delta) empty() bool {
	return d.RequestCount <= 0 && d.InputTokens <= 0 && d.OutputTokens <= 0
}

// Repository가 Store 인터페이스를 구현하는지 컴파일 타임 확인
var _ Store = (*Repository)(nil)
