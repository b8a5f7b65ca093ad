package gemini

import "context"

// LLM 은 명확화 분석기가 사용하는 LLM 클라이언트 인터페이스다.
// 테스트에서 mock 구현을 주입할 수 있도록 한다.
type LLM interface {
	// Structured JSON 스키마 기반 응답과 사용한 모델명을 반환
	Structured(ctx context.Context, req Request, schema map[string]any) (map[string]any, string, error)
}

// UsageRecorder 는 호출별 토큰 사용량을 적재하는 인터페이스다.
type UsageRecorder interface {
	Record(ctx context.Context, inputTokens int64, outputTokens int64, reasoningTokens int64)
}

var _ LLM = (*Client)(nil)
