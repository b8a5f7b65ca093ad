package guard

// Guard 는 입력 검증 인터페이스다.
// 에이전트와 핸들러 테스트에서 mock 구현을 주입할 수 있도록 한다.
type Guard interface {
	// Evaluate 입력 문자열 평가
	Evaluate(input string) Evaluation

	// EnsureSafe 위험 입력을 에러로 반환
	EnsureSafe(input string) error

	// IsMalicious 입력이 위험한지 여부
	IsMalicious(input string) bool
}

var _ Guard = (*InjectionGuard)(nil)
