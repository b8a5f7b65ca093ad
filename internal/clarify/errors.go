package clarify

import "errors"

var (
	// ErrNotImplemented 는 분석기가 하나도 구성되지 않은 에이전트가 반환한다.
	ErrNotImplemented = errors.New("clarification agent: not implemented")
	// ErrInputTooLong 는 입력이 허용 길이를 넘을 때 반환된다.
	ErrInputTooLong = errors.New("clarification agent: user input too long")
	// ErrMalformedResponse 는 LLM 응답을 결과로 해석할 수 없을 때 반환된다.
	ErrMalformedResponse = errors.New("clarification agent: malformed llm response")
)
