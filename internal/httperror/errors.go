package httperror

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/park285/clarification-agent-go/internal/clarify"
	"github.com/park285/clarification-agent-go/internal/gemini"
	"github.com/park285/clarification-agent-go/internal/guard"
)

// ErrorCode 는 API 오류 코드다.
type ErrorCode string

const (
	// ErrorCodeInternal 는 내부 오류 코드다.
	ErrorCodeInternal ErrorCode = "INTERNAL_ERROR"
	// ErrorCodeValidation 는 검증 오류 코드다.
	ErrorCodeValidation ErrorCode = "VALIDATION_ERROR"
	// ErrorCodeUnauthorized 는 인증 오류 코드다.
	ErrorCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	// ErrorCodeHTTPRateLimit 는 요청 제한 오류 코드다.
	ErrorCodeHTTPRateLimit ErrorCode = "HTTP_RATE_LIMIT"
	// ErrorCodeNotImplemented 는 분석기가 없는 에이전트 호출 코드다.
	ErrorCodeNotImplemented ErrorCode = "NOT_IMPLEMENTED"
	// ErrorCodeInputTooLong 는 입력 길이 초과 코드다.
	ErrorCodeInputTooLong ErrorCode = "INPUT_TOO_LONG"
	// ErrorCodeCanceled 는 요청 취소 코드다.
	ErrorCodeCanceled ErrorCode = "REQUEST_CANCELED"
	ErrorCodeLLM      ErrorCode = "LLM_ERROR"
	// ErrorCodeLLMTimeout 는 LLM 타임아웃 코드다.
	ErrorCodeLLMTimeout ErrorCode = "LLM_TIMEOUT"
	// ErrorCodeLLMParsing 는 LLM 응답 해석 실패 코드다.
	ErrorCodeLLMParsing ErrorCode = "LLM_PARSING_ERROR"
	ErrorCodeLLMModel   ErrorCode = "LLM_MODEL_ERROR"
	// ErrorCodeGuardBlocked 는 가드 차단 코드다.
	ErrorCodeGuardBlocked ErrorCode = "GUARD_BLOCKED"
	// ErrorCodeInvalidInput 는 입력 오류 코드다.
	ErrorCodeInvalidInput ErrorCode = "INVALID_INPUT"
	// ErrorCodeMissingField 는 필드 누락 코드다.
	ErrorCodeMissingField ErrorCode = "MISSING_FIELD"
	// ErrorCodeNotFound 는 리소스 미존재 코드다.
	ErrorCodeNotFound ErrorCode = "NOT_FOUND"
	// ErrorCodeUnavailable 는 꺼져 있는 기능 호출 코드다.
	ErrorCodeUnavailable ErrorCode = "UNAVAILABLE"
)

// StatusClientClosedRequest 는 호출자가 먼저 끊은 요청의 상태 코드다 (nginx 관례).
const StatusClientClosedRequest = 499

// ErrorResponse 는 API 오류 응답 본문이다.
type ErrorResponse struct {
	ErrorCode string         `json:"error_code"`
	ErrorType string         `json:"error_type"`
	Message   string         `json:"message"`
	RequestID *string        `json:"request_id"`
	Details   map[string]any `json:"details"`
}

// Error 는 HTTP/gRPC 공통 표준 오류 타입이다.
type Error struct {
	Code    ErrorCode
	Status  int
	Type    string
	Message string
	Details map[string]any
}

// Error 는 오류 메시지를 반환한다.
func (e *Error) Error() string {
	return e.Message
}

// Response 는 오류를 HTTP 응답으로 변환한다.
func Response(err error, requestID string) (int, ErrorResponse) {
	apiErr := FromError(err)
	if apiErr == nil {
		apiErr = NewInternalError("unknown error")
	}

	var requestIDPtr *string
	if requestID != "" {
		requestIDPtr = &requestID
	}

	return apiErr.Status, ErrorResponse{
		ErrorCode: string(apiErr.Code),
		ErrorType: apiErr.Type,
		Message:   apiErr.Message,
		RequestID: requestIDPtr,
		Details:   apiErr.Details,
	}
}

// FromError 는 도메인 오류를 표준 오류로 변환한다. 매핑 순서가 우선순위다.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}

	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var blocked *guard.BlockedError
	if errors.As(err, &blocked) {
		return NewGuardBlocked(blocked)
	}

	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		return NewValidationError(err)
	}

	switch {
	case errors.Is(err, clarify.ErrNotImplemented):
		return newError(ErrorCodeNotImplemented, http.StatusNotImplemented, "NotImplementedError",
			"Clarification agent has no analyzer configured", nil)
	case errors.Is(err, clarify.ErrInputTooLong):
		return newError(ErrorCodeInputTooLong, http.StatusBadRequest, "InputTooLongError",
			"User input exceeds the allowed length", nil)
	case errors.Is(err, clarify.ErrMalformedResponse),
		errors.Is(err, gemini.ErrDecodeResponse),
		errors.Is(err, gemini.ErrEmptyResponse):
		return newError(ErrorCodeLLMParsing, http.StatusBadGateway, "LLMParsingError",
			"LLM response could not be interpreted", nil)
	case errors.Is(err, gemini.ErrInvalidModel):
		return newError(ErrorCodeLLMModel, http.StatusBadRequest, "LLMModelError", "Invalid model", nil)
	case errors.Is(err, gemini.ErrMissingAPIKey):
		return NewLLMError("Missing Gemini API key", http.StatusServiceUnavailable)
	case errors.Is(err, context.DeadlineExceeded):
		return newError(ErrorCodeLLMTimeout, http.StatusGatewayTimeout, "LLMTimeoutError", "LLM request timed out", nil)
	case errors.Is(err, context.Canceled):
		return newError(ErrorCodeCanceled, StatusClientClosedRequest, "CanceledError", "Request canceled", nil)
	}

	return NewInternalError(err.Error())
}

func newError(code ErrorCode, status int, typ string, message string, details map[string]any) *Error {
	return &Error{Code: code, Status: status, Type: typ, Message: message, Details: details}
}

// NewInternalError 는 내부 오류를 생성한다.
func NewInternalError(message string) *Error {
	return newError(ErrorCodeInternal, http.StatusInternalServerError, "InternalError", message, nil)
}

// NewValidationError 는 검증 오류를 생성한다.
func NewValidationError(err error) *Error {
	return newError(ErrorCodeValidation, http.StatusUnprocessableEntity, "ValidationError",
		"Input validation failed", validationDetails(err))
}

// NewMissingField 는 누락 필드 오류를 생성한다.
func NewMissingField(field string) *Error {
	return newError(ErrorCodeMissingField, http.StatusBadRequest, "MissingFieldError",
		fmt.Sprintf("Field '%s' required", field), map[string]any{"field": field})
}

// NewInvalidInput 는 입력 오류를 생성한다.
func NewInvalidInput(message string) *Error {
	return newError(ErrorCodeInvalidInput, http.StatusBadRequest, "InvalidInputError", message, nil)
}

// NewNotFound 는 리소스 미존재 오류를 생성한다.
func NewNotFound(resource string) *Error {
	return newError(ErrorCodeNotFound, http.StatusNotFound, "NotFoundError",
		fmt.Sprintf("%s not found", resource), map[string]any{"resource": resource})
}

// NewUnavailable 는 비활성 기능 오류를 생성한다.
func NewUnavailable(feature string) *Error {
	return newError(ErrorCodeUnavailable, http.StatusServiceUnavailable, "UnavailableError",
		fmt.Sprintf("%s is disabled", feature), map[string]any{"feature": feature})
}

// NewUnauthorized 는 인증 오류를 생성한다.
func NewUnauthorized(details map[string]any) *Error {
	return newError(ErrorCodeUnauthorized, http.StatusUnauthorized, "UnauthorizedError", "Invalid API key", details)
}

// NewRateLimitExceeded 는 요청 제한 오류를 생성한다.
func NewRateLimitExceeded(details map[string]any) *Error {
	return newError(ErrorCodeHTTPRateLimit, http.StatusTooManyRequests, "HTTPRateLimitExceededError",
		"Rate limit exceeded", details)
}

// NewGuardBlocked 는 가드 차단 오류를 생성한다. 차단 규칙 ID 를 상세에 담는다.
func NewGuardBlocked(blocked *guard.BlockedError) *Error {
	details := map[string]any{
		"score":     blocked.Score,
		"threshold": blocked.Threshold,
		"rules":     blocked.RuleIDs(),
	}
	return newError(ErrorCodeGuardBlocked, http.StatusBadRequest, "GuardBlockedError",
		fmt.Sprintf("Input blocked by injection guard (score=%.2f, threshold=%.2f)", blocked.Score, blocked.Threshold),
		details)
}

// NewLLMError 는 LLM 오류를 생성한다.
func NewLLMError(message string, status int) *Error {
	return newError(ErrorCodeLLM, status, "LLMError", message, nil)
}

// FieldError 는 필드 오류 상세 정보다.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Value   any    `json:"value"`
}

func validationDetails(err error) map[string]any {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		fields := make([]FieldError, 0, len(validationErrors))
		for _, validationErr := range validationErrors {
			fields = append(fields, FieldError{
				Field:   validationErr.Field(),
				Message: validationErr.Error(),
				Value:   validationErr.Value(),
			})
		}
		return map[string]any{"errors": fields}
	}

	return map[string]any{
		"errors": []FieldError{{Field: "body", Message: err.Error()}},
	}
}
